package log

import (
	"math"
	"time"
)

// Logger is the structured logger handed to every pipeline component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type fieldKind uint8

const (
	kindString fieldKind = iota + 1
	kindInt
	kindFloat
	kindBool
	kindDuration
	kindError
)

// Field is one typed key/value pair of a log entry. Numbers, bools and
// durations are packed into num so building a Field never allocates.
type Field struct {
	Key  string
	kind fieldKind
	str  string
	num  int64
	err  error
}

func String(key, value string) Field {
	return Field{Key: key, kind: kindString, str: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, kind: kindInt, num: int64(value)}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, kind: kindInt, num: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, kind: kindFloat, num: int64(math.Float64bits(value))}
}

func Bool(key string, value bool) Field {
	f := Field{Key: key, kind: kindBool}
	if value {
		f.num = 1
	}
	return f
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, kind: kindDuration, num: int64(value)}
}

// Err attaches err under "error".
func Err(err error) Field {
	return Field{Key: "error", kind: kindError, err: err}
}

// Port names the serial device an entry concerns.
func Port(name string) Field { return String("port", name) }

// Path names the file an entry concerns.
func Path(p string) Field { return String("path", p) }

func (f Field) float() float64 { return math.Float64frombits(uint64(f.num)) }

package fs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultLogName is the reference voltage log file name.
const DefaultLogName = "voltage_data.txt"

// LogFile implements ports.LogStore as an append-only text file.
type LogFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
	size int64
}

// OpenLogFile opens (creating if needed) the log at path for appending.
// Existing content is kept.
func OpenLogFile(path string) (*LogFile, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &LogFile{path: path, f: f, size: info.Size()}, nil
}

// Append writes p in one call and fsyncs it. If the write or sync fails the
// file is cut back to its previous length so no partial record survives.
func (l *LogFile) Append(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return os.ErrClosed
	}

	n, err := l.f.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = l.f.Sync()
	}
	if err != nil {
		if terr := l.f.Truncate(l.size); terr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, terr)
		}
		return err
	}
	l.size += int64(n)
	return nil
}

// Truncate empties the log.
func (l *LogFile) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return TruncateLog(l.path)
	}
	if err := l.f.Truncate(0); err != nil {
		return err
	}
	l.size = 0
	return l.f.Sync()
}

// Path returns the log location.
func (l *LogFile) Path() string {
	return l.path
}

// Size returns the number of bytes appended so far, including prior content.
func (l *LogFile) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Close closes the file.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// TruncateLog empties the log at path without holding it open, creating it
// if missing.
func TruncateLog(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// ReadLines returns every line of the log at path, in order, without the
// terminators. A missing file yields no lines.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

package cliconfig

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// LogFileName is the process log written under the state directory while
// the terminal UI owns the screen.
const LogFileName = "voltship.log"

// NewLogger returns a console logger writing to w at level.
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", name, err)
	}
	return lvl, nil
}

// OpenLogFile opens <stateDir>/voltship.log for appending and returns a JSON
// logger writing to it. The caller closes the returned file.
func OpenLogFile(stateDir string, level zerolog.Level) (zerolog.Logger, *os.File, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return zerolog.Nop(), nil, err
	}
	f, err := os.OpenFile(filepath.Join(stateDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return zerolog.New(f).Level(level).With().Timestamp().Logger(), f, nil
}

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Check with errors.Is.
var (
	// ErrNotANumber is returned when a frame is not a base-10 integer.
	ErrNotANumber = errors.New("voltship: frame is not a number")

	// ErrNotConnected is returned when Start is called without a live connection.
	ErrNotConnected = errors.New("voltship: no device connected")

	// ErrAlreadyRunning is returned when Start is called while acquiring.
	ErrAlreadyRunning = errors.New("voltship: already running")

	// ErrNotRunning is returned when Stop is called while not acquiring.
	ErrNotRunning = errors.New("voltship: not running")

	// ErrBusy is returned for operations refused while Running or Stopping.
	ErrBusy = errors.New("voltship: acquisition in progress")

	// ErrDeviceNotFound is returned when discovery finds no matching port.
	ErrDeviceNotFound = errors.New("voltship: microcontroller not found")

	// ErrShutdownTimeout is returned when workers do not exit in time.
	ErrShutdownTimeout = errors.New("voltship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("voltship: invalid configuration")

	// ErrInvalidTransition is returned for state changes the state machine forbids.
	ErrInvalidTransition = errors.New("voltship: invalid state transition")

	// ErrQueueFull is returned when an enqueue could not complete in time.
	ErrQueueFull = errors.New("voltship: sample queue full")

	// ErrQueueClosed is returned when enqueueing after persistence halted.
	ErrQueueClosed = errors.New("voltship: sample queue closed")

	// ErrClosed is returned by every operation after Shutdown.
	ErrClosed = errors.New("voltship: shut down")

	// ErrWriterStopped is returned when the persistence writer is not running.
	ErrWriterStopped = errors.New("voltship: writer stopped")
)

// DecodeError reports a frame that could not be decoded. It is recoverable.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError reports a serial connection failure. It ends the connection.
type TransportError struct {
	Port string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("serial %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError reports a durable log failure. It halts the writer.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("log %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExportError reports one log line or workbook failure during export.
// Line is 1-based and zero for workbook-level failures.
type ExportError struct {
	Line int
	Text string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Line == 0 {
		if e.Text != "" {
			return fmt.Sprintf("export %s: %v", e.Text, e.Err)
		}
		return fmt.Sprintf("export: %v", e.Err)
	}
	return fmt.Sprintf("export line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

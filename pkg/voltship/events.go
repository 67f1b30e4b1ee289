package voltship

import (
	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/internal/ports"
)

// Event is one human-readable notice for the display.
type Event = domain.Event

// EventKind classifies events.
type EventKind = domain.EventKind

// Event kinds.
const (
	EventStatus           = domain.EventStatus
	EventSample           = domain.EventSample
	EventDecodeError      = domain.EventDecodeError
	EventTransportError   = domain.EventTransportError
	EventPersistenceError = domain.EventPersistenceError
	EventExportError      = domain.EventExportError
	EventProgress         = domain.EventProgress
	EventStateChange      = domain.EventStateChange
)

// Observer receives events. Notify is called from worker goroutines and
// must not block.
type Observer = ports.Observer

// ObserverFunc adapts a function to Observer.
type ObserverFunc = ports.ObserverFunc

// Errors returned by Voltship operations.
var (
	ErrNotConnected      = domain.ErrNotConnected
	ErrAlreadyRunning    = domain.ErrAlreadyRunning
	ErrNotRunning        = domain.ErrNotRunning
	ErrBusy              = domain.ErrBusy
	ErrDeviceNotFound    = domain.ErrDeviceNotFound
	ErrShutdownTimeout   = domain.ErrShutdownTimeout
	ErrInvalidConfig     = domain.ErrInvalidConfig
	ErrInvalidTransition = domain.ErrInvalidTransition
	ErrClosed            = domain.ErrClosed
)

// Typed errors carried by events and returned by operations.
type (
	DecodeError      = domain.DecodeError
	TransportError   = domain.TransportError
	PersistenceError = domain.PersistenceError
	ExportError      = domain.ExportError
)

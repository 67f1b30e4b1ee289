package domain

import "time"

// EventKind classifies display events.
type EventKind int

const (
	EventStatus EventKind = iota
	EventSample
	EventDecodeError
	EventTransportError
	EventPersistenceError
	EventExportError
	EventProgress
	EventStateChange
)

// String returns a short label for the kind.
func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventSample:
		return "sample"
	case EventDecodeError:
		return "decode-error"
	case EventTransportError:
		return "transport-error"
	case EventPersistenceError:
		return "persistence-error"
	case EventExportError:
		return "export-error"
	case EventProgress:
		return "progress"
	case EventStateChange:
		return "state"
	default:
		return "unknown"
	}
}

// IsError reports whether the event describes a failure.
func (k EventKind) IsError() bool {
	switch k {
	case EventDecodeError, EventTransportError, EventPersistenceError, EventExportError:
		return true
	}
	return false
}

// Event is a single human-readable notice for the display observer.
// Volts is only meaningful for EventSample.
type Event struct {
	Kind    EventKind
	Message string
	Volts   float64
	At      time.Time
}

// NewEvent stamps an event with the current time.
func NewEvent(kind EventKind, msg string) Event {
	return Event{Kind: kind, Message: msg, At: time.Now()}
}

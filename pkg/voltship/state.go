package voltship

import (
	"time"

	"github.com/bft-labs/voltship/internal/app"
	"github.com/bft-labs/voltship/internal/domain"
)

// State is the acquisition state of a Voltship instance.
type State int

const (
	// StateIdle: connected or not, not acquiring.
	StateIdle State = iota
	// StateRunning: frames are read, converted, and queued.
	StateRunning
	// StateStopping: the final read and drain are in progress.
	StateStopping
	// StateStopped: the last run drained completely.
	StateStopped
	// StateError: a transport or persistence fault; reconnect to recover.
	StateError
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	return toAppState(s).String()
}

func convertState(s app.State) State {
	switch s {
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateStopped:
		return StateStopped
	case app.StateError:
		return StateError
	default:
		return StateIdle
	}
}

func toAppState(s State) app.State {
	switch s {
	case StateIdle:
		return app.StateIdle
	case StateRunning:
		return app.StateRunning
	case StateStopping:
		return app.StateStopping
	case StateStopped:
		return app.StateStopped
	case StateError:
		return app.StateError
	default:
		return app.State(-1)
	}
}

// Session describes the current or last acquisition run.
type Session = domain.Session

// Status is a point-in-time view of the pipeline.
type Status struct {
	State  State
	Reason string
	Fault  error

	// Port is the connected device, empty when disconnected.
	Port string

	Session Session

	// Flushed counts records appended by this process.
	Flushed int64

	// QueueDepth is the number of readings waiting for the writer.
	QueueDepth int

	// Decoded and Rejected count frames on the current connection.
	Decoded  int64
	Rejected int64

	At time.Time
}

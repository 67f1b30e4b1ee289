package voltship

import (
	"github.com/bft-labs/voltship/internal/ports"
	"github.com/bft-labs/voltship/pkg/log"
)

// Logger is the interface for structured logging.
type Logger = log.Logger

// Dialer opens serial connections.
type Dialer = ports.Dialer

// Discoverer locates the microcontroller port.
type Discoverer = ports.Discoverer

// Connection is an open serial link.
type Connection = ports.Connection

// ErrNoLine is returned by Connection.ReadLine when no complete line arrived
// within the poll timeout.
var ErrNoLine = ports.ErrNoLine

// LogStore is the durable voltage log.
type LogStore = ports.LogStore

// SessionRepository persists session bookkeeping.
type SessionRepository = ports.SessionRepository

// Option configures optional behavior of Voltship.
type Option func(*options)

// options holds the optional configuration for a Voltship instance.
type options struct {
	logger     log.Logger
	observer   ports.Observer
	dialer     ports.Dialer
	discoverer ports.Discoverer
	store      ports.LogStore
	sessions   ports.SessionRepository
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver sets the display observer. Use a *Feed to pull events from a
// foreground loop.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithDialer replaces the go.bug.st/serial dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithDiscoverer replaces USB port discovery.
func WithDiscoverer(d Discoverer) Option {
	return func(o *options) {
		o.discoverer = d
	}
}

// WithLogStore replaces the file-backed voltage log. Voltship closes the
// store on Shutdown.
func WithLogStore(s LogStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithSessionRepository replaces the status.json repository.
func WithSessionRepository(r SessionRepository) Option {
	return func(o *options) {
		o.sessions = r
	}
}

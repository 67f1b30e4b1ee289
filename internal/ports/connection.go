package ports

import "errors"

// ErrNoLine is returned by Connection.ReadLine when no complete line arrived
// within the poll timeout. Callers treat it as "nothing yet" and poll again.
var ErrNoLine = errors.New("no complete line available")

// Connection is an open serial link to the microcontroller. It is owned by
// exactly one acquisition loop and is not safe for concurrent use.
type Connection interface {
	// ReadLine returns the next complete line including its terminator.
	// Returns ErrNoLine if none is available within the poll timeout.
	// Any other error is a transport failure.
	ReadLine() ([]byte, error)

	// ReadAvailable returns every byte already received but not yet
	// returned by ReadLine, without waiting for more to arrive.
	ReadAvailable() ([]byte, error)

	// Port returns the device path.
	Port() string

	// Close releases the device.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(port string) (Connection, error)
}

// Discoverer locates the microcontroller among enumerated ports.
type Discoverer interface {
	// Discover returns the device path of the first matching port.
	// Returns domain.ErrDeviceNotFound if none matches.
	Discover() (string, error)
}

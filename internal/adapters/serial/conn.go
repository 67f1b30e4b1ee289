package serial

import (
	"bytes"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/bft-labs/voltship/internal/ports"
)

// Default port settings.
const (
	DefaultBaudRate     = 115200
	DefaultPollTimeout  = 100 * time.Millisecond
	DefaultDrainTimeout = 50 * time.Millisecond

	// MaxLineLength bounds how many bytes are buffered waiting for a
	// terminator. A longer run is handed up as one (undecodable) frame.
	MaxLineLength = 256

	// maxDrainBytes caps one final read.
	maxDrainBytes = 1 << 20
)

// port is the subset of serial.Port used by Conn.
type port interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Conn implements ports.Connection over an open serial port.
// It is not safe for concurrent use; the acquisition loop owns it.
type Conn struct {
	name         string
	port         port
	pollTimeout  time.Duration
	drainTimeout time.Duration

	pending []byte
	buf     []byte
}

func newConn(name string, p port, pollTimeout, drainTimeout time.Duration) *Conn {
	return &Conn{
		name:         name,
		port:         p,
		pollTimeout:  pollTimeout,
		drainTimeout: drainTimeout,
		buf:          make([]byte, 512),
	}
}

// ReadLine returns the next complete line including its terminator. It waits
// at most one poll timeout for new bytes and returns ports.ErrNoLine if no
// line completed in that time.
func (c *Conn) ReadLine() ([]byte, error) {
	if line, ok := c.nextLine(); ok {
		return line, nil
	}

	n, err := c.port.Read(c.buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ports.ErrNoLine
	}
	c.pending = append(c.pending, c.buf[:n]...)

	if line, ok := c.nextLine(); ok {
		return line, nil
	}
	if len(c.pending) >= MaxLineLength {
		line := c.pending
		c.pending = nil
		return line, nil
	}
	return nil, ports.ErrNoLine
}

func (c *Conn) nextLine() ([]byte, bool) {
	i := bytes.IndexByte(c.pending, '\n')
	if i < 0 {
		return nil, false
	}
	line := append([]byte(nil), c.pending[:i+1]...)
	c.pending = c.pending[i+1:]
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return line, true
}

// ReadAvailable returns the bytes already received: those held from partial
// lines plus what the driver has buffered. Reading continues only while each
// Read fills the buffer completely, and never past one drain timeout in
// total, so a device that keeps streaming cannot hold the caller.
func (c *Conn) ReadAvailable() ([]byte, error) {
	out := c.pending
	c.pending = nil

	if err := c.port.SetReadTimeout(c.drainTimeout); err != nil {
		return out, err
	}
	defer c.port.SetReadTimeout(c.pollTimeout)

	deadline := time.Now().Add(c.drainTimeout)
	for len(out) < maxDrainBytes {
		n, err := c.port.Read(c.buf)
		if err != nil {
			return out, err
		}
		out = append(out, c.buf[:n]...)
		if n < len(c.buf) || !time.Now().Before(deadline) {
			break
		}
	}
	return out, nil
}

// Port returns the device name.
func (c *Conn) Port() string {
	return c.name
}

// Close closes the underlying port.
func (c *Conn) Close() error {
	return c.port.Close()
}

// Dialer opens serial ports in 8N1 mode.
type Dialer struct {
	BaudRate     int
	PollTimeout  time.Duration
	DrainTimeout time.Duration

	open func(name string, mode *serial.Mode) (port, error)
}

// NewDialer creates a dialer for the given baud rate and poll timeout.
// Zero values select the defaults.
func NewDialer(baudRate int, pollTimeout time.Duration) *Dialer {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Dialer{
		BaudRate:     baudRate,
		PollTimeout:  pollTimeout,
		DrainTimeout: DefaultDrainTimeout,
	}
}

// Dial opens name and returns a connection ready for polling.
func (d *Dialer) Dial(name string) (ports.Connection, error) {
	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	open := d.open
	if open == nil {
		open = openPort
	}
	p, err := open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(d.PollTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return newConn(name, p, d.PollTimeout, d.DrainTimeout), nil
}

func openPort(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

package voltship_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/voltship/pkg/voltship"
)

// errNoLine mirrors the poll timeout of a real port.
var errNoLine = voltship.ErrNoLine

// fakeConn serves pushed lines one at a time. Bytes in pending are only
// visible to ReadAvailable, like data still sitting in the port buffer.
type fakeConn struct {
	name string

	mu      sync.Mutex
	lines   []string
	pending string
	readErr error
	closed  bool
}

func (c *fakeConn) push(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, lines...)
}

func (c *fakeConn) setPending(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = s
}

func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

func (c *fakeConn) ReadLine() ([]byte, error) {
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, err
	}
	if len(c.lines) == 0 {
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
		return nil, errNoLine
	}
	l := c.lines[0]
	c.lines = c.lines[1:]
	c.mu.Unlock()
	return []byte(l), nil
}

func (c *fakeConn) ReadAvailable() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	var b strings.Builder
	for _, l := range c.lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(c.pending)
	c.lines, c.pending = nil, ""
	return []byte(b.String()), nil
}

func (c *fakeConn) Port() string { return c.name }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out a fresh fakeConn per Dial and remembers them.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) Dial(port string) (voltship.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{name: port}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeDiscoverer struct {
	port string
}

func (d fakeDiscoverer) Discover() (string, error) {
	if d.port == "" {
		return "", voltship.ErrDeviceNotFound
	}
	return d.port, nil
}

// failingStore is a LogStore whose appends always fail.
type failingStore struct {
	path string
}

var errDiskFull = errors.New("disk full")

func (s failingStore) Append([]byte) error { return errDiskFull }
func (s failingStore) Truncate() error     { return nil }
func (s failingStore) Path() string        { return s.path }
func (s failingStore) Close() error        { return nil }

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []voltship.Event
}

func (r *recorder) Notify(e voltship.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) messages(kind voltship.EventKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Message)
		}
	}
	return out
}

func (r *recorder) has(kind voltship.EventKind, msg string) bool {
	for _, m := range r.messages(kind) {
		if m == msg {
			return true
		}
	}
	return false
}

func rawLines(n int, raw int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprint(raw)
	}
	return out
}

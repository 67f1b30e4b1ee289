package app

import (
	"bytes"
	"errors"
	"sync"

	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/internal/ports"
)

// memStore is an in-memory ports.LogStore. failAfter > 0 makes every append
// after the first failAfter-1 successes return errAppend.
type memStore struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	appends   int
	failAfter int
}

var errAppend = errors.New("disk full")

func (s *memStore) Append(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.failAfter > 0 && s.appends >= s.failAfter {
		return errAppend
	}
	s.buf.Write(p)
	return nil
}

func (s *memStore) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	return nil
}

func (s *memStore) Path() string { return "mem://voltage_data.txt" }
func (s *memStore) Close() error { return nil }

func (s *memStore) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *memStore) Appends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

// fakeConn serves queued lines from ReadLine and a fixed chunk from
// ReadAvailable.
type fakeConn struct {
	mu       sync.Mutex
	lines    [][]byte
	pending  []byte
	readErr  error
	drainErr error
	closed   bool
}

func (c *fakeConn) push(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		c.lines = append(c.lines, []byte(l))
	}
}

func (c *fakeConn) ReadLine() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	if len(c.lines) == 0 {
		return nil, ports.ErrNoLine
	}
	l := c.lines[0]
	c.lines = c.lines[1:]
	return l, nil
}

func (c *fakeConn) ReadAvailable() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drainErr != nil {
		return nil, c.drainErr
	}
	var out []byte
	for _, l := range c.lines {
		out = append(out, l...)
	}
	out = append(out, c.pending...)
	c.lines = nil
	c.pending = nil
	return out, nil
}

func (c *fakeConn) Port() string { return "/dev/ttyACM0" }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeCoord drives an Acquisition through a real Lifecycle.
type fakeCoord struct {
	lc      *Lifecycle
	drained chan uint64
	faults  chan error
}

func newFakeCoord() *fakeCoord {
	return &fakeCoord{
		lc:      newTestLifecycle(nil),
		drained: make(chan uint64, 4),
		faults:  make(chan error, 4),
	}
}

func (c *fakeCoord) Snapshot() (State, uint64)       { return c.lc.Snapshot() }
func (c *fakeCoord) AcquisitionDrained(epoch uint64) { c.drained <- epoch }

func (c *fakeCoord) Fault(err error) {
	c.lc.Fail(err)
	c.faults <- err
}

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Notify(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Kind(kind domain.EventKind) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

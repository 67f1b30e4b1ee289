package app

import (
	"sync"
	"time"

	"github.com/bft-labs/voltship/internal/domain"
)

// DefaultQueueCapacity matches the reference batch threshold.
const DefaultQueueCapacity = 100

// SampleQueue is a bounded FIFO of voltage readings shared by the acquisition
// loop (producer) and the writer (consumer).
//
// A full queue never drops a reading. Enqueue raises a forced-flush signal
// for the writer and waits, up to a timeout, for space to free up.
type SampleQueue struct {
	mu     sync.Mutex
	buf    []domain.VoltageReading
	head   int
	size   int
	closed bool

	ready    chan struct{} // an item was pushed
	space    chan struct{} // items were popped or the queue closed
	flushReq chan struct{} // producer hit capacity
}

// NewSampleQueue creates a queue holding at most capacity readings.
func NewSampleQueue(capacity int) *SampleQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &SampleQueue{
		buf:      make([]domain.VoltageReading, capacity),
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		flushReq: make(chan struct{}, 1),
	}
}

// Enqueue appends r. If the queue is full it requests a flush and waits up to
// timeout for room. Returns domain.ErrQueueFull on timeout and
// domain.ErrQueueClosed once the queue has been closed; r is not stored in
// either case.
func (q *SampleQueue) Enqueue(r domain.VoltageReading, timeout time.Duration) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return domain.ErrQueueClosed
		}
		if q.size < len(q.buf) {
			q.buf[(q.head+q.size)%len(q.buf)] = r
			q.size++
			q.mu.Unlock()
			signal(q.ready)
			return nil
		}
		q.mu.Unlock()

		signal(q.flushReq)
		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-q.space:
		case <-timer.C:
			return domain.ErrQueueFull
		}
	}
}

// DequeueBatch removes and returns up to max readings in FIFO order.
// It never blocks; an empty queue yields nil.
func (q *SampleQueue) DequeueBatch(max int) []domain.VoltageReading {
	q.mu.Lock()
	n := q.size
	if max > 0 && max < n {
		n = max
	}
	out := q.popLocked(n)
	q.mu.Unlock()

	if len(out) > 0 {
		signal(q.space)
	}
	return out
}

// DrainAll removes and returns everything currently queued.
// On an empty queue it returns nil and changes nothing.
func (q *SampleQueue) DrainAll() []domain.VoltageReading {
	return q.DequeueBatch(0)
}

func (q *SampleQueue) popLocked(n int) []domain.VoltageReading {
	if n == 0 {
		return nil
	}
	out := make([]domain.VoltageReading, n)
	for i := 0; i < n; i++ {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = domain.VoltageReading{}
	}
	q.head = (q.head + n) % len(q.buf)
	q.size -= n
	return out
}

// Len returns the number of queued readings.
func (q *SampleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *SampleQueue) Cap() int {
	return len(q.buf)
}

// Ready is signalled after a push.
func (q *SampleQueue) Ready() <-chan struct{} {
	return q.ready
}

// FlushRequested is signalled when a producer found the queue full.
func (q *SampleQueue) FlushRequested() <-chan struct{} {
	return q.flushReq
}

// Close rejects further enqueues. Readings already queued stay available to
// DequeueBatch and DrainAll.
func (q *SampleQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	signal(q.space)
}

// Reopen accepts enqueues again after Close.
func (q *SampleQueue) Reopen() {
	q.mu.Lock()
	q.closed = false
	q.mu.Unlock()
}

// Closed reports whether the queue rejects enqueues.
func (q *SampleQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// signal performs a non-blocking send on a 1-buffered channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

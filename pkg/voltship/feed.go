package voltship

import (
	"fmt"
	"sync"
	"time"
)

// DefaultFeedLimit is the number of undisplayed sample events a Feed holds
// before coalescing further ones.
const DefaultFeedLimit = 500

// Feed is an Observer that buffers events for a foreground loop.
//
// Notify never blocks. Status and error events are always kept. Once more
// than the limit of sample events are waiting, further samples are counted
// instead of stored and surface as one "N voltage readings not displayed"
// notice, placed where they were dropped. Persisted data is not affected.
type Feed struct {
	mu      sync.Mutex
	events  []Event
	samples int
	dropped int
	limit   int
	ready   chan struct{}
}

// NewFeed creates a feed holding at most limit pending sample events.
func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	return &Feed{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Notify records e.
func (f *Feed) Notify(e Event) {
	f.mu.Lock()
	if e.Kind == EventSample && f.samples >= f.limit {
		f.dropped++
		f.mu.Unlock()
		return
	}
	f.flushDroppedLocked()
	f.events = append(f.events, e)
	if e.Kind == EventSample {
		f.samples++
	}
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled when events are waiting.
func (f *Feed) Ready() <-chan struct{} {
	return f.ready
}

// Drain returns every waiting event in order and empties the feed.
func (f *Feed) Drain() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.flushDroppedLocked()
	out := f.events
	f.events = nil
	f.samples = 0
	return out
}

// Dropped returns the number of sample events currently coalesced.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *Feed) flushDroppedLocked() {
	if f.dropped == 0 {
		return
	}
	f.events = append(f.events, Event{
		Kind:    EventProgress,
		Message: fmt.Sprintf("%d voltage readings not displayed", f.dropped),
		At:      time.Now(),
	})
	f.dropped = 0
}

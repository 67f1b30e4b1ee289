package ports

import "github.com/bft-labs/voltship/internal/domain"

// Observer receives display events in the order they are produced.
// Notify must not block: workers call it from their own goroutines and the
// display drains events on its own schedule.
type Observer interface {
	Notify(e domain.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(domain.Event)

// Notify calls f(e).
func (f ObserverFunc) Notify(e domain.Event) { f(e) }

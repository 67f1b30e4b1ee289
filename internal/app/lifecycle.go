package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/pkg/log"
)

// ShutdownTimeout is the default maximum time to wait for workers on shutdown.
const ShutdownTimeout = 30 * time.Second

// State represents the acquisition state of the pipeline.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
	StateError
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// transitions lists the allowed moves out of each state.
var transitions = map[State][]State{
	StateIdle:     {StateRunning},
	StateRunning:  {StateStopping, StateError},
	StateStopping: {StateStopped, StateError},
	StateStopped:  {StateRunning, StateIdle},
	StateError:    {StateIdle},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventEmitter is called when the lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle owns the pipeline state. Workers read it; only the controller
// (and worker fault reports routed through it) change it.
//
// Every successful transition bumps an epoch, so a worker can tell two
// separate Stopping phases apart.
type Lifecycle struct {
	mu     sync.RWMutex
	state  State
	epoch  uint64
	reason string
	fault  error

	wg           sync.WaitGroup
	logger       log.Logger
	eventEmitter EventEmitter
}

// NewLifecycle creates a lifecycle in StateIdle.
func NewLifecycle(logger log.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:        StateIdle,
		epoch:        1,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Snapshot returns the current state and its epoch.
func (l *Lifecycle) Snapshot() (State, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, l.epoch
}

// Reason returns the reason recorded with the last transition.
func (l *Lifecycle) Reason() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reason
}

// Fault returns the error that moved the pipeline into StateError, if any.
func (l *Lifecycle) Fault() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fault
}

// TransitionTo attempts to move to newState.
// Returns an error wrapping domain.ErrInvalidTransition if the move is not allowed.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state
	if !CanTransition(oldState, newState) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, oldState, newState)
	}
	l.state = newState
	l.epoch++
	l.reason = reason
	if newState != StateError {
		l.fault = nil
	}
	l.mu.Unlock()

	l.emit(oldState, newState, reason)
	return nil
}

// Fail moves a Running or Stopping pipeline into StateError with err as the
// reason. It reports whether the transition happened; a fault observed in any
// other state is only logged.
func (l *Lifecycle) Fail(err error) bool {
	l.mu.Lock()
	oldState := l.state
	if !CanTransition(oldState, StateError) {
		l.mu.Unlock()
		l.logger.Warn("fault outside active acquisition",
			log.String("state", oldState.String()),
			log.Err(err),
		)
		return false
	}
	l.state = StateError
	l.epoch++
	l.reason = err.Error()
	l.fault = err
	l.mu.Unlock()

	l.emit(oldState, StateError, err.Error())
	return true
}

func (l *Lifecycle) emit(oldState, newState State, reason string) {
	// Emit event outside of lock
	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	l.logger.Info("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
}

// CanStart returns true if Start can be called.
func (l *Lifecycle) CanStart() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateIdle || l.state == StateStopped
}

// CanStop returns true if Stop can be called.
func (l *Lifecycle) CanStop() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateRunning
}

// Active reports whether acquisition is Running or Stopping.
func (l *Lifecycle) Active() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateRunning || l.state == StateStopping
}

// AddWorker increments the worker count.
func (l *Lifecycle) AddWorker() {
	l.wg.Add(1)
}

// WorkerDone decrements the worker count.
func (l *Lifecycle) WorkerDone() {
	l.wg.Done()
}

// WaitWithTimeout waits for all workers to finish with a timeout.
// Returns domain.ErrShutdownTimeout if the timeout expires.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, forcing exit",
			log.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}

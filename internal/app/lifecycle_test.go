package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/pkg/log"
)

// mockEmitter tracks state change events for testing.
type mockEmitter struct {
	mu     sync.Mutex
	events []stateChangeEvent
}

type stateChangeEvent struct {
	previous State
	current  State
	reason   string
}

func (m *mockEmitter) OnStateChange(previous, current State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{previous, current, reason})
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

func newTestLifecycle(emitter EventEmitter) *Lifecycle {
	return NewLifecycle(log.NewNoopLogger(), emitter)
}

func TestNewLifecycle(t *testing.T) {
	l := newTestLifecycle(nil)

	if l == nil {
		t.Fatal("NewLifecycle returned nil")
	}
	if l.State() != StateIdle {
		t.Errorf("initial state = %v, want StateIdle", l.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateStopped, "Stopped"},
		{StateError, "Error"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		got := tt.state.String()
		if got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestLifecycle_TransitionTo_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"idle to running", StateIdle, StateRunning},
		{"running to stopping", StateRunning, StateStopping},
		{"running to error", StateRunning, StateError},
		{"stopping to stopped", StateStopping, StateStopped},
		{"stopping to error", StateStopping, StateError},
		{"stopped to running", StateStopped, StateRunning},
		{"stopped to idle", StateStopped, StateIdle},
		{"error to idle", StateError, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLifecycle(nil)
			l.state = tt.from

			if err := l.TransitionTo(tt.to, "test"); err != nil {
				t.Fatalf("TransitionTo() error = %v", err)
			}
			if l.State() != tt.to {
				t.Errorf("state = %v after transition, want %v", l.State(), tt.to)
			}
		})
	}
}

func TestLifecycle_TransitionTo_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"idle to stopping", StateIdle, StateStopping},
		{"idle to stopped", StateIdle, StateStopped},
		{"running to stopped", StateRunning, StateStopped},
		{"running to idle", StateRunning, StateIdle},
		{"stopping to running", StateStopping, StateRunning},
		{"stopped to stopping", StateStopped, StateStopping},
		{"error to running", StateError, StateRunning},
		{"error to stopped", StateError, StateStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLifecycle(nil)
			l.state = tt.from
			_, epoch := l.Snapshot()

			err := l.TransitionTo(tt.to, "test")

			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("TransitionTo() error = %v, want ErrInvalidTransition", err)
			}
			state, after := l.Snapshot()
			if state != tt.from {
				t.Errorf("state changed to %v on invalid transition, want %v", state, tt.from)
			}
			if after != epoch {
				t.Errorf("epoch changed on invalid transition: %d -> %d", epoch, after)
			}
		})
	}
}

func TestLifecycle_TransitionTo_EmitsEvents(t *testing.T) {
	emitter := &mockEmitter{}
	l := newTestLifecycle(emitter)

	_ = l.TransitionTo(StateRunning, "start test")
	_ = l.TransitionTo(StateStopping, "stop test")

	events := emitter.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	if events[0].previous != StateIdle || events[0].current != StateRunning {
		t.Errorf("event 0: got %v->%v, want Idle->Running", events[0].previous, events[0].current)
	}
	if events[1].previous != StateRunning || events[1].current != StateStopping {
		t.Errorf("event 1: got %v->%v, want Running->Stopping", events[1].previous, events[1].current)
	}
	if events[1].reason != "stop test" {
		t.Errorf("event 1 reason = %q", events[1].reason)
	}
}

func TestLifecycle_EpochDistinguishesStoppingPhases(t *testing.T) {
	l := newTestLifecycle(nil)

	_ = l.TransitionTo(StateRunning, "")
	_ = l.TransitionTo(StateStopping, "")
	_, first := l.Snapshot()
	_ = l.TransitionTo(StateStopped, "")
	_ = l.TransitionTo(StateRunning, "")
	_ = l.TransitionTo(StateStopping, "")
	_, second := l.Snapshot()

	if first == second {
		t.Errorf("two Stopping phases share epoch %d", first)
	}
}

func TestLifecycle_Fail(t *testing.T) {
	boom := errors.New("port vanished")

	t.Run("from running", func(t *testing.T) {
		l := newTestLifecycle(nil)
		_ = l.TransitionTo(StateRunning, "")

		if !l.Fail(boom) {
			t.Fatal("Fail() = false, want true")
		}
		if l.State() != StateError {
			t.Errorf("state = %v, want Error", l.State())
		}
		if !errors.Is(l.Fault(), boom) {
			t.Errorf("Fault() = %v, want %v", l.Fault(), boom)
		}
		if l.Reason() != boom.Error() {
			t.Errorf("Reason() = %q", l.Reason())
		}
	})

	t.Run("from idle is ignored", func(t *testing.T) {
		l := newTestLifecycle(nil)
		if l.Fail(boom) {
			t.Fatal("Fail() = true from Idle")
		}
		if l.State() != StateIdle {
			t.Errorf("state = %v, want Idle", l.State())
		}
	})

	t.Run("reset clears fault", func(t *testing.T) {
		l := newTestLifecycle(nil)
		_ = l.TransitionTo(StateRunning, "")
		l.Fail(boom)
		_ = l.TransitionTo(StateIdle, "reconnect")
		if l.Fault() != nil {
			t.Errorf("Fault() = %v after reset, want nil", l.Fault())
		}
	})
}

func TestLifecycle_CanStart(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateIdle, true},
		{StateRunning, false},
		{StateStopping, false},
		{StateStopped, true},
		{StateError, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			l := newTestLifecycle(nil)
			l.state = tt.state

			if got := l.CanStart(); got != tt.want {
				t.Errorf("CanStart() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLifecycle_CanStop(t *testing.T) {
	tests := []struct {
		state  State
		want   bool
		active bool
	}{
		{StateIdle, false, false},
		{StateRunning, true, true},
		{StateStopping, false, true},
		{StateStopped, false, false},
		{StateError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			l := newTestLifecycle(nil)
			l.state = tt.state

			if got := l.CanStop(); got != tt.want {
				t.Errorf("CanStop() = %v, want %v", got, tt.want)
			}
			if got := l.Active(); got != tt.active {
				t.Errorf("Active() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestLifecycle_WaitWithTimeout_Success(t *testing.T) {
	l := newTestLifecycle(nil)

	l.AddWorker()

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.WorkerDone()
	}()

	if err := l.WaitWithTimeout(time.Second); err != nil {
		t.Errorf("WaitWithTimeout() = %v, want nil", err)
	}
}

func TestLifecycle_WaitWithTimeout_Timeout(t *testing.T) {
	l := newTestLifecycle(nil)

	l.AddWorker()
	// Never call WorkerDone

	err := l.WaitWithTimeout(10 * time.Millisecond)
	if err != domain.ErrShutdownTimeout {
		t.Errorf("WaitWithTimeout() = %v, want ErrShutdownTimeout", err)
	}

	// Clean up
	l.WorkerDone()
}

func TestLifecycle_Concurrency(t *testing.T) {
	l := newTestLifecycle(nil)

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.State()
				_, _ = l.Snapshot()
				_ = l.CanStart()
				_ = l.CanStop()
			}
		}()
	}

	// Concurrent transitions (some will fail, which is expected)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.TransitionTo(StateRunning, "test")
			_ = l.TransitionTo(StateStopping, "test")
			_ = l.TransitionTo(StateStopped, "test")
		}()
	}

	wg.Wait()
}

package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/pkg/log"
)

type acquisitionHarness struct {
	conn   *fakeConn
	coord  *fakeCoord
	queue  *SampleQueue
	events *recorder
	acq    *Acquisition
	result chan error
	cancel context.CancelFunc
}

func startAcquisition(t *testing.T) *acquisitionHarness {
	t.Helper()
	h := &acquisitionHarness{
		conn:   &fakeConn{},
		coord:  newFakeCoord(),
		queue:  NewSampleQueue(100),
		events: &recorder{},
		result: make(chan error, 1),
	}
	cfg := AcquisitionConfig{
		Calibration:    DefaultCalibration(),
		Precision:      3,
		IdleInterval:   10 * time.Millisecond,
		EnqueueTimeout: 50 * time.Millisecond,
	}
	h.acq = NewAcquisition(cfg, h.conn, h.queue, h.coord, h.events, log.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.result <- h.acq.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestAcquisition_DecodesWhileRunning(t *testing.T) {
	h := startAcquisition(t)
	h.conn.push("2047\n", "garbage\n", "4095\n")

	if err := h.coord.lc.TransitionTo(StateRunning, "start"); err != nil {
		t.Fatal(err)
	}
	h.acq.Wake()

	waitFor(t, "two readings", func() bool { return h.queue.Len() == 2 })

	got := h.queue.DrainAll()
	if FormatVolts(got[0].Volts, 3) != "0.000" || FormatVolts(got[1].Volts, 3) != "2.000" {
		t.Errorf("readings = %v, %v", got[0].Volts, got[1].Volts)
	}

	if errs := h.events.Kind(domain.EventDecodeError); len(errs) != 1 {
		t.Errorf("decode errors = %d, want 1", len(errs))
	} else if errs[0].Message != `Invalid data received: "garbage\n"` {
		t.Errorf("decode error message = %q", errs[0].Message)
	}

	samples := h.events.Kind(domain.EventSample)
	if len(samples) != 2 || samples[1].Message != "Voltage = 2.000 V" {
		t.Errorf("sample events = %+v", samples)
	}

	decoded, rejected := h.acq.Stats()
	if decoded != 2 || rejected != 1 {
		t.Errorf("Stats() = %d, %d; want 2, 1", decoded, rejected)
	}
}

func TestAcquisition_IdleDoesNotRead(t *testing.T) {
	h := startAcquisition(t)
	h.conn.push("100\n")

	time.Sleep(30 * time.Millisecond)
	if h.queue.Len() != 0 {
		t.Fatalf("queue has %d readings while Idle", h.queue.Len())
	}
}

func TestAcquisition_FinalReadOnStop(t *testing.T) {
	h := startAcquisition(t)
	_ = h.coord.lc.TransitionTo(StateRunning, "start")
	h.acq.Wake()

	// Bytes still sitting in the driver buffer, ending in a partial frame.
	// ReadLine never serves pending bytes; only the final read sees them.
	h.conn.mu.Lock()
	h.conn.pending = []byte("0\n4095\n40")
	h.conn.mu.Unlock()
	_ = h.coord.lc.TransitionTo(StateStopping, "stop")
	_, epoch := h.coord.lc.Snapshot()
	h.acq.Wake()

	select {
	case got := <-h.coord.drained:
		if got != epoch {
			t.Errorf("drained epoch = %d, want %d", got, epoch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition never reported drained")
	}

	out := h.queue.DrainAll()
	if len(out) != 2 {
		t.Fatalf("final read enqueued %d readings, want 2", len(out))
	}
	if FormatVolts(out[0].Volts, 3) != "-2.000" {
		t.Errorf("first reading = %v", out[0].Volts)
	}

	if samples := h.events.Kind(domain.EventSample); len(samples) != 0 {
		t.Errorf("final read displayed %d samples, want none", len(samples))
	}
	if errs := h.events.Kind(domain.EventDecodeError); len(errs) != 1 {
		t.Errorf("fragment notices = %d, want 1", len(errs))
	}
	if progress := h.events.Kind(domain.EventProgress); len(progress) == 0 {
		t.Error("no stop notice emitted")
	}

	// Drained is reported once per Stopping phase.
	select {
	case e := <-h.coord.drained:
		t.Errorf("second drain report for epoch %d", e)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestAcquisition_ClosedQueueReportedOnce(t *testing.T) {
	h := startAcquisition(t)
	h.queue.Close()
	h.conn.push("1\n", "2\n", "3\n")

	_ = h.coord.lc.TransitionTo(StateRunning, "start")
	h.acq.Wake()

	waitFor(t, "lines consumed", func() bool {
		h.conn.mu.Lock()
		defer h.conn.mu.Unlock()
		return len(h.conn.lines) == 0
	})

	h.conn.mu.Lock()
	h.conn.pending = []byte("4\n5\n")
	h.conn.mu.Unlock()
	_ = h.coord.lc.TransitionTo(StateStopping, "stop")
	h.acq.Wake()

	select {
	case <-h.coord.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition never reported drained")
	}
	if n := len(h.events.Kind(domain.EventPersistenceError)); n != 1 {
		t.Fatalf("persistence notices = %d, want 1 for five dropped readings", n)
	}

	// Once readings flow again a later closure is announced anew.
	h.queue.Reopen()
	_ = h.coord.lc.TransitionTo(StateStopped, "drained")
	_ = h.coord.lc.TransitionTo(StateRunning, "start")
	h.conn.push("6\n")
	h.acq.Wake()
	waitFor(t, "reading enqueued", func() bool { return h.queue.Len() == 1 })

	h.queue.Close()
	h.conn.push("7\n", "8\n")
	waitFor(t, "second persistence notice", func() bool {
		return len(h.events.Kind(domain.EventPersistenceError)) == 2
	})
	time.Sleep(30 * time.Millisecond)
	if n := len(h.events.Kind(domain.EventPersistenceError)); n != 2 {
		t.Errorf("persistence notices = %d, want 2", n)
	}
}

func TestAcquisition_TransportFault(t *testing.T) {
	h := startAcquisition(t)
	h.conn.mu.Lock()
	h.conn.readErr = errors.New("device disconnected")
	h.conn.mu.Unlock()

	_ = h.coord.lc.TransitionTo(StateRunning, "start")
	h.acq.Wake()

	var err error
	select {
	case err = <-h.result:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on transport error")
	}

	var terr *domain.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Run() = %v, want TransportError", err)
	}
	if terr.Port != "/dev/ttyACM0" || terr.Op != "read" {
		t.Errorf("TransportError = %+v", terr)
	}
	if h.coord.lc.State() != StateError {
		t.Errorf("state = %v, want Error", h.coord.lc.State())
	}
	if len(h.coord.faults) != 1 {
		t.Errorf("faults reported = %d, want 1", len(h.coord.faults))
	}
}

func TestAcquisition_ClosedQueueIsReported(t *testing.T) {
	h := startAcquisition(t)
	h.queue.Close()
	h.conn.push("1\n")

	_ = h.coord.lc.TransitionTo(StateRunning, "start")
	h.acq.Wake()

	waitFor(t, "persistence notice", func() bool {
		return len(h.events.Kind(domain.EventPersistenceError)) == 1
	})
	if decoded, _ := h.acq.Stats(); decoded != 0 {
		t.Errorf("decoded = %d, want 0", decoded)
	}
}

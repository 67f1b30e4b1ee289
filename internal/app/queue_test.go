package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/voltship/internal/domain"
)

func reading(v float64) domain.VoltageReading {
	return domain.VoltageReading{Volts: v, Timestamp: time.Now()}
}

func TestSampleQueue_PreservesOrder(t *testing.T) {
	q := NewSampleQueue(4)

	// Wrap the ring a few times.
	next := 0.0
	var got []float64
	for round := 0; round < 5; round++ {
		for i := 0; i < 3; i++ {
			if err := q.Enqueue(reading(next), time.Second); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			next++
		}
		for _, r := range q.DequeueBatch(2) {
			got = append(got, r.Volts)
		}
		for _, r := range q.DrainAll() {
			got = append(got, r.Volts)
		}
	}

	if len(got) != int(next) {
		t.Fatalf("got %d readings, want %d", len(got), int(next))
	}
	for i, v := range got {
		if v != float64(i) {
			t.Fatalf("reading %d = %v, out of order", i, v)
		}
	}
}

func TestSampleQueue_DrainAllEmptyIsNoop(t *testing.T) {
	q := NewSampleQueue(2)

	if out := q.DrainAll(); out != nil {
		t.Errorf("DrainAll() on empty = %v, want nil", out)
	}
	_ = q.Enqueue(reading(1), time.Second)
	if out := q.DrainAll(); len(out) != 1 {
		t.Fatalf("DrainAll() = %d readings, want 1", len(out))
	}
	if out := q.DrainAll(); out != nil {
		t.Errorf("second DrainAll() = %v, want nil", out)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestSampleQueue_FullRequestsFlush(t *testing.T) {
	q := NewSampleQueue(2)
	_ = q.Enqueue(reading(1), time.Second)
	_ = q.Enqueue(reading(2), time.Second)

	err := q.Enqueue(reading(3), 20*time.Millisecond)
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("Enqueue on full queue = %v, want ErrQueueFull", err)
	}

	select {
	case <-q.FlushRequested():
	default:
		t.Error("full queue did not request a flush")
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestSampleQueue_FullWaitsForConsumer(t *testing.T) {
	q := NewSampleQueue(1)
	_ = q.Enqueue(reading(1), time.Second)

	go func() {
		<-q.FlushRequested()
		q.DrainAll()
	}()

	if err := q.Enqueue(reading(2), time.Second); err != nil {
		t.Fatalf("Enqueue after consumer freed space = %v", err)
	}
	out := q.DrainAll()
	if len(out) != 1 || out[0].Volts != 2 {
		t.Errorf("queue = %v, want [2]", out)
	}
}

func TestSampleQueue_Close(t *testing.T) {
	q := NewSampleQueue(1)
	_ = q.Enqueue(reading(1), time.Second)

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(reading(2), 5*time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrQueueClosed) {
			t.Errorf("blocked Enqueue after Close = %v, want ErrQueueClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not release the blocked producer")
	}

	// Queued readings survive Close.
	if out := q.DrainAll(); len(out) != 1 {
		t.Errorf("DrainAll after Close = %d readings, want 1", len(out))
	}

	q.Reopen()
	if err := q.Enqueue(reading(3), time.Second); err != nil {
		t.Errorf("Enqueue after Reopen = %v", err)
	}
}

func TestSampleQueue_ConcurrentProducerConsumer(t *testing.T) {
	const total = 1000
	q := NewSampleQueue(16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for {
				err := q.Enqueue(reading(float64(i)), 50*time.Millisecond)
				if err == nil {
					break
				}
				if !errors.Is(err, domain.ErrQueueFull) {
					t.Errorf("Enqueue: %v", err)
					return
				}
			}
		}
	}()

	var got []float64
	deadline := time.After(5 * time.Second)
	for len(got) < total {
		if q.Len() == 0 {
			select {
			case <-q.Ready():
			case <-time.After(10 * time.Millisecond):
			case <-deadline:
				t.Fatalf("received %d of %d readings", len(got), total)
			}
		}
		for _, r := range q.DequeueBatch(7) {
			got = append(got, r.Volts)
		}
	}
	wg.Wait()

	for i, v := range got {
		if v != float64(i) {
			t.Fatalf("reading %d = %v, out of order", i, v)
		}
	}
}

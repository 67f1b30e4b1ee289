package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_GrowsToMax(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 500*time.Millisecond)

	want := []time.Duration{100, 200, 400, 500, 500}
	for i, w := range want {
		w *= time.Millisecond
		if got := b.Current(); got != w {
			t.Fatalf("step %d: Current() = %v, want %v", i, got, w)
		}
		d := b.Next()
		if d < w*8/10 || d > w*12/10 {
			t.Errorf("step %d: Next() = %v, outside ±20%% of %v", i, d, w)
		}
	}

	b.Reset()
	if got := b.Current(); got != 100*time.Millisecond {
		t.Errorf("Current() after Reset = %v", got)
	}
}

func TestBackoff_WaitCanceled(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}

package clock

import (
	"context"
	"testing"
	"time"
)

func blockUntil(t *testing.T, f *Fake, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.BlockUntil(ctx, n); err != nil {
		t.Fatalf("waiting for %d sleepers: %v", n, err)
	}
}

func TestFakeSleepWakesOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	f := NewFake(start)

	done := make(chan error, 1)
	go func() { done <- f.Sleep(context.Background(), 2*time.Second) }()

	blockUntil(t, f, 1)

	f.Advance(time.Second)
	select {
	case <-done:
		t.Fatalf("sleeper woke early")
	case <-time.After(20 * time.Millisecond):
	}

	f.Advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("sleeper did not wake")
	}

	if got := f.Now(); !got.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("now = %v, want %v", got, start.Add(2*time.Second))
	}
}

func TestFakeSleepHonorsContext(t *testing.T) {
	f := NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Sleep(ctx, time.Hour); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestFakeCancelledSleeperIsForgotten(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.Sleep(ctx, time.Hour) }()
	blockUntil(t, f, 1)

	cancel()
	if err := <-done; err == nil {
		t.Fatalf("expected context error")
	}
	blockUntil(t, f, 0)
}

func TestFakeAutoAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	f := NewFake(start)
	f.SetAutoAdvance(true)

	if err := f.Sleep(context.Background(), 1500*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.Now().Sub(start); got != 1500*time.Millisecond {
		t.Fatalf("elapsed = %v, want 1.5s", got)
	}
}

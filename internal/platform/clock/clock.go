// Package clock abstracts wall-clock time so caches, throttles and replay
// sources can be driven deterministically in tests.
package clock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

var wall = clockwork.NewRealClock()

func (Real) Now() time.Time { return wall.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, wall, d)
}

func sleep(ctx context.Context, c clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := c.NewTimer(d)
	// Stop also unregisters the timer from a fake clock.
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

// Fake is a manually advanced clock. Sleepers wake when Advance moves the
// clock past their deadline.
type Fake struct {
	fc *clockwork.FakeClock
	// auto makes Sleep advance the clock itself instead of blocking.
	auto atomic.Bool
}

func NewFake(start time.Time) *Fake {
	return &Fake{fc: clockwork.NewFakeClockAt(start)}
}

// SetAutoAdvance switches Sleep between blocking and advancing the clock.
func (f *Fake) SetAutoAdvance(on bool) { f.auto.Store(on) }

func (f *Fake) Now() time.Time { return f.fc.Now() }

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if d > 0 && f.auto.Load() {
		f.fc.Advance(d)
		return ctx.Err()
	}
	return sleep(ctx, f.fc, d)
}

// Advance moves the clock forward and wakes due sleepers.
func (f *Fake) Advance(d time.Duration) { f.fc.Advance(d) }

// BlockUntil waits until n sleepers are blocked on the clock.
func (f *Fake) BlockUntil(ctx context.Context, n int) error {
	return f.fc.BlockUntilContext(ctx, n)
}

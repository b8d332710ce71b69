package location

import (
	"context"
	"errors"
	"sync/atomic"

	"driver-nav-service/internal/domain"
)

var (
	ErrSourceClosed = errors.New("location source closed")
	ErrWatched      = errors.New("location source already watched")
)

// ChannelSource is a LocationSource fed by Push, for embedding hosts that
// already own a device stream (and for tests).
type ChannelSource struct {
	ch      chan domain.PositionSample
	done    chan struct{}
	watched atomic.Bool
}

func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		ch:   make(chan domain.PositionSample, buffer),
		done: make(chan struct{}),
	}
}

func (c *ChannelSource) Push(ctx context.Context, p domain.Position) error {
	return c.send(ctx, domain.PositionSample{Position: p})
}

// Fail reports a location error such as a revoked permission.
func (c *ChannelSource) Fail(ctx context.Context, err error) error {
	return c.send(ctx, domain.PositionSample{Err: err})
}

func (c *ChannelSource) send(ctx context.Context, s domain.PositionSample) error {
	select {
	case c.ch <- s:
		return nil
	case <-c.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch forwards pushed samples until ctx ends; the source then refuses
// further pushes. Only one watcher is supported; later calls get ErrWatched.
func (c *ChannelSource) Watch(ctx context.Context) (<-chan domain.PositionSample, error) {
	if !c.watched.CompareAndSwap(false, true) {
		return nil, ErrWatched
	}
	out := make(chan domain.PositionSample)
	go func() {
		defer close(out)
		defer close(c.done)
		for {
			select {
			case s := <-c.ch:
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

package render

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/navigation"
	"driver-nav-service/internal/platform/clock"
	"driver-nav-service/internal/platform/logging"
	"driver-nav-service/internal/ports"
)

// Surface is whatever draws scenes: a window, a websocket, a test recorder.
type Surface interface {
	Draw(ctx context.Context, sc Scene) error
	Close() error
}

// StateSource is the part of the navigator a renderer reads.
type StateSource interface {
	Snapshot() navigation.State
	Subscribe() *navigation.Subscription
}

type Options struct {
	// FrameInterval paces the pulse animation. Zero disables it.
	FrameInterval time.Duration
	// RoadRadiusDeg is the half-size of the road query around the driver.
	RoadRadiusDeg float64
	PulseStep     float64
}

func DefaultOptions() Options {
	return Options{
		FrameInterval: 100 * time.Millisecond,
		RoadRadiusDeg: 0.02,
		PulseStep:     0.03,
	}
}

// Renderer redraws its Surface whenever the navigation state or the road
// data changes, and on every animation frame.
type Renderer struct {
	state   StateSource
	roads   ports.RoadsNearer
	surface Surface
	clock   clock.Clock
	log     *slog.Logger
	opts    Options

	mu        sync.Mutex
	mapData   domain.MapData
	zoom      float64
	pulse     float64
	last      Scene
	drawn     bool
	started   bool
	closed    bool
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup

	// drawMu serialises frames so the surface sees them in order.
	drawMu  sync.Mutex
	refresh chan domain.LatLng
}

func NewRenderer(state StateSource, roads ports.RoadsNearer, surface Surface, clk clock.Clock, lg *slog.Logger, opts Options) *Renderer {
	if clk == nil {
		clk = clock.Real{}
	}
	if opts.RoadRadiusDeg <= 0 {
		opts.RoadRadiusDeg = DefaultOptions().RoadRadiusDeg
	}
	if opts.PulseStep == 0 {
		opts.PulseStep = DefaultOptions().PulseStep
	}
	return &Renderer{
		state:   state,
		roads:   roads,
		surface: surface,
		clock:   clk,
		log:     logging.OrDiscard(lg).With(slog.String("component", "render")),
		opts:    opts,
		zoom:    DefaultZoom,
		refresh: make(chan domain.LatLng, 1),
	}
}

// Start launches the snapshot listener, road refresher and animation loop.
// They run until Close or until ctx ends. A closed renderer cannot start.
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("renderer: closed")
	}
	if r.started {
		return errors.New("renderer: already started")
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	sub := r.state.Subscribe()

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		defer sub.Unsubscribe()
		r.listen(ctx, sub)
	}()
	go func() {
		defer r.wg.Done()
		r.refreshRoads(ctx)
	}()
	if r.opts.FrameInterval > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.animate(ctx)
		}()
	}
	return nil
}

// Close stops every loop and releases the surface. It is safe to call more
// than once and before Start. Surface errors are logged, not returned.
func (r *Renderer) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		cancel := r.cancel
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		r.wg.Wait()

		if r.surface != nil {
			if err := r.surface.Close(); err != nil {
				r.log.Warn("surface close failed", slog.Any("err", err))
			}
		}
	})
}

// Scene returns the most recently drawn scene.
func (r *Renderer) Scene() (Scene, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.drawn
}

// SetZoom changes the zoom used when the camera has nothing to fit.
func (r *Renderer) SetZoom(z float64) float64 {
	r.mu.Lock()
	r.zoom = clampZoom(z, MinZoom, MaxZoom)
	z = r.zoom
	r.mu.Unlock()
	return z
}

func (r *Renderer) listen(ctx context.Context, sub *navigation.Subscription) {
	for {
		r.requestRoads(r.state.Snapshot())
		r.draw(ctx)

		select {
		case <-ctx.Done():
			return
		case <-sub.C:
		}
	}
}

// requestRoads queues a road refresh around the state's centre, replacing
// any refresh that is still pending.
func (r *Renderer) requestRoads(s navigation.State) {
	c, ok := roadCenter(s)
	if !ok {
		return
	}
	select {
	case <-r.refresh:
	default:
	}
	select {
	case r.refresh <- c:
	default:
	}
}

// roadCenter is the driver's position, or the pickup before the first fix.
func roadCenter(s navigation.State) (domain.LatLng, bool) {
	if s.Position != nil {
		return s.Position.LatLng(), true
	}
	if s.Task != nil && s.Task.Pickup != nil {
		return s.Task.Pickup.LatLng(), true
	}
	return domain.LatLng{}, false
}

func (r *Renderer) refreshRoads(ctx context.Context) {
	if r.roads == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.refresh:
			data, err := r.roads.RoadsNear(ctx, c.Lat, c.Lng, r.opts.RoadRadiusDeg)
			if err != nil {
				if ctx.Err() == nil {
					r.log.Debug("road refresh failed", slog.Any("err", err))
				}
				continue
			}
			r.mu.Lock()
			changed := !data.FetchedAt.Equal(r.mapData.FetchedAt) || len(data.Roads) != len(r.mapData.Roads) || data.Stale != r.mapData.Stale
			r.mapData = data
			r.mu.Unlock()
			if changed {
				r.draw(ctx)
			}
		}
	}
}

func (r *Renderer) animate(ctx context.Context) {
	for {
		if err := r.clock.Sleep(ctx, r.opts.FrameInterval); err != nil {
			return
		}
		r.mu.Lock()
		r.pulse += r.opts.PulseStep
		r.mu.Unlock()
		r.draw(ctx)
	}
}

func (r *Renderer) draw(ctx context.Context) {
	r.drawMu.Lock()
	defer r.drawMu.Unlock()

	snap := r.state.Snapshot()

	r.mu.Lock()
	in := SceneInput{State: snap, Roads: r.mapData, Zoom: r.zoom, Pulse: r.pulse}
	r.mu.Unlock()

	sc := BuildScene(in)

	r.mu.Lock()
	r.last, r.drawn = sc, true
	r.mu.Unlock()

	if r.surface == nil || ctx.Err() != nil {
		return
	}
	if err := r.surface.Draw(ctx, sc); err != nil {
		r.log.Warn("draw failed", slog.Any("err", err))
	}
}

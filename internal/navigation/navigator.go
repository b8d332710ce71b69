package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/platform/clock"
	"driver-nav-service/internal/platform/logging"
	"driver-nav-service/internal/ports"

	"github.com/brunoga/deep"
)

var ErrStopped = errors.New("navigator stopped")

type request struct {
	ev Event
	// reply is nil for completions posted by the navigator's own fetches.
	reply chan error
}

// Navigator owns a State on one goroutine. Events are applied in the order
// they arrive; after each applied event the due effects are started and a
// new snapshot is published.
type Navigator struct {
	cfg    Config
	routes ports.RouteProvider
	clock  clock.Clock
	log    *slog.Logger

	requests chan request
	done     chan struct{}
	started  atomic.Bool

	mu        sync.RWMutex
	published State
	subs      map[*Subscription]struct{}
	hooks     []func(Transition)

	// Owned by the Run goroutine.
	state    State
	inflight map[FetchKey]context.CancelFunc
}

func New(routes ports.RouteProvider, clk clock.Clock, lg *slog.Logger, cfg Config) *Navigator {
	if clk == nil {
		clk = clock.Real{}
	}
	s := Initial()
	return &Navigator{
		cfg:       cfg.withDefaults(),
		routes:    routes,
		clock:     clk,
		log:       logging.OrDiscard(lg),
		requests:  make(chan request, 64),
		done:      make(chan struct{}),
		published: s,
		subs:      make(map[*Subscription]struct{}),
		state:     s,
		inflight:  make(map[FetchKey]context.CancelFunc),
	}
}

func (n *Navigator) Config() Config { return n.cfg }

// Run processes events until ctx is done. It may be called once.
func (n *Navigator) Run(ctx context.Context) error {
	if !n.started.CompareAndSwap(false, true) {
		return errors.New("navigator: Run called twice")
	}
	defer close(n.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			for k, c := range n.inflight {
				c()
				delete(n.inflight, k)
			}
			return nil
		case r := <-n.requests:
			err := n.handle(ctx, r.ev)
			if r.reply != nil {
				r.reply <- err
			}
		}
	}
}

// Dispatch submits ev and waits for the result of applying it.
func (n *Navigator) Dispatch(ctx context.Context, ev Event) error {
	r := request{ev: ev, reply: make(chan error, 1)}
	select {
	case n.requests <- r:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}

	select {
	case err := <-r.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}
}

func (n *Navigator) post(ev Event) {
	select {
	case n.requests <- request{ev: ev}:
	case <-n.done:
	}
}

// Snapshot returns a deep copy of the latest published state.
func (n *Navigator) Snapshot() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return deep.MustCopy(n.published)
}

func (n *Navigator) handle(ctx context.Context, ev Event) error {
	prev := n.state
	next, err := Apply(prev, ev, n.cfg)
	if err != nil {
		lvl := slog.LevelInfo
		if errors.Is(err, ErrStaleFetch) {
			lvl = slog.LevelDebug
		}
		n.log.Log(ctx, lvl, "event rejected", slog.String("event", ev.eventName()), slog.Any("err", err))
		return err
	}
	n.state = next

	if t := next.LastTransition; t != nil && (prev.LastTransition == nil || t.Seq != prev.LastTransition.Seq) {
		n.log.Info("phase changed",
			slog.String("from", string(t.From)),
			slog.String("to", string(t.To)),
			slog.String("cause", t.Cause),
			slog.String("task_id", t.TaskID))

		n.mu.RLock()
		hooks := n.hooks
		n.mu.RUnlock()
		for _, h := range hooks {
			h(*t)
		}
	}

	n.cancelSuperseded()
	n.runEffects(ctx)
	n.publish()
	return nil
}

// cancelSuperseded stops fetches whose key the state no longer waits on.
func (n *Navigator) cancelSuperseded() {
	for k, cancel := range n.inflight {
		if n.state.RouteFetch != nil && *n.state.RouteFetch == k {
			continue
		}
		cancel()
		delete(n.inflight, k)
	}
}

func (n *Navigator) runEffects(ctx context.Context) {
	for _, eff := range Effects(n.state, n.clock.Now()) {
		switch e := eff.(type) {
		case FetchRoute:
			next, err := Apply(n.state, routeRequested{Key: e.Key}, n.cfg)
			if err != nil {
				n.log.Warn("route request refused", slog.Any("err", err))
				continue
			}
			n.state = next
			n.fetchRoute(ctx, e)
		}
	}
}

func (n *Navigator) fetchRoute(ctx context.Context, e FetchRoute) {
	fctx, cancel := context.WithCancel(ctx)
	n.inflight[e.Key] = cancel

	n.log.Debug("fetching route",
		slog.String("task_id", e.Key.TaskID),
		slog.String("phase", string(e.Key.Phase)),
		slog.Uint64("epoch", e.Key.Epoch))

	go func() {
		defer cancel()

		route, err := n.routes.GetRoute(fctx, e.From, e.To)
		if err == nil && len(route.Steps) == 0 {
			err = fmt.Errorf("%w: route has no steps", domain.ErrNoRoute)
		}
		if fctx.Err() != nil {
			// Superseded or shutting down; the state no longer wants this.
			return
		}
		if err != nil {
			n.log.Warn("route fetch failed",
				slog.String("task_id", e.Key.TaskID),
				slog.String("phase", string(e.Key.Phase)),
				slog.Any("err", err))
			n.post(RouteFailed{
				Key:     e.Key,
				Err:     err.Error(),
				NoRoute: errors.Is(err, domain.ErrNoRoute),
				At:      n.clock.Now(),
			})
			return
		}
		n.post(RouteLoaded{Key: e.Key, Route: route})
	}()
}

func (n *Navigator) publish() {
	n.mu.Lock()
	n.published = n.state
	subs := make([]*Subscription, 0, len(n.subs))
	for s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		select {
		case s.c <- struct{}{}:
		default:
		}
	}
}

// OnTransition registers fn to run on the navigator goroutine after every
// phase change, including ones in the same event as a step advance. fn must
// not block or call Dispatch.
func (n *Navigator) OnTransition(fn func(Transition)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hooks = append(n.hooks, fn)
}

// Subscription delivers a signal on C after state changes. Signals coalesce:
// a slow reader sees one pending signal, then reads the newest Snapshot.
type Subscription struct {
	C   <-chan struct{}
	c   chan struct{}
	nav *Navigator
}

func (n *Navigator) Subscribe() *Subscription {
	c := make(chan struct{}, 1)
	s := &Subscription{C: c, c: c, nav: n}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[s] = struct{}{}
	return s
}

func (s *Subscription) Unsubscribe() {
	s.nav.mu.Lock()
	defer s.nav.mu.Unlock()
	delete(s.nav.subs, s)
}

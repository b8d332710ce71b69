// Package mapdata serves road and place features around the driver from a
// grid-cell cache in front of a rate-limited map data provider.
package mapdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/geo"
	"driver-nav-service/internal/platform/clock"
	"driver-nav-service/internal/platform/logging"
	"driver-nav-service/internal/ports"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

type Options struct {
	CellSizeDeg   float64
	RadiusDeg     float64
	TTL           time.Duration
	MovementGateM float64
	MinInterval   time.Duration
	// MaxBackoff caps the query interval after consecutive failures.
	MaxBackoff    time.Duration
	Classes       []string
	IncludePlaces bool
	// Retention is how long an expired cell is kept as a fallback for failed fetches.
	Retention time.Duration
}

func DefaultOptions() Options {
	return Options{
		CellSizeDeg:   0.01,
		RadiusDeg:     0.015,
		TTL:           10 * time.Minute,
		MovementGateM: 500,
		MinInterval:   1500 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		Retention:     2 * time.Hour,
	}
}

// CellKey identifies a grid cell of CellSizeDeg degrees.
type CellKey struct {
	Lat, Lng int
}

func (k CellKey) String() string { return fmt.Sprintf("%d,%d", k.Lat, k.Lng) }

func cellFor(lat, lng, size float64) CellKey {
	return CellKey{Lat: int(math.Floor(lat / size)), Lng: int(math.Floor(lng / size))}
}

type Stats struct {
	Fetches   int64
	Failures  int64
	CellHits  int64
	GateHits  int64
	StoreHits int64
}

// Service implements ports.RoadsNearer. It is safe for concurrent use; all
// callers share one throttle.
type Service struct {
	provider ports.MapDataProvider
	store    ports.RoadCellStore
	clock    clock.Clock
	log      *slog.Logger
	opts     Options

	cells *expirable.LRU[CellKey, domain.MapData]
	group singleflight.Group

	mu         sync.Mutex
	lastCenter *domain.LatLng
	lastData   domain.MapData

	throttleMu sync.Mutex
	limiter    *rate.Limiter
	failures   int

	fetches, failed, cellHits, gateHits, storeHits atomic.Int64
}

// NewService builds the cache. store may be nil.
func NewService(provider ports.MapDataProvider, store ports.RoadCellStore, clk clock.Clock, lg *slog.Logger, opts Options) *Service {
	d := DefaultOptions()
	if opts.CellSizeDeg <= 0 {
		opts.CellSizeDeg = d.CellSizeDeg
	}
	if opts.RadiusDeg <= 0 {
		opts.RadiusDeg = d.RadiusDeg
	}
	if opts.TTL <= 0 {
		opts.TTL = d.TTL
	}
	if opts.MovementGateM <= 0 {
		opts.MovementGateM = d.MovementGateM
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = d.MinInterval
	}
	if opts.MaxBackoff < opts.MinInterval {
		opts.MaxBackoff = max(d.MaxBackoff, opts.MinInterval)
	}
	if opts.Retention < opts.TTL {
		opts.Retention = max(d.Retention, opts.TTL)
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &Service{
		provider: provider,
		store:    store,
		clock:    clk,
		log:      logging.OrDiscard(lg),
		opts:     opts,
		// Size 0: cells are bounded by where the driver travels, eviction is by age only.
		cells:   expirable.NewLRU[CellKey, domain.MapData](0, nil, opts.Retention),
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
	}
}

func (s *Service) Stats() Stats {
	return Stats{
		Fetches:   s.fetches.Load(),
		Failures:  s.failed.Load(),
		CellHits:  s.cellHits.Load(),
		GateHits:  s.gateHits.Load(),
		StoreHits: s.storeHits.Load(),
	}
}

func (s *Service) fresh(d domain.MapData, now time.Time) bool {
	return !d.FetchedAt.IsZero() && now.Sub(d.FetchedAt) < s.opts.TTL
}

// RoadsNear returns map data covering radiusDeg around (lat, lng).
// Lookup order: grid cell cache, movement gate on the last fetch, the
// persistent store, then a throttled fetch. A failed fetch yields the
// newest cached data for the cell (Stale set) or an empty result; only
// context errors are returned.
func (s *Service) RoadsNear(ctx context.Context, lat, lng, radiusDeg float64) (domain.MapData, error) {
	if err := ctx.Err(); err != nil {
		return domain.MapData{}, err
	}
	if radiusDeg <= 0 {
		radiusDeg = s.opts.RadiusDeg
	}

	key := cellFor(lat, lng, s.opts.CellSizeDeg)
	now := s.clock.Now()

	if d, ok := s.cells.Get(key); ok && s.fresh(d, now) {
		s.cellHits.Add(1)
		return d, nil
	}

	s.mu.Lock()
	if s.lastCenter != nil && s.fresh(s.lastData, now) &&
		geo.Haversine(lat, lng, s.lastCenter.Lat, s.lastCenter.Lng) < s.opts.MovementGateM {
		d := s.lastData
		s.mu.Unlock()
		s.gateHits.Add(1)
		return d, nil
	}
	s.mu.Unlock()

	if s.store != nil {
		d, ok, err := s.store.GetCell(ctx, key.String())
		if err != nil {
			s.log.Warn("map data store read failed", slog.String("cell", key.String()), slog.Any("err", err))
		} else if ok && s.fresh(d, now) {
			s.storeHits.Add(1)
			s.cells.Add(key, d)
			return d, nil
		}
	}

	ch := s.group.DoChan(key.String(), func() (any, error) {
		// Shared by every caller for this cell; no single caller may cancel it.
		return s.fetch(context.WithoutCancel(ctx), key, lat, lng, radiusDeg)
	})

	select {
	case <-ctx.Done():
		return domain.MapData{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.MapData{}, res.Err
		}
		return res.Val.(domain.MapData), nil
	}
}

func (s *Service) fetch(ctx context.Context, key CellKey, lat, lng, radiusDeg float64) (domain.MapData, error) {
	if err := s.wait(ctx); err != nil {
		return domain.MapData{}, err
	}

	s.fetches.Add(1)
	q := ports.AreaQuery{
		Bound: orb.Bound{
			Min: orb.Point{lng - radiusDeg, lat - radiusDeg},
			Max: orb.Point{lng + radiusDeg, lat + radiusDeg},
		},
		Classes:       s.opts.Classes,
		IncludePlaces: s.opts.IncludePlaces,
	}

	data, err := s.provider.FetchArea(ctx, q)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.MapData{}, err
		}
		s.failed.Add(1)
		s.backoff()
		s.log.Warn("map data fetch failed",
			slog.String("cell", key.String()),
			slog.Float64("lat", lat),
			slog.Float64("lng", lng),
			slog.Any("err", err))
		return s.fallback(ctx, key), nil
	}

	s.recovered()
	data.FetchedAt = s.clock.Now()
	data.Stale = false
	s.cells.Add(key, data)

	s.mu.Lock()
	s.lastCenter = &domain.LatLng{Lat: lat, Lng: lng}
	s.lastData = data
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.PutCell(ctx, key.String(), data); err != nil {
			s.log.Warn("map data store write failed", slog.String("cell", key.String()), slog.Any("err", err))
		}
	}

	return data, nil
}

// wait blocks until the shared limiter admits one more outbound query.
func (s *Service) wait(ctx context.Context) error {
	s.throttleMu.Lock()
	now := s.clock.Now()
	r := s.limiter.ReserveN(now, 1)
	s.throttleMu.Unlock()

	if !r.OK() {
		return errors.New("map data throttle: reservation refused")
	}
	if err := s.clock.Sleep(ctx, r.DelayFrom(now)); err != nil {
		s.throttleMu.Lock()
		r.CancelAt(s.clock.Now())
		s.throttleMu.Unlock()
		return err
	}
	return nil
}

func (s *Service) backoff() {
	s.throttleMu.Lock()
	defer s.throttleMu.Unlock()

	s.failures++
	interval := s.opts.MinInterval
	for i := 0; i < s.failures && interval < s.opts.MaxBackoff; i++ {
		interval *= 2
	}
	interval = min(interval, s.opts.MaxBackoff)
	s.limiter.SetLimitAt(s.clock.Now(), rate.Every(interval))
}

func (s *Service) recovered() {
	s.throttleMu.Lock()
	defer s.throttleMu.Unlock()

	if s.failures == 0 {
		return
	}
	s.failures = 0
	s.limiter.SetLimitAt(s.clock.Now(), rate.Every(s.opts.MinInterval))
}

func (s *Service) fallback(ctx context.Context, key CellKey) domain.MapData {
	if d, ok := s.cells.Peek(key); ok {
		d.Stale = true
		return d
	}
	if s.store != nil {
		if d, ok, err := s.store.GetCell(ctx, key.String()); err == nil && ok {
			d.Stale = true
			return d
		}
	}
	return domain.MapData{Roads: []domain.RoadFeature{}, Places: []domain.PlaceFeature{}, Stale: true}
}

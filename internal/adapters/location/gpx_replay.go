// Package location provides driver position sources: recorded GPX tracks,
// host-fed channels, and a heading-deriving wrapper.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/geo"
	"driver-nav-service/internal/platform/clock"
	"driver-nav-service/internal/platform/logging"

	"github.com/tkrajina/gpxgo/gpx"
)

var ErrEmptyTrack = errors.New("gpx track has no points")

type ReplayOptions struct {
	// Speed multiplies playback: 2 replays a ten minute track in five.
	Speed float64
	Loop  bool
	// Interval spaces points that carry no timestamps.
	Interval time.Duration
}

type trackPoint struct {
	lat, lng float64
	at       time.Time
}

// GPXReplay implements ports.LocationSource by replaying a recorded track,
// paced by the recorded timestamps.
type GPXReplay struct {
	points []trackPoint
	clock  clock.Clock
	opts   ReplayOptions
	log    *slog.Logger
}

func LoadGPXFile(path string, clk clock.Clock, lg *slog.Logger, opts ReplayOptions) (*GPXReplay, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("load gpx %q: %w", path, err)
	}
	return NewGPXReplay(g, clk, lg, opts)
}

func ParseGPX(data []byte, clk clock.Clock, lg *slog.Logger, opts ReplayOptions) (*GPXReplay, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse gpx: %w", err)
	}
	return NewGPXReplay(g, clk, lg, opts)
}

func NewGPXReplay(g *gpx.GPX, clk clock.Clock, lg *slog.Logger, opts ReplayOptions) (*GPXReplay, error) {
	var pts []trackPoint
	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				pts = append(pts, trackPoint{lat: p.Latitude, lng: p.Longitude, at: p.Timestamp})
			}
		}
	}
	// Routes are accepted too, for files exported from planners.
	if len(pts) == 0 {
		for _, r := range g.Routes {
			for _, p := range r.Points {
				pts = append(pts, trackPoint{lat: p.Latitude, lng: p.Longitude, at: p.Timestamp})
			}
		}
	}
	if len(pts) == 0 {
		return nil, ErrEmptyTrack
	}

	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &GPXReplay{points: pts, clock: clk, opts: opts, log: logging.OrDiscard(lg)}, nil
}

func (r *GPXReplay) Len() int { return len(r.points) }

// gap is the recorded time between point i-1 and i.
func (r *GPXReplay) gap(i int) time.Duration {
	a, b := r.points[i-1].at, r.points[i].at
	if a.IsZero() || b.IsZero() || !b.After(a) {
		return r.opts.Interval
	}
	return b.Sub(a)
}

func (r *GPXReplay) Watch(ctx context.Context) (<-chan domain.PositionSample, error) {
	out := make(chan domain.PositionSample)
	go func() {
		defer close(out)
		for lap := 0; ; lap++ {
			if !r.replay(ctx, out) {
				return
			}
			if !r.opts.Loop {
				r.log.Info("gpx replay finished", slog.Int("points", len(r.points)))
				return
			}
			r.log.Debug("gpx replay looping", slog.Int("lap", lap+1))
		}
	}()
	return out, nil
}

// replay plays the track once. It reports false when ctx ended.
func (r *GPXReplay) replay(ctx context.Context, out chan<- domain.PositionSample) bool {
	for i, p := range r.points {
		pos := domain.Position{Lat: p.lat, Lng: p.lng}
		if i > 0 {
			gap := r.gap(i)
			wait := time.Duration(float64(gap) / r.opts.Speed)
			if err := r.clock.Sleep(ctx, wait); err != nil {
				return false
			}
			prev := r.points[i-1]
			speed := geo.Haversine(prev.lat, prev.lng, p.lat, p.lng) / gap.Seconds()
			pos.Speed = &speed
		}
		pos.At = r.clock.Now()

		select {
		case out <- domain.PositionSample{Position: pos}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

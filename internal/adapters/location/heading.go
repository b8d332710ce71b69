package location

import (
	"context"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/geo"
	"driver-nav-service/internal/ports"
)

// DefaultMinMove is the displacement (m) needed before a heading is derived;
// below it GPS jitter dominates the bearing.
const DefaultMinMove = 3.0

// HeadingTracker fills in Heading from consecutive fixes when the underlying
// source reports none. A device heading always wins.
type HeadingTracker struct {
	Source  ports.LocationSource
	MinMove float64
}

func NewHeadingTracker(src ports.LocationSource) *HeadingTracker {
	return &HeadingTracker{Source: src, MinMove: DefaultMinMove}
}

func (h *HeadingTracker) Watch(ctx context.Context) (<-chan domain.PositionSample, error) {
	in, err := h.Source.Watch(ctx)
	if err != nil {
		return nil, err
	}
	minMove := h.MinMove
	if minMove <= 0 {
		minMove = DefaultMinMove
	}

	out := make(chan domain.PositionSample)
	go func() {
		defer close(out)

		var anchor *domain.Position
		var heading *float64

		for s := range in {
			if s.Err == nil {
				p := s.Position
				switch {
				case p.Heading != nil:
					p.HeadingSource = domain.HeadingDevice
					hd := *p.Heading
					heading = &hd
					anchor = &p
				case anchor == nil:
					anchor = &p
					p.HeadingSource = domain.HeadingNone
				default:
					if geo.Haversine(anchor.Lat, anchor.Lng, p.Lat, p.Lng) >= minMove {
						hd := geo.Bearing(anchor.Lat, anchor.Lng, p.Lat, p.Lng)
						heading = &hd
						a := p
						anchor = &a
					}
					if heading != nil {
						hd := *heading
						p.Heading = &hd
						p.HeadingSource = domain.HeadingDerived
					} else {
						p.HeadingSource = domain.HeadingNone
					}
				}
				s.Position = p
			}

			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

package ports

import (
	"context"

	"driver-nav-service/internal/domain"

	"github.com/paulmach/orb"
)

// Area to query for map features.
type AreaQuery struct {
	Bound         orb.Bound
	Classes       []string
	IncludePlaces bool
}

// Contract for the raw (uncached) map data source.
type MapDataProvider interface {
	// Return roads of the requested classes, and optionally named places, inside the bound.
	FetchArea(ctx context.Context, q AreaQuery) (domain.MapData, error)
}

// Contract for the cached, throttled map data lookup consumed by renderers.
type RoadsNearer interface {
	RoadsNear(ctx context.Context, lat, lng, radiusDeg float64) (domain.MapData, error)
}

// Persistent second tier for map data keyed by grid cell.
type RoadCellStore interface {
	// Return the cell payload, ok=false when absent.
	GetCell(ctx context.Context, key string) (domain.MapData, bool, error)
	PutCell(ctx context.Context, key string, data domain.MapData) error
}

package ports

import (
	"context"

	"driver-nav-service/internal/domain"
)

// Contract for retrieving a driving route between two coordinates.
type RouteProvider interface {
	// Return the single best route. A service that answers without a route
	// returns an error matching domain.ErrNoRoute.
	GetRoute(ctx context.Context, from, to domain.LatLng) (domain.Route, error)
}

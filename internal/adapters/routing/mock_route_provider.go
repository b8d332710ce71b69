package routing

import (
	"context"
	"sync"

	"driver-nav-service/internal/domain"
)

// MockRouteProvider returns a fixed route (or error) and records requests.
type MockRouteProvider struct {
	mu    sync.Mutex
	Route domain.Route
	Err   error
	calls []MockRouteCall
}

type MockRouteCall struct {
	From, To domain.LatLng
}

func NewMockRouteProvider(route domain.Route, err error) *MockRouteProvider {
	return &MockRouteProvider{Route: route, Err: err}
}

func (m *MockRouteProvider) GetRoute(ctx context.Context, from, to domain.LatLng) (domain.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockRouteCall{From: from, To: to})
	if err := ctx.Err(); err != nil {
		return domain.Route{}, err
	}
	if m.Err != nil {
		return domain.Route{}, m.Err
	}
	return m.Route, nil
}

func (m *MockRouteProvider) Set(route domain.Route, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Route, m.Err = route, err
}

func (m *MockRouteProvider) Calls() []MockRouteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRouteCall(nil), m.calls...)
}

// StraightRoute builds a two-step route (depart, arrive) between two points.
func StraightRoute(from, to domain.LatLng) domain.Route {
	return domain.Route{
		Geometry: []domain.LatLng{from, to},
		Steps: []domain.Step{
			{Maneuver: domain.Maneuver{Type: "depart", Location: from}, Instruction: "depart", Location: from},
			{Maneuver: domain.Maneuver{Type: "arrive", Location: to}, Instruction: "arrive", Location: to},
		},
	}
}

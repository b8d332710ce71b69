package navigation

import (
	"slices"
	"time"

	"driver-nav-service/internal/domain"
)

// Effect is work a state asks the runtime to perform.
type Effect interface {
	effectName() string
}

// FetchRoute requests a route from the current position to the phase's
// destination. The result must be reported with the same Key.
type FetchRoute struct {
	Key      FetchKey
	From, To domain.LatLng
}

func (FetchRoute) effectName() string { return "fetch_route" }

type effectRule struct {
	name   string
	phases []Phase
	when   func(s State, now time.Time) bool
	build  func(s State) (Effect, bool)
}

// effectRules maps (phase, condition) to the effect it schedules.
var effectRules = []effectRule{
	{
		name:   "route to destination",
		phases: []Phase{PhaseNavigatingToPickup, PhaseNavigatingToDelivery, PhaseReturningToStore},
		when: func(s State, now time.Time) bool {
			return s.Route == nil &&
				s.Position != nil &&
				s.RouteFetch == nil &&
				!now.Before(s.RouteRetryAt)
		},
		build: func(s State) (Effect, bool) {
			to, ok := s.Phase.Destination(s.Task)
			if !ok {
				return nil, false
			}
			return FetchRoute{Key: s.Key(), From: s.Position.LatLng(), To: to}, true
		},
	},
}

// Effects lists the effects due in s at now.
func Effects(s State, now time.Time) []Effect {
	var out []Effect
	for _, r := range effectRules {
		if !slices.Contains(r.phases, s.Phase) || !r.when(s, now) {
			continue
		}
		if eff, ok := r.build(s); ok {
			out = append(out, eff)
		}
	}
	return out
}

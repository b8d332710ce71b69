package navigation

import (
	"errors"
	"fmt"
	"time"

	"driver-nav-service/internal/directions"
	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/geo"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStaleFetch is returned for a route completion whose key no longer
	// matches the state. The state is left unchanged.
	ErrStaleFetch = errors.New("stale route fetch")
	ErrVoiceSeq   = errors.New("voice entry is not at the head of the queue")
)

// Causes recorded in Transition for phase changes driven by position.
const (
	CauseArrivedPickup   = "arrived_pickup"
	CauseArrivedDelivery = "arrived_delivery"
	CauseReturned        = "returned_to_store"
)

// Apply is the transition function. On error the returned State is s.
func Apply(s State, ev Event, cfg Config) (State, error) {
	cfg = cfg.withDefaults()

	switch e := ev.(type) {
	case TaskOffered:
		return applyOffer(s, e.Task)

	case OfferAccepted:
		return advance(s, ev, PhaseOfferReceived, PhaseNavigatingToPickup)

	case OfferRejected:
		if s.Phase != PhaseOfferReceived {
			return s, invalid(s, ev)
		}
		return s.reset(ev.eventName()), nil

	case routeRequested:
		if !s.awaitingRoute(e.Key) {
			return s, stale(s, e.Key)
		}
		k := e.Key
		s.RouteFetch = &k
		s.RouteStatus = RouteLoading
		return s, nil

	case RouteLoaded:
		if !s.awaitingRoute(e.Key) {
			return s, stale(s, e.Key)
		}
		if len(e.Route.Steps) == 0 {
			return s.routeFailed(fmt.Sprintf("%v: route has no steps", domain.ErrNoRoute), true, time.Time{}, cfg), nil
		}
		return s.attachRoute(e.Route), nil

	case RouteFailed:
		if !s.awaitingRoute(e.Key) {
			return s, stale(s, e.Key)
		}
		return s.routeFailed(e.Err, e.NoRoute, e.At, cfg), nil

	case PositionUpdated:
		return applyPosition(s, e.Position, cfg), nil

	case LocationFailed:
		s.Location = LocationError
		s.LocationError = e.Err
		return s, nil

	case PickupConfirmed:
		return advance(s, ev, PhaseAtPickup, PhaseNavigatingToDelivery)

	case IDCheckStarted:
		return advance(s, ev, PhaseAtDelivery, PhaseVerifyingID)

	case IDCheckPassed:
		next, err := advance(s, ev, PhaseVerifyingID, PhaseIDVerified)
		if err != nil {
			return s, err
		}
		return next.enqueue(voiceIDConfirmed), nil

	case IDCheckFailed:
		next, err := advance(s, ev, PhaseVerifyingID, PhaseReturningToStore)
		if err != nil {
			return s, err
		}
		return next.enqueue(voiceReturnToStore), nil

	case OrderRefused:
		next, err := advance(s, ev, PhaseAtDelivery, PhaseReturningToStore)
		if err != nil {
			return s, err
		}
		return next.enqueue(voiceReturnToStore), nil

	case DeliveryConfirmed:
		switch {
		case s.Phase == PhaseIDVerified:
		case s.Phase == PhaseAtDelivery && !cfg.RequireIDCheck:
		default:
			return s, invalid(s, ev)
		}
		return s.reset(ev.eventName()), nil

	case VoiceDequeued:
		if len(s.VoiceQueue) == 0 || s.VoiceQueue[0].Seq != e.Seq {
			return s, fmt.Errorf("%w: seq %d", ErrVoiceSeq, e.Seq)
		}
		s.VoiceQueue = append([]VoiceEntry{}, s.VoiceQueue[1:]...)
		return s, nil

	case Reset:
		if s.Phase == PhaseIdle {
			return s, nil
		}
		return s.reset(ev.eventName()), nil
	}

	return s, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
}

func applyOffer(s State, t domain.Task) (State, error) {
	if s.Phase != PhaseIdle {
		if s.Task != nil && s.Task.ID == t.ID {
			// Redelivery of the task already in progress.
			return s, nil
		}
		return s, fmt.Errorf("%w: offer of task %s while on task %s", ErrInvalidTransition, t.ID, s.Key().TaskID)
	}
	if err := t.Validate(); err != nil {
		return s, err
	}

	pickup, delivery := *t.Pickup, *t.Delivery
	t.Pickup, t.Delivery = &pickup, &delivery
	s.Task = &t
	s = s.moveTo(PhaseOfferReceived, TaskOffered{}.eventName())
	s.VoiceQueue = []VoiceEntry{}
	return s, nil
}

func advance(s State, ev Event, from, to Phase) (State, error) {
	if s.Phase != from {
		return s, invalid(s, ev)
	}
	return s.moveTo(to, ev.eventName()), nil
}

func invalid(s State, ev Event) error {
	return fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, ev.eventName(), s.Phase)
}

func stale(s State, k FetchKey) error {
	return fmt.Errorf("%w: key %s/%s/%d, state %s/%s/%d",
		ErrStaleFetch, k.TaskID, k.Phase, k.Epoch, s.Key().TaskID, s.Phase, s.Epoch)
}

// awaitingRoute reports whether a route completion for k may be applied.
func (s State) awaitingRoute(k FetchKey) bool {
	return s.Phase.Navigating() && s.Route == nil && k == s.Key()
}

func (s State) attachRoute(r domain.Route) State {
	s.Route = &r
	s.CurrentStepIndex = 0
	s.DistanceToNextManeuver = nil
	s.LastCallout = 0
	s.RouteStatus = RouteReady
	s.RouteError = ""
	s.RouteFetch = nil
	s.RouteFailures = 0
	s.RouteRetryAt = time.Time{}
	return s.enqueue(directions.DirectionText(r.Steps[0]))
}

func (s State) routeFailed(msg string, noRoute bool, at time.Time, cfg Config) State {
	s.RouteFetch = nil
	s.RouteFailures++
	s.RouteError = msg
	s.RouteStatus = RouteError
	if noRoute {
		s.RouteStatus = RouteUnavailable
	}
	if !at.IsZero() {
		s.RouteRetryAt = at.Add(RetryDelay(s.RouteFailures, cfg))
	}
	return s
}

// RetryDelay is the wait before route attempt n+1 after n consecutive
// failures: base doubled per failure, capped.
func RetryDelay(failures int, cfg Config) time.Duration {
	cfg = cfg.withDefaults()
	d := cfg.RouteRetryBase
	for i := 1; i < failures && d < cfg.RouteRetryMax; i++ {
		d *= 2
	}
	return min(d, cfg.RouteRetryMax)
}

func applyPosition(s State, p domain.Position, cfg Config) State {
	s.Position = &p
	s.Location = LocationOK
	s.LocationError = ""

	if step, ok := s.ActiveStep(); ok {
		dist := geo.Haversine(p.Lat, p.Lng, step.Location.Lat, step.Location.Lng)
		final := s.CurrentStepIndex == len(s.Route.Steps)-1

		if dist < cfg.ManeuverThreshold && !final {
			s.CurrentStepIndex++
			next := s.Route.Steps[s.CurrentStepIndex]
			s = s.enqueue(directions.DirectionText(next))
			s.LastCallout = 0
			d := geo.Haversine(p.Lat, p.Lng, next.Location.Lat, next.Location.Lng)
			s.DistanceToNextManeuver = &d
		} else {
			if c, ok := directions.ApproachCallout(step, dist); ok && c.Threshold != s.LastCallout {
				s = s.enqueue(c.Text)
				s.LastCallout = c.Threshold
			}
			s.DistanceToNextManeuver = &dist
		}
	}

	return checkArrival(s, p, cfg)
}

func checkArrival(s State, p domain.Position, cfg Config) State {
	if !s.Phase.Navigating() {
		return s
	}
	dest, ok := s.Phase.Destination(s.Task)
	if !ok || geo.Haversine(p.Lat, p.Lng, dest.Lat, dest.Lng) >= cfg.ArrivalThreshold {
		return s
	}

	switch s.Phase {
	case PhaseNavigatingToPickup:
		return s.moveTo(PhaseAtPickup, CauseArrivedPickup).enqueue(voicePickupArrival)
	case PhaseNavigatingToDelivery:
		return s.moveTo(PhaseAtDelivery, CauseArrivedDelivery).enqueue(voiceDeliveryArrival)
	case PhaseReturningToStore:
		return s.reset(CauseReturned).enqueue(voiceReturned)
	}
	return s
}

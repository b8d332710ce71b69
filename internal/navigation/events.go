package navigation

import (
	"time"

	"driver-nav-service/internal/domain"
)

// Event is an input to Apply. The set is closed; see the types below.
type Event interface {
	eventName() string
}

type TaskOffered struct{ Task domain.Task }

type OfferAccepted struct{}

type OfferRejected struct{}

// RouteLoaded completes the fetch issued under Key.
type RouteLoaded struct {
	Key   FetchKey
	Route domain.Route
}

// RouteFailed completes the fetch issued under Key with an error. NoRoute
// distinguishes "the service found no path" from the service being down.
type RouteFailed struct {
	Key     FetchKey
	Err     string
	NoRoute bool
	At      time.Time
}

type PositionUpdated struct{ Position domain.Position }

type LocationFailed struct{ Err string }

type PickupConfirmed struct{}

type IDCheckStarted struct{}

type IDCheckPassed struct{}

type IDCheckFailed struct{ Reason string }

type OrderRefused struct{ Reason string }

type DeliveryConfirmed struct{}

// VoiceDequeued removes the head of the voice queue once it was spoken.
type VoiceDequeued struct{ Seq uint64 }

// Reset forces the universal return to IDLE.
type Reset struct{ Reason string }

// routeRequested marks a fetch as in flight. Only the Navigator issues it.
type routeRequested struct{ Key FetchKey }

func (TaskOffered) eventName() string       { return "task_offered" }
func (OfferAccepted) eventName() string     { return "offer_accepted" }
func (OfferRejected) eventName() string     { return "offer_rejected" }
func (RouteLoaded) eventName() string       { return "route_loaded" }
func (RouteFailed) eventName() string       { return "route_failed" }
func (PositionUpdated) eventName() string   { return "position_updated" }
func (LocationFailed) eventName() string    { return "location_failed" }
func (PickupConfirmed) eventName() string   { return "pickup_confirmed" }
func (IDCheckStarted) eventName() string    { return "id_check_started" }
func (IDCheckPassed) eventName() string     { return "id_check_passed" }
func (IDCheckFailed) eventName() string     { return "id_check_failed" }
func (OrderRefused) eventName() string      { return "order_refused" }
func (DeliveryConfirmed) eventName() string { return "delivery_confirmed" }
func (VoiceDequeued) eventName() string     { return "voice_dequeued" }
func (Reset) eventName() string             { return "reset" }
func (routeRequested) eventName() string    { return "route_requested" }

// EventName is the stable name used in logs and transitions.
func EventName(ev Event) string { return ev.eventName() }

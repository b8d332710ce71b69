package navigation

import (
	"time"

	"driver-nav-service/internal/domain"
)

const (
	DefaultManeuverThreshold = 30.0
	DefaultArrivalThreshold  = 50.0
	DefaultRouteRetryBase    = 2 * time.Second
	DefaultRouteRetryMax     = 60 * time.Second
)

const (
	voicePickupArrival   = "You are arriving at the pickup location"
	voiceDeliveryArrival = "You have arrived at the delivery location"
	voiceIDConfirmed     = "Customer identity confirmed"
	voiceReturnToStore   = "Delivery refused. Return the order to the store"
	voiceReturned        = "You have returned to the store"
)

// Config holds the distance thresholds (meters) and route retry policy.
type Config struct {
	ManeuverThreshold float64
	ArrivalThreshold  float64
	// RequireIDCheck forbids confirming a delivery without a passed ID check.
	RequireIDCheck bool
	RouteRetryBase time.Duration
	RouteRetryMax  time.Duration
}

func DefaultConfig() Config {
	return Config{
		ManeuverThreshold: DefaultManeuverThreshold,
		ArrivalThreshold:  DefaultArrivalThreshold,
		RouteRetryBase:    DefaultRouteRetryBase,
		RouteRetryMax:     DefaultRouteRetryMax,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ManeuverThreshold <= 0 {
		c.ManeuverThreshold = d.ManeuverThreshold
	}
	if c.ArrivalThreshold <= 0 {
		c.ArrivalThreshold = d.ArrivalThreshold
	}
	if c.RouteRetryBase <= 0 {
		c.RouteRetryBase = d.RouteRetryBase
	}
	if c.RouteRetryMax < c.RouteRetryBase {
		c.RouteRetryMax = max(d.RouteRetryMax, c.RouteRetryBase)
	}
	return c
}

type LocationStatus string

const (
	LocationAcquiring LocationStatus = "acquiring"
	LocationOK        LocationStatus = "ok"
	LocationError     LocationStatus = "error"
)

type RouteStatus string

const (
	RouteNone        RouteStatus = "none"
	RouteLoading     RouteStatus = "loading"
	RouteReady       RouteStatus = "loaded"
	RouteUnavailable RouteStatus = "unavailable"
	RouteError       RouteStatus = "error"
)

// VoiceEntry is one pending announcement. Seq is unique for the lifetime of
// a Navigator and increases in enqueue order.
type VoiceEntry struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

// FetchKey tags a route request with what it was issued for. A completion is
// applied only while the state still carries the same key.
type FetchKey struct {
	TaskID string `json:"task_id"`
	Phase  Phase  `json:"phase"`
	Epoch  uint64 `json:"epoch"`
}

// Transition records the most recent phase change.
type Transition struct {
	From   Phase  `json:"from"`
	To     Phase  `json:"to"`
	Cause  string `json:"cause"`
	TaskID string `json:"task_id,omitempty"`
	// Seq counts phase changes, so observers can tell repeats apart.
	Seq uint64 `json:"seq"`
}

// State is the navigation snapshot. Apply never mutates a State it was
// given; slices and pointers are replaced, not written through.
type State struct {
	Phase                  Phase            `json:"phase"`
	Task                   *domain.Task     `json:"task"`
	Route                  *domain.Route    `json:"route"`
	CurrentStepIndex       int              `json:"current_step_index"`
	DistanceToNextManeuver *float64         `json:"distance_to_next_maneuver"`
	VoiceQueue             []VoiceEntry     `json:"voice_queue"`
	Position               *domain.Position `json:"position"`

	// LastCallout is the threshold of the last approach callout for the
	// active step, 0 when none was made yet.
	LastCallout int    `json:"last_callout"`
	Epoch       uint64 `json:"epoch"`

	Location      LocationStatus `json:"location_status"`
	LocationError string         `json:"location_error,omitempty"`

	RouteStatus   RouteStatus `json:"route_status"`
	RouteError    string      `json:"route_error,omitempty"`
	RouteFetch    *FetchKey   `json:"route_fetch,omitempty"`
	RouteFailures int         `json:"route_failures"`
	RouteRetryAt  time.Time   `json:"route_retry_at"`

	LastTransition *Transition `json:"last_transition,omitempty"`

	// VoiceSeq is the Seq of the newest entry ever enqueued.
	VoiceSeq uint64 `json:"voice_seq"`
}

// Initial is the IDLE state before any position is known.
func Initial() State {
	return State{
		Phase:       PhaseIdle,
		VoiceQueue:  []VoiceEntry{},
		Location:    LocationAcquiring,
		RouteStatus: RouteNone,
	}
}

// Key is the fetch key for the current phase.
func (s State) Key() FetchKey {
	k := FetchKey{Phase: s.Phase, Epoch: s.Epoch}
	if s.Task != nil {
		k.TaskID = s.Task.ID
	}
	return k
}

// ActiveStep returns the step being navigated to, if a route is attached.
func (s State) ActiveStep() (domain.Step, bool) {
	if s.Route == nil || s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Route.Steps) {
		return domain.Step{}, false
	}
	return s.Route.Steps[s.CurrentStepIndex], true
}

func (s State) enqueue(text string) State {
	s.VoiceSeq++
	q := make([]VoiceEntry, len(s.VoiceQueue), len(s.VoiceQueue)+1)
	copy(q, s.VoiceQueue)
	s.VoiceQueue = append(q, VoiceEntry{Seq: s.VoiceSeq, Text: text})
	return s
}

func (s State) clearRoute() State {
	s.Route = nil
	s.CurrentStepIndex = 0
	s.DistanceToNextManeuver = nil
	s.LastCallout = 0
	s.RouteStatus = RouteNone
	s.RouteError = ""
	s.RouteFetch = nil
	s.RouteFailures = 0
	s.RouteRetryAt = time.Time{}
	return s
}

// moveTo changes phase. The epoch bump invalidates any route fetch issued
// for the previous phase.
func (s State) moveTo(to Phase, cause string) State {
	from := s.Phase
	s = s.clearRoute()
	s.Phase = to
	s.Epoch++
	t := Transition{From: from, To: to, Cause: cause, Seq: 1}
	if s.LastTransition != nil {
		t.Seq = s.LastTransition.Seq + 1
	}
	if s.Task != nil {
		t.TaskID = s.Task.ID
	}
	s.LastTransition = &t
	return s
}

// reset returns to IDLE, dropping the task and route. Pending voice entries
// stay queued until the consumer dequeues them.
func (s State) reset(cause string) State {
	s = s.moveTo(PhaseIdle, cause)
	s.Task = nil
	return s
}

package domain

import "errors"

// ErrNoRoute means the routing service answered but found no route between
// the two points. Transport and service failures are reported with other errors.
var ErrNoRoute = errors.New("no route found")

// Maneuver describes the action at the start of a step.
type Maneuver struct {
	Type     string `json:"type"`
	Modifier string `json:"modifier,omitempty"`
	Location LatLng `json:"location"`
}

// Represents one turn-by-turn segment of a route.
// Location is the maneuver point; Distance and Duration cover the segment
// that follows it.
type Step struct {
	Maneuver    Maneuver `json:"maneuver"`
	Distance    float64  `json:"distance"`
	Duration    float64  `json:"duration"`
	Name        string   `json:"name"`
	Instruction string   `json:"instruction"`
	Modifier    string   `json:"modifier,omitempty"`
	Location    LatLng   `json:"location"`
}

// Represents a driving route between two points.
// A Route is immutable once loaded into the navigation state; a reroute
// replaces it as a whole.
type Route struct {
	Geometry []LatLng `json:"geometry"`
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Steps    []Step   `json:"steps"`
}

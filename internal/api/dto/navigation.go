package dto

import (
	"driver-nav-service/internal/directions"
	"driver-nav-service/internal/geo"
	"driver-nav-service/internal/navigation"
)

// ActionRequest carries the optional inputs of a driver action. Each action
// reads only the fields it needs.
type ActionRequest struct {
	SessionRef     string `json:"session_ref"`
	AttestationRef string `json:"attestation_ref"`
	ReasonCode     string `json:"reason_code"`
	Notes          string `json:"notes"`
	Reason         string `json:"reason"`
}

type IDCheckResponse struct {
	Passed     bool   `json:"passed"`
	ReasonCode string `json:"reason_code,omitempty"`
}

// NavigationResponse is the snapshot plus the banner text a driver display
// shows for it.
type NavigationResponse struct {
	navigation.State
	Instruction   string           `json:"instruction,omitempty"`
	ManeuverIcon  string           `json:"maneuver_icon,omitempty"`
	DistanceText  string           `json:"distance_text,omitempty"`
	RouteDistance string           `json:"route_distance,omitempty"`
	RouteDuration string           `json:"route_duration,omitempty"`
	IDCheck       *IDCheckResponse `json:"id_check,omitempty"`
}

func NewNavigationResponse(s navigation.State) NavigationResponse {
	res := NavigationResponse{State: s}
	if step, ok := s.ActiveStep(); ok {
		res.Instruction = directions.DirectionText(step)
		res.ManeuverIcon = directions.ManeuverIcon(step.Instruction, step.Modifier)
	}
	if s.DistanceToNextManeuver != nil {
		res.DistanceText = geo.FormatDistance(*s.DistanceToNextManeuver)
	}
	if s.Route != nil {
		res.RouteDistance = geo.FormatDistance(s.Route.Distance)
		res.RouteDuration = geo.FormatDuration(s.Route.Duration)
	}
	return res
}

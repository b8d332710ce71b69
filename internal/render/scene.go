// Package render turns navigation snapshots and map data into a Scene of
// projected roads, route and markers, and keeps a Surface up to date.
package render

import (
	"math"
	"slices"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/geo"
	"driver-nav-service/internal/navigation"
	"driver-nav-service/internal/projection"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

// RoadNameRadius is how close (m) the driver must be to a named road
// vertex for the road to be reported as current.
const RoadNameRadius = 100.0

type MarkerKind string

const (
	MarkerPickup   MarkerKind = "pickup"
	MarkerDelivery MarkerKind = "delivery"
	MarkerDriver   MarkerKind = "driver"
)

var (
	pickupPhases = []navigation.Phase{
		navigation.PhaseOfferReceived,
		navigation.PhaseNavigatingToPickup,
		navigation.PhaseAtPickup,
		navigation.PhaseReturningToStore,
	}
	deliveryPhases = []navigation.Phase{
		navigation.PhaseOfferReceived,
		navigation.PhaseNavigatingToPickup,
		navigation.PhaseAtPickup,
		navigation.PhaseNavigatingToDelivery,
		navigation.PhaseAtDelivery,
		navigation.PhaseVerifyingID,
		navigation.PhaseIDVerified,
	}
)

type Marker struct {
	Kind MarkerKind `json:"kind"`
	At   orb.Point  `json:"at"`
	Size float64    `json:"size"`
	// Heading is set on the driver marker when known.
	Heading *float64 `json:"heading,omitempty"`
}

type RoadLine struct {
	Class  string         `json:"class"`
	Name   string         `json:"name,omitempty"`
	Points orb.LineString `json:"points"`
	RoadStyle
}

type Camera struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
	// Frustum is the visible world width at Zoom.
	Frustum float64 `json:"frustum"`
}

// Scene is everything a surface needs to draw one frame, in projected
// world units with y pointing north.
type Scene struct {
	Clear      string         `json:"clear"`
	Roads      []RoadLine     `json:"roads"`
	RoadsStale bool           `json:"roads_stale"`
	Route      orb.LineString `json:"route,omitempty"`
	RouteColor string         `json:"route_color"`
	Markers    []Marker       `json:"markers"`
	Camera     Camera         `json:"camera"`
	RoadName   string         `json:"road_name,omitempty"`
	Pulse      float64        `json:"pulse"`
}

type SceneInput struct {
	State navigation.State
	Roads domain.MapData
	// Zoom is used when there is nothing to fit the camera to.
	Zoom  float64
	Pulse float64
}

// BuildScene is a pure function of its input.
func BuildScene(in SceneInput) Scene {
	sc := Scene{
		Clear:      ClearColor,
		RouteColor: RouteColor,
		RoadsStale: in.Roads.Stale,
		Pulse:      in.Pulse,
		Roads:      make([]RoadLine, 0, len(in.Roads.Roads)),
		Markers:    []Marker{},
	}

	for _, r := range in.Roads.Roads {
		if len(r.Points) < 2 {
			continue
		}
		sc.Roads = append(sc.Roads, RoadLine{
			Class:     r.HighwayClass,
			Name:      r.Name,
			Points:    projection.ProjectLine(r.Points),
			RoadStyle: StyleFor(r.HighwayClass),
		})
	}

	s := in.State
	if s.Route != nil && len(s.Route.Geometry) >= 2 {
		sc.Route = make(orb.LineString, len(s.Route.Geometry))
		for i, c := range s.Route.Geometry {
			sc.Route[i] = projection.Project(c)
		}
	}

	// Camera first: marker sizes depend on its zoom.
	var fit []orb.Point
	type placed struct {
		kind  MarkerKind
		at    orb.Point
		scale float64
	}
	var markers []placed
	if t := s.Task; t != nil {
		if t.Pickup != nil && slices.Contains(pickupPhases, s.Phase) {
			p := projection.Project(t.Pickup.LatLng())
			markers = append(markers, placed{MarkerPickup, p, pickupMarkerScale})
			fit = append(fit, p)
		}
		if t.Delivery != nil && slices.Contains(deliveryPhases, s.Phase) {
			p := projection.Project(t.Delivery.LatLng())
			markers = append(markers, placed{MarkerDelivery, p, deliveryMarkerScale})
			fit = append(fit, p)
		}
	}
	if s.Position != nil {
		p := projection.Project(s.Position.LatLng())
		markers = append(markers, placed{MarkerDriver, p, driverMarkerScale})
		fit = append(fit, p)
	}

	zoom := in.Zoom
	if zoom == 0 {
		zoom = DefaultZoom
	}
	sc.Camera = fitCamera(fit, zoom)

	capped := projection.VisibleWidth(markerCapZoom)
	for _, m := range markers {
		mk := Marker{
			Kind: m.kind,
			At:   m.at,
			Size: min(sc.Camera.Frustum*m.scale, capped*m.scale),
		}
		if m.kind == MarkerDriver && s.Position.Heading != nil {
			h := *s.Position.Heading
			mk.Heading = &h
		}
		sc.Markers = append(sc.Markers, mk)
	}

	if s.Position != nil {
		sc.RoadName = nearestRoadName(in.Roads.Roads, s.Position.LatLng())
	}
	return sc
}

// fitCamera centres on the bounds of pts. With a non-zero extent the zoom
// shows twice the larger side; otherwise zoom is kept.
func fitCamera(pts []orb.Point, zoom float64) Camera {
	cam := Camera{Zoom: clampZoom(zoom, MinZoom, MaxZoom)}
	if len(pts) > 0 {
		b := orb.MultiPoint(pts).Bound()
		cam.Center = b.Center()
		if r := math.Max(b.Right()-b.Left(), b.Top()-b.Bottom()) * 2; r > 0 {
			cam.Zoom = clampZoom(projection.ZoomForRange(r), MinZoom, MaxFitZoom)
		}
	}
	cam.Frustum = projection.VisibleWidth(cam.Zoom)
	return cam
}

type roadVertex struct {
	at     orb.Point
	lonLat orb.Point
	name   string
}

func (v roadVertex) Point() orb.Point { return v.at }

// nearestRoadName returns the name of the named road with the vertex
// closest to c, or "" when none is within RoadNameRadius.
func nearestRoadName(roads []domain.RoadFeature, c domain.LatLng) string {
	var bound orb.Bound
	first := true
	for _, r := range roads {
		if r.Name == "" || len(r.Points) == 0 {
			continue
		}
		b := projection.ProjectLine(r.Points).Bound()
		if first {
			bound, first = b, false
			continue
		}
		bound = bound.Union(b)
	}
	if first {
		return ""
	}

	qt := quadtree.New(bound)
	for _, r := range roads {
		if r.Name == "" {
			continue
		}
		for _, p := range r.Points {
			qt.Add(roadVertex{at: projection.Default.ProjectLonLat(p), lonLat: p, name: r.Name})
		}
	}

	nearest := qt.Find(projection.Project(c))
	if nearest == nil {
		return ""
	}
	v := nearest.(roadVertex)
	if geo.Haversine(c.Lat, c.Lng, v.lonLat.Lat(), v.lonLat.Lon()) > RoadNameRadius {
		return ""
	}
	return v.name
}

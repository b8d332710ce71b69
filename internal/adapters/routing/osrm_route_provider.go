package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/platform/httpx"
	"driver-nav-service/internal/platform/obs"
)

// ErrRouteService marks failures of the routing service itself (transport,
// 5xx, malformed payloads), as opposed to domain.ErrNoRoute.
var ErrRouteService = errors.New("routing service unavailable")

// RouteError carries the service code for a no-route answer.
type RouteError struct {
	Code    string
	Message string
}

func (e *RouteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("osrm: %s: %s", e.Code, e.Message)
	}
	return "osrm: " + e.Code
}

func (e *RouteError) Unwrap() error { return domain.ErrNoRoute }

// OSRMRouteProvider implements ports.RouteProvider using the OSRM route service.
// It is safe for concurrent use.
type OSRMRouteProvider struct {
	client  *httpx.Client
	baseURL string
	profile string
	log     *slog.Logger
}

func NewOSRMRouteProvider(baseURL, profile string, timeout time.Duration, lg *slog.Logger) (*OSRMRouteProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("osrm base url is empty")
	}
	if profile == "" {
		profile = "driving"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := httpx.NewClient(timeout)
	// A route is re-requested on the next position update anyway.
	c.MaxAttempts = 2

	return &OSRMRouteProvider{
		client:  c,
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		log:     lg,
	}, nil
}

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Geometry string    `json:"geometry"`
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Legs     []osrmLeg `json:"legs"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmStep struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Name     string       `json:"name"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmManeuver struct {
	Type     string     `json:"type"`
	Modifier string     `json:"modifier"`
	Location [2]float64 `json:"location"` // [lng, lat]
}

func (o *OSRMRouteProvider) routeURL(from, to domain.LatLng) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return fmt.Sprintf("%s/route/v1/%s/%s,%s;%s,%s?overview=full&geometries=polyline&steps=true",
		o.baseURL, o.profile, f(from.Lng), f(from.Lat), f(to.Lng), f(to.Lat))
}

// GetRoute requests the best driving route between two points.
func (o *OSRMRouteProvider) GetRoute(ctx context.Context, from, to domain.LatLng) (_ domain.Route, err error) {
	defer obs.Time(ctx, o.log, "routing.osrm.GetRoute")(&err)

	if !from.Valid() || !to.Valid() {
		return domain.Route{}, fmt.Errorf("get route: invalid coordinates %v -> %v", from, to)
	}

	url := o.routeURL(from, to)
	resp, err := o.client.DoWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		// OSRM answers NoRoute/NoSegment with a 400 and a JSON body.
		var he *httpx.StatusError
		if errors.As(err, &he) && he.Code == http.StatusBadRequest {
			var body osrmResponse
			if json.Unmarshal([]byte(he.Body), &body) == nil && body.Code != "" {
				return domain.Route{}, &RouteError{Code: body.Code, Message: body.Message}
			}
		}
		if ctx.Err() != nil {
			return domain.Route{}, ctx.Err()
		}
		return domain.Route{}, fmt.Errorf("get route: %w: %w", ErrRouteService, err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Route{}, fmt.Errorf("get route: %w: decode response: %w", ErrRouteService, err)
	}

	return toRoute(body)
}

func toRoute(body osrmResponse) (domain.Route, error) {
	if body.Code != "Ok" || len(body.Routes) == 0 {
		code := body.Code
		if code == "" || code == "Ok" {
			code = "NoRoute"
		}
		return domain.Route{}, &RouteError{Code: code, Message: body.Message}
	}

	r := body.Routes[0]
	geometry, err := DecodePolyline(r.Geometry)
	if err != nil {
		return domain.Route{}, fmt.Errorf("get route: %w: %w", ErrRouteService, err)
	}

	route := domain.Route{
		Geometry: geometry,
		Distance: r.Distance,
		Duration: r.Duration,
	}

	if len(r.Legs) > 0 {
		route.Steps = make([]domain.Step, 0, len(r.Legs[0].Steps))
		for _, s := range r.Legs[0].Steps {
			loc := domain.LatLng{Lat: s.Maneuver.Location[1], Lng: s.Maneuver.Location[0]}
			route.Steps = append(route.Steps, domain.Step{
				Maneuver: domain.Maneuver{
					Type:     s.Maneuver.Type,
					Modifier: s.Maneuver.Modifier,
					Location: loc,
				},
				Distance:    s.Distance,
				Duration:    s.Duration,
				Name:        s.Name,
				Instruction: s.Maneuver.Type,
				Modifier:    s.Maneuver.Modifier,
				Location:    loc,
			})
		}
	}

	if len(route.Steps) == 0 {
		return domain.Route{}, &RouteError{Code: "NoRoute", Message: "route has no steps"}
	}

	return route, nil
}

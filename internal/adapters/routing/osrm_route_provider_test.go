package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"driver-nav-service/internal/domain"
)

const osrmOK = `{
  "code": "Ok",
  "routes": [{
    "geometry": "_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@",
    "distance": 1234.5,
    "duration": 300.2,
    "legs": [{
      "steps": [
        {"distance": 500, "duration": 100, "name": "Main St",
         "maneuver": {"type": "depart", "location": [-120.2, 38.5]}},
        {"distance": 734, "duration": 200, "name": "Oak Ave",
         "maneuver": {"type": "turn", "modifier": "left", "location": [-120.95, 40.7]}},
        {"distance": 0, "duration": 0, "name": "",
         "maneuver": {"type": "arrive", "location": [-126.453, 43.252]}}
      ]
    }]
  }]
}`

func newTestProvider(t *testing.T, h http.HandlerFunc) (*OSRMRouteProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewOSRMRouteProvider(srv.URL, "driving", time.Second, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.client.Backoff = time.Millisecond
	return p, srv
}

func TestOSRMGetRoute(t *testing.T) {
	var gotPath, gotQuery string
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Write([]byte(osrmOK))
	})

	route, err := p.GetRoute(context.Background(),
		domain.LatLng{Lat: 38.5, Lng: -120.2}, domain.LatLng{Lat: 43.252, Lng: -126.453})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/route/v1/driving/-120.2,38.5;-126.453,43.252" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "overview=full&geometries=polyline&steps=true" {
		t.Fatalf("query = %q", gotQuery)
	}

	if len(route.Geometry) != 3 {
		t.Fatalf("geometry len = %d, want 3", len(route.Geometry))
	}
	if route.Distance != 1234.5 || route.Duration != 300.2 {
		t.Fatalf("distance/duration = %v/%v", route.Distance, route.Duration)
	}
	if len(route.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(route.Steps))
	}

	turn := route.Steps[1]
	if turn.Instruction != "turn" || turn.Modifier != "left" || turn.Name != "Oak Ave" {
		t.Fatalf("turn step = %+v", turn)
	}
	// Location is swapped from [lng, lat] to lat/lng.
	if turn.Location != (domain.LatLng{Lat: 40.7, Lng: -120.95}) {
		t.Fatalf("turn location = %v", turn.Location)
	}
	if route.Steps[2].Name != "" {
		t.Fatalf("arrive name = %q, want empty", route.Steps[2].Name)
	}
}

func TestOSRMNoRouteIsDistinctFromServiceFailure(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[]}`))
	})
	_, err := p.GetRoute(context.Background(), domain.LatLng{Lat: 1, Lng: 1}, domain.LatLng{Lat: 2, Lng: 2})
	if !errors.Is(err, domain.ErrNoRoute) {
		t.Fatalf("empty routes: err = %v, want ErrNoRoute", err)
	}
	if errors.Is(err, ErrRouteService) {
		t.Fatalf("empty routes should not be a service error")
	}

	p, _ = newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"NoSegment","message":"Could not find a matching segment"}`))
	})
	_, err = p.GetRoute(context.Background(), domain.LatLng{Lat: 1, Lng: 1}, domain.LatLng{Lat: 2, Lng: 2})
	var re *RouteError
	if !errors.As(err, &re) || re.Code != "NoSegment" {
		t.Fatalf("400 NoSegment: err = %v, want RouteError NoSegment", err)
	}

	p, _ = newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	_, err = p.GetRoute(context.Background(), domain.LatLng{Lat: 1, Lng: 1}, domain.LatLng{Lat: 2, Lng: 2})
	if !errors.Is(err, ErrRouteService) {
		t.Fatalf("502: err = %v, want ErrRouteService", err)
	}
	if errors.Is(err, domain.ErrNoRoute) {
		t.Fatalf("502 should not be ErrNoRoute")
	}
}

func TestOSRMNonOkCode(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","message":"Impossible route"}`))
	})
	_, err := p.GetRoute(context.Background(), domain.LatLng{Lat: 1, Lng: 1}, domain.LatLng{Lat: 2, Lng: 2})
	if !errors.Is(err, domain.ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
	if !strings.Contains(err.Error(), "Impossible route") {
		t.Fatalf("err = %q, want service message", err.Error())
	}
}

func TestNewOSRMRouteProviderRequiresURL(t *testing.T) {
	if _, err := NewOSRMRouteProvider(" ", "", 0, nil); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

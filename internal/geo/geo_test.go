package geo

import (
	"math"
	"testing"

	"driver-nav-service/internal/domain"
)

func TestHaversine(t *testing.T) {
	if d := Haversine(33.45, -112.07, 33.45, -112.07); d != 0 {
		t.Fatalf("same point distance = %f, want 0", d)
	}

	// One degree of latitude is ~111.19 km on a 6371 km sphere.
	d := Haversine(0, 0, 1, 0)
	if math.Abs(d-111195) > 1 {
		t.Fatalf("1 deg lat = %f, want ~111195", d)
	}

	if a, b := Haversine(10, 20, 11, 21), Haversine(11, 21, 10, 20); math.Abs(a-b) > 1e-6 {
		t.Fatalf("haversine not symmetric: %f vs %f", a, b)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
	}{
		{"north", 0, 0, 1, 0, 0},
		{"east", 0, 0, 0, 1, 90},
		{"south", 1, 0, 0, 0, 180},
		{"west", 0, 1, 0, 0, 270},
	}

	for _, tt := range tests {
		got := Bearing(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
		if math.Abs(got-tt.want) > 1e-6 {
			t.Fatalf("%s: bearing = %f, want %f", tt.name, got, tt.want)
		}
		if got < 0 || got >= 360 {
			t.Fatalf("%s: bearing %f out of [0,360)", tt.name, got)
		}
	}
}

func TestClosestPointOnPath(t *testing.T) {
	if _, ok := ClosestPointOnPath(0, 0, nil); ok {
		t.Fatalf("expected ok=false for empty path")
	}

	path := []domain.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0, Lng: 0.02}}
	cp, ok := ClosestPointOnPath(0.001, 0.011, path)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if cp.Index != 1 {
		t.Fatalf("index = %d, want 1", cp.Index)
	}
	if cp.Point != path[1] {
		t.Fatalf("point = %v, want %v", cp.Point, path[1])
	}
	if cp.Distance <= 0 || cp.Distance > 200 {
		t.Fatalf("distance = %f, want (0, 200]", cp.Distance)
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 m"},
		{45, "45 m"},
		{99.4, "99 m"},
		{734, "730 m"},
		{735, "740 m"},
		{1000, "1.0 km"},
		{2345, "2.3 km"},
	}
	for _, tt := range tests {
		if got := FormatDistance(tt.in); got != tt.want {
			t.Fatalf("FormatDistance(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{30, "< 1 min"},
		{60, "1 min"},
		{125, "2 min"},
		{3540, "59 min"},
		{3600, "1 hr"},
		{5400, "1 hr 30 min"},
		{7230, "2 hr 1 min"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package domain

import (
	"math"

	"github.com/paulmach/orb"
)

// Geographic coordinates in degrees (WGS84).
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c LatLng) CoordsToList() []float64 { return []float64{c.Lng, c.Lat} }

// Point returns the orb representation ([lon, lat]).
func (c LatLng) Point() orb.Point { return orb.Point{c.Lng, c.Lat} }

func FromPoint(p orb.Point) LatLng { return LatLng{Lat: p.Lat(), Lng: p.Lon()} }

// Valid reports whether the coordinates are finite and in range.
func (c LatLng) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

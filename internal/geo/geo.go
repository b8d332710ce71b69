// Package geo holds the spherical helpers used for navigation decisions and
// the human-readable distance/duration formatting shown to the driver.
package geo

import (
	"fmt"
	"math"

	"driver-nav-service/internal/domain"
)

// EarthRadius is the mean earth radius in metres.
const EarthRadius = 6371000.0

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }

// Haversine returns the great-circle distance in metres.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Pow(math.Sin(dLng/2), 2)
	return EarthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func DistanceLL(a, b domain.LatLng) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Bearing returns the initial bearing from the first point to the second,
// in degrees within [0, 360). 0 is north, 90 is east.
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	dLng := toRad(lng2 - lng1)
	y := math.Sin(dLng) * math.Cos(toRad(lat2))
	x := math.Cos(toRad(lat1))*math.Sin(toRad(lat2)) -
		math.Sin(toRad(lat1))*math.Cos(toRad(lat2))*math.Cos(dLng)
	b := math.Mod(toDeg(math.Atan2(y, x))+360, 360)
	if b >= 360 {
		b = 0
	}
	return b
}

type ClosestPoint struct {
	Point    domain.LatLng
	Distance float64
	Index    int
}

// ClosestPointOnPath returns the path vertex nearest to (lat, lng).
// Only vertices are considered, not the segments between them.
// ok is false for an empty path.
func ClosestPointOnPath(lat, lng float64, path []domain.LatLng) (cp ClosestPoint, ok bool) {
	if len(path) == 0 {
		return ClosestPoint{}, false
	}

	cp.Distance = math.Inf(1)
	for i, p := range path {
		d := Haversine(lat, lng, p.Lat, p.Lng)
		if d < cp.Distance {
			cp = ClosestPoint{Point: p, Distance: d, Index: i}
		}
	}
	return cp, true
}

// FormatDistance renders metres for display: "45 m", "730 m", "2.3 km".
func FormatDistance(meters float64) string {
	switch {
	case meters < 100:
		return fmt.Sprintf("%d m", int(roundHalfUp(meters)))
	case meters < 1000:
		return fmt.Sprintf("%d m", int(roundHalfUp(meters/10))*10)
	default:
		return fmt.Sprintf("%.1f km", meters/1000)
	}
}

// FormatDuration renders seconds for display: "< 1 min", "12 min",
// "1 hr 30 min", "2 hr".
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return "< 1 min"
	}
	mins := int(roundHalfUp(seconds / 60))
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	hrs, rem := mins/60, mins%60
	if rem > 0 {
		return fmt.Sprintf("%d hr %d min", hrs, rem)
	}
	return fmt.Sprintf("%d hr", hrs)
}

func roundHalfUp(x float64) float64 { return math.Floor(x + 0.5) }

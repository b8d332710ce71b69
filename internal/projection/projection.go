// Package projection maps geographic coordinates onto the flat world plane
// shared by every map surface (Web Mercator scaled to WorldScale units).
package projection

import (
	"math"

	"driver-nav-service/internal/domain"

	"github.com/paulmach/orb"
)

const WorldScale = 1000000.0

// Projection is a Web Mercator projection onto a square of Scale units.
type Projection struct {
	Scale float64
}

// Default is the projection every renderer must use. Mixing scales puts
// roads and markers in different places.
var Default = Projection{Scale: WorldScale}

func (p Projection) LonToX(lon float64) float64 {
	return ((lon + 180) / 360) * p.Scale
}

// LatToY grows southward; screen space negates it.
func (p Projection) LatToY(lat float64) float64 {
	rad := lat * math.Pi / 180
	merc := math.Log(math.Tan(rad) + 1/math.Cos(rad))
	return (1 - merc/math.Pi) / 2 * p.Scale
}

// Project returns the world position of a coordinate with y pointing north
// (x = LonToX, y = -LatToY).
func (p Projection) Project(c domain.LatLng) orb.Point {
	return orb.Point{p.LonToX(c.Lng), -p.LatToY(c.Lat)}
}

// ProjectLonLat projects an orb point given as [lon, lat].
func (p Projection) ProjectLonLat(pt orb.Point) orb.Point {
	return orb.Point{p.LonToX(pt.Lon()), -p.LatToY(pt.Lat())}
}

func (p Projection) ProjectLine(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, pt := range ls {
		out[i] = p.ProjectLonLat(pt)
	}
	return out
}

// VisibleWidth is the world width shown at a zoom level.
func (p Projection) VisibleWidth(zoom float64) float64 {
	return p.Scale / math.Pow(2, zoom)
}

// ZoomForRange is the zoom at which a world range fills the view.
func (p Projection) ZoomForRange(r float64) float64 {
	return math.Log2(p.Scale / r)
}

// The package-level functions use Default.

func LonToX(lon float64) float64 {
	return Default.LonToX(lon)
}

func LatToY(lat float64) float64 {
	return Default.LatToY(lat)
}

func Project(c domain.LatLng) orb.Point {
	return Default.Project(c)
}

func VisibleWidth(zoom float64) float64 {
	return Default.VisibleWidth(zoom)
}

func ZoomForRange(r float64) float64 {
	return Default.ZoomForRange(r)
}

func ProjectLine(ls orb.LineString) orb.LineString {
	return Default.ProjectLine(ls)
}

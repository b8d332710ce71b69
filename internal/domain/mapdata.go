package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// RoadFeature is a drivable road polyline in [lon, lat] order.
type RoadFeature struct {
	HighwayClass string         `json:"highway_class" msgpack:"c"`
	Points       orb.LineString `json:"points" msgpack:"p"`
	Name         string         `json:"name,omitempty" msgpack:"n,omitempty"`
}

// PlaceFeature is a named point of interest (shop, amenity).
type PlaceFeature struct {
	Name string  `json:"name" msgpack:"n"`
	Type string  `json:"type" msgpack:"t"`
	Lon  float64 `json:"lon" msgpack:"x"`
	Lat  float64 `json:"lat" msgpack:"y"`
}

// MapData is the result of a road/place query for an area.
// Stale is set when the data was served from cache after a failed refresh,
// or is empty because nothing was available.
type MapData struct {
	Roads     []RoadFeature  `json:"roads" msgpack:"r"`
	Places    []PlaceFeature `json:"places" msgpack:"pl"`
	FetchedAt time.Time      `json:"fetched_at" msgpack:"f"`
	Stale     bool           `json:"stale" msgpack:"-"`
}

package domain

import "time"

type HeadingSource string

const (
	HeadingNone    HeadingSource = "none"
	HeadingDevice  HeadingSource = "device"
	HeadingDerived HeadingSource = "derived"
)

// Position is a single location fix for the driver.
// Speed (m/s) and Heading (degrees, 0 = north) are nil when the device
// did not report them.
type Position struct {
	Lat           float64       `json:"lat"`
	Lng           float64       `json:"lng"`
	Speed         *float64      `json:"speed,omitempty"`
	Heading       *float64      `json:"heading,omitempty"`
	HeadingSource HeadingSource `json:"heading_source,omitempty"`
	Accuracy      float64       `json:"accuracy,omitempty"`
	At            time.Time     `json:"at"`
}

func (p Position) LatLng() LatLng { return LatLng{Lat: p.Lat, Lng: p.Lng} }

// PositionSample is what a location source yields: either a fix or an error
// (permission denied, no signal, source closed).
type PositionSample struct {
	Position Position
	Err      error
}

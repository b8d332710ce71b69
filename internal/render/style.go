package render

const (
	ClearColor = "#0a0e17"
	RouteColor = "#3b82f6"

	DefaultZoom = 14.0
	MinZoom     = 12.0
	MaxZoom     = 19.0
	// Camera fits never zoom in past this.
	MaxFitZoom = MaxZoom - 1

	pickupMarkerScale   = 0.012
	deliveryMarkerScale = 0.012
	driverMarkerScale   = 0.014
	// Markers stop growing when zooming out past this level.
	markerCapZoom = 16.0
)

type RoadStyle struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

var roadStyles = map[string]RoadStyle{
	"motorway":       {"#8899aa", 2.5},
	"motorway_link":  {"#8899aa", 1.8},
	"trunk":          {"#778899", 2.2},
	"trunk_link":     {"#7788aa", 1.6},
	"primary":        {"#667788", 1.8},
	"primary_link":   {"#667788", 1.2},
	"secondary":      {"#556677", 1.4},
	"secondary_link": {"#556677", 1.0},
	"tertiary":       {"#445566", 1.0},
	"tertiary_link":  {"#445566", 0.8},
	"residential":    {"#334455", 0.6},
	"living_street":  {"#334455", 0.5},
	"unclassified":   {"#334455", 0.5},
	"service":        {"#2a3a4a", 0.4},
}

// StyleFor returns the style of a highway class. Unknown classes draw as
// thin residential roads.
func StyleFor(class string) RoadStyle {
	if s, ok := roadStyles[class]; ok {
		return s
	}
	return RoadStyle{Color: roadStyles["residential"].Color, Width: 0.5}
}

func clampZoom(z, lo, hi float64) float64 {
	return max(lo, min(hi, z))
}

package routing

import (
	"errors"
	"math"
	"strings"

	"driver-nav-service/internal/domain"
)

// Polyline precision used by OSRM with geometries=polyline.
const polylineFactor = 1e5

var errTruncatedPolyline = errors.New("polyline: truncated input")

// DecodePolyline decodes an encoded polyline (precision 1e5) into [lat, lng] points.
func DecodePolyline(encoded string) ([]domain.LatLng, error) {
	points := make([]domain.LatLng, 0, len(encoded)/4)
	idx, lat, lng := 0, 0, 0

	for idx < len(encoded) {
		dLat, next, err := decodeValue(encoded, idx)
		if err != nil {
			return nil, err
		}
		dLng, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		idx = next

		lat += dLat
		lng += dLng
		points = append(points, domain.LatLng{
			Lat: float64(lat) / polylineFactor,
			Lng: float64(lng) / polylineFactor,
		})
	}

	return points, nil
}

func decodeValue(encoded string, idx int) (int, int, error) {
	shift, result := 0, 0
	for {
		if idx >= len(encoded) {
			return 0, idx, errTruncatedPolyline
		}
		b := int(encoded[idx]) - 63
		idx++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), idx, nil
	}
	return result >> 1, idx, nil
}

// EncodePolyline encodes points with precision 1e5.
func EncodePolyline(points []domain.LatLng) string {
	var b strings.Builder
	prevLat, prevLng := 0, 0

	for _, p := range points {
		lat := int(math.Round(p.Lat * polylineFactor))
		lng := int(math.Round(p.Lng * polylineFactor))
		encodeValue(&b, lat-prevLat)
		encodeValue(&b, lng-prevLng)
		prevLat, prevLng = lat, lng
	}

	return b.String()
}

func encodeValue(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		b.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	b.WriteByte(byte(u + 63))
}

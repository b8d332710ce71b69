package projection

import (
	"math"
	"testing"

	"driver-nav-service/internal/domain"
)

func TestLonToX(t *testing.T) {
	tests := []struct {
		lon, want float64
	}{
		{-180, 0},
		{0, WorldScale / 2},
		{180, WorldScale},
	}
	for _, tt := range tests {
		if got := LonToX(tt.lon); math.Abs(got-tt.want) > 1e-6 {
			t.Fatalf("LonToX(%v) = %v, want %v", tt.lon, got, tt.want)
		}
	}
}

func TestLatToY(t *testing.T) {
	if got := LatToY(0); math.Abs(got-WorldScale/2) > 1e-6 {
		t.Fatalf("LatToY(0) = %v, want %v", got, WorldScale/2)
	}
	// North is up: higher latitudes have smaller y.
	if LatToY(45) >= LatToY(0) {
		t.Fatalf("LatToY(45) = %v, want < LatToY(0)", LatToY(45))
	}
	if math.Abs(LatToY(30)-(WorldScale-LatToY(-30))) > 1e-6 {
		t.Fatalf("LatToY not symmetric around the equator")
	}
}

func TestProjectNegatesY(t *testing.T) {
	p := Project(domain.LatLng{Lat: 33.45, Lng: -112.07})
	if p.X() != LonToX(-112.07) {
		t.Fatalf("x = %v, want %v", p.X(), LonToX(-112.07))
	}
	if p.Y() != -LatToY(33.45) {
		t.Fatalf("y = %v, want %v", p.Y(), -LatToY(33.45))
	}
}

func TestVisibleWidthAndZoomForRangeInverse(t *testing.T) {
	for _, z := range []float64{12, 14, 16.5, 18} {
		w := VisibleWidth(z)
		if got := ZoomForRange(w); math.Abs(got-z) > 1e-9 {
			t.Fatalf("ZoomForRange(VisibleWidth(%v)) = %v", z, got)
		}
	}
	if got := VisibleWidth(0); got != WorldScale {
		t.Fatalf("VisibleWidth(0) = %v, want %v", got, WorldScale)
	}
}

func TestCustomScaleDiffersFromDefault(t *testing.T) {
	half := Projection{Scale: WorldScale / 2}
	if half.LonToX(0) == Default.LonToX(0) {
		t.Fatalf("expected different scales to disagree")
	}
}

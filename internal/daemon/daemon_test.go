package daemon

import (
	"testing"

	"github.com/nugget/activity-tracker/internal/display"
)

func TestEncodeDecodeGeometry_RoundTrips(t *testing.T) {
	g := display.Geometry{X: 10, Y: 20, Width: 800, Height: 600}

	got, err := decodeGeometry(encodeGeometry(g))
	if err != nil {
		t.Fatalf("decodeGeometry: %v", err)
	}
	if got != g {
		t.Errorf("decodeGeometry(encodeGeometry(g)) = %+v, want %+v", got, g)
	}
}

func TestDecodeGeometry_RejectsMalformedInput(t *testing.T) {
	cases := []string{"", "1,2,3", "1,2,3,4,5", "x,y,w,h"}
	for _, c := range cases {
		if _, err := decodeGeometry(c); err == nil {
			t.Errorf("decodeGeometry(%q) expected an error, got none", c)
		}
	}
}

func TestGeometryOrZero(t *testing.T) {
	if got := geometryOrZero(nil); got != (display.Geometry{}) {
		t.Errorf("geometryOrZero(nil) = %+v, want zero value", got)
	}

	win := &display.Window{Title: "term"}
	if got := geometryOrZero(win); got != (display.Geometry{}) {
		t.Errorf("geometryOrZero(window without geometry) = %+v, want zero value", got)
	}

	g := display.Geometry{X: 1, Y: 2, Width: 3, Height: 4}
	win.Geometry = &g
	if got := geometryOrZero(win); got != g {
		t.Errorf("geometryOrZero(window with geometry) = %+v, want %+v", got, g)
	}
}

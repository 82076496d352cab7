package display

import (
	"testing"
	"time"
)

func TestMonitorForWindow_CenterContainment(t *testing.T) {
	p := &ScreenProvider{
		cached: []Monitor{
			{Name: "left", X: 0, Y: 0, Width: 1920, Height: 1080, Primary: true},
			{Name: "right", X: 1920, Y: 0, Width: 1920, Height: 1080},
		},
	}
	p.cachedAt = time.Now()

	m, err := p.MonitorForWindow(Geometry{X: 2000, Y: 100, Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("monitor for window: %v", err)
	}
	if m.Name != "right" {
		t.Errorf("expected window centered on right monitor, got %q", m.Name)
	}
}

func TestMonitorForWindow_TieBrokenByPrimary(t *testing.T) {
	p := &ScreenProvider{
		cached: []Monitor{
			{Name: "b", X: 0, Y: 0, Width: 1920, Height: 1080},
			{Name: "a", X: 1920, Y: 0, Width: 1920, Height: 1080, Primary: true},
		},
	}
	p.cachedAt = time.Now()

	// Geometry straddling both with equal overlap and no single center
	// containment: falls to largest-overlap tie, broken by primary-first.
	m, err := p.MonitorForWindow(Geometry{X: 1910, Y: -1000, Width: 20, Height: 1080})
	if err != nil {
		t.Fatalf("monitor for window: %v", err)
	}
	if !m.Primary {
		t.Errorf("expected tie to be broken in favor of the primary monitor, got %+v", m)
	}
}

func TestListMonitors_FallsBackToSynthetic(t *testing.T) {
	monitors := syntheticPrimary()
	if len(monitors) != 1 || !monitors[0].Primary {
		t.Errorf("synthetic fallback should yield exactly one primary monitor, got %+v", monitors)
	}
}

func TestNullWindowProvider_AlwaysNil(t *testing.T) {
	var p NullWindowProvider
	w, err := p.ActiveWindow()
	if w != nil || err != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", w, err)
	}
}

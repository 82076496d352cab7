package display

import (
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
)

// monitorCacheTTL is how long ListMonitors caches the enumerated
// displays before re-querying the platform.
const monitorCacheTTL = 60 * time.Second

// ScreenProvider is a MonitorProvider backed by kbinani/screenshot. It is
// also used by internal/capture to grab pixels, so CaptureDisplay and
// CaptureRect are exposed alongside the MonitorProvider contract.
type ScreenProvider struct {
	mu        sync.Mutex
	cached    []Monitor
	cachedAt  time.Time
}

// NewScreenProvider creates a ScreenProvider ready for use.
func NewScreenProvider() *ScreenProvider {
	return &ScreenProvider{}
}

// ListMonitors enumerates active displays via screenshot.NumActiveDisplays
// and screenshot.GetDisplayBounds, caching the result for
// monitorCacheTTL. If discovery fails or finds nothing, it falls back to
// a synthetic 1920x1080 primary monitor so callers always get at least
// one entry.
func (p *ScreenProvider) ListMonitors() ([]Monitor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Since(p.cachedAt) < monitorCacheTTL {
		return p.cached, nil
	}

	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		p.cached = syntheticPrimary()
		p.cachedAt = time.Now()
		return p.cached, nil
	}

	monitors := make([]Monitor, 0, n)
	for i := 0; i < n; i++ {
		bounds := screenshot.GetDisplayBounds(i)
		monitors = append(monitors, Monitor{
			Name:    fmt.Sprintf("display-%d", i),
			X:       bounds.Min.X,
			Y:       bounds.Min.Y,
			Width:   bounds.Dx(),
			Height:  bounds.Dy(),
			Primary: i == 0,
		})
	}

	p.cached = monitors
	p.cachedAt = time.Now()
	return monitors, nil
}

func syntheticPrimary() []Monitor {
	return []Monitor{{Name: "synthetic-primary", X: 0, Y: 0, Width: 1920, Height: 1080, Primary: true}}
}

// MonitorForWindow returns the monitor with the largest overlap against
// geom, preferring the monitor whose bounds contain geom's center. Ties
// are broken deterministically: primary monitors first, then by name.
func (p *ScreenProvider) MonitorForWindow(geom Geometry) (Monitor, error) {
	monitors, err := p.ListMonitors()
	if err != nil {
		return Monitor{}, err
	}
	if len(monitors) == 0 {
		return Monitor{}, fmt.Errorf("no monitors available")
	}

	centerX := geom.X + geom.Width/2
	centerY := geom.Y + geom.Height/2

	var containing []Monitor
	for _, m := range monitors {
		if centerX >= m.X && centerX < m.X+m.Width && centerY >= m.Y && centerY < m.Y+m.Height {
			containing = append(containing, m)
		}
	}
	if len(containing) > 0 {
		return pickDeterministic(containing), nil
	}

	winRect := image.Rect(geom.X, geom.Y, geom.X+geom.Width, geom.Y+geom.Height)
	best := monitors[0]
	bestArea := -1
	var tied []Monitor
	for _, m := range monitors {
		monRect := image.Rect(m.X, m.Y, m.X+m.Width, m.Y+m.Height)
		overlap := winRect.Intersect(monRect)
		area := overlap.Dx() * overlap.Dy()
		if area > bestArea {
			bestArea = area
			best = m
			tied = []Monitor{m}
		} else if area == bestArea {
			tied = append(tied, m)
		}
	}
	if len(tied) > 1 {
		return pickDeterministic(tied), nil
	}
	return best, nil
}

func pickDeterministic(monitors []Monitor) Monitor {
	sort.Slice(monitors, func(i, j int) bool {
		if monitors[i].Primary != monitors[j].Primary {
			return monitors[i].Primary
		}
		return monitors[i].Name < monitors[j].Name
	})
	return monitors[0]
}

// CaptureDisplay grabs the full pixel contents of the primary display.
func (p *ScreenProvider) CaptureDisplay() (*image.RGBA, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, fmt.Errorf("no monitors available")
	}
	return screenshot.CaptureDisplay(0)
}

// CaptureRect grabs the pixel contents of an explicit rectangle,
// typically a window's geometry.
func (p *ScreenProvider) CaptureRect(geom Geometry) (*image.RGBA, error) {
	rect := image.Rect(geom.X, geom.Y, geom.X+geom.Width, geom.Y+geom.Height)
	return screenshot.CaptureRect(rect)
}

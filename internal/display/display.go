// Package display defines the abstract capture capabilities the tracker
// depends on: monitor enumeration, active-window inspection, input
// events, and terminal context. These are contracts,
// not concrete platform implementations — window/input capture is
// inherently OS-specific (X11/Wayland/Win32/Cocoa) and out of scope
// here. MonitorProvider is the one capability with a real, portable
// backend (github.com/kbinani/screenshot), so it gets a concrete
// default; the rest ship as documented interfaces plus a null
// implementation so the rest of the system can be built and tested
// against them today and wired to a real backend later without
// changing any caller.
package display

import "time"

// Monitor describes one physical or virtual display.
type Monitor struct {
	Name    string
	X, Y    int
	Width   int
	Height  int
	Primary bool
}

// Geometry describes a window's on-screen rectangle.
type Geometry struct {
	X, Y          int
	Width, Height int
}

// Window describes the currently focused window, if any.
type Window struct {
	ID          string
	Title       string
	AppName     string
	WindowClass string
	PID         int
	Geometry    *Geometry
}

// MonitorProvider lists displays and maps window geometry to a monitor.
// Implementations must never block longer than a short internal timeout;
// any failure degrades to a synthetic primary monitor rather than
// propagating.
type MonitorProvider interface {
	// ListMonitors returns all known displays. Implementations should
	// cache the result for roughly 60 seconds.
	ListMonitors() ([]Monitor, error)
	// MonitorForWindow returns the monitor that best contains geom: a
	// monitor containing geom's center wins; if none does, the one with
	// the largest overlap. Ties are broken by (primary first, name) for
	// determinism.
	MonitorForWindow(geom Geometry) (Monitor, error)
}

// WindowProvider exposes the active window. Any error or timeout must
// degrade to (nil, nil) — "no window focused" — never propagate.
type WindowProvider interface {
	ActiveWindow() (*Window, error)
}

// InputEvent is an abstract input signal (key press/release, mouse
// move/click/scroll). The AFK detector only cares that one occurred.
type InputEvent struct {
	At time.Time
}

// InputSource delivers input events to a channel. The channel closing
// signals no more events will arrive. If no real input
// source is wired in, the AFK detector runs in degraded mode (spec
// §4.5): "always active."
type InputSource interface {
	Events() <-chan InputEvent
}

// TerminalContextProvider optionally extracts additional context (e.g.
// the current shell command or working directory) when the active
// window is a terminal emulator. Returns "" when unavailable or not
// applicable.
type TerminalContextProvider interface {
	TerminalContext(w Window) (string, error)
}

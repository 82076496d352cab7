// Package focus implements the window focus tracker. It
// polls the active window and emits FocusEvents stamped with the
// session id captured at the moment focus began — not the session
// active when the row is eventually saved.
package focus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/activity-tracker/internal/display"
	"github.com/nugget/activity-tracker/internal/events"
)

// Config controls watcher timing and policy.
type Config struct {
	// PollSeconds is the polling cadence (default 1.0).
	PollSeconds float64
	// MinDurationSeconds is the shortest focus event that will be
	// emitted; shorter ones are discarded silently (default 1.0).
	MinDurationSeconds float64
	// TransientWindowClasses lists window classes that are ignored —
	// their appearance does not close out the current focus.
	TransientWindowClasses []string
}

// DefaultConfig returns the recommended defaults.
func DefaultConfig() Config {
	return Config{PollSeconds: 1.0, MinDurationSeconds: 1.0}
}

// SessionIDProvider returns the session id active right now, or nil if
// none. The watcher calls this exactly once per focus open, at the
// moment focus begins.
type SessionIDProvider func() *int64

// InProgressFocus is the focus currently being tracked.
type InProgressFocus struct {
	WindowTitle string
	AppName     string
	WindowClass string
	StartTime   time.Time
	WindowPID   int
	SessionID   *int64
	windowID    string
}

// FocusEvent is a closed-out focus interval ready to persist.
type FocusEvent struct {
	WindowTitle     string
	AppName         string
	WindowClass     string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
	SessionID       *int64
}

// Watcher polls the active window and emits closed-out focus events.
type Watcher struct {
	cfg      Config
	windows  display.WindowProvider
	sessions SessionIDProvider
	onFocus  func(FocusEvent)
	bus      *events.Bus
	logger   *slog.Logger

	mu      sync.Mutex
	current *InProgressFocus

	transient map[string]struct{}
}

// New creates a Watcher. onFocus is invoked for every closed-out event
// meeting MinDurationSeconds.
func New(cfg Config, windows display.WindowProvider, sessions SessionIDProvider, bus *events.Bus, onFocus func(FocusEvent)) *Watcher {
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = 1.0
	}
	if cfg.MinDurationSeconds <= 0 {
		cfg.MinDurationSeconds = 1.0
	}

	transient := make(map[string]struct{}, len(cfg.TransientWindowClasses))
	for _, c := range cfg.TransientWindowClasses {
		transient[c] = struct{}{}
	}

	return &Watcher{
		cfg:       cfg,
		windows:   windows,
		sessions:  sessions,
		onFocus:   onFocus,
		bus:       bus,
		logger:    slog.Default(),
		transient: transient,
	}
}

// Run blocks until ctx is cancelled, polling the active window on
// cfg.PollSeconds.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(w.cfg.PollSeconds * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(time.Now())
		}
	}
}

func (w *Watcher) tick(now time.Time) {
	win, err := w.windows.ActiveWindow()
	if err != nil {
		w.logger.Debug("active window query failed", "error", err)
		return
	}
	if win == nil {
		return
	}
	if w.isTransient(win.WindowClass) {
		return
	}

	w.mu.Lock()
	sameWindow := w.current != nil && w.current.windowID == win.ID
	w.mu.Unlock()
	if sameWindow {
		return
	}

	closed := w.closeCurrent(now)
	w.openNew(*win, now)

	if closed != nil {
		w.emit(*closed)
	}
}

// closeCurrent ends the in-progress focus (if any) at `at` and clears
// state, returning the closed event if it met the minimum duration.
func (w *Watcher) closeCurrent(at time.Time) *FocusEvent {
	w.mu.Lock()
	cur := w.current
	w.current = nil
	w.mu.Unlock()

	if cur == nil {
		return nil
	}

	duration := at.Sub(cur.StartTime).Seconds()
	if duration < w.cfg.MinDurationSeconds {
		return nil
	}

	return &FocusEvent{
		WindowTitle:     cur.WindowTitle,
		AppName:         cur.AppName,
		WindowClass:     cur.WindowClass,
		StartTime:       cur.StartTime,
		EndTime:         at,
		DurationSeconds: duration,
		SessionID:       cur.SessionID,
	}
}

func (w *Watcher) openNew(win display.Window, at time.Time) {
	sessionID := w.sessions()

	w.mu.Lock()
	w.current = &InProgressFocus{
		WindowTitle: win.Title,
		AppName:     win.AppName,
		WindowClass: win.WindowClass,
		StartTime:   at,
		WindowPID:   win.PID,
		SessionID:   sessionID,
		windowID:    win.ID,
	}
	w.mu.Unlock()
}

// FlushCurrentEvent closes out the current focus using now and clears
// state without opening a replacement. Used by the orchestrator on
// active->afk so AFK time is never absorbed into a focus duration.
func (w *Watcher) FlushCurrentEvent(now time.Time) {
	closed := w.closeCurrent(now)
	if closed != nil {
		w.emit(*closed)
		w.bus.Publish(events.Event{
			Source: events.SourceFocus,
			Kind:   events.KindFocusFlushed,
			Data: map[string]any{
				"window_title": closed.WindowTitle,
				"session_id":   closed.SessionID,
			},
		})
	}
}

func (w *Watcher) emit(ev FocusEvent) {
	w.bus.Publish(events.Event{
		Source: events.SourceFocus,
		Kind:   events.KindFocusChanged,
		Data: map[string]any{
			"window_title":     ev.WindowTitle,
			"app_name":         ev.AppName,
			"duration_seconds": ev.DurationSeconds,
			"session_id":       ev.SessionID,
		},
	})
	if w.onFocus != nil {
		w.onFocus(ev)
	}
}

func (w *Watcher) isTransient(class string) bool {
	if class == "" {
		return false
	}
	_, ok := w.transient[class]
	return ok
}

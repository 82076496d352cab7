// Package session implements the session manager: opens
// and closes contiguous activity intervals, survives daemon restarts via
// a resume-or-restart recovery algorithm, and tracks the screenshots and
// window titles that belong to the currently open session.
package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/activity-tracker/internal/events"
	"github.com/nugget/activity-tracker/internal/store"
)

// Store is the subset of internal/store.Store the manager depends on.
type Store interface {
	CreateSession(start time.Time) (int64, error)
	EndSession(id int64, end time.Time, minSessionMinutes int) error
	GetActiveSession() (*store.Session, error)
	GetLastScreenshotTimestampForSession(id int64) (*time.Time, error)
	AddScreenshotToSession(sessionID, screenshotID int64) error
	TrackWindowTitle(sessionID int64, title string) (bool, error)
}

// Config controls recovery and close-on-minimum-duration policy.
type Config struct {
	// AFKTimeout is how long a session may go without a linked
	// screenshot before a restart treats it as stale.
	AFKTimeout time.Duration
	// MinSessionMinutes: sessions shorter than this are deleted on
	// close rather than persisted.
	MinSessionMinutes int
}

// Manager owns the currently-open session id and enforces invariant I1
// (at most one open session) by construction: it is the sole writer of
// session lifecycle transitions.
type Manager struct {
	store  Store
	cfg    Config
	bus    *events.Bus
	logger *slog.Logger

	activeID int64
	hasActive bool

	onStaleSessionClosed func(sessionID int64)
}

// New creates a Manager. onStaleSessionClosed, if non-nil, is invoked
// during Recover when a restart discovers and closes a stale session —
// the orchestrator uses this hook to trigger that session's
// summarization.
func New(st Store, cfg Config, bus *events.Bus, onStaleSessionClosed func(sessionID int64)) *Manager {
	if cfg.AFKTimeout <= 0 {
		cfg.AFKTimeout = 180 * time.Second
	}
	if cfg.MinSessionMinutes <= 0 {
		cfg.MinSessionMinutes = 1
	}
	return &Manager{store: st, cfg: cfg, bus: bus, logger: slog.Default(), onStaleSessionClosed: onStaleSessionClosed}
}

// Recover implements the startup recovery algorithm:
//  1. Query for an open session.
//  2. If one exists, fetch the timestamp of its most recent linked
//     screenshot.
//  3. If that timestamp is recent (within AFKTimeout), resume it.
//  4. Otherwise close the stale session using that timestamp (or now)
//     as end time, trigger its summarization, then open a new session.
//  5. If no open session exists, open a new one.
func (m *Manager) Recover(now time.Time) error {
	active, err := m.store.GetActiveSession()
	if err != nil {
		return fmt.Errorf("query active session: %w", err)
	}

	if active == nil {
		return m.openNew(now, false)
	}

	lastTS, err := m.store.GetLastScreenshotTimestampForSession(active.ID)
	if err != nil {
		return fmt.Errorf("query last screenshot timestamp: %w", err)
	}

	if lastTS != nil && now.Sub(*lastTS) < m.cfg.AFKTimeout {
		m.activeID = active.ID
		m.hasActive = true
		m.logger.Info("resumed open session", "session_id", active.ID, "last_screenshot", lastTS)
		m.bus.Publish(events.Event{Source: events.SourceSession, Kind: events.KindSessionOpened, Data: map[string]any{
			"session_id": active.ID, "resumed": true,
		}})
		return nil
	}

	endAt := now
	if lastTS != nil {
		endAt = *lastTS
	}
	if err := m.store.EndSession(active.ID, endAt, m.cfg.MinSessionMinutes); err != nil {
		return fmt.Errorf("close stale session: %w", err)
	}
	m.logger.Info("closed stale session on restart", "session_id", active.ID, "end_time", endAt)
	m.bus.Publish(events.Event{Source: events.SourceSession, Kind: events.KindSessionClosed, Data: map[string]any{
		"session_id": active.ID,
	}})
	if m.onStaleSessionClosed != nil {
		m.onStaleSessionClosed(active.ID)
	}

	return m.openNew(now, false)
}

// StartSession returns the id of the open session, opening a new one if
// none is open. Typically called on an afk->active transition.
func (m *Manager) StartSession(now time.Time) (int64, error) {
	return m.activeIDOrOpen(now)
}

func (m *Manager) activeIDOrOpen(now time.Time) (int64, error) {
	if m.hasActive {
		return m.activeID, nil
	}
	if err := m.openNew(now, false); err != nil {
		return 0, err
	}
	return m.activeID, nil
}

func (m *Manager) openNew(now time.Time, resumed bool) error {
	id, err := m.store.CreateSession(now)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	m.activeID = id
	m.hasActive = true
	m.bus.Publish(events.Event{Source: events.SourceSession, Kind: events.KindSessionOpened, Data: map[string]any{
		"session_id": id, "resumed": resumed,
	}})
	return nil
}

// EndSession closes the active session, typically called on an
// active->afk transition or shutdown.
func (m *Manager) EndSession(now time.Time) error {
	if !m.hasActive {
		return nil
	}
	id := m.activeID
	m.hasActive = false
	m.activeID = 0

	if err := m.store.EndSession(id, now, m.cfg.MinSessionMinutes); err != nil {
		return fmt.Errorf("end session %d: %w", id, err)
	}
	m.bus.Publish(events.Event{Source: events.SourceSession, Kind: events.KindSessionClosed, Data: map[string]any{
		"session_id": id,
	}})
	return nil
}

// ActiveSessionID returns the id of the current session and whether one
// is open. Used as a focus.SessionIDProvider.
func (m *Manager) ActiveSessionID() *int64 {
	if !m.hasActive {
		return nil
	}
	id := m.activeID
	return &id
}

// AddScreenshot links a screenshot to the active session, if any.
// Idempotent.
func (m *Manager) AddScreenshot(screenshotID int64) error {
	if !m.hasActive {
		return nil
	}
	return m.store.AddScreenshotToSession(m.activeID, screenshotID)
}

// TrackWindowTitle records a window title against the active session,
// returning true on first occurrence. Returns false with no error if no
// session is open.
func (m *Manager) TrackWindowTitle(title string) (bool, error) {
	if !m.hasActive {
		return false, nil
	}
	return m.store.TrackWindowTitle(m.activeID, title)
}

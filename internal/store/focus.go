package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveFocusEvent persists a closed-out focus event. sessionID reflects
// whatever session was active at the event's start_time (captured by the
// caller, not recomputed here.
func (s *Store) SaveFocusEvent(ev FocusEvent) (int64, error) {
	var sessionID sql.NullInt64
	if ev.SessionID != nil {
		sessionID = sql.NullInt64{Int64: *ev.SessionID, Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO window_focus_events
			(window_title, app_name, window_class, start_time, end_time, duration_seconds, session_id, terminal_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.WindowTitle, ev.AppName, ev.WindowClass, formatTime(ev.StartTime), formatTime(ev.EndTime),
		ev.DurationSeconds, sessionID, ev.TerminalContext)
	if err != nil {
		return 0, fmt.Errorf("save focus event: %w", err)
	}
	return res.LastInsertId()
}

// GetFocusEventsOverlapping returns focus events with a non-null
// session_id whose interval overlaps [start, end). Callers (C8) clip each
// event's duration to the intersection themselves.
func (s *Store) GetFocusEventsOverlapping(start, end time.Time) ([]FocusEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, window_title, app_name, window_class, start_time, end_time, duration_seconds, session_id, terminal_context
		FROM window_focus_events
		WHERE session_id IS NOT NULL AND start_time < ? AND end_time > ?
		ORDER BY start_time ASC
	`, formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("query overlapping focus events: %w", err)
	}
	defer rows.Close()

	var out []FocusEvent
	for rows.Next() {
		ev, err := scanFocusEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan focus event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// GetFocusEventsForSession returns every focus event attributed to a
// session, in chronological order.
func (s *Store) GetFocusEventsForSession(sessionID int64) ([]FocusEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, window_title, app_name, window_class, start_time, end_time, duration_seconds, session_id, terminal_context
		FROM window_focus_events
		WHERE session_id = ?
		ORDER BY start_time ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session focus events: %w", err)
	}
	defer rows.Close()

	var out []FocusEvent
	for rows.Next() {
		ev, err := scanFocusEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan focus event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// ReattributeFocusEvents is the optional one-shot fixup for legacy rows
// that may carry a mis-attributed session_id or an over-long duration.
// It reassigns session_id by
// containment (the session whose bounds contain the event's start_time)
// and clips duration_seconds to that session's end. Events that fall
// within no session have their session_id cleared. Returns the number of
// rows rewritten; every row is rewritten, whether or not its values
// change.
func (s *Store) ReattributeFocusEvents() (int, error) {
	rows, err := s.db.Query(`
		SELECT id, start_time, end_time, duration_seconds FROM window_focus_events
	`)
	if err != nil {
		return 0, fmt.Errorf("query focus events for reattribution: %w", err)
	}
	type row struct {
		id                        int64
		start, end                time.Time
		durationSeconds           float64
	}
	var all []row
	for rows.Next() {
		var r row
		var startStr, endStr string
		if err := rows.Scan(&r.id, &startStr, &endStr, &r.durationSeconds); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan focus event row: %w", err)
		}
		r.start, _ = parseTime(startStr)
		r.end, _ = parseTime(endStr)
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	changed := 0
	for _, r := range all {
		var sessionID sql.NullInt64
		var sessionEnd sql.NullString
		err := s.db.QueryRow(`
			SELECT id, end_time FROM activity_sessions
			WHERE start_time <= ? AND (end_time IS NULL OR end_time >= ?)
			ORDER BY start_time DESC LIMIT 1
		`, formatTime(r.start), formatTime(r.start)).Scan(&sessionID, &sessionEnd)
		if err != nil && err != sql.ErrNoRows {
			return changed, fmt.Errorf("lookup containing session: %w", err)
		}

		clippedEnd := r.end
		if sessionEnd.Valid {
			if end, perr := parseTime(sessionEnd.String); perr == nil && end.Before(clippedEnd) {
				clippedEnd = end
			}
		}
		clippedDuration := clippedEnd.Sub(r.start).Seconds()

		_, err = s.db.Exec(`
			UPDATE window_focus_events SET session_id = ?, end_time = ?, duration_seconds = ? WHERE id = ?
		`, sessionID, formatTime(clippedEnd), clippedDuration, r.id)
		if err != nil {
			return changed, fmt.Errorf("update reattributed focus event: %w", err)
		}
		changed++
	}
	return changed, nil
}

func scanFocusEvent(rows *sql.Rows) (*FocusEvent, error) {
	var ev FocusEvent
	var startStr, endStr string
	var windowTitle, appName, windowClass, terminalContext sql.NullString
	var sessionID sql.NullInt64

	err := rows.Scan(&ev.ID, &windowTitle, &appName, &windowClass, &startStr, &endStr,
		&ev.DurationSeconds, &sessionID, &terminalContext)
	if err != nil {
		return nil, err
	}

	ev.WindowTitle = windowTitle.String
	ev.AppName = appName.String
	ev.WindowClass = windowClass.String
	ev.TerminalContext = terminalContext.String

	ev.StartTime, err = parseTime(startStr)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	ev.EndTime, err = parseTime(endStr)
	if err != nil {
		return nil, fmt.Errorf("parse end_time: %w", err)
	}
	if sessionID.Valid {
		ev.SessionID = &sessionID.Int64
	}
	return &ev, nil
}

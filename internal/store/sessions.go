package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateSession opens a new session row with end_time NULL and returns its
// id. At most one session may be open at a time (invariant I1); callers
// (the session manager, C7) are responsible for enforcing that by
// checking GetActiveSession first.
func (s *Store) CreateSession(start time.Time) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO activity_sessions (start_time) VALUES (?)
	`, formatTime(start))
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	return res.LastInsertId()
}

// EndSession closes a session, computing its duration and refreshing
// screenshot/unique-window counts from the link table. If the resulting
// duration falls below minSessionMinutes, the session and its dependents
// are deleted instead of closed.
func (s *Store) EndSession(id int64, end time.Time, minSessionMinutes int) error {
	return s.withTx(func(tx *sql.Tx) error {
		var startStr string
		if err := tx.QueryRow(`SELECT start_time FROM activity_sessions WHERE id = ?`, id).Scan(&startStr); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("lookup session: %w", err)
		}
		start, err := parseTime(startStr)
		if err != nil {
			return fmt.Errorf("parse session start_time: %w", err)
		}

		duration := end.Sub(start)
		if duration < time.Duration(minSessionMinutes)*time.Minute {
			return deleteSessionTx(tx, id)
		}

		var screenshotCount, uniqueWindows int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM session_screenshots WHERE session_id = ?`, id).Scan(&screenshotCount); err != nil {
			return fmt.Errorf("count session screenshots: %w", err)
		}
		if err := tx.QueryRow(`SELECT COUNT(DISTINCT window_title) FROM session_ocr_cache WHERE session_id = ?`, id).Scan(&uniqueWindows); err != nil {
			return fmt.Errorf("count unique windows: %w", err)
		}

		_, err = tx.Exec(`
			UPDATE activity_sessions
			SET end_time = ?, duration_seconds = ?, screenshot_count = ?, unique_windows = ?
			WHERE id = ?
		`, formatTime(end), int64(duration.Seconds()), screenshotCount, uniqueWindows, id)
		if err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes a session and every row that depends on it:
// session_screenshots links and session_ocr_cache entries. Used both for
// below-threshold sessions (EndSession) and explicit cleanup.
func (s *Store) DeleteSession(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		return deleteSessionTx(tx, id)
	})
}

func deleteSessionTx(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`DELETE FROM session_screenshots WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session_screenshots: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM session_ocr_cache WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session_ocr_cache: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM activity_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// GetActiveSession returns the one session with end_time IS NULL, or nil
// if none is open.
func (s *Store) GetActiveSession() (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, start_time, end_time, duration_seconds, summary, screenshot_count, unique_windows,
		       model_used, inference_time_ms, prompt_text, screenshot_ids_used
		FROM activity_sessions WHERE end_time IS NULL
		ORDER BY start_time DESC LIMIT 1
	`)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return sess, nil
}

// GetSession fetches a single session by id.
func (s *Store) GetSession(id int64) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, start_time, end_time, duration_seconds, summary, screenshot_count, unique_windows,
		       model_used, inference_time_ms, prompt_text, screenshot_ids_used
		FROM activity_sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetLastScreenshotTimestampForSession returns the timestamp of the most
// recent screenshot linked to the session, or nil if none are linked.
// Used by the session-manager recovery algorithm.
func (s *Store) GetLastScreenshotTimestampForSession(id int64) (*time.Time, error) {
	row := s.db.QueryRow(`
		SELECT sc.timestamp
		FROM screenshots sc
		JOIN session_screenshots ss ON ss.screenshot_id = sc.id
		WHERE ss.session_id = ?
		ORDER BY sc.timestamp DESC LIMIT 1
	`, id)

	var ts int64
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get last screenshot timestamp: %w", err)
	}
	t := unixToTime(ts)
	return &t, nil
}

// HasActiveSessionInRange reports whether any session overlaps the
// half-open range [start, end). A session with no end_time is treated as
// open through "now" for overlap purposes.
func (s *Store) HasActiveSessionInRange(start, end time.Time) (bool, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM activity_sessions
		WHERE start_time < ? AND (end_time IS NULL OR end_time > ?)
	`, formatTime(end), formatTime(start))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("has active session in range: %w", err)
	}
	return count > 0, nil
}

// AddScreenshotToSession is an alias for LinkScreenshotToSession matching
// the session manager's naming; idempotent.
func (s *Store) AddScreenshotToSession(sessionID, screenshotID int64) error {
	return s.LinkScreenshotToSession(sessionID, screenshotID)
}

// TrackWindowTitle records that title has been seen within session id,
// returning true on the first occurrence. Backed by session_ocr_cache's
// (session_id, window_title) key, which also underlies unique_windows
// counting in EndSession.
func (s *Store) TrackWindowTitle(sessionID int64, title string) (bool, error) {
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO session_ocr_cache (session_id, window_title) VALUES (?, ?)
	`, sessionID, title)
	if err != nil {
		return false, fmt.Errorf("track window title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("track window title rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var endTime, summary, modelUsed, promptText, screenshotIDsUsed sql.NullString
	var durationSeconds, inferenceTimeMs sql.NullInt64
	var startStr string

	err := row.Scan(&sess.ID, &startStr, &endTime, &durationSeconds, &summary, &sess.ScreenshotCount,
		&sess.UniqueWindows, &modelUsed, &inferenceTimeMs, &promptText, &screenshotIDsUsed)
	if err != nil {
		return nil, err
	}

	sess.StartTime, err = parseTime(startStr)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if endTime.Valid {
		t, err := parseTime(endTime.String)
		if err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		sess.EndTime = &t
	}
	if durationSeconds.Valid {
		sess.DurationSeconds = &durationSeconds.Int64
	}
	if inferenceTimeMs.Valid {
		sess.InferenceTimeMs = &inferenceTimeMs.Int64
	}
	sess.Summary = summary.String
	sess.ModelUsed = modelUsed.String
	sess.PromptText = promptText.String
	sess.ScreenshotIDsUsed = decodeIDList(screenshotIDsUsed.String)

	return &sess, nil
}

package store

import (
	"database/sql"
	"fmt"
)

// InsertScreenshot records a newly captured screenshot and returns its id.
// Screenshots are immutable after insert except for later link rows.
func (s *Store) InsertScreenshot(meta Screenshot) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO screenshots (timestamp, filepath, dhash, window_title, app_name, window_geometry, monitor)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, meta.Timestamp.Unix(), meta.Filepath, meta.DHash, meta.WindowTitle, meta.AppName, meta.WindowGeometry, meta.Monitor)
	if err != nil {
		return 0, fmt.Errorf("insert screenshot: %w", err)
	}
	return res.LastInsertId()
}

// LinkScreenshotToSession associates a screenshot with a session.
// Idempotent: linking the same pair twice is a no-op.
func (s *Store) LinkScreenshotToSession(sessionID, screenshotID int64) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO session_screenshots (session_id, screenshot_id) VALUES (?, ?)
	`, sessionID, screenshotID)
	if err != nil {
		return fmt.Errorf("link screenshot to session: %w", err)
	}
	return nil
}

// GetUnsummarizedScreenshots returns screenshots absent from every
// threshold_summary_screenshots row, ordered by timestamp descending
// (recency-first). If requireSession is true, only screenshots linked to
// some session are considered. If since is non-nil, only screenshots with
// timestamp >= since are considered.
func (s *Store) GetUnsummarizedScreenshots(requireSession bool, since *int64) ([]Screenshot, error) {
	query := `
		SELECT sc.id, sc.timestamp, sc.filepath, sc.dhash, sc.window_title, sc.app_name, sc.window_geometry, sc.monitor
		FROM screenshots sc
		WHERE NOT EXISTS (
			SELECT 1 FROM threshold_summary_screenshots tss WHERE tss.screenshot_id = sc.id
		)
	`
	var args []any

	if requireSession {
		query += ` AND EXISTS (SELECT 1 FROM session_screenshots ss WHERE ss.screenshot_id = sc.id)`
	}
	if since != nil {
		query += ` AND sc.timestamp >= ?`
		args = append(args, *since)
	}
	query += ` ORDER BY sc.timestamp DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unsummarized screenshots: %w", err)
	}
	defer rows.Close()

	return scanScreenshots(rows)
}

// GetScreenshotsInRange returns screenshots whose timestamp lies in
// [start, end), ordered by timestamp ascending.
func (s *Store) GetScreenshotsInRange(start, end int64) ([]Screenshot, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, filepath, dhash, window_title, app_name, window_geometry, monitor
		FROM screenshots
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query screenshots in range: %w", err)
	}
	defer rows.Close()

	return scanScreenshots(rows)
}

// GetScreenshot fetches a single screenshot by id.
func (s *Store) GetScreenshot(id int64) (*Screenshot, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, filepath, dhash, window_title, app_name, window_geometry, monitor
		FROM screenshots WHERE id = ?
	`, id)
	shot, err := scanScreenshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get screenshot: %w", err)
	}
	return shot, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScreenshot(row rowScanner) (*Screenshot, error) {
	var shot Screenshot
	var ts int64
	var windowTitle, appName, geometry, monitor sql.NullString

	if err := row.Scan(&shot.ID, &ts, &shot.Filepath, &shot.DHash, &windowTitle, &appName, &geometry, &monitor); err != nil {
		return nil, err
	}
	shot.Timestamp = unixToTime(ts)
	shot.WindowTitle = windowTitle.String
	shot.AppName = appName.String
	shot.WindowGeometry = geometry.String
	shot.Monitor = monitor.String
	return &shot, nil
}

func scanScreenshots(rows *sql.Rows) ([]Screenshot, error) {
	var out []Screenshot
	for rows.Next() {
		shot, err := scanScreenshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan screenshot: %w", err)
		}
		out = append(out, *shot)
	}
	return out, rows.Err()
}

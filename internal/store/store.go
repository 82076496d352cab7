// Package store is the sole owner of durable activity-tracker state. It
// wraps a SQLite database and exposes typed query/command operations;
// callers never see schema or SQL. Open limits the database/sql pool to
// a single connection, so reads and writes through a Store it returns
// are serialized.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is the ISO-8601 local format used for all session, focus
// event, and summary boundary timestamps. Screenshot.Timestamp is the
// exception and is stored as POSIX seconds (spec data model, §6).
const timeLayout = time.RFC3339

// Store wraps an open database handle. The caller supplies the *sql.DB so
// tests can substitute the pure-Go modernc.org/sqlite driver for the
// cgo-based mattn/go-sqlite3 driver used in production.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path using the
// mattn/go-sqlite3 driver with WAL journaling, and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// New wraps an already-open database handle, running migrations. Used by
// tests against an in-memory modernc.org/sqlite database.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema if absent. Every statement uses CREATE TABLE
// IF NOT EXISTS / CREATE INDEX IF NOT EXISTS so that repeated calls, and
// calls against a database from an older schema version, are safe.
// There is no version table, and columns missing from an existing table
// are not added.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS screenshots (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp       INTEGER NOT NULL,
		filepath        TEXT NOT NULL,
		dhash           TEXT NOT NULL,
		window_title    TEXT,
		app_name        TEXT,
		window_geometry TEXT,
		monitor         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_screenshots_timestamp ON screenshots(timestamp);

	CREATE TABLE IF NOT EXISTS activity_sessions (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		start_time          TEXT NOT NULL,
		end_time            TEXT,
		duration_seconds    INTEGER,
		summary             TEXT,
		screenshot_count    INTEGER NOT NULL DEFAULT 0,
		unique_windows      INTEGER NOT NULL DEFAULT 0,
		model_used          TEXT,
		inference_time_ms   INTEGER,
		prompt_text         TEXT,
		screenshot_ids_used TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON activity_sessions(start_time);

	CREATE TABLE IF NOT EXISTS session_screenshots (
		session_id    INTEGER NOT NULL,
		screenshot_id INTEGER NOT NULL,
		PRIMARY KEY (session_id, screenshot_id)
	);
	CREATE INDEX IF NOT EXISTS idx_session_screenshots_screenshot ON session_screenshots(screenshot_id);

	CREATE TABLE IF NOT EXISTS session_ocr_cache (
		session_id           INTEGER NOT NULL,
		window_title         TEXT NOT NULL,
		ocr_text             TEXT,
		sample_screenshot_id INTEGER,
		PRIMARY KEY (session_id, window_title)
	);

	CREATE TABLE IF NOT EXISTS window_focus_events (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		window_title     TEXT,
		app_name         TEXT,
		window_class     TEXT,
		start_time       TEXT NOT NULL,
		end_time         TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		session_id       INTEGER,
		terminal_context TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_focus_events_start_time ON window_focus_events(start_time);
	CREATE INDEX IF NOT EXISTS idx_focus_events_session ON window_focus_events(session_id);

	CREATE TABLE IF NOT EXISTS threshold_summaries (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		start_time        TEXT NOT NULL,
		end_time          TEXT NOT NULL,
		summary           TEXT NOT NULL,
		screenshot_count  INTEGER NOT NULL DEFAULT 0,
		model_used        TEXT,
		config_snapshot   TEXT,
		inference_time_ms INTEGER,
		prompt_text       TEXT,
		explanation       TEXT,
		tags              TEXT,
		confidence        REAL,
		project           TEXT,
		regenerated_from  INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_start_time ON threshold_summaries(start_time);

	CREATE TABLE IF NOT EXISTS threshold_summary_screenshots (
		summary_id    INTEGER NOT NULL,
		screenshot_id INTEGER NOT NULL,
		PRIMARY KEY (summary_id, screenshot_id)
	);
	CREATE INDEX IF NOT EXISTS idx_summary_screenshots_screenshot ON threshold_summary_screenshots(screenshot_id);

	CREATE TABLE IF NOT EXISTS cached_reports (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		period_type        TEXT NOT NULL,
		period_date        TEXT NOT NULL,
		start_time         TEXT NOT NULL,
		end_time           TEXT NOT NULL,
		executive_summary  TEXT,
		sections           TEXT,
		analytics          TEXT,
		model_used         TEXT,
		child_summary_ids  TEXT,
		UNIQUE(period_type, period_date)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Used by EndSession, DeleteSession and
// SaveThresholdSummary so a crash cannot leave their writes half done.
func (s *Store) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// HasSummaryForTimeRange reports whether a non-regenerated summary exists
// for the exact (start, end) pair. This is the canonical guard for
// invariant I6, consulted by both the scheduler and force-backfill so
// races between the two never produce a duplicate.
func (s *Store) HasSummaryForTimeRange(start, end time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM threshold_summaries
		WHERE start_time = ? AND end_time = ? AND regenerated_from IS NULL
	`, formatTime(start), formatTime(end)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has summary for time range: %w", err)
	}
	return count > 0, nil
}

// SaveThresholdSummary atomically inserts the summary row and its
// screenshot link rows. screenshotIDs is the full evidence set (every
// screenshot considered, not merely the sampled subset passed to the
// LLM) so that GetUnsummarizedScreenshots excludes all of them afterward.
func (s *Store) SaveThresholdSummary(sum ThresholdSummary, screenshotIDs []int64) (int64, error) {
	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		var confidence sql.NullFloat64
		if sum.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *sum.Confidence, Valid: true}
		}
		var regeneratedFrom sql.NullInt64
		if sum.RegeneratedFrom != nil {
			regeneratedFrom = sql.NullInt64{Int64: *sum.RegeneratedFrom, Valid: true}
		}

		res, err := tx.Exec(`
			INSERT INTO threshold_summaries
				(start_time, end_time, summary, screenshot_count, model_used, config_snapshot,
				 inference_time_ms, prompt_text, explanation, tags, confidence, project, regenerated_from)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, formatTime(sum.StartTime), formatTime(sum.EndTime), sum.Summary, len(screenshotIDs), sum.ModelUsed,
			sum.ConfigSnapshot, sum.InferenceTimeMs, sum.PromptText, sum.Explanation,
			encodeStringList(sum.Tags), confidence, sum.Project, regeneratedFrom)
		if err != nil {
			return fmt.Errorf("insert threshold_summary: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		for _, sid := range screenshotIDs {
			if _, err := tx.Exec(`
				INSERT OR IGNORE INTO threshold_summary_screenshots (summary_id, screenshot_id) VALUES (?, ?)
			`, id, sid); err != nil {
				return fmt.Errorf("link summary screenshot: %w", err)
			}
		}
		return nil
	})
	return id, err
}

// GetThresholdSummary fetches one summary by id, including its linked
// screenshot ids (the source of truth per invariant I5).
func (s *Store) GetThresholdSummary(id int64) (*ThresholdSummary, error) {
	row := s.db.QueryRow(`
		SELECT id, start_time, end_time, summary, screenshot_count, model_used, config_snapshot,
		       inference_time_ms, prompt_text, explanation, tags, confidence, project, regenerated_from
		FROM threshold_summaries WHERE id = ?
	`, id)

	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get threshold summary: %w", err)
	}

	ids, err := s.linkedScreenshotIDs(id)
	if err != nil {
		return nil, err
	}
	sum.ScreenshotIDs = ids
	return sum, nil
}

// GetSummaryVersions returns the root summary and every regeneration
// linked to it via regenerated_from, ordered oldest first (root first).
func (s *Store) GetSummaryVersions(rootID int64) ([]ThresholdSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, start_time, end_time, summary, screenshot_count, model_used, config_snapshot,
		       inference_time_ms, prompt_text, explanation, tags, confidence, project, regenerated_from
		FROM threshold_summaries
		WHERE id = ? OR regenerated_from = ?
		ORDER BY id ASC
	`, rootID, rootID)
	if err != nil {
		return nil, fmt.Errorf("get summary versions: %w", err)
	}
	defer rows.Close()

	var out []ThresholdSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary version: %w", err)
		}
		ids, err := s.linkedScreenshotIDs(sum.ID)
		if err != nil {
			return nil, err
		}
		sum.ScreenshotIDs = ids
		out = append(out, *sum)
	}
	return out, rows.Err()
}

// GetSummariesInRange returns every summary (including regenerations)
// whose [start_time, end_time) overlaps [start, end).
func (s *Store) GetSummariesInRange(start, end time.Time) ([]ThresholdSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, start_time, end_time, summary, screenshot_count, model_used, config_snapshot,
		       inference_time_ms, prompt_text, explanation, tags, confidence, project, regenerated_from
		FROM threshold_summaries
		WHERE start_time < ? AND end_time > ?
		ORDER BY start_time ASC
	`, formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("get summaries in range: %w", err)
	}
	defer rows.Close()

	var out []ThresholdSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

// GetMostRecentSummary returns the latest summary by start_time strictly
// before cutoff, used to feed include_previous_summary context.
func (s *Store) GetMostRecentSummary(cutoff time.Time) (*ThresholdSummary, error) {
	row := s.db.QueryRow(`
		SELECT id, start_time, end_time, summary, screenshot_count, model_used, config_snapshot,
		       inference_time_ms, prompt_text, explanation, tags, confidence, project, regenerated_from
		FROM threshold_summaries
		WHERE start_time < ?
		ORDER BY start_time DESC LIMIT 1
	`, formatTime(cutoff))

	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get most recent summary: %w", err)
	}
	return sum, nil
}

func (s *Store) linkedScreenshotIDs(summaryID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT screenshot_id FROM threshold_summary_screenshots WHERE summary_id = ?`, summaryID)
	if err != nil {
		return nil, fmt.Errorf("query linked screenshot ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan linked screenshot id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSummary(row rowScanner) (*ThresholdSummary, error) {
	var sum ThresholdSummary
	var startStr, endStr string
	var modelUsed, configSnapshot, promptText, explanation, tags, project sql.NullString
	var inferenceTimeMs sql.NullInt64
	var confidence sql.NullFloat64
	var regeneratedFrom sql.NullInt64

	err := row.Scan(&sum.ID, &startStr, &endStr, &sum.Summary, &sum.ScreenshotCount, &modelUsed,
		&configSnapshot, &inferenceTimeMs, &promptText, &explanation, &tags, &confidence, &project, &regeneratedFrom)
	if err != nil {
		return nil, err
	}

	sum.StartTime, err = parseTime(startStr)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	sum.EndTime, err = parseTime(endStr)
	if err != nil {
		return nil, fmt.Errorf("parse end_time: %w", err)
	}
	sum.ModelUsed = modelUsed.String
	sum.ConfigSnapshot = configSnapshot.String
	sum.PromptText = promptText.String
	sum.Explanation = explanation.String
	sum.Project = project.String
	sum.Tags = decodeStringList(tags.String)
	if inferenceTimeMs.Valid {
		sum.InferenceTimeMs = inferenceTimeMs.Int64
	}
	if confidence.Valid {
		sum.Confidence = &confidence.Float64
	}
	if regeneratedFrom.Valid {
		sum.RegeneratedFrom = &regeneratedFrom.Int64
	}
	return &sum, nil
}

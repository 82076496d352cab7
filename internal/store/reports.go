package store

import (
	"database/sql"
	"fmt"
)

// SaveCachedReport inserts or replaces the rollup for (period_type,
// period_date). Replacing lets a daily report be regenerated once more
// evidence arrives without accumulating duplicate rows.
func (s *Store) SaveCachedReport(r CachedReport) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO cached_reports
			(period_type, period_date, start_time, end_time, executive_summary, sections, analytics, model_used, child_summary_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_type, period_date) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			executive_summary = excluded.executive_summary,
			sections = excluded.sections,
			analytics = excluded.analytics,
			model_used = excluded.model_used,
			child_summary_ids = excluded.child_summary_ids
	`, r.PeriodType, r.PeriodDate, formatTime(r.StartTime), formatTime(r.EndTime), r.ExecutiveSummary,
		r.Sections, r.Analytics, r.ModelUsed, encodeIDList(r.ChildSummaryIDs))
	if err != nil {
		return 0, fmt.Errorf("save cached report: %w", err)
	}

	var id int64
	err = s.db.QueryRow(`SELECT id FROM cached_reports WHERE period_type = ? AND period_date = ?`,
		r.PeriodType, r.PeriodDate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup cached report id: %w", err)
	}
	return id, nil
}

// GetCachedReport returns the rollup for the given period, or nil if none
// has been built yet.
func (s *Store) GetCachedReport(periodType, periodDate string) (*CachedReport, error) {
	row := s.db.QueryRow(`
		SELECT id, period_type, period_date, start_time, end_time, executive_summary, sections, analytics, model_used, child_summary_ids
		FROM cached_reports WHERE period_type = ? AND period_date = ?
	`, periodType, periodDate)

	report, err := scanCachedReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached report: %w", err)
	}
	return report, nil
}

// HasCachedReport reports whether a rollup already exists for the period,
// without loading it.
func (s *Store) HasCachedReport(periodType, periodDate string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM cached_reports WHERE period_type = ? AND period_date = ?`,
		periodType, periodDate).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has cached report: %w", err)
	}
	return count > 0, nil
}

func scanCachedReport(row rowScanner) (*CachedReport, error) {
	var r CachedReport
	var startStr, endStr string
	var executiveSummary, sections, analytics, modelUsed, childIDs sql.NullString

	err := row.Scan(&r.ID, &r.PeriodType, &r.PeriodDate, &startStr, &endStr,
		&executiveSummary, &sections, &analytics, &modelUsed, &childIDs)
	if err != nil {
		return nil, err
	}

	r.StartTime, err = parseTime(startStr)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	r.EndTime, err = parseTime(endStr)
	if err != nil {
		return nil, fmt.Errorf("parse end_time: %w", err)
	}
	r.ExecutiveSummary = executiveSummary.String
	r.Sections = sections.String
	r.Analytics = analytics.String
	r.ModelUsed = modelUsed.String
	r.ChildSummaryIDs = decodeIDList(childIDs.String)

	return &r, nil
}

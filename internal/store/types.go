package store

import "time"

// Screenshot is an immutable capture row. Timestamp is POSIX seconds per
// spec (data model §3); everything else follows ISO-8601 local time.
type Screenshot struct {
	ID             int64
	Timestamp      time.Time
	Filepath       string
	DHash          string
	WindowTitle    string
	AppName        string
	WindowGeometry string
	Monitor        string
}

// Session is a maximal contiguous interval of activity.
type Session struct {
	ID               int64
	StartTime        time.Time
	EndTime          *time.Time
	DurationSeconds  *int64
	Summary          string
	ScreenshotCount  int
	UniqueWindows    int
	ModelUsed        string
	InferenceTimeMs  *int64
	PromptText       string
	ScreenshotIDsUsed []int64
}

// Open reports whether the session has not yet been closed.
func (s Session) Open() bool {
	return s.EndTime == nil
}

// FocusEvent is a maximal contiguous interval during which a single window
// held focus. SessionID is captured at focus start, not at save time.
type FocusEvent struct {
	ID              int64
	WindowTitle     string
	AppName         string
	WindowClass     string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
	SessionID       *int64
	TerminalContext string
}

// ThresholdSummary is the primary summary entity, keyed by slot range.
type ThresholdSummary struct {
	ID               int64
	StartTime        time.Time
	EndTime          time.Time
	Summary          string
	ScreenshotIDs    []int64
	ScreenshotCount  int
	ModelUsed        string
	ConfigSnapshot   string
	InferenceTimeMs  int64
	PromptText       string
	Explanation      string
	Tags             []string
	Confidence       *float64
	Project          string
	RegeneratedFrom  *int64
}

// CachedReport is a rollup over lower-level summaries.
type CachedReport struct {
	ID               int64
	PeriodType       string // "daily", "weekly", "monthly"
	PeriodDate       string
	StartTime        time.Time
	EndTime          time.Time
	ExecutiveSummary string
	Sections         string
	Analytics        string
	ModelUsed        string
	ChildSummaryIDs  []int64
}

package store

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestCreateAndGetActiveSession(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	id, err := s.CreateSession(start)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	active, err := s.GetActiveSession()
	if err != nil {
		t.Fatalf("get active session: %v", err)
	}
	if active == nil {
		t.Fatal("expected an active session")
	}
	if active.ID != id {
		t.Errorf("active session id = %d, want %d", active.ID, id)
	}
	if !active.Open() {
		t.Error("expected session to be open")
	}
}

func TestAtMostOneActiveSession(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	id1, _ := s.CreateSession(start)
	if err := s.EndSession(id1, start.Add(5*time.Minute), 1); err != nil {
		t.Fatalf("end session: %v", err)
	}
	s.CreateSession(start.Add(6 * time.Minute))

	row := s.db.QueryRow(`SELECT COUNT(*) FROM activity_sessions WHERE end_time IS NULL`)
	var count int
	row.Scan(&count)
	if count != 1 {
		t.Errorf("open session count = %d, want 1", count)
	}
}

func TestEndSession_BelowMinimumDeletesSession(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	id, _ := s.CreateSession(start)
	shotID, _ := s.InsertScreenshot(Screenshot{Timestamp: start.Add(10 * time.Second), Filepath: "/tmp/a.webp", DHash: "abc"})
	s.LinkScreenshotToSession(id, shotID)

	if err := s.EndSession(id, start.Add(30*time.Second), 1); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess != nil {
		t.Errorf("expected session below min duration to be deleted, got %+v", sess)
	}

	var linkCount int
	s.db.QueryRow(`SELECT COUNT(*) FROM session_screenshots WHERE session_id = ?`, id).Scan(&linkCount)
	if linkCount != 0 {
		t.Errorf("expected dependent links to be deleted, found %d", linkCount)
	}
}

func TestEndSession_ComputesCounts(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	id, _ := s.CreateSession(start)

	shot1, _ := s.InsertScreenshot(Screenshot{Timestamp: start.Add(1 * time.Minute), Filepath: "/tmp/a.webp", DHash: "a"})
	shot2, _ := s.InsertScreenshot(Screenshot{Timestamp: start.Add(2 * time.Minute), Filepath: "/tmp/b.webp", DHash: "b"})
	s.LinkScreenshotToSession(id, shot1)
	s.LinkScreenshotToSession(id, shot2)
	s.TrackWindowTitle(id, "Firefox")
	s.TrackWindowTitle(id, "Terminal")

	if err := s.EndSession(id, start.Add(5*time.Minute), 1); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sess, err := s.GetSession(id)
	if err != nil || sess == nil {
		t.Fatalf("get session: %v, %v", sess, err)
	}
	if sess.ScreenshotCount != 2 {
		t.Errorf("screenshot_count = %d, want 2", sess.ScreenshotCount)
	}
	if sess.UniqueWindows != 2 {
		t.Errorf("unique_windows = %d, want 2", sess.UniqueWindows)
	}
	if sess.DurationSeconds == nil || *sess.DurationSeconds != 300 {
		t.Errorf("duration_seconds = %v, want 300", sess.DurationSeconds)
	}
}

func TestLinkScreenshotToSession_Idempotent(t *testing.T) {
	s := newTestStore(t)
	start := time.Now()
	id, _ := s.CreateSession(start)
	shotID, _ := s.InsertScreenshot(Screenshot{Timestamp: start, Filepath: "/tmp/a.webp", DHash: "a"})

	for i := 0; i < 3; i++ {
		if err := s.LinkScreenshotToSession(id, shotID); err != nil {
			t.Fatalf("link screenshot: %v", err)
		}
	}

	var count int
	s.db.QueryRow(`SELECT COUNT(*) FROM session_screenshots WHERE session_id = ? AND screenshot_id = ?`, id, shotID).Scan(&count)
	if count != 1 {
		t.Errorf("link count = %d, want 1", count)
	}
}

func TestGetUnsummarizedScreenshots(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	id1, _ := s.InsertScreenshot(Screenshot{Timestamp: now, Filepath: "/tmp/a.webp", DHash: "a"})
	id2, _ := s.InsertScreenshot(Screenshot{Timestamp: now.Add(time.Second), Filepath: "/tmp/b.webp", DHash: "b"})

	sum := ThresholdSummary{StartTime: now, EndTime: now.Add(15 * time.Minute), Summary: "did stuff"}
	if _, err := s.SaveThresholdSummary(sum, []int64{id1}); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	unsummarized, err := s.GetUnsummarizedScreenshots(false, nil)
	if err != nil {
		t.Fatalf("get unsummarized: %v", err)
	}
	if len(unsummarized) != 1 || unsummarized[0].ID != id2 {
		t.Errorf("unsummarized = %+v, want just id %d", unsummarized, id2)
	}
}

func TestHasSummaryForTimeRange(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	has, err := s.HasSummaryForTimeRange(start, end)
	if err != nil {
		t.Fatalf("has summary: %v", err)
	}
	if has {
		t.Fatal("expected no summary yet")
	}

	if _, err := s.SaveThresholdSummary(ThresholdSummary{StartTime: start, EndTime: end, Summary: "x"}, nil); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	has, err = s.HasSummaryForTimeRange(start, end)
	if err != nil {
		t.Fatalf("has summary: %v", err)
	}
	if !has {
		t.Error("expected summary to be found")
	}
}

func TestSaveThresholdSummary_RegenerationCoexists(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	rootID, err := s.SaveThresholdSummary(ThresholdSummary{StartTime: start, EndTime: end, Summary: "original"}, nil)
	if err != nil {
		t.Fatalf("save root summary: %v", err)
	}

	regenID, err := s.SaveThresholdSummary(ThresholdSummary{
		StartTime: start, EndTime: end, Summary: "regenerated", RegeneratedFrom: &rootID,
	}, nil)
	if err != nil {
		t.Fatalf("save regenerated summary: %v", err)
	}

	versions, err := s.GetSummaryVersions(rootID)
	if err != nil {
		t.Fatalf("get summary versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].ID != rootID || versions[1].ID != regenID {
		t.Errorf("versions = %+v", versions)
	}

	// The original and the regeneration share a range; I6 only binds
	// non-regenerated rows, so this must not collide.
	has, err := s.HasSummaryForTimeRange(start, end)
	if err != nil || !has {
		t.Fatalf("expected non-regenerated root to still satisfy HasSummaryForTimeRange: %v, %v", has, err)
	}
}

func TestHasActiveSessionInRange(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 11, 0, 0, 0, time.UTC)
	id, _ := s.CreateSession(start)
	s.EndSession(id, start.Add(5*time.Minute), 1)

	has, err := s.HasActiveSessionInRange(start.Add(-time.Minute), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("has active session: %v", err)
	}
	if !has {
		t.Error("expected overlap to be detected")
	}

	has, err = s.HasActiveSessionInRange(start.Add(time.Hour), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("has active session: %v", err)
	}
	if has {
		t.Error("expected no overlap for a disjoint range")
	}
}

func TestGetLastScreenshotTimestampForSession(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	id, _ := s.CreateSession(start)

	ts, err := s.GetLastScreenshotTimestampForSession(id)
	if err != nil {
		t.Fatalf("get last screenshot ts: %v", err)
	}
	if ts != nil {
		t.Errorf("expected nil for session with no screenshots, got %v", ts)
	}

	first := start.Add(time.Minute)
	last := start.Add(10 * time.Minute)
	shot1, _ := s.InsertScreenshot(Screenshot{Timestamp: first, Filepath: "/a.webp", DHash: "a"})
	shot2, _ := s.InsertScreenshot(Screenshot{Timestamp: last, Filepath: "/b.webp", DHash: "b"})
	s.LinkScreenshotToSession(id, shot1)
	s.LinkScreenshotToSession(id, shot2)

	ts, err = s.GetLastScreenshotTimestampForSession(id)
	if err != nil {
		t.Fatalf("get last screenshot ts: %v", err)
	}
	if ts == nil || !ts.Equal(last) {
		t.Errorf("last screenshot ts = %v, want %v", ts, last)
	}
}

func TestSaveFocusEvent_AndOverlapQuery(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	sessionID, _ := s.CreateSession(start)

	_, err := s.SaveFocusEvent(FocusEvent{
		WindowTitle: "Firefox", AppName: "firefox", WindowClass: "Navigator",
		StartTime: start, EndTime: start.Add(4 * time.Second), DurationSeconds: 4,
		SessionID: &sessionID,
	})
	if err != nil {
		t.Fatalf("save focus event: %v", err)
	}

	events, err := s.GetFocusEventsOverlapping(start.Add(-time.Minute), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("get overlapping: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 overlapping event, got %d", len(events))
	}
	if events[0].SessionID == nil || *events[0].SessionID != sessionID {
		t.Errorf("session_id = %v, want %d", events[0].SessionID, sessionID)
	}
}

func TestReattributeFocusEvents_FixesMissingSessionIDAndClipsDuration(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	sessionID, _ := s.CreateSession(start)
	if err := s.EndSession(sessionID, start.Add(time.Hour), 1); err != nil {
		t.Fatalf("end session: %v", err)
	}

	// Missing session_id, but falls within the session's bounds.
	unattributedID, err := s.SaveFocusEvent(FocusEvent{
		WindowTitle: "Editor", StartTime: start.Add(time.Minute), EndTime: start.Add(2 * time.Minute),
		DurationSeconds: 60,
	})
	if err != nil {
		t.Fatalf("save unattributed focus event: %v", err)
	}

	// Over-long duration extending past the session's end; should be clipped.
	wrongID, err := s.SaveFocusEvent(FocusEvent{
		WindowTitle: "Terminal", StartTime: start.Add(50 * time.Minute), EndTime: start.Add(2 * time.Hour),
		DurationSeconds: 4200,
	})
	if err != nil {
		t.Fatalf("save over-long focus event: %v", err)
	}

	changed, err := s.ReattributeFocusEvents()
	if err != nil {
		t.Fatalf("reattribute: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 rows changed, got %d", changed)
	}

	fixed, err := s.GetFocusEventsOverlapping(start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("get overlapping: %v", err)
	}
	byID := make(map[int64]FocusEvent, len(fixed))
	for _, ev := range fixed {
		byID[ev.ID] = ev
	}

	unattributed, ok := byID[unattributedID]
	if !ok || unattributed.SessionID == nil || *unattributed.SessionID != sessionID {
		t.Errorf("expected event %d reattributed to session %d, got %+v", unattributedID, sessionID, unattributed)
	}

	wrong, ok := byID[wrongID]
	if !ok {
		t.Fatalf("expected event %d still present", wrongID)
	}
	if !wrong.EndTime.Equal(start.Add(time.Hour)) {
		t.Errorf("EndTime = %v, want clipped to session end %v", wrong.EndTime, start.Add(time.Hour))
	}
}

func TestCachedReport_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	has, err := s.HasCachedReport("daily", "2026-07-01")
	if err != nil {
		t.Fatalf("has cached report: %v", err)
	}
	if has {
		t.Fatal("expected no report yet")
	}

	_, err = s.SaveCachedReport(CachedReport{
		PeriodType: "daily", PeriodDate: "2026-07-01",
		StartTime: start, EndTime: start.Add(24 * time.Hour),
		ExecutiveSummary: "worked on things",
	})
	if err != nil {
		t.Fatalf("save cached report: %v", err)
	}

	report, err := s.GetCachedReport("daily", "2026-07-01")
	if err != nil {
		t.Fatalf("get cached report: %v", err)
	}
	if report == nil || report.ExecutiveSummary != "worked on things" {
		t.Errorf("report = %+v", report)
	}
}

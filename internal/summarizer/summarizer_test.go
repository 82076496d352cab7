package summarizer

import (
	"context"
	"testing"
	"time"

	"github.com/nugget/activity-tracker/internal/llm"
	"github.com/nugget/activity-tracker/internal/slot"
	"github.com/nugget/activity-tracker/internal/store"
)

type fakeStore struct {
	activeRanges   []slot.Range
	existing       map[slot.Range]bool
	screenshots    []store.Screenshot
	focusEvents    []store.FocusEvent
	saved          []store.ThresholdSummary
	savedIDs       [][]int64
	unsummarized   []store.Screenshot
	byID           map[int64]*store.ThresholdSummary
	nextID         int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: map[slot.Range]bool{}, byID: map[int64]*store.ThresholdSummary{}, nextID: 1}
}

func (f *fakeStore) HasSummaryForTimeRange(start, end time.Time) (bool, error) {
	return f.existing[slot.Range{Start: start, End: end}], nil
}

func (f *fakeStore) HasActiveSessionInRange(start, end time.Time) (bool, error) {
	for _, r := range f.activeRanges {
		if r.Start.Before(end) && r.End.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetScreenshotsInRange(start, end int64) ([]store.Screenshot, error) {
	var out []store.Screenshot
	for _, s := range f.screenshots {
		ts := s.Timestamp.Unix()
		if ts >= start && ts < end {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetFocusEventsOverlapping(start, end time.Time) ([]store.FocusEvent, error) {
	return f.focusEvents, nil
}

func (f *fakeStore) GetMostRecentSummary(cutoff time.Time) (*store.ThresholdSummary, error) {
	return nil, nil
}

func (f *fakeStore) SaveThresholdSummary(sum store.ThresholdSummary, screenshotIDs []int64) (int64, error) {
	id := f.nextID
	f.nextID++
	sum.ID = id
	f.saved = append(f.saved, sum)
	f.savedIDs = append(f.savedIDs, screenshotIDs)
	f.byID[id] = &sum
	return id, nil
}

func (f *fakeStore) GetThresholdSummary(id int64) (*store.ThresholdSummary, error) {
	return f.byID[id], nil
}

func (f *fakeStore) GetUnsummarizedScreenshots(requireSession bool, since *int64) ([]store.Screenshot, error) {
	return f.unsummarized, nil
}

type fakeLLM struct {
	reply   string
	err     error
	ready   bool
	calls   int
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply, Done: true}, nil
}

func (f *fakeLLM) IsReady(ctx context.Context) bool { return f.ready }

func newWorker(fs *fakeStore, fl *fakeLLM) *Worker {
	return New(fs, fl, nil, nil, nil, Config{FrequencyMinutes: 15, MaxSamples: 6}, nil)
}

func TestRunSlot_S1_MinimalSummarizedSlot(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fs := newFakeStore()
	fs.activeRanges = []slot.Range{{Start: start, End: end}}
	fs.screenshots = []store.Screenshot{
		{ID: 1, Timestamp: start.Add(5 * time.Second), WindowTitle: "docs"},
		{ID: 2, Timestamp: start.Add(14*time.Minute + 50*time.Second), WindowTitle: "bash"},
	}
	fl := &fakeLLM{ready: true, reply: "Working in the browser and terminal.\nEXPLANATION: visible tabs\nCONFIDENCE: 0.9\nTAGS: browsing"}

	w := newWorker(fs, fl)
	w.runSlot(context.Background(), start, end)

	if len(fs.saved) != 1 {
		t.Fatalf("expected 1 summary saved, got %d", len(fs.saved))
	}
	if len(fs.savedIDs[0]) != 2 {
		t.Errorf("expected 2 linked screenshots, got %d", len(fs.savedIDs[0]))
	}
	if fl.calls != 1 {
		t.Errorf("expected exactly 1 llm call, got %d", fl.calls)
	}
}

func TestRunSlot_S2_AFKOnlySlotWritesNothing(t *testing.T) {
	start := time.Date(2026, 7, 1, 11, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fs := newFakeStore() // no active ranges
	fl := &fakeLLM{ready: true}

	w := newWorker(fs, fl)
	w.runSlot(context.Background(), start, end)

	if len(fs.saved) != 0 {
		t.Errorf("expected no summary for an AFK-only slot, got %d", len(fs.saved))
	}
	if fl.calls != 0 {
		t.Errorf("expected no llm call for an AFK-only slot, got %d", fl.calls)
	}
}

func TestRunSlot_DedupSkipsAlreadySummarized(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fs := newFakeStore()
	fs.activeRanges = []slot.Range{{Start: start, End: end}}
	fs.existing[slot.Range{Start: start, End: end}] = true
	fl := &fakeLLM{ready: true}

	w := newWorker(fs, fl)
	w.runSlot(context.Background(), start, end)

	if fl.calls != 0 {
		t.Errorf("expected no llm call when already summarized, got %d", fl.calls)
	}
}

func TestRunSlot_LLMUnavailableSkipsWithoutMarkingSummarized(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fs := newFakeStore()
	fs.activeRanges = []slot.Range{{Start: start, End: end}}
	fl := &fakeLLM{ready: false}

	w := newWorker(fs, fl)
	w.runSlot(context.Background(), start, end)

	if len(fs.saved) != 0 {
		t.Error("expected no summary written when llm unavailable")
	}
}

func TestQueueRegenerate_S6_CoexistsWithRoot(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fs := newFakeStore()
	fs.activeRanges = []slot.Range{{Start: start, End: end}}
	fs.screenshots = []store.Screenshot{{ID: 1, Timestamp: start.Add(time.Minute)}}
	fl := &fakeLLM{ready: true, reply: "first pass"}

	w := newWorker(fs, fl)
	w.runSlot(context.Background(), start, end)
	rootID := fs.saved[0].ID

	fl.reply = "regenerated pass"
	w.runRegenerate(context.Background(), rootID)

	if len(fs.saved) != 2 {
		t.Fatalf("expected root + regeneration, got %d summaries", len(fs.saved))
	}
	if fs.saved[1].RegeneratedFrom == nil || *fs.saved[1].RegeneratedFrom != rootID {
		t.Errorf("expected regenerated_from = %d, got %v", rootID, fs.saved[1].RegeneratedFrom)
	}
}

func TestForceSummarizePending_GroupsIntoSlotsAndSkipsAFK(t *testing.T) {
	fs := newFakeStore()
	activeStart := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	fs.activeRanges = []slot.Range{{Start: activeStart, End: activeStart.Add(15 * time.Minute)}}
	fs.unsummarized = []store.Screenshot{
		{ID: 1, Timestamp: activeStart.Add(time.Minute)},
		{ID: 2, Timestamp: activeStart.Add(2 * time.Minute)}, // same slot, should dedupe to 1 task
		{ID: 3, Timestamp: time.Date(2026, 7, 1, 23, 0, 0, 0, time.UTC)}, // AFK slot, skipped
	}
	fl := &fakeLLM{ready: true}
	w := newWorker(fs, fl)

	queued, err := w.ForceSummarizePending(nil)
	if err != nil {
		t.Fatalf("force summarize pending: %v", err)
	}
	if queued != 1 {
		t.Errorf("expected 1 slot queued, got %d", queued)
	}
}

func TestDrainOneTask_EmptyQueueReturnsImmediately(t *testing.T) {
	fs := newFakeStore()
	fl := &fakeLLM{ready: true}
	w := newWorker(fs, fl)

	done := make(chan struct{})
	go func() {
		w.drainOneTask(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("drainOneTask blocked on an empty queue instead of returning immediately")
	}
}

func TestRunSlot_TagsMergeDetectedWithLLMTags(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fs := newFakeStore()
	fs.activeRanges = []slot.Range{{Start: start, End: end}}
	fs.screenshots = []store.Screenshot{
		{ID: 1, Timestamp: start.Add(time.Minute), AppName: "Visual Studio Code", WindowTitle: "main.go"},
	}
	fl := &fakeLLM{ready: true, reply: "Wrote some Go.\nTAGS: focused"}

	w := newWorker(fs, fl)
	w.runSlot(context.Background(), start, end)

	if len(fs.saved) != 1 {
		t.Fatalf("expected 1 summary saved, got %d", len(fs.saved))
	}
	tags := fs.saved[0].Tags
	if len(tags) != 2 || tags[0] != "focused" || tags[1] != "#coding" {
		t.Errorf("Tags = %v, want [focused #coding]", tags)
	}
}

func TestRunSlot_TagsDedupesAlreadyPresentDetectedTag(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fs := newFakeStore()
	fs.activeRanges = []slot.Range{{Start: start, End: end}}
	fs.screenshots = []store.Screenshot{
		{ID: 1, Timestamp: start.Add(time.Minute), AppName: "Visual Studio Code", WindowTitle: "main.go"},
	}
	fl := &fakeLLM{ready: true, reply: "Wrote some Go.\nTAGS: #coding"}

	w := newWorker(fs, fl)
	w.runSlot(context.Background(), start, end)

	tags := fs.saved[0].Tags
	if len(tags) != 1 || tags[0] != "#coding" {
		t.Errorf("Tags = %v, want [#coding] (no duplicate)", tags)
	}
}

func TestRunSlot_ProjectAttributedFromTerminalContext(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fs := newFakeStore()
	fs.activeRanges = []slot.Range{{Start: start, End: end}}
	fs.screenshots = []store.Screenshot{{ID: 1, Timestamp: start.Add(time.Minute)}}
	sessionID := int64(1)
	fs.focusEvents = []store.FocusEvent{
		{StartTime: start, EndTime: start.Add(10 * time.Minute), SessionID: &sessionID, TerminalContext: "~/code/activity-tracker (main)"},
		{StartTime: start.Add(10 * time.Minute), EndTime: end, SessionID: &sessionID, TerminalContext: "~/code/activity-tracker (main)"},
	}
	fl := &fakeLLM{ready: true, reply: "Working on the tracker."}

	w := New(fs, fl, nil, nil, nil, Config{FrequencyMinutes: 15, MaxSamples: 6, IncludeFocusContext: true}, nil)
	w.runSlot(context.Background(), start, end)

	if len(fs.saved) != 1 {
		t.Fatalf("expected 1 summary saved, got %d", len(fs.saved))
	}
	if fs.saved[0].Project != "activity-tracker" {
		t.Errorf("Project = %q, want activity-tracker", fs.saved[0].Project)
	}
}

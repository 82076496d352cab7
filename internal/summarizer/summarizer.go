// Package summarizer runs the slot pipeline: a cron-aligned background
// worker that turns screenshots and focus events into ThresholdSummary
// rows via the LLM client, plus manual regenerate/backfill operations.
package summarizer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nugget/activity-tracker/internal/events"
	"github.com/nugget/activity-tracker/internal/llm"
	"github.com/nugget/activity-tracker/internal/projectdetect"
	"github.com/nugget/activity-tracker/internal/prompts"
	"github.com/nugget/activity-tracker/internal/slot"
	"github.com/nugget/activity-tracker/internal/store"
	"github.com/nugget/activity-tracker/internal/tagdetect"
)

// Store is the subset of internal/store.Store the worker depends on.
type Store interface {
	HasSummaryForTimeRange(start, end time.Time) (bool, error)
	HasActiveSessionInRange(start, end time.Time) (bool, error)
	GetScreenshotsInRange(start, end int64) ([]store.Screenshot, error)
	GetFocusEventsOverlapping(start, end time.Time) ([]store.FocusEvent, error)
	GetMostRecentSummary(cutoff time.Time) (*store.ThresholdSummary, error)
	SaveThresholdSummary(sum store.ThresholdSummary, screenshotIDs []int64) (int64, error)
	GetThresholdSummary(id int64) (*store.ThresholdSummary, error)
	GetUnsummarizedScreenshots(requireSession bool, since *int64) ([]store.Screenshot, error)
}

// LLMClient is the subset of internal/llm.Client the worker depends on.
type LLMClient interface {
	Chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error)
	IsReady(ctx context.Context) bool
}

// OCRFunc computes (and caches) OCR text for a screenshot's cropped
// region, keyed by window title. Nil disables the OCR evidence block.
type OCRFunc func(ctx context.Context, shot store.Screenshot) (string, error)

// ImageFunc loads a sampled screenshot and returns it as a base64 JPEG
// ready for Message.Images, honoring crop when CropToWindow is set. Nil
// or IncludeScreenshots=false means no images are attached to the call.
type ImageFunc func(ctx context.Context, shot store.Screenshot, crop bool) (string, error)

// Config controls sampling and which evidence blocks are gathered.
type Config struct {
	FrequencyMinutes       int
	MaxSamples             int
	IncludeFocusContext    bool
	IncludeOCR             bool
	IncludePreviousSummary bool
	IncludeScreenshots     bool
	CropToWindow           bool
	Model                  string
}

func (c *Config) applyDefaults() {
	if c.FrequencyMinutes <= 0 {
		c.FrequencyMinutes = 15
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = 6
	}
}

// task is a manual operation queued for the run loop to drain.
type task struct {
	regenerateID int64 // non-zero: queue_regenerate
	rangeStart   time.Time
	rangeEnd     time.Time
	isRange      bool // true: summarize_range (from force_summarize_pending)
}

const taskQueueCapacity = 64

// Worker runs the single-threaded slot pipeline.
type Worker struct {
	store  Store
	llm    LLMClient
	ocr    OCRFunc
	img    ImageFunc
	bus    *events.Bus
	logger *slog.Logger
	cfg    Config

	queue chan task
	done  chan struct{}

	lastMidnightRollup time.Time
	onRollupDue        func(day time.Time)
}

// New creates a Worker. onRollupDue, if non-nil, is invoked once per
// crossing of local midnight so the caller (internal/rollup) can
// synthesize the previous day's cached report.
func New(st Store, client LLMClient, ocr OCRFunc, img ImageFunc, bus *events.Bus, cfg Config, onRollupDue func(day time.Time)) *Worker {
	cfg.applyDefaults()
	return &Worker{
		store:       st,
		llm:         client,
		ocr:         ocr,
		img:         img,
		bus:         bus,
		logger:      slog.Default().With("component", "summarizer"),
		cfg:         cfg,
		queue:       make(chan task, taskQueueCapacity),
		done:        make(chan struct{}),
		onRollupDue: onRollupDue,
	}
}

// QueueRegenerate enqueues a regeneration of an existing summary.
// Returns false without blocking if the queue is full.
func (w *Worker) QueueRegenerate(id int64) bool {
	select {
	case w.queue <- task{regenerateID: id}:
		return true
	default:
		return false
	}
}

// ForceSummarizePending finds unsummarized screenshots, groups them into
// their aligned slots, drops AFK-only slots, and enqueues one
// summarize_range task per remaining slot. Returns the number enqueued.
func (w *Worker) ForceSummarizePending(since *int64) (int, error) {
	freq := time.Duration(w.cfg.FrequencyMinutes) * time.Minute

	shots, err := w.store.GetUnsummarizedScreenshots(false, since)
	if err != nil {
		return 0, err
	}

	seen := map[time.Time]bool{}
	queued := 0
	for _, shot := range shots {
		start := slot.CurrentStart(shot.Timestamp, freq)
		if seen[start] {
			continue
		}
		seen[start] = true

		end := start.Add(freq)
		active, err := w.store.HasActiveSessionInRange(start, end)
		if err != nil {
			return queued, err
		}
		if !active {
			continue
		}
		already, err := w.store.HasSummaryForTimeRange(start, end)
		if err != nil {
			return queued, err
		}
		if already {
			continue
		}

		select {
		case w.queue <- task{rangeStart: start, rangeEnd: end, isRange: true}:
			queued++
		default:
			w.logger.Warn("backfill queue full, stopping enqueue")
			return queued, nil
		}
	}
	return queued, nil
}

// Run drives the scheduling loop until ctx is cancelled: it wakes at
// each slot boundary to summarize, drains queued manual tasks between
// firings, and fires onRollupDue once per local-midnight crossing.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	freq := time.Duration(w.cfg.FrequencyMinutes) * time.Minute
	next := slot.NextRun(time.Now(), freq)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			w.checkMidnightRollup(now)

			if !now.Before(next) {
				target := slot.TargetSlot(next, freq)
				w.runSlot(ctx, target.Start, target.End)
				next = next.Add(freq)
			}
			w.drainOneTask(ctx)
		}
	}
}

// Wait blocks until the run loop has exited after ctx cancellation.
func (w *Worker) Wait() { <-w.done }

func (w *Worker) checkMidnightRollup(now time.Time) {
	if w.onRollupDue == nil {
		return
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if w.lastMidnightRollup.Equal(midnight) {
		return
	}
	if w.lastMidnightRollup.IsZero() {
		w.lastMidnightRollup = midnight
		return
	}
	w.lastMidnightRollup = midnight
	w.onRollupDue(midnight.AddDate(0, 0, -1))
}

func (w *Worker) drainOneTask(ctx context.Context) {
	select {
	case t := <-w.queue:
		if t.regenerateID != 0 {
			w.runRegenerate(ctx, t.regenerateID)
		} else if t.isRange {
			w.runSlot(ctx, t.rangeStart, t.rangeEnd)
		}
	default:
	}
}

// runSlot executes the full pipeline for [start, end). Every skip path
// publishes a KindSlotSkipped event and store errors are logged; none of
// them are returned to the caller.
func (w *Worker) runSlot(ctx context.Context, start, end time.Time) {
	already, err := w.store.HasSummaryForTimeRange(start, end)
	if err != nil {
		w.logger.Error("check existing summary", "error", err)
		return
	}
	if already {
		w.skip(start, end, "already_summarized")
		return
	}

	active, err := w.store.HasActiveSessionInRange(start, end)
	if err != nil {
		w.logger.Error("check active session in range", "error", err)
		return
	}
	if !active {
		w.skip(start, end, "afk_only")
		return
	}

	if !w.llm.IsReady(ctx) {
		w.skip(start, end, "llm_unavailable")
		return
	}

	ev, err := w.gatherEvidence(start, end)
	if err != nil {
		w.logger.Error("gather evidence", "error", err)
		return
	}
	if len(ev.screenshots) == 0 && len(ev.focusEvents) == 0 {
		w.skip(start, end, "no_evidence")
		return
	}

	sum, err := w.summarize(ctx, ev, start, end)
	if err != nil {
		w.logger.Warn("llm call failed, slot left unsummarized for backfill", "start", start, "end", end, "error", err)
		w.skip(start, end, "llm_error")
		return
	}

	ids := screenshotIDs(ev.screenshots)
	id, err := w.store.SaveThresholdSummary(*sum, ids)
	if err != nil {
		w.logger.Error("save threshold summary", "error", err)
		return
	}

	w.bus.Publish(events.Event{Source: events.SourceSummarizer, Kind: events.KindSlotSummarized, Data: map[string]any{
		"start": start, "end": end, "summary_id": id, "screenshot_count": len(ids),
	}})
}

// runRegenerate re-runs the pipeline over the root summary's time range,
// taking as evidence the screenshots and focus events found in that
// range rather than the root's linked screenshot set, and writes a new
// row that references the root and links the root's screenshot ids.
func (w *Worker) runRegenerate(ctx context.Context, rootID int64) {
	root, err := w.store.GetThresholdSummary(rootID)
	if err != nil || root == nil {
		w.logger.Error("regenerate: load root summary", "id", rootID, "error", err)
		return
	}

	ev, err := w.gatherEvidence(root.StartTime, root.EndTime)
	if err != nil {
		w.logger.Error("regenerate: gather evidence", "error", err)
		return
	}

	sum, err := w.summarize(ctx, ev, root.StartTime, root.EndTime)
	if err != nil {
		w.logger.Warn("regenerate: llm call failed", "id", rootID, "error", err)
		return
	}
	sum.RegeneratedFrom = &rootID

	if _, err := w.store.SaveThresholdSummary(*sum, root.ScreenshotIDs); err != nil {
		w.logger.Error("regenerate: save summary", "error", err)
	}
}

func (w *Worker) skip(start, end time.Time, reason string) {
	w.bus.Publish(events.Event{Source: events.SourceSummarizer, Kind: events.KindSlotSkipped, Data: map[string]any{
		"start": start, "end": end, "reason": reason,
	}})
}

type evidence struct {
	screenshots []store.Screenshot
	focusEvents []store.FocusEvent
	previous    string
}

func (w *Worker) gatherEvidence(start, end time.Time) (evidence, error) {
	var ev evidence

	shots, err := w.store.GetScreenshotsInRange(start.Unix(), end.Unix())
	if err != nil {
		return ev, err
	}
	ev.screenshots = shots

	if w.cfg.IncludeFocusContext {
		focus, err := w.store.GetFocusEventsOverlapping(start, end)
		if err != nil {
			return ev, err
		}
		ev.focusEvents = focus
	}

	if w.cfg.IncludePreviousSummary {
		prev, err := w.store.GetMostRecentSummary(start)
		if err != nil {
			return ev, err
		}
		if prev != nil {
			ev.previous = prev.Summary
		}
	}

	return ev, nil
}

// sampleScreenshots returns at most MaxSamples screenshots, chosen
// approximately uniformly over time when more are available.
func (w *Worker) sampleScreenshots(shots []store.Screenshot) []store.Screenshot {
	if len(shots) <= w.cfg.MaxSamples {
		return shots
	}
	step := float64(len(shots)) / float64(w.cfg.MaxSamples)
	out := make([]store.Screenshot, 0, w.cfg.MaxSamples)
	for i := 0; i < w.cfg.MaxSamples; i++ {
		idx := int(float64(i) * step)
		if idx >= len(shots) {
			idx = len(shots) - 1
		}
		out = append(out, shots[idx])
	}
	return out
}

func (w *Worker) summarize(ctx context.Context, ev evidence, start, end time.Time) (*store.ThresholdSummary, error) {
	var focusEntries []prompts.FocusEntry
	for _, f := range ev.focusEvents {
		cs, ce := slot.Range{Start: start, End: end}.Intersect(f.StartTime, f.EndTime)
		minutes := ce.Sub(cs).Minutes()
		if minutes <= 0 {
			continue
		}
		title := f.WindowTitle
		if f.AppName != "" {
			title = f.AppName + " / " + f.WindowTitle
		}
		focusEntries = append(focusEntries, prompts.FocusEntry{Title: title, Minutes: minutes})
	}

	var ocrEntries []prompts.OCREntry
	sampled := w.sampleScreenshots(ev.screenshots)
	if w.cfg.IncludeOCR && w.ocr != nil {
		seenTitles := map[string]bool{}
		for _, shot := range sampled {
			if shot.WindowTitle == "" || seenTitles[shot.WindowTitle] {
				continue
			}
			seenTitles[shot.WindowTitle] = true
			text, err := w.ocr(ctx, shot)
			if err != nil || text == "" {
				continue
			}
			ocrEntries = append(ocrEntries, prompts.OCREntry{Title: shot.WindowTitle, Text: text})
		}
	}

	promptText := prompts.SlotSummaryPrompt(ev.previous, focusEntries, ocrEntries)

	var images []string
	if w.cfg.IncludeScreenshots && w.img != nil {
		for _, shot := range sampled {
			b64, err := w.img(ctx, shot, w.cfg.CropToWindow)
			if err != nil {
				w.logger.Debug("load screenshot image for llm call failed, skipping", "screenshot_id", shot.ID, "error", err)
				continue
			}
			images = append(images, b64)
		}
	}

	messages := []llm.Message{{Role: "user", Content: promptText, Images: images}}

	started := time.Now()
	resp, err := w.llm.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	inferenceMs := time.Since(started).Milliseconds()

	parsed := llm.ParseSummary(resp.Content)

	configSnapshot, _ := json.Marshal(w.cfg)

	sum := &store.ThresholdSummary{
		StartTime:       start,
		EndTime:         end,
		Summary:         parsed.Text,
		ScreenshotCount: len(ev.screenshots),
		ModelUsed:       w.cfg.Model,
		ConfigSnapshot:  string(configSnapshot),
		InferenceTimeMs: inferenceMs,
		PromptText:      promptText,
		Explanation:     parsed.Explanation,
		Tags:            mergeDetectedTags(parsed.Tags, ev),
		Project:         detectProject(ev.focusEvents),
	}
	if parsed.Confidence != 0 {
		c := parsed.Confidence
		sum.Confidence = &c
	}
	return sum, nil
}

// mergeDetectedTags adds internal/tagdetect's keyword/app-name tags for
// the slot's evidence to llmTags, deduped and order-preserving (LLM tags
// first, then detected tags not already present).
func mergeDetectedTags(llmTags []string, ev evidence) []string {
	seen := make(map[string]bool, len(llmTags))
	merged := make([]string, 0, len(llmTags))
	for _, t := range llmTags {
		if seen[t] {
			continue
		}
		seen[t] = true
		merged = append(merged, t)
	}

	addDetected := func(appName, windowTitle string) {
		tag := tagdetect.Detect(appName, windowTitle)
		if tag == "" || tag == tagdetect.DefaultTag || seen[tag] {
			return
		}
		seen[tag] = true
		merged = append(merged, tag)
	}
	for _, f := range ev.focusEvents {
		addDetected(f.AppName, f.WindowTitle)
	}
	for _, s := range ev.screenshots {
		addDetected(s.AppName, s.WindowTitle)
	}

	return merged
}

// detectProject returns the slot's best-effort project attribution from
// the focus events' terminal_context strings.
func detectProject(focusEvents []store.FocusEvent) string {
	contexts := make([]string, 0, len(focusEvents))
	for _, f := range focusEvents {
		contexts = append(contexts, f.TerminalContext)
	}
	return projectdetect.MostCommon(contexts)
}

func screenshotIDs(shots []store.Screenshot) []int64 {
	ids := make([]int64, len(shots))
	for i, s := range shots {
		ids[i] = s.ID
	}
	return ids
}

// IsReady reports whether the underlying LLM client is currently ready
// to accept a slot summarization call, used by the daemon's health
// surface.
func (w *Worker) IsReady(ctx context.Context) bool {
	return w.llm.IsReady(ctx)
}

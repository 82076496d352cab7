// Package daemon wires every component into the long-running trackerd
// process: capture loop, AFK detector, focus watcher, session manager,
// summarizer worker, LLM client, and rollup builder, plus the signal
// handling and graceful-shutdown sequence that ties them together.
package daemon

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chai2010/webp"

	"github.com/nugget/activity-tracker/internal/afk"
	"github.com/nugget/activity-tracker/internal/capture"
	"github.com/nugget/activity-tracker/internal/config"
	"github.com/nugget/activity-tracker/internal/connwatch"
	"github.com/nugget/activity-tracker/internal/display"
	"github.com/nugget/activity-tracker/internal/events"
	"github.com/nugget/activity-tracker/internal/focus"
	"github.com/nugget/activity-tracker/internal/llm"
	"github.com/nugget/activity-tracker/internal/phash"
	"github.com/nugget/activity-tracker/internal/rollup"
	"github.com/nugget/activity-tracker/internal/session"
	"github.com/nugget/activity-tracker/internal/store"
	"github.com/nugget/activity-tracker/internal/summarizer"
)

// shutdownBudget bounds how long any single component gets to wind down
// once shutdown begins, so one stuck dependency can't hang the process.
const shutdownBudget = 2 * time.Second

// Daemon owns every long-lived component and the goroutines driving them.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	bus      *events.Bus
	display  *display.ScreenProvider
	windows  display.WindowProvider
	termCtx  display.TerminalContextProvider
	capturer *capture.Capturer

	afkDetector *afk.Detector
	focusWatch  *focus.Watcher
	sessionMgr  *session.Manager
	summarizer  *summarizer.Worker
	rollupB     *rollup.Builder
	llmClient   *llm.Client
	connMgr     *connwatch.Manager
	llmWatcher  *connwatch.Watcher

	lastHash   uint64
	haveHash   bool
	hashMu     sync.Mutex

	wg sync.WaitGroup
}

// New assembles every component from cfg but starts nothing. Call Run to
// start the daemon's goroutines.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.Open(cfg.Storage.DataDir + "/tracker.db")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := events.New()
	screens := display.NewScreenProvider()
	capturer := capture.New(cfg.Storage.DataDir, screens, screens)

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		bus:      bus,
		display:  screens,
		windows:  display.NullWindowProvider{},
		termCtx:  display.NullTerminalContextProvider{},
		capturer: capturer,
	}

	d.sessionMgr = session.New(st, session.Config{
		AFKTimeout:        time.Duration(cfg.AFK.TimeoutSeconds) * time.Second,
		MinSessionMinutes: cfg.AFK.MinSessionMinutes,
	}, bus, d.onStaleSessionClosed)

	d.afkDetector = afk.New(afk.Config{
		TimeoutSeconds: cfg.AFK.TimeoutSeconds,
		PollSeconds:    cfg.AFK.PollSeconds,
	}, display.NewNullInputSource(), bus,
		afk.WithOnActive(d.handleActive),
		afk.WithOnAFK(d.handleAFK),
		afk.WithLogger(logger.With("component", "afk")),
	)

	d.focusWatch = focus.New(focus.Config{
		PollSeconds:            1.0,
		MinDurationSeconds:     cfg.Tracking.MinFocusDuration,
		TransientWindowClasses: cfg.Tracking.TransientWindowClasses,
	}, d.windows, d.sessionMgr.ActiveSessionID, bus, d.handleFocusEvent)

	d.llmClient = llm.NewClient(cfg.Summarization.OllamaHost, cfg.Summarization.Model, logger.With("component", "llm"))
	d.llmClient.SetIncludeOCR(cfg.Summarization.IncludeOCR)
	d.connMgr = connwatch.NewManager(logger)
	d.llmWatcher = d.connMgr.Watch(context.Background(), connwatch.WatcherConfig{
		Name:    "ollama",
		Probe:   d.llmClient.Probe,
		Backoff: connwatch.DefaultBackoffConfig(),
		Logger:  logger.With("component", "connwatch"),
	})
	d.llmClient.SetWatcher(d.llmWatcher)

	d.rollupB = rollup.New(st, d.llmClient, bus, cfg.Summarization.Model)

	var ocrFn summarizer.OCRFunc
	if cfg.Summarization.IncludeOCR {
		ocrFn = d.runOCR
	}

	d.summarizer = summarizer.New(st, d.llmClient, ocrFn, d.loadImage, bus, summarizer.Config{
		FrequencyMinutes:       cfg.Summarization.FrequencyMinutes,
		MaxSamples:             cfg.Summarization.MaxSamples,
		IncludeFocusContext:    cfg.Summarization.IncludeFocusContext,
		IncludeOCR:             cfg.Summarization.IncludeOCR,
		IncludePreviousSummary: cfg.Summarization.IncludePreviousSummary,
		IncludeScreenshots:     cfg.Summarization.IncludeScreenshots,
		CropToWindow:           cfg.Summarization.CropToWindow,
		Model:                  cfg.Summarization.Model,
	}, d.handleRollupDue)

	return d, nil
}

// Run starts every component's goroutine and blocks until ctx is
// cancelled, then drives a bounded graceful shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.sessionMgr.Recover(time.Now()); err != nil {
		return fmt.Errorf("recover session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	d.spawn(func(ctx context.Context) { d.afkDetector.Run(ctx) }, runCtx)
	d.spawn(func(ctx context.Context) { d.focusWatch.Run(ctx) }, runCtx)
	if d.cfg.Summarization.Enabled {
		d.spawn(func(ctx context.Context) { d.summarizer.Run(ctx) }, runCtx)
	}
	d.spawn(d.captureLoop, runCtx)

	<-ctx.Done()
	d.logger.Info("shutdown signal received, winding down")
	cancel()

	d.joinWithBudget("focus flush", func() {
		d.focusWatch.FlushCurrentEvent(time.Now())
	})
	d.joinWithBudget("close session", func() {
		if err := d.sessionMgr.EndSession(time.Now()); err != nil {
			d.logger.Error("close session on shutdown", "error", err)
		}
	})
	d.joinWithBudget("wait for workers", func() {
		d.wg.Wait()
	})

	d.connMgr.Stop()
	return d.store.Close()
}

// spawn runs fn in its own goroutine tracked by d.wg.
func (d *Daemon) spawn(fn func(ctx context.Context), ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(ctx)
	}()
}

// joinWithBudget runs fn and logs (without blocking the shutdown
// sequence indefinitely) if it overruns shutdownBudget.
func (d *Daemon) joinWithBudget(label string, fn func()) {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownBudget):
		d.logger.Warn("shutdown step exceeded budget, continuing", "step", label, "budget", shutdownBudget)
	}
}

// captureLoop runs the screenshot capture ticker: grab a frame, discard
// it if it's a near-duplicate of the previous one (Hamming distance < 3,
// per the dedup policy C2 leaves to its caller), otherwise persist it and
// link it to the active session.
func (d *Daemon) captureLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Capture.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.captureOnce()
		}
	}
}

func (d *Daemon) captureOnce() {
	if d.afkDetector.IsAFK() {
		return
	}

	now := time.Now()
	win, _ := d.windows.ActiveWindow()

	var region *display.Geometry
	if win != nil && d.cfg.Capture.SkipTransientWindows && win.Geometry != nil {
		region = win.Geometry
	}

	result, err := d.capturer.CaptureScreen(region, now)
	if err != nil {
		d.bus.Publish(events.Event{Source: events.SourceCapture, Kind: events.KindCaptureSkipped, Data: map[string]any{"reason": err.Error()}})
		return
	}

	hash, err := phash.Parse(result.DHash)
	if err == nil {
		d.hashMu.Lock()
		distance := phash.Distance(d.lastHash, hash)
		dup := d.haveHash && distance < 3
		d.lastHash, d.haveHash = hash, true
		d.hashMu.Unlock()

		if dup {
			capture.DeleteFile(result.Filepath)
			d.bus.Publish(events.Event{Source: events.SourceCapture, Kind: events.KindCaptureDuplicate, Data: map[string]any{"distance": distance}})
			return
		}
	}

	shot := store.Screenshot{
		Timestamp: now,
		Filepath:  result.Filepath,
		DHash:     result.DHash,
	}
	if win != nil {
		shot.WindowTitle = win.Title
		shot.AppName = win.AppName
		if win.Geometry != nil {
			shot.WindowGeometry = encodeGeometry(*win.Geometry)
		}
	}
	if monitor, err := d.display.MonitorForWindow(geometryOrZero(win)); err == nil {
		shot.Monitor = monitor.Name
	}

	id, err := d.sessionMgr.StartSession(now)
	if err != nil {
		d.logger.Error("start/resume session for capture", "error", err)
		return
	}

	shotID, err := d.store.InsertScreenshot(shot)
	if err != nil {
		d.logger.Error("insert screenshot", "error", err)
		return
	}
	if err := d.sessionMgr.AddScreenshot(shotID); err != nil {
		d.logger.Error("link screenshot to session", "error", err)
	}

	d.bus.Publish(events.Event{Source: events.SourceCapture, Kind: events.KindCaptureSaved, Data: map[string]any{
		"screenshot_id": shotID, "session_id": id, "dhash": result.DHash,
	}})
}

func (d *Daemon) handleActive() {
	if _, err := d.sessionMgr.StartSession(time.Now()); err != nil {
		d.logger.Error("resume session on activity", "error", err)
	}
}

func (d *Daemon) handleAFK() {
	now := time.Now()
	d.focusWatch.FlushCurrentEvent(now)
	if err := d.sessionMgr.EndSession(now); err != nil {
		d.logger.Error("close session on afk", "error", err)
	}
}

func (d *Daemon) handleFocusEvent(ev focus.FocusEvent) {
	termCtx, err := d.termCtx.TerminalContext(display.Window{Title: ev.WindowTitle, AppName: ev.AppName, WindowClass: ev.WindowClass})
	if err != nil {
		termCtx = ""
	}
	_, err = d.store.SaveFocusEvent(store.FocusEvent{
		WindowTitle:     ev.WindowTitle,
		AppName:         ev.AppName,
		WindowClass:     ev.WindowClass,
		StartTime:       ev.StartTime,
		EndTime:         ev.EndTime,
		DurationSeconds: ev.DurationSeconds,
		SessionID:       ev.SessionID,
		TerminalContext: termCtx,
	})
	if err != nil {
		d.logger.Error("save focus event", "error", err)
		return
	}
	if ev.SessionID != nil {
		if _, err := d.sessionMgr.TrackWindowTitle(ev.WindowTitle); err != nil {
			d.logger.Debug("track window title", "error", err)
		}
	}
}

func (d *Daemon) onStaleSessionClosed(sessionID int64) {
	queued, err := d.summarizer.ForceSummarizePending(nil)
	if err != nil {
		d.logger.Error("queue summarization of stale session", "session_id", sessionID, "error", err)
		return
	}
	d.logger.Info("stale session closed on restart, summarization queued", "session_id", sessionID, "slots", queued)
}

func (d *Daemon) handleRollupDue(day time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := d.rollupB.BuildDaily(ctx, day); err != nil {
		d.logger.Error("build daily rollup", "day", day.Format("2006-01-02"), "error", err)
	}
}

// loadImage bridges the summarizer's ImageFunc seam: decode the saved
// WebP screenshot, optionally crop it to the window region, and encode
// it as a base64 JPEG suitable for Message.Images.
func (d *Daemon) loadImage(ctx context.Context, shot store.Screenshot, crop bool) (string, error) {
	path := shot.Filepath
	if crop && shot.WindowGeometry != "" {
		geom, err := decodeGeometry(shot.WindowGeometry)
		if err == nil {
			if cropped, err := d.capturer.GetCroppedPath(shot.Filepath, geom); err == nil {
				path = cropped
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read screenshot: %w", err)
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}
	return llm.EncodeImage(img)
}

// runOCR is a placeholder OCR backend: it returns no text for every
// screenshot and does not run an OCR binary. Evidence gathering treats
// an empty result the same as OCR being disabled.
func (d *Daemon) runOCR(ctx context.Context, shot store.Screenshot) (string, error) {
	return "", nil
}

func geometryOrZero(win *display.Window) display.Geometry {
	if win == nil || win.Geometry == nil {
		return display.Geometry{}
	}
	return *win.Geometry
}

func encodeGeometry(g display.Geometry) string {
	return strconv.Itoa(g.X) + "," + strconv.Itoa(g.Y) + "," + strconv.Itoa(g.Width) + "," + strconv.Itoa(g.Height)
}

func decodeGeometry(s string) (display.Geometry, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return display.Geometry{}, fmt.Errorf("malformed geometry %q", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return display.Geometry{}, fmt.Errorf("malformed geometry %q: %w", s, err)
		}
		vals[i] = n
	}
	return display.Geometry{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

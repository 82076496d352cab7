// Package afk implements the away-from-keyboard detector.
// It tracks the time of the last input event and polls on a fixed
// cadence to decide whether the user is active or away, firing
// transition callbacks outside its state lock to avoid callback→lock
// reentry deadlocks against the orchestrator's own store access (spec
// §5, §9).
package afk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/activity-tracker/internal/display"
	"github.com/nugget/activity-tracker/internal/events"
)

// Config controls detector timing.
type Config struct {
	// TimeoutSeconds is the idle duration after which the user is
	// considered away (default 180).
	TimeoutSeconds int
	// PollSeconds is the poll cadence (default 5).
	PollSeconds int
}

// DefaultConfig returns the recommended defaults.
func DefaultConfig() Config {
	return Config{TimeoutSeconds: 180, PollSeconds: 5}
}

// Detector is the AFK state machine. Zero value is not usable; construct
// with New.
type Detector struct {
	cfg    Config
	input  display.InputSource
	bus    *events.Bus
	logger *slog.Logger

	mu          sync.Mutex
	lastInputTS time.Time
	isAFK       bool

	onActive func()
	onAFK    func()

	degraded bool
}

// Option configures optional Detector behavior.
type Option func(*Detector)

// WithOnActive registers a callback fired on afk->active transitions.
func WithOnActive(fn func()) Option { return func(d *Detector) { d.onActive = fn } }

// WithOnAFK registers a callback fired on active->afk transitions.
func WithOnAFK(fn func()) Option { return func(d *Detector) { d.onAFK = fn } }

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option { return func(d *Detector) { d.logger = l } }

// New creates a Detector. input may be nil or display.NewNullInputSource(),
// in which case the detector runs permanently in degraded "always active"
// mode.
func New(cfg Config, input display.InputSource, bus *events.Bus, opts ...Option) *Detector {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 180
	}
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = 5
	}

	d := &Detector{
		cfg:         cfg,
		input:       input,
		bus:         bus,
		logger:      slog.Default(),
		lastInputTS: time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if _, ok := input.(*display.NullInputSource); ok || input == nil {
		d.degraded = true
	}
	return d
}

// IsAFK reports the current state.
func (d *Detector) IsAFK() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isAFK
}

// Run blocks until ctx is cancelled, consuming input events and polling
// on cfg.PollSeconds. Safe to run in its own goroutine.
func (d *Detector) Run(ctx context.Context) {
	poll := time.NewTicker(time.Duration(d.cfg.PollSeconds) * time.Second)
	defer poll.Stop()

	var inputEvents <-chan display.InputEvent
	if d.input != nil {
		inputEvents = d.input.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-inputEvents:
			if !ok {
				inputEvents = nil
				continue
			}
			d.handleInput(ev.At)
		case <-poll.C:
			d.handlePoll()
		}
	}
}

// handleInput updates last-input time and fires the afk->active
// transition if one is warranted. Any input event drives this
// transition; input events never drive active->afk.
func (d *Detector) handleInput(at time.Time) {
	d.mu.Lock()
	d.lastInputTS = at
	wasAFK := d.isAFK
	if wasAFK {
		d.isAFK = false
	}
	d.mu.Unlock()

	if wasAFK {
		d.fireActive()
	}
}

// handlePoll checks for idle timeout. Polling is the only path to
// active->afk.
func (d *Detector) handlePoll() {
	if d.degraded {
		return
	}

	d.mu.Lock()
	idle := time.Since(d.lastInputTS)
	shouldTransition := idle >= time.Duration(d.cfg.TimeoutSeconds)*time.Second && !d.isAFK
	if shouldTransition {
		d.isAFK = true
	}
	d.mu.Unlock()

	if shouldTransition {
		d.fireAFK()
	}
}

func (d *Detector) fireActive() {
	d.bus.Publish(events.Event{Source: events.SourceAFK, Kind: events.KindAFKTransition, Data: map[string]any{
		"is_afk": false,
	}})
	if d.onActive != nil {
		d.onActive()
	}
}

func (d *Detector) fireAFK() {
	d.bus.Publish(events.Event{Source: events.SourceAFK, Kind: events.KindAFKTransition, Data: map[string]any{
		"is_afk": true,
	}})
	if d.onAFK != nil {
		d.onAFK()
	}
}

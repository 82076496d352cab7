// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (AFK detector, focus
// watcher, capture loop, session manager, summarizer worker) to
// subscribers (structured logging, future metrics collectors). The bus
// is nil-safe: calling Publish on a nil *Bus is a no-op, so components
// do not need guard checks.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source constants identify which component published an event.
const (
	// SourceAFK identifies events from the AFK detector.
	SourceAFK = "afk"
	// SourceFocus identifies events from the focus watcher.
	SourceFocus = "focus"
	// SourceCapture identifies events from the screenshot capture loop.
	SourceCapture = "capture"
	// SourceSession identifies events from the session manager.
	SourceSession = "session"
	// SourceSummarizer identifies events from the summarizer worker.
	SourceSummarizer = "summarizer"
	// SourceDaemon identifies events from the top-level orchestrator.
	SourceDaemon = "daemon"
)

// Kind constants describe the type of event within a source.
const (
	// KindAFKTransition signals an active<->afk state change.
	// Data: is_afk.
	KindAFKTransition = "afk_transition"

	// KindFocusChanged signals a focus event was closed out and emitted.
	// Data: window_title, app_name, duration_seconds, session_id.
	KindFocusChanged = "focus_changed"
	// KindFocusFlushed signals the current focus was flushed without a
	// successor (on active->afk transition or shutdown).
	// Data: window_title, session_id.
	KindFocusFlushed = "focus_flushed"

	// KindCaptureSaved signals a screenshot was saved to disk and linked.
	// Data: screenshot_id, session_id, dhash.
	KindCaptureSaved = "capture_saved"
	// KindCaptureDuplicate signals a captured frame was discarded as a
	// near-duplicate of the previous one.
	// Data: distance.
	KindCaptureDuplicate = "capture_duplicate"
	// KindCaptureSkipped signals a capture tick was skipped due to a
	// display/monitor failure.
	// Data: reason.
	KindCaptureSkipped = "capture_skipped"

	// KindSessionOpened signals a new session was started.
	// Data: session_id, resumed.
	KindSessionOpened = "session_opened"
	// KindSessionClosed signals a session was closed (and possibly
	// deleted for falling below the minimum duration).
	// Data: session_id. The event does not say whether the session was
	// deleted.
	KindSessionClosed = "session_closed"

	// KindSlotSkipped signals the summarizer worker skipped a slot.
	// Data: start, end, reason.
	KindSlotSkipped = "slot_skipped"
	// KindSlotSummarized signals a slot was summarized successfully.
	// Data: start, end, summary_id, screenshot_count.
	KindSlotSummarized = "slot_summarized"
	// KindRollupBuilt signals a cached report rollup was synthesized.
	// Data: period_type, period_date.
	KindRollupBuilt = "rollup_built"
)

// Event represents a single operational event published by a component.
type Event struct {
	// ID uniquely identifies this event, for correlating it across log
	// lines and subscribers. Assigned by Publish if left empty.
	ID string `json:"id"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Package trackererr defines the closed error taxonomy that every
// component boundary maps its failures into. Callers use errors.Is
// against the Kind sentinels rather than matching error strings.
package trackererr

import "errors"

// Kind identifies which of the taxonomy buckets an error belongs to.
type Kind error

var (
	// TransientIO covers file read/write, db lock contention, and
	// subprocess timeouts. The caller's loop should retry on its next
	// tick; nothing here is fatal.
	TransientIO Kind = errors.New("transient I/O error")

	// DisplayUnavailable means the display server could not be reached
	// for the current capture tick.
	DisplayUnavailable Kind = errors.New("display unavailable")

	// NoMonitors means monitor enumeration succeeded but returned zero
	// monitors.
	NoMonitors Kind = errors.New("no monitors available")

	// LLMUnavailable means the configured LLM host did not respond to
	// an availability probe.
	LLMUnavailable Kind = errors.New("llm unavailable")

	// LLMTimeout means the LLM request exceeded its deadline.
	LLMTimeout Kind = errors.New("llm request timed out")

	// LLMMalformed means the LLM responded but the reply could not be
	// parsed into a usable structure.
	LLMMalformed Kind = errors.New("llm response malformed")

	// SchemaCorruption is fatal: the daemon should log and exit
	// non-zero. This is the only fatal class in the taxonomy.
	SchemaCorruption Kind = errors.New("store schema corruption")

	// PermissionDenied on the data directory or database file is fatal
	// at startup, logged once at runtime thereafter.
	PermissionDenied Kind = errors.New("permission denied")
)

// Wrap annotates err with additional context while preserving errors.Is
// matching against kind.
func Wrap(kind Kind, context string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: kind, context: context, err: err}
}

type wrapped struct {
	kind    Kind
	context string
	err     error
}

func (w *wrapped) Error() string {
	return w.context + ": " + w.err.Error()
}

func (w *wrapped) Unwrap() error {
	return w.err
}

func (w *wrapped) Is(target error) bool {
	return target == w.kind
}

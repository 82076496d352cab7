package trackererr

import (
	"errors"
	"testing"
)

func TestWrap_PreservesKindMatching(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(LLMUnavailable, "probe ollama", cause)

	if !errors.Is(err, LLMUnavailable) {
		t.Error("expected errors.Is to match LLMUnavailable")
	}
	if errors.Is(err, LLMTimeout) {
		t.Error("expected errors.Is to not match an unrelated kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to still reach the wrapped cause via Unwrap")
	}
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	if err := Wrap(LLMUnavailable, "probe ollama", nil); err != nil {
		t.Errorf("Wrap(kind, msg, nil) = %v, want nil", err)
	}
}

func TestWrap_ErrorStringIncludesContext(t *testing.T) {
	err := Wrap(TransientIO, "read screenshot", errors.New("disk full"))
	want := "read screenshot: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

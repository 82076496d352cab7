package slot

import (
	"testing"
	"time"
)

func TestCurrentStart_AlignsToFrequency(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 7, 30, 0, time.UTC)
	start := CurrentStart(now, 15*time.Minute)

	want := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("CurrentStart = %v, want %v", start, want)
	}
}

func TestCurrentStart_ExactBoundary(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 15, 0, 0, time.UTC)
	start := CurrentStart(now, 15*time.Minute)
	if !start.Equal(now) {
		t.Errorf("CurrentStart at exact boundary = %v, want %v", start, now)
	}
}

func TestNextRun_IsCurrentStartPlusFreq(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 7, 30, 0, time.UTC)
	next := NextRun(now, 15*time.Minute)
	want := time.Date(2026, 7, 1, 10, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun = %v, want %v", next, want)
	}
}

func TestTargetSlot(t *testing.T) {
	next := time.Date(2026, 7, 1, 10, 15, 0, 0, time.UTC)
	r := TargetSlot(next, 15*time.Minute)

	wantStart := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	if !r.Start.Equal(wantStart) || !r.End.Equal(next) {
		t.Errorf("TargetSlot = %+v", r)
	}
}

func TestOverlaps(t *testing.T) {
	r := Range{
		Start: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 1, 10, 15, 0, 0, time.UTC),
	}

	cases := []struct {
		name        string
		start, end  time.Time
		wantOverlap bool
	}{
		{"fully inside", time.Date(2026, 7, 1, 10, 2, 0, 0, time.UTC), time.Date(2026, 7, 1, 10, 5, 0, 0, time.UTC), true},
		{"touching start only", time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC), r.Start, false},
		{"touching end only", r.End, time.Date(2026, 7, 1, 11, 0, 0, 0, time.UTC), false},
		{"disjoint after", time.Date(2026, 7, 1, 11, 0, 0, 0, time.UTC), time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Overlaps(tc.start, tc.end); got != tc.wantOverlap {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tc.start, tc.end, got, tc.wantOverlap)
			}
		})
	}
}

func TestIntersect_ClipsToSlot(t *testing.T) {
	r := Range{
		Start: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 1, 10, 15, 0, 0, time.UTC),
	}

	// Event starts before the slot and ends after it: should clip to
	// exactly the slot bounds.
	evStart := time.Date(2026, 7, 1, 9, 50, 0, 0, time.UTC)
	evEnd := time.Date(2026, 7, 1, 10, 20, 0, 0, time.UTC)

	s, e := r.Intersect(evStart, evEnd)
	if !s.Equal(r.Start) || !e.Equal(r.End) {
		t.Errorf("Intersect = (%v, %v), want (%v, %v)", s, e, r.Start, r.End)
	}
}

func TestIntersect_NonOverlapping(t *testing.T) {
	r := Range{
		Start: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 1, 10, 15, 0, 0, time.UTC),
	}
	evStart := time.Date(2026, 7, 1, 11, 0, 0, 0, time.UTC)
	evEnd := time.Date(2026, 7, 1, 11, 5, 0, 0, time.UTC)

	s, e := r.Intersect(evStart, evEnd)
	if e.Before(s) {
		t.Errorf("Intersect should clamp non-negative, got start=%v end=%v", s, e)
	}
	if !e.Equal(s) {
		t.Errorf("expected zero-duration intersection, got %v to %v", s, e)
	}
}

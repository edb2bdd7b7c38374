package budget

import (
	"testing"
	"time"
)

// TestConsumeIteration_ExhaustsAtCap: consuming MaxIterations iterations
// yields Exhausted == true, for a range of caps.
func TestConsumeIteration_ExhaustsAtCap(t *testing.T) {
	t.Parallel()

	now := time.Now()
	for _, cap := range []int{1, 3, 10, 25} {
		b := New(cap, time.Time{})
		for i := 0; i < cap; i++ {
			if b.Exhausted(now) {
				t.Fatalf("cap %d: exhausted after %d iterations", cap, i)
			}
			b = b.ConsumeIteration()
		}
		if !b.Exhausted(now) {
			t.Errorf("cap %d: not exhausted after %d iterations", cap, cap)
		}
		if b.IterationsUsed != cap {
			t.Errorf("cap %d: IterationsUsed = %d", cap, b.IterationsUsed)
		}
	}
}

// TestConsumeIteration_Monotonic: IterationsUsed never decreases.
func TestConsumeIteration_Monotonic(t *testing.T) {
	t.Parallel()

	b := New(5, time.Time{})
	prev := b.IterationsUsed
	for i := 0; i < 12; i++ {
		b = b.ConsumeIteration()
		if b.IterationsUsed < prev {
			t.Fatalf("IterationsUsed decreased: %d -> %d", prev, b.IterationsUsed)
		}
		prev = b.IterationsUsed
	}
}

// TestExhausted_Deadline: a past deadline exhausts the budget even with
// iterations remaining.
func TestExhausted_Deadline(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := New(10, now.Add(time.Second))

	if b.Exhausted(now) {
		t.Error("exhausted before deadline")
	}
	if !b.Exhausted(now.Add(time.Second)) {
		t.Error("not exhausted at deadline")
	}
	if !b.Exhausted(now.Add(time.Hour)) {
		t.Error("not exhausted past deadline")
	}
}

// TestRemainingTime: reports the gap to the deadline, and absence of one.
func TestRemainingTime(t *testing.T) {
	t.Parallel()

	now := time.Now()

	b := New(10, now.Add(30*time.Second))
	d, ok := b.RemainingTime(now)
	if !ok || d != 30*time.Second {
		t.Errorf("RemainingTime = %v, %v; want 30s, true", d, ok)
	}

	unbounded := New(10, time.Time{})
	if _, ok := unbounded.RemainingTime(now); ok {
		t.Error("unbounded budget reported a deadline")
	}
}

// TestExtendDeadline: resume restarts the wall clock but keeps iterations.
func TestExtendDeadline(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := New(10, now.Add(-time.Second)) // already expired
	b = b.ConsumeIteration().ConsumeIteration()

	if !b.Exhausted(now) {
		t.Fatal("expected exhausted budget")
	}

	b = b.ExtendDeadline(now, time.Minute)
	if b.Exhausted(now) {
		t.Error("still exhausted after deadline extension")
	}
	if b.IterationsUsed != 2 {
		t.Errorf("IterationsUsed reset: got %d, want 2", b.IterationsUsed)
	}

	cleared := b.ExtendDeadline(now, 0)
	if !cleared.Deadline.IsZero() {
		t.Error("non-positive extension did not clear the deadline")
	}
}

// TestNew_DefaultCap: a non-positive cap falls back to the default.
func TestNew_DefaultCap(t *testing.T) {
	t.Parallel()

	b := New(0, time.Time{})
	if b.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want %d", b.MaxIterations, DefaultMaxIterations)
	}
}

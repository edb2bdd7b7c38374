// Package budget tracks the iteration and wall-clock constraints of a
// single analysis job. All operations are pure functions over the Budget
// value; the loop owns the only mutable copy.
package budget

import "time"

// DefaultMaxIterations caps tool-invocation rounds when the config leaves
// the limit unset. A single value is used everywhere; per-entry-point
// overrides are deliberately not supported.
const DefaultMaxIterations = 10

// Budget is the combined iteration-count and wall-clock constraint on a job.
// A zero Deadline means no wall-clock limit (background mode).
type Budget struct {
	MaxIterations  int       `json:"max_iterations"`
	IterationsUsed int       `json:"iterations_used"`
	Deadline       time.Time `json:"deadline,omitzero"`
}

// New creates a Budget with the given iteration cap and absolute deadline.
// A zero deadline disables the wall-clock limit.
func New(maxIterations int, deadline time.Time) Budget {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return Budget{MaxIterations: maxIterations, Deadline: deadline}
}

// ConsumeIteration returns a copy with one more iteration used.
// IterationsUsed is monotonically non-decreasing within a job.
func (b Budget) ConsumeIteration() Budget {
	b.IterationsUsed++
	return b
}

// IterationsRemaining returns how many tool-invocation rounds are left.
func (b Budget) IterationsRemaining() int {
	r := b.MaxIterations - b.IterationsUsed
	if r < 0 {
		return 0
	}
	return r
}

// RemainingTime returns the wall-clock time left before the deadline.
// The second return is false when no deadline is set.
func (b Budget) RemainingTime(now time.Time) (time.Duration, bool) {
	if b.Deadline.IsZero() {
		return 0, false
	}
	return b.Deadline.Sub(now), true
}

// Exhausted reports whether either constraint has been reached.
func (b Budget) Exhausted(now time.Time) bool {
	if b.IterationsUsed >= b.MaxIterations {
		return true
	}
	if !b.Deadline.IsZero() && !now.Before(b.Deadline) {
		return true
	}
	return false
}

// ExtendDeadline returns a copy whose deadline is now+d. A non-positive d
// clears the deadline entirely. Used when a background job is resumed:
// iteration accounting continues, the wall clock restarts.
func (b Budget) ExtendDeadline(now time.Time, d time.Duration) Budget {
	if d <= 0 {
		b.Deadline = time.Time{}
		return b
	}
	b.Deadline = now.Add(d)
	return b
}

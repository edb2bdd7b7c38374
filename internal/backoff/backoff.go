// Package backoff provides the single retry policy shared by every call
// site that talks to an upstream service: the language-model client and
// the collaborator HTTP clients both consume it.
package backoff

import (
	"context"
	"time"
)

// Default policy values.
const (
	DefaultInitial     = time.Second
	DefaultMax         = 30 * time.Second
	DefaultMaxAttempts = 3
)

// Policy describes a bounded exponential backoff schedule.
// The zero value is usable; zero fields fall back to defaults.
type Policy struct {
	// Initial is the delay after the first failure.
	Initial time.Duration

	// Max caps the exponential delay growth.
	Max time.Duration

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (p Policy) withDefaults() Policy {
	if p.Initial <= 0 {
		p.Initial = DefaultInitial
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Delay returns the backoff delay preceding the given retry attempt.
// Attempt 0 is the first retry. Delays double until Max is reached.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := p.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Retry runs fn up to MaxAttempts times, sleeping the policy delay between
// attempts. It stops early when fn succeeds, when retryable reports the
// error as permanent, or when the context is done. The last error is
// returned on exhaustion.
func Retry(ctx context.Context, p Policy, retryable func(error) bool, fn func(context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

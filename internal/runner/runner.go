// Package runner executes analysis jobs on goroutines and enforces the
// single-writer rule: at most one live execution per job ID, across both
// sync and background modes.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rfontaine/sundog/internal/agent"
	"github.com/rfontaine/sundog/internal/checkpoint"
)

// Sentinel errors for runner operations.
var (
	// ErrAlreadyRunning means an execution for this job ID is live.
	ErrAlreadyRunning = errors.New("job already running")

	// ErrShuttingDown means the runner no longer accepts jobs.
	ErrShuttingDown = errors.New("runner shutting down")
)

// Runner owns the goroutines driving the loop engine.
type Runner struct {
	engine *agent.Engine
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	closed  bool
	wg      sync.WaitGroup
}

// Option configures optional Runner behavior.
type Option func(*Runner)

// WithLogger injects a structured logger into the Runner.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner over the given engine.
func New(engine *agent.Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:  engine,
		running: make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// RunSync executes the job inline under the given wall-clock timeout and
// returns its resulting checkpoint. A timeout expiry does not error: the
// engine suspends the job and the result carries StatusAwaitingResume.
func (r *Runner) RunSync(ctx context.Context, cp checkpoint.Checkpoint, timeout time.Duration) (checkpoint.Checkpoint, error) {
	base, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)

	if err := r.acquire(cp.Job.ID, cancelCause); err != nil {
		return checkpoint.Checkpoint{}, err
	}
	defer r.release(cp.Job.ID)

	r.wg.Add(1)
	defer r.wg.Done()

	runCtx, cancel := context.WithTimeout(base, timeout)
	defer cancel()
	return r.engine.Run(runCtx, cp)
}

// RunBackground spawns a goroutine for the job and returns immediately.
// The execution outlives the caller's request context.
func (r *Runner) RunBackground(cp checkpoint.Checkpoint) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	if err := r.acquire(cp.Job.ID, cancel); err != nil {
		cancel(nil)
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(cp.Job.ID)
		defer cancel(nil)

		if _, err := r.engine.Run(ctx, cp); err != nil {
			r.logger.Error("background job state not persisted",
				"job_id", cp.Job.ID,
				"error", err,
			)
		}
	}()
	return nil
}

// Cancel requests cooperative cancellation of a live execution. It
// returns false when no execution is live for the job ID.
func (r *Runner) Cancel(jobID string) bool {
	r.mu.Lock()
	cancel, ok := r.running[jobID]
	r.mu.Unlock()
	if ok {
		cancel(context.Canceled)
	}
	return ok
}

// IsRunning reports whether an execution is live for the job ID.
func (r *Runner) IsRunning(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[jobID]
	return ok
}

// Shutdown stops accepting jobs, asks live executions to suspend, and
// waits for them to checkpoint. Returns the context error on a stalled
// drain.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	cancels := make([]context.CancelCauseFunc, 0, len(r.running))
	for _, cancel := range r.running {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel(agent.ErrSuspend)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acquire registers a live execution for the job ID.
func (r *Runner) acquire(jobID string, cancel context.CancelCauseFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrShuttingDown
	}
	if _, exists := r.running[jobID]; exists {
		return ErrAlreadyRunning
	}
	r.running[jobID] = cancel
	return nil
}

func (r *Runner) release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, jobID)
}

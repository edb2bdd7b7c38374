// Package router is the single entry point for analysis requests. It
// decides sync versus background execution, resumes suspended jobs,
// answers polls, and handles cancellation.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rfontaine/sundog/internal/agent"
	"github.com/rfontaine/sundog/internal/checkpoint"
	"github.com/rfontaine/sundog/internal/conversation"
	"github.com/rfontaine/sundog/internal/job"
	"github.com/rfontaine/sundog/internal/runner"
)

// DefaultSyncTimeout is the wall-clock budget for a sync leg. A job that
// outruns it degrades to a resumable background job.
const DefaultSyncTimeout = 25 * time.Second

// Sentinel errors for router operations.
var (
	// ErrJobNotFound means no persisted state exists for the job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning means the job has a live execution; it cannot be
	// resumed until that execution stops.
	ErrJobRunning = errors.New("job is currently running")
)

// Config controls routing behavior.
type Config struct {
	// SyncTimeout is the per-leg wall-clock budget for sync execution.
	SyncTimeout time.Duration

	// ResumeTimeout bounds a resumed leg. Zero reuses SyncTimeout.
	ResumeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = DefaultSyncTimeout
	}
	if c.ResumeTimeout <= 0 {
		c.ResumeTimeout = c.SyncTimeout
	}
	return c
}

// StartRequest is a new analysis or a resume of a suspended one.
type StartRequest struct {
	// Query is the natural-language question. Required on fresh starts,
	// ignored on resumes.
	Query string `json:"query"`

	// ContextParams is an opaque parameter blob recorded with the query.
	// Ignored on resumes; the original parameters win.
	ContextParams json.RawMessage `json:"context_params,omitempty"`

	// Mode forces sync or background. Empty means the router decides.
	Mode job.Mode `json:"mode,omitempty"`

	// JobID resumes the identified suspended job when set.
	JobID string `json:"job_id,omitempty"`
}

// Result is the externally visible state of a job. Resumable marks a
// suspended job the caller may re-issue with its job id.
type Result struct {
	Job            job.Job  `json:"job"`
	IterationsUsed int      `json:"iterations_used"`
	MaxIterations  int      `json:"max_iterations"`
	Resumable      bool     `json:"resumable,omitempty"`
	ToolsAttempted []string `json:"tools_attempted,omitempty"`
}

// Router coordinates the runner, the engine, and the checkpoint store.
type Router struct {
	engine *agent.Engine
	runner *runner.Runner
	store  checkpoint.Store
	cfg    Config
	logger *slog.Logger
}

// Option configures optional Router behavior.
type Option func(*Router)

// WithLogger injects a structured logger into the Router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router.
func New(engine *agent.Engine, run *runner.Runner, store checkpoint.Store, cfg Config, opts ...Option) *Router {
	r := &Router{
		engine: engine,
		runner: run,
		store:  store,
		cfg:    cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Start routes a request: resume when JobID is set, otherwise a fresh
// job in the requested or estimated mode.
func (r *Router) Start(ctx context.Context, req StartRequest) (Result, error) {
	if req.JobID != "" {
		return r.resume(ctx, req.JobID)
	}

	if strings.TrimSpace(req.Query) == "" {
		return Result{}, errors.New("router: empty query")
	}

	mode := req.Mode
	if mode == "" {
		mode = estimateMode(req.Query)
	}

	switch mode {
	case job.ModeSync:
		return r.startSync(ctx, req)
	case job.ModeBackground:
		return r.startBackground(req)
	default:
		return Result{}, fmt.Errorf("router: unknown mode %q", mode)
	}
}

func (r *Router) startSync(ctx context.Context, req StartRequest) (Result, error) {
	deadline := time.Now().Add(r.cfg.SyncTimeout)
	cp := r.engine.NewJob(req.Query, req.ContextParams, job.ModeSync, deadline)

	r.logger.Info("starting sync job", "job_id", cp.Job.ID, "deadline", deadline)
	got, err := r.runner.RunSync(ctx, cp, r.cfg.SyncTimeout)
	if err != nil {
		return Result{}, err
	}
	return toResult(got), nil
}

func (r *Router) startBackground(req StartRequest) (Result, error) {
	cp := r.engine.NewJob(req.Query, req.ContextParams, job.ModeBackground, time.Time{})

	r.logger.Info("starting background job", "job_id", cp.Job.ID)
	if err := r.runner.RunBackground(cp); err != nil {
		return Result{}, err
	}
	return toResult(cp), nil
}

// resume continues a suspended job. The original query and parameters
// are kept; only the wall clock restarts. A terminal job returns its
// persisted result without running.
func (r *Router) resume(ctx context.Context, jobID string) (Result, error) {
	if r.runner.IsRunning(jobID) {
		return Result{}, fmt.Errorf("%w: %s", ErrJobRunning, jobID)
	}

	cp, err := r.store.Load(ctx, jobID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return Result{}, err
	}

	if cp.Job.Status.Terminal() {
		return toResult(cp), nil
	}

	// A persisted Running status with no live execution means the
	// process died mid-run; the checkpoint is still a valid resume point.
	cp.Budget = cp.Budget.ExtendDeadline(time.Now(), r.cfg.ResumeTimeout)

	r.logger.Info("resuming job",
		"job_id", jobID,
		"iterations_used", cp.Budget.IterationsUsed,
	)
	if err := r.runner.RunBackground(cp); err != nil {
		return Result{}, err
	}

	cp.Job.Status = job.StatusRunning
	return toResult(cp), nil
}

// Poll returns the persisted state of a job.
func (r *Router) Poll(ctx context.Context, jobID string) (Result, error) {
	cp, err := r.store.Load(ctx, jobID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return Result{}, err
	}
	return toResult(cp), nil
}

// Cancel stops a job. Live executions are cancelled cooperatively; a
// suspended or pending job is marked cancelled directly. Cancelling a
// terminal job is a no-op returning its state.
func (r *Router) Cancel(ctx context.Context, jobID string) (Result, error) {
	if r.runner.Cancel(jobID) {
		cp, err := r.store.Load(ctx, jobID)
		if err != nil {
			return Result{}, err
		}
		// The live execution writes the terminal state; report what is
		// persisted now.
		return toResult(cp), nil
	}

	cp, err := r.store.Load(ctx, jobID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return Result{}, err
	}
	if cp.Job.Status.Terminal() {
		return toResult(cp), nil
	}

	cp.Job.Status = job.StatusCancelled
	cp.Job.ErrorKind = job.ErrorKindCancelled
	cp.Job.Touch()
	cp.SavedAt = time.Now().UTC()
	if err := r.store.Save(ctx, cp); err != nil {
		return Result{}, err
	}
	r.logger.Info("cancelled suspended job", "job_id", jobID)
	return toResult(cp), nil
}

func toResult(cp checkpoint.Checkpoint) Result {
	res := Result{
		Job:            cp.Job,
		IterationsUsed: cp.Budget.IterationsUsed,
		MaxIterations:  cp.Budget.MaxIterations,
		Resumable:      cp.Job.Status == job.StatusAwaitingResume,
	}
	if cp.Job.Status.Terminal() {
		res.ToolsAttempted = conversation.Restore(cp.Turns, 0).ToolNamesAttempted()
	}
	return res
}

// backgroundHints are query phrasings that usually need many tool rounds.
var backgroundHints = []string{
	"compare", "trend", "anomal", "correlat", "month", "year",
	"all systems", "every system", "degradation", "history",
}

// estimateMode guesses whether a query fits inside the sync budget.
// Long or multi-range questions go to background.
func estimateMode(query string) job.Mode {
	q := strings.ToLower(query)
	if len(q) > 240 {
		return job.ModeBackground
	}
	for _, hint := range backgroundHints {
		if strings.Contains(q, hint) {
			return job.ModeBackground
		}
	}
	return job.ModeSync
}

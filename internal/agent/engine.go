// Package agent implements the analysis loop: iterative model calls and
// tool executions driving one job from query to answer, under iteration
// and wall-clock budgets, with a checkpoint written after every turn.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/rfontaine/sundog/internal/backoff"
	"github.com/rfontaine/sundog/internal/budget"
	"github.com/rfontaine/sundog/internal/checkpoint"
	"github.com/rfontaine/sundog/internal/conversation"
	"github.com/rfontaine/sundog/internal/job"
	"github.com/rfontaine/sundog/internal/provider"
	"github.com/rfontaine/sundog/internal/tool"
)

var tracer = otel.Tracer("github.com/rfontaine/sundog/internal/agent")

// saveTimeout bounds a single checkpoint write. Saves run on a context
// detached from the job so a deadline expiry cannot lose the final save.
const saveTimeout = 5 * time.Second

// finalNudge is injected when the iteration budget runs out, forcing a
// last tool-free completion.
const finalNudge = "You have used your tool budget. Provide your best final answer now using only the information already gathered. Do not request any more tools."

// insufficientAnswer stands in for the answer when a job exhausts its
// budget without the model ever producing usable text.
const insufficientAnswer = "Insufficient data: the analysis exhausted its budget before reaching an answer."

// emptyNudge reminds the model of its remaining budget after a response
// with neither text nor a tool call. One nudge is allowed per round; a
// second empty response fails the job.
func emptyNudge(bud budget.Budget, now time.Time) string {
	msg := fmt.Sprintf("Your last response was empty. You have %d tool rounds", bud.IterationsRemaining())
	if left, ok := bud.RemainingTime(now); ok {
		msg += fmt.Sprintf(" and %s", left.Round(time.Second))
	}
	return msg + " remaining. Either call a tool or state your final answer."
}

// ErrSuspend is the cancel cause used to park a running job as awaiting
// resume instead of terminating it. Used during graceful shutdown.
var ErrSuspend = errors.New("suspend requested")

// Engine drives the analysis loop for one job at a time. It is stateless
// across jobs; all per-job state lives in the checkpoint.
type Engine struct {
	provider provider.Provider
	executor *tool.Executor
	registry *tool.Registry
	store    checkpoint.Store
	cfg      Config

	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithLogger injects a structured logger into the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSink registers an event sink for turn and status events.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(p provider.Provider, executor *tool.Executor, registry *tool.Registry, store checkpoint.Store, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		provider: p,
		executor: executor,
		registry: registry,
		store:    store,
		cfg:      cfg.withDefaults(),
		sink:     nopSink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// NewJob builds the initial checkpoint for a fresh job: primer, query,
// and a full budget. A zero deadline means no wall-clock limit.
func (e *Engine) NewJob(query string, params json.RawMessage, mode job.Mode, deadline time.Time) checkpoint.Checkpoint {
	j := job.New(query, params, mode)
	log := conversation.NewLog(e.cfg.MaxLogBytes)
	log.Append(conversation.SystemPrimer(e.cfg.Primer))
	log.Append(conversation.UserQuery(query, params))

	return checkpoint.Checkpoint{
		Job:     j,
		Turns:   log.Turns(),
		Budget:  budget.New(e.cfg.MaxIterations, deadline),
		SavedAt: e.now().UTC(),
	}
}

// Run drives the loop from the given checkpoint to its next stopping
// point. Domain outcomes (completed, failed, exhausted, cancelled,
// awaiting resume) are written into the returned checkpoint; a non-nil
// error means the state could not be persisted.
func (e *Engine) Run(ctx context.Context, cp checkpoint.Checkpoint) (checkpoint.Checkpoint, error) {
	j := cp.Job
	bud := cp.Budget
	log := conversation.Restore(cp.Turns, e.cfg.MaxLogBytes)

	ctx, span := tracer.Start(ctx, "agent.run", oteltrace.WithAttributes(
		attribute.String("job.id", j.ID),
		attribute.String("job.mode", string(j.Mode)),
	))
	defer span.End()

	e.setStatus(&j, job.StatusRunning, bud)
	if err := e.save(ctx, j, log, bud); err != nil {
		return e.failUnsaved(ctx, j, log, bud, err)
	}

	e.logger.Info("job started",
		"job_id", j.ID,
		"mode", j.Mode,
		"iterations_remaining", bud.IterationsRemaining(),
	)

	nudged := false
	for {
		if ctx.Err() != nil {
			return e.stopForContext(ctx, context.Cause(ctx), j, log, bud)
		}

		if bud.Exhausted(e.now()) {
			if bud.IterationsRemaining() == 0 {
				return e.forceFinalAnswer(ctx, j, log, bud)
			}
			// Wall clock hit with iterations left: suspend, resumable.
			return e.suspend(ctx, j, log, bud)
		}

		resp, err := e.complete(ctx, log, e.registry.Definitions())
		if err != nil {
			if ctx.Err() != nil {
				return e.stopForContext(ctx, context.Cause(ctx), j, log, bud)
			}
			return e.fail(ctx, j, log, bud, classifyModelError(err), err)
		}

		switch interpret(resp) {
		case IntentFinalAnswer:
			e.appendTurn(&j, log, conversation.ModelOutput(resp.Content), bud)
			j.Answer = resp.Content
			e.setStatus(&j, job.StatusCompleted, bud)
			return e.persistTerminal(ctx, j, log, bud)

		case IntentEmpty:
			if nudged {
				return e.fail(ctx, j, log, bud, job.ErrorKindModel, provider.ErrEmptyResponse)
			}
			nudged = true
			e.logger.Warn("empty model response, nudging", "job_id", j.ID)
			e.appendTurn(&j, log, conversation.SystemNote(emptyNudge(bud, e.now())), bud)
			if err := e.save(ctx, j, log, bud); err != nil {
				return e.failUnsaved(ctx, j, log, bud, err)
			}

		case IntentToolRequest:
			nudged = false
			e.appendTurn(&j, log, conversation.ModelOutput(resp.Content), bud)
			for _, call := range resp.ToolCalls {
				e.appendTurn(&j, log, conversation.ToolInvocation(call.Name, call.ID, call.Arguments), bud)

				toolCtx, toolSpan := tracer.Start(ctx, "tool."+call.Name)
				rec := e.executor.Execute(toolCtx, call)
				toolSpan.SetAttributes(attribute.Bool("tool.error", rec.Output.IsError))
				toolSpan.End()

				e.logger.Debug("tool executed",
					"job_id", j.ID,
					"tool", rec.Name,
					"error_kind", rec.ErrorKind,
					"duration", rec.Duration,
				)
				e.appendTurn(&j, log, conversation.ToolOutcome(
					rec.Name, rec.ID, !rec.Output.IsError, rec.Output.Content, rec.ErrorKind, rec.Duration,
				), bud)
			}

			bud = bud.ConsumeIteration()
			log.Prune()
			if err := e.save(ctx, j, log, bud); err != nil {
				return e.failUnsaved(ctx, j, log, bud, err)
			}
		}
	}
}

// complete calls the model with the shared retry policy. Only transient
// provider errors (rate limit, unavailable) are retried.
func (e *Engine) complete(ctx context.Context, log *conversation.Log, defs []provider.ToolDefinition) (provider.CompletionResponse, error) {
	var resp provider.CompletionResponse
	err := backoff.Retry(ctx, e.cfg.Retry, provider.IsRetryable, func(ctx context.Context) error {
		r, err := e.provider.Complete(ctx, provider.CompletionRequest{
			Messages:  log.Messages(),
			Tools:     defs,
			MaxTokens: e.cfg.MaxTokens,
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// forceFinalAnswer makes one last tool-free completion after the
// iteration budget runs out. A clean answer completes the job; anything
// else ends Exhausted with the best partial answer, synthesized if the
// model never produced usable text.
func (e *Engine) forceFinalAnswer(ctx context.Context, j job.Job, log *conversation.Log, bud budget.Budget) (checkpoint.Checkpoint, error) {
	e.logger.Info("iteration budget exhausted, forcing final answer", "job_id", j.ID)
	e.appendTurn(&j, log, conversation.SystemNote(finalNudge), bud)

	resp, err := e.complete(ctx, log, nil)
	if err == nil && interpret(resp) == IntentFinalAnswer {
		e.appendTurn(&j, log, conversation.ModelOutput(resp.Content), bud)
		j.Answer = resp.Content
		e.setStatus(&j, job.StatusCompleted, bud)
		return e.persistTerminal(ctx, j, log, bud)
	}

	if err != nil {
		e.logger.Warn("forced final answer failed", "job_id", j.ID, "error", err)
	}
	j.Answer = log.LastModelText()
	if j.Answer == "" {
		j.Answer = insufficientAnswer
	}
	e.setStatus(&j, job.StatusExhausted, bud)
	return e.persistTerminal(ctx, j, log, bud)
}

// stopForContext maps a done context to an outcome: a deadline expiry or
// an explicit suspend parks the job for later resumption, a user cancel
// terminates it.
func (e *Engine) stopForContext(ctx context.Context, cause error, j job.Job, log *conversation.Log, bud budget.Budget) (checkpoint.Checkpoint, error) {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, ErrSuspend) {
		return e.suspend(ctx, j, log, bud)
	}

	j.Answer = log.LastModelText()
	j.ErrorKind = job.ErrorKindCancelled
	e.setStatus(&j, job.StatusCancelled, bud)
	e.logger.Info("job cancelled", "job_id", j.ID, "iterations_used", bud.IterationsUsed)
	return e.persistTerminal(ctx, j, log, bud)
}

// suspend parks the job as awaiting resume. Sync jobs degrade to
// background mode; iteration accounting carries over, the wall clock
// restarts on resume.
func (e *Engine) suspend(ctx context.Context, j job.Job, log *conversation.Log, bud budget.Budget) (checkpoint.Checkpoint, error) {
	j.Mode = job.ModeBackground
	e.setStatus(&j, job.StatusAwaitingResume, bud)
	e.logger.Info("job suspended",
		"job_id", j.ID,
		"iterations_used", bud.IterationsUsed,
		"iterations_remaining", bud.IterationsRemaining(),
	)
	return e.persistTerminal(ctx, j, log, bud)
}

// fail terminates the job with an error classification and the best
// partial answer gathered so far.
func (e *Engine) fail(ctx context.Context, j job.Job, log *conversation.Log, bud budget.Budget, kind string, cause error) (checkpoint.Checkpoint, error) {
	e.logger.Error("job failed", "job_id", j.ID, "error_kind", kind, "error", cause)
	j.Answer = log.LastModelText()
	j.ErrorKind = kind
	e.setStatus(&j, job.StatusFailed, bud)
	return e.persistTerminal(ctx, j, log, bud)
}

// failUnsaved handles a checkpoint write failure. One final save is
// attempted; if that also fails the error surfaces to the caller.
func (e *Engine) failUnsaved(ctx context.Context, j job.Job, log *conversation.Log, bud budget.Budget, cause error) (checkpoint.Checkpoint, error) {
	e.logger.Error("checkpoint save failed", "job_id", j.ID, "error", cause)
	j.Answer = log.LastModelText()
	j.ErrorKind = job.ErrorKindCheckpoint
	e.setStatus(&j, job.StatusFailed, bud)

	cp := e.snapshot(j, log, bud)
	if err := e.save(ctx, j, log, bud); err != nil {
		return cp, err
	}
	return cp, nil
}

// persistTerminal saves the final state and returns it. The save runs on
// a detached context so it survives the job deadline.
func (e *Engine) persistTerminal(ctx context.Context, j job.Job, log *conversation.Log, bud budget.Budget) (checkpoint.Checkpoint, error) {
	cp := e.snapshot(j, log, bud)
	if err := e.save(ctx, j, log, bud); err != nil {
		e.logger.Error("final checkpoint save failed", "job_id", j.ID, "error", err)
		return cp, err
	}
	return cp, nil
}

func (e *Engine) snapshot(j job.Job, log *conversation.Log, bud budget.Budget) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		Job:     j,
		Turns:   log.Turns(),
		Budget:  bud,
		SavedAt: e.now().UTC(),
	}
}

func (e *Engine) save(ctx context.Context, j job.Job, log *conversation.Log, bud budget.Budget) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	return e.store.Save(saveCtx, e.snapshot(j, log, bud))
}

// appendTurn appends a turn, stamps the job, and emits a turn event.
func (e *Engine) appendTurn(j *job.Job, log *conversation.Log, t conversation.Turn, bud budget.Budget) {
	log.Append(t)
	j.Touch()
	e.sink.Emit(Event{
		Type:      EventTurn,
		JobID:     j.ID,
		Status:    j.Status,
		Turn:      &t,
		Iteration: bud.IterationsUsed,
	})
}

// setStatus transitions the job status and emits a status event.
func (e *Engine) setStatus(j *job.Job, s job.Status, bud budget.Budget) {
	j.Status = s
	j.Touch()
	e.sink.Emit(Event{
		Type:      EventStatus,
		JobID:     j.ID,
		Status:    s,
		Iteration: bud.IterationsUsed,
	})
}

// classifyModelError maps a provider error onto the job error taxonomy.
func classifyModelError(err error) string {
	if provider.IsRetryable(err) {
		return job.ErrorKindTransport
	}
	return job.ErrorKindModel
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rfontaine/sundog/internal/backoff"
	"github.com/rfontaine/sundog/internal/checkpoint"
	"github.com/rfontaine/sundog/internal/conversation"
	"github.com/rfontaine/sundog/internal/job"
	"github.com/rfontaine/sundog/internal/provider"
	"github.com/rfontaine/sundog/internal/tool"
)

// scriptedProvider replays a fixed sequence of completions.
type scriptedProvider struct {
	mu       sync.Mutex
	script   []func(provider.CompletionRequest) (provider.CompletionResponse, error)
	requests []provider.CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.script) == 0 {
		return provider.CompletionResponse{}, errors.New("script exhausted")
	}
	step := p.script[0]
	p.script = p.script[1:]
	return step(req)
}

func (p *scriptedProvider) ModelName() string { return "scripted" }

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func respond(resp provider.CompletionResponse) func(provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(provider.CompletionRequest) (provider.CompletionResponse, error) {
		return resp, nil
	}
}

func respondErr(err error) func(provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(provider.CompletionRequest) (provider.CompletionResponse, error) {
		return provider.CompletionResponse{}, err
	}
}

func toolCallResponse(name, id string, args string) provider.CompletionResponse {
	return provider.CompletionResponse{
		ToolCalls:    []provider.ToolCall{{ID: id, Name: name, Arguments: json.RawMessage(args)}},
		FinishReason: provider.FinishReasonToolUse,
	}
}

func answerResponse(text string) provider.CompletionResponse {
	return provider.CompletionResponse{Content: text, FinishReason: provider.FinishReasonStop}
}

// echoTool records how often it ran and returns a fixed payload.
type echoTool struct {
	mu      sync.Mutex
	calls   int
	payload string
}

func (t *echoTool) Name() string                 { return "fetch_records" }
func (t *echoTool) Description() string          { return "test tool" }
func (t *echoTool) Schema() json.RawMessage      { return json.RawMessage(`{"type":"object"}`) }
func (t *echoTool) Execute(_ context.Context, _ json.RawMessage) (tool.Output, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return tool.Output{Content: t.payload}, nil
}

func newTestEngine(t *testing.T, p provider.Provider, cfg Config) (*Engine, *checkpoint.MemStore, *echoTool) {
	t.Helper()

	reg := tool.NewRegistry()
	et := &echoTool{payload: `[{"power_w":4200}]`}
	if err := reg.Register(et); err != nil {
		t.Fatalf("register: %v", err)
	}

	cfg.Retry = backoff.Policy{Initial: time.Millisecond, MaxAttempts: 2}
	store := checkpoint.NewMemStore()
	eng := NewEngine(p, tool.NewExecutor(reg, time.Second), reg, store, cfg)
	return eng, store, et
}

func TestRun_AnswerAfterToolRound(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(toolCallResponse("fetch_records", "tc-1", `{"system_id":"sys-1"}`)),
		respond(answerResponse("Output averaged 4.2 kW.")),
	}}
	eng, store, et := newTestEngine(t, p, Config{})

	cp, err := eng.Run(context.Background(), eng.NewJob("how much power last week?", nil, job.ModeSync, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if cp.Job.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", cp.Job.Status)
	}
	if cp.Job.Answer != "Output averaged 4.2 kW." {
		t.Errorf("answer = %q", cp.Job.Answer)
	}
	if et.calls != 1 {
		t.Errorf("tool ran %d times, want 1", et.calls)
	}
	if cp.Budget.IterationsUsed != 1 {
		t.Errorf("iterations used = %d, want 1", cp.Budget.IterationsUsed)
	}

	// The persisted checkpoint matches the returned one.
	saved, err := store.Load(context.Background(), cp.Job.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Job.Status != job.StatusCompleted || saved.Job.Answer != cp.Job.Answer {
		t.Errorf("persisted job = %+v", saved.Job)
	}
}

func TestRun_DirectAnswerConsumesNoIterations(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(answerResponse("You have 3 systems.")),
	}}
	eng, _, et := newTestEngine(t, p, Config{})

	cp, err := eng.Run(context.Background(), eng.NewJob("how many systems?", nil, job.ModeSync, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cp.Budget.IterationsUsed != 0 {
		t.Errorf("iterations used = %d, want 0", cp.Budget.IterationsUsed)
	}
	if et.calls != 0 {
		t.Errorf("tool ran %d times, want 0", et.calls)
	}
}

func TestRun_IterationExhaustionForcesFinalAnswer(t *testing.T) {
	t.Parallel()

	// Two tool rounds allowed; the model keeps asking for tools, then the
	// forced tool-free call answers cleanly, so the job completes.
	script := []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(toolCallResponse("fetch_records", "tc-1", `{}`)),
		respond(toolCallResponse("fetch_records", "tc-2", `{}`)),
		func(req provider.CompletionRequest) (provider.CompletionResponse, error) {
			if len(req.Tools) != 0 {
				return provider.CompletionResponse{}, errors.New("forced call must carry no tools")
			}
			return answerResponse("Best effort: output looked normal."), nil
		},
	}
	p := &scriptedProvider{script: script}
	eng, _, _ := newTestEngine(t, p, Config{MaxIterations: 2})

	cp, err := eng.Run(context.Background(), eng.NewJob("deep analysis", nil, job.ModeBackground, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if cp.Job.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", cp.Job.Status)
	}
	if cp.Job.Answer != "Best effort: output looked normal." {
		t.Errorf("answer = %q", cp.Job.Answer)
	}
	if cp.Budget.IterationsUsed != 2 {
		t.Errorf("iterations used = %d, want 2", cp.Budget.IterationsUsed)
	}
	if p.calls() != 3 {
		t.Errorf("provider calls = %d, want 3", p.calls())
	}
}

func TestRun_ForcedFinalAnswerStillToolHungryExhausts(t *testing.T) {
	t.Parallel()

	// The forced call disobeys and requests another tool. No further
	// calls execute; the job ends exhausted with the last model text.
	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(provider.CompletionResponse{
			Content:      "Checking the records first.",
			ToolCalls:    []provider.ToolCall{{ID: "tc-1", Name: "fetch_records", Arguments: json.RawMessage(`{}`)}},
			FinishReason: provider.FinishReasonToolUse,
		}),
		respond(toolCallResponse("fetch_records", "tc-2", `{}`)),
	}}
	eng, _, et := newTestEngine(t, p, Config{MaxIterations: 1})

	cp, err := eng.Run(context.Background(), eng.NewJob("q", nil, job.ModeBackground, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cp.Job.Status != job.StatusExhausted {
		t.Errorf("status = %s, want exhausted", cp.Job.Status)
	}
	if cp.Job.Answer != "Checking the records first." {
		t.Errorf("answer = %q, want last model text", cp.Job.Answer)
	}
	if et.calls != 1 {
		t.Errorf("tool ran %d times, want 1", et.calls)
	}
}

func TestRun_ExhaustionWithoutModelTextSynthesizesAnswer(t *testing.T) {
	t.Parallel()

	// The model only ever emits bare tool calls and the forced call errors
	// out, so no usable text exists anywhere in the transcript.
	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(toolCallResponse("fetch_records", "tc-1", `{}`)),
		respondErr(errors.New("model rejected request")),
	}}
	eng, store, _ := newTestEngine(t, p, Config{MaxIterations: 1})

	cp, err := eng.Run(context.Background(), eng.NewJob("q", nil, job.ModeBackground, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cp.Job.Status != job.StatusExhausted {
		t.Errorf("status = %s, want exhausted", cp.Job.Status)
	}
	if cp.Job.Answer != insufficientAnswer {
		t.Errorf("answer = %q, want synthesized fallback", cp.Job.Answer)
	}

	saved, err := store.Load(context.Background(), cp.Job.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Job.Answer == "" {
		t.Error("persisted answer is empty")
	}
}

func TestRun_EmptyResponseNudgedOnce(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(provider.CompletionResponse{}),
		respond(answerResponse("Recovered after nudge.")),
	}}
	eng, _, _ := newTestEngine(t, p, Config{})

	cp, err := eng.Run(context.Background(), eng.NewJob("q", nil, job.ModeSync, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cp.Job.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", cp.Job.Status)
	}

	// The nudge travels as a system note turn and reminds the model of
	// its remaining budget.
	found := false
	for _, turn := range cp.Turns {
		if turn.Kind == conversation.KindSystemNote && strings.Contains(turn.Text, "empty") {
			found = true
			if !strings.Contains(turn.Text, "10 tool rounds") {
				t.Errorf("nudge does not state remaining budget: %q", turn.Text)
			}
		}
	}
	if !found {
		t.Error("expected a system note nudge in the log")
	}
}

func TestRun_SecondEmptyResponseFails(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(provider.CompletionResponse{}),
		respond(provider.CompletionResponse{}),
	}}
	eng, _, _ := newTestEngine(t, p, Config{})

	cp, err := eng.Run(context.Background(), eng.NewJob("q", nil, job.ModeSync, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cp.Job.Status != job.StatusFailed {
		t.Errorf("status = %s, want failed", cp.Job.Status)
	}
	if cp.Job.ErrorKind != job.ErrorKindModel {
		t.Errorf("error kind = %s, want model", cp.Job.ErrorKind)
	}
}

func TestRun_TransientModelErrorRetried(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respondErr(provider.ErrRateLimit),
		respond(answerResponse("fine after retry")),
	}}
	eng, _, _ := newTestEngine(t, p, Config{})

	cp, err := eng.Run(context.Background(), eng.NewJob("q", nil, job.ModeSync, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cp.Job.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", cp.Job.Status)
	}
	if p.calls() != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls())
	}
}

func TestRun_PersistentTransportErrorFails(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respondErr(provider.ErrProviderDown),
		respondErr(provider.ErrProviderDown),
	}}
	eng, _, _ := newTestEngine(t, p, Config{})

	cp, err := eng.Run(context.Background(), eng.NewJob("q", nil, job.ModeSync, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cp.Job.Status != job.StatusFailed {
		t.Errorf("status = %s, want failed", cp.Job.Status)
	}
	if cp.Job.ErrorKind != job.ErrorKindTransport {
		t.Errorf("error kind = %s, want transport", cp.Job.ErrorKind)
	}
}

func TestRun_CancelTerminatesWithPartial(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		func(provider.CompletionRequest) (provider.CompletionResponse, error) {
			cancel()
			return provider.CompletionResponse{
				Content:      "Looking at last week first.",
				ToolCalls:    []provider.ToolCall{{ID: "tc-1", Name: "fetch_records", Arguments: json.RawMessage(`{}`)}},
				FinishReason: provider.FinishReasonToolUse,
			}, nil
		},
	}}
	eng, _, _ := newTestEngine(t, p, Config{})

	cp, err := eng.Run(ctx, eng.NewJob("q", nil, job.ModeBackground, time.Time{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cp.Job.Status != job.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cp.Job.Status)
	}
	if cp.Job.ErrorKind != job.ErrorKindCancelled {
		t.Errorf("error kind = %s", cp.Job.ErrorKind)
	}
	if cp.Job.Answer != "Looking at last week first." {
		t.Errorf("partial answer = %q", cp.Job.Answer)
	}
}

func TestRun_DeadlineSuspendsAsResumable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		func(provider.CompletionRequest) (provider.CompletionResponse, error) {
			// Outlive the deadline so the loop sees it after this round.
			time.Sleep(80 * time.Millisecond)
			return toolCallResponse("fetch_records", "tc-1", `{}`), nil
		},
	}}
	eng, store, _ := newTestEngine(t, p, Config{})

	cp := eng.NewJob("q", nil, job.ModeSync, eng.now().Add(time.Hour))
	deadlineCtx, cancelDeadline := context.WithDeadline(ctx, time.Now().Add(20*time.Millisecond))
	defer cancelDeadline()

	got, err := eng.Run(deadlineCtx, cp)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Job.Status != job.StatusAwaitingResume {
		t.Fatalf("status = %s, want awaiting_resume", got.Job.Status)
	}
	if got.Job.Mode != job.ModeBackground {
		t.Errorf("mode = %s, want background after degradation", got.Job.Mode)
	}

	// The suspended state made it to the store despite the dead context.
	saved, err := store.Load(context.Background(), got.Job.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Job.Status != job.StatusAwaitingResume {
		t.Errorf("persisted status = %s", saved.Job.Status)
	}
}

func TestRun_ResumeIsStrictPrefix(t *testing.T) {
	t.Parallel()

	// First leg: one tool round, then the deadline suspends the job.
	p1 := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		func(provider.CompletionRequest) (provider.CompletionResponse, error) {
			time.Sleep(80 * time.Millisecond)
			return toolCallResponse("fetch_records", "tc-1", `{"system_id":"sys-1"}`), nil
		},
	}}
	eng1, store, _ := newTestEngine(t, p1, Config{})

	deadlineCtx, cancel := context.WithDeadline(context.Background(), time.Now().Add(20*time.Millisecond))
	defer cancel()

	first, err := eng1.Run(deadlineCtx, eng1.NewJob("q", nil, job.ModeSync, time.Time{}))
	if err != nil {
		t.Fatalf("first leg: %v", err)
	}
	if first.Job.Status != job.StatusAwaitingResume {
		t.Fatalf("status = %s, want awaiting_resume", first.Job.Status)
	}

	// Second leg from the persisted checkpoint.
	p2 := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(answerResponse("done")),
	}}
	eng2 := NewEngine(p2, eng1.executor, eng1.registry, store, Config{
		Retry: backoff.Policy{Initial: time.Millisecond, MaxAttempts: 2},
	})

	saved, err := store.Load(context.Background(), first.Job.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := eng2.Run(context.Background(), saved)
	if err != nil {
		t.Fatalf("second leg: %v", err)
	}
	if second.Job.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", second.Job.Status)
	}

	// The resumed model call saw the first leg's turns as a strict prefix.
	req := p2.requests[0]
	firstMsgs := conversation.Restore(first.Turns, 0).Messages()
	if len(req.Messages) != len(firstMsgs) {
		t.Fatalf("resumed request has %d messages, first leg rendered %d", len(req.Messages), len(firstMsgs))
	}
	for i := range firstMsgs {
		if req.Messages[i].Role != firstMsgs[i].Role || req.Messages[i].Content != firstMsgs[i].Content {
			t.Errorf("message %d diverged: %+v vs %+v", i, req.Messages[i], firstMsgs[i])
		}
	}

	// Iteration accounting carried over.
	if second.Budget.IterationsUsed != 1 {
		t.Errorf("iterations used = %d, want 1", second.Budget.IterationsUsed)
	}
}

func TestRun_EmitsEvents(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{script: []func(provider.CompletionRequest) (provider.CompletionResponse, error){
		respond(toolCallResponse("fetch_records", "tc-1", `{}`)),
		respond(answerResponse("all good")),
	}}

	reg := tool.NewRegistry()
	if err := reg.Register(&echoTool{payload: "{}"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var mu sync.Mutex
	var events []Event
	sink := sinkFunc(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	eng := NewEngine(p, tool.NewExecutor(reg, time.Second), reg, checkpoint.NewMemStore(), Config{
		Retry: backoff.Policy{Initial: time.Millisecond, MaxAttempts: 2},
	}, WithSink(sink))

	if _, err := eng.Run(context.Background(), eng.NewJob("q", nil, job.ModeSync, time.Time{})); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	var statuses []job.Status
	turns := 0
	for _, ev := range events {
		switch ev.Type {
		case EventStatus:
			statuses = append(statuses, ev.Status)
		case EventTurn:
			turns++
		}
	}
	if len(statuses) != 2 || statuses[0] != job.StatusRunning || statuses[1] != job.StatusCompleted {
		t.Errorf("status events = %v", statuses)
	}
	// Model output, invocation, outcome, final output.
	if turns != 4 {
		t.Errorf("turn events = %d, want 4", turns)
	}
}

// sinkFunc adapts a function to the Sink interface.
type sinkFunc func(Event)

func (f sinkFunc) Emit(ev Event) { f(ev) }

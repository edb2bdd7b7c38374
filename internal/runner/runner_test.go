package runner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rfontaine/sundog/internal/agent"
	"github.com/rfontaine/sundog/internal/backoff"
	"github.com/rfontaine/sundog/internal/checkpoint"
	"github.com/rfontaine/sundog/internal/job"
	"github.com/rfontaine/sundog/internal/provider"
	"github.com/rfontaine/sundog/internal/tool"
)

// blockingProvider holds every completion until released or the context ends.
type blockingProvider struct {
	started chan struct{}
	release chan provider.CompletionResponse

	mu    sync.Mutex
	calls int
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{
		started: make(chan struct{}, 16),
		release: make(chan provider.CompletionResponse),
	}
}

func (p *blockingProvider) Complete(ctx context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	p.started <- struct{}{}

	select {
	case resp := <-p.release:
		return resp, nil
	case <-ctx.Done():
		return provider.CompletionResponse{}, ctx.Err()
	}
}

func (p *blockingProvider) ModelName() string { return "blocking" }

func newTestRunner(t *testing.T, p provider.Provider) (*Runner, *agent.Engine, *checkpoint.MemStore) {
	t.Helper()

	reg := tool.NewRegistry()
	store := checkpoint.NewMemStore()
	eng := agent.NewEngine(p, tool.NewExecutor(reg, time.Second), reg, store, agent.Config{
		Retry: backoff.Policy{Initial: time.Millisecond, MaxAttempts: 1},
	})
	return New(eng), eng, store
}

func TestRunSync_CompletesInline(t *testing.T) {
	t.Parallel()

	p := newBlockingProvider()
	r, eng, _ := newTestRunner(t, p)

	go func() {
		<-p.started
		p.release <- provider.CompletionResponse{Content: "done"}
	}()

	cp, err := r.RunSync(context.Background(), eng.NewJob("q", nil, job.ModeSync, time.Time{}), time.Second)
	if err != nil {
		t.Fatalf("run sync: %v", err)
	}
	if cp.Job.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", cp.Job.Status)
	}
}

func TestRunBackground_SingleWriterPerJob(t *testing.T) {
	t.Parallel()

	p := newBlockingProvider()
	r, eng, _ := newTestRunner(t, p)

	cp := eng.NewJob("q", json.RawMessage(`{"system_id":"sys-1"}`), job.ModeBackground, time.Time{})
	if err := r.RunBackground(cp); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-p.started

	if !r.IsRunning(cp.Job.ID) {
		t.Error("job should be live")
	}
	if err := r.RunBackground(cp); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second start = %v, want ErrAlreadyRunning", err)
	}
	if _, err := r.RunSync(context.Background(), cp, time.Second); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("sync start of live job = %v, want ErrAlreadyRunning", err)
	}

	p.release <- provider.CompletionResponse{Content: "done"}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if r.IsRunning(cp.Job.ID) {
		t.Error("job still marked live after drain")
	}
}

func TestCancel_TerminatesBackgroundJob(t *testing.T) {
	t.Parallel()

	p := newBlockingProvider()
	r, eng, store := newTestRunner(t, p)

	cp := eng.NewJob("q", nil, job.ModeBackground, time.Time{})
	if err := r.RunBackground(cp); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-p.started

	if !r.Cancel(cp.Job.ID) {
		t.Fatal("cancel reported no live job")
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	saved, err := store.Load(context.Background(), cp.Job.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Job.Status != job.StatusCancelled {
		t.Errorf("status = %s, want cancelled", saved.Job.Status)
	}
}

func TestCancel_UnknownJob(t *testing.T) {
	t.Parallel()

	p := newBlockingProvider()
	r, _, _ := newTestRunner(t, p)
	if r.Cancel("nope") {
		t.Error("cancel of unknown job reported true")
	}
}

func TestShutdown_SuspendsLiveJobs(t *testing.T) {
	t.Parallel()

	p := newBlockingProvider()
	r, eng, store := newTestRunner(t, p)

	cp := eng.NewJob("q", nil, job.ModeBackground, time.Time{})
	if err := r.RunBackground(cp); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-p.started

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// The job parked as resumable, not cancelled.
	saved, err := store.Load(context.Background(), cp.Job.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Job.Status != job.StatusAwaitingResume {
		t.Errorf("status = %s, want awaiting_resume", saved.Job.Status)
	}

	// New work is refused after shutdown.
	if err := r.RunBackground(eng.NewJob("q2", nil, job.ModeBackground, time.Time{})); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("post-shutdown start = %v, want ErrShuttingDown", err)
	}
}

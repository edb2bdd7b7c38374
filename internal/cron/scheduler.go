package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Scheduler runs registered jobs on 5-field cron schedules. A tick that
// fires while the previous run of the same job is still in flight is
// skipped rather than queued.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	jobCtx  context.Context
	cancel  context.CancelFunc
	started bool
	seen    map[string]struct{}
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger,
		jobCtx: ctx,
		cancel: cancel,
		seen:   make(map[string]struct{}),
	}
}

// Register adds a job. The schedule is validated immediately; duplicate
// names are rejected. Must be called before Start.
func (s *Scheduler) Register(j Job) error {
	if s.started {
		return fmt.Errorf("cron: register %q after start", j.Name())
	}
	name := j.Name()
	if _, dup := s.seen[name]; dup {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	var busy atomic.Bool
	_, err := s.cron.AddFunc(j.Schedule(), func() {
		if !busy.CompareAndSwap(false, true) {
			s.logger.Warn("cron job still running, skipping tick", "job", name)
			return
		}
		defer busy.Store(false)

		if err := j.Run(s.jobCtx); err != nil {
			s.logger.Error("cron job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}
	s.seen[name] = struct{}{}
	return nil
}

// Start begins dispatching ticks.
func (s *Scheduler) Start() {
	s.started = true
	s.cron.Start()
	s.logger.Info("cron scheduler started", "jobs", len(s.seen))
}

// Stop cancels job contexts and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
}

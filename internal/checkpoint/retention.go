package checkpoint

import (
	"context"
	"log/slog"
	"time"
)

// Retention defaults. Terminal jobs stay pollable for the retention
// window, then become eligible for the sweep.
const (
	DefaultRetention     = 24 * time.Hour
	DefaultSweepSchedule = "17 * * * *"
)

// RetentionJob periodically deletes terminal checkpoints older than the
// retention window. It implements cron.Job.
type RetentionJob struct {
	store     Store
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewRetentionJob creates a retention sweeper. Zero values fall back to
// DefaultRetention and DefaultSweepSchedule.
func NewRetentionJob(store Store, retention time.Duration, schedule string, logger *slog.Logger) *RetentionJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionJob{
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
	}
}

// Name implements cron.Job.
func (r *RetentionJob) Name() string { return "checkpoint_retention" }

// Schedule implements cron.Job.
func (r *RetentionJob) Schedule() string { return r.schedule }

// Run implements cron.Job.
func (r *RetentionJob) Run(ctx context.Context) error {
	cutoff := r.now().Add(-r.retention)
	removed, err := r.store.SweepExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		r.logger.Info("checkpoint: swept expired jobs",
			"removed", removed,
			"cutoff", cutoff.UTC().Format(time.RFC3339),
		)
	}
	return nil
}

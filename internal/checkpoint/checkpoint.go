// Package checkpoint persists loop state snapshots keyed by job ID so a
// long analysis survives process restarts. A loaded checkpoint fully
// reconstructs loop state; resumption is indistinguishable from
// uninterrupted execution except that budget counters continue.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/rfontaine/sundog/internal/budget"
	"github.com/rfontaine/sundog/internal/conversation"
	"github.com/rfontaine/sundog/internal/job"
)

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound is returned when no checkpoint exists for a job ID.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrTerminal is returned when a save would change the status of a
	// job that already reached a terminal state.
	ErrTerminal = errors.New("job is in a terminal state")
)

// Checkpoint is a serialized snapshot of one job's loop state.
type Checkpoint struct {
	Job    job.Job             `json:"job"`
	Turns  []conversation.Turn `json:"turns"`
	Budget budget.Budget       `json:"budget"`

	SavedAt time.Time `json:"saved_at"`
}

// Store durably persists checkpoints keyed by job ID. Saves for the same
// job overwrite the previous snapshot (last-write-wins); concurrent access
// across different job IDs must not contend. Implementations must be safe
// for concurrent use.
type Store interface {
	// Save upserts the checkpoint for cp.Job.ID. Saving a job whose
	// persisted status is terminal returns ErrTerminal unless the new
	// status is identical (idempotent re-save).
	Save(ctx context.Context, cp Checkpoint) error

	// Load returns the latest checkpoint for the job, or ErrNotFound.
	Load(ctx context.Context, jobID string) (Checkpoint, error)

	// Delete removes the checkpoint for the job. Missing rows are not
	// an error.
	Delete(ctx context.Context, jobID string) error

	// SweepExpired deletes terminal checkpoints last updated before the
	// cutoff, returning how many were removed.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

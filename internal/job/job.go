// Package job defines the unit of work driven by the analysis loop: its
// identity, lifecycle status, and execution mode.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

// Status constants for the job lifecycle.
const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusAwaitingResume Status = "awaiting_resume"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusExhausted      Status = "exhausted"
	StatusCancelled      Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal states are
// immutable once written.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExhausted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Mode is the execution contract for a job.
type Mode string

// Mode constants for job execution.
const (
	ModeSync       Mode = "sync"
	ModeBackground Mode = "background"
)

// ErrorKind classifies terminal failures for the caller.
const (
	ErrorKindTransport  = "transport"
	ErrorKindModel      = "model"
	ErrorKindCancelled  = "cancelled"
	ErrorKindCheckpoint = "checkpoint"
)

// Job is the unit of work. Created by the mode router, mutated only by
// the loop controller, persisted by the checkpoint store.
type Job struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Mode   Mode   `json:"mode"`

	// Query and ContextParams are fixed at creation; resume requests
	// never replace them.
	Query         string          `json:"query"`
	ContextParams json.RawMessage `json:"context_params,omitempty"`

	// Answer holds the final (or best partial) answer once terminal.
	Answer    string `json:"answer,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a pending job with a fresh opaque identifier.
func New(query string, params json.RawMessage, mode Mode) Job {
	now := time.Now().UTC()
	return Job{
		ID:            uuid.NewString(),
		Status:        StatusPending,
		Mode:          mode,
		Query:         query,
		ContextParams: params,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Touch updates the last-modified timestamp.
func (j *Job) Touch() {
	j.UpdatedAt = time.Now().UTC()
}

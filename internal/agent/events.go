package agent

import (
	"github.com/rfontaine/sundog/internal/conversation"
	"github.com/rfontaine/sundog/internal/job"
)

// EventType identifies the kind of loop event.
type EventType string

// EventType constants for loop events.
const (
	// EventStatus is emitted on every job status transition.
	EventStatus EventType = "status"

	// EventTurn is emitted after each turn is appended to the log.
	EventTurn EventType = "turn"
)

// Event is one observable step of a running job, consumed by the
// websocket stream and the metrics sink.
type Event struct {
	Type      EventType          `json:"type"`
	JobID     string             `json:"job_id"`
	Status    job.Status         `json:"status,omitempty"`
	Turn      *conversation.Turn `json:"turn,omitempty"`
	Iteration int                `json:"iteration"`
}

// Sink receives loop events. Emit must not block: slow consumers drop
// events rather than stall the loop.
type Sink interface {
	Emit(Event)
}

// nopSink discards all events.
type nopSink struct{}

func (nopSink) Emit(Event) {}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

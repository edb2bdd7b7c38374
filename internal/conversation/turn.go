// Package conversation holds the append-only turn sequence of an analysis
// job and renders it into provider messages. Turns are immutable once
// appended; pruning may drop the oldest non-essential turns to fit a
// serialized size ceiling, but never the system primer or the user query.
package conversation

import (
	"encoding/json"
	"time"
)

// Kind identifies the type of a conversation turn.
type Kind string

// Kind constants for conversation turns.
const (
	KindSystemPrimer   Kind = "system_primer"
	KindUserQuery      Kind = "user_query"
	KindModelOutput    Kind = "model_output"
	KindToolInvocation Kind = "tool_invocation"
	KindToolOutcome    Kind = "tool_outcome"

	// KindSystemNote carries mid-conversation directives injected by the
	// loop (budget reminders, the forced-final-answer instruction). Notes
	// are prunable, unlike the primer and the query.
	KindSystemNote Kind = "system_note"
)

// Turn is one entry in the conversation sequence.
type Turn struct {
	Kind Kind `json:"kind"`

	// Text holds the primer, query, model output, or note content.
	Text string `json:"text,omitempty"`

	// Params holds the original request parameters on a UserQuery turn
	// and the tool arguments on a ToolInvocation turn.
	Params json.RawMessage `json:"params,omitempty"`

	// Tool call correlation. Outcomes are associated with their
	// invocation by position; the ID exists only for provider wire format.
	ToolName string `json:"tool_name,omitempty"`
	ToolID   string `json:"tool_id,omitempty"`

	// Tool outcome fields.
	Success    bool   `json:"success,omitempty"`
	Payload    string `json:"payload,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// essential reports whether the turn may never be pruned.
func (t Turn) essential() bool {
	return t.Kind == KindSystemPrimer || t.Kind == KindUserQuery
}

// SystemPrimer creates the primer turn.
func SystemPrimer(text string) Turn {
	return Turn{Kind: KindSystemPrimer, Text: text, Timestamp: time.Now().UTC()}
}

// UserQuery creates the query turn carrying the original request parameters.
func UserQuery(text string, params json.RawMessage) Turn {
	return Turn{Kind: KindUserQuery, Text: text, Params: params, Timestamp: time.Now().UTC()}
}

// ModelOutput creates a turn for raw model text.
func ModelOutput(text string) Turn {
	return Turn{Kind: KindModelOutput, Text: text, Timestamp: time.Now().UTC()}
}

// ToolInvocation creates a turn recording a requested tool call.
func ToolInvocation(name, id string, args json.RawMessage) Turn {
	return Turn{Kind: KindToolInvocation, ToolName: name, ToolID: id, Params: args, Timestamp: time.Now().UTC()}
}

// ToolOutcome creates a turn recording the result of a tool call.
func ToolOutcome(name, id string, success bool, payload, errorKind string, duration time.Duration) Turn {
	return Turn{
		Kind:       KindToolOutcome,
		ToolName:   name,
		ToolID:     id,
		Success:    success,
		Payload:    payload,
		ErrorKind:  errorKind,
		DurationMs: duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
}

// SystemNote creates a prunable mid-conversation directive turn.
func SystemNote(text string) Turn {
	return Turn{Kind: KindSystemNote, Text: text, Timestamp: time.Now().UTC()}
}

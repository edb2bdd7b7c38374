package conversation

import (
	"encoding/json"

	"github.com/rfontaine/sundog/internal/provider"
)

// DefaultMaxBytes is the serialized-size ceiling applied when none is
// configured. Chosen to stay well inside a 200k-token context window.
const DefaultMaxBytes = 256 * 1024

// Log is the ordered turn sequence of one job. It is not concurrent-safe:
// each instance is owned by a single loop goroutine.
type Log struct {
	turns    []Turn
	maxBytes int
	pruned   int
}

// NewLog creates an empty Log with the given size ceiling.
// A non-positive ceiling falls back to DefaultMaxBytes.
func NewLog(maxBytes int) *Log {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Log{maxBytes: maxBytes}
}

// Restore rebuilds a Log from persisted turns, replaying the exact order.
func Restore(turns []Turn, maxBytes int) *Log {
	l := NewLog(maxBytes)
	l.turns = append(l.turns, turns...)
	return l
}

// Append adds a turn to the end of the sequence.
func (l *Log) Append(t Turn) {
	l.turns = append(l.turns, t)
}

// Turns returns a copy of the turn sequence.
func (l *Log) Turns() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns.
func (l *Log) Len() int {
	return len(l.turns)
}

// Pruned returns how many turns have been dropped so far.
func (l *Log) Pruned() int {
	return l.pruned
}

// LastModelText returns the text of the most recent model output, or ""
// when the model has not produced any. Used for partial answers.
func (l *Log) LastModelText() string {
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Kind == KindModelOutput && l.turns[i].Text != "" {
			return l.turns[i].Text
		}
	}
	return ""
}

// ToolNamesAttempted returns tool names in invocation order, for the
// post-mortem listing on terminal jobs.
func (l *Log) ToolNamesAttempted() []string {
	var names []string
	for _, t := range l.turns {
		if t.Kind == KindToolInvocation {
			names = append(names, t.ToolName)
		}
	}
	return names
}

// SerializedSize returns the JSON-encoded size of the turn sequence.
func (l *Log) SerializedSize() int {
	data, err := json.Marshal(l.turns)
	if err != nil {
		return 0
	}
	return len(data)
}

// Prune drops the oldest non-essential turns until the serialized size is
// within the ceiling. The system primer and user query are never dropped.
// Returns the number of turns removed.
func (l *Log) Prune() int {
	removed := 0
	for l.SerializedSize() > l.maxBytes {
		idx := -1
		for i, t := range l.turns {
			if !t.essential() {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		l.turns = append(l.turns[:idx], l.turns[idx+1:]...)
		removed++
	}
	l.pruned += removed
	return removed
}

// Messages renders the turn sequence as provider messages. A ToolInvocation
// attaches to the preceding assistant message so the wire format carries
// the model text and its tool call together.
func (l *Log) Messages() []provider.Message {
	var msgs []provider.Message

	for _, t := range l.turns {
		switch t.Kind {
		case KindSystemPrimer:
			msgs = append(msgs, provider.Message{
				Role:    provider.MessageRoleSystem,
				Content: t.Text,
			})

		case KindUserQuery:
			msgs = append(msgs, provider.Message{
				Role:    provider.MessageRoleUser,
				Content: t.Text,
			})

		case KindModelOutput:
			msgs = append(msgs, provider.Message{
				Role:    provider.MessageRoleAssistant,
				Content: t.Text,
			})

		case KindToolInvocation:
			call := provider.ToolCall{ID: t.ToolID, Name: t.ToolName, Arguments: t.Params}
			if n := len(msgs); n > 0 && msgs[n-1].Role == provider.MessageRoleAssistant {
				msgs[n-1].ToolCalls = append(msgs[n-1].ToolCalls, call)
			} else {
				// Orphan invocation (preceding output pruned): synthesize
				// an empty assistant message to keep the wire format valid.
				msgs = append(msgs, provider.Message{
					Role:      provider.MessageRoleAssistant,
					ToolCalls: []provider.ToolCall{call},
				})
			}

		case KindToolOutcome:
			content := t.Payload
			if !t.Success && content == "" {
				content = t.ErrorKind
			}
			msgs = append(msgs, provider.Message{
				Role:    provider.MessageRoleTool,
				Content: content,
				ToolID:  t.ToolID,
				IsError: !t.Success,
			})

		case KindSystemNote:
			msgs = append(msgs, provider.Message{
				Role:    provider.MessageRoleUser,
				Content: "[system] " + t.Text,
			})
		}
	}

	return msgs
}

package agent

import (
	"strings"

	"github.com/rfontaine/sundog/internal/provider"
)

// Intent classifies what the model asked for in one completion.
type Intent int

// Intent constants for model response classification.
const (
	// IntentFinalAnswer means the model produced text and no tool calls.
	IntentFinalAnswer Intent = iota

	// IntentToolRequest means the model requested one or more tool calls.
	IntentToolRequest

	// IntentEmpty means the model produced neither text nor tool calls.
	// The loop nudges once before treating it as a failure.
	IntentEmpty
)

// interpret classifies a completion. Tool calls win over text: a response
// carrying both is a tool request whose text travels with the invocation.
func interpret(resp provider.CompletionResponse) Intent {
	if len(resp.ToolCalls) > 0 {
		return IntentToolRequest
	}
	if strings.TrimSpace(resp.Content) != "" {
		return IntentFinalAnswer
	}
	return IntentEmpty
}

// Package tool defines the tool interface, registry, and execution model
// for sundog. Tools are pure data fetchers: a function of (name,
// parameters) with no loop awareness and no loop-level side effects.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is the interface every sundog tool implements.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given arguments. Expected failure
	// modes (no data, invalid range, upstream unavailable) are encoded
	// in the Output, not returned as errors.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Output is the result of a tool execution.
type Output struct {
	// Content is the output payload, fed back to the model verbatim.
	Content string

	// IsError indicates whether the output represents a failure the
	// model should react to.
	IsError bool
}

// Errorf builds a failure Output from a formatted message.
func Errorf(format string, args ...any) Output {
	return Output{Content: fmt.Sprintf(format, args...), IsError: true}
}

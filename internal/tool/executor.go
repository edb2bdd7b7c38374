package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rfontaine/sundog/internal/provider"
)

// DefaultCallTimeout bounds a single tool call. It is independent of the
// job deadline: the deadline caps the whole job, this caps one call.
const DefaultCallTimeout = 30 * time.Second

// ErrorKind constants recorded on failed tool calls.
const (
	ErrorKindTimeout    = "timeout"
	ErrorKindUnknown    = "unknown_tool"
	ErrorKindValidation = "validation"
	ErrorKindPanic      = "panic"
	ErrorKindExecution  = "execution"
)

// Record tracks one tool invocation and its outcome.
type Record struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Output    Output
	ErrorKind string
	Duration  time.Duration
}

// Executor runs a single tool call at a time with a per-call timeout and
// panic recovery. Failures never crash the loop: every expected failure
// mode is encoded in the Record so the model can self-correct.
type Executor struct {
	registry    *Registry
	callTimeout time.Duration
}

// NewExecutor creates an Executor over the given registry.
// A non-positive timeout falls back to DefaultCallTimeout.
func NewExecutor(registry *Registry, callTimeout time.Duration) *Executor {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Executor{registry: registry, callTimeout: callTimeout}
}

// Execute runs one tool call. An unknown tool name or malformed arguments
// produce a validation-failure Record rather than an error, so the loop
// can feed the failure back to the model as information.
func (e *Executor) Execute(ctx context.Context, call provider.ToolCall) (record Record) {
	record.ID = call.ID
	record.Name = call.Name
	record.Arguments = call.Arguments

	start := time.Now()
	defer func() {
		record.Duration = time.Since(start)
		if r := recover(); r != nil {
			record.ErrorKind = ErrorKindPanic
			record.Output = Output{
				Content: fmt.Sprintf("panic: %v", r),
				IsError: true,
			}
		}
	}()

	t, err := e.registry.Get(call.Name)
	if err != nil {
		record.ErrorKind = ErrorKindUnknown
		record.Output = Errorf("unknown tool %q; available tools: %v", call.Name, e.registry.Names())
		return record
	}

	if err := validateArgs(call.Arguments); err != nil {
		record.ErrorKind = ErrorKindValidation
		record.Output = Errorf("invalid arguments for %q: %v", call.Name, err)
		return record
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	out, err := t.Execute(callCtx, call.Arguments)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			record.ErrorKind = ErrorKindTimeout
			record.Output = Errorf("tool %q timed out after %s", call.Name, e.callTimeout)
			return record
		}
		record.ErrorKind = ErrorKindExecution
		record.Output = Output{Content: err.Error(), IsError: true}
		return record
	}

	if out.IsError && record.ErrorKind == "" {
		record.ErrorKind = ErrorKindExecution
	}
	record.Output = out
	return record
}

// validateArgs requires arguments to be absent or a JSON object.
func validateArgs(args json.RawMessage) error {
	if len(args) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		return ErrInvalidArguments
	}
	return nil
}

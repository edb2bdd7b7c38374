// Package provider defines the interface for communicating with a
// language-model service and the error taxonomy used to classify its
// failures as retryable or fatal.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in sub-packages (e.g. provider/anthropic).
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing from the gateway health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

package agent

import (
	"github.com/rfontaine/sundog/internal/backoff"
	"github.com/rfontaine/sundog/internal/budget"
	"github.com/rfontaine/sundog/internal/conversation"
)

// defaultPrimer is the system prompt installed as the first turn of every
// job. It frames the model as a telemetry analyst and constrains it to
// the registered tools.
const defaultPrimer = `You are sundog, an analyst for photovoltaic and sensor telemetry.
Answer the user's question about their monitored systems using the available tools.
Resolve relative date expressions with current_time before fetching data.
Fetch only the ranges you need. When a tool reports no data or a failure,
adjust your approach or say so plainly. When you have enough information,
answer concisely with concrete numbers and units.`

// Config controls one engine instance. The zero value is usable.
type Config struct {
	// MaxIterations caps tool-invocation rounds per job.
	MaxIterations int

	// MaxLogBytes is the serialized conversation size ceiling.
	MaxLogBytes int

	// MaxTokens is passed through to the provider per completion.
	MaxTokens int

	// Retry is the backoff policy applied to transient model failures.
	Retry backoff.Policy

	// Primer overrides the default system prompt.
	Primer string
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = budget.DefaultMaxIterations
	}
	if c.MaxLogBytes <= 0 {
		c.MaxLogBytes = conversation.DefaultMaxBytes
	}
	if c.Primer == "" {
		c.Primer = defaultPrimer
	}
	return c
}

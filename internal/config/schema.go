// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for sundog.
package config

import (
	"time"

	"github.com/rfontaine/sundog/internal/gateway"
	"github.com/rfontaine/sundog/internal/provider/anthropic"
	"github.com/rfontaine/sundog/internal/trace"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Server holds the HTTP gateway settings.
	Server gateway.Config `yaml:"server"`

	// Store holds checkpoint persistence settings.
	Store StoreConfig `yaml:"store"`

	// Provider holds the model client settings.
	Provider anthropic.Config `yaml:"provider"`

	// Agent holds the loop settings.
	Agent AgentConfig `yaml:"agent"`

	// Collaborators holds the data-service endpoints the tools call.
	Collaborators CollaboratorsConfig `yaml:"collaborators"`

	// Retention controls terminal checkpoint cleanup.
	Retention RetentionConfig `yaml:"retention"`

	// Telemetry holds trace exporting settings.
	Telemetry trace.Config `yaml:"telemetry"`

	// Logging controls log output.
	Logging LogConfig `yaml:"logging"`
}

// StoreConfig holds checkpoint persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps checkpoints
	// in process memory (testing only; restarts lose all jobs).
	Path string `yaml:"path"`
}

// AgentConfig holds loop-level settings.
type AgentConfig struct {
	// MaxIterations caps tool-invocation rounds per job.
	MaxIterations int `yaml:"max_iterations"`

	// MaxLogBytes is the serialized conversation size ceiling.
	MaxLogBytes int `yaml:"max_log_bytes"`

	// SyncTimeout is the wall-clock budget for a sync leg.
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	// ResumeTimeout bounds a resumed leg. Zero reuses SyncTimeout.
	ResumeTimeout time.Duration `yaml:"resume_timeout"`

	// ToolTimeout bounds a single tool call.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// Retry shapes the backoff applied to transient upstream failures.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig shapes the shared backoff policy.
type RetryConfig struct {
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// CollaboratorsConfig holds the data-service endpoints.
type CollaboratorsConfig struct {
	// BaseURL is the root of the records/weather/estimate HTTP API.
	BaseURL string `yaml:"base_url"`
}

// RetentionConfig controls the terminal-checkpoint sweeper.
type RetentionConfig struct {
	// MaxAge is how long terminal checkpoints are kept.
	MaxAge time.Duration `yaml:"max_age"`

	// Schedule is the cron expression for the sweep.
	Schedule string `yaml:"schedule"`
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

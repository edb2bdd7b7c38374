package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validate checks the structural validity of a Config. All problems are
// reported at once rather than one per run.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Server.Bind != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.Server.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: server.bind %q is not a valid address", cfg.Server.Bind))
		}
	}

	if cfg.Store.Path == "" {
		errs = append(errs, errors.New("config: store.path is required"))
	}

	if cfg.Provider.APIKey == "" {
		errs = append(errs, errors.New("config: provider.api_key is required"))
	}

	if cfg.Collaborators.BaseURL == "" {
		errs = append(errs, errors.New("config: collaborators.base_url is required"))
	} else if u, err := url.Parse(cfg.Collaborators.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: collaborators.base_url %q is not an absolute URL", cfg.Collaborators.BaseURL))
	}

	if cfg.Agent.MaxIterations < 0 {
		errs = append(errs, errors.New("config: agent.max_iterations must not be negative"))
	}
	if cfg.Agent.SyncTimeout < 0 {
		errs = append(errs, errors.New("config: agent.sync_timeout must not be negative"))
	}

	if cfg.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("config: retention.schedule: %v", err))
		}
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: logging.level %q (expected debug, info, warn, or error)", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format %q (expected text or json)", cfg.Logging.Format))
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}

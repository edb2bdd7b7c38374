package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
version: "1"
server:
  bind: "127.0.0.1:8600"
  bearer_token: "${SUNDOG_TOKEN:-dev-token}"
store:
  path: "/tmp/sundog.db"
provider:
  api_key: "${SUNDOG_API_KEY}"
  model: "claude-sonnet-4-5-20250929"
agent:
  max_iterations: 8
  sync_timeout: 20s
collaborators:
  base_url: "http://localhost:9200"
retention:
  max_age: 48h
  schedule: "17 * * * *"
logging:
  level: info
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SUNDOG_API_KEY", "sk-test-123")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Provider.APIKey != "sk-test-123" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	// Unset variable with a default falls back.
	if cfg.Server.BearerToken != "dev-token" {
		t.Errorf("bearer token = %q", cfg.Server.BearerToken)
	}
	if cfg.Agent.MaxIterations != 8 || cfg.Agent.SyncTimeout != 20*time.Second {
		t.Errorf("agent config = %+v", cfg.Agent)
	}
	if cfg.Retention.MaxAge != 48*time.Hour {
		t.Errorf("retention = %+v", cfg.Retention)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	os.Unsetenv("SUNDOG_MISSING_VAR")

	_, err := Load(writeConfig(t, "version: \"1\"\nstore:\n  path: ${SUNDOG_MISSING_VAR}\n"))
	if err == nil || !strings.Contains(err.Error(), "SUNDOG_MISSING_VAR") {
		t.Errorf("expected unresolved variable error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("SUNDOG_API_KEY", "sk-test-123")

	base, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(base); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version"},
		{"wrong version", func(c *Config) { c.Version = "2" }, "unsupported version"},
		{"bad bind", func(c *Config) { c.Server.Bind = "nope:nope:nope" }, "server.bind"},
		{"missing store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"missing api key", func(c *Config) { c.Provider.APIKey = "" }, "api_key"},
		{"missing collaborators", func(c *Config) { c.Collaborators.BaseURL = "" }, "base_url"},
		{"relative collaborators", func(c *Config) { c.Collaborators.BaseURL = "localhost" }, "absolute URL"},
		{"negative iterations", func(c *Config) { c.Agent.MaxIterations = -1 }, "max_iterations"},
		{"bad schedule", func(c *Config) { c.Retention.Schedule = "not-cron" }, "schedule"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "telemetry.endpoint"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			err := Validate(&cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

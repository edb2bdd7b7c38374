// Package anthropic bridges sundog to the Anthropic Messages API for
// language-model completions.
package anthropic

import (
	"log/slog"
	"os"
	"time"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rfontaine/sundog/internal/provider"
)

// defaultModel is the model used when none is configured.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultTimeout bounds the initial connection phase of each request.
const defaultTimeout = 60 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// defaults fills in zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Interface guards.
var (
	_ provider.Provider      = (*Client)(nil)
	_ provider.HealthChecker = (*Client)(nil)
)

// Client implements provider.Provider using the Anthropic Messages API.
type Client struct {
	config Config
	client sdkanthropic.Client
	logger *slog.Logger
}

// New creates a Client. The API key falls back to ANTHROPIC_API_KEY when
// the config leaves it empty.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()

	apiKey := cfg.APIKey
	if apiKey == "" {
		if envKey, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
			apiKey = envKey
		}
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	// SDK-level retries are disabled: the loop owns the backoff policy.
	opts = append(opts, option.WithMaxRetries(0))

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: cfg,
		client: sdkanthropic.NewClient(opts...),
		logger: logger,
	}
}

// ModelName implements provider.Provider.
func (c *Client) ModelName() string {
	return c.config.Model
}

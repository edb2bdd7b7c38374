package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rfontaine/sundog/internal/backoff"
)

// defaultHTTPTimeout bounds a single collaborator request.
const defaultHTTPTimeout = 15 * time.Second

// Client talks JSON over HTTP to the document-store query layer and the
// weather/solar estimation services. It implements Source, WeatherService,
// and SolarEstimator.
type Client struct {
	baseURL string
	http    *http.Client
	retry   backoff.Policy
	logger  *slog.Logger
}

// Interface guards.
var (
	_ Source         = (*Client)(nil)
	_ WeatherService = (*Client)(nil)
	_ SolarEstimator = (*Client)(nil)
)

// ClientOption configures optional Client behavior.
type ClientOption func(*Client)

// WithLogger injects a structured logger into the Client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(p backoff.Policy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a collaborator client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		retry:   backoff.Policy{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// FetchRecords implements Source.
func (c *Client) FetchRecords(ctx context.Context, systemID string, r TimeRange) ([]Record, error) {
	q := url.Values{
		"system_id": {systemID},
		"from":      {r.From.UTC().Format(time.RFC3339)},
		"to":        {r.To.UTC().Format(time.RFC3339)},
	}

	var out []Record
	if err := c.getJSON(ctx, "/api/records", q, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("system %s %s..%s: %w",
			systemID, r.From.Format(time.RFC3339), r.To.Format(time.RFC3339), ErrNoData)
	}
	return out, nil
}

// ListSystems implements Source.
func (c *Client) ListSystems(ctx context.Context) ([]SystemInfo, error) {
	var out []SystemInfo
	if err := c.getJSON(ctx, "/api/systems", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History implements WeatherService.
func (c *Client) History(ctx context.Context, lat, lon float64, r TimeRange) ([]WeatherSample, error) {
	q := url.Values{
		"lat":  {fmt.Sprintf("%.5f", lat)},
		"lon":  {fmt.Sprintf("%.5f", lon)},
		"from": {r.From.UTC().Format(time.RFC3339)},
		"to":   {r.To.UTC().Format(time.RFC3339)},
	}
	var out []WeatherSample
	if err := c.getJSON(ctx, "/api/weather/history", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Estimate implements SolarEstimator.
func (c *Client) Estimate(ctx context.Context, systemID string, r TimeRange) ([]EstimateSample, error) {
	q := url.Values{
		"system_id": {systemID},
		"from":      {r.From.UTC().Format(time.RFC3339)},
		"to":        {r.To.UTC().Format(time.RFC3339)},
	}
	var out []EstimateSample
	if err := c.getJSON(ctx, "/api/solar/estimate", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getJSON performs a GET with the shared retry policy and decodes the
// JSON body into out. HTTP 404 maps to ErrNoData, 5xx to ErrUpstream.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	return backoff.Retry(ctx, c.retry, isTransient, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("records: build request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("records: %s: %w: %v", path, ErrUpstream, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("records: %s: %w", path, ErrNoData)
		case resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("records: %s: HTTP %d: %w: %s", path, resp.StatusCode, ErrUpstream, body)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("records: %s: HTTP %d: %s", path, resp.StatusCode, body)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("records: %s: decode: %w", path, err)
		}
		return nil
	})
}

// isTransient reports whether a collaborator error is worth retrying.
// Context errors are permanent; only upstream availability errors retry.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrUpstream)
}

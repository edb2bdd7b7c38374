// Package gateway exposes the analysis engine over HTTP: starting and
// resuming jobs, polling, cancellation, a websocket event stream, plus
// health and metrics endpoints.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rfontaine/sundog/internal/provider"
	"github.com/rfontaine/sundog/internal/router"
)

// Gateway is the HTTP front of the daemon.
type Gateway struct {
	config   Config
	router   *router.Router
	provider provider.Provider
	hub      *EventHub
	metrics  *Metrics
	logger   *slog.Logger

	server    *http.Server
	startedAt time.Time
}

// Option configures optional Gateway behavior.
type Option func(*Gateway)

// WithLogger injects a structured logger into the Gateway.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway. The hub and metrics must be the same instances
// registered as engine sinks, or the event stream and counters stay empty.
func New(cfg Config, r *router.Router, p provider.Provider, hub *EventHub, metrics *Metrics, opts ...Option) *Gateway {
	cfg.defaults()
	g := &Gateway{
		config:   cfg,
		router:   r,
		provider: p,
		hub:      hub,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(g.metrics.Registry(), promhttp.HandlerOpts{}))

	// Analysis endpoints require bearer auth and are not mounted without a token.
	if g.config.BearerToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.BearerToken))
			r.Route("/v1/analyses", func(r chi.Router) {
				r.Post("/", g.handleStart())
				r.Get("/{id}", g.handlePoll())
				r.Delete("/{id}", g.handleCancel())
				r.Get("/{id}/events", g.handleEvents())
			})
		})
	} else {
		g.logger.Warn("no bearer token configured, analysis endpoints disabled")
	}

	return r
}

// Start begins serving. It returns once the listener is bound; serving
// continues on a background goroutine.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()
	return g.server.Shutdown(shutdownCtx)
}

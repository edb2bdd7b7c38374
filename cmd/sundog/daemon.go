package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rfontaine/sundog/internal/agent"
	"github.com/rfontaine/sundog/internal/backoff"
	"github.com/rfontaine/sundog/internal/checkpoint"
	"github.com/rfontaine/sundog/internal/config"
	"github.com/rfontaine/sundog/internal/cron"
	"github.com/rfontaine/sundog/internal/gateway"
	"github.com/rfontaine/sundog/internal/provider/anthropic"
	"github.com/rfontaine/sundog/internal/records"
	"github.com/rfontaine/sundog/internal/router"
	"github.com/rfontaine/sundog/internal/runner"
	"github.com/rfontaine/sundog/internal/tool"
	"github.com/rfontaine/sundog/internal/tools"
	"github.com/rfontaine/sundog/internal/trace"
)

// drainTimeout bounds the shutdown drain of in-flight jobs.
const drainTimeout = 30 * time.Second

// runDaemon wires all components from the config and blocks until a
// termination signal arrives.
func runDaemon(cfg *config.Config) error {
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	traceShutdown, err := trace.Init(ctx, "sundog", version, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(shutdownCtx); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	store, err := checkpoint.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer func() { _ = store.Close() }()

	llm := anthropic.New(cfg.Provider, logger)

	retry := backoff.Policy{
		Initial:     cfg.Agent.Retry.Initial,
		Max:         cfg.Agent.Retry.Max,
		MaxAttempts: cfg.Agent.Retry.MaxAttempts,
	}

	collab := records.NewClient(cfg.Collaborators.BaseURL,
		records.WithLogger(logger),
		records.WithRetryPolicy(retry),
	)

	registry := tool.NewRegistry()
	if err := tools.RegisterAll(registry, collab, collab, collab); err != nil {
		return err
	}
	executor := tool.NewExecutor(registry, cfg.Agent.ToolTimeout)

	hub := gateway.NewEventHub()
	metrics := gateway.NewMetrics()

	engine := agent.NewEngine(llm, executor, registry, store, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		MaxLogBytes:   cfg.Agent.MaxLogBytes,
		MaxTokens:     cfg.Provider.MaxTokens,
		Retry:         retry,
	},
		agent.WithLogger(logger),
		agent.WithSink(agent.MultiSink{hub, metrics}),
	)

	run := runner.New(engine, runner.WithLogger(logger))
	rtr := router.New(engine, run, store, router.Config{
		SyncTimeout:   cfg.Agent.SyncTimeout,
		ResumeTimeout: cfg.Agent.ResumeTimeout,
	}, router.WithLogger(logger))

	scheduler := cron.NewScheduler(logger)
	sweeper := checkpoint.NewRetentionJob(store, cfg.Retention.MaxAge, cfg.Retention.Schedule, logger)
	if err := scheduler.Register(sweeper); err != nil {
		return err
	}
	scheduler.Start()

	gw := gateway.New(cfg.Server, rtr, llm, hub, metrics, gateway.WithLogger(logger))
	if err := gw.Start(ctx); err != nil {
		return err
	}

	logger.Info("sundog started",
		"version", version,
		"model", llm.ModelName(),
		"store", cfg.Store.Path,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown failed", "error", err)
	}
	if err := run.Shutdown(shutdownCtx); err != nil {
		logger.Warn("job drain incomplete", "error", err)
	}
	scheduler.Stop()

	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

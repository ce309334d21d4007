package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/hazz-dev/healthgate/internal/alert"
	"github.com/hazz-dev/healthgate/internal/checker"
	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/dashboard"
	"github.com/hazz-dev/healthgate/internal/healthcheck"
	"github.com/hazz-dev/healthgate/internal/metrics"
	"github.com/hazz-dev/healthgate/internal/server"
	"github.com/hazz-dev/healthgate/internal/storage"
	"github.com/hazz-dev/healthgate/internal/task"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the health-check gate",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("config loaded", "checks", len(cfg.Checks))

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	registry := task.NewRegistry(logger)
	for _, c := range cfg.Checks {
		def, err := checker.Definition(c)
		if err != nil {
			return fmt.Errorf("building check %q: %w", c.Name, err)
		}
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("registering check %q: %w", c.Name, err)
		}
	}

	patterns, err := cfg.HealthCheck.CompileChecksEnabled()
	if err != nil {
		return err
	}

	recorder, err := metrics.NewRecorder(otel.Meter("healthgate"))
	if err != nil {
		return fmt.Errorf("creating metrics recorder: %w", err)
	}

	opts := healthcheck.Options{
		ScheduleInterval: cfg.HealthCheck.ScheduleInterval.Duration,
		RetryDelay:       cfg.HealthCheck.RetriesDelay.Duration,
		MaxRetries:       cfg.HealthCheck.MaxRetries,
		ChecksEnabled:    patterns,
		Logger:           logger,
		Recorder:         db,
		Observer:         recorder,
	}
	if cfg.Alerts.Webhook.URL != "" {
		alerter := alert.New(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Cooldown.Duration, logger)
		opts.OnTransition = alerter.Notify
	}

	hc := healthcheck.New(registry, opts)
	defer hc.Stop()

	apiServer := server.New(hc, cfg, db, logger)

	// The status page answers 503 until the startup gate passes.
	var ready atomic.Bool
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Router())
	mux.Handle("/", dashboard.Handler(ready.Load))

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	if cfg.HealthCheck.Enabled {
		// Blocks until the initial run passes, then schedules re-checks.
		if err := hc.Start(ctx); err != nil {
			return fmt.Errorf("health check gate: %w", err)
		}
	} else {
		logger.Warn("health check is disabled, skipping startup gate")
	}
	ready.Store(true)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	hc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// Package main is the arena background process. It consumes the job queue
// (score propagation, weekly resets, leaderboard rebuilds), runs the cron,
// bridges events from other services and serves metrics, health and the
// dead letter admin routes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/arena-engine/config"
	"github.com/alem-hub/arena-engine/internal/app"
	"github.com/alem-hub/arena-engine/internal/infrastructure/telemetry"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg.Observability).With(logger.Component("arena-worker"))
	defer func() { _ = log.Sync() }()
	log.Info("starting arena worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
		logger.Int("concurrency", cfg.Queue.Concurrency),
	)
	if cfg.Storage == config.StorageMemory {
		log.Warn("memory storage: this worker only sees jobs enqueued in its own process")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. TRACING
	// ─────────────────────────────────────────────────────────────────────────
	_, shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.App.Name + "-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    string(cfg.App.Environment),
		Endpoint:       cfg.Observability.TracingEndpoint,
		Insecure:       cfg.Observability.TracingInsecure,
		SampleRatio:    cfg.Observability.TracingSample,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracing shutdown failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. COMPONENTS
	// ─────────────────────────────────────────────────────────────────────────
	c, err := app.New(ctx, cfg, app.Options{Logger: log})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.RequestRebuild(ctx); err != nil {
		log.Warn("startup leaderboard rebuild not enqueued", logger.Err(err))
	}

	worker := c.NewWorker()
	cron, err := c.NewScheduler()
	if err != nil {
		return err
	}
	bridge, err := c.NewBridge()
	if err != nil {
		return fmt.Errorf("failed to create event bridge: %w", err)
	}

	metricsSrv := &http.Server{
		Addr:              cfg.Observability.MetricsAddr,
		Handler:           c.OpsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return cron.Run(gctx) })
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}
	g.Go(func() error {
		log.Info("serving ops endpoints", logger.String("address", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.Info("arena worker is running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

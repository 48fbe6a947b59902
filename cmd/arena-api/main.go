// Package main is the arena API process: session submission, rankings and
// player status over HTTP.
//
// With ARENA_STORAGE=memory the process also runs the job worker and the
// weekly reset scheduler, since nothing else can see its queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/arena-engine/config"
	"github.com/alem-hub/arena-engine/internal/app"
	"github.com/alem-hub/arena-engine/internal/infrastructure/scheduler"
	"github.com/alem-hub/arena-engine/internal/infrastructure/telemetry"
	httpapi "github.com/alem-hub/arena-engine/internal/interface/http"
	"github.com/alem-hub/arena-engine/internal/interface/http/handlers"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// devJWTSecret signs tokens in development when AUTH_JWT_SECRET is unset.
const devJWTSecret = "arena-development-secret"

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

	log := app.NewLogger(cfg.Observability).With(logger.Component("arena-api"))
	defer func() { _ = log.Sync() }()
	log.Info("starting arena API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("storage", string(cfg.Storage)),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. TRACING
	// ─────────────────────────────────────────────────────────────────────────
	_, shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.App.Name + "-api",
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

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		log.Warn("AUTH_JWT_SECRET is not set, using the development secret")
		secret = devJWTSecret
	}
	auth, err := handlers.NewJWTAuth(secret, httpapi.AuthOptions(cfg.Auth.Issuer)...)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	srv, err := httpapi.NewServer(httpapi.Config{
		Addr:             cfg.HTTP.Addr,
		ReadTimeout:      cfg.HTTP.ReadTimeout,
		WriteTimeout:     cfg.HTTP.WriteTimeout,
		IdleTimeout:      cfg.HTTP.IdleTimeout,
		MaxBodyBytes:     cfg.HTTP.MaxBodyBytes,
		APIRateLimit:     cfg.RateLimit.APILimit,
		APIRateWindow:    cfg.RateLimit.APIWindow,
		SubmitRateWindow: cfg.RateLimit.SubmitWindow,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		Version:          cfg.App.Version,
	}, httpapi.Dependencies{
		SubmitSession: c.SubmitSession,
		GetRanking:    c.GetRanking,
		GetStatus:     c.GetStatus,
		Auth:          auth,
		RateLimiter:   c.Limiter,
		Health:        c.Health,
		Metrics:       c.Metrics.Handler(),
		Recorder:      c.Metrics,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	bridge, err := c.NewBridge()
	if err != nil {
		return fmt.Errorf("failed to create event bridge: %w", err)
	}

	embedded := cfg.Storage == config.StorageMemory
	var cron *scheduler.CronScheduler
	if embedded {
		if cron, err = c.NewScheduler(); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}
	if embedded {
		log.Info("running embedded worker and scheduler")
		worker := c.NewWorker()
		g.Go(func() error { return worker.Run(gctx) })
		g.Go(func() error { return cron.Run(gctx) })
	}

	log.Info("arena API is running", logger.String("address", srv.Address()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// Package main provides the Gateway application entry point.
// The Gateway accepts client job submissions over HTTP, deduplicates them
// by content fingerprint, persists job_requests in Postgres, and forwards
// accepted jobs to the Proving Service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fossil-proof/proof-pipeline/internal/adapter/httpserver"
	"github.com/fossil-proof/proof-pipeline/internal/adapter/observability"
	"github.com/fossil-proof/proof-pipeline/internal/adapter/repo/postgres"
	"github.com/fossil-proof/proof-pipeline/internal/app"
	"github.com/fossil-proof/proof-pipeline/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.NewJobRequestRepo(pool)

	provingServiceURL := os.Getenv("PROVING_SERVICE_URL")
	if provingServiceURL == "" {
		provingServiceURL = "http://localhost:8081"
	}
	gatewaySrv := httpserver.NewGatewayServer(repo, provingServiceURL, &http.Client{Timeout: 10 * time.Second})

	dbCheck, queueCheck := app.BuildReadinessChecks(pool, alwaysHealthyQueue{})
	router := app.BuildGatewayRouter(cfg, gatewaySrv, dbCheck, queueCheck)

	cleanup := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
	go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)

	if sweeper := app.NewStuckJobSweeper(repo, cfg.StuckJobMaxAge, cfg.StuckJobSweepInterval); sweeper != nil {
		go sweeper.Run(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		slog.Info("gateway listening", slog.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway shutdown error", slog.Any("error", err))
	}
	slog.Info("gateway stopped")
}

// alwaysHealthyQueue satisfies app.QueueHealth for the Gateway, which does
// not hold a queue connection itself (it forwards to the Proving Service
// over HTTP); readiness for the queue is the Proving Service's concern.
type alwaysHealthyQueue struct{}

func (alwaysHealthyQueue) IsHealthy() bool { return true }

// Package main provides the Proving Service application entry point.
// The Proving Service is a thin HTTP router that translates the Gateway's
// forwarded job submission into a RequestProof queue message.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"log/slog"

	httpserver "github.com/fossil-proof/proof-pipeline/internal/adapter/httpserver"
	"github.com/fossil-proof/proof-pipeline/internal/adapter/observability"
	"github.com/fossil-proof/proof-pipeline/internal/app"
	"github.com/fossil-proof/proof-pipeline/internal/config"
	"github.com/fossil-proof/proof-pipeline/internal/domain"
	"github.com/fossil-proof/proof-pipeline/internal/queue/localqueue"
	"github.com/fossil-proof/proof-pipeline/internal/queue/sqs"
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

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		slog.Error("queue init failed", slog.Any("error", err))
		os.Exit(1)
	}

	srv := httpserver.NewProvingServiceServer(queue)

	_, queueCheck := app.BuildReadinessChecks(nil, queue.(app.QueueHealth))
	router := app.BuildProvingServiceRouter(cfg, srv, queueCheck)

	httpSrv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		slog.Info("proving service listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("proving service server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping proving service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("proving service shutdown error", slog.Any("error", err))
	}
	slog.Info("proving service stopped")
}

func buildQueue(ctx context.Context, cfg config.Config) (domain.Queue, error) {
	if cfg.QueueBackend == "local" {
		slog.Warn("using in-memory local queue backend; not durable across restarts")
		return localqueue.New(), nil
	}
	return sqs.New(ctx, cfg.QueueURL, cfg.AWSRegion, cfg.AWSEndpointURL)
}

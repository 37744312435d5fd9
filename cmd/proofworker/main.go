// Package main provides the proof-worker application entry point.
// The proof worker consumes RequestProof messages from the queue,
// coordinates concurrent proof generation with timeouts and a retry
// budget, and publishes ProofGenerated receipts.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fossil-proof/proof-pipeline/internal/adapter/observability"
	"github.com/fossil-proof/proof-pipeline/internal/config"
	"github.com/fossil-proof/proof-pipeline/internal/domain"
	"github.com/fossil-proof/proof-pipeline/internal/provider/disabled"
	"github.com/fossil-proof/proof-pipeline/internal/provider/mock"
	"github.com/fossil-proof/proof-pipeline/internal/provider/real"
	"github.com/fossil-proof/proof-pipeline/internal/queue/localqueue"
	"github.com/fossil-proof/proof-pipeline/internal/queue/sqs"
	"github.com/fossil-proof/proof-pipeline/internal/worker"
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
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("proof worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting proof worker", slog.String("env", cfg.AppEnv), slog.String("queue_backend", cfg.QueueBackend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		slog.Error("queue init failed", slog.Any("error", err))
		os.Exit(1)
	}

	provider := buildProvider(cfg)

	w := worker.New(queue, provider, worker.Config{
		ProofGenerationTimeout: cfg.ProofGenerationTimeout(),
		MaxFailures:            cfg.MaxFailures,
		MaxConcurrentTasks:     cfg.WorkerMaxConcurrentTasks,
		DrainTimeout:           cfg.WorkerShutdownDrainTimeout(),
	})

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping worker")
		w.Stop()
	}()

	if err := w.Run(ctx); err != nil {
		slog.Error("worker run exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("proof worker stopped")
}

func buildQueue(ctx context.Context, cfg config.Config) (domain.Queue, error) {
	if cfg.QueueBackend == "local" {
		slog.Warn("using in-memory local queue backend; not durable across restarts")
		return localqueue.New(), nil
	}
	return sqs.New(ctx, cfg.QueueURL, cfg.AWSRegion, cfg.AWSEndpointURL)
}

func buildProvider(cfg config.Config) domain.ProofProvider {
	if !cfg.ProvingEnabled {
		return disabled.New()
	}
	if cfg.IsDev() || cfg.IsTest() {
		return mock.New()
	}
	return real.New(nil)
}

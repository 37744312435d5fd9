// Package worker implements the proof worker's main loop: it polls the
// queue, parses and classifies each message, admits it into the in-flight
// set, and dispatches it to a per-task goroutine that owns proof generation,
// failure accounting, and acknowledgement. It ties together the queue
// contract, in-flight registry, failure accountant, task supervisor,
// proof provider, and result publisher: poll, hand each message to its own
// goroutine, and stop admitting new work via a cooperative termination flag.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fossil-proof/proof-pipeline/internal/adapter/observability"
	"github.com/fossil-proof/proof-pipeline/internal/domain"
	"github.com/fossil-proof/proof-pipeline/internal/failure"
	"github.com/fossil-proof/proof-pipeline/internal/inflight"
	"github.com/fossil-proof/proof-pipeline/internal/publisher"
	"github.com/fossil-proof/proof-pipeline/internal/supervisor"
)

// Sleep durations between poll iterations: backed off after a receive
// error, briefer when a poll simply came back empty.
const (
	receiveErrorSleep = 1 * time.Second
	emptyBatchSleep   = 500 * time.Millisecond
)

// Config parameterizes a Worker.
type Config struct {
	// ProofGenerationTimeout bounds every Generate call (default 300s).
	ProofGenerationTimeout time.Duration
	// MaxFailures is the retry budget before a message is forcibly acked.
	MaxFailures int
	// MaxConcurrentTasks bounds the Task Supervisor; 0 means unbounded.
	MaxConcurrentTasks int
	// DrainTimeout caps how long Run waits for in-flight tasks after the
	// termination flag is set; zero means wait indefinitely.
	DrainTimeout time.Duration
}

// DefaultConfig returns the standard tuning values for a production worker.
func DefaultConfig() Config {
	return Config{
		ProofGenerationTimeout: 300 * time.Second,
		MaxFailures:            3,
		MaxConcurrentTasks:     0,
		DrainTimeout:           10 * time.Second,
	}
}

// Worker is the proof-worker's job-processing engine.
type Worker struct {
	queue    domain.Queue
	provider domain.ProofProvider
	pub      *publisher.Publisher

	inflight   *inflight.Registry
	failures   *failure.Accountant
	supervisor *supervisor.Supervisor

	cfg Config

	terminate atomic.Bool
}

// New constructs a Worker wired to the given collaborators.
func New(queue domain.Queue, provider domain.ProofProvider, cfg Config) *Worker {
	if cfg.ProofGenerationTimeout <= 0 {
		cfg.ProofGenerationTimeout = 300 * time.Second
	}
	return &Worker{
		queue:      queue,
		provider:   provider,
		pub:        publisher.New(queue),
		inflight:   inflight.New(),
		failures:   failure.New(cfg.MaxFailures),
		supervisor: supervisor.New(cfg.ProofGenerationTimeout, cfg.MaxConcurrentTasks),
		cfg:        cfg,
	}
}

// Stop sets the cooperative termination flag. The poll loop observes it at
// the top of the next iteration and stops admitting new work.
func (w *Worker) Stop() {
	w.terminate.Store(true)
}

// Run executes the worker loop until Stop is called (or ctx is canceled),
// then drains outstanding tasks before returning. It returns only after
// the drain completes or its deadline expires.
func (w *Worker) Run(ctx context.Context) error {
	if w.provider.IsDisabled() {
		slog.Info("worker starting with proof provider disabled; all admitted messages will be acknowledged without generation")
	}

	for {
		if w.terminate.Load() || ctx.Err() != nil {
			break
		}

		msgs, err := w.queue.Receive(ctx)
		if err != nil {
			slog.Error("worker: receive failed", slog.Any("error", err))
			sleepOrDone(ctx, receiveErrorSleep)
			continue
		}
		if len(msgs) == 0 {
			sleepOrDone(ctx, emptyBatchSleep)
			continue
		}

		for _, msg := range msgs {
			w.handleMessage(ctx, msg)
		}
	}

	if w.cfg.DrainTimeout > 0 {
		if !w.supervisor.WaitWithDeadline(w.cfg.DrainTimeout) {
			slog.Warn("worker: drain timeout exceeded; returning with tasks still running",
				slog.Duration("drain_timeout", w.cfg.DrainTimeout))
			return nil
		}
	} else {
		w.supervisor.Wait()
	}
	return nil
}

// handleMessage parses and classifies a received message, admits it into
// the in-flight set, and dispatches it to the supervisor for processing.
func (w *Worker) handleMessage(ctx context.Context, msg domain.QueueMessage) {
	job, err := domain.ParseJob([]byte(msg.Body))
	if err != nil {
		slog.Warn("worker: malformed message, dropping", slog.Any("error", err))
		w.ackBestEffort(ctx, msg)
		return
	}

	if job.Kind != domain.KindRequestProof {
		slog.Warn("worker: non-RequestProof message on input queue, dropping",
			slog.String("job_id", jobIDOf(job)))
		w.ackBestEffort(ctx, msg)
		return
	}

	rp := job.RequestProof
	if !w.inflight.TryInsert(rp.JobID) {
		// Another task already owns this job_id; skip without acking —
		// duplicate redelivery resolves naturally once that task acks.
		return
	}
	observability.InFlightJobs.Set(float64(w.inflight.Len()))

	if w.provider.IsDisabled() {
		w.ackBestEffort(ctx, msg)
		w.inflight.Remove(rp.JobID)
		return
	}

	w.supervisor.Spawn(ctx, rp.JobID, func(taskCtx context.Context) error {
		return w.processJob(taskCtx, msg, rp)
	})
}

// processJob generates the proof for a single job, records the outcome
// against the failure accountant, and acks or leaves the message in place
// depending on whether generation succeeded, failed, or exhausted retries.
func (w *Worker) processJob(ctx context.Context, msg domain.QueueMessage, rp *domain.RequestProof) error {
	defer func() {
		w.inflight.Remove(rp.JobID)
		observability.InFlightJobs.Set(float64(w.inflight.Len()))
	}()

	n0 := w.failures.Snapshot(rp.JobID)
	forceAck := w.failures.ShouldForceAck(n0)

	ranges := domain.DeriveRanges(rp)
	start := time.Now()
	receipt, genErr := w.provider.Generate(ctx, ranges)
	dur := time.Since(start)

	if genErr == nil {
		observability.ObserveProofGeneration("success", dur)
		if pubErr := w.pub.Publish(ctx, rp.JobID, normalizeReceipt(receipt)); pubErr != nil {
			slog.Error("worker: publish failed, leaving input unacked",
				slog.String("job_id", rp.JobID), slog.Any("error", pubErr))
			return pubErr
		}
		if err := w.queue.Delete(ctx, msg); err != nil {
			slog.Error("worker: delete after successful publish failed",
				slog.String("job_id", rp.JobID), slog.Any("error", err))
			return err
		}
		w.failures.Clear(rp.JobID)
		observability.FailureCountHistogram.Observe(float64(n0))
		return nil
	}

	outcome := "error"
	if ctx.Err() != nil {
		outcome = "timeout"
	}
	observability.ObserveProofGeneration(outcome, dur)

	n := w.failures.RecordFailure(rp.JobID)
	slog.Warn("worker: proof generation failed",
		slog.String("job_id", rp.JobID), slog.Int("failure_count", n), slog.Any("error", genErr))

	if forceAck {
		if err := w.queue.Delete(ctx, msg); err != nil {
			slog.Error("worker: forcible ack delete failed",
				slog.String("job_id", rp.JobID), slog.Any("error", err))
			return err
		}
		w.failures.Clear(rp.JobID)
		observability.RecordForcedAck(n)
	}
	return genErr
}

func (w *Worker) ackBestEffort(ctx context.Context, msg domain.QueueMessage) {
	if err := w.queue.Delete(ctx, msg); err != nil {
		slog.Error("worker: ack delete failed", slog.Any("error", err))
	}
}

func jobIDOf(job domain.Job) string {
	switch job.Kind {
	case domain.KindRequestProof:
		return job.RequestProof.JobID
	case domain.KindProofGenerated:
		return job.ProofGenerated.JobID
	default:
		return ""
	}
}

func normalizeReceipt(r json.RawMessage) json.RawMessage {
	if len(r) == 0 {
		return json.RawMessage("null")
	}
	return r
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

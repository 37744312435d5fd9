package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// StuckJobSweeper periodically marks job_requests rows that have sat in
// "submitted" or "queued" too long as failed. The worker's own in-flight
// registry and failure accountant handle liveness once a job reaches the
// queue; this sweeper covers the gap before that point, e.g. when the
// Gateway crashed after writing the row but before successfully handing
// the job to the Proving Service.
type StuckJobSweeper struct {
	jobRequests      domain.JobRequestRepository
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStuckJobSweeper constructs a sweeper over the given repository.
func NewStuckJobSweeper(jobRequests domain.JobRequestRepository, maxProcessingAge, interval time.Duration) *StuckJobSweeper {
	if jobRequests == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 3 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{
		jobRequests:      jobRequests,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

// Run sweeps once immediately, then on every tick, until ctx is canceled.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobRequests == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("job_requests.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxProcessingAge)
	const pageSize = 100
	span.SetAttributes(
		attribute.Int("job_requests.page_size", pageSize),
		attribute.Float64("job_requests.max_age_seconds", s.maxProcessingAge.Seconds()),
	)

	totalChecked := 0
	totalMarkedFailed := 0

	for _, status := range []domain.JobRequestStatus{domain.JobRequestSubmitted, domain.JobRequestQueued} {
		checked, markedFailed := s.sweepStatus(ctx, status, cutoff, pageSize)
		totalChecked += checked
		totalMarkedFailed += markedFailed
	}

	span.SetAttributes(
		attribute.Int("job_requests.total_checked", totalChecked),
		attribute.Int("job_requests.total_marked_failed", totalMarkedFailed),
	)
}

func (s *StuckJobSweeper) sweepStatus(ctx context.Context, status domain.JobRequestStatus, cutoff time.Time, pageSize int) (checked, markedFailed int) {
	tracer := otel.Tracer("job_requests.sweeper")

	for offset := 0; ; offset += pageSize {
		pageCtx, pageSpan := tracer.Start(ctx, "StuckJobSweeper.sweepPage")
		pageSpan.SetAttributes(
			attribute.Int("job_requests.offset", offset),
			attribute.String("job_requests.status", string(status)),
		)

		rows, err := s.jobRequests.ListWithFilters(pageCtx, offset, pageSize, string(status))
		if err != nil {
			pageSpan.RecordError(err)
			pageSpan.End()
			slog.Error("stuck job sweep failed to list job_requests", slog.Any("error", err))
			return checked, markedFailed
		}
		checked += len(rows)
		if len(rows) == 0 {
			pageSpan.End()
			break
		}

		for _, jr := range rows {
			if jr.UpdatedAt.Before(cutoff) {
				jobCtx, jobSpan := tracer.Start(pageCtx, "StuckJobSweeper.markFailed")
				jobSpan.SetAttributes(
					attribute.String("job_request.id", jr.ID),
					attribute.String("job_request.status", string(jr.Status)),
				)
				msg := fmt.Sprintf("job_request remained %s for longer than %v; marking as failed by sweeper", status, s.maxProcessingAge)
				if err := s.jobRequests.UpdateStatus(jobCtx, jr.ID, domain.JobRequestFailed, &msg); err != nil {
					jobSpan.RecordError(err)
					slog.Error("stuck job sweep failed to update job_request status",
						slog.String("job_request_id", jr.ID), slog.Any("error", err))
				} else {
					markedFailed++
				}
				jobSpan.End()
			}
		}

		pageSpan.End()

		if len(rows) < pageSize {
			break
		}
	}

	return checked, markedFailed
}

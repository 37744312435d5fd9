// Package publisher serialises a ProofGenerated job and enqueues it onto
// the output queue.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

// Publisher enqueues ProofGenerated receipts onto the output queue.
type Publisher struct {
	queue domain.Queue
}

// New returns a Publisher that sends through queue.
func New(queue domain.Queue) *Publisher {
	return &Publisher{queue: queue}
}

// Publish serialises ProofGenerated{job_id, receipt} and sends it. On
// success the caller (the worker) deletes the originating RequestProof
// message; on error the caller must leave it unacked so the queue's
// visibility timeout redelivers it under the normal failure-accounting
// policy.
func (p *Publisher) Publish(ctx context.Context, jobID string, receipt json.RawMessage) error {
	job := domain.Job{
		Kind:           domain.KindProofGenerated,
		ProofGenerated: &domain.ProofGenerated{JobID: jobID, Receipt: receipt},
	}
	body, err := job.Serialize()
	if err != nil {
		return fmt.Errorf("publisher: serialize ProofGenerated for %s: %w", jobID, err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("publisher: send ProofGenerated for %s: %w", jobID, err)
	}
	return nil
}

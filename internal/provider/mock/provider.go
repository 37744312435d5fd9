// Package mock implements a ProofProvider suitable for tests: it returns a
// synthetic receipt after a configurable delay, optionally following a
// scripted success/failure sequence. Grounded on MockProofProvider in the
// message handler's test module.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

// Provider is a scriptable ProofProvider for tests.
type Provider struct {
	mu sync.Mutex

	// delay is applied to every call before returning, simulating prover
	// latency; used to exercise the supervisor's timeout handling.
	delay time.Duration

	// outcomes is consumed in order, one entry per call; once exhausted,
	// calls succeed. A nil entry means success.
	outcomes []error
	calls    int
}

// New returns a Provider that always succeeds immediately.
func New() *Provider {
	return &Provider{}
}

// WithDelay sets a fixed delay applied before every Generate call returns.
func (p *Provider) WithDelay(d time.Duration) *Provider {
	p.delay = d
	return p
}

// WithOutcomes scripts a sequence of per-call outcomes; nil means success,
// non-nil is returned as the call's error. Calls beyond the sequence
// succeed.
func (p *Provider) WithOutcomes(outcomes ...error) *Provider {
	p.outcomes = outcomes
	return p
}

// Calls returns the number of Generate invocations observed so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Generate implements domain.ProofProvider.
func (p *Provider) Generate(ctx context.Context, ranges domain.ProofTimestampRanges) (json.RawMessage, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	var outcome error
	if idx < len(p.outcomes) {
		outcome = p.outcomes[idx]
	}
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if outcome != nil {
		return nil, outcome
	}

	overall := ranges.OverallRange()
	receipt, err := json.Marshal(map[string]any{
		"synthetic":     true,
		"range_start":   overall.Start,
		"range_end":     overall.End,
		"twap_start":    ranges.TWAP.Start,
		"twap_end":      ranges.TWAP.End,
		"reserve_start": ranges.ReservePrice.Start,
		"reserve_end":   ranges.ReservePrice.End,
		"return_start":  ranges.MaxReturn.Start,
		"return_end":    ranges.MaxReturn.End,
	})
	if err != nil {
		return nil, fmt.Errorf("mock provider: marshal receipt: %w", err)
	}
	return receipt, nil
}

// IsDisabled implements domain.ProofProvider; the mock provider is never
// disabled.
func (p *Provider) IsDisabled() bool { return false }

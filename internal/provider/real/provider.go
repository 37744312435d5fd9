// Package real composes the opaque real proof prover: hashing, TWAP-bound,
// max-return, and reserve-price sub-proof generation over on-chain/database
// inputs fetched internally from the ranges. The sub-proof composition
// itself is left to an injected backend; this type exists so a production
// deployment has a concrete, pluggable slot to wire a real prover client
// into, selected by PROVING_ENABLED at startup alongside the mock and
// disabled variants.
package real

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

// Prover abstracts the actual zero-knowledge circuit composition backend.
// A concrete implementation (RPC client, in-process prover library) is
// injected at startup; this package only owns the ProofProvider adapter
// around it.
type Prover interface {
	Prove(ctx context.Context, ranges domain.ProofTimestampRanges) (json.RawMessage, error)
}

// Provider adapts a Prover to domain.ProofProvider.
type Provider struct {
	prover Prover
}

// New returns a Provider delegating to prover.
func New(prover Prover) *Provider {
	return &Provider{prover: prover}
}

// Generate implements domain.ProofProvider.
func (p *Provider) Generate(ctx context.Context, ranges domain.ProofTimestampRanges) (json.RawMessage, error) {
	if p.prover == nil {
		return nil, fmt.Errorf("real provider: no prover backend configured")
	}
	return p.prover.Prove(ctx, ranges)
}

// IsDisabled implements domain.ProofProvider; the real provider is always
// enabled when selected.
func (p *Provider) IsDisabled() bool { return false }

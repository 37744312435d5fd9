// Package disabled implements the feature-gated disabled ProofProvider
// variant: it always errors from Generate and reports IsDisabled true, so
// the worker short-circuits by acknowledging messages without invoking it.
package disabled

import (
	"context"
	"encoding/json"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

// Provider is the disabled ProofProvider.
type Provider struct{}

// New returns a disabled Provider.
func New() *Provider { return &Provider{} }

// Generate implements domain.ProofProvider; it is never expected to be
// called by a correct worker loop once IsDisabled reports true, but always
// errors defensively if it is.
func (Provider) Generate(context.Context, domain.ProofTimestampRanges) (json.RawMessage, error) {
	return nil, domain.ErrProviderDisabled
}

// IsDisabled implements domain.ProofProvider.
func (Provider) IsDisabled() bool { return true }

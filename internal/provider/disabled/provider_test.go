package disabled

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

func TestProvider_IsDisabled(t *testing.T) {
	assert.True(t, New().IsDisabled())
}

func TestProvider_GenerateAlwaysErrors(t *testing.T) {
	_, err := New().Generate(context.Background(), domain.ProofTimestampRanges{})
	assert.True(t, errors.Is(err, domain.ErrProviderDisabled))
}

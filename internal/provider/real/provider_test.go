package real

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

type fakeProver struct {
	receipt json.RawMessage
	err     error
}

func (f fakeProver) Prove(ctx context.Context, ranges domain.ProofTimestampRanges) (json.RawMessage, error) {
	return f.receipt, f.err
}

func TestProvider_DelegatesToProver(t *testing.T) {
	receipt := json.RawMessage(`{"proof":"abc"}`)
	p := New(fakeProver{receipt: receipt})

	out, err := p.Generate(context.Background(), domain.ProofTimestampRanges{})
	require.NoError(t, err)
	assert.Equal(t, receipt, out)
}

func TestProvider_PropagatesProverError(t *testing.T) {
	boom := errors.New("prover boom")
	p := New(fakeProver{err: boom})

	_, err := p.Generate(context.Background(), domain.ProofTimestampRanges{})
	assert.ErrorIs(t, err, boom)
}

func TestProvider_NilProverErrors(t *testing.T) {
	p := New(nil)
	_, err := p.Generate(context.Background(), domain.ProofTimestampRanges{})
	assert.Error(t, err)
}

func TestProvider_IsDisabled_AlwaysFalse(t *testing.T) {
	assert.False(t, New(fakeProver{}).IsDisabled())
}

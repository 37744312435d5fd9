package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
	"github.com/fossil-proof/proof-pipeline/internal/queue/localqueue"
)

func TestPublish_SendsProofGenerated(t *testing.T) {
	q := localqueue.New()
	p := New(q)

	receipt := json.RawMessage(`{"ok":true}`)
	require.NoError(t, p.Publish(context.Background(), "A", receipt))

	msgs, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	job, err := domain.ParseJob([]byte(msgs[0].Body))
	require.NoError(t, err)
	assert.Equal(t, domain.KindProofGenerated, job.Kind)
	assert.Equal(t, "A", job.ProofGenerated.JobID)
	assert.JSONEq(t, `{"ok":true}`, string(job.ProofGenerated.Receipt))
}

type erroringQueue struct{ domain.Queue }

func (erroringQueue) Send(ctx context.Context, body string) error {
	return errors.New("send boom")
}

func TestPublish_PropagatesSendError(t *testing.T) {
	p := New(erroringQueue{})
	err := p.Publish(context.Background(), "A", json.RawMessage(`{}`))
	assert.Error(t, err)
}

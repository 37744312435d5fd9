package localqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

func TestSendReceiveDelete(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "hello"))
	msgs, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Body)
	require.NotNil(t, msgs[0].ID)

	require.NoError(t, q.Delete(ctx, msgs[0]))
	assert.Equal(t, 0, q.Len())
}

func TestDelete_NilIDIsNoop(t *testing.T) {
	q := New()
	require.NoError(t, q.Send(context.Background(), "kept"))
	require.NoError(t, q.Delete(context.Background(), domain.QueueMessage{Body: "kept", ID: nil}))
	assert.Equal(t, 1, q.Len())
}

func TestReceive_CapsBatchAtTen(t *testing.T) {
	q := New()
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, q.Send(ctx, "m"))
	}
	msgs, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 10)
	assert.Equal(t, 15, q.Len())
}

func TestReceive_EmptyIsNotError(t *testing.T) {
	q := New()
	msgs, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

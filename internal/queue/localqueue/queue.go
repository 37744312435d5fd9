// Package localqueue implements an in-memory domain.Queue for tests and
// single-process deployments, grounded on LocalMessageQueue in the message
// handler's test module: a mutex-protected slice standing in for a durable
// at-least-once backend, with generated opaque ids for delete correlation.
package localqueue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

// Queue is an in-memory domain.Queue. Delivered messages stay visible to
// Receive until explicitly Deleted; there is no visibility-timeout
// redelivery since tests drive delivery deterministically.
type Queue struct {
	mu       sync.Mutex
	messages []domain.QueueMessage
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Send appends body as a new message with a freshly generated id.
func (q *Queue) Send(ctx context.Context, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.NewString()
	q.messages = append(q.messages, domain.QueueMessage{Body: body, ID: &id})
	return nil
}

// Receive returns up to 10 currently-enqueued messages, matching the real
// queue's implementation-defined batch cap.
func (q *Queue) Receive(ctx context.Context) ([]domain.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	const batchCap = 10
	n := len(q.messages)
	if n > batchCap {
		n = batchCap
	}
	out := make([]domain.QueueMessage, n)
	copy(out, q.messages[:n])
	return out, nil
}

// Delete removes the message matching msg.ID. A nil ID is a no-op success.
func (q *Queue) Delete(ctx context.Context, msg domain.QueueMessage) error {
	if msg.ID == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.ID != nil && *m.ID == *msg.ID {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// IsHealthy always reports true: the in-memory queue has no external
// connection to degrade. Exists so Queue satisfies app.QueueHealth
// alongside the sqs backend.
func (q *Queue) IsHealthy() bool { return true }

// Len reports the number of currently-enqueued messages. Exposed for tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Bodies returns a snapshot of every currently-enqueued message body.
// Exposed for tests asserting on final queue contents.
func (q *Queue) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.messages))
	for i, m := range q.messages {
		out[i] = m.Body
	}
	return out
}

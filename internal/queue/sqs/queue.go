// Package sqs implements domain.Queue against AWS SQS: long-polling receive
// with a bounded batch, visibility-timeout-backed at-least-once delivery,
// and receipt-handle deletes. Every call is wrapped in an ObservableClient
// (adaptive timeout + circuit breaker + connection metrics), one per
// operation.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
	"github.com/fossil-proof/proof-pipeline/internal/observability"
)

// receiveWaitSeconds is the long-poll duration SQS blocks a Receive call
// for before returning an empty batch.
const receiveWaitSeconds = 20

// receiveMaxMessages is the batch cap, matching the contract's "up to 10".
const receiveMaxMessages = 10

// client is the subset of the SQS SDK this package depends on, so tests can
// substitute a fake without standing up real AWS infrastructure.
type client interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Queue adapts an SQS queue URL to domain.Queue.
type Queue struct {
	cli      client
	queueURL string

	sendObs    *observability.ObservableClient
	receiveObs *observability.ObservableClient
	deleteObs  *observability.ObservableClient
}

// New builds a Queue from ambient AWS configuration (region, credentials,
// and an optional custom endpoint for local stacks such as LocalStack or
// ElasticMQ, resolved the same way the rest of the ambient stack loads
// configuration: environment variables read once at startup).
func New(ctx context.Context, queueURL, region, endpointURL string) (*Queue, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sqs: load aws config: %w", err)
	}

	var sqsOpts []func(*sqs.Options)
	if endpointURL != "" {
		sqsOpts = append(sqsOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
		})
	}

	return newWithClient(sqs.NewFromConfig(cfg, sqsOpts...), queueURL), nil
}

func newWithClient(cli client, queueURL string) *Queue {
	return &Queue{
		cli:      cli,
		queueURL: queueURL,
		sendObs: observability.NewObservableClient(
			observability.ConnectionTypeQueue, observability.OperationTypePublish, queueURL,
			5*time.Second, 1*time.Second, 30*time.Second),
		receiveObs: observability.NewObservableClient(
			observability.ConnectionTypeQueue, observability.OperationTypePoll, queueURL,
			(receiveWaitSeconds+5)*time.Second, 10*time.Second, 60*time.Second),
		deleteObs: observability.NewObservableClient(
			observability.ConnectionTypeQueue, observability.OperationTypeConsume, queueURL,
			5*time.Second, 1*time.Second, 30*time.Second),
	}
}

// Send implements domain.Queue.
func (q *Queue) Send(ctx context.Context, body string) error {
	return q.sendObs.ExecuteWithMetrics(ctx, "sqs.send", func(ctx context.Context) error {
		_, err := q.cli.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(q.queueURL),
			MessageBody: aws.String(body),
		})
		if err != nil {
			return fmt.Errorf("sqs: send message: %w", err)
		}
		return nil
	})
}

// Receive implements domain.Queue.
func (q *Queue) Receive(ctx context.Context) ([]domain.QueueMessage, error) {
	var out []domain.QueueMessage
	err := q.receiveObs.ExecuteWithMetrics(ctx, "sqs.receive", func(ctx context.Context) error {
		resp, err := q.cli.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: receiveMaxMessages,
			WaitTimeSeconds:     receiveWaitSeconds,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameSentTimestamp,
			},
		})
		if err != nil {
			return fmt.Errorf("sqs: receive message: %w", err)
		}
		out = make([]domain.QueueMessage, 0, len(resp.Messages))
		for _, m := range resp.Messages {
			handle := m.ReceiptHandle
			out = append(out, domain.QueueMessage{Body: aws.ToString(m.Body), ID: handle})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements domain.Queue. A nil ID is a no-op success, since a
// message with no receipt handle has nothing to acknowledge.
func (q *Queue) Delete(ctx context.Context, msg domain.QueueMessage) error {
	if msg.ID == nil {
		return nil
	}
	return q.deleteObs.ExecuteWithMetrics(ctx, "sqs.delete", func(ctx context.Context) error {
		_, err := q.cli.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: msg.ID,
		})
		if err != nil {
			return fmt.Errorf("sqs: delete message: %w", err)
		}
		return nil
	})
}

// HealthStatus exposes the underlying observable clients' health, keyed by
// operation. Readiness checks use IsHealthy, not this map.
func (q *Queue) HealthStatus() map[string]interface{} {
	return map[string]interface{}{
		"send":    q.sendObs.GetHealthStatus(),
		"receive": q.receiveObs.GetHealthStatus(),
		"delete":  q.deleteObs.GetHealthStatus(),
	}
}

// IsHealthy reports whether, for all three wrapped operations, the
// connection metrics report healthy (circuit not open, failure rate at most
// half) and the circuit breaker allows calls.
func (q *Queue) IsHealthy() bool {
	return q.sendObs.IsHealthy() && q.receiveObs.IsHealthy() && q.deleteObs.IsHealthy()
}

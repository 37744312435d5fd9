// Package domain defines core entities, ports, and domain-specific errors
// for the proof pipeline.
package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")

	// ErrMalformedJob is returned by ParseJob when a queue message body is
	// neither valid JSON nor matches either Job variant's shape.
	ErrMalformedJob = errors.New("malformed job message")
	// ErrProviderDisabled is returned by a disabled ProofProvider.
	ErrProviderDisabled = errors.New("proof provider disabled")
)

// JobKind discriminates the two Job variants. It is never placed on the
// wire; discrimination of incoming messages is purely structural, matching
// each candidate shape in turn (see ParseJob).
type JobKind int

const (
	// KindRequestProof identifies a RequestProof job.
	KindRequestProof JobKind = iota
	// KindProofGenerated identifies a ProofGenerated job.
	KindProofGenerated
)

// TimeRange is an inclusive-exclusive (start, end) timestamp pair used for
// the three sub-calculations of a proof job.
type TimeRange struct {
	Start int64
	End   int64
}

// Valid reports whether the range satisfies start < end.
func (r TimeRange) Valid() bool { return r.Start < r.End }

// RequestProof is the job variant that asks the worker to generate a proof
// over a job-group's three correlated calculations.
type RequestProof struct {
	JobID         string
	JobGroupID    *string
	StartTS       int64
	EndTS         int64
	TWAP          *TimeRange
	ReservePrice  *TimeRange
	MaxReturn     *TimeRange
}

// ProofGenerated is the job variant published by the worker once a proof
// has been produced for a given job_id.
type ProofGenerated struct {
	JobID   string
	Receipt json.RawMessage
}

// Job is a tagged union over the two wire variants. Exactly one of
// RequestProof / ProofGenerated is non-nil; Kind tells which.
type Job struct {
	Kind           JobKind
	RequestProof   *RequestProof
	ProofGenerated *ProofGenerated
}

// requestProofWire and proofGeneratedWire mirror the exact JSON shapes from
// the external interface contract. They are unexported: callers interact
// with Job, RequestProof, and ProofGenerated only.
type requestProofWire struct {
	JobID                      string  `json:"job_id"`
	JobGroupID                 *string `json:"job_group_id"`
	StartTimestamp             int64   `json:"start_timestamp"`
	EndTimestamp               int64   `json:"end_timestamp"`
	TWAPStartTimestamp         *int64  `json:"twap_start_timestamp"`
	TWAPEndTimestamp           *int64  `json:"twap_end_timestamp"`
	ReservePriceStartTimestamp *int64  `json:"reserve_price_start_timestamp"`
	ReservePriceEndTimestamp   *int64  `json:"reserve_price_end_timestamp"`
	MaxReturnStartTimestamp    *int64  `json:"max_return_start_timestamp"`
	MaxReturnEndTimestamp      *int64  `json:"max_return_end_timestamp"`
}

type proofGeneratedWire struct {
	JobID   string          `json:"job_id"`
	Receipt json.RawMessage `json:"receipt"`
}

// ParseJob attempts to classify a raw message body as one of the two Job
// variants by structural match. Unknown fields in either shape, or a body
// matching neither shape exactly, yield ErrMalformedJob.
func ParseJob(body []byte) (Job, error) {
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(body, &asMap); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	_, hasStart := asMap["start_timestamp"]
	_, hasEnd := asMap["end_timestamp"]
	_, hasReceipt := asMap["receipt"]

	switch {
	case hasReceipt && !hasStart && !hasEnd:
		var w proofGeneratedWire
		if err := strictUnmarshal(body, &w); err != nil {
			return Job{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
		}
		if w.JobID == "" {
			return Job{}, fmt.Errorf("%w: missing job_id", ErrMalformedJob)
		}
		return Job{
			Kind:           KindProofGenerated,
			ProofGenerated: &ProofGenerated{JobID: w.JobID, Receipt: w.Receipt},
		}, nil
	case hasStart && hasEnd && !hasReceipt:
		var w requestProofWire
		if err := strictUnmarshal(body, &w); err != nil {
			return Job{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
		}
		if w.JobID == "" {
			return Job{}, fmt.Errorf("%w: missing job_id", ErrMalformedJob)
		}
		rp := &RequestProof{
			JobID:      w.JobID,
			JobGroupID: w.JobGroupID,
			StartTS:    w.StartTimestamp,
			EndTS:      w.EndTimestamp,
		}
		rp.TWAP = optionalRange(w.TWAPStartTimestamp, w.TWAPEndTimestamp)
		rp.ReservePrice = optionalRange(w.ReservePriceStartTimestamp, w.ReservePriceEndTimestamp)
		rp.MaxReturn = optionalRange(w.MaxReturnStartTimestamp, w.MaxReturnEndTimestamp)
		return Job{Kind: KindRequestProof, RequestProof: rp}, nil
	default:
		return Job{}, fmt.Errorf("%w: shape matches neither variant", ErrMalformedJob)
	}
}

// strictUnmarshal rejects unknown top-level fields so the two variants stay
// disjoint even as new fields are added to either shape.
func strictUnmarshal(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func optionalRange(start, end *int64) *TimeRange {
	if start == nil || end == nil {
		return nil
	}
	return &TimeRange{Start: *start, End: *end}
}

// Serialize renders a Job back to its wire JSON shape.
func (j Job) Serialize() ([]byte, error) {
	switch j.Kind {
	case KindRequestProof:
		rp := j.RequestProof
		w := requestProofWire{
			JobID:          rp.JobID,
			JobGroupID:     rp.JobGroupID,
			StartTimestamp: rp.StartTS,
			EndTimestamp:   rp.EndTS,
		}
		if rp.TWAP != nil {
			w.TWAPStartTimestamp, w.TWAPEndTimestamp = &rp.TWAP.Start, &rp.TWAP.End
		}
		if rp.ReservePrice != nil {
			w.ReservePriceStartTimestamp, w.ReservePriceEndTimestamp = &rp.ReservePrice.Start, &rp.ReservePrice.End
		}
		if rp.MaxReturn != nil {
			w.MaxReturnStartTimestamp, w.MaxReturnEndTimestamp = &rp.MaxReturn.Start, &rp.MaxReturn.End
		}
		return json.Marshal(w)
	case KindProofGenerated:
		pg := j.ProofGenerated
		return json.Marshal(proofGeneratedWire{JobID: pg.JobID, Receipt: pg.Receipt})
	default:
		return nil, fmt.Errorf("%w: unknown job kind", ErrInternal)
	}
}

// ProofTimestampRanges is the three correlated sub-ranges a proof provider
// operates over, derived from a RequestProof (see DeriveRanges).
type ProofTimestampRanges struct {
	TWAP         TimeRange
	ReservePrice TimeRange
	MaxReturn    TimeRange
}

// OverallRange returns the min-start / max-end span across the three
// sub-ranges.
func (r ProofTimestampRanges) OverallRange() TimeRange {
	out := r.TWAP
	for _, cand := range []TimeRange{r.ReservePrice, r.MaxReturn} {
		if cand.Start < out.Start {
			out.Start = cand.Start
		}
		if cand.End > out.End {
			out.End = cand.End
		}
	}
	return out
}

// DeriveRanges builds ProofTimestampRanges from a RequestProof, defaulting
// any absent sub-range to the outer (start_ts, end_ts) pair.
func DeriveRanges(rp *RequestProof) ProofTimestampRanges {
	outer := TimeRange{Start: rp.StartTS, End: rp.EndTS}
	deref := func(r *TimeRange) TimeRange {
		if r == nil {
			return outer
		}
		return *r
	}
	return ProofTimestampRanges{
		TWAP:         deref(rp.TWAP),
		ReservePrice: deref(rp.ReservePrice),
		MaxReturn:    deref(rp.MaxReturn),
	}
}

// QueueMessage is a single delivery from the Queue. ID is the opaque
// receipt handle required for deletion; its absence means the message
// cannot be explicitly acknowledged.
type QueueMessage struct {
	Body string
	ID   *string
}

// Queue abstracts send / receive / delete against an at-least-once durable
// message backend (see Component 4.A).
type Queue interface {
	// Send enqueues body with at-least-once delivery.
	Send(ctx context.Context, body string) error
	// Receive long-polls for up to an implementation-defined batch of
	// messages. An empty slice is not an error.
	Receive(ctx context.Context) ([]QueueMessage, error)
	// Delete acknowledges msg by its ID. A message with a nil ID is a
	// no-op success.
	Delete(ctx context.Context, msg QueueMessage) error
}

// ProofProvider is the pluggable interface a worker delegates proof
// generation to (see Component 4.G).
type ProofProvider interface {
	// Generate computes a receipt for the given timestamp ranges.
	Generate(ctx context.Context, ranges ProofTimestampRanges) (json.RawMessage, error)
	// IsDisabled reports whether this provider is configured off; when
	// true the worker acknowledges messages without calling Generate.
	IsDisabled() bool
}

// JobRequestStatus captures the lifecycle state of a job_requests row
// persisted by the Gateway. This is a supplemented feature: the CORE spec
// treats Gateway persistence as an external collaborator, but a complete
// Gateway process needs somewhere to record dedup/status state.
type JobRequestStatus string

// Job request status values recorded by the Gateway.
const (
	JobRequestSubmitted JobRequestStatus = "submitted"
	JobRequestDeduped   JobRequestStatus = "deduped"
	JobRequestQueued    JobRequestStatus = "queued"
	JobRequestCompleted JobRequestStatus = "completed"
	JobRequestFailed    JobRequestStatus = "failed"
)

// JobRequest is the Gateway's persisted record of a client submission,
// keyed by a content fingerprint for deduplication.
type JobRequest struct {
	ID          string
	JobGroupID  string
	Fingerprint string
	Status      JobRequestStatus
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobRequestRepository persists Gateway job_requests rows.
type JobRequestRepository interface {
	Create(ctx context.Context, jr JobRequest) (string, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (JobRequest, error)
	UpdateStatus(ctx context.Context, id string, status JobRequestStatus, errMsg *string) error
	Get(ctx context.Context, id string) (JobRequest, error)
	ListWithFilters(ctx context.Context, offset, limit int, status string) ([]JobRequest, error)
}

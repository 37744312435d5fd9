package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"

	"github.com/fossil-proof/proof-pipeline/internal/adapter/observability"
	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

// timeRangeDTO mirrors the wire shape of a {start,end} timestamp pair in the
// Gateway's HTTP API, expressed as a nested object rather than flat
// start_ts/end_ts fields.
type timeRangeDTO struct {
	Start int64 `json:"start" validate:"required"`
	End   int64 `json:"end" validate:"required,gtfield=Start"`
}

// jobSubmission is the Gateway's POST /api/job request body.
type jobSubmission struct {
	JobGroupID   string       `json:"job_group_id" validate:"required"`
	TWAP         timeRangeDTO `json:"twap" validate:"required"`
	ReservePrice timeRangeDTO `json:"reserve_price" validate:"required"`
	MaxReturn    timeRangeDTO `json:"max_return" validate:"required"`
}

// forwardedJob is the body the Gateway forwards to the Proving Service: the
// client submission plus the job_id the Gateway assigned it.
type forwardedJob struct {
	JobID        string       `json:"job_id"`
	JobGroupID   string       `json:"job_group_id"`
	TWAP         timeRangeDTO `json:"twap"`
	ReservePrice timeRangeDTO `json:"reserve_price"`
	MaxReturn    timeRangeDTO `json:"max_return"`
}

// GatewayServer handles the upstream client-facing job submission API:
// validation, content-fingerprint deduplication, job_requests persistence,
// and forwarding to the Proving Service.
type GatewayServer struct {
	Repo              domain.JobRequestRepository
	ProvingServiceURL string
	HTTPClient        *http.Client
	validate          *validator.Validate
	breaker           *observability.CircuitBreaker
}

// NewGatewayServer constructs a GatewayServer.
func NewGatewayServer(repo domain.JobRequestRepository, provingServiceURL string, httpClient *http.Client) *GatewayServer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GatewayServer{
		Repo:              repo,
		ProvingServiceURL: provingServiceURL,
		HTTPClient:        httpClient,
		validate:          validator.New(),
		breaker:           observability.GetCircuitBreaker("proving_service_forward", 5, 30*time.Second),
	}
}

// SubmitJobHandler implements POST /api/job.
func (s *GatewayServer) SubmitJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sub jobSubmission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			writeError(w, r, fmt.Errorf("op=gateway.submit: %w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if err := s.validate.Struct(sub); err != nil {
			writeError(w, r, fmt.Errorf("op=gateway.submit: %w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		fingerprint, err := canonicalFingerprint(sub)
		if err != nil {
			writeError(w, r, fmt.Errorf("op=gateway.submit.fingerprint: %w", domain.ErrInternal), nil)
			return
		}

		if existing, err := s.Repo.FindByFingerprint(r.Context(), fingerprint); err == nil && isOpen(existing.Status) {
			writeJSON(w, http.StatusOK, map[string]string{"job_id": existing.JobGroupID, "status": string(domain.JobRequestDeduped)})
			return
		}

		jr := domain.JobRequest{
			JobGroupID:  sub.JobGroupID,
			Fingerprint: fingerprint,
			Status:      domain.JobRequestSubmitted,
		}
		id, err := s.Repo.Create(r.Context(), jr)
		if err != nil {
			writeError(w, r, fmt.Errorf("op=gateway.submit.create: %w", domain.ErrInternal), nil)
			return
		}

		if err := s.forward(r.Context(), forwardedJob{
			JobID: sub.JobGroupID, JobGroupID: sub.JobGroupID,
			TWAP: sub.TWAP, ReservePrice: sub.ReservePrice, MaxReturn: sub.MaxReturn,
		}); err != nil {
			msg := err.Error()
			_ = s.Repo.UpdateStatus(r.Context(), id, domain.JobRequestFailed, &msg)
			writeError(w, r, fmt.Errorf("op=gateway.submit.forward: %w", domain.ErrUpstreamTimeout), nil)
			return
		}
		_ = s.Repo.UpdateStatus(r.Context(), id, domain.JobRequestQueued, nil)

		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": sub.JobGroupID, "status": string(domain.JobRequestQueued)})
	}
}

// forward posts the job to the Proving Service with exponential backoff,
// retrying only on transient (5xx/network) failures — a 4xx response from
// the Proving Service indicates a malformed forward and is not retried.
// The whole retried call runs behind a circuit breaker so a sustained
// Proving Service outage fails fast instead of queuing up retries per request.
func (s *GatewayServer) forward(ctx context.Context, job forwardedJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal forwarded job: %w", err)
	}

	return s.breaker.Call(func() error {
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		return backoff.Retry(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ProvingServiceURL+"/internal/jobs", bytes.NewReader(body))
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.HTTPClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("proving service status %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return backoff.Permanent(fmt.Errorf("proving service rejected job: status %d", resp.StatusCode))
			}
			return nil
		}, bo)
	})
}

// isOpen reports whether a prior job_requests row with this fingerprint
// still represents live work, so a resubmission after a terminal outcome
// (completed/failed) is allowed to try again rather than being deduped.
func isOpen(status domain.JobRequestStatus) bool {
	switch status {
	case domain.JobRequestSubmitted, domain.JobRequestQueued, domain.JobRequestDeduped:
		return true
	default:
		return false
	}
}

// canonicalFingerprint hashes the submission's defining fields with
// Keccak256, the natural hash for a blockchain co-processor's request
// fingerprinting. job_group_id is excluded: two submissions with the same
// ranges but different group ids are still the same unit of work for
// dedup purposes.
func canonicalFingerprint(sub jobSubmission) (string, error) {
	canonical := struct {
		TWAP         timeRangeDTO `json:"twap"`
		ReservePrice timeRangeDTO `json:"reserve_price"`
		MaxReturn    timeRangeDTO `json:"max_return"`
	}{sub.TWAP, sub.ReservePrice, sub.MaxReturn}
	body, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256(body)
	return fmt.Sprintf("%x", hash), nil
}

package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

// receiveJobRequest is the body the Gateway forwards: a job submission plus
// the job_id the Gateway assigned. The gateway uses job_group_id as the
// job_id in the queued RequestProof.
type receiveJobRequest struct {
	JobID        string       `json:"job_id"`
	JobGroupID   string       `json:"job_group_id"`
	TWAP         timeRangeDTO `json:"twap"`
	ReservePrice timeRangeDTO `json:"reserve_price"`
	MaxReturn    timeRangeDTO `json:"max_return"`
}

// ProvingServiceServer is the thin HTTP router that translates a forwarded
// Gateway request into a RequestProof queue message.
type ProvingServiceServer struct {
	Queue domain.Queue
}

// NewProvingServiceServer constructs a ProvingServiceServer.
func NewProvingServiceServer(queue domain.Queue) *ProvingServiceServer {
	return &ProvingServiceServer{Queue: queue}
}

// ReceiveJobHandler implements POST /internal/jobs.
func (s *ProvingServiceServer) ReceiveJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req receiveJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
			writeError(w, r, fmt.Errorf("op=provingservice.receive: %w", domain.ErrInvalidArgument), nil)
			return
		}

		jobGroupID := req.JobGroupID
		job := domain.Job{
			Kind: domain.KindRequestProof,
			RequestProof: &domain.RequestProof{
				JobID:        req.JobID,
				JobGroupID:   &jobGroupID,
				StartTS:      overallStart(req),
				EndTS:        overallEnd(req),
				TWAP:         rangeOf(req.TWAP),
				ReservePrice: rangeOf(req.ReservePrice),
				MaxReturn:    rangeOf(req.MaxReturn),
			},
		}
		body, err := job.Serialize()
		if err != nil {
			writeError(w, r, fmt.Errorf("op=provingservice.receive.serialize: %w", domain.ErrInternal), nil)
			return
		}

		if err := s.Queue.Send(r.Context(), string(body)); err != nil {
			writeError(w, r, fmt.Errorf("op=provingservice.receive.enqueue: %w: %v", domain.ErrInternal, err), nil)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": req.JobID})
	}
}

func rangeOf(d timeRangeDTO) *domain.TimeRange {
	return &domain.TimeRange{Start: d.Start, End: d.End}
}

// overallStart/overallEnd derive the outer job range as the min-start/
// max-end of the three sub-ranges, matching
// domain.ProofTimestampRanges.OverallRange on the worker side.
func overallStart(req receiveJobRequest) int64 {
	start := req.TWAP.Start
	if req.ReservePrice.Start < start {
		start = req.ReservePrice.Start
	}
	if req.MaxReturn.Start < start {
		start = req.MaxReturn.Start
	}
	return start
}

func overallEnd(req receiveJobRequest) int64 {
	end := req.TWAP.End
	if req.ReservePrice.End > end {
		end = req.ReservePrice.End
	}
	if req.MaxReturn.End > end {
		end = req.MaxReturn.End
	}
	return end
}

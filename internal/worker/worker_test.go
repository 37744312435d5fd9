package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
	"github.com/fossil-proof/proof-pipeline/internal/provider/disabled"
	"github.com/fossil-proof/proof-pipeline/internal/provider/mock"
	"github.com/fossil-proof/proof-pipeline/internal/queue/localqueue"
)

func requestProofBody(jobID string, start, end int64) string {
	j := domain.Job{Kind: domain.KindRequestProof, RequestProof: &domain.RequestProof{
		JobID: jobID, StartTS: start, EndTS: end,
	}}
	body, err := j.Serialize()
	if err != nil {
		panic(err)
	}
	return string(body)
}

// runOnePoll drives exactly one receive/dispatch/drain cycle by calling
// Receive, handing each message to handleMessage, and then waiting for the
// spawned tasks, without running the worker loop. This sidesteps driving the
// full Stop()-via-signal lifecycle in unit tests while still exercising
// handleMessage + processJob end to end.
func runOnePoll(t *testing.T, w *Worker) {
	t.Helper()
	ctx := context.Background()
	msgs, err := w.queue.Receive(ctx)
	require.NoError(t, err)
	for _, m := range msgs {
		w.handleMessage(ctx, m)
	}
	w.supervisor.Wait()
}

func TestHappyPath_SingleJob(t *testing.T) {
	q := localqueue.New()
	require.NoError(t, q.Send(context.Background(), requestProofBody("A", 1743249072, 1743249120)))

	w := New(q, mock.New(), DefaultConfig())
	runOnePoll(t, w)

	bodies := q.Bodies()
	require.Len(t, bodies, 1)
	job, err := domain.ParseJob([]byte(bodies[0]))
	require.NoError(t, err)
	assert.Equal(t, domain.KindProofGenerated, job.Kind)
	assert.Equal(t, "A", job.ProofGenerated.JobID)
	assert.Equal(t, 0, w.failures.Snapshot("A"))
}

func TestFailureUnderThreshold_LeavesMessageForRedelivery(t *testing.T) {
	q := localqueue.New()
	require.NoError(t, q.Send(context.Background(), requestProofBody("B", 1, 2)))

	prov := mock.New().WithOutcomes(errors.New("prover unavailable"))
	w := New(q, prov, DefaultConfig())
	runOnePoll(t, w)

	bodies := q.Bodies()
	require.Len(t, bodies, 1)
	job, err := domain.ParseJob([]byte(bodies[0]))
	require.NoError(t, err)
	assert.Equal(t, domain.KindRequestProof, job.Kind)
	assert.Equal(t, 1, w.failures.Snapshot("B"))
}

func TestFailureAtThreshold_ForcesAck(t *testing.T) {
	q := localqueue.New()
	require.NoError(t, q.Send(context.Background(), requestProofBody("C", 1, 2)))

	prov := mock.New().WithOutcomes(errors.New("prover unavailable"))
	w := New(q, prov, DefaultConfig())
	w.failures.RecordFailure("C")
	w.failures.RecordFailure("C")
	w.failures.RecordFailure("C")

	runOnePoll(t, w)

	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, w.failures.Snapshot("C"))
}

func TestMalformedMessage_IsDroppedAndAcked(t *testing.T) {
	q := localqueue.New()
	require.NoError(t, q.Send(context.Background(), "invalid json message"))

	w := New(q, mock.New(), DefaultConfig())
	runOnePoll(t, w)

	assert.Equal(t, 0, q.Len())
}

func TestConcurrentJobs_AllSucceed(t *testing.T) {
	q := localqueue.New()
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, q.Send(ctx, requestProofBody(id, 1, 2)))
	}

	w := New(q, mock.New(), DefaultConfig())
	runOnePoll(t, w)

	bodies := q.Bodies()
	require.Len(t, bodies, 3)
	seen := map[string]bool{}
	for _, b := range bodies {
		job, err := domain.ParseJob([]byte(b))
		require.NoError(t, err)
		require.Equal(t, domain.KindProofGenerated, job.Kind)
		seen[job.ProofGenerated.JobID] = true
	}
	assert.True(t, seen["A"] && seen["B"] && seen["C"])
}

func TestConcurrentJobs_MixedSuccessAndFailure(t *testing.T) {
	q := localqueue.New()
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, requestProofBody("s1", 1, 2)))
	require.NoError(t, q.Send(ctx, requestProofBody("fail", 3, 4)))
	require.NoError(t, q.Send(ctx, requestProofBody("s2", 1, 2)))

	// Task scheduling order is not guaranteed, so the failing outcome is
	// keyed to the "fail" job instead of call order: only that job's ranges
	// start at 3, and the provider fails exactly those ranges.
	prov := &keyedOutcomeProvider{failing: "fail", failStart: 3}
	w := New(q, prov, DefaultConfig())
	runOnePoll(t, w)

	bodies := q.Bodies()
	var generated, remaining int
	for _, b := range bodies {
		job, err := domain.ParseJob([]byte(b))
		require.NoError(t, err)
		if job.Kind == domain.KindProofGenerated {
			generated++
		} else {
			remaining++
		}
	}
	assert.GreaterOrEqual(t, generated, 1)
	assert.GreaterOrEqual(t, remaining, 1)
	assert.Equal(t, 1, w.failures.Snapshot("fail"))
}

// keyedOutcomeProvider fails Generate only for one job. The provider
// signature carries only the ranges, no job_id, so the job is identified by
// a TWAP start (failStart) that no other job in the test uses.
type keyedOutcomeProvider struct {
	failing   string
	failStart int64
}

// Generate fails for ranges whose TWAP start is failStart, whatever the call
// order, and succeeds with a nil receipt for every other job.
func (p *keyedOutcomeProvider) Generate(ctx context.Context, ranges domain.ProofTimestampRanges) (json.RawMessage, error) {
	if ranges.TWAP.Start == p.failStart {
		return nil, fmt.Errorf("synthetic failure for %s", p.failing)
	}
	return nil, nil
}

func (p *keyedOutcomeProvider) IsDisabled() bool { return false }

func TestDisabledProvider_AcksWithoutGenerating(t *testing.T) {
	q := localqueue.New()
	require.NoError(t, q.Send(context.Background(), requestProofBody("D", 1, 2)))

	prov := disabled.New()
	w := New(q, prov, DefaultConfig())
	runOnePoll(t, w)

	assert.Equal(t, 0, q.Len())
	assert.True(t, prov.IsDisabled())
}

func TestDuplicateAdmission_SecondDeliveryIsSkipped(t *testing.T) {
	q := localqueue.New()
	w := New(q, mock.New().WithDelay(20*time.Millisecond), DefaultConfig())

	require.True(t, w.inflight.TryInsert("dup"))
	require.NoError(t, q.Send(context.Background(), requestProofBody("dup", 1, 2)))

	msgs, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	w.handleMessage(context.Background(), msgs[0])

	// Not deleted: the duplicate delivery is skipped without acking.
	assert.Equal(t, 1, q.Len())
	w.inflight.Remove("dup")
}

func TestNonRequestProofOnInputQueue_IsAcked(t *testing.T) {
	q := localqueue.New()
	j := domain.Job{Kind: domain.KindProofGenerated, ProofGenerated: &domain.ProofGenerated{
		JobID: "X", Receipt: json.RawMessage(`{"r":1}`),
	}}
	body, err := j.Serialize()
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), string(body)))

	w := New(q, mock.New(), DefaultConfig())
	runOnePoll(t, w)

	assert.Equal(t, 0, q.Len())
}

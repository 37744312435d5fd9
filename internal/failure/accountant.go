// Package failure implements the Failure Accountant (Component 4.E):
// a per-job-id failure counter and forcible-ack policy, grounded on the
// job_failures HashMap<String, JobProcessingState> in the message handler
// this pipeline generalizes.
package failure

import (
	"sync"
	"time"
)

// Record is the accounting state kept for a job_id that has failed at
// least once.
type Record struct {
	FailureCount int
	LastFailure  time.Time
}

// Accountant tracks per-job_id failure counts against a process-wide
// max-failures budget. Created lazily per job_id on first failure; removed
// on success or after a forcible ack.
type Accountant struct {
	mu          sync.Mutex
	records     map[string]*Record
	maxFailures int
}

// New returns an Accountant with the given max-failures budget. A task's
// (max_failures + 1)-th attempt is the one permitted to forcibly ack and
// drop a still-failing message.
func New(maxFailures int) *Accountant {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &Accountant{records: make(map[string]*Record), maxFailures: maxFailures}
}

// Snapshot returns the current failure count for job_id (0 if absent).
// Callers take this snapshot at task start, before running proof
// generation, per the 4.E sequence: whether the current attempt is allowed
// to force-ack is decided from history, not from the outcome of this
// attempt.
func (a *Accountant) Snapshot(jobID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec, ok := a.records[jobID]; ok {
		return rec.FailureCount
	}
	return 0
}

// ShouldForceAck reports whether a pre-attempt snapshot n0 already meets or
// exceeds the max-failures budget.
func (a *Accountant) ShouldForceAck(snapshot int) bool {
	return snapshot >= a.maxFailures
}

// RecordFailure atomically increments job_id's failure count, creating the
// record if absent, and returns the new count.
func (a *Accountant) RecordFailure(jobID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[jobID]
	if !ok {
		rec = &Record{}
		a.records[jobID] = rec
	}
	rec.FailureCount++
	rec.LastFailure = time.Now()
	return rec.FailureCount
}

// Clear removes job_id's failure record. Called on success and after a
// forcible ack.
func (a *Accountant) Clear(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, jobID)
}

// MaxFailures returns the configured budget.
func (a *Accountant) MaxFailures() int { return a.maxFailures }

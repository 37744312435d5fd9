// Package inflight implements the in-flight job-id registry (Component 4.D):
// a mutex-protected set that admits at most one worker task per job_id at a
// time, grounded on the processing_jobs HashSet<String> in the message
// handler this pipeline generalizes.
package inflight

import "sync"

// Registry is a mutex-protected set of job_ids currently owned by a worker
// task. Critical sections are O(1) map operations; no lookup spans a
// blocking call other than the mutex itself.
type Registry struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{set: make(map[string]struct{})}
}

// TryInsert admits job_id into the registry, returning true iff it was not
// already present. This is the admission token for I1: at most one task
// references a given job_id at any moment.
func (r *Registry) TryInsert(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[jobID]; ok {
		return false
	}
	r.set[jobID] = struct{}{}
	return true
}

// Remove releases job_id. It is idempotent: removing an absent id is a
// no-op, so every task exit path may call it unconditionally.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.set, jobID)
}

// Len reports the number of currently admitted job_ids. Used for metrics
// and tests, not for control flow.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.set)
}

// Contains reports whether job_id is currently admitted. Exposed for tests.
func (r *Registry) Contains(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[jobID]
	return ok
}

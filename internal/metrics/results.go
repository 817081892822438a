package metrics

import (
	"sync"

	"dbload/internal/profile"
)

// Results owns the record sequence produced by a run. Append is the only
// mutation; the workload engine merges worker-local buffers into it once,
// but Add is safe for concurrent use should a shared-aggregator design
// feed it mid-run.
type Results struct {
	Profile profile.Profile

	mu      sync.Mutex
	records []Record
}

// NewResults creates an empty aggregator tagged with the profile that will
// produce its records.
func NewResults(p profile.Profile) *Results {
	return &Results{Profile: p}
}

// Add appends one finalized record.
func (r *Results) Add(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// AddAll appends a batch of records, preserving their order.
func (r *Results) AddAll(recs []Record) {
	r.mu.Lock()
	r.records = append(r.records, recs...)
	r.mu.Unlock()
}

// Len reports the current record count.
func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns a snapshot copy of the record sequence.
func (r *Results) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

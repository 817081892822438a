package metrics

import (
	"strings"
	"time"
)

// Category classifies an operation at record-creation time so that
// aggregation never has to inspect free-form labels.
type Category string

const (
	CategoryRead  Category = "read"
	CategoryWrite Category = "write"
	CategoryOther Category = "other"
)

// CategoryOf maps a free-form operation label ("large_write", "batch_write",
// "large_read", ...) onto its category once, when the record is built.
func CategoryOf(opType string) Category {
	lower := strings.ToLower(opType)
	switch {
	case strings.Contains(lower, "read"):
		return CategoryRead
	case strings.Contains(lower, "write"):
		return CategoryWrite
	default:
		return CategoryOther
	}
}

// Record captures the outcome of one operation. It is built by the
// executor while the operation runs and is immutable once handed to the
// aggregator.
type Record struct {
	OpType   string    `json:"operation_type"`
	Category Category  `json:"category"`
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
	Success  bool      `json:"success"`
	Error    string    `json:"error_message,omitempty"`
	Bytes    int64     `json:"data_size_bytes"`
	ConnID   string    `json:"connection_id"`
}

// Begin starts a record for an operation that is about to run. The caller
// finishes it with Done or Fail.
func Begin(opType, connID string) Record {
	return Record{
		OpType:   opType,
		Category: CategoryOf(opType),
		Start:    time.Now(),
		ConnID:   connID,
	}
}

// Done finalizes the record as successful, stamping the end time.
func (r Record) Done(bytes int64) Record {
	r.End = time.Now()
	r.Success = true
	r.Bytes = bytes
	return r
}

// Fail finalizes the record as failed, capturing the error text.
func (r Record) Fail(err error) Record {
	r.End = time.Now()
	r.Success = false
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// DurationMs is the operation's wall-clock duration in milliseconds.
func (r Record) DurationMs() float64 {
	return r.End.Sub(r.Start).Seconds() * 1000
}

// ThroughputMBps is the data volume moved divided by the operation's
// duration, in MiB/s. Zero-duration operations report 0, never Inf or NaN.
func (r Record) ThroughputMBps() float64 {
	ms := r.DurationMs()
	if ms <= 0 {
		return 0
	}
	mb := float64(r.Bytes) / (1024 * 1024)
	return mb / (ms / 1000)
}

package metrics

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// ErrNoRecords is returned by Summary when no operations were recorded,
// so callers can tell "no data" apart from a zero-valued summary.
var ErrNoRecords = errors.New("no metrics collected")

// DurationStats summarizes operation durations in milliseconds.
type DurationStats struct {
	AvgMs    float64 `json:"avg_duration_ms"`
	MinMs    float64 `json:"min_duration_ms"`
	MaxMs    float64 `json:"max_duration_ms"`
	MedianMs float64 `json:"median_duration_ms"`
	P95Ms    float64 `json:"p95_duration_ms"`
	P99Ms    float64 `json:"p99_duration_ms"`
}

// ThroughputStats summarizes per-operation throughput in MiB/s, computed
// over successful operations that moved data in measurable time.
type ThroughputStats struct {
	AvgMBps float64 `json:"avg_throughput_mbps"`
	MinMBps float64 `json:"min_throughput_mbps"`
	MaxMBps float64 `json:"max_throughput_mbps"`
}

// CategorySummary is the per-category (read/write) slice of a summary.
type CategorySummary struct {
	Operations int              `json:"operations"`
	DataMB     float64          `json:"data_mb"`
	Durations  DurationStats    `json:"durations"`
	Throughput *ThroughputStats `json:"throughput,omitempty"`
}

// Summary is the full reduction of a record set. It is a pure function of
// the records: calling it repeatedly on an unchanged set yields identical
// values.
type Summary struct {
	Profile              string           `json:"load_profile"`
	TotalOperations      int              `json:"total_operations"`
	SuccessfulOperations int              `json:"successful_operations"`
	FailedOperations     int              `json:"failed_operations"`
	SuccessRate          float64          `json:"success_rate"`
	TotalDataMB          float64          `json:"total_data_transferred_mb"`
	Durations            *DurationStats   `json:"durations,omitempty"`
	Throughput           *ThroughputStats `json:"throughput,omitempty"`
	Read                 *CategorySummary `json:"read,omitempty"`
	Write                *CategorySummary `json:"write,omitempty"`
}

// Summary reduces the current record set. Returns ErrNoRecords on an empty
// set rather than fabricating zeros.
func (r *Results) Summary() (Summary, error) {
	records := r.Records()
	if len(records) == 0 {
		return Summary{}, ErrNoRecords
	}

	var successful []Record
	failed := 0
	for _, rec := range records {
		if rec.Success {
			successful = append(successful, rec)
		} else {
			failed++
		}
	}

	var totalBytes int64
	for _, rec := range successful {
		totalBytes += rec.Bytes
	}

	s := Summary{
		Profile:              r.Profile.Name,
		TotalOperations:      len(records),
		SuccessfulOperations: len(successful),
		FailedOperations:     failed,
		SuccessRate:          float64(len(successful)) / float64(len(records)) * 100,
		TotalDataMB:          float64(totalBytes) / (1024 * 1024),
	}

	s.Durations = durationStats(successful)
	s.Throughput = throughputStats(successful)

	s.Read = categorySummary(successful, CategoryRead)
	s.Write = categorySummary(successful, CategoryWrite)

	return s, nil
}

func categorySummary(successful []Record, cat Category) *CategorySummary {
	var subset []Record
	for _, rec := range successful {
		if rec.Category == cat {
			subset = append(subset, rec)
		}
	}
	if len(subset) == 0 {
		return nil
	}

	var bytes int64
	for _, rec := range subset {
		bytes += rec.Bytes
	}

	return &CategorySummary{
		Operations: len(subset),
		DataMB:     float64(bytes) / (1024 * 1024),
		Durations:  *durationStats(subset),
		Throughput: throughputStats(subset),
	}
}

func durationStats(records []Record) *DurationStats {
	if len(records) == 0 {
		return nil
	}

	durations := make([]float64, 0, len(records))
	for _, rec := range records {
		durations = append(durations, rec.DurationMs())
	}
	sort.Float64s(durations)

	sum := 0.0
	for _, d := range durations {
		sum += d
	}

	return &DurationStats{
		AvgMs:    sum / float64(len(durations)),
		MinMs:    durations[0],
		MaxMs:    durations[len(durations)-1],
		MedianMs: median(durations),
		P95Ms:    percentile(durations, 95),
		P99Ms:    percentile(durations, 99),
	}
}

// median interpolates the two middle elements of an even-sized
// ascending-sorted slice; the tail percentiles use the index rule instead.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func throughputStats(records []Record) *ThroughputStats {
	var tps []float64
	for _, rec := range records {
		if t := rec.ThroughputMBps(); t > 0 {
			tps = append(tps, t)
		}
	}
	if len(tps) == 0 {
		return nil
	}

	min, max, sum := tps[0], tps[0], 0.0
	for _, t := range tps {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
		sum += t
	}

	return &ThroughputStats{
		AvgMBps: sum / float64(len(tps)),
		MinMBps: min,
		MaxMBps: max,
	}
}

// percentile looks up the p-th percentile of an ascending-sorted slice by
// index: value at ceil(p/100*N)-1. A single-element slice is its own
// percentile at every p.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	i := int(math.Ceil((p/100)*float64(len(sorted)))) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

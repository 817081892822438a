package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LatencyHistogram tracks operation latencies at microsecond resolution,
// serialized behind a mutex so every worker can record into it directly.
type LatencyHistogram struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func NewLatencyHistogram() *LatencyHistogram {
	// 1µs to 10min covers anything a database round trip can plausibly take.
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &LatencyHistogram{hist: h}
}

// Record adds one operation's latency. Durations outside the tracked range
// are clamped rather than dropped.
func (h *LatencyHistogram) Record(d time.Duration) {
	v := d.Microseconds()
	if v < 1 {
		v = 1
	} else if max := h.hist.HighestTrackableValue(); v > max {
		v = max
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.hist.RecordValue(v)
}

// QuantileMs returns the latency at quantile q (0..100) in milliseconds.
func (h *LatencyHistogram) QuantileMs(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return float64(h.hist.ValueAtQuantile(q)) / 1000.0
}

func (h *LatencyHistogram) MeanMs() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.Mean() / 1000.0
}

func (h *LatencyHistogram) MaxMs() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return float64(h.hist.Max()) / 1000.0
}

func (h *LatencyHistogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}

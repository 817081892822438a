package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the live counters a run updates on every operation. The
// authoritative per-operation records live in the aggregator; this view
// exists so progress rendering and the optional metrics endpoint never
// have to lock the record set mid-run.
type Stats struct {
	Ops     uint64
	Success uint64
	Fail    uint64
	Bytes   uint64

	Latency *LatencyHistogram

	prom *promCollectors
}

func New() *Stats {
	return &Stats{
		Latency: NewLatencyHistogram(),
	}
}

// Record counts one completed operation.
func (s *Stats) Record(category string, success bool, bytes int64, latency time.Duration) {
	atomic.AddUint64(&s.Ops, 1)
	if success {
		atomic.AddUint64(&s.Success, 1)
	} else {
		atomic.AddUint64(&s.Fail, 1)
	}
	if bytes > 0 {
		atomic.AddUint64(&s.Bytes, uint64(bytes))
	}
	s.Latency.Record(latency)

	if s.prom != nil {
		s.prom.observe(category, success, bytes, latency)
	}
}

func (s *Stats) ErrorRate() float64 {
	ops := atomic.LoadUint64(&s.Ops)
	if ops == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.Fail)) / float64(ops) * 100
}

func (s *Stats) AvgMs() float64 { return s.Latency.MeanMs() }
func (s *Stats) P50Ms() float64 { return s.Latency.QuantileMs(50) }
func (s *Stats) P95Ms() float64 { return s.Latency.QuantileMs(95) }
func (s *Stats) P99Ms() float64 { return s.Latency.QuantileMs(99) }
func (s *Stats) MaxMs() float64 { return s.Latency.MaxMs() }

// promCollectors mirrors the live counters onto a Prometheus registry.
type promCollectors struct {
	ops     *prometheus.CounterVec
	bytes   prometheus.Counter
	latency prometheus.Histogram
}

// EnablePrometheus registers collectors on reg. Each run uses its own
// registry so repeated runs in one process never collide.
func (s *Stats) EnablePrometheus(reg prometheus.Registerer) error {
	p := &promCollectors{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbload_operations_total",
			Help: "Operations executed, by category and outcome.",
		}, []string{"category", "outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dbload_data_bytes_total",
			Help: "Payload bytes moved by successful operations.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dbload_operation_duration_seconds",
			Help:    "Operation wall-clock duration.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
	}

	for _, c := range []prometheus.Collector{p.ops, p.bytes, p.latency} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	s.prom = p
	return nil
}

func (p *promCollectors) observe(category string, success bool, bytes int64, latency time.Duration) {
	outcome := "success"
	if !success {
		outcome = "fail"
	}
	p.ops.WithLabelValues(category, outcome).Inc()
	if success && bytes > 0 {
		p.bytes.Add(float64(bytes))
	}
	p.latency.Observe(latency.Seconds())
}

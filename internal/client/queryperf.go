package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// QueryPerfStats summarizes repeated executions of one query.
type QueryPerfStats struct {
	Query                string  `json:"query"`
	Iterations           int     `json:"iterations"`
	SuccessfulIterations int     `json:"successful_iterations"`
	FailedIterations     int     `json:"failed_iterations"`
	AvgTimeMs            float64 `json:"avg_time_ms"`
	MinTimeMs            float64 `json:"min_time_ms"`
	MaxTimeMs            float64 `json:"max_time_ms"`
	TotalTimeMs          float64 `json:"total_time_ms"`
	AvgRowsReturned      float64 `json:"avg_rows_returned"`
}

// QueryPerformance executes a query repeatedly on one dedicated connection
// and reports timing statistics. Individual failures are counted, not
// fatal; an error is returned only when every iteration failed or the
// connection could not be established.
func (c *Client) QueryPerformance(ctx context.Context, query string, iterations int, args ...any) (QueryPerfStats, error) {
	if iterations < 1 {
		return QueryPerfStats{}, errors.Errorf("iterations must be >= 1, got %d", iterations)
	}

	conn, err := c.provider.Connect(ctx, "query_perf")
	if err != nil {
		return QueryPerfStats{}, errors.Wrap(err, "query performance connection")
	}
	defer conn.Close()

	stats := QueryPerfStats{Query: query, Iterations: iterations}
	var times []float64
	var totalRows int

	log.WithField("iterations", iterations).Info("running query performance test")

	for i := 0; i < iterations; i++ {
		start := time.Now()
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			stats.FailedIterations++
			log.WithError(err).WithField("iteration", i+1).Error("query iteration failed")
			continue
		}

		count := 0
		for rows.Next() {
			count++
		}
		scanErr := rows.Err()
		rows.Close()
		if scanErr != nil {
			stats.FailedIterations++
			log.WithError(scanErr).WithField("iteration", i+1).Error("query iteration failed")
			continue
		}

		times = append(times, time.Since(start).Seconds()*1000)
		totalRows += count
	}

	stats.SuccessfulIterations = len(times)
	if len(times) == 0 {
		return stats, errors.New("all query iterations failed")
	}

	min, max, sum := times[0], times[0], 0.0
	for _, t := range times {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
		sum += t
	}
	stats.AvgTimeMs = sum / float64(len(times))
	stats.MinTimeMs = min
	stats.MaxTimeMs = max
	stats.TotalTimeMs = sum
	stats.AvgRowsReturned = float64(totalRows) / float64(len(times))

	return stats, nil
}

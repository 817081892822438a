package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"dbload/internal/metrics"
	"dbload/internal/profile"
	"dbload/internal/stats"
)

// Runner fans a profile's operation budget out across a pool of workers,
// one dedicated connection each, and merges their records when they join.
type Runner struct {
	Profile  profile.Profile
	Provider Provider
	Live     *stats.Stats
	Updates  UpdateChan
}

func New(p profile.Profile, provider Provider, updates UpdateChan) *Runner {
	if updates == nil {
		// Avoid nil panics if not provided
		updates = make(UpdateChan, 10)
	}
	return &Runner{
		Profile:  p,
		Provider: provider,
		Live:     stats.New(),
		Updates:  updates,
	}
}

// Run executes the workload and returns every record produced, ordered by
// worker index and, within a worker, by execution order. The error return
// is reserved for misconfiguration: operation and connection failures are
// absorbed into the record stream (or dropped, for workers that never
// connect) so that one bad connection never aborts a run. On cancellation
// the records collected so far are still returned.
func (r *Runner) Run(ctx context.Context, op Executor) ([]metrics.Record, error) {
	if err := r.Profile.Validate(); err != nil {
		return nil, err
	}

	perWorker := r.Profile.PerWorkerOperations()
	workers := r.Profile.Connections

	log.WithFields(log.Fields{
		"profile":    r.Profile.Name,
		"workers":    workers,
		"per_worker": perWorker,
	}).Info("starting load run")

	tickCtx, stopTick := context.WithCancel(ctx)
	defer stopTick()
	r.startTickLoop(tickCtx, 200*time.Millisecond)

	buffers := make([][]metrics.Record, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			buffers[idx] = r.worker(ctx, idx, perWorker, op)
		}(i)
	}
	wg.Wait()

	var merged []metrics.Record
	for _, buf := range buffers {
		merged = append(merged, buf...)
	}

	log.WithFields(log.Fields{
		"profile": r.Profile.Name,
		"records": len(merged),
	}).Info("load run finished")

	return merged, nil
}

// worker runs count paced operations on its own connection. A connect
// failure yields zero records: the run continues without this worker's
// share, which shows up as a shortfall in the merged record count.
func (r *Runner) worker(ctx context.Context, idx, count int, op Executor) []metrics.Record {
	id := fmt.Sprintf("conn_%d", idx)

	conn, err := r.Provider.Connect(ctx, id)
	if err != nil {
		log.WithError(err).WithField("connection", id).Error("worker connect failed, contributing no records")
		return nil
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.WithError(cerr).WithField("connection", id).Error("error closing connection")
		}
	}()

	buf := make([]metrics.Record, 0, count)
	for i := 0; i < count; i++ {
		// Cancellation is cooperative: checked at iteration boundaries,
		// never mid-operation.
		select {
		case <-ctx.Done():
			return buf
		default:
		}

		rec := op(ctx, conn)
		buf = append(buf, rec)
		r.Live.Record(string(rec.Category), rec.Success, rec.Bytes, rec.End.Sub(rec.Start))

		if r.Profile.ThinkTime > 0 {
			timer := time.NewTimer(r.Profile.ThinkTime)
			select {
			case <-ctx.Done():
				timer.Stop()
				return buf
			case <-timer.C:
			}
		}
	}
	return buf
}

func (r *Runner) startTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sendUpdate()
			}
		}
	}()
}

func (r *Runner) sendUpdate() {
	s := Snapshot{
		Ops:     atomic.LoadUint64(&r.Live.Ops),
		Success: atomic.LoadUint64(&r.Live.Success),
		Fail:    atomic.LoadUint64(&r.Live.Fail),
		Bytes:   atomic.LoadUint64(&r.Live.Bytes),
		AvgMs:   r.Live.AvgMs(),
		P50Ms:   r.Live.P50Ms(),
		P95Ms:   r.Live.P95Ms(),
		P99Ms:   r.Live.P99Ms(),
		MaxMs:   r.Live.MaxMs(),
	}

	// Non-blocking send
	select {
	case r.Updates <- s:
	default:
		// Drop update if channel full, the consumer acts as backpressure
	}
}

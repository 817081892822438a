package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbload/internal/metrics"
	"dbload/internal/profile"
)

type stubConn struct {
	id     string
	closes *int32
}

func (c *stubConn) ID() string { return c.id }
func (c *stubConn) Close() error {
	atomic.AddInt32(c.closes, 1)
	return nil
}

type stubProvider struct {
	mu       sync.Mutex
	connects int
	closes   int32
	failIDs  map[string]bool
}

func (p *stubProvider) Connect(ctx context.Context, id string) (Conn, error) {
	p.mu.Lock()
	p.connects++
	p.mu.Unlock()
	if p.failIDs[id] {
		return nil, errors.New("listener refused connection")
	}
	return &stubConn{id: id, closes: &p.closes}, nil
}

func (p *stubProvider) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

func succeedingOp(opType string, bytes int64) Executor {
	return func(ctx context.Context, conn Conn) metrics.Record {
		rec := metrics.Begin(opType, conn.ID())
		return rec.Done(bytes)
	}
}

func TestRunProducesExactOperationCount(t *testing.T) {
	// connections=4, ops_per_sec=10, duration=10s -> 40 records, 10 per worker.
	p := profile.Custom("exact",
		profile.WithConnections(4),
		profile.WithOpsPerSecond(10),
		profile.WithDuration(10*time.Second),
		profile.WithThinkTime(0),
	)
	provider := &stubProvider{}
	r := New(p, provider, nil)

	records, err := r.Run(context.Background(), succeedingOp("large_write", 1024))
	require.NoError(t, err)
	require.Len(t, records, 40)
	assert.Equal(t, 4, provider.connectCount())
	assert.Equal(t, int32(4), atomic.LoadInt32(&provider.closes))

	res := metrics.NewResults(p)
	res.AddAll(records)
	s, err := res.Summary()
	require.NoError(t, err)
	assert.Equal(t, 40, s.TotalOperations)
	assert.Equal(t, 100.0, s.SuccessRate)
	// "large_write" carries no read category: no read breakdown.
	assert.Nil(t, s.Read)
	require.NotNil(t, s.Write)
	assert.Equal(t, 40, s.Write.Operations)
}

func TestRunFloorDivisionDropsRemainder(t *testing.T) {
	// total=10 across 3 workers: 3 each, the 10th operation is dropped.
	p := profile.Custom("remainder",
		profile.WithConnections(3),
		profile.WithOpsPerSecond(10),
		profile.WithDuration(time.Second),
		profile.WithThinkTime(0),
	)
	r := New(p, &stubProvider{}, nil)

	records, err := r.Run(context.Background(), succeedingOp("large_write", 0))
	require.NoError(t, err)
	assert.Len(t, records, 9)
}

func TestRunRecordsOrderedByWorker(t *testing.T) {
	p := profile.Custom("order",
		profile.WithConnections(2),
		profile.WithOpsPerSecond(4),
		profile.WithDuration(time.Second),
		profile.WithThinkTime(0),
	)
	r := New(p, &stubProvider{}, nil)

	records, err := r.Run(context.Background(), succeedingOp("large_read", 10))
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "conn_0", records[0].ConnID)
	assert.Equal(t, "conn_0", records[1].ConnID)
	assert.Equal(t, "conn_1", records[2].ConnID)
	assert.Equal(t, "conn_1", records[3].ConnID)
}

func TestRunOperationFailuresDoNotStopWorkers(t *testing.T) {
	// connections=2, ops_per_sec=5, duration=4s -> 20 total, 10 per worker.
	// Every 5th call on a worker fails: 2 failures per worker, 4 overall.
	p := profile.Custom("failures",
		profile.WithConnections(2),
		profile.WithOpsPerSecond(5),
		profile.WithDuration(4*time.Second),
		profile.WithThinkTime(0),
	)
	r := New(p, &stubProvider{}, nil)

	var counters sync.Map
	op := func(ctx context.Context, conn Conn) metrics.Record {
		rec := metrics.Begin("large_write", conn.ID())
		v, _ := counters.LoadOrStore(conn.ID(), new(int32))
		n := atomic.AddInt32(v.(*int32), 1)
		if n%5 == 0 {
			return rec.Fail(errors.New("backend rejected write"))
		}
		return rec.Done(256)
	}

	records, err := r.Run(context.Background(), op)
	require.NoError(t, err)
	require.Len(t, records, 20)

	failed := 0
	for _, rec := range records {
		if !rec.Success {
			failed++
			assert.NotEmpty(t, rec.Error)
		}
	}
	assert.Equal(t, 20/5, failed)

	res := metrics.NewResults(p)
	res.AddAll(records)
	s, err := res.Summary()
	require.NoError(t, err)
	assert.Less(t, s.SuccessRate, 100.0)
	assert.Greater(t, s.SuccessRate, 0.0)
}

func TestRunConnectFailureDropsWorkerSilently(t *testing.T) {
	p := profile.Custom("partial connect",
		profile.WithConnections(3),
		profile.WithOpsPerSecond(6),
		profile.WithDuration(time.Second),
		profile.WithThinkTime(0),
	)
	provider := &stubProvider{failIDs: map[string]bool{"conn_1": true}}
	r := New(p, provider, nil)

	records, err := r.Run(context.Background(), succeedingOp("large_write", 64))
	// The run does not abort; the failed worker's share (2 records) is
	// simply missing from the merge. Callers cannot distinguish this from
	// a smaller budget without comparing against the profile.
	require.NoError(t, err)
	assert.Len(t, records, 4)
	for _, rec := range records {
		assert.NotEqual(t, "conn_1", rec.ConnID)
	}
}

func TestRunCancellationReturnsPartialResults(t *testing.T) {
	p := profile.Custom("cancel",
		profile.WithConnections(2),
		profile.WithOpsPerSecond(1000),
		profile.WithDuration(60*time.Second),
		profile.WithThinkTime(500*time.Millisecond),
	)
	provider := &stubProvider{}
	r := New(p, provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	records, err := r.Run(ctx, succeedingOp("large_write", 128))
	elapsed := time.Since(start)

	require.NoError(t, err)
	// Each worker completes its in-flight iteration, observes the flag
	// within one think interval, and exits with its buffer intact.
	assert.NotEmpty(t, records)
	assert.Less(t, elapsed, 2*p.ThinkTime+time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.closes))
}

func TestRunInvalidProfileFailsFast(t *testing.T) {
	p := profile.Custom("bad", profile.WithConnections(0))
	provider := &stubProvider{}
	r := New(p, provider, nil)

	_, err := r.Run(context.Background(), succeedingOp("large_write", 0))
	require.Error(t, err)
	assert.Zero(t, provider.connectCount(), "no worker may be spawned for an invalid profile")
}

func TestRunPublishesSnapshots(t *testing.T) {
	p := profile.Custom("snapshots",
		profile.WithConnections(2),
		profile.WithOpsPerSecond(50),
		profile.WithDuration(time.Second),
		profile.WithThinkTime(20*time.Millisecond),
	)
	updates := make(UpdateChan, 100)
	r := New(p, &stubProvider{}, updates)

	records, err := r.Run(context.Background(), succeedingOp("large_read", 512))
	require.NoError(t, err)
	require.Len(t, records, 50)

	select {
	case snap := <-updates:
		assert.LessOrEqual(t, snap.Ops, uint64(50))
	default:
		t.Fatal("expected at least one snapshot on the updates channel")
	}
	assert.Equal(t, uint64(50), r.Live.Ops)
	assert.Equal(t, uint64(50), r.Live.Success)
	assert.Greater(t, r.Live.AvgMs(), 0.0)
}

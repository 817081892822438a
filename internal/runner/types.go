package runner

import (
	"context"

	"dbload/internal/metrics"
)

// Conn is one dedicated backend connection, exclusively owned by a single
// worker for that worker's lifetime.
type Conn interface {
	ID() string
	Close() error
}

// Provider establishes worker connections. The engine never constructs
// connections itself; it only scopes their lifetime.
type Provider interface {
	Connect(ctx context.Context, id string) (Conn, error)
}

// Executor performs one unit of work on a connection and returns its
// finalized record. Failures are expressed in the record, not as panics.
type Executor func(ctx context.Context, conn Conn) metrics.Record

// Snapshot is a cheap copy of the live counters, pushed over the updates
// channel for progress rendering.
type Snapshot struct {
	Ops     uint64
	Success uint64
	Fail    uint64
	Bytes   uint64

	AvgMs float64
	P50Ms float64
	P95Ms float64
	P99Ms float64
	MaxMs float64
}

// UpdateChan carries snapshots from the runner's tick loop.
type UpdateChan chan Snapshot

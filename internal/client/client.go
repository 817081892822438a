package client

import (
	"context"
	"database/sql"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"dbload/internal/db"
	"dbload/internal/metrics"
	"dbload/internal/profile"
	"dbload/internal/runner"
	"dbload/internal/stats"
)

// Client composes the workload engine, the connection provider and the
// read/write executors into named test scenarios.
type Client struct {
	provider *db.Provider
	profile  profile.Profile
	prepared bool
	updates  runner.UpdateChan
	live     *stats.Stats

	stmtMu sync.Mutex
	stmts  map[stmtKey]*sql.Stmt
}

// Prepared statements are cached per connection: a statement dies with its
// connection, so the key carries both.
type stmtKey struct {
	conn  *db.Conn
	query string
}

type Option func(*Client)

// WithPreparedStatements toggles prepared-statement execution (on by
// default; direct text execution exists for comparison runs).
func WithPreparedStatements(on bool) Option {
	return func(c *Client) { c.prepared = on }
}

// WithUpdates wires a snapshot channel through to the runner for progress
// rendering.
func WithUpdates(ch runner.UpdateChan) Option {
	return func(c *Client) { c.updates = ch }
}

// WithLiveStats makes every scenario record into a caller-owned live view,
// so a metrics endpoint can observe the run in flight.
func WithLiveStats(s *stats.Stats) Option {
	return func(c *Client) { c.live = s }
}

func New(provider *db.Provider, p profile.Profile, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		profile:  p,
		prepared: true,
		stmts:    make(map[stmtKey]*sql.Stmt),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Profile() profile.Profile { return c.profile }

// runnerProvider adapts the concrete provider to the engine's interface.
type runnerProvider struct {
	p *db.Provider
}

func (rp runnerProvider) Connect(ctx context.Context, id string) (runner.Conn, error) {
	conn, err := rp.p.Connect(ctx, id)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// run executes one scenario through the engine and aggregates its records.
func (c *Client) run(ctx context.Context, name string, exec runner.Executor) (*metrics.Results, error) {
	log.WithFields(log.Fields{
		"scenario": name,
		"profile":  c.profile.Name,
	}).Info("starting scenario")

	r := runner.New(c.profile, runnerProvider{c.provider}, c.updates)
	if c.live != nil {
		r.Live = c.live
	}
	records, err := r.Run(ctx, exec)
	if err != nil {
		return nil, errors.Wrapf(err, "%s scenario", name)
	}

	results := metrics.NewResults(c.profile)
	results.AddAll(records)

	log.WithFields(log.Fields{
		"scenario":   name,
		"operations": len(records),
	}).Info("scenario completed")
	return results, nil
}

// RunWriteTest drives the profile's full operation budget as large writes.
func (c *Client) RunWriteTest(ctx context.Context) (*metrics.Results, error) {
	return c.run(ctx, "write", c.WriteExecutor())
}

// RunReadTest drives the profile's full operation budget as large reads.
func (c *Client) RunReadTest(ctx context.Context) (*metrics.Results, error) {
	return c.run(ctx, "read", c.ReadExecutor())
}

// RunMixedTest drives a read/write mix; readRatio is the probability that
// any single operation is a read.
func (c *Client) RunMixedTest(ctx context.Context, readRatio float64) (*metrics.Results, error) {
	return c.run(ctx, "mixed", c.MixedExecutor(readRatio))
}

// ScenarioResult pairs one scenario of a full pass with its results.
type ScenarioResult struct {
	Scenario string
	Results  *metrics.Results
}

// RunAllTests runs the write, read and mixed scenarios back to back on the
// client's profile, the full acceptance pass of the suite. Writes go first
// so the read scenarios have data to fetch. On failure the scenarios
// completed so far are still returned.
func (c *Client) RunAllTests(ctx context.Context, readRatio float64) ([]ScenarioResult, error) {
	scenarios := []struct {
		name string
		run  func(context.Context) (*metrics.Results, error)
	}{
		{"write", c.RunWriteTest},
		{"read", c.RunReadTest},
		{"mixed", func(ctx context.Context) (*metrics.Results, error) {
			return c.RunMixedTest(ctx, readRatio)
		}},
	}

	out := make([]ScenarioResult, 0, len(scenarios))
	for _, s := range scenarios {
		results, err := s.run(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, ScenarioResult{Scenario: s.name, Results: results})
	}
	return out, nil
}

// RunBatchTest performs the given number of batch writes on one dedicated
// connection, outside the paced engine, mirroring a bulk-load client.
func (c *Client) RunBatchTest(ctx context.Context, batches, batchSize int) (*metrics.Results, error) {
	if batches < 1 || batchSize < 1 {
		return nil, errors.Errorf("batch test requires positive batches and batch size, got %d x %d", batches, batchSize)
	}

	conn, err := c.provider.Connect(ctx, "batch_test")
	if err != nil {
		return nil, errors.Wrap(err, "batch test connection")
	}
	defer conn.Close()

	results := metrics.NewResults(c.profile)
	for i := 0; i < batches; i++ {
		results.Add(c.batchWriteOnce(ctx, conn, batchSize, c.profile.DataSizeKB))
	}
	return results, nil
}

// ComparePreparedVsDirect runs the identical single-connection write
// workload twice, once with prepared statements and once with direct text,
// and returns both result sets keyed "prepared" and "direct".
func (c *Client) ComparePreparedVsDirect(ctx context.Context, numOperations, dataSizeKB int) (map[string]*metrics.Results, error) {
	out := make(map[string]*metrics.Results, 2)

	variants := []struct {
		key      string
		connID   string
		prepared bool
	}{
		{"prepared", "prepared_test", true},
		{"direct", "direct_test", false},
	}

	for _, v := range variants {
		log.WithField("variant", v.key).Info("running statement comparison workload")

		conn, err := c.provider.Connect(ctx, v.connID)
		if err != nil {
			return nil, errors.Wrapf(err, "%s comparison connection", v.key)
		}

		results := metrics.NewResults(c.profile)
		for i := 0; i < numOperations; i++ {
			results.Add(c.writeOnce(ctx, conn, dataSizeKB, v.prepared))
		}
		conn.Close()
		out[v.key] = results
	}

	return out, nil
}

// SetupTables drops and recreates the test schema. Drop failures are
// ignored so a fresh database sets up cleanly.
func (c *Client) SetupTables(ctx context.Context) error {
	conn, err := c.provider.Connect(ctx, "setup")
	if err != nil {
		return errors.Wrap(err, "setup connection")
	}
	defer conn.Close()

	for _, stmt := range dropStatements() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			log.WithError(err).Debug("drop skipped, table likely absent")
		}
	}

	creates, err := createStatements(c.provider.Config().Driver)
	if err != nil {
		return err
	}
	for _, stmt := range creates {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "creating test tables")
		}
	}

	log.Info("test tables created")
	return nil
}

// stmt returns the cached prepared statement for (conn, query), preparing
// it on first use.
func (c *Client) stmt(ctx context.Context, conn *db.Conn, query string) (*sql.Stmt, error) {
	key := stmtKey{conn, query}

	c.stmtMu.Lock()
	s, ok := c.stmts[key]
	c.stmtMu.Unlock()
	if ok {
		return s, nil
	}

	s, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	c.stmtMu.Lock()
	c.stmts[key] = s
	c.stmtMu.Unlock()
	return s, nil
}

func (c *Client) exec(ctx context.Context, conn *db.Conn, prepared bool, query string, args ...any) error {
	if prepared {
		s, err := c.stmt(ctx, conn, query)
		if err != nil {
			return err
		}
		_, err = s.ExecContext(ctx, args...)
		return err
	}
	_, err := conn.ExecContext(ctx, query, args...)
	return err
}

func (c *Client) queryRow(ctx context.Context, conn *db.Conn, prepared bool, query string, dest any) error {
	if prepared {
		s, err := c.stmt(ctx, conn, query)
		if err != nil {
			return err
		}
		return s.QueryRowContext(ctx).Scan(dest)
	}
	return conn.QueryRowContext(ctx, query).Scan(dest)
}

// writeOnce inserts one generated payload and finalizes its record.
func (c *Client) writeOnce(ctx context.Context, conn *db.Conn, sizeKB int, prepared bool) metrics.Record {
	rec := metrics.Begin("large_write", conn.ID())
	payload := generatePayload(sizeKB)
	query := insertPayloadSQL(c.provider.Config().Driver)

	if err := c.exec(ctx, conn, prepared, query, payload); err != nil {
		log.WithError(err).Debug("large write failed")
		return rec.Fail(err)
	}
	return rec.Done(int64(len(payload)))
}

// readOnce fetches one arbitrary stored payload and measures its size.
func (c *Client) readOnce(ctx context.Context, conn *db.Conn, prepared bool) metrics.Record {
	rec := metrics.Begin("large_read", conn.ID())
	query := selectRandomPayloadSQL(c.provider.Config().Driver)

	var data sql.NullString
	err := c.queryRow(ctx, conn, prepared, query, &data)
	switch {
	case err == sql.ErrNoRows:
		return rec.Fail(errors.New("no data found to read"))
	case err != nil:
		log.WithError(err).Debug("large read failed")
		return rec.Fail(err)
	}

	var n int64
	if data.Valid {
		n = int64(len(data.String))
	}
	return rec.Done(n)
}

// batchWriteOnce inserts batchSize payloads in one transaction.
func (c *Client) batchWriteOnce(ctx context.Context, conn *db.Conn, batchSize, sizeKB int) metrics.Record {
	rec := metrics.Begin("batch_write", conn.ID())
	query := insertPayloadSQL(c.provider.Config().Driver)

	var total int64
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return rec.Fail(err)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return rec.Fail(err)
	}

	for i := 0; i < batchSize; i++ {
		payload := generatePayload(sizeKB)
		if _, err := stmt.ExecContext(ctx, payload); err != nil {
			stmt.Close()
			tx.Rollback()
			return rec.Fail(err)
		}
		total += int64(len(payload))
	}
	stmt.Close()

	if err := tx.Commit(); err != nil {
		return rec.Fail(err)
	}
	return rec.Done(total)
}

// WriteExecutor returns the engine callback for large writes.
func (c *Client) WriteExecutor() runner.Executor {
	return func(ctx context.Context, conn runner.Conn) metrics.Record {
		return c.writeOnce(ctx, conn.(*db.Conn), c.profile.DataSizeKB, c.prepared)
	}
}

// ReadExecutor returns the engine callback for large reads.
func (c *Client) ReadExecutor() runner.Executor {
	return func(ctx context.Context, conn runner.Conn) metrics.Record {
		return c.readOnce(ctx, conn.(*db.Conn), c.prepared)
	}
}

// MixedExecutor returns an engine callback that picks read or write per
// invocation with a uniform draw against readRatio.
func (c *Client) MixedExecutor(readRatio float64) runner.Executor {
	return func(ctx context.Context, conn runner.Conn) metrics.Record {
		dc := conn.(*db.Conn)
		if rand.Float64() < readRatio {
			return c.readOnce(ctx, dc, c.prepared)
		}
		return c.writeOnce(ctx, dc, c.profile.DataSizeKB, c.prepared)
	}
}

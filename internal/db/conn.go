package db

import (
	"context"
	"database/sql"

	log "github.com/sirupsen/logrus"
)

// Conn is one pinned database connection, exclusively owned by a single
// worker. It satisfies the workload engine's connection contract while
// exposing the SQL surface the executors need.
type Conn struct {
	id   string
	conn *sql.Conn
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Close() error {
	err := c.conn.Close()
	if err != nil {
		log.WithError(err).WithField("connection", c.id).Error("error closing connection")
		return err
	}
	log.WithField("connection", c.id).Debug("connection closed")
	return nil
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *Conn) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, nil)
}

// PrepareContext creates a prepared statement bound to this connection.
func (c *Conn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return c.conn.PrepareContext(ctx, query)
}

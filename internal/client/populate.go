package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PopulateStats reports the outcome of a reference-data bulk load.
type PopulateStats struct {
	RowsInserted  int           `json:"rows_inserted"`
	Elapsed       time.Duration `json:"elapsed"`
	RowsPerSecond float64       `json:"rows_per_second"`
	Batches       int           `json:"batches"`
	BatchSize     int           `json:"batch_size"`
}

// Populate bulk-loads the reference table with generated rows, batchSize
// rows per transaction, for the query-performance helpers to chew on.
func (c *Client) Populate(ctx context.Context, rows, batchSize int) (PopulateStats, error) {
	if rows < 1 || batchSize < 1 {
		return PopulateStats{}, errors.Errorf("populate requires positive rows and batch size, got %d x %d", rows, batchSize)
	}

	conn, err := c.provider.Connect(ctx, "populate")
	if err != nil {
		return PopulateStats{}, errors.Wrap(err, "populate connection")
	}
	defer conn.Close()

	query := insertReferenceSQL(c.provider.Config().Driver)
	batches := (rows + batchSize - 1) / batchSize
	start := time.Now()
	inserted := 0

	log.WithFields(log.Fields{"rows": rows, "batch_size": batchSize}).Info("populating reference data")

	for b := 0; b < batches; b++ {
		count := batchSize
		if remaining := rows - inserted; remaining < count {
			count = remaining
		}

		tx, err := conn.BeginTx(ctx)
		if err != nil {
			return PopulateStats{}, errors.Wrap(err, "populate transaction")
		}
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			tx.Rollback()
			return PopulateStats{}, errors.Wrap(err, "populate statement")
		}

		for i := 0; i < count; i++ {
			row := generateReferenceRow(inserted + i)
			if _, err := stmt.ExecContext(ctx, row.Label, row.Status, row.Category, row.Price, row.Quantity, row.Payload); err != nil {
				stmt.Close()
				tx.Rollback()
				return PopulateStats{}, errors.Wrapf(err, "populate batch %d", b+1)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return PopulateStats{}, errors.Wrapf(err, "committing populate batch %d", b+1)
		}
		inserted += count

		if (b+1)%10 == 0 || b == batches-1 {
			elapsed := time.Since(start)
			rate := 0.0
			if elapsed > 0 {
				rate = float64(inserted) / elapsed.Seconds()
			}
			log.WithFields(log.Fields{
				"inserted": inserted,
				"total":    rows,
				"rows_sec": int(rate),
			}).Info("populate progress")
		}
	}

	elapsed := time.Since(start)
	stats := PopulateStats{
		RowsInserted: inserted,
		Elapsed:      elapsed,
		Batches:      batches,
		BatchSize:    batchSize,
	}
	if elapsed > 0 {
		stats.RowsPerSecond = float64(inserted) / elapsed.Seconds()
	}
	return stats, nil
}

package client

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"dbload/internal/db"
)

// Test schema: a payload table the write/read executors hammer, a metrics
// table for out-of-band duration rows, and a reference table for the
// query-performance helpers.
const (
	tablePayload   = "test_large_data"
	tableMetrics   = "test_metrics"
	tableReference = "test_reference"
)

// placeholder renders the dialect's bind-parameter marker for position n
// (1-based).
func placeholder(driver string, n int) string {
	if driver == db.DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// placeholders renders markers 1..n joined by commas.
func placeholders(driver string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = placeholder(driver, i+1)
	}
	return strings.Join(parts, ", ")
}

// randomOrder is the dialect's random-sort expression, used to pick an
// arbitrary stored payload for read operations.
func randomOrder(driver string) string {
	if driver == db.DriverMySQL {
		return "RAND()"
	}
	return "RANDOM()"
}

func autoIncrementKey(driver string) (string, error) {
	switch driver {
	case db.DriverPostgres:
		return "id BIGSERIAL PRIMARY KEY", nil
	case db.DriverMySQL:
		return "id BIGINT AUTO_INCREMENT PRIMARY KEY", nil
	case db.DriverSQLite:
		return "id INTEGER PRIMARY KEY AUTOINCREMENT", nil
	default:
		return "", errors.Errorf("unsupported driver %q", driver)
	}
}

func textType(driver string) string {
	if driver == db.DriverMySQL {
		return "LONGTEXT"
	}
	return "TEXT"
}

// dropStatements removes the test tables. Executed best-effort: a missing
// table is not an error.
func dropStatements() []string {
	return []string{
		"DROP TABLE " + tablePayload,
		"DROP TABLE " + tableMetrics,
		"DROP TABLE " + tableReference,
	}
}

// createStatements builds the dialect-specific DDL for the test schema.
func createStatements(driver string) ([]string, error) {
	key, err := autoIncrementKey(driver)
	if err != nil {
		return nil, err
	}
	text := textType(driver)

	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
			%s,
			data_chunk %s,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, tablePayload, key, text),

		fmt.Sprintf(`CREATE TABLE %s (
			%s,
			operation_type VARCHAR(50),
			duration_ms DOUBLE PRECISION,
			success SMALLINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, tableMetrics, key),

		fmt.Sprintf(`CREATE TABLE %s (
			%s,
			label VARCHAR(50),
			status VARCHAR(20),
			category VARCHAR(50),
			price DECIMAL(12,2),
			quantity INTEGER,
			payload %s,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, tableReference, key, text),

		fmt.Sprintf("CREATE INDEX idx_reference_status ON %s (status)", tableReference),
		fmt.Sprintf("CREATE INDEX idx_reference_category ON %s (category)", tableReference),
		fmt.Sprintf("CREATE INDEX idx_reference_price ON %s (price)", tableReference),
	}, nil
}

func insertPayloadSQL(driver string) string {
	return fmt.Sprintf("INSERT INTO %s (data_chunk) VALUES (%s)",
		tablePayload, placeholder(driver, 1))
}

func selectRandomPayloadSQL(driver string) string {
	return fmt.Sprintf("SELECT data_chunk FROM %s ORDER BY %s LIMIT 1",
		tablePayload, randomOrder(driver))
}

func insertReferenceSQL(driver string) string {
	return fmt.Sprintf("INSERT INTO %s (label, status, category, price, quantity, payload) VALUES (%s)",
		tableReference, placeholders(driver, 6))
}

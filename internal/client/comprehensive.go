package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"dbload/internal/db"
)

// QueryPatternResult is the outcome of one pattern in the query battery.
type QueryPatternResult struct {
	Success   bool    `json:"success"`
	Rows      int     `json:"rows_returned"`
	ElapsedMs float64 `json:"elapsed_time_ms"`
	Query     string  `json:"query"`
	Error     string  `json:"error,omitempty"`
}

// Query pattern groups accepted by ComprehensiveQueries.
const (
	PatternsAll             = "all"
	PatternsSelectAll       = "select_all"
	PatternsWhereIndexed    = "where_indexed"
	PatternsWhereNonIndexed = "where_non_indexed"
	PatternsAggregate       = "aggregate"
	PatternsGroupBy         = "group_by"
	PatternsOrderBy         = "order_by"
	PatternsComplex         = "complex"
)

// queryPatterns builds the named SQL battery for one group against the
// reference table. The indexed group hits the status/category/price indexes;
// the non-indexed group deliberately filters on unindexed columns so the two
// can be compared.
func queryPatterns(queryType string) (map[string]string, error) {
	patterns := map[string]string{}
	matched := queryType == PatternsAll

	if queryType == PatternsAll || queryType == PatternsSelectAll {
		matched = true
		patterns["select_all"] = fmt.Sprintf(
			"SELECT * FROM %s LIMIT 100", tableReference)
	}

	if queryType == PatternsAll || queryType == PatternsWhereIndexed {
		matched = true
		patterns["where_status"] = fmt.Sprintf(
			"SELECT * FROM %s WHERE status = 'active' LIMIT 100", tableReference)
		patterns["where_category"] = fmt.Sprintf(
			"SELECT * FROM %s WHERE category = 'electronics' LIMIT 100", tableReference)
		patterns["where_price_range"] = fmt.Sprintf(
			"SELECT * FROM %s WHERE price BETWEEN 100 AND 500 LIMIT 100", tableReference)
	}

	if queryType == PatternsAll || queryType == PatternsWhereNonIndexed {
		matched = true
		patterns["where_quantity"] = fmt.Sprintf(
			"SELECT * FROM %s WHERE quantity > 5000 LIMIT 100", tableReference)
		patterns["where_payload_length"] = fmt.Sprintf(
			"SELECT * FROM %s WHERE LENGTH(payload) > 200 LIMIT 100", tableReference)
	}

	if queryType == PatternsAll || queryType == PatternsAggregate {
		matched = true
		patterns["count_all"] = fmt.Sprintf(
			"SELECT COUNT(*) AS total_rows FROM %s", tableReference)
		patterns["avg_price"] = fmt.Sprintf(
			"SELECT AVG(price) AS avg_price FROM %s", tableReference)
		patterns["sum_quantity"] = fmt.Sprintf(
			"SELECT SUM(quantity) AS total_quantity FROM %s", tableReference)
		patterns["min_max_price"] = fmt.Sprintf(
			"SELECT MIN(price) AS min_price, MAX(price) AS max_price FROM %s", tableReference)
	}

	if queryType == PatternsAll || queryType == PatternsGroupBy {
		matched = true
		patterns["group_by_status"] = fmt.Sprintf(
			"SELECT status, COUNT(*) AS cnt, AVG(price) AS avg_price FROM %s GROUP BY status", tableReference)
		patterns["group_by_category"] = fmt.Sprintf(
			"SELECT category, COUNT(*) AS cnt, SUM(quantity) AS total_qty FROM %s GROUP BY category", tableReference)
		patterns["group_by_multiple"] = fmt.Sprintf(
			"SELECT status, category, COUNT(*) AS cnt, AVG(price) AS avg_price FROM %s GROUP BY status, category ORDER BY cnt DESC", tableReference)
	}

	if queryType == PatternsAll || queryType == PatternsOrderBy {
		matched = true
		patterns["order_by_price"] = fmt.Sprintf(
			"SELECT * FROM %s ORDER BY price DESC LIMIT 100", tableReference)
		patterns["order_by_created"] = fmt.Sprintf(
			"SELECT * FROM %s ORDER BY created_at DESC LIMIT 100", tableReference)
	}

	if queryType == PatternsAll || queryType == PatternsComplex {
		matched = true
		patterns["complex_where"] = fmt.Sprintf(
			"SELECT * FROM %s WHERE status IN ('active', 'pending') AND category = 'electronics' AND price > 100 ORDER BY price DESC LIMIT 50", tableReference)
		patterns["having_clause"] = fmt.Sprintf(
			"SELECT category, status, COUNT(*) AS cnt, AVG(price) AS avg_price FROM %s GROUP BY category, status HAVING COUNT(*) > 10 AND AVG(price) > 100 ORDER BY cnt DESC", tableReference)
	}

	if !matched {
		return nil, errors.Errorf("unknown query pattern group %q", queryType)
	}
	return patterns, nil
}

// ComprehensiveQueries runs the named query-pattern battery against the
// reference table on one dedicated connection, reporting per-pattern row
// counts and latency. Individual pattern failures are captured in the
// results, not returned as errors.
func (c *Client) ComprehensiveQueries(ctx context.Context, queryType string) (map[string]QueryPatternResult, error) {
	patterns, err := queryPatterns(queryType)
	if err != nil {
		return nil, err
	}

	conn, err := c.provider.Connect(ctx, "comprehensive")
	if err != nil {
		return nil, errors.Wrap(err, "comprehensive queries connection")
	}
	defer conn.Close()

	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]QueryPatternResult, len(patterns))
	for _, name := range names {
		query := patterns[name]
		start := time.Now()

		count, err := countRows(ctx, conn, query)
		elapsed := time.Since(start).Seconds() * 1000

		if err != nil {
			results[name] = QueryPatternResult{
				Success:   false,
				ElapsedMs: elapsed,
				Query:     query,
				Error:     err.Error(),
			}
			log.WithError(err).WithField("pattern", name).Error("query pattern failed")
			continue
		}

		results[name] = QueryPatternResult{
			Success:   true,
			Rows:      count,
			ElapsedMs: elapsed,
			Query:     query,
		}
		log.WithFields(log.Fields{
			"pattern": name,
			"rows":    count,
			"ms":      fmt.Sprintf("%.2f", elapsed),
		}).Info("query pattern completed")
	}

	return results, nil
}

// countRows executes a query and drains its result set.
func countRows(ctx context.Context, conn *db.Conn, query string) (int, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	return count, rows.Err()
}

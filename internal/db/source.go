package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johndauphine/pg-table-sync/internal/logging"
)

// Source reads the synced table from the source database. It never writes.
type Source struct {
	pool        *Pool
	table       string
	orderingCol string
	info        *TableInfo
}

// NewSource introspects the source table and validates that it carries the
// ordering column and a primary key (required for upserts).
func NewSource(ctx context.Context, pool *Pool, table, orderingCol string) (*Source, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(orderingCol); err != nil {
		return nil, err
	}

	info, err := introspectTable(ctx, pool.Pool(), table)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("table %q does not exist in source database %s", table, pool.Database())
	}
	if !info.HasColumn(orderingCol) {
		return nil, fmt.Errorf("ordering column %q does not exist in source table %q", orderingCol, table)
	}
	if len(info.PrimaryKey()) == 0 {
		return nil, fmt.Errorf("table %q has no primary key, upserts need one", table)
	}

	return &Source{pool: pool, table: table, orderingCol: orderingCol, info: info}, nil
}

// Info returns the introspected table layout.
func (s *Source) Info() *TableInfo {
	return s.info
}

// MinUpdated returns the smallest ordering-column value in the source table.
// ok is false when the table is empty.
func (s *Source) MinUpdated(ctx context.Context) (int64, bool, error) {
	return s.scanBound(ctx, "MIN")
}

// MaxUpdated returns the largest ordering-column value in the source table.
// ok is false when the table is empty.
func (s *Source) MaxUpdated(ctx context.Context) (int64, bool, error) {
	return s.scanBound(ctx, "MAX")
}

func (s *Source) scanBound(ctx context.Context, agg string) (int64, bool, error) {
	query := fmt.Sprintf("SELECT %s(%s) FROM %s",
		agg, QuoteIdentifier(s.orderingCol), QuoteIdentifier(s.table))

	var value *int64
	if err := s.pool.Pool().QueryRow(ctx, query).Scan(&value); err != nil {
		return 0, false, fmt.Errorf("querying %s(%s): %w", agg, s.orderingCol, err)
	}
	if value == nil {
		return 0, false, nil
	}
	return *value, true, nil
}

// EstimateRows returns the planner's row estimate for the half-open range
// [lower, upper). It reads Plan Rows from EXPLAIN (FORMAT JSON) instead of
// running COUNT(*), which would scan hundreds of millions of rows.
func (s *Source) EstimateRows(ctx context.Context, lower, upper int64) (int64, error) {
	query := fmt.Sprintf(
		"EXPLAIN (FORMAT JSON) SELECT %s FROM %s WHERE %s >= $1 AND %s < $2",
		QuoteIdentifier(s.orderingCol), QuoteIdentifier(s.table),
		QuoteIdentifier(s.orderingCol), QuoteIdentifier(s.orderingCol))

	var plan []byte
	if err := s.pool.Pool().QueryRow(ctx, query, lower, upper).Scan(&plan); err != nil {
		return 0, fmt.Errorf("explaining range estimate: %w", err)
	}

	rows, err := parsePlanRows(plan)
	if err != nil {
		return 0, fmt.Errorf("parsing plan estimate: %w", err)
	}
	logging.Debug("Planner estimates %d rows in [%d, %d)", rows, lower, upper)
	return rows, nil
}

// parsePlanRows extracts the top-level Plan Rows value from EXPLAIN
// (FORMAT JSON) output.
func parsePlanRows(plan []byte) (int64, error) {
	var root []struct {
		Plan struct {
			PlanRows int64 `json:"Plan Rows"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal(plan, &root); err != nil {
		return 0, err
	}
	if len(root) == 0 {
		return 0, fmt.Errorf("empty plan output")
	}
	return root[0].Plan.PlanRows, nil
}

// WindowBoundaries returns ordering-column values at windowSize row
// intervals within [lower, upper), ascending. Rows are ranked newest-first
// and only the values at rank % windowSize = 1 are transferred, so the query
// ships O(rows/windowSize) values rather than the rows themselves.
func (s *Source) WindowBoundaries(ctx context.Context, lower, upper int64, windowSize int) ([]int64, error) {
	ord := QuoteIdentifier(s.orderingCol)
	query := fmt.Sprintf(`
		SELECT val FROM (
			SELECT %s AS val, ROW_NUMBER() OVER (ORDER BY %s DESC) AS rn
			FROM %s
			WHERE %s >= $1 AND %s < $2
		) ranked
	`, ord, ord, QuoteIdentifier(s.table), ord, ord)

	args := []any{lower, upper}
	if windowSize > 1 {
		query += " WHERE rn % $3 = 1"
		args = append(args, windowSize)
	}
	query += " ORDER BY val ASC"

	rows, err := s.pool.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying window boundaries: %w", err)
	}
	defer rows.Close()

	var boundaries []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning boundary: %w", err)
		}
		boundaries = append(boundaries, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading boundaries: %w", err)
	}
	return boundaries, nil
}

// FetchChunk returns up to limit rows with ordering-column values in
// [start, end), ascending, skipping offset rows. The ascending order is what
// lets the destination apply each chunk so that newer rows win.
func (s *Source) FetchChunk(ctx context.Context, start, end int64, limit, offset int) ([][]any, error) {
	cols := make([]string, len(s.info.Columns))
	for i, c := range s.info.Columns {
		cols[i] = QuoteIdentifier(c.Name)
	}
	ord := QuoteIdentifier(s.orderingCol)

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s >= $1 AND %s < $2
		ORDER BY %s ASC
		LIMIT $3 OFFSET $4
	`, strings.Join(cols, ", "), QuoteIdentifier(s.table), ord, ord, ord)

	rows, err := s.pool.Pool().Query(ctx, query, start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetching chunk [%d, %d) offset %d: %w", start, end, offset, err)
	}
	defer rows.Close()

	var chunk [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		chunk = append(chunk, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk [%d, %d): %w", start, end, err)
	}
	return chunk, nil
}

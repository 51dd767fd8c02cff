package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/johndauphine/pg-table-sync/internal/logging"
)

// Destination writes the synced table in the destination database. It is the
// only thing that mutates destination state.
type Destination struct {
	pool        *Pool
	table       string
	orderingCol string
	info        *TableInfo
	upsertSQL   string
}

// NewDestination ensures the destination table exists with the source's
// column layout (creating it when absent, a no-op otherwise) and verifies
// the layouts match.
func NewDestination(ctx context.Context, pool *Pool, srcInfo *TableInfo, orderingCol string) (*Destination, error) {
	info, err := introspectTable(ctx, pool.Pool(), srcInfo.Name)
	if err != nil {
		return nil, err
	}

	if info == nil {
		ddl := BuildCreateTable(srcInfo)
		logging.Info("Destination table %q absent, creating it", srcInfo.Name)
		logging.Debug("DDL: %s", ddl)
		if _, err := pool.Pool().Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("creating destination table %q: %w", srcInfo.Name, err)
		}
		info = srcInfo
	} else if err := checkLayout(srcInfo, info); err != nil {
		return nil, err
	}

	d := &Destination{
		pool:        pool,
		table:       srcInfo.Name,
		orderingCol: orderingCol,
		info:        info,
	}
	d.upsertSQL = buildUpsertSQL(info)
	return d, nil
}

// checkLayout verifies the destination carries the same columns as the
// source. Extra or missing columns are an operator problem, not something to
// paper over at runtime.
func checkLayout(src, dst *TableInfo) error {
	srcCols := src.ColumnNames()
	dstCols := dst.ColumnNames()
	if len(srcCols) != len(dstCols) {
		return fmt.Errorf("column mismatch: source has %d columns, destination has %d", len(srcCols), len(dstCols))
	}
	for i := range srcCols {
		if srcCols[i] != dstCols[i] {
			return fmt.Errorf("column mismatch at position %d: source %q, destination %q", i+1, srcCols[i], dstCols[i])
		}
	}
	if len(dst.PrimaryKey()) == 0 {
		return fmt.Errorf("destination table %q has no primary key", dst.Name)
	}
	return nil
}

// MaxUpdated returns the watermark: the largest ordering-column value in the
// destination table. ok is false when the table is empty. It is recomputed
// at the start of every pass and never cached.
func (d *Destination) MaxUpdated(ctx context.Context) (int64, bool, error) {
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s",
		QuoteIdentifier(d.orderingCol), QuoteIdentifier(d.table))

	var value *int64
	if err := d.pool.Pool().QueryRow(ctx, query).Scan(&value); err != nil {
		return 0, false, fmt.Errorf("querying watermark: %w", err)
	}
	if value == nil {
		return 0, false, nil
	}
	return *value, true, nil
}

// UpsertChunk applies one chunk as a pipelined batch of per-row upserts
// inside a single transaction, preserving the chunk's ascending order so
// that when a key appears twice the later (newer) row wins. The commit makes
// the chunk the unit of durability: a crash mid-slice leaves everything up
// to the last committed chunk in place and the next pass resumes from the
// recomputed watermark.
func (d *Destination) UpsertChunk(ctx context.Context, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := d.pool.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rows {
		if len(row) != len(d.info.Columns) {
			return fmt.Errorf("row has %d values, table has %d columns", len(row), len(d.info.Columns))
		}
		batch.Queue(d.upsertSQL, row...)
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("executing upsert: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk: %w", err)
	}
	return nil
}

// buildUpsertSQL generates the per-row upsert statement:
// INSERT INTO t (cols) VALUES ($1, ...) ON CONFLICT (pk) DO UPDATE SET
// <non-key cols> = EXCLUDED.<non-key cols>, skipping the update when
// nothing changed to avoid dead tuples.
func buildUpsertSQL(info *TableInfo) string {
	cols := info.ColumnNames()
	pk := info.PrimaryKey()

	quotedCols := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, col := range cols {
		quotedCols[i] = QuoteIdentifier(col)
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	quotedPKs := make([]string, len(pk))
	pkSet := make(map[string]bool, len(pk))
	for i, col := range pk {
		quotedPKs[i] = QuoteIdentifier(col)
		pkSet[col] = true
	}

	var setClauses, targetCols, excludedCols []string
	for _, col := range cols {
		if pkSet[col] {
			continue
		}
		q := QuoteIdentifier(col)
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		targetCols = append(targetCols, QuoteIdentifier(info.Name)+"."+q)
		excludedCols = append(excludedCols, "EXCLUDED."+q)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdentifier(info.Name),
		strings.Join(quotedCols, ", "),
		strings.Join(params, ", ")))
	sb.WriteString(fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(quotedPKs, ", ")))

	if len(setClauses) > 0 {
		sb.WriteString(fmt.Sprintf(" DO UPDATE SET %s", strings.Join(setClauses, ", ")))
		sb.WriteString(fmt.Sprintf(" WHERE (%s) IS DISTINCT FROM (%s)",
			strings.Join(targetCols, ", "),
			strings.Join(excludedCols, ", ")))
	} else {
		// All columns are PK
		sb.WriteString(" DO NOTHING")
	}

	return sb.String()
}

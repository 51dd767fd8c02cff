package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Column describes one column of the synced table.
type Column struct {
	Name         string
	DataType     string // format_type() output, e.g. "character varying(50)"
	NotNull      bool
	IsPrimaryKey bool
}

// TableInfo holds the introspected layout of the synced table.
type TableInfo struct {
	Name    string
	Columns []Column
}

// ColumnNames returns all column names in catalog order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary key column names in catalog order.
func (t *TableInfo) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// HasColumn reports whether the table has a column with the given name.
func (t *TableInfo) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// introspectTable loads the column layout and primary key of a table from
// the catalogs. Returns nil when the table does not exist.
func introspectTable(ctx context.Context, pool *pgxpool.Pool, table string) (*TableInfo, error) {
	const query = `
		SELECT a.attname,
		       format_type(a.atttypid, a.atttypmod),
		       a.attnotnull,
		       COALESCE(i.indisprimary, false)
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_index i ON i.indrelid = c.oid
		    AND a.attnum = ANY(i.indkey) AND i.indisprimary
		WHERE n.nspname = current_schema()
		  AND c.relname = $1
		  AND c.relkind = 'r'
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY a.attnum
	`

	rows, err := pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns for %s: %w", table, err)
	}
	defer rows.Close()

	info := &TableInfo{Name: table}
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.NotNull, &col.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading columns for %s: %w", table, err)
	}

	if len(info.Columns) == 0 {
		return nil, nil
	}
	return info, nil
}

// BuildCreateTable generates the DDL mirroring the source's column layout on
// the destination. CREATE TABLE (LIKE ...) cannot reach across databases, so
// the statement is reassembled from the introspected catalog data.
func BuildCreateTable(info *TableInfo) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(QuoteIdentifier(info.Name))
	sb.WriteString(" (")

	for i, col := range info.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdentifier(col.Name))
		sb.WriteString(" ")
		sb.WriteString(col.DataType)
		if col.NotNull && !col.IsPrimaryKey {
			sb.WriteString(" NOT NULL")
		}
	}

	if pk := info.PrimaryKey(); len(pk) > 0 {
		quoted := make([]string, len(pk))
		for i, col := range pk {
			quoted[i] = QuoteIdentifier(col)
		}
		sb.WriteString(fmt.Sprintf(", PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	sb.WriteString(")")
	return sb.String()
}

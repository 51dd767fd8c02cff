// Package sync implements the incremental table sync engine: watermark
// resolution, row-count-driven slicing, windowed boundary discovery, and the
// chunked select-upsert merge loop.
package sync

import (
	"context"
	"fmt"
)

// TimeRange is a half-open [Lower, Upper) span of ordering-column values.
// The ordering column is a monotonically increasing bigint epoch-millis
// counter present in both tables.
type TimeRange struct {
	Lower int64
	Upper int64
}

// IsEmpty reports whether the range contains no values.
func (r TimeRange) IsEmpty() bool {
	return r.Lower >= r.Upper
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Lower, r.Upper)
}

// Source is the read side of a sync pass.
type Source interface {
	// MinUpdated returns the smallest ordering value; ok is false when empty.
	MinUpdated(ctx context.Context) (value int64, ok bool, err error)
	// MaxUpdated returns the largest ordering value; ok is false when empty.
	MaxUpdated(ctx context.Context) (value int64, ok bool, err error)
	// EstimateRows returns the planner's approximate row count for [lower, upper).
	EstimateRows(ctx context.Context, lower, upper int64) (int64, error)
	// WindowBoundaries returns ordering values at windowSize row intervals
	// within [lower, upper), ascending, without transferring the rows.
	WindowBoundaries(ctx context.Context, lower, upper int64, windowSize int) ([]int64, error)
	// FetchChunk returns up to limit rows in [start, end) ordered ascending,
	// skipping offset rows.
	FetchChunk(ctx context.Context, start, end int64, limit, offset int) ([][]any, error)
}

// Destination is the write side of a sync pass. It owns the watermark.
type Destination interface {
	// MaxUpdated returns the watermark; ok is false when the table is empty.
	MaxUpdated(ctx context.Context) (value int64, ok bool, err error)
	// UpsertChunk applies one chunk in order and commits it.
	UpsertChunk(ctx context.Context, rows [][]any) error
}

package sync

import (
	"context"
	"fmt"

	"github.com/johndauphine/pg-table-sync/internal/progress"
)

// Merger moves one window at a time from source to destination in bounded
// chunks. It is the only component that writes, and each applied chunk is
// committed before the next one is fetched, so at most one chunk of rows is
// ever resident and a crash leaves the destination committed up to the last
// completed chunk.
type Merger struct {
	src       Source
	dst       Destination
	chunkSize int
	prog      *progress.Tracker
}

// NewMerger creates a merger. prog may be nil.
func NewMerger(src Source, dst Destination, chunkSize int, prog *progress.Tracker) *Merger {
	return &Merger{src: src, dst: dst, chunkSize: chunkSize, prog: prog}
}

// MergeWindow copies all rows of one window, returning the row count. The
// context is checked before every round-trip so cancellation takes effect
// between chunks, not just between passes.
func (m *Merger) MergeWindow(ctx context.Context, w TimeRange) (int64, error) {
	var total int64
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		chunk, err := m.src.FetchChunk(ctx, w.Lower, w.Upper, m.chunkSize, offset)
		if err != nil {
			return total, fmt.Errorf("fetching window %s: %w", w, err)
		}
		if len(chunk) == 0 {
			return total, nil
		}

		if err := m.dst.UpsertChunk(ctx, chunk); err != nil {
			return total, fmt.Errorf("merging window %s: %w", w, err)
		}

		total += int64(len(chunk))
		offset += len(chunk)
		if m.prog != nil {
			m.prog.Add(int64(len(chunk)))
		}

		if len(chunk) < m.chunkSize {
			return total, nil
		}
	}
}

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/johndauphine/pg-table-sync/internal/logging"
	"github.com/johndauphine/pg-table-sync/internal/progress"
)

// Options configures a Runner.
type Options struct {
	ChunkSize    int           // rows per fetch/upsert batch
	WindowSize   int           // target rows per window
	RowsPerSlice int64         // target rows per slice
	Delay        time.Duration // continuous mode sleep between passes
	Progress     bool          // render a progress bar during passes
}

// PassResult summarizes one completed pass.
type PassResult struct {
	RunID         string        `json:"run_id"`
	Range         TimeRange     `json:"-"`
	RangeLower    int64         `json:"range_lower"`
	RangeUpper    int64         `json:"range_upper"`
	EstimatedRows int64         `json:"estimated_rows"`
	Slices        int           `json:"slices"`
	Windows       int           `json:"windows"`
	Rows          int64         `json:"rows"`
	Duration      time.Duration `json:"duration_ns"`
}

// Runner sequences resolve, estimate, provision, and per-slice window
// discovery and merging. Slices and windows are processed strictly
// sequentially, one chunk at a time, to bound memory and source load.
type Runner struct {
	src  Source
	dst  Destination
	opts Options
	now  func() int64 // pass upper bound; swapped out in tests
}

// NewRunner creates a runner over a source and destination.
func NewRunner(src Source, dst Destination, opts Options) *Runner {
	return &Runner{
		src:  src,
		dst:  dst,
		opts: opts,
		now:  func() int64 { return time.Now().UnixMilli() },
	}
}

// RunOnce executes a single pass: everything in the source with ordering
// values below the pass's captured upper bound ends up in the destination.
func (r *Runner) RunOnce(ctx context.Context) (*PassResult, error) {
	runID := uuid.New().String()[:8]
	start := time.Now()
	result := &PassResult{RunID: runID}

	tr, ok, err := resolveRange(ctx, r.src, r.dst, r.now())
	if err != nil {
		return result, err
	}
	if !ok {
		logging.Info("Pass %s: nothing to sync", runID)
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Range = tr
	result.RangeLower = tr.Lower
	result.RangeUpper = tr.Upper

	estimated, err := r.src.EstimateRows(ctx, tr.Lower, tr.Upper)
	if err != nil {
		return result, fmt.Errorf("estimating rows in %s: %w", tr, err)
	}
	result.EstimatedRows = estimated

	slices := ProvisionSlices(tr, estimated, r.opts.RowsPerSlice)
	result.Slices = len(slices)
	logging.Info("Pass %s: range %s, ~%d rows, %d slice(s)", runID, tr, estimated, len(slices))

	var prog *progress.Tracker
	if r.opts.Progress {
		prog = progress.New()
		prog.SetTotal(estimated)
	}

	merger := NewMerger(r.src, r.dst, r.opts.ChunkSize, prog)

	for i, slice := range slices {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if prog != nil {
			prog.Describe(i, len(slices))
		}

		boundaries, err := r.src.WindowBoundaries(ctx, slice.Lower, slice.Upper, r.opts.WindowSize)
		if err != nil {
			return result, fmt.Errorf("discovering windows in slice %d %s: %w", i+1, slice, err)
		}
		windows := Windows(slice, boundaries)
		result.Windows += len(windows)
		logging.Debug("Pass %s: slice %d/%d %s has %d window(s)", runID, i+1, len(slices), slice, len(windows))

		for _, w := range windows {
			rows, err := merger.MergeWindow(ctx, w)
			result.Rows += rows
			if err != nil {
				// Committed chunks stay; the next pass resumes from the
				// recomputed watermark.
				return result, fmt.Errorf("pass %s: slice %d %s: %w", runID, i+1, slice, err)
			}
		}
	}

	if prog != nil {
		prog.Finish()
	}
	result.Duration = time.Since(start)
	logging.Info("Pass %s: synced %d rows across %d slice(s), %d window(s) in %s",
		runID, result.Rows, result.Slices, result.Windows, result.Duration.Round(time.Millisecond))
	return result, nil
}

// RunContinuous repeats passes until the context is cancelled, sleeping
// Delay between passes. A failed pass is logged and the next one is still
// scheduled; the watermark makes retries safe.
func (r *Runner) RunContinuous(ctx context.Context) error {
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Error("Pass failed: %v (retrying in %s)", err, r.opts.Delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.Delay):
		}
	}
}

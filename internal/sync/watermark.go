package sync

import (
	"context"
	"fmt"

	"github.com/johndauphine/pg-table-sync/internal/logging"
)

// resolveRange computes the time range for one pass. The upper bound is the
// wall clock captured once at pass start, so the pass has a stable target
// even while the source keeps taking writes. The lower bound is the
// destination's watermark, or the source's minimum on the first run.
//
// ok is false when there is nothing to sync: empty source, or the watermark
// has already caught up with the source's maximum. Chunks commit in
// ascending order, so watermark >= source max implies every earlier row of
// the previous pass was committed too.
func resolveRange(ctx context.Context, src Source, dst Destination, upper int64) (TimeRange, bool, error) {
	lower, ok, err := dst.MaxUpdated(ctx)
	if err != nil {
		return TimeRange{}, false, fmt.Errorf("resolving watermark: %w", err)
	}
	if !ok {
		// First sync: start from the source's oldest row.
		lower, ok, err = src.MinUpdated(ctx)
		if err != nil {
			return TimeRange{}, false, fmt.Errorf("resolving initial lower bound: %w", err)
		}
		if !ok {
			logging.Debug("Source table is empty, nothing to sync")
			return TimeRange{}, false, nil
		}
	} else {
		srcMax, srcOK, err := src.MaxUpdated(ctx)
		if err != nil {
			return TimeRange{}, false, fmt.Errorf("resolving source upper bound: %w", err)
		}
		if !srcOK || lower >= srcMax {
			logging.Debug("Watermark %d has caught up with source, nothing to sync", lower)
			return TimeRange{}, false, nil
		}
	}

	tr := TimeRange{Lower: lower, Upper: upper}
	if tr.IsEmpty() {
		logging.Warn("Watermark %d is not below pass upper bound %d, skipping pass", lower, upper)
		return TimeRange{}, false, nil
	}
	return tr, true, nil
}

// Package progress renders a rows/s progress bar for a sync pass.
package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/johndauphine/pg-table-sync/internal/logging"
	"github.com/schollz/progressbar/v3"
)

// Tracker tracks rows applied during one pass. The total is the planner's
// estimate, so the bar is approximate by design.
type Tracker struct {
	bar       *progressbar.ProgressBar
	total     int64
	current   atomic.Int64
	startTime time.Time
}

// New creates a new progress tracker
func New() *Tracker {
	return &Tracker{startTime: time.Now()}
}

// SetTotal sets the estimated total number of rows for the pass
func (t *Tracker) SetTotal(total int64) {
	t.total = total
	if total <= 0 {
		return
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("Syncing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Describe updates the bar description with the active slice
func (t *Tracker) Describe(sliceIndex, sliceCount int) {
	if t.bar != nil {
		t.bar.Describe(fmt.Sprintf("Syncing slice %d/%d", sliceIndex+1, sliceCount))
	}
}

// Add increments the progress counter
func (t *Tracker) Add(n int64) {
	t.current.Add(n)
	if t.bar != nil {
		// The total is an estimate; the real row count may overshoot it.
		if t.current.Load() > t.total {
			t.bar.ChangeMax64(t.current.Load())
		}
		t.bar.Add64(n)
	}
}

// Current returns the current count
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Finish completes the bar and logs a throughput summary
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
		fmt.Println()
	}

	elapsed := time.Since(t.startTime)
	if rows := t.current.Load(); rows > 0 && elapsed > 0 {
		logging.Info("Synced %d rows in %s (%.0f rows/s)",
			rows, elapsed.Round(time.Millisecond), float64(rows)/elapsed.Seconds())
	}
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"
)

// fakeSource serves rows shaped (id, payload, updated) from memory with the
// same ordering, sampling, and offset semantics as the SQL queries.
type fakeSource struct {
	rows []srcRow
}

type srcRow struct {
	id      int64
	payload string
	updated int64
}

func seededSource(n int) *fakeSource {
	s := &fakeSource{}
	for i := 1; i <= n; i++ {
		s.add(int64(i), fmt.Sprintf("row-%d", i), int64(i))
	}
	return s
}

func (s *fakeSource) add(id int64, payload string, updated int64) {
	s.rows = append(s.rows, srcRow{id: id, payload: payload, updated: updated})
	sort.Slice(s.rows, func(i, j int) bool {
		if s.rows[i].updated != s.rows[j].updated {
			return s.rows[i].updated < s.rows[j].updated
		}
		return s.rows[i].id < s.rows[j].id
	})
}

func (s *fakeSource) inRange(lower, upper int64) []srcRow {
	var out []srcRow
	for _, r := range s.rows {
		if r.updated >= lower && r.updated < upper {
			out = append(out, r)
		}
	}
	return out
}

func (s *fakeSource) MinUpdated(context.Context) (int64, bool, error) {
	if len(s.rows) == 0 {
		return 0, false, nil
	}
	return s.rows[0].updated, true, nil
}

func (s *fakeSource) MaxUpdated(context.Context) (int64, bool, error) {
	if len(s.rows) == 0 {
		return 0, false, nil
	}
	return s.rows[len(s.rows)-1].updated, true, nil
}

func (s *fakeSource) EstimateRows(_ context.Context, lower, upper int64) (int64, error) {
	return int64(len(s.inRange(lower, upper))), nil
}

// WindowBoundaries mirrors the descending ROW_NUMBER sampling: every
// windowSize-th row counted from the newest, returned ascending.
func (s *fakeSource) WindowBoundaries(_ context.Context, lower, upper int64, windowSize int) ([]int64, error) {
	rows := s.inRange(lower, upper)
	var vals []int64
	for rank := 1; rank <= len(rows); rank++ {
		if windowSize > 1 && rank%windowSize != 1 {
			continue
		}
		vals = append(vals, rows[len(rows)-rank].updated)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	return vals, nil
}

func (s *fakeSource) FetchChunk(_ context.Context, start, end int64, limit, offset int) ([][]any, error) {
	rows := s.inRange(start, end)
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{r.id, r.payload, r.updated}
	}
	return out, nil
}

// fakeDest applies chunks to a map keyed by id. failAfter > 0 makes every
// commit past the first failAfter ones fail, simulating a lost connection
// after some chunks were already committed.
type fakeDest struct {
	rows      map[int64][]any
	commits   int
	failAfter int
}

func newFakeDest() *fakeDest {
	return &fakeDest{rows: make(map[int64][]any)}
}

func (d *fakeDest) MaxUpdated(context.Context) (int64, bool, error) {
	var max int64
	found := false
	for _, r := range d.rows {
		if v := r[2].(int64); !found || v > max {
			max = v
			found = true
		}
	}
	return max, found, nil
}

func (d *fakeDest) UpsertChunk(_ context.Context, rows [][]any) error {
	if d.failAfter > 0 && d.commits >= d.failAfter {
		return errors.New("write conn closed")
	}
	for _, r := range rows {
		d.rows[r[0].(int64)] = r
	}
	d.commits++
	return nil
}

func (d *fakeDest) payload(id int64) string {
	r, ok := d.rows[id]
	if !ok {
		return ""
	}
	return r[1].(string)
}

func newTestRunner(src Source, dst Destination, chunkSize int, upper int64) *Runner {
	r := NewRunner(src, dst, Options{
		ChunkSize:    chunkSize,
		WindowSize:   chunkSize,
		RowsPerSlice: 1_000_000,
	})
	r.now = func() int64 { return upper }
	return r
}

func TestRunOnceInitialSync(t *testing.T) {
	src := seededSource(10_000)
	dst := newFakeDest()
	r := newTestRunner(src, dst, 1000, 10_001)

	result, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Rows != 10_000 {
		t.Errorf("synced %d rows, want 10000", result.Rows)
	}
	if len(dst.rows) != 10_000 {
		t.Errorf("destination has %d rows, want 10000", len(dst.rows))
	}
	for _, id := range []int64{1, 5000, 10_000} {
		if got, want := dst.payload(id), fmt.Sprintf("row-%d", id); got != want {
			t.Errorf("row %d payload = %q, want %q", id, got, want)
		}
	}
}

func TestRunOnceIdempotent(t *testing.T) {
	src := seededSource(500)
	dst := newFakeDest()
	r := newTestRunner(src, dst, 100, 501)

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// Nothing changed upstream: the watermark has caught up, so the second
	// pass must be a no-op.
	result, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if result.Rows != 0 {
		t.Errorf("second pass synced %d rows, want 0", result.Rows)
	}
	if len(dst.rows) != 500 {
		t.Errorf("destination has %d rows after second pass, want 500", len(dst.rows))
	}
}

func TestRunOnceWatermarkMonotonic(t *testing.T) {
	src := seededSource(100)
	dst := newFakeDest()
	r := newTestRunner(src, dst, 50, 101)

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	wm1, ok, _ := dst.MaxUpdated(context.Background())
	if !ok || wm1 != 100 {
		t.Fatalf("watermark after first pass = %d (ok=%v), want 100", wm1, ok)
	}

	for i := 101; i <= 200; i++ {
		src.add(int64(i), fmt.Sprintf("row-%d", i), int64(i))
	}
	r.now = func() int64 { return 201 }

	result, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	// The watermark row itself is re-fetched because the lower bound is
	// inclusive, hence 101 rather than 100.
	if result.Rows != 101 {
		t.Errorf("second pass synced %d rows, want 101", result.Rows)
	}
	wm2, _, _ := dst.MaxUpdated(context.Background())
	if wm2 < wm1 {
		t.Errorf("watermark went backwards: %d -> %d", wm1, wm2)
	}
	if wm2 != 200 {
		t.Errorf("watermark after second pass = %d, want 200", wm2)
	}
	if len(dst.rows) != 200 {
		t.Errorf("destination has %d rows, want 200", len(dst.rows))
	}
}

func TestRunOnceResumesAfterFailure(t *testing.T) {
	src := seededSource(10_000)
	dst := newFakeDest()
	dst.failAfter = 3
	r := newTestRunner(src, dst, 1000, 10_001)

	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected pass to fail after three committed chunks")
	}

	// The boundary sample puts the first window edge at 1000, so the three
	// committed chunks are [1, 1000), [1000, 2000), and [2000, 3000):
	// ordering values 1 through 2999, a contiguous committed prefix.
	if len(dst.rows) != 2999 {
		t.Fatalf("destination has %d rows after failure, want 2999", len(dst.rows))
	}
	for id := int64(1); id <= 2999; id++ {
		if _, ok := dst.rows[id]; !ok {
			t.Fatalf("row %d missing from committed prefix", id)
		}
	}
	wm, _, _ := dst.MaxUpdated(context.Background())
	if wm != 2999 {
		t.Fatalf("watermark after failure = %d, want 2999", wm)
	}

	// Retry with the connection healthy again: the pass resumes from the
	// watermark and completes without duplicating the committed prefix.
	dst.failAfter = 0
	result, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("retry pass: %v", err)
	}
	if result.Rows != 7002 {
		t.Errorf("retry synced %d rows, want 7002", result.Rows)
	}
	if len(dst.rows) != 10_000 {
		t.Errorf("destination has %d rows after retry, want 10000", len(dst.rows))
	}
	for _, id := range []int64{1, 2999, 3000, 10_000} {
		if got, want := dst.payload(id), fmt.Sprintf("row-%d", id); got != want {
			t.Errorf("row %d payload = %q, want %q", id, got, want)
		}
	}
}

func TestRunOnceOverwritesStaleRow(t *testing.T) {
	src := &fakeSource{}
	src.add(1, "fresh", 10)

	dst := newFakeDest()
	dst.rows[1] = []any{int64(1), "stale", int64(5)}

	r := newTestRunner(src, dst, 100, 11)
	result, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Rows != 1 {
		t.Errorf("synced %d rows, want 1", result.Rows)
	}
	if got := dst.payload(1); got != "fresh" {
		t.Errorf("row 1 payload = %q, want %q", got, "fresh")
	}
	if got := dst.rows[1][2].(int64); got != 10 {
		t.Errorf("row 1 updated = %d, want 10", got)
	}
}

func TestRunOnceEmptySource(t *testing.T) {
	src := &fakeSource{}
	dst := newFakeDest()
	r := newTestRunner(src, dst, 100, 1000)

	result, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce on empty source: %v", err)
	}
	if result.Rows != 0 {
		t.Errorf("synced %d rows, want 0", result.Rows)
	}
	if len(dst.rows) != 0 {
		t.Errorf("destination has %d rows, want 0", len(dst.rows))
	}
}

func TestRunOnceCancelled(t *testing.T) {
	src := seededSource(100)
	dst := newFakeDest()
	r := newTestRunner(src, dst, 10, 101)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce error = %v, want context.Canceled", err)
	}
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	dst := newFakeDest()
	r := NewRunner(src, dst, Options{
		ChunkSize:    10,
		WindowSize:   10,
		RowsPerSlice: 1000,
		Delay:        time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- r.RunContinuous(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunContinuous error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunContinuous did not stop after cancellation")
	}
}

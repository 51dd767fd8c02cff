package sync

// Windows converts the discovered boundary values of a slice into an ordered
// sequence of contiguous [start, end) windows covering the whole slice. The
// slice's own bounds are added so that rows below the first discovered
// boundary and above the last are never dropped; boundary discovery only
// samples every windowSize-th row, it does not see the slice edges.
//
// Boundaries must be ascending. Values outside the slice and duplicates are
// discarded. A slice with no discovered boundaries (fewer rows than one
// window) yields a single window equal to the slice itself.
func Windows(slice TimeRange, boundaries []int64) []TimeRange {
	if slice.IsEmpty() {
		return nil
	}

	edges := make([]int64, 0, len(boundaries)+2)
	edges = append(edges, slice.Lower)
	for _, b := range boundaries {
		if b <= edges[len(edges)-1] || b >= slice.Upper {
			continue
		}
		edges = append(edges, b)
	}
	edges = append(edges, slice.Upper)

	windows := make([]TimeRange, 0, len(edges)-1)
	for i := 0; i+1 < len(edges); i++ {
		windows = append(windows, TimeRange{Lower: edges[i], Upper: edges[i+1]})
	}
	return windows
}

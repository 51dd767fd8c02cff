package sync

// ProvisionSlices partitions a pass range into contiguous sub-ranges sized
// so each holds approximately rowsPerSlice rows, assuming the ordering
// column is roughly uniform in time. Slices pace the pass and bound how much
// work is in flight before reassessing; over- or under-sized slices are
// tolerated.
//
// The output is gap-free and order-preserving: slice[0].Lower ==
// tr.Lower, slice[i].Upper == slice[i+1].Lower, and the last Upper ==
// tr.Upper. A zero or negative estimate still yields one slice covering the
// whole range.
func ProvisionSlices(tr TimeRange, estimatedRows, rowsPerSlice int64) []TimeRange {
	if tr.IsEmpty() {
		return nil
	}

	count := int64(1)
	if estimatedRows > 0 && rowsPerSlice > 0 {
		count = (estimatedRows + rowsPerSlice - 1) / rowsPerSlice
		if count < 1 {
			count = 1
		}
	}

	span := tr.Upper - tr.Lower
	if count > span {
		// Never slice finer than one ordering unit.
		count = span
	}

	slices := make([]TimeRange, 0, count)
	for i := int64(0); i < count; i++ {
		lower := tr.Lower + span*i/count
		upper := tr.Lower + span*(i+1)/count
		slices = append(slices, TimeRange{Lower: lower, Upper: upper})
	}
	return slices
}

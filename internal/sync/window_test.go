package sync

import (
	"reflect"
	"testing"
)

func TestWindows(t *testing.T) {
	tests := []struct {
		name       string
		slice      TimeRange
		boundaries []int64
		want       []TimeRange
	}{
		{
			name:       "boundaries split the slice",
			slice:      TimeRange{0, 100},
			boundaries: []int64{25, 50, 75},
			want:       []TimeRange{{0, 25}, {25, 50}, {50, 75}, {75, 100}},
		},
		{
			name:       "no boundaries yields the slice itself",
			slice:      TimeRange{0, 100},
			boundaries: nil,
			want:       []TimeRange{{0, 100}},
		},
		{
			name:       "out of range and duplicate boundaries are discarded",
			slice:      TimeRange{10, 50},
			boundaries: []int64{5, 10, 20, 20, 50, 60},
			want:       []TimeRange{{10, 20}, {20, 50}},
		},
		{
			name:       "boundary equal to slice lower is discarded",
			slice:      TimeRange{100, 200},
			boundaries: []int64{100, 150},
			want:       []TimeRange{{100, 150}, {150, 200}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Windows(tt.slice, tt.boundaries)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Windows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowsEmptySlice(t *testing.T) {
	if got := Windows(TimeRange{50, 50}, []int64{55}); got != nil {
		t.Errorf("empty slice should yield no windows, got %v", got)
	}
}

// The windows must cover the slice with no gaps regardless of the boundary
// sample, since rows outside the discovered boundaries still belong to the
// slice.
func TestWindowsCoverSlice(t *testing.T) {
	slice := TimeRange{1, 10_001}
	boundaries := []int64{1000, 2000, 3000, 9000}

	windows := Windows(slice, boundaries)
	if windows[0].Lower != slice.Lower {
		t.Errorf("first window starts at %d, want %d", windows[0].Lower, slice.Lower)
	}
	if windows[len(windows)-1].Upper != slice.Upper {
		t.Errorf("last window ends at %d, want %d", windows[len(windows)-1].Upper, slice.Upper)
	}
	for i := 1; i < len(windows); i++ {
		if windows[i-1].Upper != windows[i].Lower {
			t.Errorf("gap between window %d and %d", i-1, i)
		}
	}
}

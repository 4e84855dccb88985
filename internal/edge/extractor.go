package edge

import (
	"fmt"

	"github.com/banshee-data/equalisation/internal/monitoring"
)

// DefaultSliceRows is the number of pixel rows read per slice when
// Extractor.SliceRows is zero.
const DefaultSliceRows = 100

// Extractor finds the edge of every pixel in a scan volume.
type Extractor struct {
	// Threshold is the count at or above which a pixel is considered on.
	Threshold int
	// Forward scans steps from first to last; otherwise last to first.
	Forward bool
	// Layout of the volume read from the source.
	Layout Layout
	// SliceRows bounds how many pixel rows are resident at once.
	SliceRows int
}

func (e Extractor) sliceRows() int {
	if e.SliceRows <= 0 {
		return DefaultSliceRows
	}
	return e.SliceRows
}

// Extract streams src slice by slice and returns the edge map. lookup maps
// step index to control value and must have one entry per step, each in
// [MinValid, MaxValid]. mask, when non-nil, must have one flag per pixel;
// pixels with a false flag are reported as MaskedOut without being scanned.
//
// All preconditions are checked before the first slice is read.
func (e Extractor) Extract(src VolumeSource, lookup []int16, mask []bool) (*Map, error) {
	steps, height, width, err := e.Layout.Dims(src.Shape())
	if err != nil {
		return nil, err
	}
	if len(lookup) != steps {
		return nil, fmt.Errorf("%w: lookup table has %d entries for %d steps", ErrShapeMismatch, len(lookup), steps)
	}
	for i, v := range lookup {
		if !IsValid(v) {
			return nil, fmt.Errorf("lookup value %d at step %d outside [%d,%d]", v, i, MinValid, MaxValid)
		}
	}
	if mask != nil && len(mask) != height*width {
		return nil, fmt.Errorf("%w: mask has %d flags for %dx%d pixels", ErrShapeMismatch, len(mask), height, width)
	}

	out := NewMap(height, width, MaskedOut)
	sliceRows := e.sliceRows()
	for row := 0; row < height; row += sliceRows {
		count := min(sliceRows, height-row)
		buf, err := src.ReadRows(row, count)
		if err != nil {
			return nil, fmt.Errorf("reading rows [%d,%d): %w", row, row+count, err)
		}
		if len(buf) != steps*count*width {
			return nil, fmt.Errorf("%w: slice at row %d has %d values, want %d",
				ErrShapeMismatch, row, len(buf), steps*count*width)
		}
		e.scanSlice(buf, steps, count*width, row*width, lookup, mask, out.Values)
	}
	monitoring.Logf("[edge] extracted %dx%d edges over %d steps (%s, forward=%t, slice=%d rows)",
		height, width, steps, e.Layout, e.Forward, sliceRows)
	return out, nil
}

// scanSlice fills dst[base:base+pixels] from one slice buffer.
func (e Extractor) scanSlice(buf []int16, steps, pixels, base int, lookup []int16, mask []bool, dst []int16) {
	threshold := e.Threshold
	for p := 0; p < pixels; p++ {
		global := base + p
		if mask != nil && !mask[global] {
			dst[global] = MaskedOut
			continue
		}
		result := AllBelowThreshold
		for i := 0; i < steps; i++ {
			step := i
			if !e.Forward {
				step = steps - i - 1
			}
			var count int16
			if e.Layout == StepMinor {
				count = buf[p*steps+step]
			} else {
				count = buf[step*pixels+p]
			}
			if int(count) >= threshold {
				if i == 0 {
					result = AllAboveThreshold
				} else {
					result = lookup[step]
				}
				break
			}
		}
		dst[global] = result
	}
}

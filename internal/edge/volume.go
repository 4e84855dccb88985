package edge

import (
	"errors"
	"fmt"
	"math"
)

var nan = math.NaN()

// ErrShapeMismatch is returned when a volume, lookup table or mask does not
// have the dimensions the operation needs.
var ErrShapeMismatch = errors.New("shape mismatch")

// Layout names which axis of a 3-D scan volume is the control step axis.
type Layout int

const (
	// StepMajor volumes are shaped [steps, height, width].
	StepMajor Layout = iota
	// StepMinor volumes are shaped [height, width, steps].
	StepMinor
)

func (l Layout) String() string {
	switch l {
	case StepMajor:
		return "step-major"
	case StepMinor:
		return "step-minor"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// RowAxis returns the index of the pixel-row axis in a volume of layout l.
func (l Layout) RowAxis() int {
	if l == StepMinor {
		return 0
	}
	return 1
}

// Dims splits a 3-D volume shape into steps, height and width.
func (l Layout) Dims(shape []int) (steps, height, width int, err error) {
	if len(shape) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: scan volume must be 3-D, got %d dims", ErrShapeMismatch, len(shape))
	}
	switch l {
	case StepMajor:
		steps, height, width = shape[0], shape[1], shape[2]
	case StepMinor:
		height, width, steps = shape[0], shape[1], shape[2]
	default:
		return 0, 0, 0, fmt.Errorf("unknown volume layout %v", l)
	}
	if steps <= 0 || height <= 0 || width <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: empty scan volume %v", ErrShapeMismatch, shape)
	}
	return steps, height, width, nil
}

// VolumeSource gives slice access to a 3-D scan volume.
type VolumeSource interface {
	// Shape returns the volume dimensions in layout order.
	Shape() []int
	// ReadRows returns the sub-volume covering pixel rows [row, row+count),
	// flattened in the same layout as the full volume.
	ReadRows(row, count int) ([]int16, error)
}

// ArrayVolume is an in-memory VolumeSource.
type ArrayVolume struct {
	Layout Layout
	Dims   []int
	Data   []int16
}

// Shape implements VolumeSource.
func (v *ArrayVolume) Shape() []int { return v.Dims }

// ReadRows implements VolumeSource. It always returns a fresh buffer.
func (v *ArrayVolume) ReadRows(row, count int) ([]int16, error) {
	steps, height, width, err := v.Layout.Dims(v.Dims)
	if err != nil {
		return nil, err
	}
	if len(v.Data) != steps*height*width {
		return nil, fmt.Errorf("%w: volume has %d values for shape %v", ErrShapeMismatch, len(v.Data), v.Dims)
	}
	if row < 0 || count <= 0 || row+count > height {
		return nil, fmt.Errorf("rows [%d,%d) outside volume height %d", row, row+count, height)
	}
	out := make([]int16, 0, steps*count*width)
	switch v.Layout {
	case StepMajor:
		for s := 0; s < steps; s++ {
			start := (s*height + row) * width
			out = append(out, v.Data[start:start+count*width]...)
		}
	case StepMinor:
		start := row * width * steps
		out = append(out, v.Data[start:start+count*width*steps]...)
	}
	return out, nil
}

package store

import (
	"fmt"
	"strings"
)

// Location is a slash-separated group path such as "entry1/equalisation".
type Location string

// Loc joins path components into a Location.
func Loc(parts ...string) Location {
	return Location(strings.Join(parts, "/"))
}

// Add returns the location with name appended.
func (l Location) Add(name string) Location {
	if l == "" {
		return Location(name)
	}
	return Location(string(l) + "/" + name)
}

func (l Location) String() string { return string(l) }

// DType is the on-disk element type of a dataset.
type DType string

const (
	Int16   DType = "int16"
	Float64 DType = "float64"
	// Float16 datasets are held as float64 in memory.
	Float16 DType = "float16"
)

func (t DType) size() int {
	switch t {
	case Int16, Float16:
		return 2
	case Float64:
		return 8
	}
	return 0
}

func (t DType) valid() bool { return t.size() > 0 }

// Dataset is an n-dimensional array. Exactly one of Int16 and Float64 holds
// the row-major data, depending on Type.
type Dataset struct {
	Shape   []uint64
	Type    DType
	Int16   []int16
	Float64 []float64
}

// NewInt16 wraps data as an int16 dataset.
func NewInt16(shape []uint64, data []int16) *Dataset {
	return &Dataset{Shape: shape, Type: Int16, Int16: data}
}

// NewFloat64 wraps data as a float64 dataset.
func NewFloat64(shape []uint64, data []float64) *Dataset {
	return &Dataset{Shape: shape, Type: Float64, Float64: data}
}

// NewFloat16 wraps data as a dataset stored at half precision.
func NewFloat16(shape []uint64, data []float64) *Dataset {
	return &Dataset{Shape: shape, Type: Float16, Float64: data}
}

// Shape1D is a convenience for one-dimensional shapes.
func Shape1D(n int) []uint64 { return []uint64{uint64(n)} }

// Shape2D is a convenience for two-dimensional shapes.
func Shape2D(rows, cols int) []uint64 { return []uint64{uint64(rows), uint64(cols)} }

// Elements returns the product of the shape.
func (d *Dataset) Elements() int {
	return elements(d.Shape)
}

func elements(shape []uint64) int {
	n := 1
	for _, s := range shape {
		n *= int(s)
	}
	return n
}

// Len returns the number of stored values.
func (d *Dataset) Len() int {
	if d.Type == Int16 {
		return len(d.Int16)
	}
	return len(d.Float64)
}

// Validate checks the type and that the data length matches the shape.
func (d *Dataset) Validate() error {
	if !d.Type.valid() {
		return fmt.Errorf("unsupported dataset type %q", d.Type)
	}
	if len(d.Shape) == 0 {
		return fmt.Errorf("dataset must have at least one dimension")
	}
	if d.Len() != d.Elements() {
		return fmt.Errorf("dataset has %d values for shape %v", d.Len(), d.Shape)
	}
	return nil
}

// Dims returns the shape as ints.
func (d *Dataset) Dims() []int {
	dims := make([]int, len(d.Shape))
	for i, s := range d.Shape {
		dims[i] = int(s)
	}
	return dims
}

// Float64s returns the values as float64, converting int16 data into a new
// slice.
func (d *Dataset) Float64s() []float64 {
	if d.Type != Int16 {
		return d.Float64
	}
	out := make([]float64, len(d.Int16))
	for i, v := range d.Int16 {
		out[i] = float64(v)
	}
	return out
}

// Int16s returns the values of an int16 dataset.
func (d *Dataset) Int16s() ([]int16, error) {
	if d.Type != Int16 {
		return nil, fmt.Errorf("dataset is %s, not %s", d.Type, Int16)
	}
	return d.Int16, nil
}

package edge

import (
	"fmt"
	"slices"
)

// Sentinel edge values. They lie outside [MinValid, MaxValid].
const (
	AllBelowThreshold int16 = -1
	AllAboveThreshold int16 = -2
	MaskedOut         int16 = -10
)

const (
	MinValid int16 = 0
	MaxValid int16 = 511
)

// IsValid reports whether v is a measured edge rather than a sentinel.
func IsValid(v int16) bool {
	return v >= MinValid && v <= MaxValid
}

// Map is a flat row-major 2-D array of edge values.
type Map struct {
	Height int
	Width  int
	Values []int16
}

// NewMap returns a map with every pixel set to fill.
func NewMap(height, width int, fill int16) *Map {
	values := make([]int16, height*width)
	for i := range values {
		values[i] = fill
	}
	return &Map{Height: height, Width: width, Values: values}
}

// MapFromValues wraps values without copying after checking the shape.
func MapFromValues(height, width int, values []int16) (*Map, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: edge map shape %dx%d", ErrShapeMismatch, height, width)
	}
	if len(values) != height*width {
		return nil, fmt.Errorf("%w: %d values for %dx%d edge map", ErrShapeMismatch, len(values), height, width)
	}
	return &Map{Height: height, Width: width, Values: values}, nil
}

// At returns the value at (y, x).
func (m *Map) At(y, x int) int16 {
	return m.Values[y*m.Width+x]
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	return &Map{Height: m.Height, Width: m.Width, Values: slices.Clone(m.Values)}
}

// Counts tallies the outcome classes of a map.
type Counts struct {
	Valid    int
	AllBelow int
	AllAbove int
	Masked   int
	Other    int
}

// Counts classifies every pixel of the map.
func (m *Map) Counts() Counts {
	var c Counts
	for _, v := range m.Values {
		switch {
		case IsValid(v):
			c.Valid++
		case v == AllBelowThreshold:
			c.AllBelow++
		case v == AllAboveThreshold:
			c.AllAbove++
		case v == MaskedOut:
			c.Masked++
		default:
			c.Other++
		}
	}
	return c
}

// Shift returns the per-pixel difference a-b as float64, with NaN wherever
// either input is not a valid edge. Differences can be negative, so they do
// not fit the sentinel encoding of Map.
func Shift(a, b *Map) ([]float64, error) {
	if a.Height != b.Height || a.Width != b.Width {
		return nil, fmt.Errorf("%w: cannot shift %dx%d map against %dx%d map",
			ErrShapeMismatch, a.Height, a.Width, b.Height, b.Width)
	}
	out := make([]float64, len(a.Values))
	for i := range a.Values {
		if !IsValid(a.Values[i]) || !IsValid(b.Values[i]) {
			out[i] = nan
			continue
		}
		out[i] = float64(a.Values[i]) - float64(b.Values[i])
	}
	return out, nil
}

// Package response fits straight lines relating a control value to the
// measured edge position, one line per pixel or per chip, across several
// scan runs.
package response

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/equalisation/internal/edge"
)

// ErrLengthMismatch is returned when runs do not cover the same lines.
var ErrLengthMismatch = errors.New("data lengths in different files are not equal")

// Mode selects which points take part in a fit.
type Mode int

const (
	// ValidsOnly ignores points whose Valid flag is false and leaves a line
	// unfit when fewer than two valid points remain.
	ValidsOnly Mode = iota
	// AllPoints fits every point.
	AllPoints
)

// Series is one run: a scalar control value and one measurement per line.
type Series struct {
	Axis  float64
	Y     []float64
	Valid []bool // nil means every point is valid
}

// SeriesFromEdges converts an edge map into a series, marking sentinels as
// invalid.
func SeriesFromEdges(axis float64, edges []int16) Series {
	s := Series{Axis: axis, Y: make([]float64, len(edges)), Valid: make([]bool, len(edges))}
	for i, v := range edges {
		s.Y[i] = float64(v)
		s.Valid[i] = edge.IsValid(v)
	}
	return s
}

// SeriesFromValues converts chip-averaged values into a series. Non-finite
// values are marked invalid.
func SeriesFromValues(axis float64, values []float64) Series {
	s := Series{Axis: axis, Y: append([]float64(nil), values...), Valid: make([]bool, len(values))}
	for i, v := range values {
		s.Valid[i] = !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	return s
}

func (s Series) valid(i int) bool {
	return s.Valid == nil || s.Valid[i]
}

// Model holds one fitted line per input line: y = Offset + Slope*x.
type Model struct {
	Slopes  []float64
	Offsets []float64
	FitOK   []bool
}

// Len returns the number of lines.
func (m *Model) Len() int { return len(m.Slopes) }

// Fit regresses every line across runs. Lines that cannot be fitted keep a
// zero slope and offset and FitOK false.
func Fit(runs []Series, mode Mode) (*Model, error) {
	if len(runs) == 0 {
		return nil, errors.New("no runs to fit")
	}
	n := len(runs[0].Y)
	for i, r := range runs {
		if len(r.Y) != n || (r.Valid != nil && len(r.Valid) != n) {
			return nil, fmt.Errorf("%w: run %d has %d values, run 0 has %d", ErrLengthMismatch, i, len(r.Y), n)
		}
	}

	m := &Model{
		Slopes:  make([]float64, n),
		Offsets: make([]float64, n),
		FitOK:   make([]bool, n),
	}
	xs := make([]float64, 0, len(runs))
	ys := make([]float64, 0, len(runs))
	for line := 0; line < n; line++ {
		xs, ys = xs[:0], ys[:0]
		for _, r := range runs {
			if mode == ValidsOnly && !r.valid(line) {
				continue
			}
			xs = append(xs, r.Axis)
			ys = append(ys, r.Y[line])
		}
		if len(xs) < 2 {
			continue
		}
		offset, slope := stat.LinearRegression(xs, ys, nil, false)
		if math.IsNaN(slope) || math.IsInf(slope, 0) || math.IsNaN(offset) || math.IsInf(offset, 0) {
			continue
		}
		m.Slopes[line] = slope
		m.Offsets[line] = offset
		m.FitOK[line] = true
	}
	return m, nil
}

// NoCode marks a line whose inverse could not be computed. RoundCode never
// returns it.
const NoCode int16 = math.MinInt16

// Invert returns, per line, the control value whose predicted response is
// target, rounded to the nearest integer. Unfit lines and lines with a zero
// slope get NoCode.
func (m *Model) Invert(target float64) []int16 {
	out := make([]int16, m.Len())
	for i := range out {
		out[i] = NoCode
		if !m.FitOK[i] || m.Slopes[i] == 0 {
			continue
		}
		out[i] = RoundCode((target - m.Offsets[i]) / m.Slopes[i])
	}
	return out
}

// RoundCode rounds v to the nearest int16, saturating at the type limits
// and stopping one short of NoCode at the bottom.
func RoundCode(v float64) int16 {
	r := math.Round(v)
	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r <= float64(NoCode):
		return NoCode + 1
	}
	return int16(r)
}

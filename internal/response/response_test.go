package response

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/equalisation/internal/edge"
)

func TestFit_ValidsOnly(t *testing.T) {
	t.Parallel()

	// Three lines over three runs:
	//   line 0: three valid points on y = 5 + 2x
	//   line 1: one sentinel, two valid points on y = 2 - 0.1x
	//   line 2: only one valid point
	runs := []Series{
		SeriesFromEdges(0, []int16{5, edge.AllBelowThreshold, 7}),
		SeriesFromEdges(10, []int16{25, 1, edge.MaskedOut}),
		SeriesFromEdges(20, []int16{45, 0, edge.AllAboveThreshold}),
	}
	m, err := Fit(runs, ValidsOnly)
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	assert.True(t, m.FitOK[0])
	assert.InDelta(t, 2.0, m.Slopes[0], 1e-9)
	assert.InDelta(t, 5.0, m.Offsets[0], 1e-9)

	assert.True(t, m.FitOK[1])
	assert.InDelta(t, -0.1, m.Slopes[1], 1e-9)
	assert.InDelta(t, 2.0, m.Offsets[1], 1e-9)

	assert.False(t, m.FitOK[2])
	assert.Zero(t, m.Slopes[2])
	assert.Zero(t, m.Offsets[2])
}

func TestFit_AllPoints(t *testing.T) {
	t.Parallel()

	runs := []Series{
		{Axis: 25, Y: []float64{100, 50}},
		{Axis: 45, Y: []float64{140, 50}},
	}
	m, err := Fit(runs, AllPoints)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, m.FitOK)
	assert.InDelta(t, 2.0, m.Slopes[0], 1e-9)
	assert.InDelta(t, 50.0, m.Offsets[0], 1e-9)
	assert.InDelta(t, 0.0, m.Slopes[1], 1e-9)
	assert.InDelta(t, 50.0, m.Offsets[1], 1e-9)
}

func TestFit_AllPointsIgnoresValidity(t *testing.T) {
	t.Parallel()

	runs := []Series{
		SeriesFromEdges(0, []int16{edge.AllBelowThreshold}),
		SeriesFromEdges(1, []int16{3}),
	}
	m, err := Fit(runs, AllPoints)
	require.NoError(t, err)
	assert.True(t, m.FitOK[0])
	assert.InDelta(t, 4.0, m.Slopes[0], 1e-9)

	m, err = Fit(runs, ValidsOnly)
	require.NoError(t, err)
	assert.False(t, m.FitOK[0])
}

func TestFit_SameAxisIsUnfit(t *testing.T) {
	t.Parallel()

	runs := []Series{
		{Axis: 3, Y: []float64{1}},
		{Axis: 3, Y: []float64{2}},
	}
	m, err := Fit(runs, AllPoints)
	require.NoError(t, err)
	assert.False(t, m.FitOK[0])
}

func TestFit_LengthMismatch(t *testing.T) {
	t.Parallel()

	runs := []Series{
		{Axis: 0, Y: []float64{1, 2}},
		{Axis: 1, Y: []float64{1}},
	}
	_, err := Fit(runs, AllPoints)
	require.ErrorIs(t, err, ErrLengthMismatch)
	assert.Contains(t, err.Error(), "data lengths in different files are not equal")

	_, err = Fit(nil, AllPoints)
	assert.Error(t, err)
}

func TestSeriesFromValues(t *testing.T) {
	t.Parallel()

	s := SeriesFromValues(2, []float64{1, math.NaN()})
	assert.Equal(t, []bool{true, false}, s.Valid)
}

func TestInvert(t *testing.T) {
	t.Parallel()

	m := &Model{
		Slopes:  []float64{2, 0, 4, 0.5},
		Offsets: []float64{10, 3, 0, 0},
		FitOK:   []bool{true, true, false, true},
	}
	got := m.Invert(21)
	assert.Equal(t, []int16{6, NoCode, NoCode, 42}, got)

	// A computed -1 is a code like any other.
	m = &Model{Slopes: []float64{1, 1e-6}, Offsets: []float64{22, 0}, FitOK: []bool{true, true}}
	got = m.Invert(21)
	assert.Equal(t, int16(-1), got[0])
	assert.NotEqual(t, NoCode, got[0])
	assert.Equal(t, NoCode+1, m.Invert(-1e6)[1], "saturates above NoCode")
}

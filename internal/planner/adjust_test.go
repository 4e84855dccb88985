package planner

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/geometry"
)

func TestControlBits(t *testing.T) {
	t.Parallel()

	g, err := geometry.NewChipGrid(1, 2, []bool{true, true})
	require.NoError(t, err)
	chips := g.Chips()

	edges := make([]int16, g.NumPixels())
	for i := range edges {
		edges[i] = edge.MaskedOut
	}
	first := slices.Collect(g.PixelIndices(chips[0]))
	second := slices.Collect(g.PixelIndices(chips[1]))

	edges[first[0]] = 10                     // at target
	edges[first[1]] = 16                     // 6/2 = 3
	edges[first[2]] = 17                     // 7/2 = 3.5 floors to 3
	edges[first[3]] = 200                    // clamps to 15
	edges[first[4]] = 4                      // below target clamps to 0
	edges[first[5]] = edge.AllAboveThreshold // invalid
	edges[second[0]] = 100                   // chip without resolution

	bits, err := ControlBits(g, edges, []float64{2, math.NaN()}, 10)
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 3, 3, 15, 0, 0}, []int16{
		bits[first[0]], bits[first[1]], bits[first[2]], bits[first[3]], bits[first[4]], bits[first[5]],
	})
	assert.Equal(t, int16(0), bits[second[0]])

	for _, b := range bits {
		require.True(t, b >= 0 && b <= MaxDACBits)
	}

	_, err = ControlBits(g, edges[:5], []float64{2, 2}, 10)
	assert.Error(t, err)
	_, err = ControlBits(g, edges, []float64{2}, 10)
	assert.Error(t, err)
}

func TestCombine(t *testing.T) {
	t.Parallel()

	bits := []int16{0, 3, 15, 7}
	mask := []int16{0, 16, 16, 0}
	bitsBefore := slices.Clone(bits)
	maskBefore := slices.Clone(mask)

	got, err := Combine(0, bits, mask)
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 19, 31, 7}, got)

	got, err = Combine(15, mask)
	require.NoError(t, err)
	assert.Equal(t, []int16{15, 31, 31, 15}, got)

	// Inputs are untouched and not aliased by the result.
	assert.Equal(t, bitsBefore, bits)
	assert.Equal(t, maskBefore, mask)
	got[0] = 99
	assert.Equal(t, maskBefore, mask)
}

func TestCombine_Errors(t *testing.T) {
	t.Parallel()

	_, err := Combine(0, []int16{1, 32})
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = Combine(64, []int16{0})
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = Combine(0, []int16{1}, []int16{1, 2})
	assert.Error(t, err)

	_, err = Combine(0)
	assert.Error(t, err)
}

func TestTweak(t *testing.T) {
	t.Parallel()

	edges := []int16{12, 8, 10, 12, 8, edge.AllBelowThreshold}
	adj := []int16{5, 5, 5, 31, 0, 9}
	got, counts, err := Tweak(edges, adj, 10)
	require.NoError(t, err)
	assert.Equal(t, []int16{6, 4, 5, 0, 31, 9}, got)
	assert.Equal(t, TweakCounts{Up: 2, Down: 2, Wrapped: 2}, counts)
	assert.Equal(t, []int16{5, 5, 5, 31, 0, 9}, adj)
}

func TestTweak_RejectsOutOfRange(t *testing.T) {
	t.Parallel()

	_, _, err := Tweak([]int16{12}, []int16{40}, 10)
	assert.ErrorIs(t, err, ErrEncoding)

	_, _, err = Tweak([]int16{12, 3}, []int16{1}, 10)
	assert.Error(t, err)
}

func TestTweak_StaysInRange(t *testing.T) {
	t.Parallel()

	edges := make([]int16, 64)
	adj := make([]int16, 64)
	for i := range edges {
		edges[i] = int16(i % 20)
		adj[i] = int16(i % 32)
	}
	for range 40 {
		var err error
		adj, _, err = Tweak(edges, adj, 10)
		require.NoError(t, err)
		require.NoError(t, CheckCodes(adj))
	}
}

func TestSelectClosest(t *testing.T) {
	t.Parallel()

	edgesA := []int16{8, 14, 12, edge.AllBelowThreshold, 5, edge.MaskedOut}
	edgesB := []int16{11, 10, 8, 20, edge.AllAboveThreshold, edge.AllBelowThreshold}
	adjA := []int16{1, 2, 3, 4, 5, 6}
	adjB := []int16{21, 22, 23, 24, 25, 26}

	got, err := SelectClosest(edgesA, edgesB, adjA, adjB, 10)
	require.NoError(t, err)
	assert.Equal(t, []int16{21, 22, 3, 24, 5, 6}, got)

	_, err = SelectClosest(edgesA, edgesB[:1], adjA, adjB, 10)
	assert.Error(t, err)

	_, err = SelectClosest([]int16{edge.MaskedOut}, []int16{10}, []int16{0}, []int16{40}, 10)
	assert.ErrorIs(t, err, ErrEncoding)
}

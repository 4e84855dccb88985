package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/store"
)

func TestSnapEdge(t *testing.T) {
	t.Parallel()
	lookup := Lookup(0, 2, 5) // 0 2 4 6 8
	tests := []struct {
		v    float64
		want int16
	}{
		{-3, edge.AllAboveThreshold},
		{0, edge.AllAboveThreshold},
		{0.5, 2},
		{4, 4},
		{7.9, 8},
		{8.1, edge.AllBelowThreshold},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SnapEdge(lookup, tt.v), "v=%g", tt.v)
	}
}

// ---

func TestStepMajorVolume_ExtractsEdges(t *testing.T) {
	t.Parallel()
	lookup := Lookup(0, 2, 6)
	edges := []int16{4, edge.AllAboveThreshold, edge.AllBelowThreshold, 10}
	data := StepMajorVolume(lookup, edges)

	vol := &edge.ArrayVolume{Layout: edge.StepMajor, Dims: []int{6, 2, 2}, Data: data}
	ext := edge.Extractor{Threshold: 10, Forward: true}
	m, err := ext.Extract(vol, []int16{0, 2, 4, 6, 8, 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, edges, m.Values)
}

// ---

func TestGaussianEdges(t *testing.T) {
	t.Parallel()
	g, err := geometry.NewChipGrid(1, 2, []bool{true, true})
	require.NoError(t, err)
	lookup := Lookup(0, 1, 60)

	a := GaussianEdges(g, lookup, 30, 3, 7)
	b := GaussianEdges(g, lookup, 30, 3, 7)
	require.Len(t, a, g.NumPixels())
	assert.Equal(t, a, b, "same seed must give the same edges")

	var sum float64
	for _, v := range a {
		sum += float64(v)
	}
	assert.InDelta(t, 30.5, sum/float64(len(a)), 0.2)
}

// ---

func TestWriteScan(t *testing.T) {
	t.Parallel()
	g, err := geometry.NewChipGrid(1, 2, []bool{true, false})
	require.NoError(t, err)
	lookup := Lookup(0, 4, 8)
	edges := GaussianEdges(g, lookup, 14, 3, 1)
	path := TempPath(t, "scan.db")

	WriteScan(t, path, g, Scan{Detector: "excalibur", Lookup: lookup, Edges: edges, ControlName: "thresholdN", Control: 25})

	f, err := store.OpenExisting(path)
	require.NoError(t, err)
	defer f.Close()
	loc := store.Loc("entry1", "excalibur")
	shape, dtype, err := f.Shape(loc, "data")
	require.NoError(t, err)
	assert.Equal(t, store.Int16, dtype)
	assert.Equal(t, []uint64{8, uint64(g.PixelRows()), uint64(g.PixelsPerRow())}, shape)

	ctl, err := f.ReadDataset(loc, "thresholdN")
	require.NoError(t, err)
	assert.Equal(t, []float64{25}, ctl.Float64s())
}

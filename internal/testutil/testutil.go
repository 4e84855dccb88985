// Package testutil provides shared test utilities and fixtures.
//
// The fixtures build synthetic threshold-0 scans: a lookup of control
// values, a per-pixel edge, and the count volume a detector would record
// for that edge.
package testutil

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/store"
)

// HitCount is the count recorded by a pixel at or above its edge.
const HitCount = 100

// Lookup returns n control values starting at first and increasing by step.
func Lookup(first, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = first + float64(i)*step
	}
	return out
}

// GaussianEdges draws one edge per pixel of g from a normal distribution and
// snaps it onto the nearest lookup value above it. Draws past the last
// lookup value become edge.AllBelowThreshold; draws at or below the first
// become edge.AllAboveThreshold.
func GaussianEdges(g *geometry.ChipGrid, lookup []float64, mean, sigma float64, seed uint64) []int16 {
	dist := distuv.Normal{Mu: mean, Sigma: sigma, Src: rand.NewPCG(seed, seed+1)}
	out := make([]int16, g.NumPixels())
	for i := range out {
		out[i] = SnapEdge(lookup, dist.Rand())
	}
	return out
}

// SnapEdge returns the edge the extractor reports for a pixel whose true
// edge is v.
func SnapEdge(lookup []float64, v float64) int16 {
	for i, l := range lookup {
		if l >= v {
			if i == 0 {
				return edge.AllAboveThreshold
			}
			return int16(math.Trunc(l))
		}
	}
	return edge.AllBelowThreshold
}

// StepMajorVolume returns a [steps, pixels] count volume in which each
// pixel records HitCount at every lookup value at or above its edge.
// Pixels with a sentinel edge follow the sentinel.
func StepMajorVolume(lookup []float64, edges []int16) []int16 {
	pixels := len(edges)
	out := make([]int16, len(lookup)*pixels)
	for p, e := range edges {
		for s, l := range lookup {
			var hit bool
			switch e {
			case edge.AllAboveThreshold:
				hit = true
			case edge.AllBelowThreshold, edge.MaskedOut:
				hit = false
			default:
				hit = l >= float64(e)
			}
			if hit {
				out[s*pixels+p] = HitCount
			}
		}
	}
	return out
}

// Scan describes a synthetic scan file.
type Scan struct {
	Detector string
	Lookup   []float64
	Edges    []int16
	// Control, when not empty, is written as a dataset named ControlName.
	ControlName string
	Control     float64
}

// WriteScan writes s as a scan file for grid g at path.
func WriteScan(t testing.TB, path string, g *geometry.ChipGrid, s Scan) {
	t.Helper()
	f, err := store.Create(path)
	if err != nil {
		t.Fatalf("creating scan %s: %v", path, err)
	}
	defer f.Close()

	loc := store.Loc("entry1", s.Detector)
	dims := []int{len(s.Lookup), g.PixelRows(), g.PixelsPerRow()}
	data := StepMajorVolume(s.Lookup, s.Edges)
	if err := f.WriteVolume(loc, "data", edge.StepMajor, dims, data, 64); err != nil {
		t.Fatalf("writing scan volume: %v", err)
	}
	if err := f.WriteDataset(loc, "threshold0", store.NewFloat64(store.Shape1D(len(s.Lookup)), s.Lookup)); err != nil {
		t.Fatalf("writing scan lookup: %v", err)
	}
	if s.ControlName != "" {
		d := store.NewFloat64(store.Shape1D(1), []float64{s.Control})
		if err := f.WriteDataset(loc, s.ControlName, d); err != nil {
			t.Fatalf("writing scan control: %v", err)
		}
	}
}

// TempPath returns name inside a per-test temporary directory.
func TempPath(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

package planner

import (
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/response"
)

// ControlBits computes the DAC adjustment of every pixel of every present
// chip as floor((edge-eqTarget)/resolution) clamped to [0, MaxDACBits].
// resolution is indexed by chip index. Pixels without a valid edge, on chips
// without a resolution, or outside any chip get 0.
func ControlBits(g *geometry.ChipGrid, edges []int16, resolution []float64, eqTarget float64) ([]int16, error) {
	if len(edges) != g.NumPixels() {
		return nil, fmt.Errorf("%w: edge map has %d pixels, grid has %d", response.ErrLengthMismatch, len(edges), g.NumPixels())
	}
	if len(resolution) != g.NumChips() {
		return nil, fmt.Errorf("%w: %d resolutions for %d chips", response.ErrLengthMismatch, len(resolution), g.NumChips())
	}
	bits := make([]int16, len(edges))
	for _, c := range g.Chips() {
		res := resolution[c.Index]
		if math.IsNaN(res) || res <= 0 {
			continue
		}
		for idx := range g.PixelIndices(c) {
			v := edges[idx]
			if !edge.IsValid(v) {
				continue
			}
			b := math.Floor((float64(v) - eqTarget) / res)
			bits[idx] = int16(math.Max(0, math.Min(float64(MaxDACBits), b)))
		}
	}
	return bits, nil
}

// Combine ORs the bit fields together with orValue into a new slice. Any
// resulting word outside [MinCode, MaxCode] is an encoding error.
func Combine(orValue int16, fields ...[]int16) ([]int16, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no bit fields to combine")
	}
	n := len(fields[0])
	for i, f := range fields {
		if len(f) != n {
			return nil, fmt.Errorf("%w: bit field %d has %d pixels, want %d", response.ErrLengthMismatch, i, len(f), n)
		}
	}
	out := make([]int16, n)
	for i := range out {
		w := orValue
		for _, f := range fields {
			w |= f[i]
		}
		if w < MinCode || w > MaxCode {
			return nil, encodingError(i, w)
		}
		out[i] = w
	}
	return out, nil
}

// TweakCounts reports how many pixels a Tweak moved.
type TweakCounts struct {
	Up      int
	Down    int
	Wrapped int
}

// Tweak nudges every pixel with a valid edge one code towards eqTarget: up
// when the edge is above the target, down when below. Codes wrap within
// [MinCode, MaxCode], so MaxCode moving up becomes MinCode and MinCode moving
// down becomes MaxCode. adj is checked before anything is changed.
func Tweak(edges, adj []int16, eqTarget float64) ([]int16, TweakCounts, error) {
	var counts TweakCounts
	if len(edges) != len(adj) {
		return nil, counts, fmt.Errorf("%w: %d edges for %d adjustment words", response.ErrLengthMismatch, len(edges), len(adj))
	}
	if err := CheckCodes(adj); err != nil {
		return nil, counts, err
	}
	out := slices.Clone(adj)
	for i, v := range edges {
		if !edge.IsValid(v) {
			continue
		}
		switch e := float64(v); {
		case e > eqTarget:
			counts.Up++
			if out[i] == MaxCode {
				out[i] = MinCode
				counts.Wrapped++
			} else {
				out[i]++
			}
		case e < eqTarget:
			counts.Down++
			if out[i] == MinCode {
				out[i] = MaxCode
				counts.Wrapped++
			} else {
				out[i]--
			}
		}
	}
	return out, counts, nil
}

// SelectClosest builds a new adjustment map taking, per pixel, the word from
// the run whose edge is closer to eqTarget. Ties favour the first run. A
// pixel valid in only one run takes that run's word unconditionally; a pixel
// valid in neither keeps the first run's word.
func SelectClosest(edgesA, edgesB, adjA, adjB []int16, eqTarget float64) ([]int16, error) {
	n := len(edgesA)
	if len(edgesB) != n || len(adjA) != n || len(adjB) != n {
		return nil, fmt.Errorf("%w: inputs have %d, %d, %d and %d pixels",
			response.ErrLengthMismatch, len(edgesA), len(edgesB), len(adjA), len(adjB))
	}
	out := make([]int16, n)
	for i := range out {
		if pickSecond(edgesA[i], edgesB[i], eqTarget) {
			out[i] = adjB[i]
		} else {
			out[i] = adjA[i]
		}
	}
	if err := CheckCodes(out); err != nil {
		return nil, err
	}
	return out, nil
}

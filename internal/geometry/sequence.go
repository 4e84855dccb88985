package geometry

import (
	"fmt"
	"iter"
)

// PixelIndices yields the global index of every pixel of c, left to right
// then top to bottom. Each call returns a fresh sequence.
func (g *ChipGrid) PixelIndices(c Chip) iter.Seq[int] {
	ppr := g.PixelsPerRow()
	start := c.Top*ppr + c.Left
	return func(yield func(int) bool) {
		idx := start
		for y := 0; y < ChipSize; y++ {
			for x := 0; x < ChipSize; x++ {
				if !yield(idx) {
					return
				}
				idx++
			}
			idx += ppr - ChipSize
		}
	}
}

// ExtractChip copies the ChipSize×ChipSize block of c out of a global pixel
// array.
func ExtractChip[T any](g *ChipGrid, values []T, c Chip) ([]T, error) {
	if len(values) != g.NumPixels() {
		return nil, fmt.Errorf("pixel array has %d values, want %d", len(values), g.NumPixels())
	}
	out := make([]T, 0, ChipSize*ChipSize)
	for idx := range g.PixelIndices(c) {
		out = append(out, values[idx])
	}
	return out, nil
}

// InsertChip writes a ChipSize×ChipSize block into the footprint of c in a
// global pixel array.
func InsertChip[T any](g *ChipGrid, dst []T, c Chip, block []T) error {
	if len(dst) != g.NumPixels() {
		return fmt.Errorf("pixel array has %d values, want %d", len(dst), g.NumPixels())
	}
	if len(block) != ChipSize*ChipSize {
		return fmt.Errorf("chip block has %d values, want %d", len(block), ChipSize*ChipSize)
	}
	i := 0
	for idx := range g.PixelIndices(c) {
		dst[idx] = block[i]
		i++
	}
	return nil
}

package geometry

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChipTopPixel(t *testing.T) {
	t.Parallel()

	want := []int{0, 259, 639, 898, 1278, 1537}
	for row, top := range want {
		got, err := ChipTopPixel(row)
		require.NoError(t, err)
		assert.Equal(t, top, got, "row %d", row)

		bottom, err := ChipBottomPixel(row)
		require.NoError(t, err)
		assert.Equal(t, top+ChipSize-1, bottom, "row %d", row)
	}
}

func TestChipTopPixel_OutOfRange(t *testing.T) {
	t.Parallel()

	for _, row := range []int{-1, 6, 7, 100} {
		_, err := ChipTopPixel(row)
		assert.ErrorIs(t, err, ErrRowOutOfRange, "row %d", row)
		_, err = ChipBottomPixel(row)
		assert.ErrorIs(t, err, ErrRowOutOfRange, "row %d", row)
	}
}

func TestChipColumns(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ChipLeftPixel(0))
	assert.Equal(t, 255, ChipRightPixel(0))
	assert.Equal(t, 259, ChipLeftPixel(1))
	assert.Equal(t, 514, ChipRightPixel(1))
	assert.Equal(t, 2069, PixelsPerRow(8))
	assert.Equal(t, 256, PixelsPerRow(1))
	assert.Equal(t, 515, PixelsPerRow(2))
}

func TestNewChipGrid_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rows    int
		cols    int
		present []bool
	}{
		{"zero rows", 0, 1, nil},
		{"zero columns", 1, 0, nil},
		{"too many rows", 7, 1, make([]bool, 7)},
		{"short presence", 2, 2, make([]bool, 3)},
		{"long presence", 1, 2, make([]bool, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewChipGrid(tt.rows, tt.cols, tt.present)
			assert.Error(t, err)
		})
	}
}

func TestChipGrid_Chips(t *testing.T) {
	t.Parallel()

	g, err := NewChipGrid(2, 3, []bool{true, false, true, false, true, true})
	require.NoError(t, err)

	chips := g.Chips()
	require.Len(t, chips, 4)

	var coords [][2]int
	for _, c := range chips {
		coords = append(coords, [2]int{c.Row, c.Column})
	}
	assert.Equal(t, [][2]int{{0, 0}, {0, 2}, {1, 1}, {1, 2}}, coords)

	c := chips[2]
	assert.Equal(t, 4, c.Index)
	assert.Equal(t, 259, c.Top)
	assert.Equal(t, 514, c.Bottom)
	assert.Equal(t, 259, c.Left)
	assert.Equal(t, 514, c.Right)

	// Mutating the returned slice must not leak into the grid.
	chips[0].Row = 99
	assert.Equal(t, 0, g.Chips()[0].Row)
}

func TestChipGrid_Dimensions(t *testing.T) {
	t.Parallel()

	g, err := FullChipGrid(6, 8)
	require.NoError(t, err)
	assert.Equal(t, 2069, g.PixelsPerRow())
	assert.Equal(t, 1793, g.PixelRows())
	assert.Equal(t, 48, g.NumChips())
	assert.Len(t, g.Chips(), 48)

	_, err = g.Chip(6, 0)
	assert.ErrorIs(t, err, ErrRowOutOfRange)
	_, err = g.Chip(0, 8)
	assert.Error(t, err)
}

func TestChipGrid_ActiveMask(t *testing.T) {
	t.Parallel()

	g, err := NewChipGrid(1, 2, []bool{true, false})
	require.NoError(t, err)

	mask := g.ActiveMask()
	require.Len(t, mask, g.NumPixels())

	ppr := g.PixelsPerRow()
	assert.True(t, mask[0])
	assert.True(t, mask[255])
	assert.False(t, mask[256], "gap pixel")
	assert.False(t, mask[259], "absent chip")
	assert.True(t, mask[255*ppr+255])

	active := 0
	for _, m := range mask {
		if m {
			active++
		}
	}
	assert.Equal(t, ChipSize*ChipSize, active)
}

// ---

func TestPixelIndices(t *testing.T) {
	t.Parallel()

	g, err := FullChipGrid(2, 8)
	require.NoError(t, err)
	ppr := g.PixelsPerRow()

	for _, c := range g.Chips() {
		indices := slices.Collect(g.PixelIndices(c))
		require.Len(t, indices, ChipSize*ChipSize, "%s", c)

		for i, idx := range indices {
			y, x := idx/ppr, idx%ppr
			require.True(t, c.Contains(y, x), "%s index %d -> (%d,%d)", c, i, y, x)
			require.Equal(t, c.Top+i/ChipSize, y)
			require.Equal(t, c.Left+i%ChipSize, x)
		}
	}
}

func TestPixelIndices_FreshSequence(t *testing.T) {
	t.Parallel()

	g, err := FullChipGrid(1, 1)
	require.NoError(t, err)
	seq := g.PixelIndices(g.Chips()[0])

	n := 0
	for range seq {
		n++
		if n == 10 {
			break
		}
	}
	assert.Equal(t, 10, n)

	// A second range over the same sequence starts again from the first pixel.
	first := -1
	for idx := range seq {
		first = idx
		break
	}
	assert.Equal(t, 0, first)
	assert.Len(t, slices.Collect(seq), ChipSize*ChipSize)
}

func TestExtractInsertChip(t *testing.T) {
	t.Parallel()

	g, err := FullChipGrid(1, 2)
	require.NoError(t, err)
	c, err := g.Chip(0, 1)
	require.NoError(t, err)

	global := make([]int16, g.NumPixels())
	block := make([]int16, ChipSize*ChipSize)
	for i := range block {
		block[i] = int16(i % 512)
	}
	require.NoError(t, InsertChip(g, global, c, block))

	got, err := ExtractChip(g, global, c)
	require.NoError(t, err)
	assert.Equal(t, block, got)

	other, err := ExtractChip(g, global, g.Chips()[0])
	require.NoError(t, err)
	assert.Equal(t, make([]int16, ChipSize*ChipSize), other)

	_, err = ExtractChip(g, global[:10], c)
	assert.Error(t, err)
	assert.Error(t, InsertChip(g, global, c, block[:10]))
}

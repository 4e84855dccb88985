package geometry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

const (
	// ChipSize is the width and height of one chip in pixels.
	ChipSize = 256
	// ColumnGap is the number of dead pixels between chip columns.
	ColumnGap = 3
	// MaxChipRows is the number of chip rows covered by the row gap table.
	MaxChipRows = 6
)

// rowGaps holds the dead pixels between chip row i and i+1.
var rowGaps = [MaxChipRows - 1]int{3, 124, 3, 124, 3}

// ErrRowOutOfRange is returned for chip rows outside the gap table.
var ErrRowOutOfRange = errors.New("chip row out of range")

// ChipTopPixel returns the global y of the first pixel row of chip row.
func ChipTopPixel(row int) (int, error) {
	if row < 0 || row >= MaxChipRows {
		return 0, fmt.Errorf("%w: %d (max %d)", ErrRowOutOfRange, row, MaxChipRows-1)
	}
	top := row * ChipSize
	for _, gap := range rowGaps[:row] {
		top += gap
	}
	return top, nil
}

// ChipBottomPixel returns the global y of the last pixel row of chip row.
func ChipBottomPixel(row int) (int, error) {
	top, err := ChipTopPixel(row)
	if err != nil {
		return 0, err
	}
	return top + ChipSize - 1, nil
}

// ChipLeftPixel returns the global x of the first pixel column of chip column col.
func ChipLeftPixel(col int) int {
	return col * (ChipSize + ColumnGap)
}

// ChipRightPixel returns the global x of the last pixel column of chip column col.
func ChipRightPixel(col int) int {
	return ChipLeftPixel(col) + ChipSize - 1
}

// PixelsPerRow returns the width of the global pixel array for a grid with
// the given number of chip columns, gaps included.
func PixelsPerRow(columns int) int {
	return ChipRightPixel(columns-1) + 1
}

// Chip is one present chip of a grid, with its bounds in global pixel
// coordinates (inclusive).
type Chip struct {
	Row    int
	Column int
	Index  int

	Top    int
	Bottom int
	Left   int
	Right  int
}

func (c Chip) String() string {
	return fmt.Sprintf("chip(row=%d, col=%d)", c.Row, c.Column)
}

// Contains reports whether the global pixel (y, x) lies inside the chip.
func (c Chip) Contains(y, x int) bool {
	return y >= c.Top && y <= c.Bottom && x >= c.Left && x <= c.Right
}

// ChipGrid is the logical layout of a detector: a rows×columns arrangement
// of chip sites, each flagged present or absent. It is read-only once built
// and safe for concurrent use.
type ChipGrid struct {
	rows    int
	columns int
	present []bool

	chipsOnce sync.Once
	chips     []Chip
}

// NewChipGrid validates the layout and returns a grid. present is indexed by
// row*columns + column and is copied.
func NewChipGrid(rows, columns int, present []bool) (*ChipGrid, error) {
	if rows <= 0 || columns <= 0 {
		return nil, fmt.Errorf("chip grid must have at least one row and column, got %dx%d", rows, columns)
	}
	if rows > MaxChipRows {
		return nil, fmt.Errorf("%w: grid has %d rows (max %d)", ErrRowOutOfRange, rows, MaxChipRows)
	}
	if len(present) != rows*columns {
		return nil, fmt.Errorf("chip presence has %d flags, want %d", len(present), rows*columns)
	}
	return &ChipGrid{
		rows:    rows,
		columns: columns,
		present: slices.Clone(present),
	}, nil
}

// FullChipGrid returns a grid with every chip present.
func FullChipGrid(rows, columns int) (*ChipGrid, error) {
	present := make([]bool, rows*columns)
	for i := range present {
		present[i] = true
	}
	return NewChipGrid(rows, columns, present)
}

// Rows returns the number of chip rows.
func (g *ChipGrid) Rows() int { return g.rows }

// Columns returns the number of chip columns.
func (g *ChipGrid) Columns() int { return g.columns }

// Present returns a copy of the presence flags.
func (g *ChipGrid) Present() []bool { return slices.Clone(g.present) }

// IsPresent reports whether the chip at (row, col) is fitted.
func (g *ChipGrid) IsPresent(row, col int) bool {
	if row < 0 || row >= g.rows || col < 0 || col >= g.columns {
		return false
	}
	return g.present[row*g.columns+col]
}

// NumChips returns the number of chip sites, present or not.
func (g *ChipGrid) NumChips() int { return g.rows * g.columns }

// PixelsPerRow returns the width of the global pixel array.
func (g *ChipGrid) PixelsPerRow() int { return PixelsPerRow(g.columns) }

// PixelRows returns the height of the global pixel array.
func (g *ChipGrid) PixelRows() int {
	// rows was validated in NewChipGrid.
	bottom, _ := ChipBottomPixel(g.rows - 1)
	return bottom + 1
}

// NumPixels returns PixelRows()*PixelsPerRow().
func (g *ChipGrid) NumPixels() int { return g.PixelRows() * g.PixelsPerRow() }

// Chips returns the present chips in row-major order. The list is built on
// first use and shared afterwards; callers receive their own copy.
func (g *ChipGrid) Chips() []Chip {
	g.chipsOnce.Do(func() {
		for row := 0; row < g.rows; row++ {
			for col := 0; col < g.columns; col++ {
				if !g.present[row*g.columns+col] {
					continue
				}
				c, _ := g.chipAt(row, col)
				g.chips = append(g.chips, c)
			}
		}
	})
	return slices.Clone(g.chips)
}

// Chip returns the chip at (row, col) whether or not it is present.
func (g *ChipGrid) Chip(row, col int) (Chip, error) {
	if row < 0 || row >= g.rows {
		return Chip{}, fmt.Errorf("%w: %d (grid has %d rows)", ErrRowOutOfRange, row, g.rows)
	}
	if col < 0 || col >= g.columns {
		return Chip{}, fmt.Errorf("chip column %d out of range (grid has %d columns)", col, g.columns)
	}
	return g.chipAt(row, col)
}

func (g *ChipGrid) chipAt(row, col int) (Chip, error) {
	top, err := ChipTopPixel(row)
	if err != nil {
		return Chip{}, err
	}
	left := ChipLeftPixel(col)
	return Chip{
		Row:    row,
		Column: col,
		Index:  row*g.columns + col,
		Top:    top,
		Bottom: top + ChipSize - 1,
		Left:   left,
		Right:  left + ChipSize - 1,
	}, nil
}

// ActiveMask returns a per-pixel flag that is true inside present chips and
// false in gaps and absent chips.
func (g *ChipGrid) ActiveMask() []bool {
	mask := make([]bool, g.NumPixels())
	for _, c := range g.Chips() {
		for idx := range g.PixelIndices(c) {
			mask[idx] = true
		}
	}
	return mask
}

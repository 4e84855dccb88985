// Package geometry maps the logical chip grid of a tiled pixel detector onto
// the global 2-D pixel array.
//
// The detector is built from identical square chips of ChipSize×ChipSize
// pixels. Neighbouring chip columns are separated by a fixed ColumnGap of
// dead pixels. Chip rows alternate between a narrow gap inside a module and a
// wide gap between modules, so their offsets come from a fixed table that
// covers at most MaxChipRows rows.
//
// Pixel arrays are flat and row-major: the pixel at (y, x) lives at index
// y*PixelsPerRow + x.
package geometry

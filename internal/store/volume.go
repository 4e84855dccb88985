package store

import (
	"fmt"

	"github.com/banshee-data/equalisation/internal/edge"
)

// Volume exposes a 3-D int16 dataset as an edge.VolumeSource.
type Volume struct {
	f      *File
	loc    Location
	name   string
	layout edge.Layout
	dims   []int
}

// Volume opens loc/name for slice reads in the given layout.
func (f *File) Volume(loc Location, name string, layout edge.Layout) (*Volume, error) {
	shape, dtype, err := f.Shape(loc, name)
	if err != nil {
		return nil, err
	}
	if dtype != Int16 {
		return nil, fmt.Errorf("scan volume %s/%s is %s, want %s", loc, name, dtype, Int16)
	}
	dims := make([]int, len(shape))
	for i, s := range shape {
		dims[i] = int(s)
	}
	if _, _, _, err := layout.Dims(dims); err != nil {
		return nil, fmt.Errorf("scan volume %s/%s: %w", loc, name, err)
	}
	return &Volume{f: f, loc: loc, name: name, layout: layout, dims: dims}, nil
}

// Shape implements edge.VolumeSource.
func (v *Volume) Shape() []int { return v.dims }

// ReadRows implements edge.VolumeSource.
func (v *Volume) ReadRows(row, count int) ([]int16, error) {
	d, err := v.f.ReadRange(v.loc, v.name, v.layout.RowAxis(), row, count)
	if err != nil {
		return nil, err
	}
	return d.Int16, nil
}

// WriteVolume stores a 3-D int16 volume chunked along its pixel-row axis so
// that Volume.ReadRows touches only the rows it needs.
func (f *File) WriteVolume(loc Location, name string, layout edge.Layout, dims []int, data []int16, rowsPerChunk int) error {
	if _, _, _, err := layout.Dims(dims); err != nil {
		return err
	}
	shape := make([]uint64, len(dims))
	for i, d := range dims {
		shape[i] = uint64(d)
	}
	return f.WriteDataset(loc, name, NewInt16(shape, data), WithChunking(layout.RowAxis(), rowsPerChunk))
}

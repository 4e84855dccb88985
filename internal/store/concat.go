package store

import (
	"fmt"
	"slices"
)

// ReadStack reads loc/name from every file and stacks them along a new
// leading axis. Every source must have the same type and shape.
func ReadStack(files []string, loc Location, name string) (*Dataset, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("concatenate %s/%s: no files", loc, name)
	}
	var (
		first *Dataset
		i16   []int16
		f64   []float64
	)
	for _, path := range files {
		d, err := readFrom(path, loc, name)
		if err != nil {
			return nil, fmt.Errorf("concatenate %s/%s: %w", loc, name, err)
		}
		if first == nil {
			first = d
		} else if d.Type != first.Type || !slices.Equal(d.Shape, first.Shape) {
			return nil, fmt.Errorf("concatenate %s/%s: %s is %s%v, first file is %s%v",
				loc, name, path, d.Type, d.Shape, first.Type, first.Shape)
		}
		i16 = append(i16, d.Int16...)
		f64 = append(f64, d.Float64...)
	}
	shape := append([]uint64{uint64(len(files))}, first.Shape...)
	return &Dataset{Shape: shape, Type: first.Type, Int16: i16, Float64: f64}, nil
}

// Concatenate writes the ReadStack of files to out. Any unreadable or
// mismatched source aborts before out is touched.
func Concatenate(files []string, loc Location, name string, out *File) error {
	stacked, err := ReadStack(files, loc, name)
	if err != nil {
		return err
	}
	return out.WriteDataset(loc, name, stacked)
}

// ConcatenateValues writes values as a 1-D float64 dataset.
func ConcatenateValues(values []float64, loc Location, name string, out *File) error {
	return out.WriteDataset(loc, name, NewFloat64(Shape1D(len(values)), slices.Clone(values)))
}

func readFrom(path string, loc Location, name string) (*Dataset, error) {
	f, err := OpenExisting(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDataset(loc, name)
}

package equalisation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/population"
	"github.com/banshee-data/equalisation/internal/store"
)

// ChipFit is the population and Gaussian fit of one chip. Err is a
// *population.FitError when the fit failed.
type ChipFit struct {
	Chip       geometry.Chip
	Population population.Population
	Peak       population.Peak
	Err        error
}

// CalcEdgeThresholds extracts the edge of every pixel from the scan volume
// entry1/<detector>/data, using entry1/<detector>/threshold0 as the step
// lookup, and writes the edge map with per-chip blocks, populations and
// Gaussian fits to resultFile. When controlName is not empty the first
// value of that scan dataset is recorded as the thresholdAVal attribute.
func (e *Equaliser) CalcEdgeThresholds(ctx context.Context, scanFile, detector, controlName, resultFile string) error {
	logf("calculating edge thresholds from %s (%s) into %s", scanFile, detector, resultFile)
	scan, err := store.OpenExisting(scanFile)
	if err != nil {
		return err
	}
	defer scan.Close()

	loc := ScanLocation(detector)
	vol, err := scan.Volume(loc, ScanData, e.cfg.Layout())
	if err != nil {
		return err
	}
	lookupData, err := scan.ReadDataset(loc, ScanThreshold0)
	if err != nil {
		return err
	}
	lookup := lookupTable(lookupData.Float64s())

	var control []float64
	if controlName != "" {
		d, err := scan.ReadDataset(loc, controlName)
		if err != nil {
			return err
		}
		if d.Len() == 0 {
			return fmt.Errorf("%s/%s in %s is empty", loc, controlName, scanFile)
		}
		control = d.Float64s()[:1]
	}

	ext := e.cfg.Extractor()
	edges, err := ext.Extract(vol, lookup, e.grid.ActiveMask())
	if err != nil {
		return fmt.Errorf("%s: %w", scanFile, err)
	}
	fits, err := e.fitChips(ctx, func(c geometry.Chip) population.Population {
		return population.FromEdges(edges.Values, e.grid.PixelIndices(c))
	})
	if err != nil {
		return err
	}

	err = e.writeResult(resultFile, func(out *store.File) error {
		d := store.NewInt16(store.Shape2D(edges.Height, edges.Width), edges.Values)
		if err := out.WriteDataset(Location, EdgeThresholds, d); err != nil {
			return err
		}
		if err := out.WriteAttribute(Location, EdgeThresholds, AttrThresholdLimit, ext.Threshold); err != nil {
			return err
		}
		if control != nil {
			if err := out.WriteAttribute(Location, EdgeThresholds, AttrThresholdAVal, control); err != nil {
				return err
			}
		}
		if err := e.writeChipEdges(out, edges.Values); err != nil {
			return err
		}
		return e.writeChipFits(out, fits)
	})
	if err != nil {
		return err
	}
	c := edges.Counts()
	logf("edge thresholds %s: %d valid, %d all-below, %d all-above, %d masked",
		resultFile, c.Valid, c.AllBelow, c.AllAbove, c.Masked)
	return nil
}

// lookupTable truncates the recorded threshold0 values to integers.
// Values outside int16 are pinned to an invalid code so that the extractor
// rejects them.
func lookupTable(values []float64) []int16 {
	out := make([]int16, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v) || v < math.MinInt16:
			out[i] = math.MinInt16
		case v > math.MaxInt16:
			out[i] = math.MaxInt16
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// ChipPopulations bins the named per-pixel dataset of edgeFile chip by chip,
// fits a Gaussian to each chip and writes the results to resultFile. An
// int16 dataset is treated as an edge map; a float dataset as per-pixel
// values such as a shift map.
func (e *Equaliser) ChipPopulations(ctx context.Context, edgeFile, dataset, resultFile string) error {
	logf("chip populations of %s/%s into %s", edgeFile, dataset, resultFile)
	d, err := readDataset(edgeFile, dataset)
	if err != nil {
		return err
	}
	if d.Len() != e.grid.NumPixels() {
		return fmt.Errorf("%s/%s in %s has %d pixels, grid has %d", Location, dataset, edgeFile, d.Len(), e.grid.NumPixels())
	}

	var build func(geometry.Chip) population.Population
	if d.Type == store.Int16 {
		build = func(c geometry.Chip) population.Population {
			return population.FromEdges(d.Int16, e.grid.PixelIndices(c))
		}
	} else {
		build = func(c geometry.Chip) population.Population {
			return population.FromValues(d.Float64, e.grid.PixelIndices(c))
		}
	}
	fits, err := e.fitChips(ctx, build)
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		if d.Type == store.Int16 {
			if err := e.writeChipEdges(out, d.Int16); err != nil {
				return err
			}
		}
		return e.writeChipFits(out, fits)
	})
}

// DACPixelShift writes the per-pixel edge shift between edgeFileX and the
// reference edgeFile0, with chip populations and Gaussian fits of the
// shifts. Pixels without a valid edge in both files have no shift.
func (e *Equaliser) DACPixelShift(ctx context.Context, edgeFileX, edgeFile0, resultFile string) error {
	logf("DAC pixel shift %s - %s into %s", edgeFileX, edgeFile0, resultFile)
	a, err := e.readEdgeMap(edgeFileX)
	if err != nil {
		return err
	}
	b, err := e.readEdgeMap(edgeFile0)
	if err != nil {
		return err
	}
	shift, err := edge.Shift(a, b)
	if err != nil {
		return err
	}
	fits, err := e.fitChips(ctx, func(c geometry.Chip) population.Population {
		return population.FromValues(shift, e.grid.PixelIndices(c))
	})
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		if err := out.WriteDataset(Location, DACPixelShiftName, store.NewFloat64(e.pixelShape(), shift)); err != nil {
			return err
		}
		return e.writeChipFits(out, fits)
	})
}

func (e *Equaliser) readEdgeMap(path string) (*edge.Map, error) {
	d, err := e.readPixelMap(path, EdgeThresholds)
	if err != nil {
		return nil, err
	}
	return edge.MapFromValues(e.grid.PixelRows(), e.grid.PixelsPerRow(), d.Int16)
}

// fitChips builds and fits the population of every present chip, at most
// fit_workers at a time. A failed fit is recorded on its chip and does not
// stop the others.
func (e *Equaliser) fitChips(ctx context.Context, build func(geometry.Chip) population.Population) ([]ChipFit, error) {
	chips := e.grid.Chips()
	fits := make([]ChipFit, len(chips))
	opts := e.cfg.FitOptions()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.GetFitWorkers())
	for i, c := range chips {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f := ChipFit{Chip: c, Population: build(c)}
			f.Peak, f.Err = population.Fit(f.Population, opts)
			if f.Err != nil {
				var fe *population.FitError
				if errors.As(f.Err, &fe) {
					fe.Label = c.String()
				}
				logf("gaussian fit failed: %v", f.Err)
			}
			fits[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fits, nil
}

// writeChipEdges writes the presence flags and the edge block of every
// present chip.
func (e *Equaliser) writeChipEdges(out *store.File, edges []int16) error {
	present := store.NewInt16(e.chipShape(), boolsToInt16(e.grid.Present()))
	if err := out.WriteDataset(Location, ChipPresent, present); err != nil {
		return err
	}
	for _, c := range e.grid.Chips() {
		block, err := geometry.ExtractChip(e.grid, edges, c)
		if err != nil {
			return err
		}
		d := store.NewInt16(store.Shape2D(geometry.ChipSize, geometry.ChipSize), block)
		if err := out.WriteDataset(Location, ChipEdgeThresholds(c.Row, c.Column), d); err != nil {
			return err
		}
	}
	return nil
}

// writeChipFits writes each chip's population and the per-chip Gaussian
// parameters. Absent chips hold NaN; chips whose fit failed hold
// population.FailedSigma as sigma and NaN for position and height.
func (e *Equaliser) writeChipFits(out *store.File, fits []ChipFit) error {
	n := e.grid.NumChips()
	position, sigma, height := nanSlice(n), nanSlice(n), nanSlice(n)
	for _, f := range fits {
		c := f.Chip
		xs := store.NewFloat64(store.Shape1D(f.Population.Len()), f.Population.XVals)
		if err := out.WriteDataset(Location, PopulationXVals(c.Row, c.Column), xs); err != nil {
			return err
		}
		ys := store.NewFloat64(store.Shape1D(f.Population.Len()), f.Population.YVals)
		if err := out.WriteDataset(Location, PopulationYVals(c.Row, c.Column), ys); err != nil {
			return err
		}
		if f.Err != nil {
			sigma[c.Index] = population.FailedSigma
			continue
		}
		position[c.Index] = f.Peak.Position
		sigma[c.Index] = f.Peak.Sigma()
		height[c.Index] = f.Peak.Height
	}
	for name, values := range map[string][]float64{
		GaussianPosition: position,
		GaussianSigma:    sigma,
		GaussianHeight:   height,
	} {
		if err := out.WriteDataset(Location, name, store.NewFloat64(e.chipShape(), values)); err != nil {
			return err
		}
	}
	return nil
}

package equalisation

import (
	"fmt"

	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/planner"
	"github.com/banshee-data/equalisation/internal/population"
	"github.com/banshee-data/equalisation/internal/store"
)

// readPopulations loads the stored population of every present chip,
// indexed by chip index. Absent chips get an empty population.
func (e *Equaliser) readPopulations(path string) ([]population.Population, error) {
	f, err := store.OpenExisting(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pops := make([]population.Population, e.grid.NumChips())
	for _, c := range e.grid.Chips() {
		pops[c.Index], err = readPopulation(f, c)
		if err != nil {
			return nil, err
		}
	}
	return pops, nil
}

func readPopulation(f *store.File, c geometry.Chip) (population.Population, error) {
	xs, err := f.ReadDataset(Location, PopulationXVals(c.Row, c.Column))
	if err != nil {
		return population.Population{}, err
	}
	ys, err := f.ReadDataset(Location, PopulationYVals(c.Row, c.Column))
	if err != nil {
		return population.Population{}, err
	}
	if xs.Len() != ys.Len() {
		return population.Population{}, fmt.Errorf("%v population in %s has %d values and %d counts",
			c, f.Path(), xs.Len(), ys.Len())
	}
	return population.Population{XVals: xs.Float64s(), YVals: ys.Float64s()}, nil
}

// ThresholdTargetFromChipPopulations writes, per chip, the edge value above
// which only tailBudget pixels lie, and the largest such value as the
// maxThresholdLimit attribute. Chips without a population hold NaN.
func (e *Equaliser) ThresholdTargetFromChipPopulations(edgeFile string, tailBudget float64, resultFile string) error {
	logf("threshold limits of %s (tail %g) into %s", edgeFile, tailBudget, resultFile)
	pops, err := e.readPopulations(edgeFile)
	if err != nil {
		return err
	}
	limits := planner.OutlierLimits(pops, tailBudget)
	return e.writeResult(resultFile, func(out *store.File) error {
		d := store.NewFloat64(e.chipShape(), limits.PerChip)
		if err := out.WriteDataset(Location, ThresholdLimits, d); err != nil {
			return err
		}
		return out.WriteAttribute(Location, ThresholdLimits, AttrMaxThresholdLimit, limits.Max)
	})
}

// DACPixelOpt derives the DAC pixel code and the per-step resolution of
// every chip from the per-chip shift response in responseFile and the
// threshold limits in limitsFile.
func (e *Equaliser) DACPixelOpt(responseFile, limitsFile string, eqTarget float64, resultFile string) error {
	logf("DAC pixel codes from %s and %s into %s", responseFile, limitsFile, resultFile)
	m, err := e.readChipModel(responseFile)
	if err != nil {
		return err
	}
	limits, err := e.readChipValues(limitsFile, ThresholdLimits)
	if err != nil {
		return err
	}
	plan, err := planner.DACCodes(m, limits, eqTarget, e.cfg.GetDACScale())
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		if err := out.WriteDataset(Location, DACPixelOptName, store.NewInt16(e.chipShape(), plan.Codes)); err != nil {
			return err
		}
		return out.WriteDataset(Location, DACPixelResolution, store.NewFloat64(e.chipShape(), plan.Resolution))
	})
}

// DACPixelControlBits writes the DAC adjustment bits of every pixel from the
// edges in edgeFile and the chip resolutions in dacPixelOptFile.
func (e *Equaliser) DACPixelControlBits(edgeFile string, eqTarget float64, dacPixelOptFile, resultFile string) error {
	logf("DAC control bits from %s and %s into %s", edgeFile, dacPixelOptFile, resultFile)
	edges, err := e.readPixelMap(edgeFile, EdgeThresholds)
	if err != nil {
		return err
	}
	resolution, err := e.readChipValues(dacPixelOptFile, DACPixelResolution)
	if err != nil {
		return err
	}
	bits, err := planner.ControlBits(e.grid, edges.Int16, resolution, eqTarget)
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		return out.WriteDataset(Location, DACPixelControlBitsDS, store.NewInt16(e.pixelShape(), bits))
	})
}

// ThresholdAdj ORs the DAC control bits, the threshold-N mask and orValue
// into the per-pixel adjustment words.
func (e *Equaliser) ThresholdAdj(controlBitsFile, maskFile string, orValue int16, resultFile string) error {
	logf("threshold adjust from %s and %s (or %d) into %s", controlBitsFile, maskFile, orValue, resultFile)
	bits, err := e.readPixelMap(controlBitsFile, DACPixelControlBitsDS)
	if err != nil {
		return err
	}
	mask, err := e.readPixelMap(maskFile, ThresholdNMaskName)
	if err != nil {
		return err
	}
	adj, err := planner.Combine(orValue, bits.Int16, mask.Int16)
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		return out.WriteDataset(Location, ThresholdAdjName, store.NewInt16(e.pixelShape(), adj))
	})
}

// TweakThresholdAdj moves every adjustment word in adjFile one step towards
// eqTarget according to the edges measured with it in checkEdgeFile.
func (e *Equaliser) TweakThresholdAdj(checkEdgeFile, adjFile string, eqTarget float64, resultFile string) error {
	edges, err := e.readPixelMap(checkEdgeFile, EdgeThresholds)
	if err != nil {
		return err
	}
	adj, err := e.readPixelMap(adjFile, ThresholdAdjName)
	if err != nil {
		return err
	}
	tweaked, counts, err := planner.Tweak(edges.Int16, adj.Int16, eqTarget)
	if err != nil {
		return fmt.Errorf("%s: %w", adjFile, err)
	}
	logf("tweak %s: %d up, %d down, %d wrapped", resultFile, counts.Up, counts.Down, counts.Wrapped)
	return e.writeResult(resultFile, func(out *store.File) error {
		return out.WriteDataset(Location, ThresholdAdjName, store.NewInt16(e.pixelShape(), tweaked))
	})
}

// SelectClosestThresholdAdj keeps, per pixel, the adjustment word of the run
// whose edge is closer to eqTarget.
func (e *Equaliser) SelectClosestThresholdAdj(edgeFileA, edgeFileB, adjFileA, adjFileB string, eqTarget float64, resultFile string) error {
	logf("select closest of %s and %s into %s", adjFileA, adjFileB, resultFile)
	var maps [4][]int16
	for i, src := range []struct{ path, name string }{
		{edgeFileA, EdgeThresholds},
		{edgeFileB, EdgeThresholds},
		{adjFileA, ThresholdAdjName},
		{adjFileB, ThresholdAdjName},
	} {
		d, err := e.readPixelMap(src.path, src.name)
		if err != nil {
			return err
		}
		maps[i] = d.Int16
	}
	adj, err := planner.SelectClosest(maps[0], maps[1], maps[2], maps[3], eqTarget)
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		return out.WriteDataset(Location, ThresholdAdjName, store.NewInt16(e.pixelShape(), adj))
	})
}

// CombineThresholdResults stacks the edge maps of several files into one
// dataset with a leading run axis, and the attrName attribute of each into
// the threshold axis dataset. Every source is read and checked before
// resultFile is replaced.
func (e *Equaliser) CombineThresholdResults(edgeFiles []string, attrName, resultFile string) error {
	logf("combining %d edge files into %s", len(edgeFiles), resultFile)
	axis := make([]float64, len(edgeFiles))
	for i, path := range edgeFiles {
		f, err := store.OpenExisting(path)
		if err != nil {
			return err
		}
		axis[i], err = f.ReadFloatAttribute(Location, EdgeThresholds, attrName)
		f.Close()
		if err != nil {
			return err
		}
	}
	stacked, err := store.ReadStack(edgeFiles, Location, EdgeThresholds)
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		if err := out.WriteDataset(Location, EdgeThresholds, stacked); err != nil {
			return err
		}
		if err := out.WriteAttribute(Location, EdgeThresholds, AttrSignal, 1); err != nil {
			return err
		}
		if err := store.ConcatenateValues(axis, Location, Threshold, out); err != nil {
			return err
		}
		return out.WriteAttribute(Location, Threshold, AttrAxis, 1)
	})
}

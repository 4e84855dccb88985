package equalisation

import (
	"fmt"

	"github.com/banshee-data/equalisation/internal/planner"
	"github.com/banshee-data/equalisation/internal/response"
	"github.com/banshee-data/equalisation/internal/store"
)

// ResponseFromFiles fits, for every element of the named dataset, a straight
// line through the values found in each file against axisValues. An int16
// dataset is an edge map and is fitted on valid edges only; a float dataset
// such as gaussianPosition is fitted on all points. When axisValues is nil
// the thresholdAVal attribute of each file's edge map is used instead.
func (e *Equaliser) ResponseFromFiles(files []string, axisValues []float64, dataset, resultFile string) error {
	logf("response of %s over %d files into %s", dataset, len(files), resultFile)
	if len(files) < 2 {
		return fmt.Errorf("response needs at least 2 files, got %d", len(files))
	}
	if axisValues == nil {
		var err error
		if axisValues, err = readAxisValues(files); err != nil {
			return err
		}
	}
	if len(axisValues) != len(files) {
		return fmt.Errorf("%d axis values for %d files", len(axisValues), len(files))
	}

	runs := make([]response.Series, len(files))
	var (
		shape []uint64
		mode  = response.AllPoints
	)
	for i, path := range files {
		d, err := readDataset(path, dataset)
		if err != nil {
			return err
		}
		if i > 0 && d.Len() != len(runs[0].Y) {
			return fmt.Errorf("%s: %w", path, response.ErrLengthMismatch)
		}
		if d.Type == store.Int16 {
			mode = response.ValidsOnly
			runs[i] = response.SeriesFromEdges(axisValues[i], d.Int16)
		} else {
			runs[i] = response.SeriesFromValues(axisValues[i], d.Float64)
		}
		shape = d.Shape
	}
	model, err := response.Fit(runs, mode)
	if err != nil {
		return err
	}

	fitOK := boolsToInt16(model.FitOK)
	ok := 0
	for _, v := range model.FitOK {
		if v {
			ok++
		}
	}
	err = e.writeResult(resultFile, func(out *store.File) error {
		if err := out.WriteDataset(Location, ResponseSlopes, store.NewFloat64(shape, model.Slopes)); err != nil {
			return err
		}
		if err := out.WriteDataset(Location, ResponseOffsets, store.NewFloat64(shape, model.Offsets)); err != nil {
			return err
		}
		if err := out.WriteDataset(Location, ResponseFitOK, store.NewInt16(shape, fitOK)); err != nil {
			return err
		}
		return store.ConcatenateValues(axisValues, Location, Threshold, out)
	})
	if err != nil {
		return err
	}
	logf("response %s: %d of %d lines fitted", resultFile, ok, model.Len())
	return nil
}

func readAxisValues(files []string) ([]float64, error) {
	values := make([]float64, len(files))
	for i, path := range files {
		f, err := store.OpenExisting(path)
		if err != nil {
			return nil, err
		}
		values[i], err = f.ReadFloatAttribute(Location, EdgeThresholds, AttrThresholdAVal)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

// readModel loads the response lines written by ResponseFromFiles.
func readModel(path string) (*response.Model, []uint64, error) {
	slopes, err := readDataset(path, ResponseSlopes)
	if err != nil {
		return nil, nil, err
	}
	offsets, err := readDataset(path, ResponseOffsets)
	if err != nil {
		return nil, nil, err
	}
	fitOK, err := readDataset(path, ResponseFitOK)
	if err != nil {
		return nil, nil, err
	}
	if offsets.Len() != slopes.Len() || fitOK.Len() != slopes.Len() {
		return nil, nil, fmt.Errorf("%s: %w", path, response.ErrLengthMismatch)
	}
	m := &response.Model{
		Slopes:  slopes.Float64s(),
		Offsets: offsets.Float64s(),
		FitOK:   make([]bool, slopes.Len()),
	}
	for i, v := range fitOK.Float64s() {
		m.FitOK[i] = v != 0
	}
	return m, slopes.Shape, nil
}

// readChipModel loads a response fitted per chip.
func (e *Equaliser) readChipModel(path string) (*response.Model, error) {
	m, _, err := readModel(path)
	if err != nil {
		return nil, err
	}
	if m.Len() != e.grid.NumChips() {
		return nil, fmt.Errorf("%s has %d response lines, grid has %d chips", path, m.Len(), e.grid.NumChips())
	}
	return m, nil
}

// ConfigFromThresholdResponse inverts every response line at target and
// writes the rounded control values. Unfit lines get planner.NoCode.
func (e *Equaliser) ConfigFromThresholdResponse(responseFile string, target float64, resultFile string) error {
	logf("config for target %g from %s into %s", target, responseFile, resultFile)
	m, shape, err := readModel(responseFile)
	if err != nil {
		return err
	}
	codes := m.Invert(target)
	return e.writeResult(resultFile, func(out *store.File) error {
		if err := out.WriteDataset(Location, ConfigFromResponse, store.NewInt16(shape, codes)); err != nil {
			return err
		}
		return out.WriteAttribute(Location, ConfigFromResponse, AttrThresholdTarget, target)
	})
}

// ThresholdNOpt picks the threshold-N code of every chip from the per-chip
// response in responseFile and the Gaussian sigmas in edgeFile.
func (e *Equaliser) ThresholdNOpt(responseFile, edgeFile string, eqTarget float64, resultFile string) error {
	logf("threshold N from %s and %s into %s", responseFile, edgeFile, resultFile)
	m, err := e.readChipModel(responseFile)
	if err != nil {
		return err
	}
	sigmas, err := e.readChipValues(edgeFile, GaussianSigma)
	if err != nil {
		return err
	}
	codes, err := planner.OptimalThresholdN(m, sigmas, e.cfg.GetSigmaSlope(), eqTarget)
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		return out.WriteDataset(Location, ThresholdNOptName, store.NewInt16(e.chipShape(), codes))
	})
}

// ThresholdNMask compares the edge maps of two runs, the second taken with
// threshold N, and writes the threshold-N selection bit for every pixel
// whose second-run edge is closer to eqTarget.
func (e *Equaliser) ThresholdNMask(edgeFileA, edgeFileB string, eqTarget float64, resultFile string) error {
	logf("threshold N mask from %s and %s into %s", edgeFileA, edgeFileB, resultFile)
	a, err := e.readPixelMap(edgeFileA, EdgeThresholds)
	if err != nil {
		return err
	}
	b, err := e.readPixelMap(edgeFileB, EdgeThresholds)
	if err != nil {
		return err
	}
	mask, err := planner.SelectionMask(a.Int16, b.Int16, eqTarget)
	if err != nil {
		return err
	}
	return e.writeResult(resultFile, func(out *store.File) error {
		return out.WriteDataset(Location, ThresholdNMaskName, store.NewInt16(e.pixelShape(), mask))
	})
}

package equalisation

import (
	"fmt"
	"math"

	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/population"
	"github.com/banshee-data/equalisation/internal/store"
)

// ChipAnalysis summarises the equalisation quality of one chip.
type ChipAnalysis struct {
	Row     int
	Column  int
	Present bool
	// Unequalised counts pixels left MaskedOut in the chip's edge block.
	Unequalised int
	// TailThreshold is the edge value at which the count from the top of
	// the population first reaches the tail budget, or 0 if it never does.
	TailThreshold int
}

// Analyse reports, for every grid cell, the unequalised pixel count and the
// tail threshold of the chip in edgeFile.
func (e *Equaliser) Analyse(edgeFile string, tailBudget float64) ([]ChipAnalysis, error) {
	f, err := store.OpenExisting(edgeFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make([]ChipAnalysis, e.grid.NumChips())
	for i := range out {
		out[i] = ChipAnalysis{Row: i / e.grid.Columns(), Column: i % e.grid.Columns()}
	}
	for _, c := range e.grid.Chips() {
		a := &out[c.Index]
		a.Present = true
		block, err := f.ReadDataset(Location, ChipEdgeThresholds(c.Row, c.Column))
		if err != nil {
			return nil, err
		}
		edges, err := block.Int16s()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", edgeFile, err)
		}
		for _, v := range edges {
			if v == edge.MaskedOut {
				a.Unequalised++
			}
		}
		p, err := readPopulation(f, c)
		if err != nil {
			return nil, err
		}
		if p.Total() >= tailBudget {
			if limit, ok := p.TailLimit(tailBudget); ok && !math.IsNaN(limit) {
				a.TailThreshold = int(limit)
			}
		}
	}
	return out, nil
}

// ChipEdges reads the edge block of one chip from an edge file.
func (e *Equaliser) ChipEdges(edgeFile string, c geometry.Chip) ([]int16, error) {
	f, err := store.OpenExisting(edgeFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := f.ReadDataset(Location, ChipEdgeThresholds(c.Row, c.Column))
	if err != nil {
		return nil, err
	}
	return d.Int16s()
}

// ChipPopulation reads the stored population of one chip.
func (e *Equaliser) ChipPopulation(file string, c geometry.Chip) (population.Population, error) {
	f, err := store.OpenExisting(file)
	if err != nil {
		return population.Population{}, err
	}
	defer f.Close()
	return readPopulation(f, c)
}

// Gaussians holds the per-chip Gaussian parameters of a result file,
// indexed by chip index.
type Gaussians struct {
	Position []float64
	Sigma    []float64
	Height   []float64
}

// Gaussians reads the per-chip fit results written by the edge and
// population stages.
func (e *Equaliser) Gaussians(file string) (Gaussians, error) {
	var g Gaussians
	for _, field := range []struct {
		name string
		dst  *[]float64
	}{
		{GaussianPosition, &g.Position},
		{GaussianSigma, &g.Sigma},
		{GaussianHeight, &g.Height},
	} {
		v, err := e.readChipValues(file, field.name)
		if err != nil {
			return Gaussians{}, err
		}
		*field.dst = v
	}
	return g, nil
}

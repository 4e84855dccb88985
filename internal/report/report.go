package report

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/components"

	"github.com/banshee-data/equalisation/internal/equalisation"
	"github.com/banshee-data/equalisation/internal/fsutil"
	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/monitoring"
	"github.com/banshee-data/equalisation/internal/population"
)

var logf = monitoring.Component("report")

// PageName is the HTML summary written by Generate.
const PageName = "chips.html"

// Options tune Generate.
type Options struct {
	TailBudget float64
	// Stride samples every Stride-th pixel in the edge heatmaps.
	Stride int
}

// Generate writes a population PNG for every present chip of edgeFile and
// an HTML summary page into dir, returning the paths written.
func Generate(e *equalisation.Equaliser, edgeFile, dir string, fs fsutil.FileSystem, o Options) ([]string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	analysis, err := e.Analyse(edgeFile, o.TailBudget)
	if err != nil {
		return nil, err
	}
	fits, err := e.Gaussians(edgeFile)
	if err != nil {
		return nil, err
	}

	g := e.Grid()
	var (
		written []string
		chips   []ChipSummary
		items   []components.Charter
	)
	for _, c := range g.Chips() {
		a := analysis[c.Index]
		chips = append(chips, ChipSummary{
			Label:         fmt.Sprintf("%d,%d", c.Row, c.Column),
			Unequalised:   a.Unequalised,
			TailThreshold: a.TailThreshold,
			Position:      fits.Position[c.Index],
			Sigma:         fits.Sigma[c.Index],
		})

		path, err := chipPlot(e, edgeFile, dir, fs, c, fits)
		if err != nil {
			return written, err
		}
		if path != "" {
			written = append(written, path)
		}
	}

	items = append(items, SummaryBars(filepath.Base(edgeFile), chips))
	hm, err := ChipHeatmap("gaussian position", g.Rows(), g.Columns(), fits.Position)
	if err != nil {
		return written, err
	}
	items = append(items, hm)
	for _, c := range g.Chips() {
		block, err := e.ChipEdges(edgeFile, c)
		if err != nil {
			return written, err
		}
		hm, err := EdgeHeatmap(c.String(), geometry.ChipSize, geometry.ChipSize, block, o.Stride)
		if err != nil {
			return written, err
		}
		items = append(items, hm)
	}

	var buf bytes.Buffer
	if err := RenderPage(&buf, "Equalisation "+filepath.Base(edgeFile), items...); err != nil {
		return written, fmt.Errorf("render error: %w", err)
	}
	page := filepath.Join(dir, PageName)
	if err := fs.WriteFile(page, buf.Bytes(), 0o644); err != nil {
		return written, err
	}
	written = append(written, page)
	logf("wrote %d report files to %s", len(written), dir)
	return written, nil
}

// chipPlot writes the population PNG of chip c, or nothing when the chip
// has no population.
func chipPlot(e *equalisation.Equaliser, edgeFile, dir string, fs fsutil.FileSystem, c geometry.Chip, fits equalisation.Gaussians) (string, error) {
	p, err := e.ChipPopulation(edgeFile, c)
	if err != nil {
		return "", err
	}
	if p.Empty() {
		logf("%v has no population, skipping plot", c)
		return "", nil
	}
	var peak *population.Peak
	if s := fits.Sigma[c.Index]; s > 0 && !math.IsNaN(fits.Position[c.Index]) {
		peak = &population.Peak{
			Position: fits.Position[c.Index],
			FWHM:     s * population.FWHMPerSigma,
			Height:   fits.Height[c.Index],
		}
	}
	pl, err := PopulationPlot(c.String(), p, peak)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("population_row%d_col%d.png", c.Row, c.Column))
	if err := SavePNG(fs, path, pl); err != nil {
		return "", err
	}
	return path, nil
}

package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/equalisation/internal/fsutil"
	"github.com/banshee-data/equalisation/internal/population"
)

// Plot size of a population PNG.
const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

var (
	populationColor = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	fitColor        = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PopulationPlot draws a histogram as a step line and, when peak is not
// nil, the fitted Gaussian over it.
func PopulationPlot(title string, p population.Population, peak *population.Peak) (*plot.Plot, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%s: empty population", title)
	}
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "Edge"
	pl.Y.Label.Text = "Pixels"

	pts := make(plotter.XYs, 0, 2*p.Len())
	for i, x := range p.XVals {
		if i > 0 {
			pts = append(pts, plotter.XY{X: x, Y: p.YVals[i-1]})
		}
		pts = append(pts, plotter.XY{X: x, Y: p.YVals[i]})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", title, err)
	}
	line.Color = populationColor
	line.Width = vg.Points(1)
	pl.Add(line)
	pl.Legend.Add("population", line)

	if peak != nil {
		fit := plotter.NewFunction(peak.Eval)
		fit.Color = fitColor
		fit.Width = vg.Points(1.5)
		fit.Samples = 200
		lo, hi := p.Range()
		fit.XMin, fit.XMax = lo, hi
		pl.Add(fit)
		pl.Legend.Add(fmt.Sprintf("gaussian %.2f ± %.2f", peak.Position, peak.Sigma()), fit)
	}

	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

// SavePNG renders pl as a PNG file on fs.
func SavePNG(fs fsutil.FileSystem, path string, pl *plot.Plot) error {
	wt, err := pl.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	w, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return w.Close()
}

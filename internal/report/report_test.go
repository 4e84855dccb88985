package report

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/equalisation/internal/config"
	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/equalisation"
	"github.com/banshee-data/equalisation/internal/fsutil"
	"github.com/banshee-data/equalisation/internal/population"
	"github.com/banshee-data/equalisation/internal/testutil"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestPopulationPlot(t *testing.T) {
	t.Parallel()
	p := population.FromSamples([]float64{9, 10, 10, 11, 11, 11, 12, 12, 13})
	peak := &population.Peak{Position: 11, FWHM: 2.5, Height: 9}

	pl, err := PopulationPlot("chip", p, peak)
	require.NoError(t, err)
	assert.Equal(t, "chip", pl.Title.Text)

	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, SavePNG(fs, "out/chip.png", pl))
	data, err := fs.ReadFile("out/chip.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))

	_, err = PopulationPlot("empty", population.Population{}, nil)
	assert.ErrorContains(t, err, "empty population")
}

// ---

func TestChipHeatmap(t *testing.T) {
	t.Parallel()
	hm, err := ChipHeatmap("positions", 1, 3, []float64{10, math.NaN(), 12})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderPage(&buf, "test page", hm))
	assert.Contains(t, buf.String(), "positions")
	assert.Contains(t, buf.String(), AssetsHost)

	_, err = ChipHeatmap("bad", 2, 2, []float64{1})
	assert.Error(t, err)
}

func TestEdgeHeatmap(t *testing.T) {
	t.Parallel()
	values := []int16{
		1, 2, 3, 4,
		5, edge.MaskedOut, 7, 8,
		9, 10, edge.AllBelowThreshold, 12,
	}
	hm, err := EdgeHeatmap("block", 3, 4, values, 2)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, hm.Render(&buf))
	assert.Contains(t, buf.String(), "block")

	_, err = EdgeHeatmap("bad", 3, 3, values, 1)
	assert.Error(t, err)
}

// ---

func TestGenerate(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultEqualisationConfig()
	rows, cols := 1, 2
	cfg.ChipRows, cfg.ChipColumns = &rows, &cols
	cfg.ChipPresent = []bool{true, false}
	iters := 300
	cfg.FitMaxIterations = &iters

	e, err := equalisation.New(nil, cfg)
	require.NoError(t, err)
	dir := t.TempDir()
	lookup := testutil.Lookup(0, 1, 40)
	scan := filepath.Join(dir, "scan.db")
	testutil.WriteScan(t, scan, e.Grid(), testutil.Scan{
		Detector: "excalibur",
		Lookup:   lookup,
		Edges:    testutil.GaussianEdges(e.Grid(), lookup, 20, 3, 5),
	})
	edges := filepath.Join(dir, "edges.db")
	require.NoError(t, e.CalcEdgeThresholds(context.Background(), scan, "excalibur", "", edges))

	fs := fsutil.NewMemoryFileSystem()
	written, err := Generate(e, edges, "report", fs, Options{TailBudget: 100, Stride: 16})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("report", "population_row0_col0.png"),
		filepath.Join("report", PageName),
	}, written)

	png, err := fs.ReadFile(written[0])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	page, err := fs.ReadFile(written[1])
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "unequalised pixels")
	assert.Contains(t, html, "gaussian position")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/equalisation/internal/edge"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg := EmptyEqualisationConfig()

	assert.Equal(t, 10, cfg.GetEdgeThreshold())
	assert.Equal(t, edge.DefaultSliceRows, cfg.GetSliceRows())
	assert.True(t, cfg.GetForwardScan())
	assert.Equal(t, edge.StepMajor, cfg.Layout())
	assert.Equal(t, 10.0, cfg.GetEqTarget())
	assert.Equal(t, 511, cfg.GetThreshold0Max())
	assert.Equal(t, 100.0, cfg.GetTailBudget())
	assert.Equal(t, int16(15), cfg.GetOrValue())
	assert.Equal(t, 6, cfg.GetChipRows())
	assert.Equal(t, 8, cfg.GetChipColumns())
	assert.Equal(t, 5*time.Second, cfg.GetFitRuntime())
	assert.Equal(t, 3, cfg.GetNumberOfTweaks())
	assert.Equal(t, []float64{25, 45}, cfg.GetThresholdNAxisValues())
	assert.Equal(t, []float64{40, 65}, cfg.GetDACPixelAxisValues())

	grid, err := cfg.ChipGrid()
	require.NoError(t, err)
	assert.Equal(t, 48, len(grid.Chips()))
}

func TestDefaultConfig_MatchesAccessors(t *testing.T) {
	t.Parallel()
	cfg := DefaultEqualisationConfig()
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.FitRuntime)
	assert.Equal(t, "5s", *cfg.FitRuntime)
	assert.Equal(t, EmptyEqualisationConfig().FitOptions(), cfg.FitOptions())
	assert.Equal(t, EmptyEqualisationConfig().Extractor(), cfg.Extractor())
}

func TestMustLoadDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := MustLoadDefaultConfig()
	defaults := DefaultEqualisationConfig()

	assert.Equal(t, defaults.GetEdgeThreshold(), cfg.GetEdgeThreshold())
	assert.Equal(t, defaults.GetEqTarget(), cfg.GetEqTarget())
	assert.Equal(t, defaults.GetChipRows(), cfg.GetChipRows())
	assert.Equal(t, defaults.FitOptions(), cfg.FitOptions())
	assert.Equal(t, defaults.GetThresholdNAxisValues(), cfg.GetThresholdNAxisValues())
}

func TestLoadEqualisationConfig_Partial(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "eq.json", `{
  "edge_threshold": 25,
  "forward_scan": false,
  "step_major": false,
  "chip_rows": 1,
  "chip_columns": 2,
  "chip_present": [true, false],
  "fit_runtime": "250ms"
}`)

	cfg, err := LoadEqualisationConfig(path)
	require.NoError(t, err)

	ext := cfg.Extractor()
	assert.Equal(t, 25, ext.Threshold)
	assert.False(t, ext.Forward)
	assert.Equal(t, edge.StepMinor, ext.Layout)
	assert.Equal(t, 250*time.Millisecond, cfg.GetFitRuntime())
	assert.Equal(t, 10.0, cfg.GetEqTarget(), "omitted fields keep defaults")

	grid, err := cfg.ChipGrid()
	require.NoError(t, err)
	assert.True(t, grid.IsPresent(0, 0))
	assert.False(t, grid.IsPresent(0, 1))
}

func TestLoadEqualisationConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"wrong extension", "eq.yaml", `{}`, ".json extension"},
		{"bad json", "eq.json", `{"edge_threshold":`, "failed to parse"},
		{"negative threshold", "eq.json", `{"edge_threshold": -1}`, "edge_threshold"},
		{"zero slice rows", "eq.json", `{"slice_rows": 0}`, "slice_rows"},
		{"threshold0 too high", "eq.json", `{"threshold0_max": 600}`, "threshold0_max"},
		{"or value", "eq.json", `{"or_value": 32}`, "or_value"},
		{"too many chip rows", "eq.json", `{"chip_rows": 7}`, "chip_rows"},
		{"presence length", "eq.json", `{"chip_rows": 1, "chip_columns": 2, "chip_present": [true]}`, "chip_present"},
		{"bad runtime", "eq.json", `{"fit_runtime": "soon"}`, "fit_runtime"},
		{"no workers", "eq.json", `{"fit_workers": 0}`, "fit_workers"},
		{"one axis value", "eq.json", `{"dac_pixel_axis_values": [40]}`, "dac_pixel_axis_values"},
		{"three axis values", "eq.json", `{"threshold_n_axis_values": [25, 35, 45]}`, "exactly 2 values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadEqualisationConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadEqualisationConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestGetFitRuntime_ParseErrorFallsBack(t *testing.T) {
	t.Parallel()
	cfg := &EqualisationConfig{FitRuntime: ptrString("later")}
	assert.Equal(t, 5*time.Second, cfg.GetFitRuntime())
}

func TestAxisValuesAreCopies(t *testing.T) {
	t.Parallel()
	cfg := &EqualisationConfig{ThresholdNAxisValues: []float64{1, 2}}
	got := cfg.GetThresholdNAxisValues()
	got[0] = 99
	assert.Equal(t, []float64{1, 2}, cfg.ThresholdNAxisValues)
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/equalisation/internal/config"
	"github.com/banshee-data/equalisation/internal/equalisation"
	"github.com/banshee-data/equalisation/internal/registers"
	"github.com/banshee-data/equalisation/internal/store"
	"github.com/banshee-data/equalisation/internal/testutil"
)

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := dispatch(args[0], args[1:], &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// writeConfig writes a two-chip config with the second chip absent.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "equalisation.json")
	data, err := json.Marshal(map[string]any{
		"chip_rows":          1,
		"chip_columns":       2,
		"chip_present":       []bool{true, false},
		"fit_max_iterations": 300,
		"fit_runtime":        "2s",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeScan(t *testing.T, cfgPath, path string) {
	t.Helper()
	cfg, err := config.LoadEqualisationConfig(cfgPath)
	require.NoError(t, err)
	g, err := cfg.ChipGrid()
	require.NoError(t, err)
	lookup := testutil.Lookup(0, 1, 40)
	testutil.WriteScan(t, path, g, testutil.Scan{
		Detector:    "excalibur",
		Lookup:      lookup,
		Edges:       testutil.GaussianEdges(g, lookup, 20, 3, 9),
		ControlName: "thresholdN",
		Control:     25,
	})
}

// ---

func TestDispatch_Basics(t *testing.T) {
	t.Parallel()

	code, out, _ := execute(t, "version")
	assert.Zero(t, code)
	assert.Contains(t, out, "equalise dev")

	code, out, _ = execute(t, "help")
	assert.Zero(t, code)
	for _, name := range commandOrder {
		assert.Contains(t, out, name)
	}

	code, _, errOut := execute(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")

	code, _, errOut = execute(t, "edges", "--scan", "x.db")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "missing required flags: --out")

	code, _, errOut = execute(t, "push", "--file", "x.db", "--kind", "thresholdN")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--registers")
}

func TestParseCSV(t *testing.T) {
	t.Parallel()
	v, err := parseCSVFloatSlice(" 25, 45.5")
	require.NoError(t, err)
	assert.Equal(t, []float64{25, 45.5}, v)

	_, err = parseCSVFloatSlice("1,x")
	assert.ErrorContains(t, err, "invalid float 'x'")

	assert.Equal(t, []string{"a.db", "b.db"}, parseCSVList("a.db, ,b.db"))
	assert.Nil(t, parseCSVList(""))
}

// ---

func TestEdgesAnalyseAndPush(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	scan := filepath.Join(dir, "scan.db")
	writeScan(t, cfg, scan)
	edges := filepath.Join(dir, "edges.db")
	regs := filepath.Join(dir, "registers.db")

	code, out, errOut := execute(t, "edges", "--config", cfg, "--scan", scan, "--control", "thresholdN", "--out", edges)
	require.Zero(t, code, errOut)
	assert.Contains(t, out, "Wrote "+edges)

	code, out, errOut = execute(t, "analyse", "--config", cfg, "--registers", regs, "--edges", edges, "--push-threshold0")
	require.Zero(t, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ROW", "COL", "PRESENT", "UNEQUALISED", "TAIL"}, strings.Fields(lines[0]))
	assert.Equal(t, "true", strings.Fields(lines[1])[2])
	assert.Equal(t, "false", strings.Fields(lines[2])[2])

	f, err := store.OpenExisting(regs)
	require.NoError(t, err)
	defer f.Close()
	g, err := equalisation.New(nil, mustConfig(t, cfg))
	require.NoError(t, err)
	chip, err := g.Grid().Chip(0, 0)
	require.NoError(t, err)
	state, err := registers.NewRecorder(f).Registers(chip)
	require.NoError(t, err)
	tail, err := strconv.Atoi(strings.Fields(lines[1])[4])
	require.NoError(t, err)
	assert.Equal(t, tail, state.Values[registers.Threshold0])
}

func TestReportAndMigrate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	scan := filepath.Join(dir, "scan.db")
	writeScan(t, cfg, scan)
	edges := filepath.Join(dir, "edges.db")
	code, _, errOut := execute(t, "edges", "--config", cfg, "--scan", scan, "--out", edges)
	require.Zero(t, code, errOut)

	reportDir := filepath.Join(dir, "report")
	code, out, errOut := execute(t, "report", "--config", cfg, "--edges", edges, "--dir", reportDir, "--stride", "16")
	require.Zero(t, code, errOut)
	assert.Contains(t, out, "chips.html")
	assert.FileExists(t, filepath.Join(reportDir, "chips.html"))
	assert.FileExists(t, filepath.Join(reportDir, "population_row0_col0.png"))

	code, out, errOut = execute(t, "migrate", "--file", edges, "version")
	require.Zero(t, code, errOut)
	assert.Contains(t, out, "(dirty=false)")

	code, _, errOut = execute(t, "migrate", "--file", edges, "sideways")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `unknown migrate action "sideways"`)
}

func TestRun_WaitsForScan(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	manifest := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"detector": "excalibur", "scans": {}}`), 0o644))

	code, out, errOut := execute(t, "run", "--config", cfg, "--manifest", manifest)
	assert.Equal(t, 3, code)
	assert.Contains(t, out, "Run ")
	assert.Contains(t, errOut, `"initial"`)
	assert.FileExists(t, filepath.Join(dir, "ledger.db"))
}

func mustConfig(t *testing.T, path string) *config.EqualisationConfig {
	t.Helper()
	cfg, err := config.LoadEqualisationConfig(path)
	require.NoError(t, err)
	return cfg
}

package equalisation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/equalisation/internal/registers"
	"github.com/banshee-data/equalisation/internal/store"
	"github.com/banshee-data/equalisation/internal/timeutil"
)

func TestLoadManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"detector": "excalibur",
		"control": "thresholdN",
		"scans": {"initial": "scans/initial.db", "thresholdNUpper": "/data/upper.db"}
	}`), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "excalibur", m.Detector)
	assert.Equal(t, dir, m.OutputDir)
	assert.Equal(t, filepath.Join(dir, "scans/initial.db"), m.Scans[ScanInitial])
	assert.Equal(t, "/data/upper.db", m.Scans[ScanThresholdNUpper])

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		_, err := LoadManifest(filepath.Join(dir, "missing.json"))
		assert.Error(t, err)

		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{"scans": {}}`), 0o644))
		_, err = LoadManifest(bad)
		assert.ErrorContains(t, err, "detector is required")
	})
}

func TestScanRequiredError(t *testing.T) {
	t.Parallel()
	var err error = &ScanRequiredError{Scan: TweakCheckScan(2), Settings: "tweaked threshold adjust loaded"}
	assert.ErrorIs(t, err, ErrScanRequired)
	assert.Contains(t, err.Error(), `"tweakCheck2"`)
	assert.Contains(t, err.Error(), "tweaked threshold adjust loaded")
	assert.Equal(t, Scan("finalCheck0"), FinalCheckScan(0))
}

// ---

func newLedger(t *testing.T, dir string) *store.Ledger {
	t.Helper()
	f, err := store.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f.Ledger(timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
}

func requireScan(t *testing.T, err error) Scan {
	t.Helper()
	var sr *ScanRequiredError
	require.True(t, errors.As(err, &sr), "want ScanRequiredError, got %v", err)
	return sr.Scan
}

func TestPipeline_ResumesUntilScanRequired(t *testing.T) {
	t.Parallel()
	w := &registers.MockWriter{}
	e := newTestEqualiser(t, WithWriter(w))
	dir := t.TempDir()
	ctx := context.Background()
	ledger := newLedger(t, dir)
	m := &Manifest{Detector: detector, OutputDir: dir, Scans: map[Scan]string{}}

	p, err := NewPipeline(e, m, ledger)
	require.NoError(t, err)
	run := p.RunID()

	_, err = p.Run(ctx)
	assert.Equal(t, ScanInitial, requireScan(t, err))

	m.Scans[ScanInitial], _ = writeScan(t, e, dir, "initial", 20, 1, 0)
	_, err = p.Run(ctx)
	assert.Equal(t, ScanThresholdNLower, requireScan(t, err))
	initialEdges, ok, err := ledger.Get(run, "initial.edgeFilename")
	require.NoError(t, err)
	require.True(t, ok)
	info, err := os.Stat(initialEdges)
	require.NoError(t, err)

	m.Scans[ScanThresholdNLower], _ = writeScan(t, e, dir, "lower", 20, 2, 0)
	m.Scans[ScanThresholdNUpper], _ = writeScan(t, e, dir, "upper", 30, 3, 0)

	// A fresh pipeline over the same ledger resumes the unfinished run.
	p, err = NewPipeline(e, m, ledger)
	require.NoError(t, err)
	assert.Equal(t, run, p.RunID())
	_, err = p.Run(ctx)
	assert.Equal(t, ScanThresholdNCheck, requireScan(t, err))

	again, err := os.Stat(initialEdges)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime(), "finished stages are not redone")

	for _, key := range []string{"thresholdNResponseFilename", "thresholdNOptFilename", "thresholdNMaskFilename"} {
		v, ok, err := ledger.Get(run, key)
		require.NoError(t, err)
		require.True(t, ok, key)
		assert.FileExists(t, v)
	}

	// The check scan needs the mask and threshold N loaded first.
	c, err := e.grid.Chip(0, 0)
	require.NoError(t, err)
	assert.Len(t, w.Loaded(), 2)
	var sawAdj, sawThN bool
	for _, call := range w.Calls {
		assert.Equal(t, c, call.Chip)
		sawAdj = sawAdj || call.Adj != nil
		sawThN = sawThN || call.Register == registers.ThresholdN
	}
	assert.True(t, sawAdj)
	assert.True(t, sawThN)

	require.NoError(t, ledger.Set(run, keyDone, "true"))
	p, err = NewPipeline(e, m, ledger)
	require.NoError(t, err)
	assert.NotEqual(t, run, p.RunID(), "a finished run is not resumed")
}

package equalisation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/equalisation/internal/store"
)

// Scan names a threshold-0 scan the pipeline consumes.
type Scan string

const (
	ScanInitial         Scan = "initial"
	ScanThresholdNLower Scan = "thresholdNLower"
	ScanThresholdNUpper Scan = "thresholdNUpper"
	ScanThresholdNCheck Scan = "thresholdNCheck"
	ScanDACPixel0       Scan = "dacPixel0"
	ScanDACPixelLow     Scan = "dacPixelLow"
	ScanDACPixelHigh    Scan = "dacPixelHigh"
	ScanRawEqCheck      Scan = "rawEqCheck"
)

// TweakCheckScan is the scan taken with the adjustment of tweak i.
func TweakCheckScan(i int) Scan { return Scan(fmt.Sprintf("tweakCheck%d", i)) }

// FinalCheckScan is the scan taken with the selected adjustment of tweak i.
func FinalCheckScan(i int) Scan { return Scan(fmt.Sprintf("finalCheck%d", i)) }

// Manifest lists the scan files acquired for one equalisation run.
type Manifest struct {
	Detector  string          `json:"detector"`
	Control   string          `json:"control,omitempty"`
	OutputDir string          `json:"output_dir,omitempty"`
	Scans     map[Scan]string `json:"scans"`
}

// LoadManifest reads a JSON manifest. Relative paths are taken relative to
// the manifest's directory, which is also the default output directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}
	if m.Detector == "" {
		return nil, fmt.Errorf("manifest %s: detector is required", path)
	}
	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if m.OutputDir == "" {
		m.OutputDir = dir
	}
	m.OutputDir = resolve(m.OutputDir)
	for k, v := range m.Scans {
		m.Scans[k] = resolve(v)
	}
	return &m, nil
}

// ErrScanRequired is wrapped by ScanRequiredError.
var ErrScanRequired = errors.New("scan required")

// ScanRequiredError reports the scan that must be acquired, with the
// registers already loaded for it, before the pipeline can continue.
type ScanRequiredError struct {
	Scan     Scan
	Settings string
}

func (e *ScanRequiredError) Error() string {
	msg := fmt.Sprintf("acquire the %q threshold 0 scan and add it to the manifest", e.Scan)
	if e.Settings != "" {
		msg += " (" + e.Settings + ")"
	}
	return msg
}

func (e *ScanRequiredError) Unwrap() error { return ErrScanRequired }

// Result names the final outputs of a completed pipeline.
type Result struct {
	Run uuid.UUID
	// ThresholdAdjFile holds the last selected adjustment map.
	ThresholdAdjFile string
	// CheckEdgeFile holds the edges measured with that adjustment.
	CheckEdgeFile   string
	ThresholdNOpt   string
	DACPixelOptFile string
}

// Pipeline runs every stage in order over the scans of a manifest. Each
// finished stage records its output in the ledger, so a rerun of the same
// run skips it.
type Pipeline struct {
	eq       *Equaliser
	manifest *Manifest
	ledger   *store.Ledger
	run      uuid.UUID
}

const keyDone = "done"

// NewPipeline resumes the latest unfinished run in ledger, or starts a new
// one.
func NewPipeline(eq *Equaliser, m *Manifest, ledger *store.Ledger) (*Pipeline, error) {
	p := &Pipeline{eq: eq, manifest: m, ledger: ledger}
	run, ok, err := ledger.LatestRun()
	if err != nil {
		return nil, err
	}
	if ok {
		_, done, err := ledger.Get(run, keyDone)
		if err != nil {
			return nil, err
		}
		if !done {
			logf("resuming run %s", run)
			p.run = run
			return p, nil
		}
	}
	if p.run, err = ledger.NewRun(); err != nil {
		return nil, err
	}
	logf("started run %s", p.run)
	return p, nil
}

// RunID returns the ledger run the pipeline records into.
func (p *Pipeline) RunID() uuid.UUID { return p.run }

func (p *Pipeline) output(key string) string {
	return filepath.Join(p.manifest.OutputDir, key+".db")
}

// step runs fn unless key is already recorded with an existing file.
func (p *Pipeline) step(key string, fn func(resultFile string) error) (string, error) {
	v, ok, err := p.ledger.Get(p.run, key)
	if err != nil {
		return "", err
	}
	if ok && p.eq.fs.Exists(v) {
		logf("%s: reusing %s", key, v)
		return v, nil
	}
	path := p.output(key)
	if err := fn(path); err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	if err := p.ledger.Set(p.run, key, path); err != nil {
		return "", err
	}
	return path, nil
}

// edgeFile returns the edge file of scan. When the scan has not been
// acquired yet, prepare loads the registers it needs and a
// ScanRequiredError is returned.
func (p *Pipeline) edgeFile(ctx context.Context, scan Scan, settings string, prepare func() error) (string, error) {
	key := string(scan) + ".edgeFilename"
	return p.step(key, func(resultFile string) error {
		scanFile, ok := p.manifest.Scans[scan]
		if !ok || !p.eq.fs.Exists(scanFile) {
			if prepare != nil {
				if err := prepare(); err != nil {
					return err
				}
			}
			return &ScanRequiredError{Scan: scan, Settings: settings}
		}
		return p.eq.CalcEdgeThresholds(ctx, scanFile, p.manifest.Detector, p.manifest.Control, resultFile)
	})
}

// Run executes or resumes the pipeline.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	e, cfg := p.eq, p.eq.cfg
	eqTarget := cfg.GetEqTarget()
	thAxis := cfg.GetThresholdNAxisValues()
	dacAxis := cfg.GetDACPixelAxisValues()
	res := Result{Run: p.run}

	initial, err := p.edgeFile(ctx, ScanInitial, "", nil)
	if err != nil {
		return res, err
	}
	lower, err := p.edgeFile(ctx, ScanThresholdNLower, fmt.Sprintf("thresholdN=%g", thAxis[0]), nil)
	if err != nil {
		return res, err
	}
	upper, err := p.edgeFile(ctx, ScanThresholdNUpper, fmt.Sprintf("thresholdN=%g", thAxis[1]), nil)
	if err != nil {
		return res, err
	}
	thResponse, err := p.step("thresholdNResponseFilename", func(out string) error {
		return e.ResponseFromFiles([]string{lower, upper}, []float64{thAxis[0], thAxis[1]}, GaussianPosition, out)
	})
	if err != nil {
		return res, err
	}
	thOpt, err := p.step("thresholdNOptFilename", func(out string) error {
		return e.ThresholdNOpt(thResponse, upper, eqTarget, out)
	})
	if err != nil {
		return res, err
	}
	res.ThresholdNOpt = thOpt
	mask, err := p.step("thresholdNMaskFilename", func(out string) error {
		return e.ThresholdNMask(initial, upper, eqTarget, out)
	})
	if err != nil {
		return res, err
	}

	check, err := p.edgeFile(ctx, ScanThresholdNCheck, "threshold N mask and optimal threshold N loaded", func() error {
		if err := e.PushThresholdAdj(mask, ThresholdNMaskName, 0); err != nil {
			return err
		}
		return e.PushThresholdN(thOpt)
	})
	if err != nil {
		return res, err
	}

	dp0, err := p.edgeFile(ctx, ScanDACPixel0, "threshold N mask loaded with all DAC bits set", func() error {
		return e.PushThresholdAdj(mask, ThresholdNMaskName, cfg.GetOrValue())
	})
	if err != nil {
		return res, err
	}
	tmax, err := p.step("dacPixel0.tmaxFilename", func(out string) error {
		return e.ThresholdTargetFromChipPopulations(dp0, cfg.GetTailBudget(), out)
	})
	if err != nil {
		return res, err
	}
	low, err := p.edgeFile(ctx, ScanDACPixelLow, fmt.Sprintf("dacPixel=%g", dacAxis[0]), nil)
	if err != nil {
		return res, err
	}
	high, err := p.edgeFile(ctx, ScanDACPixelHigh, fmt.Sprintf("dacPixel=%g", dacAxis[1]), nil)
	if err != nil {
		return res, err
	}
	shiftLow, err := p.step("dacPixelLowShiftFilename", func(out string) error {
		return e.DACPixelShift(ctx, low, dp0, out)
	})
	if err != nil {
		return res, err
	}
	shiftHigh, err := p.step("dacPixelHighShiftFilename", func(out string) error {
		return e.DACPixelShift(ctx, high, dp0, out)
	})
	if err != nil {
		return res, err
	}
	dacResponse, err := p.step("dacPixelResponseFilename", func(out string) error {
		return e.ResponseFromFiles([]string{shiftLow, shiftHigh}, []float64{dacAxis[0], dacAxis[1]}, GaussianPosition, out)
	})
	if err != nil {
		return res, err
	}
	dacOpt, err := p.step("dacPixelOptFilename", func(out string) error {
		return e.DACPixelOpt(dacResponse, tmax, eqTarget, out)
	})
	if err != nil {
		return res, err
	}
	res.DACPixelOptFile = dacOpt
	bits, err := p.step("dacPixelControlBitsFilename", func(out string) error {
		return e.DACPixelControlBits(check, eqTarget, dacOpt, out)
	})
	if err != nil {
		return res, err
	}
	adj, err := p.step("thresholdAdjFilename", func(out string) error {
		return e.ThresholdAdj(bits, mask, 0, out)
	})
	if err != nil {
		return res, err
	}

	loadAll := func(adjFile string) func() error {
		return func() error {
			if err := e.PushThresholdAdj(adjFile, ThresholdAdjName, 0); err != nil {
				return err
			}
			if err := e.PushThresholdN(thOpt); err != nil {
				return err
			}
			return e.PushDACPixel(dacOpt)
		}
	}
	checkEdge, err := p.edgeFile(ctx, ScanRawEqCheck, "threshold adjust, threshold N and DAC pixel loaded", loadAll(adj))
	if err != nil {
		return res, err
	}

	for i := range cfg.GetNumberOfTweaks() {
		tweaked, err := p.step(fmt.Sprintf("tweakThresholdAdjFilename%d", i), func(out string) error {
			return e.TweakThresholdAdj(checkEdge, adj, eqTarget, out)
		})
		if err != nil {
			return res, err
		}
		tweakedEdge, err := p.edgeFile(ctx, TweakCheckScan(i), "tweaked threshold adjust loaded", loadAll(tweaked))
		if err != nil {
			return res, err
		}
		final, err := p.step(fmt.Sprintf("finalThresholdAdjFilename%d", i), func(out string) error {
			return e.SelectClosestThresholdAdj(checkEdge, tweakedEdge, adj, tweaked, eqTarget, out)
		})
		if err != nil {
			return res, err
		}
		finalEdge, err := p.edgeFile(ctx, FinalCheckScan(i), "selected threshold adjust loaded", loadAll(final))
		if err != nil {
			return res, err
		}
		checkEdge, adj = finalEdge, final
	}

	res.ThresholdAdjFile, res.CheckEdgeFile = adj, checkEdge
	for _, kv := range [][2]string{
		{"finalThresholdAdjFilename", adj},
		{"finalCheckEdgeFilename", checkEdge},
		{keyDone, "true"},
	} {
		if err := p.ledger.Set(p.run, kv[0], kv[1]); err != nil {
			return res, err
		}
	}
	logf("run %s done: %s", p.run, adj)
	return res, nil
}

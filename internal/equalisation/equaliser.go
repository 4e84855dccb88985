package equalisation

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/equalisation/internal/config"
	"github.com/banshee-data/equalisation/internal/fsutil"
	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/monitoring"
	"github.com/banshee-data/equalisation/internal/registers"
	"github.com/banshee-data/equalisation/internal/store"
)

var logf = monitoring.Component("equalise")

// ErrNoWriter is returned by the push operations when the Equaliser was
// built without a register writer.
var ErrNoWriter = errors.New("no register writer configured")

// Equaliser runs equalisation stages for one detector layout.
type Equaliser struct {
	grid   *geometry.ChipGrid
	cfg    *config.EqualisationConfig
	fs     fsutil.FileSystem
	writer registers.Writer
}

// Option configures an Equaliser.
type Option func(*Equaliser)

// WithFileSystem sets the filesystem used to remove stale result files.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(e *Equaliser) { e.fs = fs }
}

// WithWriter sets the register writer used by the push operations.
func WithWriter(w registers.Writer) Option {
	return func(e *Equaliser) { e.writer = w }
}

// New returns an Equaliser. A nil grid is built from cfg and a nil cfg uses
// the built-in defaults.
func New(grid *geometry.ChipGrid, cfg *config.EqualisationConfig, opts ...Option) (*Equaliser, error) {
	if cfg == nil {
		cfg = config.EmptyEqualisationConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if grid == nil {
		g, err := cfg.ChipGrid()
		if err != nil {
			return nil, err
		}
		grid = g
	}
	e := &Equaliser{grid: grid, cfg: cfg, fs: fsutil.OSFileSystem{}}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Grid returns the detector layout.
func (e *Equaliser) Grid() *geometry.ChipGrid { return e.grid }

// Config returns the tuning configuration.
func (e *Equaliser) Config() *config.EqualisationConfig { return e.cfg }

// writeResult creates path afresh and hands it to write. The file is closed
// whatever write returns.
func (e *Equaliser) writeResult(path string, write func(out *store.File) error) (err error) {
	out, err := store.CreateWith(e.fs, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return write(out)
}

// readDataset reads one dataset of the equalisation group from path.
func readDataset(path, name string) (*store.Dataset, error) {
	f, err := store.OpenExisting(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDataset(Location, name)
}

// readPixelMap reads an int16 dataset that must cover every pixel of the
// grid.
func (e *Equaliser) readPixelMap(path, name string) (*store.Dataset, error) {
	d, err := readDataset(path, name)
	if err != nil {
		return nil, err
	}
	if d.Type != store.Int16 {
		return nil, fmt.Errorf("%s/%s in %s is %s, want %s", Location, name, path, d.Type, store.Int16)
	}
	if d.Len() != e.grid.NumPixels() {
		return nil, fmt.Errorf("%s/%s in %s has %d pixels, grid has %d",
			Location, name, path, d.Len(), e.grid.NumPixels())
	}
	return d, nil
}

// readChipValues reads a per-chip dataset as float64, one value per grid
// cell.
func (e *Equaliser) readChipValues(path, name string) ([]float64, error) {
	d, err := readDataset(path, name)
	if err != nil {
		return nil, err
	}
	if d.Len() != e.grid.NumChips() {
		return nil, fmt.Errorf("%s/%s in %s has %d values, grid has %d chips",
			Location, name, path, d.Len(), e.grid.NumChips())
	}
	return d.Float64s(), nil
}

func (e *Equaliser) chipShape() []uint64 {
	return store.Shape2D(e.grid.Rows(), e.grid.Columns())
}

func (e *Equaliser) pixelShape() []uint64 {
	return store.Shape2D(e.grid.PixelRows(), e.grid.PixelsPerRow())
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func boolsToInt16(b []bool) []int16 {
	out := make([]int16, len(b))
	for i, v := range b {
		if v {
			out[i] = 1
		}
	}
	return out
}

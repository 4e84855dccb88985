package registers

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/monitoring"
	"github.com/banshee-data/equalisation/internal/store"
)

// Location is the group a Recorder writes under.
var Location = store.Loc("entry1", "registers")

var logf = monitoring.Component("registers")

// ChipRegisters is the loaded state of one chip.
type ChipRegisters struct {
	Values map[Register]int
	Adj    []int16 // nil when never loaded
}

// Recorder is a Writer that keeps pending values in memory and persists
// them to a store file on LoadConfig.
type Recorder struct {
	f *store.File

	mu      sync.Mutex
	pending map[int]*ChipRegisters
}

// NewRecorder returns a Recorder writing into f.
func NewRecorder(f *store.File) *Recorder {
	return &Recorder{f: f, pending: make(map[int]*ChipRegisters)}
}

func chipName(chip geometry.Chip) string {
	return fmt.Sprintf("row%d_col%d", chip.Row, chip.Column)
}

func (r *Recorder) state(chip geometry.Chip) *ChipRegisters {
	s, ok := r.pending[chip.Index]
	if !ok {
		s = &ChipRegisters{Values: make(map[Register]int)}
		r.pending[chip.Index] = s
	}
	return s
}

func (r *Recorder) set(chip geometry.Chip, reg Register, value int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(chip).Values[reg] = value
	return nil
}

func (r *Recorder) SetThreshold0(chip geometry.Chip, value int) error {
	return r.set(chip, Threshold0, value)
}

func (r *Recorder) SetThresholdN(chip geometry.Chip, value int) error {
	return r.set(chip, ThresholdN, value)
}

func (r *Recorder) SetDACPixel(chip geometry.Chip, value int) error {
	return r.set(chip, DACPixel, value)
}

func (r *Recorder) SetThresholdAdj(chip geometry.Chip, adj []int16) error {
	if err := checkAdjSize(chip, adj); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(chip).Adj = slices.Clone(adj)
	return nil
}

// LoadConfig persists the pending values of chip. Registers not set since
// the previous load keep their stored values.
func (r *Recorder) LoadConfig(chip geometry.Chip) error {
	r.mu.Lock()
	s, ok := r.pending[chip.Index]
	delete(r.pending, chip.Index)
	r.mu.Unlock()
	if !ok {
		logf("nothing pending for %v", chip)
		return nil
	}

	name := chipName(chip)
	for reg, v := range s.Values {
		if err := r.f.WriteAttribute(Location, name, string(reg), v); err != nil {
			return fmt.Errorf("load config %v: %w", chip, err)
		}
	}
	if s.Adj != nil {
		d := store.NewInt16(store.Shape2D(geometry.ChipSize, geometry.ChipSize), s.Adj)
		if err := r.f.WriteDataset(Location, name+"_thresholdAdj", d); err != nil {
			return fmt.Errorf("load config %v: %w", chip, err)
		}
	}
	logf("loaded %d registers and adj=%t for %v", len(s.Values), s.Adj != nil, chip)
	return nil
}

// Registers reads back what has been loaded for chip.
func (r *Recorder) Registers(chip geometry.Chip) (ChipRegisters, error) {
	out := ChipRegisters{Values: make(map[Register]int)}
	name := chipName(chip)
	for _, reg := range []Register{Threshold0, ThresholdN, DACPixel} {
		v, err := r.f.ReadFloatAttribute(Location, name, string(reg))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		out.Values[reg] = int(v)
	}
	d, err := r.f.ReadDataset(Location, name+"_thresholdAdj")
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return out, err
	default:
		out.Adj = d.Int16
	}
	return out, nil
}

package registers

import (
	"errors"
	"fmt"

	"github.com/banshee-data/equalisation/internal/geometry"
)

// Register names a per-chip scalar register.
type Register string

const (
	Threshold0 Register = "threshold0"
	ThresholdN Register = "thresholdN"
	DACPixel   Register = "dacPixel"
)

// MaxValue is the largest value a per-chip scalar register holds.
const MaxValue = 511

// ErrRange is returned for a scalar register value outside [0, MaxValue].
var ErrRange = errors.New("register value out of range")

func checkValue(reg Register, value int) error {
	if value < 0 || value > MaxValue {
		return fmt.Errorf("%w: %s %d, want [0,%d]", ErrRange, reg, value, MaxValue)
	}
	return nil
}

// Writer sets chip registers. Values written with the Set methods take
// effect when LoadConfig is called for the chip.
type Writer interface {
	SetThreshold0(chip geometry.Chip, value int) error
	SetThresholdN(chip geometry.Chip, value int) error
	SetDACPixel(chip geometry.Chip, value int) error
	// SetThresholdAdj sets the per-pixel adjustment words of the chip,
	// ChipSize×ChipSize values in row-major order.
	SetThresholdAdj(chip geometry.Chip, adj []int16) error
	LoadConfig(chip geometry.Chip) error
}

// Set dispatches to the Writer method for reg. Values outside [0, MaxValue]
// are rejected with ErrRange.
func Set(w Writer, chip geometry.Chip, reg Register, value int) error {
	if err := checkValue(reg, value); err != nil {
		return fmt.Errorf("%v: %w", chip, err)
	}
	switch reg {
	case Threshold0:
		return w.SetThreshold0(chip, value)
	case ThresholdN:
		return w.SetThresholdN(chip, value)
	case DACPixel:
		return w.SetDACPixel(chip, value)
	}
	return fmt.Errorf("unknown register %q", reg)
}

func checkAdjSize(chip geometry.Chip, adj []int16) error {
	if len(adj) != geometry.ChipSize*geometry.ChipSize {
		return fmt.Errorf("%v: threshold adjust has %d values, want %d",
			chip, len(adj), geometry.ChipSize*geometry.ChipSize)
	}
	return nil
}

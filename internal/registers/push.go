package registers

import (
	"fmt"

	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/planner"
)

// PushChipValues writes one value per chip to reg and loads each chip's
// config. values is indexed by chip index; absent chips and chips whose
// value is planner.NoCode are skipped. Any other value outside
// [0, MaxValue] fails with ErrRange before a chip is written. It returns the
// chips written.
func PushChipValues(w Writer, g *geometry.ChipGrid, reg Register, values []int16) ([]geometry.Chip, error) {
	if len(values) != g.NumChips() {
		return nil, fmt.Errorf("push %s: %d values for %d chips", reg, len(values), g.NumChips())
	}
	for _, chip := range g.Chips() {
		if v := values[chip.Index]; v != planner.NoCode {
			if err := checkValue(reg, int(v)); err != nil {
				return nil, fmt.Errorf("push %s to %v: %w", reg, chip, err)
			}
		}
	}
	var pushed []geometry.Chip
	for _, chip := range g.Chips() {
		v := values[chip.Index]
		if v == planner.NoCode {
			logf("%v has no %s value, leaving it unchanged", chip, reg)
			continue
		}
		if err := Set(w, chip, reg, int(v)); err != nil {
			return pushed, fmt.Errorf("push %s to %v: %w", reg, chip, err)
		}
		if err := w.LoadConfig(chip); err != nil {
			return pushed, fmt.Errorf("push %s to %v: %w", reg, chip, err)
		}
		pushed = append(pushed, chip)
	}
	logf("pushed %s to %d chips", reg, len(pushed))
	return pushed, nil
}

// PushThresholdAdj ORs orValue into a global adjustment map, splits it per
// chip and loads it into every present chip. An orValue of 15 sets all DAC
// bits, 0 leaves the map as it is.
func PushThresholdAdj(w Writer, g *geometry.ChipGrid, adj []int16, orValue int16) error {
	combined, err := planner.Combine(orValue, adj)
	if err != nil {
		return fmt.Errorf("push threshold adjust: %w", err)
	}
	for _, chip := range g.Chips() {
		block, err := geometry.ExtractChip(g, combined, chip)
		if err != nil {
			return fmt.Errorf("push threshold adjust to %v: %w", chip, err)
		}
		if err := w.SetThresholdAdj(chip, block); err != nil {
			return fmt.Errorf("push threshold adjust to %v: %w", chip, err)
		}
		if err := w.LoadConfig(chip); err != nil {
			return fmt.Errorf("push threshold adjust to %v: %w", chip, err)
		}
	}
	logf("pushed threshold adjust (or=%d) to %d chips", orValue, len(g.Chips()))
	return nil
}

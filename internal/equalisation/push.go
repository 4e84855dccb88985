package equalisation

import (
	"fmt"

	"github.com/banshee-data/equalisation/internal/registers"
)

func (e *Equaliser) pushChipCodes(path, name string, reg registers.Register) error {
	if e.writer == nil {
		return ErrNoWriter
	}
	d, err := readDataset(path, name)
	if err != nil {
		return err
	}
	codes, err := d.Int16s()
	if err != nil {
		return fmt.Errorf("%s/%s in %s: %w", Location, name, path, err)
	}
	_, err = registers.PushChipValues(e.writer, e.grid, reg, codes)
	return err
}

// PushThresholdN loads the thresholdNOpt codes of file into the chips.
func (e *Equaliser) PushThresholdN(file string) error {
	return e.pushChipCodes(file, ThresholdNOptName, registers.ThresholdN)
}

// PushDACPixel loads the dacPixelOpt codes of file into the chips.
func (e *Equaliser) PushDACPixel(file string) error {
	return e.pushChipCodes(file, DACPixelOptName, registers.DACPixel)
}

// PushThresholdAdj loads the per-pixel adjustment map dataset of file,
// ORed with orValue, into the chips. Any adjustment pixel map works, so a
// threshold-N mask can be pushed directly.
func (e *Equaliser) PushThresholdAdj(file, dataset string, orValue int16) error {
	if e.writer == nil {
		return ErrNoWriter
	}
	adj, err := e.readPixelMap(file, dataset)
	if err != nil {
		return err
	}
	return registers.PushThresholdAdj(e.writer, e.grid, adj.Int16, orValue)
}

// PushThreshold0 sets threshold 0 of every analysed present chip to its
// tail threshold.
func (e *Equaliser) PushThreshold0(analysis []ChipAnalysis) error {
	if e.writer == nil {
		return ErrNoWriter
	}
	if len(analysis) != e.grid.NumChips() {
		return fmt.Errorf("%d chip analyses for %d chips", len(analysis), e.grid.NumChips())
	}
	values := make([]int16, len(analysis))
	for i, a := range analysis {
		values[i] = int16(a.TailThreshold)
	}
	_, err := registers.PushChipValues(e.writer, e.grid, registers.Threshold0, values)
	return err
}

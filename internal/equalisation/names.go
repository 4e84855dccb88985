package equalisation

import (
	"fmt"

	"github.com/banshee-data/equalisation/internal/store"
)

// Location is the group every stage reads and writes.
var Location = store.Loc("entry1", "equalisation")

// ScanLocation is the group of a detector's data in a scan file.
func ScanLocation(detector string) store.Location {
	return store.Loc("entry1", detector)
}

// Dataset names. Other tooling reads these, so they must not change.
const (
	EdgeThresholds        = "edgeThresholds"
	ChipPresent           = "chipPresent"
	GaussianPosition      = "gaussianPosition"
	GaussianSigma         = "gaussianSigma"
	GaussianHeight        = "gaussianHeight"
	ResponseSlopes        = "edgeThresholdResponseSlopes"
	ResponseOffsets       = "edgeThresholdResponseOffsets"
	ResponseFitOK         = "edgeThresholdResponseFitOk"
	ThresholdNOptName     = "thresholdNOpt"
	ThresholdNMaskName    = "thresholdNMask"
	ThresholdLimits       = "thresholdLimits"
	DACPixelShiftName     = "dacPixelShift"
	DACPixelOptName       = "dacPixelOpt"
	DACPixelResolution    = "dacPixelResolution"
	DACPixelControlBitsDS = "dacPixelControlBits"
	ThresholdAdjName      = "thresholdAdj"
	ConfigFromResponse    = "configFromThresholdResponse"
	Threshold             = "threshold"
)

// Attribute names.
const (
	AttrThresholdLimit    = "thresholdLimit"
	AttrThresholdAVal     = "thresholdAVal"
	AttrMaxThresholdLimit = "maxThresholdLimit"
	AttrThresholdTarget   = "thresholdTarget"
	AttrSignal            = "signal"
	AttrAxis              = "axis"
)

// Scan file datasets.
const (
	ScanData       = "data"
	ScanThreshold0 = "threshold0"
)

// ChipEdgeThresholds names the edge block of one chip.
func ChipEdgeThresholds(row, col int) string {
	return fmt.Sprintf("edgeThresholds_row%d_column%d", row, col)
}

// PopulationXVals names the histogram values of one chip.
func PopulationXVals(row, col int) string {
	return fmt.Sprintf("Population_row%d_col%d_xvals", row, col)
}

// PopulationYVals names the histogram counts of one chip.
func PopulationYVals(row, col int) string {
	return fmt.Sprintf("Population_row%d_col%d_yvals", row, col)
}

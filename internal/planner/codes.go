package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/population"
	"github.com/banshee-data/equalisation/internal/response"
)

const (
	// MaxDACBits is the largest per-pixel DAC adjustment.
	MaxDACBits int16 = 15
	// ThresholdNBit selects threshold N instead of threshold 0 for a pixel.
	ThresholdNBit int16 = 16
	// MinCode and MaxCode bound a complete adjustment word.
	MinCode int16 = 0
	MaxCode int16 = 31
)

// NoCode marks a chip for which no code could be derived.
const NoCode = response.NoCode

// ErrEncoding is returned when an adjustment word leaves [MinCode, MaxCode].
var ErrEncoding = errors.New("adjustment code out of range")

func encodingError(pixel int, code int16) error {
	return fmt.Errorf("%w: pixel %d has code %d, want [%d,%d]", ErrEncoding, pixel, code, MinCode, MaxCode)
}

// CheckCodes returns ErrEncoding for the first word outside [MinCode, MaxCode].
func CheckCodes(adj []int16) error {
	for i, c := range adj {
		if c < MinCode || c > MaxCode {
			return encodingError(i, c)
		}
	}
	return nil
}

// OptimalThresholdN picks, per chip, the threshold-N code that places the
// chip's edge at sigmaSlope*sigma + eqTarget, by inverting the chip's
// response line. Chips with a failed Gaussian (negative sigma) or an unfit
// line get NoCode.
func OptimalThresholdN(model *response.Model, sigmas []float64, sigmaSlope, eqTarget float64) ([]int16, error) {
	if len(sigmas) != model.Len() {
		return nil, fmt.Errorf("%w: %d sigmas for %d response lines", response.ErrLengthMismatch, len(sigmas), model.Len())
	}
	out := make([]int16, len(sigmas))
	for i, sigma := range sigmas {
		out[i] = NoCode
		if sigma < 0 || math.IsNaN(sigma) || !model.FitOK[i] || model.Slopes[i] == 0 {
			continue
		}
		target := sigmaSlope*sigma + eqTarget
		out[i] = response.RoundCode((target - model.Offsets[i]) / model.Slopes[i])
	}
	return out, nil
}

// SelectionMask compares two runs, the second taken with threshold N, and
// sets ThresholdNBit for pixels whose second-run edge is closer to eqTarget.
// A pixel with only one valid edge takes that run; a pixel with none gets 0.
func SelectionMask(edgesA, edgesB []int16, eqTarget float64) ([]int16, error) {
	if len(edgesA) != len(edgesB) {
		return nil, fmt.Errorf("%w: edge maps have %d and %d pixels", response.ErrLengthMismatch, len(edgesA), len(edgesB))
	}
	mask := make([]int16, len(edgesA))
	for i := range edgesA {
		if pickSecond(edgesA[i], edgesB[i], eqTarget) {
			mask[i] = ThresholdNBit
		}
	}
	return mask, nil
}

// pickSecond reports whether b is the better edge. Ties and pixels with no
// valid edge go to a.
func pickSecond(a, b int16, target float64) bool {
	aOK, bOK := edge.IsValid(a), edge.IsValid(b)
	switch {
	case aOK && bOK:
		return math.Abs(float64(b)-target) < math.Abs(float64(a)-target)
	case bOK:
		return true
	default:
		return false
	}
}

// Limits is the outcome of OutlierLimits.
type Limits struct {
	// PerChip holds each chip's limit, NaN where the population is empty.
	PerChip []float64
	// Max is the highest limit over all chips, NaN if none.
	Max float64
}

// OutlierLimits finds, per chip, the edge value above which only budget
// pixels lie, and the maximum of those values across chips.
func OutlierLimits(pops []population.Population, budget float64) Limits {
	l := Limits{PerChip: make([]float64, len(pops)), Max: math.NaN()}
	for i, p := range pops {
		limit, ok := p.TailLimit(budget)
		if !ok {
			l.PerChip[i] = math.NaN()
			continue
		}
		l.PerChip[i] = limit
		if math.IsNaN(l.Max) || limit > l.Max {
			l.Max = limit
		}
	}
	return l
}

// DACPlan holds the per-chip DAC-pixel code and the edge shift produced by
// one step of per-pixel adjustment at that code.
type DACPlan struct {
	Codes      []int16
	Resolution []float64
}

// DACCodes derives the DAC-pixel code per chip. The full adjustment range
// must move an edge from the chip's limit down to eqTarget, scaled by scale,
// so the required shift is (limit-eqTarget)*scale and the resolution is that
// shift over MaxDACBits. The code is the inverse of the chip's shift response
// line and is not clamped. Chips without a usable limit or line, or whose
// limit is not above eqTarget, get NoCode and a NaN resolution.
func DACCodes(model *response.Model, limits []float64, eqTarget, scale float64) (DACPlan, error) {
	if len(limits) != model.Len() {
		return DACPlan{}, fmt.Errorf("%w: %d limits for %d response lines", response.ErrLengthMismatch, len(limits), model.Len())
	}
	plan := DACPlan{Codes: make([]int16, len(limits)), Resolution: make([]float64, len(limits))}
	for i, limit := range limits {
		plan.Codes[i] = NoCode
		plan.Resolution[i] = math.NaN()
		required := (limit - eqTarget) * scale
		if math.IsNaN(required) || required <= 0 || !model.FitOK[i] || model.Slopes[i] == 0 {
			continue
		}
		plan.Resolution[i] = required / float64(MaxDACBits)
		plan.Codes[i] = response.RoundCode((required - model.Offsets[i]) / model.Slopes[i])
	}
	return plan, nil
}

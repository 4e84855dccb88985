package population

import (
	"iter"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/equalisation/internal/edge"
)

// Population is a compacted histogram: XVals holds the integer values that
// occur (ascending) and YVals how often each occurs. Both have equal length
// and every YVals entry is positive.
type Population struct {
	XVals []float64
	YVals []float64
}

// FromEdges bins the valid edge values found at indices. Sentinels are
// skipped.
func FromEdges(values []int16, indices iter.Seq[int]) Population {
	var samples []float64
	for idx := range indices {
		if v := values[idx]; edge.IsValid(v) {
			samples = append(samples, float64(v))
		}
	}
	return FromSamples(samples)
}

// FromValues bins values found at indices after rounding to the nearest
// integer. NaN and infinite values are skipped.
func FromValues(values []float64, indices iter.Seq[int]) Population {
	var samples []float64
	for idx := range indices {
		v := values[idx]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		samples = append(samples, math.Round(v))
	}
	return FromSamples(samples)
}

// FromSamples bins integer-valued samples into unit-width bins spanning
// [min, max] and drops the empty bins. samples is not modified.
func FromSamples(samples []float64) Population {
	if len(samples) == 0 {
		return Population{}
	}
	x := slices.Clone(samples)
	slices.Sort(x)
	lo, hi := x[0], x[len(x)-1]

	bins := int(hi-lo) + 1
	dividers := floats.Span(make([]float64, bins+1), lo-0.5, hi+0.5)
	counts := stat.Histogram(nil, dividers, x, nil)

	var p Population
	for i, c := range counts {
		if c > 0 {
			p.XVals = append(p.XVals, lo+float64(i))
			p.YVals = append(p.YVals, c)
		}
	}
	return p
}

// Len returns the number of populated bins.
func (p Population) Len() int { return len(p.XVals) }

// Empty reports whether the population has no samples.
func (p Population) Empty() bool { return len(p.XVals) == 0 }

// Total returns the number of samples.
func (p Population) Total() float64 {
	if p.Empty() {
		return 0
	}
	return floats.Sum(p.YVals)
}

// Range returns the lowest and highest populated values.
func (p Population) Range() (lo, hi float64) {
	if p.Empty() {
		return 0, 0
	}
	return p.XVals[0], p.XVals[len(p.XVals)-1]
}

// Mean returns the count-weighted mean and standard deviation.
func (p Population) Mean() (mean, std float64) {
	if p.Empty() {
		return math.NaN(), math.NaN()
	}
	return stat.MeanStdDev(p.XVals, p.YVals)
}

// TailLimit walks the bins from the highest value down, accumulating counts,
// and returns the value of the bin at which the running total first reaches
// budget. When the whole population is smaller than budget the lowest value
// is returned. ok is false for an empty population.
func (p Population) TailLimit(budget float64) (limit float64, ok bool) {
	if p.Empty() {
		return 0, false
	}
	var sum float64
	for i := len(p.YVals) - 1; i >= 0; i-- {
		sum += p.YVals[i]
		if sum >= budget {
			return p.XVals[i], true
		}
	}
	return p.XVals[0], true
}

package population

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/optimize"
)

// FWHMPerSigma converts a Gaussian full width at half maximum to sigma.
const FWHMPerSigma = 2.3548

// FailedSigma is stored in place of sigma for chips whose fit failed.
const FailedSigma = -1.0

var (
	// ErrEmptyPopulation means there were no valid samples to fit.
	ErrEmptyPopulation = errors.New("empty population")
	// ErrNonConvergent means the optimiser produced no usable minimum.
	ErrNonConvergent = errors.New("gaussian fit did not converge")
)

// FitError describes a failed fit. It unwraps to ErrEmptyPopulation or
// ErrNonConvergent.
type FitError struct {
	// Label identifies the population, usually a chip.
	Label  string
	Reason error
	Err    error
}

func (e *FitError) Error() string {
	msg := e.Reason.Error()
	if e.Label != "" {
		msg = e.Label + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FitError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// Peak is a fitted Gaussian. Height is the area under the curve, so for a
// good fit it matches the population total.
type Peak struct {
	Position float64
	FWHM     float64
	Height   float64

	// Residual is the weighted sum of squares at the optimum.
	Residual float64
	// Evaluations counts objective evaluations across both optimiser passes.
	Evaluations int
}

// Sigma returns FWHM/FWHMPerSigma.
func (p Peak) Sigma() float64 {
	return p.FWHM / FWHMPerSigma
}

// Eval returns the curve value at x.
func (p Peak) Eval(x float64) float64 {
	return gaussian(x, p.Position, p.FWHM, p.Height)
}

func gaussian(x, position, fwhm, height float64) float64 {
	sigma := fwhm / FWHMPerSigma
	d := (x - position) / sigma
	return height / (sigma * math.Sqrt(2*math.Pi)) * math.Exp(-0.5*d*d)
}

// FitOptions bounds the optimisation.
type FitOptions struct {
	// MaxIterations caps the major iterations of each optimiser pass.
	MaxIterations int
	// Runtime caps the wall time of each optimiser pass.
	Runtime time.Duration
	// Seed makes the stochastic search reproducible.
	Seed uint64
}

// DefaultFitOptions returns the budget used when none is configured.
func DefaultFitOptions() FitOptions {
	return FitOptions{MaxIterations: 2000, Runtime: 5 * time.Second, Seed: 1}
}

func (o FitOptions) settings() *optimize.Settings {
	return &optimize.Settings{
		MajorIterations: o.MaxIterations,
		Runtime:         o.Runtime,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Relative:   1e-9,
			Iterations: 60,
		},
	}
}

// bounds on (position, fwhm, height)
type bounds struct {
	lo, hi [3]float64
}

func (b bounds) toParams(u []float64) [3]float64 {
	var p [3]float64
	for i := range p {
		p[i] = b.lo[i] + clamp01(u[i])*(b.hi[i]-b.lo[i])
	}
	return p
}

func (b bounds) toUnit(p [3]float64) []float64 {
	u := make([]float64, 3)
	for i := range p {
		if span := b.hi[i] - b.lo[i]; span > 0 {
			u[i] = clamp01((p[i] - b.lo[i]) / span)
		}
	}
	return u
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// outside returns the squared distance of u from the unit box.
func outside(u []float64) float64 {
	var d float64
	for _, v := range u {
		switch {
		case v < 0:
			d += v * v
		case v > 1:
			d += (v - 1) * (v - 1)
		}
	}
	return d
}

// Fit fits a single Gaussian to the population. The search starts at the
// midpoint of the populated range with sigma a quarter of the range and
// height the total count, and every parameter is kept inside fixed bounds
// derived from the population.
func Fit(p Population, opts FitOptions) (Peak, error) {
	if p.Empty() {
		return Peak{}, &FitError{Reason: ErrEmptyPopulation}
	}
	lo, hi := p.Range()
	total := p.Total()
	span := hi - lo

	b := bounds{
		lo: [3]float64{lo - 0.5, 0.1, 0},
		hi: [3]float64{hi + 0.5, FWHMPerSigma * (span + 1), 2 * total},
	}
	seed := [3]float64{(lo + hi) / 2, FWHMPerSigma * span / 4, total}

	residual := func(position, fwhm, height float64) float64 {
		var ssr float64
		for i, x := range p.XVals {
			y := p.YVals[i]
			r := y - gaussian(x, position, fwhm, height)
			ssr += r * r / math.Max(y, 1)
		}
		return ssr
	}
	u0 := b.toUnit(seed)
	seedParams := b.toParams(u0)
	penalty := 1 + residual(seedParams[0], seedParams[1], seedParams[2])
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			q := b.toParams(u)
			return residual(q[0], q[1], q[2]) + penalty*outside(u)
		},
	}

	global := &optimize.CmaEsChol{
		InitStepSize: 0.25,
		Src:          rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15),
	}
	res, err := optimize.Minimize(problem, u0, opts.settings(), global)
	if err != nil && res == nil {
		return Peak{}, &FitError{Reason: ErrNonConvergent, Err: err}
	}
	best := res.Location
	evals := res.Stats.FuncEvaluations

	local := &optimize.NelderMead{SimplexSize: 0.01}
	polished, perr := optimize.Minimize(problem, best.X, opts.settings(), local)
	if perr == nil && polished != nil && polished.Location.F < best.F {
		best = polished.Location
	}
	if polished != nil {
		evals += polished.Stats.FuncEvaluations
	}

	if math.IsNaN(best.F) || math.IsInf(best.F, 0) {
		return Peak{}, &FitError{Reason: ErrNonConvergent, Err: fmt.Errorf("residual %v after %d evaluations", best.F, evals)}
	}
	q := b.toParams(best.X)
	return Peak{
		Position:    q[0],
		FWHM:        q[1],
		Height:      q[2],
		Residual:    best.F,
		Evaluations: evals,
	}, nil
}

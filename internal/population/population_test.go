package population

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/equalisation/internal/edge"
)

func TestFromSamples(t *testing.T) {
	t.Parallel()

	p := FromSamples([]float64{5, 3, 5, 9, 5, 3})
	assert.Equal(t, []float64{3, 5, 9}, p.XVals)
	assert.Equal(t, []float64{2, 3, 1}, p.YVals)
	assert.Equal(t, 6.0, p.Total())

	lo, hi := p.Range()
	assert.Equal(t, 3.0, lo)
	assert.Equal(t, 9.0, hi)
}

func TestFromSamples_Empty(t *testing.T) {
	t.Parallel()

	p := FromSamples(nil)
	assert.True(t, p.Empty())
	assert.Zero(t, p.Total())
	assert.Zero(t, p.Len())
}

func TestFromEdges_SkipsSentinels(t *testing.T) {
	t.Parallel()

	values := []int16{10, edge.AllBelowThreshold, 12, edge.MaskedOut, 10, edge.AllAboveThreshold, 511}
	p := FromEdges(values, slices.Values([]int{0, 1, 2, 3, 4, 5}))
	assert.Equal(t, []float64{10, 12}, p.XVals)
	assert.Equal(t, []float64{2, 1}, p.YVals)

	// Sum of YVals equals the number of valid pixels visited.
	p = FromEdges(values, slices.Values([]int{0, 1, 2, 3, 4, 5, 6}))
	assert.Equal(t, 4.0, p.Total())
}

func TestFromValues_SkipsNaN(t *testing.T) {
	t.Parallel()

	values := []float64{1.2, math.NaN(), -3, math.Inf(1), 0.9}
	p := FromValues(values, slices.Values([]int{0, 1, 2, 3, 4}))
	assert.Equal(t, []float64{-3, 1}, p.XVals)
	assert.Equal(t, []float64{1, 2}, p.YVals)
}

func TestTailLimit(t *testing.T) {
	t.Parallel()

	p := Population{XVals: []float64{10, 11, 12, 13}, YVals: []float64{50, 30, 15, 5}}

	tests := []struct {
		budget float64
		want   float64
	}{
		{1, 13},
		{5, 13},
		{6, 12},
		{20, 12},
		{21, 11},
		{100, 10},
		{1000, 10},
	}
	for _, tt := range tests {
		got, ok := p.TailLimit(tt.budget)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "budget %v", tt.budget)
	}

	_, ok := Population{}.TailLimit(10)
	assert.False(t, ok)
}

func TestMean(t *testing.T) {
	t.Parallel()

	p := Population{XVals: []float64{1, 3}, YVals: []float64{1, 1}}
	mean, _ := p.Mean()
	assert.InDelta(t, 2.0, mean, 1e-12)

	mean, std := Population{}.Mean()
	assert.True(t, math.IsNaN(mean))
	assert.True(t, math.IsNaN(std))
}

// ---

// binnedGaussian returns the rounded expected counts of n samples of a
// Gaussian at unit-width bins.
func binnedGaussian(position, sigma, n float64) []float64 {
	var samples []float64
	for x := math.Floor(position - 5*sigma); x <= math.Ceil(position+5*sigma); x++ {
		d := (x - position) / sigma
		c := math.Round(n / (sigma * math.Sqrt(2*math.Pi)) * math.Exp(-0.5*d*d))
		for i := 0; i < int(c); i++ {
			samples = append(samples, x)
		}
	}
	return samples
}

func TestFit_RecoversGaussian(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		position float64
		sigma    float64
		n        float64
	}{
		{"narrow", 120, 3, 20000},
		{"wide", 300, 12, 60000},
		{"off-centre range", 40.3, 5, 15000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			samples := binnedGaussian(tt.position, tt.sigma, tt.n)
			// A few stragglers skew the midrange seed.
			samples = append(samples, tt.position+8*tt.sigma)
			p := FromSamples(samples)

			peak, err := Fit(p, DefaultFitOptions())
			require.NoError(t, err)
			assert.InDelta(t, tt.position, peak.Position, 0.25)
			assert.InDelta(t, tt.sigma, peak.Sigma(), 0.1*tt.sigma)
			assert.InDelta(t, p.Total(), peak.Height, 0.05*p.Total())
			assert.Greater(t, peak.Evaluations, 0)
		})
	}
}

func TestFit_Deterministic(t *testing.T) {
	t.Parallel()

	p := FromSamples(binnedGaussian(80, 4, 5000))
	a, err := Fit(p, DefaultFitOptions())
	require.NoError(t, err)
	b, err := Fit(p, DefaultFitOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFit_SingleValue(t *testing.T) {
	t.Parallel()

	p := FromSamples([]float64{100, 100, 100, 100})
	peak, err := Fit(p, DefaultFitOptions())
	require.NoError(t, err)
	assert.InDelta(t, 100, peak.Position, 0.5)
}

func TestFit_EmptyPopulation(t *testing.T) {
	t.Parallel()

	_, err := Fit(Population{}, DefaultFitOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyPopulation)
	assert.NotErrorIs(t, err, ErrNonConvergent)

	var fe *FitError
	require.True(t, errors.As(err, &fe))
}

func TestFit_TinyBudgetStillReturnsBest(t *testing.T) {
	t.Parallel()

	p := FromSamples(binnedGaussian(50, 5, 2000))
	peak, err := Fit(p, FitOptions{MaxIterations: 2, Runtime: time.Second, Seed: 7})
	require.NoError(t, err)
	lo, hi := p.Range()
	assert.GreaterOrEqual(t, peak.Position, lo-0.5)
	assert.LessOrEqual(t, peak.Position, hi+0.5)
}

func TestFitError_Message(t *testing.T) {
	t.Parallel()

	err := &FitError{Label: "chip(row=1, col=2)", Reason: ErrNonConvergent, Err: errors.New("residual NaN")}
	assert.Equal(t, "chip(row=1, col=2): gaussian fit did not converge: residual NaN", err.Error())
	assert.ErrorIs(t, err, ErrNonConvergent)
}

func TestPeak_Eval(t *testing.T) {
	t.Parallel()

	peak := Peak{Position: 10, FWHM: FWHMPerSigma * 2, Height: 100}
	assert.InDelta(t, 2.0, peak.Sigma(), 1e-12)
	assert.InDelta(t, 100/(2*math.Sqrt(2*math.Pi)), peak.Eval(10), 1e-9)
	assert.InDelta(t, peak.Eval(8), peak.Eval(12), 1e-12)
}

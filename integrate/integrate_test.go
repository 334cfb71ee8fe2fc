package integrate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/n0madic/go-peakfit/function"
)

// unitGaussian has unit area and unit sigma.
func unitGaussian() *function.Gaussian {
	return function.NewGaussian(1/math.Sqrt(2*math.Pi), 0, 1)
}

func TestGaussianFiniteRanges(t *testing.T) {
	p := NewPeakIntegrator()
	for _, k := range []float64{1, 2, 3} {
		r := p.Integrate(unitGaussian(), -k, k)
		require.True(t, r.Success, "±%gσ: %v", k, r.Status)
		require.NoError(t, r.Err())

		want := distuv.UnitNormal.CDF(k) - distuv.UnitNormal.CDF(-k)
		assert.InDelta(t, want, r.Result, 1e-8*want, "±%gσ", k)
		assert.LessOrEqual(t, r.Error, 1e-8*math.Abs(r.Result))
		assert.GreaterOrEqual(t, r.Intervals, 1)
	}

	assert.InDelta(t, 0.6827, p.Integrate(unitGaussian(), -1, 1).Result, 1e-4)
	assert.InDelta(t, 0.9545, p.Integrate(unitGaussian(), -2, 2).Result, 1e-4)
	assert.InDelta(t, 0.9973, p.Integrate(unitGaussian(), -3, 3).Result, 1e-4)
}

func TestAgreesWithFixedLegendre(t *testing.T) {
	f := function.NewLorentzian(2, 0.5, 0.8)
	eval := evaluator(f)
	want := quad.Fixed(eval, -3, 4, 200, nil, 1)

	r := NewPeakIntegrator().Integrate(f, -3, 4)
	require.True(t, r.Success)
	assert.InDelta(t, want, r.Result, 1e-8)
}

func TestInfiniteRanges(t *testing.T) {
	p := NewPeakIntegrator()
	g := function.NewGaussian(2, 0.3, 0.7)
	area := 2 * 0.7 * math.Sqrt(2*math.Pi)

	whole := p.IntegrateInfinity(g)
	require.True(t, whole.Success, whole.Status.String())
	assert.InDelta(t, area, whole.Result, 1e-7*area)

	for _, split := range []float64{0.3, -1, 2} {
		upper := p.IntegratePositiveInfinity(g, split)
		lower := p.IntegrateNegativeInfinity(g, split)
		require.True(t, upper.Success)
		require.True(t, lower.Success)
		assert.InDelta(t, whole.Result, upper.Result+lower.Result, 2*p.RequiredRelativePrecision()*whole.Result, "split at %g", split)
	}

	half := p.IntegratePositiveInfinity(g, 0.3)
	assert.InDelta(t, area/2, half.Result, 1e-7*area)
}

func TestLorentzianAreaIsAmplitude(t *testing.T) {
	p := NewPeakIntegrator(WithRelativePrecision(1e-10))
	l := function.NewLorentzian(3.5, 1, 0.4)

	r := p.IntegrateInfinity(l)
	require.True(t, r.Success, r.Status.String())
	assert.InDelta(t, 3.5, r.Result, 1e-8)
}

func TestIntegrateRangeDispatch(t *testing.T) {
	p := NewPeakIntegrator()
	g := unitGaussian()
	inf := math.Inf(1)

	assert.Equal(t, p.IntegrateInfinity(g), p.IntegrateRange(g, -inf, inf))
	assert.Equal(t, p.IntegratePositiveInfinity(g, 1), p.IntegrateRange(g, 1, inf))
	assert.Equal(t, p.IntegrateNegativeInfinity(g, 1), p.IntegrateRange(g, -inf, 1))
	assert.Equal(t, p.Integrate(g, -1, 1), p.IntegrateRange(g, -1, 1))
}

func TestBadTolerance(t *testing.T) {
	p := NewPeakIntegrator()
	p.SetRequiredRelativePrecision(1e-15)
	assert.Equal(t, 1e-15, p.RequiredRelativePrecision())

	for name, r := range map[string]Result{
		"finite":   p.Integrate(unitGaussian(), -1, 1),
		"upper":    p.IntegratePositiveInfinity(unitGaussian(), 0),
		"lower":    p.IntegrateNegativeInfinity(unitGaussian(), 0),
		"infinity": p.IntegrateInfinity(unitGaussian()),
	} {
		assert.False(t, r.Success, name)
		assert.Equal(t, BadTolerance, r.Status, name)
		assert.ErrorIs(t, r.Err(), ErrBadTolerance, name)
		assert.Zero(t, r.Result, name)
		assert.Zero(t, r.Error, name)
	}
}

func TestIntervalLimit(t *testing.T) {
	// Half a Lorentzian over three widths is not resolved by one Kronrod pass.
	l := function.NewLorentzian(1, 37.3, 2)
	p := NewPeakIntegrator(WithIntervalLimit(1))

	r := p.Integrate(l, -100, 100)
	assert.False(t, r.Success)
	assert.Equal(t, MaxIterations, r.Status)
	assert.ErrorIs(t, r.Err(), ErrMaxIterations)
	assert.Zero(t, r.Result)
	assert.Zero(t, r.Error)

	r = NewPeakIntegrator().Integrate(l, -100, 100)
	require.True(t, r.Success, r.Status.String())
	want := (math.Atan(100-37.3) - math.Atan(-100-37.3)) / math.Pi
	assert.InDelta(t, want, r.Result, 1e-8)
	assert.Greater(t, r.Intervals, 2)
}

func TestNarrowPeaks(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name   string
		peak   function.PeakFunction
		lower  float64
		upper  float64
		wantFn func() float64
	}{
		{
			name:  "gaussian far from zero on the whole line",
			peak:  function.NewGaussian(1, 100, 0.1),
			lower: -inf, upper: inf,
			wantFn: func() float64 { return 0.1 * math.Sqrt(2*math.Pi) },
		},
		{
			name:  "gaussian very far from zero on the whole line",
			peak:  function.NewGaussian(1, 1000, 0.1),
			lower: -inf, upper: inf,
			wantFn: func() float64 { return 0.1 * math.Sqrt(2*math.Pi) },
		},
		{
			name:  "gaussian inside a wide finite range",
			peak:  function.NewGaussian(1, 37.3, 0.05),
			lower: -100, upper: 100,
			wantFn: func() float64 { return 0.05 * math.Sqrt(2*math.Pi) },
		},
		{
			name:  "gaussian on a half line",
			peak:  function.NewGaussian(1, 100, 0.1),
			lower: 0, upper: inf,
			wantFn: func() float64 { return 0.1 * math.Sqrt(2*math.Pi) },
		},
		{
			name:  "lorentzian inside a wide finite range",
			peak:  function.NewLorentzian(2, -250, 0.01),
			lower: -1000, upper: 1000,
			wantFn: func() float64 {
				g := 0.005
				return 2 * (math.Atan(1250/g) - math.Atan(-750/g)) / math.Pi
			},
		},
	}

	p := NewPeakIntegrator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := p.IntegrateRange(tt.peak, tt.lower, tt.upper)
			require.True(t, r.Success, r.Status.String())
			want := tt.wantFn()
			assert.InDelta(t, want, r.Result, 1e-7*want)
			assert.Greater(t, r.Error, 0.0)
		})
	}
}

func TestNarrowPeakIntegrateError(t *testing.T) {
	g := function.NewGaussian(1, 37.3, 0.05)
	g.SetError(0, 0.1)

	e, err := NewPeakIntegrator().IntegrateError(g, -100, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.1*0.05*math.Sqrt(2*math.Pi), e, 1e-8)
}

func TestNonFiniteIntegrand(t *testing.T) {
	g := function.NewGaussian(math.NaN(), 0, 1)
	r := NewPeakIntegrator().Integrate(g, -1, 1)
	assert.False(t, r.Success)
	assert.Equal(t, Failure, r.Status)
	assert.ErrorIs(t, r.Err(), ErrFailure)
}

func TestIntegrateError(t *testing.T) {
	p := NewPeakIntegrator()
	g := unitGaussian()

	e, err := p.IntegrateError(g, -3, 3)
	require.NoError(t, err)
	assert.Zero(t, e, "no parameter errors")

	// The area over the whole line is linear in the height.
	g.SetError(0, 0.01)
	e, err = p.IntegrateError(g, math.Inf(-1), math.Inf(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.01*math.Sqrt(2*math.Pi), e, 1e-7)

	// Centre shifts do not change the whole-line area.
	g.SetError(0, 0)
	g.SetError(1, 0.5)
	e, err = p.IntegrateError(g, math.Inf(-1), math.Inf(1))
	require.NoError(t, err)
	assert.InDelta(t, 0, e, 1e-7)

	p.SetRequiredRelativePrecision(1e-16)
	e, err = p.IntegrateError(g, -1, 1)
	assert.ErrorIs(t, err, ErrBadTolerance)
	assert.True(t, math.IsNaN(e))
}

func TestStatus(t *testing.T) {
	assert.NoError(t, Success.Err())
	assert.Equal(t, "round-off", RoundOff.String())
	assert.Equal(t, "Status(7)", Status(7).String())
	assert.ErrorIs(t, Status(7).Err(), ErrFailure)
	assert.ErrorIs(t, Singular.Err(), ErrSingular)
	assert.Equal(t, 21, int(Singular))
}

func TestKronrodRulesExactForPolynomials(t *testing.T) {
	// The 21-point rule is exact to degree 31 and the 15-point one to degree 22.
	for name, rule := range map[string]kronrodRule{"gk21": gk21, "gk15": gk15} {
		r, _, _, _ := rule.apply(func(x float64) float64 { return math.Pow(x, 10) + 3*x*x }, -1, 2)
		want := (math.Pow(2, 11)+1)/11 + (8 + 1)
		assert.InDelta(t, want, r, 1e-10*want, name)

		sum := 0.0
		for i, w := range rule.wgk {
			if i == len(rule.wgk)-1 {
				sum += w
			} else {
				sum += 2 * w
			}
		}
		assert.InDelta(t, 2, sum, 1e-14, name)
	}
}

package costfunc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-peakfit/function"
)

func lineData(t *testing.T) *Data {
	t.Helper()
	x := []float64{0, 1, 2, 3, 4}
	y := make([]float64, len(x))
	for i, xv := range x {
		y[i] = 1 + 2*xv
	}
	d, err := NewData(x, y, nil)
	require.NoError(t, err)
	return d
}

func TestNewData(t *testing.T) {
	tests := []struct {
		name    string
		x, y, w []float64
		wantErr error
	}{
		{name: "unit weights", x: []float64{1, 2}, y: []float64{1, 2}},
		{name: "explicit weights", x: []float64{1, 2}, y: []float64{1, 2}, w: []float64{1, 0}},
		{name: "empty", wantErr: ErrEmptyData},
		{name: "y mismatch", x: []float64{1, 2}, y: []float64{1}, wantErr: ErrDataMismatch},
		{name: "weight mismatch", x: []float64{1, 2}, y: []float64{1, 2}, w: []float64{1}, wantErr: ErrDataMismatch},
		{name: "NaN", x: []float64{1, 2}, y: []float64{math.NaN(), 2}, wantErr: ErrNonFiniteData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewData(tt.x, tt.y, tt.w)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, d.Weights, len(tt.x))
		})
	}
}

func TestWeightsFromErrors(t *testing.T) {
	w := WeightsFromErrors([]float64{2, 0, -1, math.Inf(1), 0.5})
	assert.Equal(t, []float64{0.5, 0, 0, 0, 2}, w)
}

func TestValue(t *testing.T) {
	d := lineData(t)
	f := function.NewLinearBackground(1, 2)
	ls, err := NewLeastSquares(f, d)
	require.NoError(t, err)
	assert.Zero(t, ls.Val())

	ls.SetParameter(0, 2)
	assert.InDelta(t, 0.5*5, ls.Val(), 1e-12)
	assert.InDelta(t, 5, ls.ChiSquared(), 1e-12)
	assert.Equal(t, 3, ls.DegreesOfFreedom())
}

func TestZeroWeightsContributeNothing(t *testing.T) {
	d, err := NewData([]float64{0, 1, 2}, []float64{0, 100, 0}, []float64{1, 0, 1})
	require.NoError(t, err)
	ls, err := NewLeastSquares(function.NewFlatBackground(0), d)
	require.NoError(t, err)

	assert.Zero(t, ls.Val())
	assert.Equal(t, 1, ls.DegreesOfFreedom())
	ls.ValDerivHessian(true)
	assert.Zero(t, ls.Deriv()[0])
	assert.Equal(t, 2.0, ls.Hessian().At(0, 0))
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	x := make([]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		x[i] = float64(i)
		y[i] = 5 * math.Cos(2*math.Pi*x[i]/8+math.Pi/4) * math.Exp(-x[i]/3)
	}
	d, err := NewData(x, y, nil)
	require.NoError(t, err)
	ls, err := NewLeastSquares(function.NewExpDecayOsc(4, 0.3, 0.12, 0.7), d)
	require.NoError(t, err)

	ls.ValDerivHessian(true)
	grad := ls.Deriv()
	h := ls.Hessian()
	const step = 1e-6
	for i := 0; i < ls.NParams(); i++ {
		p := ls.Parameter(i)
		ls.SetParameter(i, p+step)
		fp := ls.Val()
		ls.SetParameter(i, p-step)
		fm := ls.Val()
		ls.SetParameter(i, p)
		assert.InDelta(t, (fp-fm)/(2*step), grad[i], 1e-5*math.Max(1, math.Abs(grad[i])), ls.ParameterName(i))
		assert.Greater(t, h.At(i, i), 0.0)
	}
}

func TestActiveParameters(t *testing.T) {
	g := function.NewGaussian(1, 0, 1)
	g.Fix(1)
	g.Tie(2, function.TieTo("Height", 1))
	d, err := NewData([]float64{-1, 0, 1}, []float64{0.5, 1, 0.5}, nil)
	require.NoError(t, err)

	ls, err := NewLeastSquares(g, d)
	require.NoError(t, err)
	require.Equal(t, 1, ls.NParams())
	assert.Equal(t, "Height", ls.ParameterName(0))

	ls.SetParameter(0, 2)
	ls.ApplyTies()
	assert.Equal(t, 2.0, g.Parameter(2))

	ls.ValDerivHessian(true)
	assert.Len(t, ls.Deriv(), 1)
	assert.Equal(t, 1, ls.Hessian().SymmetricDim())
}

func TestCheckpointRoundTrip(t *testing.T) {
	ls, err := NewLeastSquares(function.NewLinearBackground(0.3, 1.7), lineData(t))
	require.NoError(t, err)

	before := make([]float64, ls.NParams())
	ls.Parameters(before)
	v0 := ls.Val()

	cp, err := ls.Push()
	require.NoError(t, err)
	ls.SetParameter(0, 10)
	ls.SetParameter(1, -3)
	require.NotEqual(t, v0, ls.Val())

	require.NoError(t, ls.Pop(cp))
	after := make([]float64, ls.NParams())
	ls.Parameters(after)
	assert.Equal(t, before, after, "pop restores parameters exactly")
	assert.Equal(t, v0, ls.Val())

	cp, err = ls.Push()
	require.NoError(t, err)
	ls.SetParameter(0, 1)
	require.NoError(t, ls.Drop(cp))
	assert.Equal(t, 1.0, ls.Parameter(0), "drop keeps the new parameters")
}

func TestCheckpointMisuse(t *testing.T) {
	ls, err := NewLeastSquares(function.NewFlatBackground(0), lineData(t))
	require.NoError(t, err)
	other, err := NewLeastSquares(function.NewFlatBackground(0), lineData(t))
	require.NoError(t, err)

	cp, err := ls.Push()
	require.NoError(t, err)

	_, err = ls.Push()
	assert.ErrorIs(t, err, ErrCheckpointOutstanding)
	assert.ErrorIs(t, other.Pop(cp), ErrStaleCheckpoint)
	assert.ErrorIs(t, ls.Drop(nil), ErrStaleCheckpoint)

	require.NoError(t, ls.Pop(cp))
	assert.ErrorIs(t, ls.Pop(cp), ErrStaleCheckpoint, "double pop")
	assert.ErrorIs(t, ls.Drop(cp), ErrStaleCheckpoint, "drop after pop")
}

func TestFittingErrors(t *testing.T) {
	ls, err := NewLeastSquares(function.NewLinearBackground(1, 2), lineData(t))
	require.NoError(t, err)

	errs, err := ls.FittingErrors()
	require.NoError(t, err)

	// (XᵀX)⁻¹ for x = 0..4 with an intercept column: [[5,10],[10,30]]⁻¹.
	det := 5.0*30 - 10*10
	assert.InDelta(t, math.Sqrt(30/det), errs[0], 1e-10)
	assert.InDelta(t, math.Sqrt(5/det), errs[1], 1e-10)
	assert.Equal(t, errs[0], ls.Function().Error(0))
	assert.Equal(t, errs[1], ls.Function().Error(1))
}

func TestFittingErrorsSingular(t *testing.T) {
	// Two constant terms cannot be told apart, so the Hessian is singular.
	g := function.NewComposite(function.NewFlatBackground(1), function.NewFlatBackground(0))
	d, err := NewData([]float64{0, 1}, []float64{1, 1}, nil)
	require.NoError(t, err)
	ls, err := NewLeastSquares(g, d)
	require.NoError(t, err)

	_, err = ls.FittingErrors()
	assert.Error(t, err)
}

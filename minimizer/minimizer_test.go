package minimizer

import (
	"math"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-peakfit/costfunc"
	"github.com/n0madic/go-peakfit/function"
)

// quadratic is Σ (xᵢ − cᵢ)², a cost function that is not least squares.
type quadratic struct {
	x, c []float64
}

func newQuadratic(x0, centre []float64) *quadratic {
	return &quadratic{x: append([]float64(nil), x0...), c: centre}
}

func (q *quadratic) NParams() int                  { return len(q.x) }
func (q *quadratic) Parameter(i int) float64       { return q.x[i] }
func (q *quadratic) SetParameter(i int, v float64) { q.x[i] = v }
func (q *quadratic) Parameters(out []float64)      { copy(out, q.x) }
func (q *quadratic) ApplyTies()                    {}

func (q *quadratic) Val() float64 {
	sum := 0.0
	for i := range q.x {
		d := q.x[i] - q.c[i]
		sum += d * d
	}
	return sum
}

func (q *quadratic) ValAndDeriv() (float64, []float64) {
	g := make([]float64, len(q.x))
	for i := range q.x {
		g[i] = 2 * (q.x[i] - q.c[i])
	}
	return q.Val(), g
}

func expDecayOscData(t testing.TB) *costfunc.Data {
	t.Helper()
	x := make([]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		x[i] = float64(i)
		y[i] = 5 * math.Cos(2*math.Pi*x[i]/8+math.Pi/4) * math.Exp(-x[i]/3)
	}
	d, err := costfunc.NewData(x, y, nil)
	require.NoError(t, err)
	return d
}

func newCost(t testing.TB, f function.Function, d *costfunc.Data) *costfunc.LeastSquares {
	t.Helper()
	ls, err := costfunc.NewLeastSquares(f, d)
	require.NoError(t, err)
	return ls
}

// run iterates m until it stops and returns the number of iterations.
func run(m Minimizer, maxIterations int) (int, error) {
	for i := 1; i <= maxIterations; i++ {
		more, err := m.Iterate()
		if err != nil || !more {
			return i, err
		}
	}
	return maxIterations, nil
}

func TestLevenbergMarquardtExpDecayOsc(t *testing.T) {
	f := function.NewExpDecayOsc(4, 0.25, 0.12, 0.6)
	ls := newCost(t, f, expDecayOscData(t))

	lm := NewLevenbergMarquardt()
	require.NoError(t, lm.Initialize(ls))
	n, err := run(lm, 500)
	require.NoError(t, err)
	assert.Less(t, n, 500)
	assert.Empty(t, lm.ErrorString())

	assert.InDelta(t, 5, f.Parameter(0), 0.01, "A")
	assert.InDelta(t, 1.0/3, f.Parameter(1), 0.01, "Lambda")
	assert.InDelta(t, 1.0/8, f.Parameter(2), 0.01, "Frequency")
	assert.InDelta(t, math.Pi/4, f.Parameter(3), 0.01, "Phi")
	assert.Less(t, lm.CostFunctionVal(), 1e-6)
}

func TestLevenbergMarquardtLinear(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5}
	y := make([]float64, len(x))
	for i, xv := range x {
		y[i] = 1 + 2*xv
	}
	d, err := costfunc.NewData(x, y, nil)
	require.NoError(t, err)
	f := function.NewLinearBackground(0, 0)

	lm := NewLevenbergMarquardt()
	require.NoError(t, lm.Initialize(newCost(t, f, d)))
	_, err = run(lm, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1, f.Parameter(0), 1e-4)
	assert.InDelta(t, 2, f.Parameter(1), 1e-4)
}

func TestLevenbergMarquardtCostNeverIncreases(t *testing.T) {
	ls := newCost(t, function.NewExpDecayOsc(3, 0.2, 0.13, 0.3), expDecayOscData(t))
	lm := NewLevenbergMarquardt()
	require.NoError(t, lm.Initialize(ls))

	prev := ls.Val()
	floor := make([]float64, ls.NParams())
	for i := 0; i < 500; i++ {
		more, err := lm.Iterate()
		require.NoError(t, err)
		if !more {
			break
		}
		cur := lm.CostFunctionVal()
		assert.LessOrEqual(t, cur, prev, "iteration %d", i)
		prev = cur

		d := lm.ScaleFloor()
		for k := range d {
			assert.GreaterOrEqual(t, d[k], floor[k], "scale floor of parameter %d shrank", k)
		}
		floor = d
		assert.Greater(t, lm.Mu(), 0.0)
	}
}

func TestLevenbergMarquardtSingular(t *testing.T) {
	// With zero height the centre and width do not change the model.
	g := function.NewGaussian(0, 0, 1)
	d, err := costfunc.NewData([]float64{-1, 0, 1}, []float64{0.5, 1, 0.5}, nil)
	require.NoError(t, err)

	lm := NewLevenbergMarquardt()
	require.NoError(t, lm.Initialize(newCost(t, g, d)))
	more, err := lm.Iterate()
	assert.False(t, more)
	require.ErrorIs(t, err, ErrSingularMatrix)
	assert.Contains(t, lm.ErrorString(), "singular matrix")
	assert.Equal(t, []float64{0, 0, 1}, []float64{g.Parameter(0), g.Parameter(1), g.Parameter(2)})
}

// flatModel overrides the gradient and Hessian of a least-squares cost so
// that the predicted decrease of the first step is exactly zero.
type flatModel struct {
	*costfunc.LeastSquares
	hessians []float64
	calls    int
}

func (s *flatModel) Deriv() []float64 { return []float64{1} }

func (s *flatModel) Hessian() *mat.SymDense {
	h := s.hessians[len(s.hessians)-1]
	if s.calls < len(s.hessians) {
		h = s.hessians[s.calls]
	}
	s.calls++
	return mat.NewSymDense(1, []float64{h})
}

func TestLevenbergMarquardtZeroGain(t *testing.T) {
	d, err := costfunc.NewData([]float64{0, 1, 2}, []float64{5, 5, 5}, nil)
	require.NoError(t, err)
	f := function.NewFlatBackground(0)
	cost := &flatModel{LeastSquares: newCost(t, f, d), hessians: []float64{-2, 1}}

	// With mu 1, g 1 and H -2 the step is +1 and g·dx + ½dx·H·dx is 0.
	lm := NewLevenbergMarquardt(WithTau(1))
	require.NoError(t, lm.Initialize(cost))

	more, err := lm.Iterate()
	require.NoError(t, err)
	assert.True(t, more)
	assert.Zero(t, lm.Rho(), "cost changed without a predicted decrease")
	assert.Equal(t, 2.0, lm.Mu())
	assert.Equal(t, 4.0, lm.Nu())
	assert.Zero(t, f.Parameter(0), "rejected step must be undone")

	// The next step goes downhill in the model but uphill in the cost.
	more, err = lm.Iterate()
	assert.False(t, more)
	require.ErrorIs(t, err, ErrRhoZero)
	assert.NotEmpty(t, lm.ErrorString())
	assert.Zero(t, f.Parameter(0))
	assert.Equal(t, 3*12.5, lm.CostFunctionVal())

	cp, err := cost.Push()
	require.NoError(t, err, "no checkpoint may be left outstanding")
	require.NoError(t, cost.Drop(cp))
}

func TestLevenbergMarquardtPreconditions(t *testing.T) {
	lm := NewLevenbergMarquardt()
	_, err := lm.Iterate()
	require.ErrorIs(t, err, ErrNotInitialized)

	err = lm.Initialize(newQuadratic([]float64{1}, []float64{0}))
	require.ErrorIs(t, err, ErrNotLeastSquares)

	g := function.NewGaussian(1, 0, 1)
	for i := 0; i < g.NParams(); i++ {
		g.Fix(i)
	}
	err = lm.Initialize(newCost(t, g, expDecayOscData(t)))
	require.ErrorIs(t, err, ErrPrecondition)
	require.ErrorIs(t, err, ErrNoParameters)

	more, err := lm.Iterate()
	assert.False(t, more)
	require.ErrorIs(t, err, ErrNoParameters)
}

func TestLevenbergMarquardtMuMax(t *testing.T) {
	ls := newCost(t, function.NewExpDecayOsc(1, 1, 0.2, 0), expDecayOscData(t))
	lm := NewLevenbergMarquardt(WithMuMax(1e-12))
	require.NoError(t, lm.Initialize(ls))

	more, err := lm.Iterate()
	require.NoError(t, err)
	require.True(t, more)

	more, err = lm.Iterate()
	assert.False(t, more)
	require.ErrorIs(t, err, ErrMuMaxExceeded)
	assert.Greater(t, lm.Mu(), 1e-12)
	assert.Equal(t, err.Error(), lm.ErrorString())
}

func TestLevenbergMarquardtAbsErrorStop(t *testing.T) {
	f := function.NewExpDecayOsc(4, 0.25, 0.12, 0.6)
	ls := newCost(t, f, expDecayOscData(t))
	lm := NewLevenbergMarquardt(WithAbsError(1e9))
	require.NoError(t, lm.Initialize(ls))

	more, err := lm.Iterate()
	require.NoError(t, err)
	assert.False(t, more)
	assert.NotEqual(t, 4.0, f.Parameter(0), "the small step is kept")

	// The checkpoint was resolved, so a new one can be taken.
	cp, err := ls.Push()
	require.NoError(t, err)
	require.NoError(t, ls.Drop(cp))
}

func TestLevenbergMarquardtFirstIteration(t *testing.T) {
	ls := newCost(t, function.NewExpDecayOsc(4, 0.25, 0.12, 0.6), expDecayOscData(t))
	lm := NewLevenbergMarquardt(WithTau(1e-3))
	require.NoError(t, lm.Initialize(ls))
	assert.Zero(t, lm.Mu())
	assert.Equal(t, 2.0, lm.Nu())
	assert.Equal(t, 1.0, lm.Rho())

	_, err := lm.Iterate()
	require.NoError(t, err)
	assert.LessOrEqual(t, lm.Mu(), 2e-3)
	assert.Greater(t, lm.Mu(), 0.0)
}

func TestDebugLogging(t *testing.T) {
	var lines int
	logger := funcr.New(func(prefix, args string) { lines++ }, funcr.Options{Verbosity: 1})

	ls := newCost(t, function.NewExpDecayOsc(4, 0.25, 0.12, 0.6), expDecayOscData(t))
	lm := NewLevenbergMarquardt(WithDebug(true), WithLogger(logger))
	require.NoError(t, lm.Initialize(ls))
	_, err := lm.Iterate()
	require.NoError(t, err)
	assert.Greater(t, lines, 0)
}

func TestSetOption(t *testing.T) {
	lm := NewLevenbergMarquardt()
	require.NoError(t, lm.SetOption("MuMax", "10"))
	require.NoError(t, lm.SetOption("AbsError", "1e-6"))
	require.NoError(t, lm.SetOption("Debug", "true"))
	assert.Equal(t, 10.0, lm.cfg.MuMax)
	assert.Equal(t, 1e-6, lm.cfg.AbsError)
	assert.True(t, lm.cfg.Debug)

	assert.ErrorIs(t, lm.SetOption("Speed", "1"), ErrUnknownOption)
	assert.Error(t, lm.SetOption("MuMax", "lots"))
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{BFGSName, LevenbergMarquardtName}, Names())

	m, err := New(LevenbergMarquardtName, WithMuMax(5))
	require.NoError(t, err)
	require.IsType(t, &LevenbergMarquardt{}, m)
	assert.Equal(t, 5.0, m.(*LevenbergMarquardt).cfg.MuMax)

	m, err = New(BFGSName)
	require.NoError(t, err)
	assert.Equal(t, BFGSName, m.Name())

	_, err = New("Simplex")
	require.ErrorIs(t, err, ErrUnknownMinimizer)
}

func TestBFGSQuadratic(t *testing.T) {
	q := newQuadratic([]float64{10, -4}, []float64{3, -1})
	b := NewBFGS()
	require.NoError(t, b.Initialize(q))

	more, err := b.Iterate()
	require.NoError(t, err)
	assert.False(t, more)
	assert.InDelta(t, 3, q.x[0], 1e-6)
	assert.InDelta(t, -1, q.x[1], 1e-6)
	assert.InDelta(t, 0, b.CostFunctionVal(), 1e-10)
	require.NotNil(t, b.Result())

	more, err = b.Iterate()
	assert.False(t, more)
	assert.NoError(t, err)
}

func TestBFGSPreconditions(t *testing.T) {
	b := NewBFGS()
	_, err := b.Iterate()
	require.ErrorIs(t, err, ErrNotInitialized)

	err = b.Initialize(newQuadratic(nil, nil))
	require.ErrorIs(t, err, ErrNoParameters)
	_, err = b.Iterate()
	require.ErrorIs(t, err, ErrNoParameters)
}

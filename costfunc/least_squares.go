package costfunc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-peakfit/function"
	"github.com/n0madic/go-peakfit/linalg"
)

// LeastSquares is F = ½·Σ (wⱼ·(f(xⱼ) − yⱼ))² over the active parameters of f.
// Its gradient is Jᵂᵀ·rᵂ and its Hessian approximation Jᵂᵀ·Jᵂ, where rᵂ and
// Jᵂ are the weighted residuals and Jacobian.
//
// The active parameter set is taken when the cost function is created; fixing
// or tying parameters of f afterwards requires a new cost function.
type LeastSquares struct {
	fn     function.Function
	data   *Data
	active []int // declared index of each active parameter

	calc  []float64  // f(x) at the current parameters
	jac   *mat.Dense // full jacobian, points × declared parameters
	value float64
	valid bool // calc and value match the current parameters

	deriv   []float64
	hessian *mat.SymDense

	saved *Checkpoint
}

// Checkpoint is a saved parameter state returned by Push. It is consumed by
// exactly one call to Pop or Drop.
type Checkpoint struct {
	owner  *LeastSquares
	params []float64 // every declared parameter, tied ones included
}

// NewLeastSquares binds f to data.
func NewLeastSquares(f function.Function, data *Data) (*LeastSquares, error) {
	if data == nil || data.Len() == 0 {
		return nil, ErrEmptyData
	}
	if len(data.Y) != data.Len() || len(data.Weights) != data.Len() {
		return nil, fmt.Errorf("%w: x=%d y=%d weights=%d", ErrDataMismatch, len(data.X), len(data.Y), len(data.Weights))
	}

	active := function.ActiveIndices(f)
	ls := &LeastSquares{
		fn:     f,
		data:   data,
		active: active,
		calc:   make([]float64, data.Len()),
		deriv:  make([]float64, len(active)),
	}
	if f.NParams() > 0 {
		ls.jac = mat.NewDense(data.Len(), f.NParams(), nil)
	}
	if len(active) > 0 {
		ls.hessian = mat.NewSymDense(len(active), nil)
	} else {
		ls.hessian = &mat.SymDense{}
	}
	return ls, nil
}

// Function returns the bound model function.
func (ls *LeastSquares) Function() function.Function { return ls.fn }

// Data returns the bound observations.
func (ls *LeastSquares) Data() *Data { return ls.data }

// NParams returns the number of active parameters.
func (ls *LeastSquares) NParams() int { return len(ls.active) }

// ParameterName returns the function's name for active parameter i.
func (ls *LeastSquares) ParameterName(i int) string { return ls.fn.ParameterName(ls.active[i]) }

// Parameter returns active parameter i.
func (ls *LeastSquares) Parameter(i int) float64 { return ls.fn.Parameter(ls.active[i]) }

// SetParameter sets active parameter i.
func (ls *LeastSquares) SetParameter(i int, v float64) {
	ls.fn.SetParameter(ls.active[i], v)
	ls.valid = false
}

// Parameters copies the active parameters into out.
func (ls *LeastSquares) Parameters(out []float64) {
	for i, idx := range ls.active {
		out[i] = ls.fn.Parameter(idx)
	}
}

// ApplyTies re-evaluates the function's ties after a parameter update.
func (ls *LeastSquares) ApplyTies() {
	ls.fn.ApplyTies()
	ls.valid = false
}

// Val returns the cost at the current parameters.
func (ls *LeastSquares) Val() float64 {
	if !ls.valid {
		ls.evaluate()
	}
	return ls.value
}

func (ls *LeastSquares) evaluate() {
	ls.fn.Function1D(ls.calc, ls.data.X)
	sum := 0.0
	for j, w := range ls.data.Weights {
		if w == 0 {
			continue
		}
		r := w * (ls.calc[j] - ls.data.Y[j])
		sum += r * r
	}
	ls.value = 0.5 * sum
	ls.valid = true
}

// ValDerivHessian recomputes the gradient and Hessian and returns the cost.
func (ls *LeastSquares) ValDerivHessian(evalFunction bool) float64 {
	if evalFunction || !ls.valid {
		ls.evaluate()
	}
	n := len(ls.active)
	for k := range ls.deriv {
		ls.deriv[k] = 0
	}
	if n == 0 {
		return ls.value
	}
	ls.hessian.Zero()

	function.Jacobian(ls.fn, ls.data.X, ls.jac)
	row := make([]float64, n)
	for j, w := range ls.data.Weights {
		if w == 0 {
			continue
		}
		w2 := w * w
		r := ls.calc[j] - ls.data.Y[j]
		for k, idx := range ls.active {
			row[k] = ls.jac.At(j, idx)
			ls.deriv[k] += w2 * r * row[k]
		}
		for k := 0; k < n; k++ {
			for l := k; l < n; l++ {
				ls.hessian.SetSym(k, l, ls.hessian.At(k, l)+w2*row[k]*row[l])
			}
		}
	}
	return ls.value
}

// ValAndDeriv returns the cost and a copy of its gradient at the current parameters.
func (ls *LeastSquares) ValAndDeriv() (float64, []float64) {
	v := ls.ValDerivHessian(false)
	return v, ls.Deriv()
}

// Deriv returns a copy of the gradient from the last ValDerivHessian.
func (ls *LeastSquares) Deriv() []float64 {
	return append([]float64(nil), ls.deriv...)
}

// Hessian returns a copy of the Hessian from the last ValDerivHessian.
func (ls *LeastSquares) Hessian() *mat.SymDense {
	if len(ls.active) == 0 {
		return &mat.SymDense{}
	}
	return linalg.CopySym(ls.hessian)
}

// Push saves the current parameters. Only one checkpoint may be live.
func (ls *LeastSquares) Push() (*Checkpoint, error) {
	if ls.saved != nil {
		return nil, ErrCheckpointOutstanding
	}
	cp := &Checkpoint{owner: ls, params: make([]float64, ls.fn.NParams())}
	for i := range cp.params {
		cp.params[i] = ls.fn.Parameter(i)
	}
	ls.saved = cp
	return cp, nil
}

// Pop restores the parameters saved in cp and consumes it.
func (ls *LeastSquares) Pop(cp *Checkpoint) error {
	if err := ls.consume(cp); err != nil {
		return err
	}
	for i, v := range cp.params {
		ls.fn.SetParameter(i, v)
	}
	ls.valid = false
	return nil
}

// Drop discards cp, keeping the current parameters.
func (ls *LeastSquares) Drop(cp *Checkpoint) error {
	return ls.consume(cp)
}

func (ls *LeastSquares) consume(cp *Checkpoint) error {
	if cp == nil || cp.owner != ls || ls.saved != cp {
		return ErrStaleCheckpoint
	}
	ls.saved = nil
	return nil
}

// CovarianceMatrix returns the inverse Hessian at the current parameters,
// the covariance of the active parameters for weights equal to 1/error.
func (ls *LeastSquares) CovarianceMatrix() (*mat.SymDense, error) {
	ls.ValDerivHessian(false)
	return linalg.InvertSymmetric(ls.hessian)
}

// FittingErrors computes the standard errors of the active parameters from
// the covariance matrix and stores them in the function. Inactive parameters
// get a zero error.
func (ls *LeastSquares) FittingErrors() ([]float64, error) {
	cov, err := ls.CovarianceMatrix()
	if err != nil {
		return nil, err
	}
	for i := 0; i < ls.fn.NParams(); i++ {
		ls.fn.SetError(i, 0)
	}
	errs := make([]float64, len(ls.active))
	for k, idx := range ls.active {
		errs[k] = math.Sqrt(math.Abs(cov.At(k, k)))
		ls.fn.SetError(idx, errs[k])
	}
	return errs, nil
}

// ChiSquared returns Σ (wⱼ·rⱼ)², twice the cost.
func (ls *LeastSquares) ChiSquared() float64 { return 2 * ls.Val() }

// DegreesOfFreedom returns the number of weighted points minus active parameters.
func (ls *LeastSquares) DegreesOfFreedom() int {
	n := 0
	for _, w := range ls.data.Weights {
		if w != 0 {
			n++
		}
	}
	return n - len(ls.active)
}

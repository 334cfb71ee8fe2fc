// Package costfunc implements the least-squares cost function minimized by the
// minimizer package.
//
// The cost function binds a model function to observed data and exposes the
// function's active (free) parameters as a flat parameter vector. It caches
// the cost value, gradient and Gauss-Newton Hessian approximation, and lets a
// minimizer checkpoint the parameters before a speculative step.
package costfunc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDataMismatch is returned when X, Y and weights differ in length.
	ErrDataMismatch = errors.New("costfunc: data length mismatch")

	// ErrEmptyData is returned for a dataset without points.
	ErrEmptyData = errors.New("costfunc: no data points")

	// ErrNonFiniteData is returned when the data contains NaN or Inf.
	ErrNonFiniteData = errors.New("costfunc: non-finite data value")

	// ErrCheckpointOutstanding is returned by Push while another checkpoint is live.
	ErrCheckpointOutstanding = errors.New("costfunc: checkpoint already outstanding")

	// ErrStaleCheckpoint is returned by Pop and Drop for a checkpoint that is
	// not the live one (already consumed, or from another cost function).
	ErrStaleCheckpoint = errors.New("costfunc: stale checkpoint")
)

// CostFunction is a scalar objective over a parameter vector.
type CostFunction interface {
	NParams() int
	Parameter(i int) float64
	SetParameter(i int, v float64)
	Parameters(out []float64)
	ApplyTies()

	// Val returns the cost at the current parameters.
	Val() float64
	// ValAndDeriv returns the cost and a fresh copy of its gradient.
	ValAndDeriv() (float64, []float64)
}

// LeastSquaresCost is a CostFunction with a Gauss-Newton Hessian and
// checkpointing, as required by the Levenberg-Marquardt minimizer.
type LeastSquaresCost interface {
	CostFunction

	// ValDerivHessian recomputes gradient and Hessian at the current
	// parameters and returns the cost. With evalFunction false a cost value
	// that is already current is reused rather than re-evaluated.
	ValDerivHessian(evalFunction bool) float64
	Deriv() []float64
	Hessian() *mat.SymDense

	Push() (*Checkpoint, error)
	Pop(cp *Checkpoint) error
	Drop(cp *Checkpoint) error
}

// Data is a set of observations with per-point weights (1/error).
type Data struct {
	X       []float64
	Y       []float64
	Weights []float64
}

// NewData validates and wraps observations. A nil weights slice means unit weights.
func NewData(x, y, weights []float64) (*Data, error) {
	if len(x) == 0 {
		return nil, ErrEmptyData
	}
	if weights == nil {
		weights = make([]float64, len(y))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(x) != len(y) || len(y) != len(weights) {
		return nil, fmt.Errorf("%w: x=%d y=%d weights=%d", ErrDataMismatch, len(x), len(y), len(weights))
	}
	for i := range x {
		if !isFinite(x[i]) || !isFinite(y[i]) || !isFinite(weights[i]) {
			return nil, fmt.Errorf("%w at point %d", ErrNonFiniteData, i)
		}
	}
	return &Data{X: x, Y: y, Weights: weights}, nil
}

// Len returns the number of points.
func (d *Data) Len() int { return len(d.X) }

// WeightsFromErrors maps error bars to weights: 1/e for e > 0 and 0 otherwise,
// so points without a usable error contribute nothing.
func WeightsFromErrors(errs []float64) []float64 {
	w := make([]float64, len(errs))
	for i, e := range errs {
		if e > 0 && isFinite(e) {
			w[i] = 1 / e
		}
	}
	return w
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

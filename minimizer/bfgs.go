package minimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/n0madic/go-peakfit/costfunc"
)

// BFGSName is the registry name of the BFGS minimizer.
const BFGSName = "BFGS"

// BFGS minimizes any cost function with the quasi-Newton BFGS method of
// gonum/optimize. The whole minimization runs inside the first Iterate call,
// which always returns false.
type BFGS struct {
	cfg Config

	cf   costfunc.CostFunction
	done bool

	result  *optimize.Result
	lastErr error
}

// NewBFGS creates a BFGS minimizer.
func NewBFGS(opts ...Option) *BFGS {
	return &BFGS{cfg: newConfig(opts)}
}

// Name returns BFGSName.
func (b *BFGS) Name() string { return BFGSName }

// SetOption sets a named option from its string form.
func (b *BFGS) SetOption(name, value string) error {
	return b.cfg.SetOption(name, value)
}

// Initialize binds the minimizer to cf.
func (b *BFGS) Initialize(cf costfunc.CostFunction) error {
	b.cf = cf
	b.done = false
	b.result = nil
	b.lastErr = nil
	if cf.NParams() == 0 {
		return fmt.Errorf("%w: %w", ErrPrecondition, ErrNoParameters)
	}
	return nil
}

// Iterate runs the minimization to completion.
func (b *BFGS) Iterate() (bool, error) {
	if b.cf == nil {
		return b.fail(ErrNotInitialized)
	}
	if b.done {
		return false, b.lastErr
	}
	b.done = true
	n := b.cf.NParams()
	if n == 0 {
		return b.fail(ErrNoParameters)
	}

	x0 := make([]float64, n)
	b.cf.Parameters(x0)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			b.set(x)
			return b.cf.Val()
		},
		Grad: func(grad, x []float64) {
			b.set(x)
			_, g := b.cf.ValAndDeriv()
			copy(grad, g)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-8,
		MajorIterations:   b.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 20,
		},
	}

	res, err := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
	b.result = res
	if res != nil && len(res.X) == n {
		b.set(res.X)
	}
	if b.cfg.Debug && res != nil {
		b.cfg.Logger.Info("bfgs finished", "status", res.Status.String(),
			"cost", res.F, "iterations", res.Stats.MajorIterations, "evaluations", res.Stats.FuncEvaluations)
	}
	if err != nil {
		return b.fail(fmt.Errorf("%w: %w", ErrNotConverged, err))
	}
	if res.Status.Early() {
		return b.fail(fmt.Errorf("%w: %s", ErrNotConverged, res.Status))
	}
	return false, nil
}

func (b *BFGS) set(x []float64) {
	for i, v := range x {
		b.cf.SetParameter(i, v)
	}
	b.cf.ApplyTies()
}

func (b *BFGS) fail(err error) (bool, error) {
	b.lastErr = err
	return false, err
}

// CostFunctionVal returns the cost at the current parameters, NaN before Initialize.
func (b *BFGS) CostFunctionVal() float64 {
	if b.cf == nil {
		return math.NaN()
	}
	return b.cf.Val()
}

// ErrorString returns the message of the last failure, "" if none.
func (b *BFGS) ErrorString() string {
	if b.lastErr == nil {
		return ""
	}
	return b.lastErr.Error()
}

// Result returns the gonum/optimize result of the last run, nil before it.
func (b *BFGS) Result() *optimize.Result { return b.result }

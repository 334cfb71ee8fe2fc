package minimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-peakfit/costfunc"
	"github.com/n0madic/go-peakfit/linalg"
)

// LevenbergMarquardtName is the registry name of the Levenberg-Marquardt minimizer.
const LevenbergMarquardtName = "Levenberg-MarquardtMD"

// LevenbergMarquardt implements the damped Gauss-Newton method with the
// gain-ratio damping update of Madsen, Nielsen and Tingleff:
// - damping added on the diagonal, scaled by the largest gradient seen so far
// - the damped system solved after scaling by the square roots of its diagonal
// - rejected steps undone through a parameter checkpoint
//
// It needs a least-squares cost function.
type LevenbergMarquardt struct {
	cfg Config

	ls costfunc.LeastSquaresCost

	mu  float64   // damping parameter, 0 before the first iteration
	nu  float64   // damping growth factor on rejection
	rho float64   // gain ratio of the previous step
	f   float64   // cost at the last accepted parameters
	d   []float64 // per-parameter damping scale, the running max of |gradient|

	lastErr error
}

// NewLevenbergMarquardt creates a Levenberg-Marquardt minimizer.
func NewLevenbergMarquardt(opts ...Option) *LevenbergMarquardt {
	return &LevenbergMarquardt{
		cfg: newConfig(opts),
		nu:  2,
		rho: 1,
	}
}

// Name returns LevenbergMarquardtName.
func (m *LevenbergMarquardt) Name() string { return LevenbergMarquardtName }

// SetOption sets a named option from its string form.
func (m *LevenbergMarquardt) SetOption(name, value string) error {
	return m.cfg.SetOption(name, value)
}

// Initialize binds the minimizer to cf and resets its state. A cost function
// without parameters is reported as a precondition error, but stays bound so
// that Iterate reports ErrNoParameters.
func (m *LevenbergMarquardt) Initialize(cf costfunc.CostFunction) error {
	ls, ok := cf.(costfunc.LeastSquaresCost)
	if !ok {
		return fmt.Errorf("%w: got %T", ErrNotLeastSquares, cf)
	}
	m.ls = ls
	m.mu = 0
	m.nu = 2
	m.rho = 1
	m.f = 0
	m.d = make([]float64, ls.NParams())
	m.lastErr = nil
	if ls.NParams() == 0 {
		return fmt.Errorf("%w: %w", ErrPrecondition, ErrNoParameters)
	}
	return nil
}

// Iterate performs one Levenberg-Marquardt step. It returns true if the step
// was taken or rejected and another iteration should follow, false with a nil
// error on convergence, and false with an error on failure.
func (m *LevenbergMarquardt) Iterate() (bool, error) {
	if m.ls == nil {
		return m.fail(ErrNotInitialized)
	}
	n := m.ls.NParams()
	if n == 0 {
		return m.fail(ErrNoParameters)
	}
	if m.mu > m.cfg.MuMax {
		return m.fail(fmt.Errorf("%w: mu %g > %g", ErrMuMaxExceeded, m.mu, m.cfg.MuMax))
	}

	// After a rejected step the derivatives of the accepted point are still valid.
	switch {
	case m.mu == 0:
		m.f = m.ls.ValDerivHessian(true)
	case m.rho > 0:
		m.f = m.ls.ValDerivHessian(false)
	}
	if m.mu == 0 {
		m.mu = m.cfg.Tau
		m.nu = 2
	}
	if len(m.d) != n {
		m.d = make([]float64, n)
	}

	h0 := m.ls.Hessian()
	g := m.ls.Deriv()
	h := linalg.CopySym(h0)

	sf := make([]float64, n)
	for i := 0; i < n; i++ {
		m.d[i] = math.Max(m.d[i], math.Abs(g[i]))
		diag := h.At(i, i) + m.mu*m.d[i]
		if diag == 0 {
			return m.fail(fmt.Errorf("%w: zero diagonal for parameter %d", ErrSingularMatrix, i))
		}
		h.SetSym(i, i, diag)
		sf[i] = math.Sqrt(math.Abs(diag))
	}
	if err := linalg.ScaleSymmetric(h, sf); err != nil {
		return m.fail(fmt.Errorf("%w: %w", ErrSingularMatrix, err))
	}

	rhs := make([]float64, n)
	for i := range rhs {
		rhs[i] = -g[i] / sf[i]
	}
	dx, err := linalg.SolveSymmetric(h, rhs)
	if err != nil {
		return m.fail(fmt.Errorf("%w: %w", ErrSingularMatrix, err))
	}
	for i := range dx {
		dx[i] /= sf[i]
	}

	if m.cfg.Debug {
		m.cfg.Logger.Info("lm step", "mu", m.mu, "nu", m.nu, "rho", m.rho, "cost", m.f, "dx", dx)
		m.cfg.Logger.V(1).Info("lm system", "hessian", fmt.Sprintf("%v", mat.Formatted(h0, mat.Squeeze())), "gradient", g)
	}

	cp, err := m.ls.Push()
	if err != nil {
		return m.fail(fmt.Errorf("%w: %w", ErrPrecondition, err))
	}
	for i := range dx {
		m.ls.SetParameter(i, m.ls.Parameter(i)+dx[i])
	}
	m.ls.ApplyTies()

	// Predicted decrease of the quadratic model, with the undamped Hessian.
	dL := -linalg.Dot(g, dx) - 0.5*linalg.QuadraticForm(h0, dx)
	f1 := m.ls.Val()

	if m.rho >= 0 {
		if linalg.Norm(dx) < m.cfg.AbsError {
			return m.stop(cp, f1)
		}
		if m.rho == 0 {
			if m.f != f1 {
				if f1 > m.f {
					m.restore(cp)
				} else {
					m.commit(cp, f1)
				}
				return m.fail(ErrRhoZero)
			}
			return m.stop(cp, f1)
		}
		if f1 == m.f {
			return m.stop(cp, f1)
		}
	}

	if dL == 0 {
		if m.f == f1 {
			m.rho = 1
		} else {
			m.rho = 0
		}
	} else {
		m.rho = (m.f - f1) / dL
		if m.rho == 0 {
			return m.stop(cp, f1)
		}
	}

	if m.cfg.Debug {
		m.cfg.Logger.Info("lm gain", "rho", m.rho, "dL", dL, "F", m.f, "F1", f1)
	}

	if m.rho > 0 {
		r := 2*m.rho - 1
		m.rho = 1 - r*r*r
		if m.rho > 1.0/3 {
			m.rho = 1.0 / 3
		}
		if m.rho < 0.0001 {
			m.rho = 0.1
		}
		m.mu *= m.rho
		m.nu = 2
		m.commit(cp, f1)
	} else {
		m.mu *= m.nu
		m.nu *= 2
		m.restore(cp)
	}
	return true, nil
}

// commit keeps the trial parameters as the accepted point.
func (m *LevenbergMarquardt) commit(cp *costfunc.Checkpoint, f1 float64) {
	// A checkpoint taken in this iteration cannot be stale.
	_ = m.ls.Drop(cp)
	m.f = f1
}

// restore goes back to the accepted point.
func (m *LevenbergMarquardt) restore(cp *costfunc.Checkpoint) {
	_ = m.ls.Pop(cp)
	m.f = m.ls.Val()
}

func (m *LevenbergMarquardt) stop(cp *costfunc.Checkpoint, f1 float64) (bool, error) {
	m.commit(cp, f1)
	m.lastErr = nil
	return false, nil
}

func (m *LevenbergMarquardt) fail(err error) (bool, error) {
	m.lastErr = err
	if m.cfg.Debug {
		m.cfg.Logger.Info("lm failed", "error", err.Error())
	}
	return false, err
}

// CostFunctionVal returns the cost at the current parameters, NaN before Initialize.
func (m *LevenbergMarquardt) CostFunctionVal() float64 {
	if m.ls == nil {
		return math.NaN()
	}
	return m.ls.Val()
}

// ErrorString returns the message of the last failure, "" if none.
func (m *LevenbergMarquardt) ErrorString() string {
	if m.lastErr == nil {
		return ""
	}
	return m.lastErr.Error()
}

// Err returns the last failure.
func (m *LevenbergMarquardt) Err() error { return m.lastErr }

// Mu returns the current damping parameter.
func (m *LevenbergMarquardt) Mu() float64 { return m.mu }

// Nu returns the current damping growth factor.
func (m *LevenbergMarquardt) Nu() float64 { return m.nu }

// Rho returns the gain ratio of the last step after its remapping on acceptance.
func (m *LevenbergMarquardt) Rho() float64 { return m.rho }

// ScaleFloor returns a copy of the per-parameter damping scale D.
func (m *LevenbergMarquardt) ScaleFloor() []float64 {
	return append([]float64(nil), m.d...)
}

// Package fit drives a minimizer over a least-squares cost function and
// reports fitted parameters, their errors and goodness of fit.
package fit

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/n0madic/go-peakfit/costfunc"
	"github.com/n0madic/go-peakfit/function"
	"github.com/n0madic/go-peakfit/minimizer"
)

// DefaultMaxIterations is the iteration budget of a fit.
const DefaultMaxIterations = 500

// StatusSuccess is the status of a converged fit.
const StatusSuccess = "success"

var (
	// ErrNilFunction is returned by Fit without a model function.
	ErrNilFunction = errors.New("fit: nil function")

	// ErrNotConverged is returned by Result.Err for a fit that did not converge.
	ErrNotConverged = errors.New("fit: not converged")
)

// Parameter is a fitted parameter value with its standard error.
type Parameter struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
	Error float64 `yaml:"error"`
}

// Result is the outcome of a fit.
type Result struct {
	Function function.Function `yaml:"-"`

	Model             string      `yaml:"model"`
	Minimizer         string      `yaml:"minimizer"`
	Parameters        []Parameter `yaml:"parameters"`
	ChiSquared        float64     `yaml:"chi_squared"`
	ReducedChiSquared float64     `yaml:"reduced_chi_squared"`
	Iterations        int         `yaml:"iterations"`
	Status            string      `yaml:"status"`
	Converged         bool        `yaml:"converged"`
}

// Err returns nil for a converged fit and an ErrNotConverged error carrying
// the status otherwise.
func (r *Result) Err() error {
	if r.Converged {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotConverged, r.Status)
}

// Parameter returns the fitted parameter called name.
func (r *Result) Parameter(name string) (Parameter, bool) {
	for _, p := range r.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

type config struct {
	minimizer     string
	maxIterations int
	minimizerOpts []minimizer.Option
	logger        logr.Logger
}

// Option defines a functional option for configuring a fit
type Option func(*config)

// WithMinimizer selects the minimizer by registry name
func WithMinimizer(name string) Option {
	return func(c *config) {
		c.minimizer = name
	}
}

// WithMaxIterations sets the iteration budget
func WithMaxIterations(n int) Option {
	return func(c *config) {
		c.maxIterations = n
	}
}

// WithMinimizerOptions passes options through to the minimizer
func WithMinimizerOptions(opts ...minimizer.Option) Option {
	return func(c *config) {
		c.minimizerOpts = append(c.minimizerOpts, opts...)
	}
}

// WithLogger sets the logger for the fit and its minimizer
func WithLogger(logger logr.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// NewData builds fit data from observations and their error bars. A nil errs
// slice gives every point unit weight; points with a non-positive error are
// ignored by the fit.
func NewData(x, y, errs []float64) (*costfunc.Data, error) {
	if errs == nil {
		return costfunc.NewData(x, y, nil)
	}
	if len(errs) != len(y) {
		return nil, fmt.Errorf("%w: y=%d errors=%d", costfunc.ErrDataMismatch, len(y), len(errs))
	}
	return costfunc.NewData(x, y, costfunc.WeightsFromErrors(errs))
}

// Fit adjusts the active parameters of f to data. The minimizer is iterated
// until it stops, fails, runs out of iterations or ctx is done. A fit that
// does not converge is still reported, with Converged false and the reason in
// Status; the returned error covers setup problems and cancellation only.
//
// On return f holds the fitted parameters and their standard errors.
func Fit(ctx context.Context, f function.Function, data *costfunc.Data, opts ...Option) (*Result, error) {
	if f == nil {
		return nil, ErrNilFunction
	}
	cfg := config{
		minimizer:     minimizer.LevenbergMarquardtName,
		maxIterations: DefaultMaxIterations,
		logger:        logr.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxIterations < 1 {
		cfg.maxIterations = 1
	}

	ls, err := costfunc.NewLeastSquares(f, data)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	mopts := append([]minimizer.Option{
		minimizer.WithLogger(cfg.logger.WithName("minimizer")),
		minimizer.WithMaxIterations(cfg.maxIterations),
	}, cfg.minimizerOpts...)
	m, err := minimizer.New(cfg.minimizer, mopts...)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	if err := m.Initialize(ls); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	log := cfg.logger.WithValues("function", f.Name(), "minimizer", m.Name())
	log.V(1).Info("starting fit", "parameters", ls.NParams(), "points", data.Len(), "cost", ls.Val())

	var (
		iterations int
		converged  bool
		iterErr    error
	)
	for iterations < cfg.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fit: %w", err)
		}
		iterations++
		more, err := m.Iterate()
		if err != nil {
			iterErr = err
			break
		}
		if !more {
			converged = true
			break
		}
	}

	res := &Result{
		Function:   f,
		Model:      f.Name(),
		Minimizer:  m.Name(),
		Iterations: iterations,
		Converged:  converged,
	}
	switch {
	case iterErr != nil:
		res.Status = m.ErrorString()
	case converged:
		res.Status = StatusSuccess
	default:
		res.Status = fmt.Sprintf("Failed to converge after %d iterations.", cfg.maxIterations)
	}

	if _, err := ls.FittingErrors(); err != nil {
		log.Info("parameter errors unavailable", "error", err.Error())
	}
	res.ChiSquared = ls.ChiSquared()
	if dof := ls.DegreesOfFreedom(); dof > 0 {
		res.ReducedChiSquared = res.ChiSquared / float64(dof)
	}
	res.Parameters = make([]Parameter, f.NParams())
	for i := range res.Parameters {
		res.Parameters[i] = Parameter{
			Name:  f.ParameterName(i),
			Value: f.Parameter(i),
			Error: f.Error(i),
		}
	}

	log.V(1).Info("fit finished", "status", res.Status, "iterations", iterations, "chi2", res.ReducedChiSquared)
	return res, nil
}

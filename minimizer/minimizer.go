// Package minimizer drives a cost function towards its minimum one iteration
// at a time.
//
// A Minimizer is initialized with a cost function and then Iterate is called
// in a loop until it returns false. A false return with a nil error is a
// successful stop; a non-nil error says why the minimizer gave up. Numerical
// trouble (singular systems, runaway damping) is always reported this way and
// never by panicking, so a fit driver can retry or report cleanly.
package minimizer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/n0madic/go-peakfit/costfunc"
)

var (
	// ErrNotInitialized is returned by Iterate before a successful Initialize.
	ErrNotInitialized = errors.New("minimizer: not initialized")

	// ErrPrecondition marks API misuse detected when the minimizer is set up.
	ErrPrecondition = errors.New("minimizer: precondition violated")

	// ErrNotLeastSquares is returned when a minimizer that needs a
	// least-squares cost function is given another kind.
	ErrNotLeastSquares = errors.New("minimizer: cost function is not a least-squares cost function")

	// ErrNoParameters is returned when the cost function has nothing to fit.
	ErrNoParameters = errors.New("minimizer: no parameters to fit")

	// ErrSingularMatrix is returned when the damped system cannot be solved.
	ErrSingularMatrix = errors.New("minimizer: singular matrix")

	// ErrRhoZero is returned when a step changed the cost while the gain ratio
	// stayed exactly zero.
	ErrRhoZero = errors.New("minimizer: failed to converge, rho == 0")

	// ErrMuMaxExceeded is returned once the damping parameter passes MuMax.
	ErrMuMaxExceeded = errors.New("minimizer: failed to converge, maximum mu reached")

	// ErrNotConverged is returned when an iteration budget ran out.
	ErrNotConverged = errors.New("minimizer: failed to converge")

	// ErrUnknownMinimizer is returned by New for an unregistered name.
	ErrUnknownMinimizer = errors.New("minimizer: unknown minimizer")

	// ErrUnknownOption is returned by SetOption for an unrecognised name.
	ErrUnknownOption = errors.New("minimizer: unknown option")
)

// Minimizer is an iterative optimizer over a cost function.
type Minimizer interface {
	Name() string
	Initialize(cf costfunc.CostFunction) error
	// Iterate performs one step and reports whether another is warranted.
	Iterate() (bool, error)
	// CostFunctionVal returns the cost at the current parameters.
	CostFunctionVal() float64
	// ErrorString returns the message of the last failure, "" if none.
	ErrorString() string
}

// Config holds the options shared by all minimizers.
type Config struct {
	MuMax         float64     // damping ceiling beyond which LM gives up
	AbsError      float64     // step norm below which LM stops
	Tau           float64     // initial LM damping
	Debug         bool        // log every iteration
	MaxIterations int         // iteration budget for minimizers that run internally
	Logger        logr.Logger // diagnostics sink
}

// DefaultConfig returns the default minimizer configuration.
func DefaultConfig() Config {
	return Config{
		MuMax:         1e6,
		AbsError:      1e-4,
		Tau:           1e-6,
		MaxIterations: 500,
		Logger:        logr.Discard(),
	}
}

// Option defines a functional option for configuring a minimizer
type Option func(*Config)

// WithMuMax sets the damping ceiling
func WithMuMax(muMax float64) Option {
	return func(c *Config) {
		c.MuMax = muMax
	}
}

// WithAbsError sets the parameter-step convergence threshold
func WithAbsError(absError float64) Option {
	return func(c *Config) {
		c.AbsError = absError
	}
}

// WithTau sets the damping used on the first iteration
func WithTau(tau float64) Option {
	return func(c *Config) {
		c.Tau = tau
	}
}

// WithDebug enables per-iteration diagnostics
func WithDebug(debug bool) Option {
	return func(c *Config) {
		c.Debug = debug
	}
}

// WithMaxIterations sets the iteration budget of internally looping minimizers
func WithMaxIterations(n int) Option {
	return func(c *Config) {
		c.MaxIterations = n
	}
}

// WithLogger sets the diagnostics sink
func WithLogger(logger logr.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// SetOption sets a named option from its string form. Recognised names are
// MuMax, AbsError, Tau, Debug and MaxIterations.
func (c *Config) SetOption(name, value string) error {
	var err error
	switch name {
	case "MuMax":
		c.MuMax, err = strconv.ParseFloat(value, 64)
	case "AbsError":
		c.AbsError, err = strconv.ParseFloat(value, 64)
	case "Tau":
		c.Tau, err = strconv.ParseFloat(value, 64)
	case "Debug":
		c.Debug, err = strconv.ParseBool(value)
	case "MaxIterations":
		c.MaxIterations, err = strconv.Atoi(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	if err != nil {
		return fmt.Errorf("minimizer: option %s: %w", name, err)
	}
	return nil
}

func newConfig(opts []Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	return cfg
}

var factories = map[string]func(...Option) Minimizer{
	LevenbergMarquardtName: func(opts ...Option) Minimizer { return NewLevenbergMarquardt(opts...) },
	BFGSName:               func(opts ...Option) Minimizer { return NewBFGS(opts...) },
}

// New creates the minimizer registered under name.
func New(name string, opts ...Option) (Minimizer, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMinimizer, name)
	}
	return factory(opts...), nil
}

// Names returns the available minimizer names.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

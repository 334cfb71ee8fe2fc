// Package function defines the parametrized model functions that are fitted to
// data and integrated.
//
// A Function is a capability interface: it evaluates itself on a set of
// abscissae and exposes its parameters by index and by name. Concrete shapes
// embed Params for the parameter bookkeeping (values, errors, fixing and
// ties) and only implement evaluation. Shapes that can compute their
// derivatives analytically additionally implement Deriver; peak shapes
// implement PeakFunction.
package function

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnknownParameter is returned when a parameter name is not declared.
	ErrUnknownParameter = errors.New("function: unknown parameter")

	// ErrUnknownFunction is returned by New for a name that was never registered.
	ErrUnknownFunction = errors.New("function: unknown function")

	// ErrDuplicateFunction is returned by Register when the name is taken.
	ErrDuplicateFunction = errors.New("function: function already registered")
)

// Tie computes the value of a tied parameter from the state of its function.
type Tie func(f Function) float64

// Function is a parametrized function of one variable.
type Function interface {
	Name() string

	NParams() int
	ParameterName(i int) string
	ParameterIndex(name string) (int, error)
	Parameter(i int) float64
	SetParameter(i int, v float64)
	Error(i int) float64
	SetError(i int, e float64)

	Fix(i int)
	Unfix(i int)
	IsFixed(i int) bool
	Tie(i int, tie Tie)
	RemoveTie(i int)
	IsTied(i int) bool
	// IsActive reports whether the parameter is free to be fitted.
	IsActive(i int) bool
	// ApplyTies recomputes every tied parameter from its tie.
	ApplyTies()

	// Function1D writes f(x[j]) into out[j].
	Function1D(out, x []float64)
	// Clone returns a deep copy sharing no mutable state with the receiver.
	Clone() Function
}

// Deriver is implemented by functions with analytic derivatives.
// jac has one row per abscissa and one column per declared parameter.
type Deriver interface {
	FunctionDeriv1D(jac *mat.Dense, x []float64)
}

// PeakFunction is a unimodal function with a centre, height and width.
type PeakFunction interface {
	Function

	Centre() float64
	Height() float64
	FWHM() float64
	SetCentre(c float64)
	SetHeight(h float64)
	SetFWHM(w float64)
}

// Params implements the parameter half of Function. Shapes embed it by value.
type Params struct {
	names  []string
	values []float64
	errs   []float64
	fixed  []bool
	ties   []Tie
}

// NewParams declares parameters with the given names and initial values.
func NewParams(names []string, values []float64) Params {
	if len(names) != len(values) {
		panic(fmt.Sprintf("function: %d parameter names for %d values", len(names), len(values)))
	}
	return Params{
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
		errs:   make([]float64, len(names)),
		fixed:  make([]bool, len(names)),
		ties:   make([]Tie, len(names)),
	}
}

// NParams returns the number of declared parameters.
func (p *Params) NParams() int { return len(p.values) }

// ParameterName returns the name of parameter i.
func (p *Params) ParameterName(i int) string { return p.names[i] }

// ParameterIndex returns the index of the named parameter.
func (p *Params) ParameterIndex(name string) (int, error) {
	for i, n := range p.names {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
}

// Parameter returns the value of parameter i.
func (p *Params) Parameter(i int) float64 { return p.values[i] }

// SetParameter sets the value of parameter i.
func (p *Params) SetParameter(i int, v float64) { p.values[i] = v }

// Error returns the fit uncertainty of parameter i.
func (p *Params) Error(i int) float64 { return p.errs[i] }

// SetError sets the fit uncertainty of parameter i.
func (p *Params) SetError(i int, e float64) { p.errs[i] = e }

// Fix excludes parameter i from fitting.
func (p *Params) Fix(i int) { p.fixed[i] = true }

// Unfix makes parameter i free again.
func (p *Params) Unfix(i int) { p.fixed[i] = false }

// IsFixed reports whether parameter i is fixed.
func (p *Params) IsFixed(i int) bool { return p.fixed[i] }

// Tie binds parameter i to tie. A nil tie removes it.
func (p *Params) Tie(i int, tie Tie) { p.ties[i] = tie }

// RemoveTie removes the tie on parameter i.
func (p *Params) RemoveTie(i int) { p.ties[i] = nil }

// IsTied reports whether parameter i is tied.
func (p *Params) IsTied(i int) bool { return p.ties[i] != nil }

// IsActive reports whether parameter i is neither fixed nor tied.
func (p *Params) IsActive(i int) bool { return !p.fixed[i] && p.ties[i] == nil }

// applyTies evaluates ties against owner, the function embedding p.
func (p *Params) applyTies(owner Function) {
	for i, tie := range p.ties {
		if tie != nil {
			p.values[i] = tie(owner)
		}
	}
}

// clone returns a deep copy. Ties are shared: they are stateless closures
// that receive the function they are applied to.
func (p *Params) clone() Params {
	return Params{
		names:  append([]string(nil), p.names...),
		values: append([]float64(nil), p.values...),
		errs:   append([]float64(nil), p.errs...),
		fixed:  append([]bool(nil), p.fixed...),
		ties:   append([]Tie(nil), p.ties...),
	}
}

// SetParameterByName sets the named parameter of f.
func SetParameterByName(f Function, name string, v float64) error {
	i, err := f.ParameterIndex(name)
	if err != nil {
		return err
	}
	f.SetParameter(i, v)
	return nil
}

// ParameterByName returns the named parameter of f.
func ParameterByName(f Function, name string) (float64, error) {
	i, err := f.ParameterIndex(name)
	if err != nil {
		return 0, err
	}
	return f.Parameter(i), nil
}

// TieTo returns a tie that copies the named parameter scaled by factor.
func TieTo(name string, factor float64) Tie {
	return func(f Function) float64 {
		v, err := ParameterByName(f, name)
		if err != nil {
			return 0
		}
		return factor * v
	}
}

// ActiveIndices returns the declared indices of f's active parameters.
func ActiveIndices(f Function) []int {
	idx := make([]int, 0, f.NParams())
	for i := 0; i < f.NParams(); i++ {
		if f.IsActive(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Eval evaluates f at x into a new slice.
func Eval(f Function, x []float64) []float64 {
	out := make([]float64, len(x))
	f.Function1D(out, x)
	return out
}

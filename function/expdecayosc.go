package function

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ExpDecayOsc is a damped oscillation, A·exp(-Lambda·x)·cos(2π·Frequency·x + Phi),
// the usual muon spin rotation signal.
type ExpDecayOsc struct {
	Params
}

// NewExpDecayOsc creates a damped oscillation.
func NewExpDecayOsc(a, lambda, frequency, phi float64) *ExpDecayOsc {
	return &ExpDecayOsc{Params: NewParams(
		[]string{"A", "Lambda", "Frequency", "Phi"},
		[]float64{a, lambda, frequency, phi},
	)}
}

func (e *ExpDecayOsc) Name() string { return "ExpDecayOsc" }

func (e *ExpDecayOsc) ApplyTies() { e.applyTies(e) }

func (e *ExpDecayOsc) Clone() Function { return &ExpDecayOsc{Params: e.clone()} }

func (e *ExpDecayOsc) Function1D(out, x []float64) {
	a, lambda, freq, phi := e.values[0], e.values[1], e.values[2], e.values[3]
	for j, xv := range x {
		out[j] = a * math.Exp(-lambda*xv) * math.Cos(2*math.Pi*freq*xv+phi)
	}
}

func (e *ExpDecayOsc) FunctionDeriv1D(jac *mat.Dense, x []float64) {
	a, lambda, freq, phi := e.values[0], e.values[1], e.values[2], e.values[3]
	for j, xv := range x {
		decay := math.Exp(-lambda * xv)
		sin, cos := math.Sincos(2*math.Pi*freq*xv + phi)
		jac.Set(j, 0, decay*cos)
		jac.Set(j, 1, -xv*a*decay*cos)
		jac.Set(j, 2, -2*math.Pi*xv*a*decay*sin)
		jac.Set(j, 3, -a*decay*sin)
	}
}

package function

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// fwhmToSigma converts a Gaussian full width at half maximum to sigma.
var fwhmToSigma = 1 / (2 * math.Sqrt(2*math.Ln2))

// Gaussian is Height·exp(-½((x-PeakCentre)/Sigma)²).
type Gaussian struct {
	Params
}

// NewGaussian creates a Gaussian peak.
func NewGaussian(height, centre, sigma float64) *Gaussian {
	return &Gaussian{Params: NewParams(
		[]string{"Height", "PeakCentre", "Sigma"},
		[]float64{height, centre, sigma},
	)}
}

func (g *Gaussian) Name() string { return "Gaussian" }

func (g *Gaussian) ApplyTies() { g.applyTies(g) }

func (g *Gaussian) Clone() Function { return &Gaussian{Params: g.clone()} }

func (g *Gaussian) Function1D(out, x []float64) {
	h, c, s := g.values[0], g.values[1], g.values[2]
	w := 1 / (s * s)
	for j, xv := range x {
		d := xv - c
		out[j] = h * math.Exp(-0.5*d*d*w)
	}
}

func (g *Gaussian) FunctionDeriv1D(jac *mat.Dense, x []float64) {
	h, c, s := g.values[0], g.values[1], g.values[2]
	w := 1 / (s * s)
	for j, xv := range x {
		d := xv - c
		e := math.Exp(-0.5 * d * d * w)
		jac.Set(j, 0, e)
		jac.Set(j, 1, h*e*d*w)
		jac.Set(j, 2, h*e*d*d*w/s)
	}
}

func (g *Gaussian) Centre() float64 { return g.values[1] }
func (g *Gaussian) Height() float64 { return g.values[0] }
func (g *Gaussian) FWHM() float64   { return math.Abs(g.values[2]) / fwhmToSigma }

func (g *Gaussian) SetCentre(c float64) { g.values[1] = c }
func (g *Gaussian) SetHeight(h float64) { g.values[0] = h }
func (g *Gaussian) SetFWHM(w float64)   { g.values[2] = w * fwhmToSigma }

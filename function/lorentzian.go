package function

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Lorentzian is a Cauchy peak normalised so that Amplitude is its integral:
// Amplitude/π · (FWHM/2) / ((x-PeakCentre)² + (FWHM/2)²).
type Lorentzian struct {
	Params
}

// NewLorentzian creates a Lorentzian peak.
func NewLorentzian(amplitude, centre, fwhm float64) *Lorentzian {
	return &Lorentzian{Params: NewParams(
		[]string{"Amplitude", "PeakCentre", "FWHM"},
		[]float64{amplitude, centre, fwhm},
	)}
}

func (l *Lorentzian) Name() string { return "Lorentzian" }

func (l *Lorentzian) ApplyTies() { l.applyTies(l) }

func (l *Lorentzian) Clone() Function { return &Lorentzian{Params: l.clone()} }

func (l *Lorentzian) Function1D(out, x []float64) {
	a, c, g := l.values[0], l.values[1], 0.5*l.values[2]
	for j, xv := range x {
		d := xv - c
		out[j] = a / math.Pi * g / (d*d + g*g)
	}
}

func (l *Lorentzian) FunctionDeriv1D(jac *mat.Dense, x []float64) {
	a, c, g := l.values[0], l.values[1], 0.5*l.values[2]
	for j, xv := range x {
		d := xv - c
		den := d*d + g*g
		jac.Set(j, 0, g/(math.Pi*den))
		jac.Set(j, 1, a*g/math.Pi*2*d/(den*den))
		jac.Set(j, 2, a/(2*math.Pi)*(d*d-g*g)/(den*den))
	}
}

func (l *Lorentzian) Centre() float64 { return l.values[1] }
func (l *Lorentzian) FWHM() float64   { return l.values[2] }

// Height is the peak value at the centre.
func (l *Lorentzian) Height() float64 {
	if l.values[2] == 0 {
		return 0
	}
	return 2 * l.values[0] / (math.Pi * l.values[2])
}

func (l *Lorentzian) SetCentre(c float64) { l.values[1] = c }

// SetHeight rescales Amplitude so the peak value becomes h at the current width.
func (l *Lorentzian) SetHeight(h float64) { l.values[0] = h * math.Pi * l.values[2] / 2 }

// SetFWHM changes the width keeping the height.
func (l *Lorentzian) SetFWHM(w float64) {
	h := l.Height()
	l.values[2] = w
	l.SetHeight(h)
}

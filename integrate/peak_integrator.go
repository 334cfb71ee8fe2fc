package integrate

import (
	"fmt"
	"math"
	"sort"

	"github.com/n0madic/go-peakfit/function"
)

// DefaultRelativePrecision is the default required relative precision.
const DefaultRelativePrecision = 1e-8

// PeakIntegrator integrates peak functions over finite, semi-infinite and
// infinite ranges.
type PeakIntegrator struct {
	relPrecision float64
	limit        int
}

// Option defines a functional option for configuring PeakIntegrator
type Option func(*PeakIntegrator)

// WithRelativePrecision sets the required relative precision
func WithRelativePrecision(eps float64) Option {
	return func(p *PeakIntegrator) {
		p.relPrecision = eps
	}
}

// WithIntervalLimit sets the maximum number of subintervals
func WithIntervalLimit(n int) Option {
	return func(p *PeakIntegrator) {
		p.limit = n
	}
}

// NewPeakIntegrator creates an integrator with the given options.
func NewPeakIntegrator(opts ...Option) *PeakIntegrator {
	p := &PeakIntegrator{
		relPrecision: DefaultRelativePrecision,
		limit:        DefaultIntervalLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetRequiredRelativePrecision sets the relative precision for later integrations.
func (p *PeakIntegrator) SetRequiredRelativePrecision(eps float64) { p.relPrecision = eps }

// RequiredRelativePrecision returns the relative precision in use.
func (p *PeakIntegrator) RequiredRelativePrecision() float64 { return p.relPrecision }

// Integrate integrates f over [lower, upper].
func (p *PeakIntegrator) Integrate(f function.PeakFunction, lower, upper float64) Result {
	return p.integrate(f, lower, upper)
}

// IntegratePositiveInfinity integrates f over [lower, +∞).
func (p *PeakIntegrator) IntegratePositiveInfinity(f function.PeakFunction, lower float64) Result {
	return p.integrate(f, lower, math.Inf(1))
}

// IntegrateNegativeInfinity integrates f over (-∞, upper].
func (p *PeakIntegrator) IntegrateNegativeInfinity(f function.PeakFunction, upper float64) Result {
	return p.integrate(f, math.Inf(-1), upper)
}

// IntegrateInfinity integrates f over the whole real line.
func (p *PeakIntegrator) IntegrateInfinity(f function.PeakFunction) Result {
	return p.integrate(f, math.Inf(-1), math.Inf(1))
}

// IntegrateRange integrates f over [lower, upper], where either bound may be
// infinite.
func (p *PeakIntegrator) IntegrateRange(f function.PeakFunction, lower, upper float64) Result {
	lowerInf := math.IsInf(lower, -1)
	upperInf := math.IsInf(upper, 1)
	switch {
	case lowerInf && upperInf:
		return p.IntegrateInfinity(f)
	case lowerInf:
		return p.IntegrateNegativeInfinity(f, upper)
	case upperInf:
		return p.IntegratePositiveInfinity(f, lower)
	}
	return p.Integrate(f, lower, upper)
}

// integrate splits [lower, upper] at the breakpoints of f and sums the
// pieces, nearest the peak first. Later pieces may also meet an absolute
// tolerance relative to the area found so far.
func (p *PeakIntegrator) integrate(f function.PeakFunction, lower, upper float64) Result {
	bounds := append([]float64{lower}, breakpoints(f, lower, upper)...)
	bounds = append(bounds, upper)
	pieces := make([][2]float64, len(bounds)-1)
	for i := range pieces {
		pieces[i] = [2]float64{bounds[i], bounds[i+1]}
	}
	centre := f.Centre()
	sort.SliceStable(pieces, func(i, j int) bool {
		return distance(pieces[i], centre) < distance(pieces[j], centre)
	})

	eval := evaluator(f)
	total := Result{Status: Success, Success: true}
	for i, pc := range pieces {
		epsabs := 0.0
		if i > 0 {
			epsabs = p.relPrecision * math.Abs(total.Result) / float64(len(pieces))
		}
		r := integratePiece(eval, pc[0], pc[1], epsabs, p.relPrecision, p.limit)
		total.Intervals += r.Intervals
		if !r.Success {
			return failed(r.Status, total.Intervals)
		}
		total.Result += r.Result
		total.Error += r.Error
	}
	return total
}

// integratePiece maps infinite pieces onto (0, 1] and integrates.
func integratePiece(f func(float64) float64, a, b, epsabs, epsrel float64, limit int) Result {
	lowerInf := math.IsInf(a, -1)
	upperInf := math.IsInf(b, 1)
	switch {
	case lowerInf && upperInf:
		return qag(wholeLine(f), 0, 1, epsabs, epsrel, limit, gk15)
	case lowerInf:
		return qag(lowerTail(f, b), 0, 1, epsabs, epsrel, limit, gk15)
	case upperInf:
		return qag(upperTail(f, a), 0, 1, epsabs, epsrel, limit, gk15)
	}
	return qag(f, a, b, epsabs, epsrel, limit, gk21)
}

// coreWidths is the distance of the first split points from the centre, in FWHM.
const coreWidths = 3

// maxDecades bounds the split points on each side of the centre.
const maxDecades = 16

// breakpoints returns the sorted points strictly inside (lower, upper) at
// which the range is split: the centre of f and centre ± coreWidths·FWHM·10ᵏ.
// On an infinite side the points stop at the first one at least a unit from
// the centre, where the tail mapping takes over.
func breakpoints(f function.PeakFunction, lower, upper float64) []float64 {
	c, w := f.Centre(), math.Abs(f.FWHM())
	if !isFinite(c) {
		return nil
	}
	var pts []float64
	add := func(x float64) {
		if x > lower && x < upper {
			pts = append(pts, x)
		}
	}
	add(c)
	if w > 0 && isFinite(w) {
		for _, side := range []float64{-1, 1} {
			bound := upper
			if side < 0 {
				bound = lower
			}
			reach := math.Abs(bound - c)
			if math.IsInf(bound, 0) {
				reach = 1
			}
			d := coreWidths * w
			for k := 0; k < maxDecades; k++ {
				add(c + side*d)
				if d >= reach {
					break
				}
				d *= 10
			}
		}
	}
	sort.Float64s(pts)
	return pts
}

// distance is how far the piece lies from x; zero when it contains x.
func distance(piece [2]float64, x float64) float64 {
	return math.Max(0, math.Max(piece[0]-x, x-piece[1]))
}

// IntegrateError propagates the parameter errors of f into the integral over
// [lower, upper]: each parameter with a non-zero error is shifted by that
// error and the resulting changes of the integral are added in quadrature.
// A function without parameter errors has zero integral error.
func (p *PeakIntegrator) IntegrateError(f function.PeakFunction, lower, upper float64) (float64, error) {
	base := p.IntegrateRange(f, lower, upper)
	if err := base.Err(); err != nil {
		return math.NaN(), err
	}

	sum := 0.0
	for i := 0; i < f.NParams(); i++ {
		e := f.Error(i)
		if e == 0 {
			continue
		}
		shifted, ok := f.Clone().(function.PeakFunction)
		if !ok {
			return math.NaN(), fmt.Errorf("integrate: clone of %s is not a peak function", f.Name())
		}
		shifted.SetParameter(i, f.Parameter(i)+e)
		shifted.ApplyTies()

		r := p.IntegrateRange(shifted, lower, upper)
		if err := r.Err(); err != nil {
			return math.NaN(), fmt.Errorf("integrate: shifting %s: %w", f.ParameterName(i), err)
		}
		d := r.Result - base.Result
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// evaluator adapts a function to a scalar integrand.
func evaluator(f function.Function) func(float64) float64 {
	x := make([]float64, 1)
	out := make([]float64, 1)
	return func(v float64) float64 {
		x[0] = v
		f.Function1D(out, x)
		return out[0]
	}
}

package fit

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/n0madic/go-peakfit/costfunc"
	"github.com/n0madic/go-peakfit/function"
)

// ErrNoPeak is returned by GuessPeak for data without a maximum above its baseline.
var ErrNoPeak = errors.New("fit: no peak in data")

// GuessPeak sets start values of p from data: the centre at the highest
// point, the height above the lowest point, and the FWHM from the
// half-height crossings on either side of the maximum. data.X must be sorted.
func GuessPeak(p function.PeakFunction, data *costfunc.Data) error {
	x, y := data.X, data.Y
	top := floats.MaxIdx(y)
	base := floats.Min(y)
	height := y[top] - base
	if !(height > 0) {
		return ErrNoPeak
	}
	half := base + height/2

	left := math.NaN()
	for i := top; i > 0; i-- {
		if y[i-1] <= half {
			left = crossing(x[i-1], y[i-1], x[i], y[i], half)
			break
		}
	}
	right := math.NaN()
	for i := top; i < len(y)-1; i++ {
		if y[i+1] <= half {
			right = crossing(x[i], y[i], x[i+1], y[i+1], half)
			break
		}
	}

	var fwhm float64
	switch {
	case !math.IsNaN(left) && !math.IsNaN(right):
		fwhm = right - left
	case !math.IsNaN(left):
		fwhm = 2 * (x[top] - left)
	case !math.IsNaN(right):
		fwhm = 2 * (right - x[top])
	default:
		fwhm = (x[len(x)-1] - x[0]) / 2
	}
	if !(fwhm > 0) {
		return ErrNoPeak
	}

	p.SetCentre(x[top])
	// Width first: a Lorentzian keeps its height across SetFWHM.
	p.SetFWHM(fwhm)
	p.SetHeight(height)
	p.ApplyTies()
	return nil
}

// crossing interpolates the abscissa where the segment reaches level.
func crossing(x0, y0, x1, y1, level float64) float64 {
	if y1 == y0 {
		return x0
	}
	return x0 + (level-y0)*(x1-x0)/(y1-y0)
}

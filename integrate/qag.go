// Package integrate computes definite integrals of peak functions with
// globally adaptive Gauss-Kronrod quadrature.
//
// A range is first split at the peak centre and at multiples of the FWHM
// around it. Finite pieces use the 21-point Kronrod rule; semi-infinite ones
// are mapped onto (0, 1] and integrated with the 15-point rule.
package integrate

import (
	"container/heap"
	"math"
)

// DefaultIntervalLimit is the default maximum number of subintervals.
const DefaultIntervalLimit = 1000

type interval struct {
	a, b   float64
	result float64
	err    float64
}

// intervalHeap keeps the subinterval with the largest error on top.
type intervalHeap []interval

func (h intervalHeap) Len() int           { return len(h) }
func (h intervalHeap) Less(i, j int) bool { return h[i].err > h[j].err }
func (h intervalHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intervalHeap) Push(x any)        { *h = append(*h, x.(interval)) }

func (h *intervalHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// qag integrates f over [a, b] by repeatedly bisecting the subinterval with
// the largest error estimate until the total error is within
// max(epsabs, epsrel·|result|) or limit subintervals are in use.
func qag(f func(float64) float64, a, b, epsabs, epsrel float64, limit int, rule kronrodRule) Result {
	if limit < 1 {
		limit = 1
	}
	if epsabs <= 0 && (epsrel < 50*dblEpsilon || epsrel < 0.5e-28) {
		return failed(BadTolerance, 0)
	}

	result0, abserr0, resabs0, resasc0 := rule.apply(f, a, b)
	if !isFinite(result0) || !isFinite(abserr0) {
		return failed(Failure, 1)
	}

	tolerance := math.Max(epsabs, epsrel*math.Abs(result0))
	roundOff := 50 * dblEpsilon * resabs0
	switch {
	case abserr0 <= roundOff && abserr0 > tolerance:
		return failed(RoundOff, 1)
	case (abserr0 <= tolerance && abserr0 != resasc0) || abserr0 == 0:
		return Result{Result: result0, Error: abserr0, Status: Success, Success: true, Intervals: 1}
	case limit == 1:
		return failed(MaxIterations, 1)
	}

	intervals := &intervalHeap{{a: a, b: b, result: result0, err: abserr0}}
	area := result0
	errsum := abserr0
	roundoff1, roundoff2 := 0, 0
	status := Success
	iteration := 1

	for {
		worst := heap.Pop(intervals).(interval)
		a1, b1 := worst.a, 0.5*(worst.a+worst.b)
		a2, b2 := b1, worst.b

		area1, error1, _, resasc1 := rule.apply(f, a1, b1)
		area2, error2, _, resasc2 := rule.apply(f, a2, b2)
		area12 := area1 + area2
		error12 := error1 + error2

		errsum += error12 - worst.err
		area += area12 - worst.result

		if resasc1 != error1 && resasc2 != error2 {
			delta := worst.result - area12
			if math.Abs(delta) <= 1e-5*math.Abs(area12) && error12 >= 0.99*worst.err {
				roundoff1++
			}
			if iteration >= 10 && error12 > worst.err {
				roundoff2++
			}
		}

		tolerance = math.Max(epsabs, epsrel*math.Abs(area))
		if errsum > tolerance {
			if roundoff1 >= 6 || roundoff2 >= 20 {
				status = RoundOff
			}
			if subintervalTooSmall(a1, a2, b2) {
				status = Singular
			}
		}

		heap.Push(intervals, interval{a: a1, b: b1, result: area1, err: error1})
		heap.Push(intervals, interval{a: a2, b: b2, result: area2, err: error2})
		iteration++

		if iteration >= limit || status != Success || !(errsum > tolerance) {
			break
		}
	}

	sum := 0.0
	for _, iv := range *intervals {
		sum += iv.result
	}
	n := intervals.Len()

	switch {
	case !isFinite(sum) || !isFinite(errsum):
		return failed(Failure, n)
	case errsum <= tolerance:
		return Result{Result: sum, Error: errsum, Status: Success, Success: true, Intervals: n}
	case status != Success:
		return failed(status, n)
	case iteration == limit:
		return failed(MaxIterations, n)
	}
	return failed(Failure, n)
}

func subintervalTooSmall(a1, a2, b2 float64) bool {
	tmp := (1 + 100*dblEpsilon) * (math.Abs(a2) + 1000*dblMin)
	return math.Abs(a1) <= tmp && math.Abs(b2) <= tmp
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Transformations of infinite ranges onto (0, 1], as in QUADPACK's qagi.

func upperTail(f func(float64) float64, a float64) func(float64) float64 {
	return func(t float64) float64 {
		x := a + (1-t)/t
		return f(x) / (t * t)
	}
}

func lowerTail(f func(float64) float64, b float64) func(float64) float64 {
	return func(t float64) float64 {
		x := b - (1-t)/t
		return f(x) / (t * t)
	}
}

func wholeLine(f func(float64) float64) func(float64) float64 {
	return func(t float64) float64 {
		x := (1 - t) / t
		return (f(x) + f(-x)) / (t * t)
	}
}

package integrate

import (
	"errors"
	"fmt"
)

// Status is the outcome code of an integration. The numeric values follow the
// GSL error codes for the same conditions.
type Status int

const (
	Success       Status = 0
	Failure       Status = -1
	MaxIterations Status = 11
	BadTolerance  Status = 13
	RoundOff      Status = 18
	Singular      Status = 21
)

var (
	ErrFailure       = errors.New("integrate: could not integrate function")
	ErrMaxIterations = errors.New("integrate: number of iterations was insufficient")
	ErrBadTolerance  = errors.New("integrate: tolerance cannot be achieved with given epsabs and epsrel")
	ErrRoundOff      = errors.New("integrate: roundoff error prevents tolerance from being achieved")
	ErrSingular      = errors.New("integrate: bad integrand behavior found in the integration interval")
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case MaxIterations:
		return "max iterations"
	case BadTolerance:
		return "bad tolerance"
	case RoundOff:
		return "round-off"
	case Singular:
		return "singular"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Err maps s to its sentinel error, nil for Success.
func (s Status) Err() error {
	switch s {
	case Success:
		return nil
	case MaxIterations:
		return ErrMaxIterations
	case BadTolerance:
		return ErrBadTolerance
	case RoundOff:
		return ErrRoundOff
	case Singular:
		return ErrSingular
	}
	return ErrFailure
}

// Result is the outcome of one integration. On failure Result and Error are
// both zero.
type Result struct {
	Result    float64
	Error     float64 // absolute error estimate
	Status    Status
	Success   bool
	Intervals int // subintervals used
}

// Err returns nil for a successful integration and the status error otherwise.
func (r Result) Err() error { return r.Status.Err() }

func failed(s Status, intervals int) Result {
	return Result{Status: s, Intervals: intervals}
}

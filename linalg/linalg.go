// Package linalg holds the small dense linear-algebra layer used by the cost
// functions and minimizers. It is a thin layer over gonum's mat package that
// reports singular systems as errors instead of silently returning garbage.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingular is returned when a system cannot be solved or a matrix inverted.
	ErrSingular = errors.New("linalg: singular matrix")

	// ErrDimensionMismatch is returned when operand sizes disagree.
	ErrDimensionMismatch = errors.New("linalg: dimension mismatch")
)

// conditionLimit is the LU condition number beyond which a solve is rejected.
var conditionLimit = 1 / (math.Nextafter(1, 2) - 1)

// Dot returns the inner product of a and b.
func Dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

// Norm returns the Euclidean norm of v.
func Norm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

// Symmetrize returns (d + dᵀ)/2 as a symmetric matrix. d must be square.
func Symmetrize(d mat.Matrix) *mat.SymDense {
	n, c := d.Dims()
	if n != c {
		panic(mat.ErrSquare)
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(d.At(i, j)+d.At(j, i)))
		}
	}
	return sym
}

// CopySym returns a deep copy of a.
func CopySym(a mat.Symmetric) *mat.SymDense {
	n := a.SymmetricDim()
	c := mat.NewSymDense(n, nil)
	c.CopySym(a)
	return c
}

// ScaleSymmetric divides a[i][j] by sf[i]*sf[j] in place.
func ScaleSymmetric(a *mat.SymDense, sf []float64) error {
	n := a.SymmetricDim()
	if len(sf) != n {
		return fmt.Errorf("scale factors: %w", ErrDimensionMismatch)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a.SetSym(i, j, a.At(i, j)/(sf[i]*sf[j]))
		}
	}
	return nil
}

// QuadraticForm returns xᵀ·A·x.
func QuadraticForm(a mat.Symmetric, x []float64) float64 {
	n := a.SymmetricDim()
	if n == 0 {
		return 0
	}
	xv := mat.NewVecDense(n, x)
	return mat.Inner(xv, a, xv)
}

// SolveSymmetric solves A·x = b for a symmetric A.
//
// Cholesky is tried first since damped Gauss-Newton systems are normally
// positive definite; an indefinite but regular matrix falls back to a pivoted
// LU solve. ErrSingular is returned when neither succeeds.
func SolveSymmetric(a *mat.SymDense, b []float64) ([]float64, error) {
	n := a.SymmetricDim()
	if len(b) != n {
		return nil, fmt.Errorf("right-hand side has %d elements, want %d: %w", len(b), n, ErrDimensionMismatch)
	}
	if n == 0 {
		return nil, nil
	}
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("right-hand side is not finite: %w", ErrSingular)
		}
	}

	rhs := mat.NewVecDense(n, append([]float64(nil), b...))
	x := mat.NewVecDense(n, nil)

	var chol mat.Cholesky
	if chol.Factorize(a) {
		if err := chol.SolveVecTo(x, rhs); err == nil {
			return x.RawVector().Data, nil
		}
	}

	var lu mat.LU
	lu.Factorize(a)
	if cond := lu.Cond(); math.IsInf(cond, 1) || math.IsNaN(cond) || cond > conditionLimit {
		return nil, ErrSingular
	}
	if err := lu.SolveVecTo(x, false, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return x.RawVector().Data, nil
}

// InvertSymmetric returns the inverse of a.
func InvertSymmetric(a *mat.SymDense) (*mat.SymDense, error) {
	n := a.SymmetricDim()
	if n == 0 {
		return &mat.SymDense{}, nil
	}

	var chol mat.Cholesky
	if chol.Factorize(a) {
		inv := mat.NewSymDense(n, nil)
		if err := chol.InverseTo(inv); err == nil {
			return inv, nil
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return Symmetrize(&inv), nil
}

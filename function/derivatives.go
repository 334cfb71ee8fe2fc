package function

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Jacobian fills jac (len(x) rows, f.NParams() columns) with ∂f(x[j])/∂p[i].
// Analytic derivatives are used when f implements Deriver, otherwise central
// differences are taken on a clone so f itself is never perturbed.
func Jacobian(f Function, x []float64, jac *mat.Dense) {
	if d, ok := f.(Deriver); ok {
		d.FunctionDeriv1D(jac, x)
		return
	}
	numericalJacobian(f, x, jac)
}

func numericalJacobian(f Function, x []float64, jac *mat.Dense) {
	n := f.NParams()
	work := f.Clone()
	p := make([]float64, n)
	for i := range p {
		p[i] = f.Parameter(i)
	}

	fd.Jacobian(jac, func(y, params []float64) {
		for i, v := range params {
			work.SetParameter(i, v)
		}
		work.Function1D(y, x)
	}, p, &fd.JacobianSettings{Formula: fd.Central})
}

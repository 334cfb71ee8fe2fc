package function

import "gonum.org/v1/gonum/mat"

// FlatBackground is the constant A0.
type FlatBackground struct {
	Params
}

// NewFlatBackground creates a constant background.
func NewFlatBackground(a0 float64) *FlatBackground {
	return &FlatBackground{Params: NewParams([]string{"A0"}, []float64{a0})}
}

func (b *FlatBackground) Name() string    { return "FlatBackground" }
func (b *FlatBackground) ApplyTies()      { b.applyTies(b) }
func (b *FlatBackground) Clone() Function { return &FlatBackground{Params: b.clone()} }

func (b *FlatBackground) Function1D(out, x []float64) {
	for j := range x {
		out[j] = b.values[0]
	}
}

func (b *FlatBackground) FunctionDeriv1D(jac *mat.Dense, x []float64) {
	for j := range x {
		jac.Set(j, 0, 1)
	}
}

// LinearBackground is A0 + A1·x.
type LinearBackground struct {
	Params
}

// NewLinearBackground creates a linear background.
func NewLinearBackground(a0, a1 float64) *LinearBackground {
	return &LinearBackground{Params: NewParams([]string{"A0", "A1"}, []float64{a0, a1})}
}

func (b *LinearBackground) Name() string    { return "LinearBackground" }
func (b *LinearBackground) ApplyTies()      { b.applyTies(b) }
func (b *LinearBackground) Clone() Function { return &LinearBackground{Params: b.clone()} }

func (b *LinearBackground) Function1D(out, x []float64) {
	for j, xv := range x {
		out[j] = b.values[0] + b.values[1]*xv
	}
}

func (b *LinearBackground) FunctionDeriv1D(jac *mat.Dense, x []float64) {
	for j, xv := range x {
		jac.Set(j, 0, 1)
		jac.Set(j, 1, xv)
	}
}

package fit

import (
	"encoding/gob"
	"errors"
	"io"

	"github.com/n0madic/go-peakfit/function"
)

// ResultState represents the serializable state of a Result
type ResultState struct {
	Version           int         `gob:"version"`
	Model             string      `gob:"model"`
	Minimizer         string      `gob:"minimizer"`
	Parameters        []Parameter `gob:"parameters"`
	ChiSquared        float64     `gob:"chi_squared"`
	ReducedChiSquared float64     `gob:"reduced_chi_squared"`
	Iterations        int         `gob:"iterations"`
	Status            string      `gob:"status"`
	Converged         bool        `gob:"converged"`
}

// Save serializes the result to gob format
func (r *Result) Save(w io.Writer) error {
	state := ResultState{
		Version:           1,
		Model:             r.Model,
		Minimizer:         r.Minimizer,
		Parameters:        append([]Parameter(nil), r.Parameters...),
		ChiSquared:        r.ChiSquared,
		ReducedChiSquared: r.ReducedChiSquared,
		Iterations:        r.Iterations,
		Status:            r.Status,
		Converged:         r.Converged,
	}

	encoder := gob.NewEncoder(w)
	return encoder.Encode(state)
}

// LoadResult deserializes a result from gob format. When the model is a
// registered function it is rebuilt with the saved parameters and errors;
// otherwise Result.Function is nil.
func LoadResult(r io.Reader) (*Result, error) {
	decoder := gob.NewDecoder(r)

	var state ResultState
	if err := decoder.Decode(&state); err != nil {
		return nil, err
	}

	if state.Version != 1 {
		return nil, errors.New("fit: unsupported gob version")
	}

	res := &Result{
		Model:             state.Model,
		Minimizer:         state.Minimizer,
		Parameters:        state.Parameters,
		ChiSquared:        state.ChiSquared,
		ReducedChiSquared: state.ReducedChiSquared,
		Iterations:        state.Iterations,
		Status:            state.Status,
		Converged:         state.Converged,
	}

	f, err := function.New(state.Model)
	if err != nil {
		return res, nil
	}
	if f.NParams() != len(state.Parameters) {
		return nil, errors.New("fit: invalid parameter count")
	}
	for i, p := range state.Parameters {
		if f.ParameterName(i) != p.Name {
			return nil, errors.New("fit: parameter " + p.Name + " does not match model " + state.Model)
		}
		f.SetParameter(i, p.Value)
		f.SetError(i, p.Error)
	}
	res.Function = f
	return res, nil
}

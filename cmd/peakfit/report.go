package main

import (
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/n0madic/go-peakfit/fit"
	"github.com/n0madic/go-peakfit/function"
	"github.com/n0madic/go-peakfit/integrate"
)

type report struct {
	Dataset string          `yaml:"dataset,omitempty"`
	Fit     *fit.Result     `yaml:"fit,omitempty"`
	Error   string          `yaml:"error,omitempty"`
	Peak    *integralReport `yaml:"peak,omitempty"`
}

type integralReport struct {
	Centre    float64 `yaml:"centre"`
	Height    float64 `yaml:"height"`
	FWHM      float64 `yaml:"fwhm"`
	Integral  float64 `yaml:"integral"`
	Error     float64 `yaml:"error"`
	Status    string  `yaml:"status"`
	Intervals int     `yaml:"intervals"`
}

// peakReport integrates f over [lower, upper] and propagates its parameter
// errors. Non-peak functions give nil.
func peakReport(p *integrate.PeakIntegrator, f function.Function, lower, upper float64) *integralReport {
	peak, ok := f.(function.PeakFunction)
	if !ok {
		return nil
	}
	r := p.IntegrateRange(peak, lower, upper)
	rep := &integralReport{
		Centre:    peak.Centre(),
		Height:    peak.Height(),
		FWHM:      peak.FWHM(),
		Integral:  r.Result,
		Status:    r.Status.String(),
		Intervals: r.Intervals,
	}
	if e, err := p.IntegrateError(peak, lower, upper); err == nil {
		rep.Error = e
	} else {
		rep.Error = math.NaN()
	}
	return rep
}

func writeReports(w io.Writer, reports []report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return enc.Close()
}

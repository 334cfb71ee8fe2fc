package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/n0madic/go-peakfit/costfunc"
	"github.com/n0madic/go-peakfit/function"
)

const curvePoints = 400

// writePlot saves the data points and the curve of f over the data range as
// an image; the format follows the extension of path.
func writePlot(path, title string, data *costfunc.Data, f function.Function) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Add(plotter.NewGrid())

	points := make(plotter.XYs, data.Len())
	for i := range points {
		points[i].X = data.X[i]
		points[i].Y = data.Y[i]
	}
	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return fmt.Errorf("plot data: %w", err)
	}
	scatter.GlyphStyle.Radius = vg.Points(2)

	lo, hi := floats.Min(data.X), floats.Max(data.X)
	xs := make([]float64, curvePoints)
	floats.Span(xs, lo, hi)
	ys := function.Eval(f, xs)
	curve := make(plotter.XYs, curvePoints)
	for i := range curve {
		curve[i].X = xs[i]
		curve[i].Y = ys[i]
	}
	line, err := plotter.NewLine(curve)
	if err != nil {
		return fmt.Errorf("plot curve: %w", err)
	}
	line.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	line.Width = vg.Points(1.5)

	p.Add(scatter, line)
	p.Legend.Add("data", scatter)
	p.Legend.Add("fit", line)
	p.Legend.Top = true

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

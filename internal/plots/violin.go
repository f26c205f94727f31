package plots

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"scflow/internal/dataset"
)

// Violin draws one panel per feature (gene or numeric metadata column) with a
// violin and jittered points per group.
func Violin(path string, ds *dataset.Dataset, features []string, groupBy string, o Options) error {
	labels, levels, err := grouping(ds, groupBy)
	if err != nil {
		return err
	}
	colors := groupColors(levels)
	var panels []*plot.Plot
	for _, f := range features {
		vals, err := ds.FetchNumeric(f)
		if err != nil {
			return fmt.Errorf("violin %s: %w", f, err)
		}
		p := plot.New()
		p.Title.Text = f
		p.Y.Label.Text = "Expression Level"
		p.X.Label.Text = "Identity"
		rng := rand.New(rand.NewPCG(42, 42))
		for i, l := range levels {
			var g []float64
			for c, lab := range labels {
				if lab == l {
					g = append(g, vals[c])
				}
			}
			p.Add(newViolin(float64(i), g, colors[l]))
			pts := make(plotter.XYs, len(g))
			for k, v := range g {
				pts[k] = plotter.XY{X: float64(i) + (rng.Float64()-0.5)*0.4, Y: v}
			}
			s, err := plotter.NewScatter(pts)
			if err != nil {
				return err
			}
			s.GlyphStyle = draw.GlyphStyle{Color: dark, Radius: vg.Points(0.6), Shape: draw.CircleGlyph{}}
			p.Add(s)
		}
		p.NominalX(levels...)
		panels = append(panels, p)
	}
	return save(path, o, defaultCols(len(panels), o), panels)
}

// Ridge draws one panel per feature with a density ridge per group stacked
// along the y axis.
func Ridge(path string, ds *dataset.Dataset, features []string, groupBy string, o Options) error {
	labels, levels, err := grouping(ds, groupBy)
	if err != nil {
		return err
	}
	colors := groupColors(levels)
	var panels []*plot.Plot
	for _, f := range features {
		vals, err := ds.FetchNumeric(f)
		if err != nil {
			return fmt.Errorf("ridge %s: %w", f, err)
		}
		lo, hi := floats.Min(vals), floats.Max(vals)
		p := plot.New()
		p.Title.Text = f
		p.X.Label.Text = "Expression Level"
		p.Y.Label.Text = "Identity"
		for i, l := range levels {
			var g []float64
			for c, lab := range labels {
				if lab == l {
					g = append(g, vals[c])
				}
			}
			p.Add(newRidge(float64(i), g, lo, hi, colors[l]))
		}
		ticks := make([]plot.Tick, len(levels))
		for i, l := range levels {
			ticks[i] = plot.Tick{Value: float64(i) + 0.3, Label: l}
		}
		p.Y.Tick.Marker = plot.ConstantTicks(ticks)
		panels = append(panels, p)
	}
	return save(path, o, defaultCols(len(panels), o), panels)
}

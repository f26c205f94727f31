package plots

import (
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const densityPoints = 128

// bandwidth follows Silverman's rule of thumb, 0.9·min(sd, IQR/1.34)·n^-0.2,
// falling back to sd, then |mean|/10, then 1 when the spread is zero.
func bandwidth(sorted []float64) float64 {
	n := float64(len(sorted))
	sd := stat.StdDev(sorted, nil)
	iqr := stat.Quantile(0.75, stat.Empirical, sorted, nil) - stat.Quantile(0.25, stat.Empirical, sorted, nil)
	lo := math.Min(sd, iqr/1.34)
	if lo <= 0 || math.IsNaN(lo) {
		lo = sd
	}
	if lo <= 0 || math.IsNaN(lo) {
		lo = math.Abs(sorted[0]) / 10
	}
	if lo <= 0 {
		lo = 1
	}
	return 0.9 * lo * math.Pow(n, -0.2)
}

// kde evaluates a Gaussian kernel density estimate of vals on an even grid
// from lo to hi.
func kde(vals []float64, lo, hi float64) (grid, dens []float64) {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	bw := bandwidth(sorted)
	grid = make([]float64, densityPoints)
	floats.Span(grid, lo, hi)
	dens = make([]float64, densityPoints)
	norm := 1 / (float64(len(vals)) * bw * math.Sqrt(2*math.Pi))
	for i, g := range grid {
		s := 0.0
		for _, v := range sorted {
			z := (g - v) / bw
			if z < -6 || z > 6 {
				continue
			}
			s += math.Exp(-0.5 * z * z)
		}
		dens[i] = s * norm
	}
	return grid, dens
}

// violin is a mirrored density outline centered on X, trimmed to the data
// range and scaled to a fixed maximum width.
type violin struct {
	X      float64
	Width  float64 // data units
	Min    float64
	Max    float64
	grid   []float64
	dens   []float64
	Color  color.Color
	Border draw.LineStyle
}

func newViolin(x float64, vals []float64, clr color.Color) *violin {
	v := &violin{X: x, Width: 0.9, Color: clr, Min: floats.Min(vals), Max: floats.Max(vals)}
	v.Border = draw.LineStyle{Color: color.Black, Width: vg.Points(0.5)}
	if v.Max > v.Min {
		v.grid, v.dens = kde(vals, v.Min, v.Max)
	}
	return v
}

// Plot implements plot.Plotter.
func (v *violin) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	if v.grid == nil {
		y := trY(v.Min)
		c.StrokeLine2(v.Border, trX(v.X-v.Width/2), y, trX(v.X+v.Width/2), y)
		return
	}
	peak := floats.Max(v.dens)
	half := v.Width / 2
	pts := make([]vg.Point, 0, 2*len(v.grid)+1)
	for i, g := range v.grid {
		pts = append(pts, vg.Point{X: trX(v.X - half*v.dens[i]/peak), Y: trY(g)})
	}
	for i := len(v.grid) - 1; i >= 0; i-- {
		pts = append(pts, vg.Point{X: trX(v.X + half*v.dens[i]/peak), Y: trY(v.grid[i])})
	}
	c.FillPolygon(v.Color, c.ClipPolygonXY(pts))
	pts = append(pts, pts[0])
	c.StrokeLines(v.Border, c.ClipLinesXY(pts)...)
}

// DataRange implements plot.DataRanger.
func (v *violin) DataRange() (xmin, xmax, ymin, ymax float64) {
	return v.X - 0.5, v.X + 0.5, v.Min, v.Max
}

// ridge is a density curve drawn upward from baseline Y, scaled to Height.
type ridge struct {
	Y      float64
	Height float64
	Min    float64
	Max    float64
	grid   []float64
	dens   []float64
	Color  color.Color
	Border draw.LineStyle
}

func newRidge(y float64, vals []float64, lo, hi float64, clr color.Color) *ridge {
	r := &ridge{Y: y, Height: 0.9, Min: lo, Max: hi, Color: clr}
	r.Border = draw.LineStyle{Color: color.Black, Width: vg.Points(0.5)}
	if hi > lo {
		r.grid, r.dens = kde(vals, lo, hi)
	}
	return r
}

// Plot implements plot.Plotter.
func (r *ridge) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	if r.grid == nil {
		return
	}
	peak := floats.Max(r.dens)
	if peak == 0 {
		return
	}
	pts := make([]vg.Point, 0, len(r.grid)+2)
	pts = append(pts, vg.Point{X: trX(r.grid[0]), Y: trY(r.Y)})
	for i, g := range r.grid {
		pts = append(pts, vg.Point{X: trX(g), Y: trY(r.Y + r.Height*r.dens[i]/peak)})
	}
	pts = append(pts, vg.Point{X: trX(r.grid[len(r.grid)-1]), Y: trY(r.Y)})
	c.FillPolygon(r.Color, c.ClipPolygonXY(pts))
	c.StrokeLines(r.Border, c.ClipLinesXY(pts[1:len(pts)-1])...)
}

// DataRange implements plot.DataRanger.
func (r *ridge) DataRange() (xmin, xmax, ymin, ymax float64) {
	return r.Min, r.Max, r.Y, r.Y + 1
}

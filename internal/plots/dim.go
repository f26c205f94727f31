package plots

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"scflow/internal/dataset"
)

func pointStyle(c color.Color) draw.GlyphStyle {
	return draw.GlyphStyle{Color: c, Radius: vg.Points(1.2), Shape: draw.CircleGlyph{}}
}

// scatterGroups adds one scatter per group to p, with a legend entry each.
func scatterGroups(p *plot.Plot, x, y []float64, labels, levels []string) error {
	colors := groupColors(levels)
	for _, l := range levels {
		var pts plotter.XYs
		for c, lab := range labels {
			if lab == l {
				pts = append(pts, plotter.XY{X: x[c], Y: y[c]})
			}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		s.GlyphStyle = pointStyle(colors[l])
		p.Add(s)
		p.Legend.Add(l, s)
	}
	p.Legend.Top = true
	return nil
}

func embeddingCols(ds *dataset.Dataset, reduction string, dims [2]int) ([]float64, []float64, *dataset.Reduction, error) {
	red, err := ds.Reduction(reduction)
	if err != nil {
		return nil, nil, nil, err
	}
	if dims[0] >= red.Dims() || dims[1] >= red.Dims() {
		return nil, nil, nil, fmt.Errorf("plots: %q has %d dimensions", reduction, red.Dims())
	}
	return mat.Col(nil, dims[0], red.Embeddings), mat.Col(nil, dims[1], red.Embeddings), red, nil
}

// Dim draws the first two dimensions of a reduction colored by group,
// optionally labelling each group at its median position.
func Dim(path string, ds *dataset.Dataset, reduction, groupBy string, label bool, o Options) error {
	x, y, red, err := embeddingCols(ds, reduction, [2]int{0, 1})
	if err != nil {
		return err
	}
	labels, levels, err := grouping(ds, groupBy)
	if err != nil {
		return err
	}
	p := plot.New()
	p.X.Label.Text = red.Key + "1"
	p.Y.Label.Text = red.Key + "2"
	if err := scatterGroups(p, x, y, labels, levels); err != nil {
		return err
	}
	if label {
		var (
			xys   plotter.XYs
			names []string
		)
		for _, l := range levels {
			var gx, gy []float64
			for c, lab := range labels {
				if lab == l {
					gx = append(gx, x[c])
					gy = append(gy, y[c])
				}
			}
			sort.Float64s(gx)
			sort.Float64s(gy)
			xys = append(xys, plotter.XY{
				X: stat.Quantile(0.5, stat.Empirical, gx, nil),
				Y: stat.Quantile(0.5, stat.Empirical, gy, nil),
			})
			names = append(names, l)
		}
		lab, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: names})
		if err != nil {
			return err
		}
		p.Add(lab)
	}
	return save(path, o, 1, []*plot.Plot{p})
}

// Feature draws one panel per gene over the first two dimensions of a
// reduction, colored by expression in the data slot. Higher values are drawn
// on top.
func Feature(path string, ds *dataset.Dataset, reduction string, genes []string, o Options) error {
	x, y, red, err := embeddingCols(ds, reduction, [2]int{0, 1})
	if err != nil {
		return err
	}
	var panels []*plot.Plot
	for _, g := range genes {
		v, err := ds.FetchNumeric(g)
		if err != nil {
			return fmt.Errorf("feature plot %s: %w", g, err)
		}
		order := make([]int, len(v))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return v[order[a]] < v[order[b]] })
		pts := make(plotter.XYs, len(order))
		vals := make([]float64, len(order))
		for k, c := range order {
			pts[k] = plotter.XY{X: x[c], Y: y[c]}
			vals[k] = v[c]
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		cm := moreland.SmoothBlueRed()
		lo, hi := vals[0], vals[len(vals)-1]
		if hi <= lo {
			hi = lo + 1
		}
		cm.SetMin(lo)
		cm.SetMax(hi)
		s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			if vals[i] <= 0 {
				return pointStyle(light)
			}
			c, err := cm.At(math.Min(hi, math.Max(lo, vals[i])))
			if err != nil {
				return pointStyle(light)
			}
			return pointStyle(c)
		}
		p := plot.New()
		p.Title.Text = g
		p.X.Label.Text = red.Key + "1"
		p.Y.Label.Text = red.Key + "2"
		p.Add(s)
		panels = append(panels, p)
	}
	return save(path, o, defaultCols(len(panels), o), panels)
}

// FeatureScatter plots two per-cell features against each other, colored by
// group, with the Pearson correlation in the title.
func FeatureScatter(path string, ds *dataset.Dataset, xName, yName, groupBy string, o Options) error {
	x, err := ds.FetchNumeric(xName)
	if err != nil {
		return err
	}
	y, err := ds.FetchNumeric(yName)
	if err != nil {
		return err
	}
	labels, levels, err := grouping(ds, groupBy)
	if err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%.2f", stat.Correlation(x, y, nil))
	p.X.Label.Text = xName
	p.Y.Label.Text = yName
	if err := scatterGroups(p, x, y, labels, levels); err != nil {
		return err
	}
	return save(path, o, 1, []*plot.Plot{p})
}

// FeatureScatters draws several FeatureScatter panels side by side.
func FeatureScatters(path string, ds *dataset.Dataset, pairs [][2]string, groupBy string, o Options) error {
	labels, levels, err := grouping(ds, groupBy)
	if err != nil {
		return err
	}
	var panels []*plot.Plot
	for _, pr := range pairs {
		x, err := ds.FetchNumeric(pr[0])
		if err != nil {
			return err
		}
		y, err := ds.FetchNumeric(pr[1])
		if err != nil {
			return err
		}
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%.2f", stat.Correlation(x, y, nil))
		p.X.Label.Text = pr[0]
		p.Y.Label.Text = pr[1]
		if err := scatterGroups(p, x, y, labels, levels); err != nil {
			return err
		}
		panels = append(panels, p)
	}
	return save(path, o, len(panels), panels)
}

// VariableFeatures plots per-gene variability against mean expression with
// variable genes highlighted and the top labelTop genes labelled.
func VariableFeatures(path string, ds *dataset.Dataset, labelTop int, o Options) error {
	fs := ds.Features
	if fs == nil {
		return fmt.Errorf("plots: no variable feature statistics; find variable features first")
	}
	yv, ylab := fs.VarianceStandardized, "Standardized Variance"
	if yv == nil {
		yv, ylab = fs.DispersionScaled, "Dispersion"
	}
	var norm, vari plotter.XYs
	pos := map[string]plotter.XY{}
	for g, name := range ds.Genes {
		if fs.Mean[g] <= 0 {
			continue
		}
		pt := plotter.XY{X: math.Log10(fs.Mean[g]), Y: yv[g]}
		if math.IsNaN(pt.Y) {
			continue
		}
		pos[name] = pt
		if fs.IsVariable[g] {
			vari = append(vari, pt)
		} else {
			norm = append(norm, pt)
		}
	}
	p := plot.New()
	p.X.Label.Text = "log10(Average Expression)"
	p.Y.Label.Text = ylab
	for _, set := range []struct {
		pts   plotter.XYs
		name  string
		color draw.GlyphStyle
	}{
		{norm, fmt.Sprintf("Non-variable count: %d", len(norm)), pointStyle(dark)},
		{vari, fmt.Sprintf("Variable count: %d", len(vari)), pointStyle(red)},
	} {
		if len(set.pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(set.pts)
		if err != nil {
			return err
		}
		s.GlyphStyle = set.color
		p.Add(s)
		p.Legend.Add(set.name, s)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	var (
		xys   plotter.XYs
		names []string
	)
	for _, g := range ds.VariableFeatures() {
		if len(names) == labelTop {
			break
		}
		if pt, ok := pos[g]; ok {
			xys = append(xys, pt)
			names = append(names, g)
		}
	}
	if len(names) > 0 {
		lab, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: names})
		if err != nil {
			return err
		}
		p.Add(lab)
	}
	return save(path, o, 1, []*plot.Plot{p})
}

// Elbow plots the standard deviation of the first n components.
func Elbow(path string, red *dataset.Reduction, n int, o Options) error {
	n = min(n, len(red.Stdev))
	if n == 0 {
		return fmt.Errorf("plots: reduction has no standard deviations")
	}
	pts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		pts[i] = plotter.XY{X: float64(i + 1), Y: red.Stdev[i]}
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.GlyphStyle = pointStyle(dark)
	p := plot.New()
	p.X.Label.Text = red.Key
	p.Y.Label.Text = "Standard Deviation"
	p.Add(s)
	return save(path, o, 1, []*plot.Plot{p})
}

// DimLoadings shows, for each listed component (0-based), the n genes with
// the largest absolute loadings.
func DimLoadings(path string, red *dataset.Reduction, dims []int, n int, o Options) error {
	if red.Loadings == nil {
		return fmt.Errorf("plots: reduction has no loadings")
	}
	genes, d := red.Loadings.Dims()
	var panels []*plot.Plot
	for _, dim := range dims {
		if dim < 0 || dim >= d {
			return fmt.Errorf("plots: dimension %d out of range [1,%d]", dim+1, d)
		}
		order := make([]int, genes)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return math.Abs(red.Loadings.At(order[a], dim)) > math.Abs(red.Loadings.At(order[b], dim))
		})
		top := order[:min(n, genes)]
		// smallest loading at the bottom
		sort.SliceStable(top, func(a, b int) bool { return red.Loadings.At(top[a], dim) < red.Loadings.At(top[b], dim) })
		pts := make(plotter.XYs, len(top))
		names := make([]string, len(top))
		for k, g := range top {
			pts[k] = plotter.XY{X: red.Loadings.At(g, dim), Y: float64(k)}
			names[k] = red.LoadingGenes[g]
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		s.GlyphStyle = pointStyle(blue)
		p := plot.New()
		p.X.Label.Text = fmt.Sprintf("%s%d", red.Key, dim+1)
		p.Add(s)
		p.NominalY(names...)
		panels = append(panels, p)
	}
	return save(path, o, len(panels), panels)
}

package plots

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"

	"scflow/internal/dataset"
)

// HeatmapLimit clips scaled values shown in heatmaps.
const HeatmapLimit = 2.5

// cellGrid is a genes × cells block; row 0 is drawn at the top.
type cellGrid struct {
	z [][]float64
}

func (g cellGrid) Dims() (c, r int)   { return len(g.z[0]), len(g.z) }
func (g cellGrid) Z(c, r int) float64 { return g.z[len(g.z)-1-r][c] }
func (g cellGrid) X(c int) float64    { return float64(c) }
func (g cellGrid) Y(r int) float64    { return float64(r) }

func heatPlot(z [][]float64, genes []string) *plot.Plot {
	cm := moreland.SmoothBlueRed()
	hm := plotter.NewHeatMap(cellGrid{z: z}, cm.Palette(64))
	hm.Min, hm.Max = -HeatmapLimit, HeatmapLimit
	p := plot.New()
	p.Add(hm)
	rev := make([]string, len(genes))
	for i, g := range genes {
		rev[len(genes)-1-i] = g
	}
	p.NominalY(rev...)
	return p
}

func clipped(v float64) float64 {
	return math.Max(-HeatmapLimit, math.Min(HeatmapLimit, v))
}

// Heatmap draws scale.data for genes over all cells, ordered by group. Genes
// not in scale.data are skipped.
func Heatmap(path string, ds *dataset.Dataset, genes []string, groupBy string, o Options) ([]string, error) {
	if ds.Scaled == nil {
		return nil, fmt.Errorf("plots: scale.data slot is empty")
	}
	labels, levels, err := grouping(ds, groupBy)
	if err != nil {
		return nil, err
	}
	var order []int
	var ticks []plot.Tick
	for _, l := range levels {
		start := len(order)
		for c, lab := range labels {
			if lab == l {
				order = append(order, c)
			}
		}
		ticks = append(ticks, plot.Tick{Value: float64(start+len(order)) / 2, Label: l})
	}
	var (
		z       [][]float64
		shown   []string
		skipped []string
	)
	seen := map[string]bool{}
	for _, g := range genes {
		if seen[g] {
			continue
		}
		seen[g] = true
		r, ok := ds.Scaled.Row(g)
		if !ok {
			skipped = append(skipped, g)
			continue
		}
		src := ds.Scaled.Values.RawRowView(r)
		row := make([]float64, len(order))
		for k, c := range order {
			row[k] = clipped(src[c])
		}
		z = append(z, row)
		shown = append(shown, g)
	}
	if len(z) == 0 {
		return skipped, fmt.Errorf("%w: none of %d heatmap genes are in scale.data", dataset.ErrUnknownGene, len(genes))
	}
	p := heatPlot(z, shown)
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	if o.Height <= 0 {
		o.Height = math.Max(4, float64(len(shown))*0.12)
	}
	if o.Width <= 0 {
		o.Width = 8
	}
	return skipped, save(path, o, 1, []*plot.Plot{p})
}

// DimHeatmap draws, for each listed component (0-based), scale.data of the
// n/2 most positive and n/2 most negative loading genes over the cells cells
// at both extremes of the component, ordered by score.
func DimHeatmap(path string, ds *dataset.Dataset, reduction string, dims []int, cells, n int, o Options) error {
	red, err := ds.Reduction(reduction)
	if err != nil {
		return err
	}
	if ds.Scaled == nil || red.Loadings == nil {
		return fmt.Errorf("plots: dim heatmap needs scale.data and loadings")
	}
	var panels []*plot.Plot
	for _, dim := range dims {
		if dim < 0 || dim >= red.Dims() {
			return fmt.Errorf("plots: dimension %d out of range [1,%d]", dim+1, red.Dims())
		}
		ncell := ds.NumCells()
		byScore := make([]int, ncell)
		for i := range byScore {
			byScore[i] = i
		}
		sort.SliceStable(byScore, func(a, b int) bool {
			return red.Embeddings.At(byScore[a], dim) < red.Embeddings.At(byScore[b], dim)
		})
		if half := cells / 2; cells > 0 && 2*half < ncell {
			byScore = append(byScore[:half:half], byScore[ncell-half:]...)
		}

		ng, _ := red.Loadings.Dims()
		byLoad := make([]int, ng)
		for i := range byLoad {
			byLoad[i] = i
		}
		sort.SliceStable(byLoad, func(a, b int) bool {
			return red.Loadings.At(byLoad[a], dim) > red.Loadings.At(byLoad[b], dim)
		})
		half := min(n/2, ng/2)
		pick := append(append([]int(nil), byLoad[:half]...), byLoad[ng-half:]...)

		var (
			z     [][]float64
			genes []string
		)
		for _, g := range pick {
			name := red.LoadingGenes[g]
			r, ok := ds.Scaled.Row(name)
			if !ok {
				continue
			}
			src := ds.Scaled.Values.RawRowView(r)
			row := make([]float64, len(byScore))
			for k, c := range byScore {
				row[k] = clipped(src[c])
			}
			z = append(z, row)
			genes = append(genes, name)
		}
		if len(z) == 0 {
			return fmt.Errorf("plots: no genes to show for %s%d", red.Key, dim+1)
		}
		p := heatPlot(z, genes)
		p.Title.Text = fmt.Sprintf("%s%d", red.Key, dim+1)
		p.X.Tick.Marker = plot.ConstantTicks(nil)
		panels = append(panels, p)
	}
	return save(path, o, defaultCols(len(panels), o), panels)
}

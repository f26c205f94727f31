// Package hvg selects highly variable genes.
package hvg

import (
	"context"
	"fmt"
	"math"
	"sort"

	"scflow/internal/dataset"
	"scflow/internal/runutil"
)

// Selection methods.
const (
	VST         = "vst"
	MeanVarPlot = "mean.var.plot"
	Dispersion  = "dispersion"
)

// Options controls Find.
type Options struct {
	Method    string
	NFeatures int     // vst, dispersion
	Span      float64 // vst loess span
	Bins      int     // mean.var.plot

	MeanCutoff       [2]float64 // mean.var.plot: exclusive bounds on mean
	DispersionCutoff float64    // mean.var.plot: scaled dispersion must exceed this

	Threads int
}

func (o *Options) defaults() {
	if o.Method == "" {
		o.Method = VST
	}
	if o.NFeatures <= 0 {
		o.NFeatures = 2000
	}
	if o.Span <= 0 {
		o.Span = 0.3
	}
	if o.Bins <= 0 {
		o.Bins = 20
	}
	if o.MeanCutoff == [2]float64{} {
		o.MeanCutoff = [2]float64{0.1, 8}
	}
	if o.DispersionCutoff == 0 {
		o.DispersionCutoff = 1
	}
}

// Find computes per-gene statistics, stores them in ds.Features and returns
// the ranked variable genes.
func Find(ctx context.Context, ds *dataset.Dataset, o Options) ([]string, error) {
	o.defaults()
	var (
		fs  *dataset.FeatureStats
		err error
	)
	switch o.Method {
	case VST:
		fs, err = vst(ctx, ds, o)
	case MeanVarPlot, Dispersion:
		fs, err = mvp(ctx, ds, o)
	default:
		return nil, fmt.Errorf("hvg: unknown method %q (want %s, %s or %s)", o.Method, VST, MeanVarPlot, Dispersion)
	}
	if err != nil {
		return nil, err
	}
	ds.Features = fs
	ds.Log("FindVariableFeatures", map[string]any{"selection.method": o.Method, "nfeatures": o.NFeatures})
	return fs.Variable, nil
}

// Top returns the first n ranked variable genes.
func Top(ds *dataset.Dataset, n int) []string {
	v := ds.VariableFeatures()
	if n > len(v) {
		n = len(v)
	}
	return append([]string(nil), v[:n]...)
}

func vst(ctx context.Context, ds *dataset.Dataset, o Options) (*dataset.FeatureStats, error) {
	n := ds.NumCells()
	if n < 2 {
		return nil, fmt.Errorf("hvg: vst needs at least 2 cells, have %d", n)
	}
	byGene := ds.Counts.Transpose()
	G := ds.NumGenes()
	mean := make([]float64, G)
	variance := make([]float64, G)
	for g := 0; g < G; g++ {
		_, val := byGene.Col(g)
		s, ss := 0.0, 0.0
		for _, v := range val {
			s += v
			ss += v * v
		}
		m := s / float64(n)
		mean[g] = m
		variance[g] = (ss - float64(n)*m*m) / float64(n-1)
		if variance[g] < 0 {
			variance[g] = 0
		}
	}

	var fitIdx []int
	var lx, ly []float64
	for g := 0; g < G; g++ {
		if variance[g] > 0 {
			fitIdx = append(fitIdx, g)
			lx = append(lx, math.Log10(mean[g]))
			ly = append(ly, math.Log10(variance[g]))
		}
	}
	if len(fitIdx) == 0 {
		return nil, fmt.Errorf("hvg: every gene has zero variance")
	}
	fitted := Loess(lx, ly, o.Span)
	expected := make([]float64, G)
	for k, g := range fitIdx {
		expected[g] = math.Pow(10, fitted[k])
	}

	std := make([]float64, G)
	vmax := math.Sqrt(float64(n))
	err := runutil.ParallelRange(ctx, o.Threads, G, func(_ context.Context, lo, hi int) error {
		for g := lo; g < hi; g++ {
			if expected[g] <= 0 {
				continue
			}
			sd := math.Sqrt(expected[g])
			_, val := byGene.Col(g)
			sum := 0.0
			for _, v := range val {
				z := (v - mean[g]) / sd
				if z > vmax {
					z = vmax
				}
				sum += z * z
			}
			zeros := float64(n - len(val))
			z0 := mean[g] / sd
			sum += zeros * z0 * z0
			std[g] = sum / float64(n-1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fs := &dataset.FeatureStats{
		Method:               VST,
		Mean:                 mean,
		Variance:             variance,
		VarianceExpected:     expected,
		VarianceStandardized: std,
	}
	rank := rankDesc(std, nil)
	fs.IsVariable, fs.Variable = pick(ds.Genes, rank, o.NFeatures)
	return fs, nil
}

func mvp(ctx context.Context, ds *dataset.Dataset, o Options) (*dataset.FeatureStats, error) {
	if ds.Data == nil {
		return nil, fmt.Errorf("hvg: %s needs normalized data; normalize first", o.Method)
	}
	n := ds.NumCells()
	if n < 2 {
		return nil, fmt.Errorf("hvg: %s needs at least 2 cells, have %d", o.Method, n)
	}
	byGene := ds.Data.Transpose()
	G := ds.NumGenes()
	mean := make([]float64, G)
	disp := make([]float64, G)
	err := runutil.ParallelRange(ctx, o.Threads, G, func(_ context.Context, lo, hi int) error {
		for g := lo; g < hi; g++ {
			_, val := byGene.Col(g)
			s, ss := 0.0, 0.0
			for _, v := range val {
				e := math.Expm1(v)
				s += e
				ss += e * e
			}
			m := s / float64(n)
			vr := (ss - float64(n)*m*m) / float64(n-1)
			mean[g] = math.Log1p(m)
			if m > 0 && vr > 0 {
				disp[g] = math.Log(vr / m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	scaled := binScale(mean, disp, o.Bins)

	fs := &dataset.FeatureStats{Method: o.Method, Mean: mean, Dispersion: disp, DispersionScaled: scaled}
	if o.Method == Dispersion {
		fs.IsVariable, fs.Variable = pick(ds.Genes, rankDesc(disp, nil), o.NFeatures)
		return fs, nil
	}
	keep := func(g int) bool {
		return mean[g] > o.MeanCutoff[0] && mean[g] < o.MeanCutoff[1] && scaled[g] > o.DispersionCutoff
	}
	rank := rankDesc(scaled, keep)
	fs.IsVariable, fs.Variable = pick(ds.Genes, rank, len(rank))
	return fs, nil
}

// binScale z-scores v within equal-width bins of x. Bins with fewer than two
// genes or zero spread give 0.
func binScale(x, v []float64, bins int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	lo, hi := x[0], x[0]
	for _, a := range x {
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	width := (hi - lo) / float64(bins)
	bin := make([]int, len(x))
	members := make([][]int, bins)
	for i, a := range x {
		b := 0
		if width > 0 {
			b = int((a - lo) / width)
			if b >= bins {
				b = bins - 1
			}
		}
		bin[i] = b
		members[b] = append(members[b], i)
	}
	for _, idx := range members {
		if len(idx) < 2 {
			continue
		}
		m := 0.0
		for _, i := range idx {
			m += v[i]
		}
		m /= float64(len(idx))
		ss := 0.0
		for _, i := range idx {
			ss += (v[i] - m) * (v[i] - m)
		}
		sd := math.Sqrt(ss / float64(len(idx)-1))
		if sd == 0 {
			continue
		}
		for _, i := range idx {
			out[i] = (v[i] - m) / sd
		}
	}
	return out
}

// rankDesc orders indices by descending score, ties by index. When keep is
// non-nil only indices it accepts are returned.
func rankDesc(score []float64, keep func(int) bool) []int {
	var idx []int
	for i := range score {
		if keep == nil || keep(i) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] > score[idx[b]] })
	return idx
}

func pick(genes []string, rank []int, n int) ([]bool, []string) {
	if n > len(rank) {
		n = len(rank)
	}
	flags := make([]bool, len(genes))
	names := make([]string, n)
	for i, g := range rank[:n] {
		flags[g] = true
		names[i] = genes[g]
	}
	return flags, names
}

// Package markers finds genes differentially expressed between groups of
// cells.
package markers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"scflow/internal/dataset"
	"scflow/internal/runutil"
)

// Tests.
const (
	Wilcox = "wilcox"
	T      = "t"
	LR     = "LR"
	ROC    = "roc"
)

var (
	ErrEmptyGroup = errors.New("markers: cell group is empty")
	ErrSmallGroup = errors.New("markers: cell group has fewer than 3 cells")
)

// Options controls Find and FindAll.
type Options struct {
	Test           string
	GroupBy        string // metadata column; "" uses identities
	Features       []string
	MinPct         float64
	MinDiffPct     float64
	LogFCThreshold float64
	OnlyPos        bool
	Pseudocount    float64
	ReturnThresh   float64 // FindAll only
	Threads        int
	Logger         *zap.Logger
}

// DefaultOptions mirrors the usual marker search settings.
func DefaultOptions() Options {
	return Options{
		Test:           Wilcox,
		MinPct:         0.1,
		MinDiffPct:     math.Inf(-1),
		LogFCThreshold: 0.25,
		Pseudocount:    1,
		ReturnThresh:   0.01,
	}
}

// Marker is one tested gene. For the roc test PVal and PValAdj are NaN.
type Marker struct {
	Cluster   string
	Gene      string
	PVal      float64
	AvgLog2FC float64
	Pct1      float64
	Pct2      float64
	PValAdj   float64
	AUC       float64 // roc only
	Power     float64 // roc only
	AvgDiff   float64 // roc only
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

// Find compares cells whose group is in ident1 against those in ident2, or
// against every other cell when ident2 is empty.
func Find(ctx context.Context, ds *dataset.Dataset, ident1, ident2 []string, o Options) ([]Marker, error) {
	if o.Test == "" {
		o.Test = Wilcox
	}
	switch o.Test {
	case Wilcox, T, LR, ROC:
	default:
		return nil, fmt.Errorf("markers: unknown test %q (want %s, %s, %s or %s)", o.Test, Wilcox, T, LR, ROC)
	}
	data, err := ds.Matrix(dataset.SlotData)
	if err != nil {
		return nil, fmt.Errorf("markers: %w", err)
	}
	labels, err := ds.Groups(o.GroupBy)
	if err != nil {
		return nil, fmt.Errorf("markers: %w", err)
	}

	group := make([]int8, ds.NumCells())
	in1 := set(ident1)
	in2 := set(ident2)
	var n1, n2 int
	for c, l := range labels {
		switch {
		case in1[l]:
			group[c] = 1
			n1++
		case len(ident2) == 0 || in2[l]:
			group[c] = 2
			n2++
		}
	}
	if n1 == 0 {
		return nil, fmt.Errorf("%w: group 1 %v", ErrEmptyGroup, ident1)
	}
	if n2 == 0 {
		return nil, fmt.Errorf("%w: group 2 %v", ErrEmptyGroup, ident2)
	}
	if n1 < 3 {
		return nil, fmt.Errorf("%w: group 1 %v has %d", ErrSmallGroup, ident1, n1)
	}
	if n2 < 3 {
		return nil, fmt.Errorf("%w: group 2 has %d", ErrSmallGroup, n2)
	}

	rows := make([]int, 0, ds.NumGenes())
	if len(o.Features) == 0 {
		for g := range ds.Genes {
			rows = append(rows, g)
		}
	} else {
		var missing []string
		rows, missing = ds.Resolve(o.Features)
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: none of %v", dataset.ErrUnknownGene, missing)
		}
	}

	byGene := data.Transpose()
	results := make([]*Marker, len(rows))
	err = runutil.ParallelRange(ctx, o.Threads, len(rows), func(ctx context.Context, lo, hi int) error {
		x := make([]float64, 0, n1+n2)
		y := make([]bool, 0, n1+n2)
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			cells, vals := byGene.Col(rows[i])
			m := testGene(cells, vals, group, n1, n2, o, x, y)
			if m != nil {
				m.Gene = ds.Genes[rows[i]]
			}
			results[i] = m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Marker, 0, len(rows))
	total := float64(ds.NumGenes())
	for _, m := range results {
		if m == nil {
			continue
		}
		if o.OnlyPos && m.AvgLog2FC <= 0 {
			continue
		}
		if o.Test == ROC {
			m.PVal, m.PValAdj = math.NaN(), math.NaN()
		} else {
			m.PValAdj = math.Min(1, m.PVal*total)
		}
		out = append(out, *m)
	}
	sortMarkers(out, o.Test)
	return out, nil
}

// testGene applies the pct and fold-change filters and then the test. It
// returns nil for genes that are filtered out.
func testGene(cells []int, vals []float64, group []int8, n1, n2 int, o Options, x []float64, y []bool) *Marker {
	var (
		nz1, nz2     int
		sum1, sum2   float64 // data
		sq1, sq2     float64
		lin1, lin2   float64 // expm1(data)
		nonzero      []obs
		zero1, zero2 = n1, n2
	)
	for k, c := range cells {
		v := vals[k]
		switch group[c] {
		case 1:
			nz1++
			zero1--
			sum1 += v
			sq1 += v * v
			lin1 += math.Expm1(v)
		case 2:
			nz2++
			zero2--
			sum2 += v
			sq2 += v * v
			lin2 += math.Expm1(v)
		default:
			continue
		}
		nonzero = append(nonzero, obs{v, group[c]})
	}
	pct1 := round3(float64(nz1) / float64(n1))
	pct2 := round3(float64(nz2) / float64(n2))
	if math.Max(pct1, pct2) < o.MinPct {
		return nil
	}
	if math.Abs(pct1-pct2) < o.MinDiffPct {
		return nil
	}
	fc := math.Log2(lin1/float64(n1)+o.Pseudocount) - math.Log2(lin2/float64(n2)+o.Pseudocount)
	if o.OnlyPos {
		if fc < o.LogFCThreshold {
			return nil
		}
	} else if math.Abs(fc) < o.LogFCThreshold {
		return nil
	}

	m := &Marker{AvgLog2FC: fc, Pct1: pct1, Pct2: pct2}
	switch o.Test {
	case Wilcox, ROC:
		r1, ties := rankSum(nonzero, zero1, zero2)
		p, u := wilcoxP(r1, ties, n1, n2)
		m.PVal = p
		if o.Test == ROC {
			m.AUC = round3(u / (float64(n1) * float64(n2)))
			m.Power = round3(2 * math.Abs(m.AUC-0.5))
			m.AvgDiff = sum1/float64(n1) - sum2/float64(n2)
		}
	case T:
		m1, m2 := sum1/float64(n1), sum2/float64(n2)
		v1 := (sq1 - float64(n1)*m1*m1) / float64(n1-1)
		v2 := (sq2 - float64(n2)*m2*m2) / float64(n2-1)
		m.PVal = welchP(m1, math.Max(0, v1), n1, m2, math.Max(0, v2), n2)
	case LR:
		x, y = x[:0], y[:0]
		for i := 0; i < zero1; i++ {
			x, y = append(x, 0), append(y, true)
		}
		for i := 0; i < zero2; i++ {
			x, y = append(x, 0), append(y, false)
		}
		for _, ob := range nonzero {
			x, y = append(x, ob.v), append(y, ob.g == 1)
		}
		m.PVal = lrP(x, y)
	}
	return m
}

func sortMarkers(ms []Marker, test string) {
	sort.SliceStable(ms, func(a, b int) bool {
		if test == ROC {
			return ms[a].Power > ms[b].Power
		}
		if ms[a].PVal != ms[b].PVal {
			return ms[a].PVal < ms[b].PVal
		}
		return ms[a].AvgLog2FC > ms[b].AvgLog2FC
	})
}

func set(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// FindAll compares every identity level against all other cells. Levels with
// too few cells are skipped with a warning. Results are concatenated in level
// order and filtered by ReturnThresh on p_val, or on AUC for the roc test.
func FindAll(ctx context.Context, ds *dataset.Dataset, o Options) ([]Marker, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	labels, err := ds.Groups(o.GroupBy)
	if err != nil {
		return nil, fmt.Errorf("markers: %w", err)
	}
	levels := dataset.Levels(labels)
	if len(levels) < 2 {
		return nil, fmt.Errorf("markers: need at least two groups, found %d", len(levels))
	}
	thresh := o.ReturnThresh
	if o.Test == ROC && thresh == 0.01 {
		thresh = 0.7
	}

	per := make([][]Marker, len(levels))
	inner := o
	inner.Threads = 1
	err = runutil.ParallelRange(ctx, o.Threads, len(levels), func(ctx context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			ms, err := Find(ctx, ds, []string{levels[i]}, nil, inner)
			if errors.Is(err, ErrSmallGroup) || errors.Is(err, ErrEmptyGroup) {
				log.Warn("skipping identity", zap.String("ident", levels[i]), zap.Error(err))
				continue
			}
			if err != nil {
				return fmt.Errorf("identity %s: %w", levels[i], err)
			}
			kept := ms[:0]
			for _, m := range ms {
				if o.Test == ROC {
					if m.AUC > thresh || m.AUC < 1-thresh {
						kept = append(kept, m)
					}
				} else if thresh <= 0 || m.PVal < thresh {
					kept = append(kept, m)
				}
			}
			for k := range kept {
				kept[k].Cluster = levels[i]
			}
			per[i] = kept
			log.Debug("markers found", zap.String("ident", levels[i]), zap.Int("genes", len(kept)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var out []Marker
	for _, ms := range per {
		out = append(out, ms...)
	}
	return out, nil
}

// TopN keeps, per cluster, the n markers with the largest avg_log2FC. Cluster
// order follows first appearance.
func TopN(ms []Marker, n int) []Marker {
	var order []string
	by := map[string][]Marker{}
	for _, m := range ms {
		if _, ok := by[m.Cluster]; !ok {
			order = append(order, m.Cluster)
		}
		by[m.Cluster] = append(by[m.Cluster], m)
	}
	var out []Marker
	for _, c := range order {
		group := by[c]
		sort.SliceStable(group, func(a, b int) bool { return group[a].AvgLog2FC > group[b].AvgLog2FC })
		if len(group) > n {
			group = group[:n]
		}
		out = append(out, group...)
	}
	return out
}

// Genes returns the distinct genes of ms in order.
func Genes(ms []Marker) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range ms {
		if !seen[m.Gene] {
			seen[m.Gene] = true
			out = append(out, m.Gene)
		}
	}
	return out
}

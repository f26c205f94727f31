// Package umap computes a two-dimensional UMAP embedding from a reduction.
package umap

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"scflow/internal/dataset"
	"scflow/internal/neighbors"
)

// Initializations.
const (
	InitInput  = "input" // first two input dimensions rescaled to [0,10]
	InitRandom = "random"
)

// Options controls Run.
type Options struct {
	Reduction          string // default "pca"
	Dims               int    // default 10
	Name               string // default "umap"
	Key                string // default "UMAP_"
	NNeighbors         int    // default 30
	MinDist            float64
	Spread             float64
	Metric             string
	Epochs             int // 0 picks 500 for up to 10000 cells, else 200
	LearningRate       float64
	NegativeSampleRate int
	Init               string
	Seed               uint64 // used as given; the CLI default is 42
	Threads            int // neighbor search only; the layout is sequential
}

func (o *Options) defaults(n int) {
	if o.Reduction == "" {
		o.Reduction = "pca"
	}
	if o.Dims == 0 {
		o.Dims = 10
	}
	if o.Name == "" {
		o.Name = "umap"
	}
	if o.Key == "" {
		o.Key = "UMAP_"
	}
	if o.NNeighbors == 0 {
		o.NNeighbors = 30
	}
	if o.MinDist == 0 {
		o.MinDist = 0.3
	}
	if o.Spread == 0 {
		o.Spread = 1
	}
	if o.Metric == "" {
		o.Metric = neighbors.Cosine
	}
	if o.Epochs == 0 {
		o.Epochs = 500
		if n > 10000 {
			o.Epochs = 200
		}
	}
	if o.LearningRate == 0 {
		o.LearningRate = 1
	}
	if o.NegativeSampleRate == 0 {
		o.NegativeSampleRate = 5
	}
	if o.Init == "" {
		o.Init = InitInput
	}
}

// Run embeds the leading Dims of a reduction and stores the result as a new
// reduction.
func Run(ctx context.Context, ds *dataset.Dataset, o Options) error {
	o.defaults(ds.NumCells())
	if o.MinDist > o.Spread {
		return fmt.Errorf("umap: min.dist %g must not exceed spread %g", o.MinDist, o.Spread)
	}
	x, err := neighbors.Embedding(ds, o.Reduction, o.Dims)
	if err != nil {
		return fmt.Errorf("umap: %w", err)
	}
	emb, err := Embed(ctx, x, o)
	if err != nil {
		return err
	}
	if err := ds.AddReduction(o.Name, &dataset.Reduction{Key: o.Key, Embeddings: emb}); err != nil {
		return err
	}
	ds.Log("RunUMAP", map[string]any{
		"reduction": o.Reduction, "dims": o.Dims, "n.neighbors": o.NNeighbors, "min.dist": o.MinDist,
		"spread": o.Spread, "metric": o.Metric, "n.epochs": o.Epochs, "seed.use": o.Seed,
	})
	return nil
}

// Embed lays out the rows of x in two dimensions. Zero option fields take
// their defaults.
func Embed(ctx context.Context, x *mat.Dense, o Options) (*mat.Dense, error) {
	n, d := x.Dims()
	o.defaults(n)
	if d < 2 && o.Init == InitInput {
		return nil, fmt.Errorf("umap: input initialization needs at least 2 dimensions, got %d", d)
	}
	k := o.NNeighbors
	if k >= n {
		return nil, fmt.Errorf("umap: n.neighbors %d must be smaller than the number of cells %d", k, n)
	}
	nn, err := neighbors.KNN(ctx, x, k, o.Metric, o.Threads)
	if err != nil {
		return nil, err
	}
	edges := fuzzySet(nn)
	a, b, err := FitAB(o.Spread, o.MinDist)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x5DEECE66D))
	y := initLayout(x, o.Init, rng)
	if err := layout(ctx, y, edges, a, b, o, rng); err != nil {
		return nil, err
	}
	return y, nil
}

type edge struct {
	i, j int
	w    float64
}

// fuzzySet turns neighbor lists into the symmetric fuzzy graph
// p + pᵀ - p∘pᵀ, returned as directed edges in both directions ordered by
// (i, j).
func fuzzySet(nn *neighbors.Lists) []edge {
	n := len(nn.Index)
	target := math.Log2(float64(nn.K))
	meanAll := 0.0
	for i := range nn.Dist {
		for _, d := range nn.Dist[i][1:] {
			meanAll += d
		}
	}
	if m := n * (nn.K - 1); m > 0 {
		meanAll /= float64(m)
	}

	p := make([]map[int]float64, n)
	for i := 0; i < n; i++ {
		dist := nn.Dist[i][1:]
		rho, sigma := smoothDist(dist, target, meanAll)
		p[i] = make(map[int]float64, len(dist))
		for t, j := range nn.Index[i][1:] {
			w := 1.0
			if dd := dist[t] - rho; dd > 0 {
				w = math.Exp(-dd / sigma)
			}
			p[i][j] = w
		}
	}
	sym := make([]map[int]float64, n)
	for i := range sym {
		sym[i] = map[int]float64{}
	}
	for i := 0; i < n; i++ {
		for j, a := range p[i] {
			b := p[j][i]
			w := a + b - a*b
			sym[i][j] = w
			sym[j][i] = w
		}
	}
	var out []edge
	for i := 0; i < n; i++ {
		js := make([]int, 0, len(sym[i]))
		for j := range sym[i] {
			js = append(js, j)
		}
		sort.Ints(js)
		for _, j := range js {
			if w := sym[i][j]; w > 0 {
				out = append(out, edge{i, j, w})
			}
		}
	}
	return out
}

// smoothDist finds rho, the distance to the nearest distinct neighbor, and the
// bandwidth sigma for which the memberships of dist sum to target.
func smoothDist(dist []float64, target, meanAll float64) (rho, sigma float64) {
	for _, d := range dist {
		if d > 0 {
			rho = d
			break
		}
	}
	lo, hi, mid := 0.0, math.Inf(1), 1.0
	for it := 0; it < 64; it++ {
		psum := 0.0
		for _, d := range dist {
			if dd := d - rho; dd > 0 {
				psum += math.Exp(-dd / mid)
			} else {
				psum++
			}
		}
		if math.Abs(psum-target) < 1e-5 {
			break
		}
		if psum > target {
			hi = mid
			mid = (lo + hi) / 2
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
	}
	floor := 1e-3 * meanAll
	if rho > 0 {
		mean := 0.0
		for _, d := range dist {
			mean += d
		}
		floor = 1e-3 * mean / float64(len(dist))
	}
	if mid < floor {
		mid = floor
	}
	return rho, mid
}

// FitAB fits the low-dimensional similarity curve 1/(1+a·x^(2b)) to the
// target that is 1 below minDist and decays as exp(-(x-minDist)/spread).
func FitAB(spread, minDist float64) (a, b float64, err error) {
	const points = 300
	xs := make([]float64, points)
	ys := make([]float64, points)
	for i := range xs {
		xs[i] = spread * 3 * float64(i) / float64(points-1)
		if xs[i] < minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(xs[i] - minDist) / spread)
		}
	}
	p := optimize.Problem{Func: func(v []float64) float64 {
		a, b := v[0], v[1]
		if a <= 0 || b <= 0 {
			return math.Inf(1)
		}
		sse := 0.0
		for i, x := range xs {
			d := 1/(1+a*math.Pow(x, 2*b)) - ys[i]
			sse += d * d
		}
		return sse
	}}
	res, err := optimize.Minimize(p, []float64{1, 1}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, fmt.Errorf("umap: fit a/b: %w", err)
	}
	return res.X[0], res.X[1], nil
}

func initLayout(x *mat.Dense, init string, rng *rand.Rand) *mat.Dense {
	n, _ := x.Dims()
	y := mat.NewDense(n, 2, nil)
	if init == InitRandom {
		for i := 0; i < n; i++ {
			y.Set(i, 0, rng.Float64()*20-10)
			y.Set(i, 1, rng.Float64()*20-10)
		}
		return y
	}
	for d := 0; d < 2; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := 0; i < n; i++ {
			v := x.At(i, d)
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		span := hi - lo
		for i := 0; i < n; i++ {
			v := 0.0
			if span > 0 {
				v = (x.At(i, d) - lo) / span * 10
			}
			y.Set(i, d, v+1e-4*rng.NormFloat64())
		}
	}
	return y
}

func clip(v float64) float64 {
	return math.Max(-4, math.Min(4, v))
}

// layout optimizes y by stochastic gradient descent over the fuzzy graph
// edges with negative sampling. It runs sequentially so a seed fixes the
// result.
func layout(ctx context.Context, y *mat.Dense, edges []edge, a, b float64, o Options, rng *rand.Rand) error {
	n, _ := y.Dims()
	maxW := 0.0
	for _, e := range edges {
		maxW = math.Max(maxW, e.w)
	}
	epochs := float64(o.Epochs)
	kept := edges[:0:0]
	for _, e := range edges {
		if e.w >= maxW/epochs {
			kept = append(kept, e)
		}
	}
	perSample := make([]float64, len(kept))
	nextSample := make([]float64, len(kept))
	perNeg := make([]float64, len(kept))
	nextNeg := make([]float64, len(kept))
	for i, e := range kept {
		perSample[i] = maxW / e.w
		nextSample[i] = perSample[i]
		perNeg[i] = perSample[i] / float64(o.NegativeSampleRate)
		nextNeg[i] = perNeg[i]
	}

	for ep := 0; ep < o.Epochs; ep++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		alpha := o.LearningRate * (1 - float64(ep)/epochs)
		fe := float64(ep)
		for k, e := range kept {
			if nextSample[k] > fe {
				continue
			}
			cur := y.RawRowView(e.i)
			oth := y.RawRowView(e.j)
			dx, dy := cur[0]-oth[0], cur[1]-oth[1]
			d2 := dx*dx + dy*dy
			if d2 > 0 {
				coef := -2 * a * b * math.Pow(d2, b-1) / (a*math.Pow(d2, b) + 1)
				gx, gy := clip(coef*dx)*alpha, clip(coef*dy)*alpha
				cur[0] += gx
				cur[1] += gy
				oth[0] -= gx
				oth[1] -= gy
			}
			nextSample[k] += perSample[k]

			negs := int((fe - nextNeg[k]) / perNeg[k])
			for s := 0; s < negs; s++ {
				r := rng.IntN(n)
				if r == e.i {
					continue
				}
				oth := y.RawRowView(r)
				dx, dy := cur[0]-oth[0], cur[1]-oth[1]
				d2 := dx*dx + dy*dy
				if d2 > 0 {
					coef := 2 * b / ((0.001 + d2) * (a*math.Pow(d2, b) + 1))
					cur[0] += clip(coef*dx) * alpha
					cur[1] += clip(coef*dy) * alpha
				} else {
					cur[0] += 4 * alpha
					cur[1] += 4 * alpha
				}
			}
			nextNeg[k] += float64(negs) * perNeg[k]
		}
	}
	return nil
}

// Package neighbors builds exact k-nearest-neighbor lists and the shared
// nearest-neighbor graph used for clustering.
package neighbors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"scflow/internal/dataset"
	"scflow/internal/graph"
	"scflow/internal/runutil"
)

// Distance metrics.
const (
	Euclidean = "euclidean"
	Cosine    = "cosine"
)

// Graph names written by FindNeighbors.
const (
	GraphNN  = "RNA_nn"
	GraphSNN = "RNA_snn"
)

// ErrTooFewCells is returned when k is not smaller than the number of cells.
var ErrTooFewCells = errors.New("neighbors: k must be smaller than the number of cells")

// Lists holds, for every point, its k nearest points in ascending distance.
// The first neighbor of every point is the point itself.
type Lists struct {
	K     int
	Index [][]int
	Dist  [][]float64
}

// KNN computes exact neighbors of the rows of x by brute force. Ties are
// broken by index.
func KNN(ctx context.Context, x mat.Matrix, k int, metric string, threads int) (*Lists, error) {
	n, d := x.Dims()
	if k < 1 {
		return nil, fmt.Errorf("neighbors: k must be >= 1, got %d", k)
	}
	if k >= n {
		return nil, fmt.Errorf("%w: k=%d, cells=%d", ErrTooFewCells, k, n)
	}
	pts := mat.DenseCopyOf(x)
	switch metric {
	case Euclidean:
	case Cosine, "":
		metric = Cosine
		for i := 0; i < n; i++ {
			row := pts.RawRowView(i)
			norm := 0.0
			for _, v := range row {
				norm += v * v
			}
			if norm = math.Sqrt(norm); norm > 0 {
				for j := range row {
					row[j] /= norm
				}
			}
		}
	default:
		return nil, fmt.Errorf("neighbors: unknown metric %q (want %s or %s)", metric, Euclidean, Cosine)
	}

	out := &Lists{K: k, Index: make([][]int, n), Dist: make([][]float64, n)}
	err := runutil.ParallelRange(ctx, threads, n, func(ctx context.Context, lo, hi int) error {
		type cand struct {
			j int
			d float64
		}
		cands := make([]cand, 0, n)
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			a := pts.RawRowView(i)
			cands = cands[:0]
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				b := pts.RawRowView(j)
				var dist float64
				if metric == Cosine {
					dot := 0.0
					for t := 0; t < d; t++ {
						dot += a[t] * b[t]
					}
					dist = math.Max(0, 1-dot)
				} else {
					ss := 0.0
					for t := 0; t < d; t++ {
						diff := a[t] - b[t]
						ss += diff * diff
					}
					dist = math.Sqrt(ss)
				}
				cands = append(cands, cand{j, dist})
			}
			sort.Slice(cands, func(p, q int) bool {
				if cands[p].d != cands[q].d {
					return cands[p].d < cands[q].d
				}
				return cands[p].j < cands[q].j
			})
			idx := make([]int, k)
			dst := make([]float64, k)
			idx[0] = i
			for t := 1; t < k; t++ {
				idx[t] = cands[t-1].j
				dst[t] = cands[t-1].d
			}
			out.Index[i], out.Dist[i] = idx, dst
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SNN returns the shared-nearest-neighbor graph: for every pair of points
// sharing at least one neighbor, the Jaccard index s/(2k-s) of their
// neighbor sets. Weights below prune are dropped.
func SNN(ctx context.Context, nn *Lists, prune float64, threads int) (*graph.Graph, error) {
	n := len(nn.Index)
	k := float64(nn.K)
	// who[j] lists the points that have j among their neighbors
	who := make([][]int, n)
	for i, idx := range nn.Index {
		for _, j := range idx {
			who[j] = append(who[j], i)
		}
	}
	rows := make([][]graph.Edge, n)
	err := runutil.ParallelRange(ctx, threads, n, func(ctx context.Context, lo, hi int) error {
		shared := make(map[int]int)
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			clear(shared)
			for _, j := range nn.Index[i] {
				for _, m := range who[j] {
					if m != i {
						shared[m]++
					}
				}
			}
			var row []graph.Edge
			for m, s := range shared {
				w := float64(s) / (2*k - float64(s))
				if w >= prune {
					row = append(row, graph.Edge{To: m, Weight: w})
				}
			}
			rows[i] = row
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b := graph.NewBuilder(n)
	for i, row := range rows {
		for _, e := range row {
			b.Add(i, e.To, e.Weight)
		}
	}
	return b.Build(), nil
}

// NNGraph returns the binary k-nearest-neighbor graph, symmetrized.
func NNGraph(nn *Lists) *graph.Graph {
	b := graph.NewBuilder(len(nn.Index))
	for i, idx := range nn.Index {
		for _, j := range idx {
			b.Add(i, j, 1)
		}
	}
	return b.Build()
}

// Options controls FindNeighbors.
type Options struct {
	Reduction string // default "pca"
	Dims      int    // leading dimensions used, default 10
	K         int    // default 20
	Prune     float64
	Metric    string // default euclidean
	Threads   int
}

// DefaultPrune drops SNN edges with Jaccard index below 1/15.
const DefaultPrune = 1.0 / 15

// FindNeighbors stores GraphNN and GraphSNN computed on the leading Dims of a
// reduction.
func FindNeighbors(ctx context.Context, ds *dataset.Dataset, o Options) error {
	if o.Reduction == "" {
		o.Reduction = "pca"
	}
	if o.Dims == 0 {
		o.Dims = 10
	}
	if o.K == 0 {
		o.K = 20
	}
	if o.Prune == 0 {
		o.Prune = DefaultPrune
	}
	if o.Metric == "" {
		o.Metric = Euclidean
	}
	x, err := Embedding(ds, o.Reduction, o.Dims)
	if err != nil {
		return err
	}
	nn, err := KNN(ctx, x, o.K, o.Metric, o.Threads)
	if err != nil {
		return err
	}
	snn, err := SNN(ctx, nn, o.Prune, o.Threads)
	if err != nil {
		return err
	}
	ds.Graphs[GraphNN] = NNGraph(nn)
	ds.Graphs[GraphSNN] = snn
	ds.Log("FindNeighbors", map[string]any{
		"reduction": o.Reduction, "dims": o.Dims, "k.param": o.K, "prune.SNN": o.Prune,
		"snn.edges": snn.NumEdges(),
	})
	return nil
}

// Embedding returns the leading dims columns of a reduction.
func Embedding(ds *dataset.Dataset, reduction string, dims int) (*mat.Dense, error) {
	red, err := ds.Reduction(reduction)
	if err != nil {
		return nil, err
	}
	if dims < 1 || dims > red.Dims() {
		return nil, fmt.Errorf("neighbors: dims %d out of range; %q has %d dimensions", dims, reduction, red.Dims())
	}
	n, _ := red.Embeddings.Dims()
	return mat.DenseCopyOf(red.Embeddings.Slice(0, n, 0, dims)), nil
}

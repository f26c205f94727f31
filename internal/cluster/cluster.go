// Package cluster finds communities in the shared-nearest-neighbor graph with
// the Louvain modularity optimizer.
package cluster

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"

	"scflow/internal/dataset"
	"scflow/internal/graph"
	"scflow/internal/runutil"
)

// ColClusters is the metadata column holding the latest clustering.
const ColClusters = "seurat_clusters"

// Options controls Run.
type Options struct {
	Graph          string  // default "RNA_snn"
	Resolution     float64 // default 0.8
	NStart         int     // random starts, default 10
	NIter          int     // iterations per start, default 10
	Seed           uint64
	KeepSingletons bool
	Threads        int
}

func (o *Options) defaults() {
	if o.Graph == "" {
		o.Graph = "RNA_snn"
	}
	if o.Resolution == 0 {
		o.Resolution = 0.8
	}
	if o.NStart <= 0 {
		o.NStart = 10
	}
	if o.NIter <= 0 {
		o.NIter = 10
	}
}

// Result summarizes a clustering.
type Result struct {
	Clusters   int
	Modularity float64
	Column     string // resolution-specific metadata column
	Sizes      []int
}

// ResolutionColumn names the metadata column for a clustering run on graph.
func ResolutionColumn(graphName string, resolution float64) string {
	return graphName + "_res." + strconv.FormatFloat(resolution, 'f', -1, 64)
}

// Run clusters the cells, stores labels "0".."k-1" (largest cluster first) in
// ColClusters and the resolution column, and sets them as identities.
func Run(ctx context.Context, ds *dataset.Dataset, o Options) (Result, error) {
	o.defaults()
	if o.Resolution < 0 {
		return Result{}, fmt.Errorf("cluster: resolution must be >= 0, got %g", o.Resolution)
	}
	g, ok := ds.Graphs[o.Graph]
	if !ok {
		return Result{}, fmt.Errorf("cluster: no graph %q; find neighbors first", o.Graph)
	}
	if g.N() != ds.NumCells() {
		return Result{}, fmt.Errorf("%w: graph %q has %d nodes for %d cells", dataset.ErrShape, o.Graph, g.N(), ds.NumCells())
	}
	memb, q, err := Louvain(ctx, g, o)
	if err != nil {
		return Result{}, err
	}
	if !o.KeepSingletons {
		memb = groupSingletons(g, memb)
	}
	memb, sizes := relabelBySize(memb)

	labels := make([]string, len(memb))
	for i, c := range memb {
		labels[i] = strconv.Itoa(c)
	}
	col := ResolutionColumn(o.Graph, o.Resolution)
	if err := ds.Meta.SetString(col, labels); err != nil {
		return Result{}, err
	}
	if err := ds.Meta.SetString(ColClusters, labels); err != nil {
		return Result{}, err
	}
	if err := ds.SetIdents(labels); err != nil {
		return Result{}, err
	}
	ds.Log("FindClusters", map[string]any{
		"graph.name": o.Graph, "resolution": o.Resolution, "n.start": o.NStart,
		"n.iter": o.NIter, "random.seed": o.Seed, "modularity": q,
	})
	return Result{Clusters: len(sizes), Modularity: q, Column: col, Sizes: sizes}, nil
}

// Louvain returns the best of NStart runs, each with up to NIter passes, and
// its modularity. Every start draws from its own seeded stream so the result
// does not depend on Threads.
func Louvain(ctx context.Context, g *graph.Graph, o Options) ([]int, float64, error) {
	o.defaults()
	base := fromGraph(g)
	n := g.N()
	type run struct {
		memb []int
		q    float64
	}
	runs := make([]run, o.NStart)
	err := runutil.ParallelRange(ctx, o.Threads, o.NStart, func(ctx context.Context, lo, hi int) error {
		for s := lo; s < hi; s++ {
			rng := rand.New(rand.NewPCG(o.Seed, runutil.SplitSeed(o.Seed, s)))
			cur := make([]int, n)
			for i := range cur {
				cur[i] = i
			}
			curQ := Modularity(g, cur, o.Resolution)
			for it := 0; it < o.NIter; it++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				next, changed := louvain(base, cur, o.Resolution, rng)
				if !changed {
					break
				}
				q := Modularity(g, next, o.Resolution)
				if q <= curQ {
					break
				}
				cur, curQ = next, q
			}
			runs[s] = run{cur, curQ}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	best := 0
	for s := 1; s < len(runs); s++ {
		if runs[s].q > runs[best].q {
			best = s
		}
	}
	return runs[best].memb, runs[best].q, nil
}

// Modularity computes Σ_c [ in_c/2m - γ (tot_c/2m)² ] for membership memb.
func Modularity(g *graph.Graph, memb []int, gamma float64) float64 {
	k := 0
	for _, c := range memb {
		k = max(k, c+1)
	}
	// indexed by label so the sum order is fixed
	tot := make([]float64, k)
	total, in := 0.0, 0.0
	for i, adj := range g.Adj {
		for _, e := range adj {
			total += e.Weight
			tot[memb[i]] += e.Weight
			if memb[e.To] == memb[i] {
				in += e.Weight
			}
		}
	}
	if total == 0 {
		return 0
	}
	q := in / total
	for _, t := range tot {
		q -= gamma * (t / total) * (t / total)
	}
	return q
}

// groupSingletons moves every cluster of size one into the cluster it has the
// highest mean edge weight to. Isolated cells keep their own cluster.
func groupSingletons(g *graph.Graph, memb []int) []int {
	size := map[int]int{}
	for _, c := range memb {
		size[c]++
	}
	out := append([]int(nil), memb...)
	for i, c := range memb {
		if size[c] != 1 {
			continue
		}
		sum := map[int]float64{}
		for _, e := range g.Adj[i] {
			if d := memb[e.To]; size[d] > 1 {
				sum[d] += e.Weight
			}
		}
		best, bestScore := -1, 0.0
		for d, w := range sum {
			score := w / float64(size[d])
			if score > bestScore || (score == bestScore && d < best) {
				best, bestScore = d, score
			}
		}
		if best >= 0 {
			out[i] = best
		}
	}
	return out
}

// relabelBySize renumbers clusters 0..k-1 by decreasing size, breaking ties by
// the smallest member index, and returns the sizes in label order.
func relabelBySize(memb []int) ([]int, []int) {
	type info struct{ id, size, first int }
	byID := map[int]*info{}
	var list []*info
	for i, c := range memb {
		in, ok := byID[c]
		if !ok {
			in = &info{id: c, first: i}
			byID[c] = in
			list = append(list, in)
		}
		in.size++
	}
	sort.Slice(list, func(a, b int) bool {
		if list[a].size != list[b].size {
			return list[a].size > list[b].size
		}
		return list[a].first < list[b].first
	})
	label := make(map[int]int, len(list))
	sizes := make([]int, len(list))
	for k, in := range list {
		label[in.id] = k
		sizes[k] = in.size
	}
	out := make([]int, len(memb))
	for i, c := range memb {
		out[i] = label[c]
	}
	return out, sizes
}

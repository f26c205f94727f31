package cluster

import (
	"math/rand/v2"

	"scflow/internal/graph"
)

// network is a weighted graph whose nodes may stand for groups of original
// nodes. Self loops are not stored; strength keeps the full weighted degree
// so modularity gains stay exact after aggregation.
type network struct {
	adj      [][]graph.Edge
	strength []float64
	total    float64 // sum of strengths, 2m
}

func fromGraph(g *graph.Graph) *network {
	n := &network{adj: g.Adj, strength: make([]float64, g.N())}
	for i := range g.Adj {
		n.strength[i] = g.Strength(i)
		n.total += n.strength[i]
	}
	return n
}

// aggregate collapses nodes sharing a community (labels 0..nc-1).
func (nw *network) aggregate(comm []int, nc int) *network {
	out := &network{adj: make([][]graph.Edge, nc), strength: make([]float64, nc), total: nw.total}
	acc := make([]map[int]float64, nc)
	for c := range acc {
		acc[c] = map[int]float64{}
	}
	for i, adj := range nw.adj {
		ci := comm[i]
		out.strength[ci] += nw.strength[i]
		for _, e := range adj {
			if cj := comm[e.To]; cj != ci {
				acc[ci][cj] += e.Weight
			}
		}
	}
	for c, m := range acc {
		adj := make([]graph.Edge, 0, len(m))
		for j := 0; j < nc; j++ {
			if w, ok := m[j]; ok {
				adj = append(adj, graph.Edge{To: j, Weight: w})
			}
		}
		out.adj[c] = adj
	}
	return out
}

// localMove starts from singletons and moves nodes, in a random order, to the
// neighboring community with the largest modularity gain until no move helps.
// It returns contiguous labels and whether any node moved.
func (nw *network) localMove(gamma float64, rng *rand.Rand) ([]int, int, bool) {
	n := len(nw.adj)
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := range comm {
		comm[i] = i
		tot[i] = nw.strength[i]
	}
	if nw.total == 0 {
		return comm, n, false
	}
	order := rng.Perm(n)
	weightTo := make([]float64, n)
	var touched []int
	changed := false
	for {
		moved := false
		for _, i := range order {
			ci := comm[i]
			ki := nw.strength[i]
			touched = touched[:0]
			for _, e := range nw.adj[i] {
				c := comm[e.To]
				if weightTo[c] == 0 {
					touched = append(touched, c)
				}
				weightTo[c] += e.Weight
			}
			tot[ci] -= ki
			best := ci
			bestGain := weightTo[ci] - gamma*ki*tot[ci]/nw.total
			for _, c := range touched {
				if gain := weightTo[c] - gamma*ki*tot[c]/nw.total; gain > bestGain+1e-12 {
					best, bestGain = c, gain
				}
			}
			tot[best] += ki
			if best != ci {
				comm[i] = best
				moved = true
				changed = true
			}
			for _, c := range touched {
				weightTo[c] = 0
			}
		}
		if !moved {
			break
		}
	}
	labels, nc := renumber(comm)
	return labels, nc, changed
}

// louvain runs one multi-level pass starting from the clustering init of the
// base network and reports whether it changed anything.
func louvain(base *network, init []int, gamma float64, rng *rand.Rand) ([]int, bool) {
	memb, nc := renumber(init)
	nw := base.aggregate(memb, nc)
	changed := false
	for {
		comm, nc2, moved := nw.localMove(gamma, rng)
		if !moved {
			break
		}
		changed = true
		for i := range memb {
			memb[i] = comm[memb[i]]
		}
		nw = nw.aggregate(comm, nc2)
	}
	return memb, changed
}

// renumber maps labels to 0..k-1 in order of first appearance.
func renumber(labels []int) ([]int, int) {
	remap := map[int]int{}
	out := make([]int, len(labels))
	for i, l := range labels {
		r, ok := remap[l]
		if !ok {
			r = len(remap)
			remap[l] = r
		}
		out[i] = r
	}
	return out, len(remap)
}

// Package graph is a small undirected weighted graph used for nearest-neighbor
// and shared-nearest-neighbor graphs.
package graph

import "sort"

// Edge is one half of an undirected edge.
type Edge struct {
	To     int
	Weight float64
}

// Graph stores adjacency lists sorted by neighbor index. Every undirected edge
// appears in both endpoint lists.
type Graph struct {
	Adj [][]Edge
}

// N is the number of nodes.
func (g *Graph) N() int { return len(g.Adj) }

// Strength returns the sum of edge weights incident to node i.
func (g *Graph) Strength(i int) float64 {
	s := 0.0
	for _, e := range g.Adj[i] {
		s += e.Weight
	}
	return s
}

// TotalWeight returns the sum of all undirected edge weights (each edge once).
func (g *Graph) TotalWeight() float64 {
	s := 0.0
	for i := range g.Adj {
		s += g.Strength(i)
	}
	return s / 2
}

// NumEdges counts undirected edges.
func (g *Graph) NumEdges() int {
	n := 0
	for _, adj := range g.Adj {
		n += len(adj)
	}
	return n / 2
}

// Weight returns the weight of edge (i, j) or 0.
func (g *Graph) Weight(i, j int) float64 {
	adj := g.Adj[i]
	k := sort.Search(len(adj), func(k int) bool { return adj[k].To >= j })
	if k < len(adj) && adj[k].To == j {
		return adj[k].Weight
	}
	return 0
}

// Builder accumulates undirected edges. Adding the same pair twice keeps the
// larger weight.
type Builder struct {
	n     int
	edges []map[int]float64
}

// NewBuilder returns a builder for n nodes.
func NewBuilder(n int) *Builder {
	b := &Builder{n: n, edges: make([]map[int]float64, n)}
	for i := range b.edges {
		b.edges[i] = map[int]float64{}
	}
	return b
}

// Add records edge (i, j). Self loops and non-positive weights are ignored.
func (b *Builder) Add(i, j int, w float64) {
	if i == j || w <= 0 {
		return
	}
	if w > b.edges[i][j] {
		b.edges[i][j] = w
		b.edges[j][i] = w
	}
}

// Build returns the graph with sorted adjacency lists.
func (b *Builder) Build() *Graph {
	g := &Graph{Adj: make([][]Edge, b.n)}
	for i, m := range b.edges {
		adj := make([]Edge, 0, len(m))
		for j, w := range m {
			adj = append(adj, Edge{To: j, Weight: w})
		}
		sort.Slice(adj, func(a, c int) bool { return adj[a].To < adj[c].To })
		g.Adj[i] = adj
	}
	return g
}

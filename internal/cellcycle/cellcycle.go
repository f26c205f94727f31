// Package cellcycle scores cells for gene modules and assigns cell-cycle
// phases from S and G2/M scores.
package cellcycle

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"scflow/internal/dataset"
)

// Metadata columns written by Score.
const (
	ColS        = "S.Score"
	ColG2M      = "G2M.Score"
	ColPhase    = "Phase"
	ColDiff     = "CC.Difference"
	ColOldIdent = "old.ident"
)

// Phases.
const (
	G1        = "G1"
	S         = "S"
	G2M       = "G2M"
	Undecided = "Undecided"
)

// Options controls ModuleScore and Score.
type Options struct {
	Bins     int    // expression bins, default 24
	Ctrl     int    // control genes drawn per feature; 0 picks a default
	Seed     uint64 // used as given; the CLI default is 1
	SetIdent bool   // Score only: replace identities with phases
}

// Module is one scored gene set.
type Module struct {
	Name     string
	Features []string // genes present in the dataset
	Missing  []string
	Controls []string
	Scores   []float64
}

// ModuleScore scores each module against control genes drawn from the same
// average-expression bins. All modules share one random stream, in order.
func ModuleScore(ds *dataset.Dataset, modules map[string][]string, order []string, o Options) ([]Module, error) {
	if o.Bins <= 0 {
		o.Bins = 24
	}
	if o.Ctrl <= 0 {
		o.Ctrl = 100
	}
	data, err := ds.Matrix(dataset.SlotData)
	if err != nil {
		return nil, fmt.Errorf("cellcycle: %w", err)
	}
	nGenes, nCells := ds.NumGenes(), ds.NumCells()

	avg := data.RowSums()
	for g := range avg {
		avg[g] /= float64(nCells)
	}
	bin := equalCountBins(avg, o.Bins)
	members := make([][]int, o.Bins)
	for g := 0; g < nGenes; g++ {
		members[bin[g]] = append(members[bin[g]], g)
	}

	byGene := data.Transpose()
	colMeans := func(rows []int) []float64 {
		out := make([]float64, nCells)
		for _, g := range rows {
			idx, val := byGene.Col(g)
			for k, c := range idx {
				out[c] += val[k]
			}
		}
		for c := range out {
			out[c] /= float64(len(rows))
		}
		return out
	}

	rng := rand.New(rand.NewPCG(o.Seed, o.Seed))
	out := make([]Module, 0, len(order))
	for _, name := range order {
		rows, missing := ds.Resolve(modules[name])
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: no genes of module %s are present", dataset.ErrUnknownGene, name)
		}
		seen := map[int]bool{}
		var ctrl []int
		for _, g := range rows {
			pool := members[bin[g]]
			for _, c := range sample(rng, pool, o.Ctrl) {
				if !seen[c] {
					seen[c] = true
					ctrl = append(ctrl, c)
				}
			}
		}
		feat := colMeans(rows)
		base := colMeans(ctrl)
		for c := range feat {
			feat[c] -= base[c]
		}
		m := Module{Name: name, Missing: missing, Scores: feat}
		for _, g := range rows {
			m.Features = append(m.Features, ds.Genes[g])
		}
		for _, g := range ctrl {
			m.Controls = append(m.Controls, ds.Genes[g])
		}
		out = append(out, m)
	}
	return out, nil
}

// equalCountBins assigns genes ordered by avg to bins of near-equal size.
// Ties keep gene order.
func equalCountBins(avg []float64, bins int) []int {
	order := make([]int, len(avg))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return avg[order[a]] < avg[order[b]] })
	if bins > len(avg) {
		bins = len(avg)
	}
	out := make([]int, len(avg))
	for rank, g := range order {
		out[g] = rank * bins / len(avg)
	}
	return out
}

// sample draws up to k members of pool without replacement.
func sample(rng *rand.Rand, pool []int, k int) []int {
	p := append([]int(nil), pool...)
	if k > len(p) {
		k = len(p)
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(p)-i)
		p[i], p[j] = p[j], p[i]
	}
	return p[:k]
}

// Result summarizes Score.
type Result struct {
	S, G2M Module
	Counts map[string]int // cells per phase
}

// Score computes S and G2M module scores and assigns phases: G1 when both
// scores are negative, Undecided when they tie, otherwise the larger one.
// Previous identities are kept in old.ident.
func Score(ds *dataset.Dataset, sGenes, g2mGenes []string, o Options) (Result, error) {
	if o.Ctrl <= 0 {
		o.Ctrl = min(len(sGenes), len(g2mGenes))
	}
	mods, err := ModuleScore(ds, map[string][]string{ColS: sGenes, ColG2M: g2mGenes}, []string{ColS, ColG2M}, o)
	if err != nil {
		return Result{}, err
	}
	s, g := mods[0].Scores, mods[1].Scores
	phase := make([]string, len(s))
	diff := make([]float64, len(s))
	counts := map[string]int{}
	for c := range s {
		phase[c] = Phase(s[c], g[c])
		diff[c] = s[c] - g[c]
		counts[phase[c]]++
	}
	for _, col := range []struct {
		name string
		v    []float64
	}{{ColS, s}, {ColG2M, g}, {ColDiff, diff}} {
		if err := ds.Meta.SetNumeric(col.name, col.v); err != nil {
			return Result{}, err
		}
	}
	if err := ds.Meta.SetString(ColPhase, phase); err != nil {
		return Result{}, err
	}
	if err := ds.Meta.SetString(ColOldIdent, ds.Idents); err != nil {
		return Result{}, err
	}
	if o.SetIdent {
		if err := ds.SetIdents(phase); err != nil {
			return Result{}, err
		}
	}
	ds.Log("CellCycleScoring", map[string]any{"s.features": len(mods[0].Features), "g2m.features": len(mods[1].Features), "ctrl": o.Ctrl})
	return Result{S: mods[0], G2M: mods[1], Counts: counts}, nil
}

// Phase assigns one cell.
func Phase(s, g2m float64) string {
	switch {
	case s < 0 && g2m < 0:
		return G1
	case s == g2m:
		return Undecided
	case s > g2m:
		return S
	default:
		return G2M
	}
}

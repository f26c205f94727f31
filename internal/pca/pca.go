// Package pca runs principal component analysis on the scale.data slot.
package pca

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"scflow/internal/dataset"
)

// ErrNoComponents is returned when no principal component can be computed.
var ErrNoComponents = errors.New("pca: no components")

// Options controls Run.
type Options struct {
	Features []string // default: variable features
	NPCs     int      // default 50
	Name     string   // reduction name, default "pca"
	Key      string   // column prefix, default "PC_"
}

// Result reports what Run did.
type Result struct {
	NPCs     int
	Features []string
	Missing  []string
}

// Run computes the thin SVD of the cells × features block of scale.data and
// stores embeddings U·S, loadings V and stdev S/sqrt(n-1). The data is not
// re-centered.
func Run(ds *dataset.Dataset, o Options) (Result, error) {
	if ds.Scaled == nil {
		return Result{}, fmt.Errorf("pca: scale.data slot is empty; scale first")
	}
	if o.NPCs == 0 {
		o.NPCs = 50
	}
	if o.NPCs < 0 {
		return Result{}, fmt.Errorf("%w: npcs must be > 0, got %d", ErrNoComponents, o.NPCs)
	}
	if o.Name == "" {
		o.Name = "pca"
	}
	if o.Key == "" {
		o.Key = "PC_"
	}
	features := o.Features
	if len(features) == 0 {
		features = ds.VariableFeatures()
	}
	if len(features) == 0 {
		return Result{}, fmt.Errorf("pca: no features given and no variable features set")
	}

	var (
		rows    []int
		kept    []string
		missing []string
	)
	for _, g := range features {
		r, ok := ds.Scaled.Row(g)
		if !ok {
			missing = append(missing, g)
			continue
		}
		// constant rows carry no variance
		if mat.Norm(ds.Scaled.Values.RowView(r), 2) == 0 {
			continue
		}
		rows = append(rows, r)
		kept = append(kept, g)
	}
	n := ds.NumCells()
	maxPCs := min(n, len(kept)) - 1
	if maxPCs < 1 {
		return Result{Missing: missing}, fmt.Errorf("%w: %d usable features for %d cells", ErrNoComponents, len(kept), n)
	}
	npcs := min(o.NPCs, maxPCs)

	x := mat.NewDense(n, len(rows), nil)
	for j, r := range rows {
		src := ds.Scaled.Values.RawRowView(r)
		for c := 0; c < n; c++ {
			x.Set(c, j, src[c])
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return Result{}, fmt.Errorf("pca: SVD did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	emb := mat.NewDense(n, npcs, nil)
	load := mat.NewDense(len(rows), npcs, nil)
	stdev := make([]float64, npcs)
	for k := 0; k < npcs; k++ {
		sign := 1.0
		best := 0.0
		for g := 0; g < len(rows); g++ {
			if a := math.Abs(v.At(g, k)); a > best {
				best = a
				sign = math.Copysign(1, v.At(g, k))
			}
		}
		for g := 0; g < len(rows); g++ {
			load.Set(g, k, sign*v.At(g, k))
		}
		for c := 0; c < n; c++ {
			emb.Set(c, k, sign*u.At(c, k)*s[k])
		}
		stdev[k] = s[k] / math.Sqrt(float64(n-1))
	}

	red := &dataset.Reduction{Key: o.Key, Embeddings: emb, Loadings: load, LoadingGenes: kept, Stdev: stdev}
	if err := ds.AddReduction(o.Name, red); err != nil {
		return Result{}, err
	}
	ds.Log("RunPCA", map[string]any{"npcs": npcs, "features": len(kept), "reduction.name": o.Name})
	return Result{NPCs: npcs, Features: kept, Missing: missing}, nil
}

// TopFeatures returns the n genes with the most positive and the most negative
// loadings on component dim (0-based).
func TopFeatures(red *dataset.Reduction, dim, n int) (pos, neg []string, err error) {
	if red.Loadings == nil {
		return nil, nil, fmt.Errorf("pca: reduction has no loadings")
	}
	g, d := red.Loadings.Dims()
	if dim < 0 || dim >= d {
		return nil, nil, fmt.Errorf("pca: dimension %d out of range [1,%d]", dim+1, d)
	}
	order := make([]int, g)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return red.Loadings.At(order[a], dim) > red.Loadings.At(order[b], dim)
	})
	n = min(n, g)
	for _, i := range order[:n] {
		pos = append(pos, red.LoadingGenes[i])
	}
	for k := g - 1; k >= g-n; k-- {
		neg = append(neg, red.LoadingGenes[order[k]])
	}
	return pos, neg, nil
}

// Report writes the top genes of each listed component (0-based dims).
func Report(w io.Writer, red *dataset.Reduction, dims []int, n int) error {
	for _, d := range dims {
		pos, neg, err := TopFeatures(red, d, n)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s%d\nPositive:  %s\nNegative:  %s\n",
			red.Key, d+1, strings.Join(pos, ", "), strings.Join(neg, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// VarianceExplained returns each component's share of the total variance in
// the stored components.
func VarianceExplained(red *dataset.Reduction) []float64 {
	total := 0.0
	for _, s := range red.Stdev {
		total += s * s
	}
	out := make([]float64, len(red.Stdev))
	if total == 0 {
		return out
	}
	for i, s := range red.Stdev {
		out[i] = s * s / total
	}
	return out
}

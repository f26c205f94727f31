// Package qc computes per-cell quality metrics and filters low-quality cells.
package qc

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"scflow/internal/dataset"
)

// Metadata column names written by Compute.
const (
	ColCount     = "nCount_RNA"
	ColFeature   = "nFeature_RNA"
	ColPercentMT = "percent.mt"
)

// DefaultMitoPattern matches human mitochondrial gene symbols.
const DefaultMitoPattern = "^MT-"

// ErrNoCellsLeft is returned when a filter would remove every cell.
var ErrNoCellsLeft = errors.New("qc: filter removes all cells")

// Options controls Compute.
type Options struct {
	MitoPattern string
}

// Compute stores nCount_RNA, nFeature_RNA and percent.mt. It returns the genes
// matched by the mitochondrial pattern.
func Compute(ds *dataset.Dataset, o Options) ([]string, error) {
	if o.MitoPattern == "" {
		o.MitoPattern = DefaultMitoPattern
	}
	sums := ds.Counts.ColSums()
	nnz := ds.Counts.ColNNZ()
	nf := make([]float64, len(nnz))
	for i, n := range nnz {
		nf[i] = float64(n)
	}
	if err := ds.Meta.SetNumeric(ColCount, sums); err != nil {
		return nil, err
	}
	if err := ds.Meta.SetNumeric(ColFeature, nf); err != nil {
		return nil, err
	}
	return PercentageFeatureSet(ds, o.MitoPattern, ColPercentMT)
}

// PercentageFeatureSet stores, per cell, the percentage of counts that come
// from genes matching pattern. It returns the matched genes; when none match
// the column is all zeros.
func PercentageFeatureSet(ds *dataset.Dataset, pattern, column string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("qc: bad pattern %q: %w", pattern, err)
	}
	match := make([]bool, ds.NumGenes())
	var genes []string
	for i, g := range ds.Genes {
		if re.MatchString(g) {
			match[i] = true
			genes = append(genes, g)
		}
	}
	pct := make([]float64, ds.NumCells())
	for c := 0; c < ds.Counts.Cols; c++ {
		idx, val := ds.Counts.Col(c)
		total, hit := 0.0, 0.0
		for k, r := range idx {
			total += val[k]
			if match[r] {
				hit += val[k]
			}
		}
		if total > 0 {
			pct[c] = 100 * hit / total
		}
	}
	if err := ds.Meta.SetNumeric(column, pct); err != nil {
		return nil, err
	}
	return genes, nil
}

// Filter keeps cells strictly inside the given bounds. A zero bound is
// disabled.
type Filter struct {
	MinFeatures  float64
	MaxFeatures  float64
	MinCount     float64
	MaxCount     float64
	MaxPercentMT float64
}

// Keep returns the indices of cells that pass.
func (f Filter) Keep(ds *dataset.Dataset) ([]int, error) {
	need := func(col string) ([]float64, error) {
		v, err := ds.Meta.Numeric(col)
		if err != nil {
			return nil, fmt.Errorf("qc: compute metrics before filtering: %w", err)
		}
		return v, nil
	}
	nf, err := need(ColFeature)
	if err != nil {
		return nil, err
	}
	nc, err := need(ColCount)
	if err != nil {
		return nil, err
	}
	var mt []float64
	if f.MaxPercentMT > 0 {
		if mt, err = need(ColPercentMT); err != nil {
			return nil, err
		}
	}
	var keep []int
	for i := range nf {
		switch {
		case f.MinFeatures > 0 && !(nf[i] > f.MinFeatures):
		case f.MaxFeatures > 0 && !(nf[i] < f.MaxFeatures):
		case f.MinCount > 0 && !(nc[i] > f.MinCount):
		case f.MaxCount > 0 && !(nc[i] < f.MaxCount):
		case mt != nil && !(mt[i] < f.MaxPercentMT):
		default:
			keep = append(keep, i)
		}
	}
	return keep, nil
}

// Apply subsets ds to the cells that pass and returns how many were removed.
func (f Filter) Apply(ds *dataset.Dataset) (int, error) {
	keep, err := f.Keep(ds)
	if err != nil {
		return 0, err
	}
	if len(keep) == 0 {
		return 0, fmt.Errorf("%w (%d cells, filter %+v)", ErrNoCellsLeft, ds.NumCells(), f)
	}
	removed := ds.NumCells() - len(keep)
	if err := ds.SubsetCells(keep); err != nil {
		return 0, err
	}
	ds.Log("subset", map[string]any{
		"min.features": f.MinFeatures, "max.features": f.MaxFeatures,
		"min.count": f.MinCount, "max.count": f.MaxCount, "max.percent.mt": f.MaxPercentMT,
	})
	return removed, nil
}

// Stat summarizes one metadata column.
type Stat struct {
	Column string  `yaml:"column" json:"column"`
	Min    float64 `yaml:"min" json:"min"`
	Median float64 `yaml:"median" json:"median"`
	Max    float64 `yaml:"max" json:"max"`
}

// Summary returns min/median/max for each QC column present.
func Summary(ds *dataset.Dataset) []Stat {
	var out []Stat
	for _, col := range []string{ColFeature, ColCount, ColPercentMT} {
		v, err := ds.Meta.Numeric(col)
		if err != nil || len(v) == 0 {
			continue
		}
		s := append([]float64(nil), v...)
		sort.Float64s(s)
		med := s[len(s)/2]
		if len(s)%2 == 0 {
			med = (s[len(s)/2-1] + s[len(s)/2]) / 2
		}
		out = append(out, Stat{Column: col, Min: s[0], Median: med, Max: s[len(s)-1]})
	}
	return out
}

// Package dataset is the single-cell container: a genes × cells count matrix
// plus every slot derived from it (normalized and scaled data, per-cell and
// per-gene metadata, reductions, graphs and identities).
//
// All slots share the cell order of Cells and the gene order of Genes.
// Subsetting keeps them consistent; slots that cannot be subset meaningfully
// (neighbor graphs after a cell subset) are dropped.
package dataset

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"scflow/internal/graph"
	"scflow/internal/sparse"
)

var (
	ErrShape         = errors.New("dataset: shape mismatch")
	ErrUnknownGene   = errors.New("dataset: unknown gene")
	ErrUnknownColumn = errors.New("dataset: unknown metadata column")
	ErrEmpty         = errors.New("dataset: no cells or genes")
)

// Slot selects an expression matrix.
type Slot int

const (
	SlotCounts Slot = iota
	SlotData
	SlotScaled
)

func (s Slot) String() string {
	switch s {
	case SlotCounts:
		return "counts"
	case SlotData:
		return "data"
	case SlotScaled:
		return "scale.data"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// Scaled is a dense genes × cells block for a subset of genes.
type Scaled struct {
	Genes  []string
	Values *mat.Dense
	index  map[string]int
}

// NewScaled wraps values (len(genes) × cells).
func NewScaled(genes []string, values *mat.Dense) *Scaled {
	s := &Scaled{Genes: genes, Values: values, index: make(map[string]int, len(genes))}
	for i, g := range genes {
		s.index[g] = i
	}
	return s
}

// Row returns the index of gene in the scaled block.
func (s *Scaled) Row(gene string) (int, bool) {
	i, ok := s.index[gene]
	return i, ok
}

// FeatureStats holds per-gene results of variable feature selection.
type FeatureStats struct {
	Method               string
	Mean                 []float64
	Variance             []float64
	VarianceExpected     []float64
	VarianceStandardized []float64
	Dispersion           []float64
	DispersionScaled     []float64
	IsVariable           []bool
	Variable             []string // ranked, most variable first
}

// Reduction is a named low-dimensional representation.
type Reduction struct {
	Key          string     // column prefix, e.g. "PC_"
	Embeddings   *mat.Dense // cells × dims
	Loadings     *mat.Dense // genes × dims, optional
	LoadingGenes []string
	Stdev        []float64
}

// Dims is the number of embedding dimensions.
func (r *Reduction) Dims() int {
	_, c := r.Embeddings.Dims()
	return c
}

// Command records one applied operation.
type Command struct {
	Name   string
	Time   time.Time
	Params map[string]any
}

// Options controls initial gene/cell filtering in New.
type Options struct {
	MinCells    int // keep genes detected in at least this many cells
	MinFeatures int // keep cells with at least this many detected genes
}

// Dataset is the single-cell object.
type Dataset struct {
	Project string
	Genes   []string
	Cells   []string

	Counts *sparse.Matrix
	Data   *sparse.Matrix
	Scaled *Scaled

	Meta       *Meta
	Features   *FeatureStats
	Reductions map[string]*Reduction
	Graphs     map[string]*graph.Graph
	Idents     []string
	Commands   []Command

	geneIndex map[string]int
}

// New validates the inputs, applies MinCells/MinFeatures filtering and returns
// the dataset with orig.ident and identities set to project.
func New(project string, genes, cells []string, counts *sparse.Matrix, o Options) (*Dataset, error) {
	if counts == nil || counts.Rows != len(genes) || counts.Cols != len(cells) {
		r, c := 0, 0
		if counts != nil {
			r, c = counts.Rows, counts.Cols
		}
		return nil, fmt.Errorf("%w: counts %dx%d for %d genes and %d cells", ErrShape, r, c, len(genes), len(cells))
	}
	if err := unique("gene", genes); err != nil {
		return nil, err
	}
	if err := unique("cell", cells); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Project:    project,
		Genes:      append([]string(nil), genes...),
		Cells:      append([]string(nil), cells...),
		Counts:     counts,
		Meta:       NewMeta(len(cells)),
		Reductions: map[string]*Reduction{},
		Graphs:     map[string]*graph.Graph{},
	}
	ds.reindex()

	// Cells are filtered on the full matrix, then genes on the kept cells.
	if o.MinFeatures > 0 {
		var keep []int
		for c, n := range ds.Counts.ColNNZ() {
			if n >= o.MinFeatures {
				keep = append(keep, c)
			}
		}
		if err := ds.SubsetCells(keep); err != nil {
			return nil, err
		}
	}
	if o.MinCells > 0 && len(ds.Cells) > 0 {
		var keep []int
		for g, n := range ds.Counts.RowNNZ() {
			if n >= o.MinCells {
				keep = append(keep, g)
			}
		}
		if err := ds.SubsetGenes(keep); err != nil {
			return nil, err
		}
	}
	if len(ds.Cells) == 0 || len(ds.Genes) == 0 {
		return nil, fmt.Errorf("%w: %d genes x %d cells after min-cells=%d min-features=%d",
			ErrEmpty, len(ds.Genes), len(ds.Cells), o.MinCells, o.MinFeatures)
	}

	orig := make([]string, len(ds.Cells))
	for i := range orig {
		orig[i] = project
	}
	if err := ds.Meta.SetString("orig.ident", orig); err != nil {
		return nil, err
	}
	ds.Idents = append([]string(nil), orig...)
	ds.Log("CreateObject", map[string]any{"min.cells": o.MinCells, "min.features": o.MinFeatures})
	return ds, nil
}

func unique(kind string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: duplicate %s name %q", ErrShape, kind, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func (ds *Dataset) reindex() {
	ds.geneIndex = make(map[string]int, len(ds.Genes))
	for i, g := range ds.Genes {
		ds.geneIndex[g] = i
	}
}

// NumCells is the number of cells.
func (ds *Dataset) NumCells() int { return len(ds.Cells) }

// NumGenes is the number of genes.
func (ds *Dataset) NumGenes() int { return len(ds.Genes) }

// GeneIndex returns the row of gene.
func (ds *Dataset) GeneIndex(gene string) (int, bool) {
	i, ok := ds.geneIndex[gene]
	return i, ok
}

// Resolve maps gene names to rows, returning the rows found and the names that
// are not in the dataset.
func (ds *Dataset) Resolve(genes []string) (rows []int, missing []string) {
	for _, g := range genes {
		if i, ok := ds.geneIndex[g]; ok {
			rows = append(rows, i)
		} else {
			missing = append(missing, g)
		}
	}
	return rows, missing
}

// Log appends a command record.
func (ds *Dataset) Log(name string, params map[string]any) {
	ds.Commands = append(ds.Commands, Command{Name: name, Time: time.Now(), Params: params})
}

// Matrix returns the sparse matrix for slot (counts or data).
func (ds *Dataset) Matrix(slot Slot) (*sparse.Matrix, error) {
	switch slot {
	case SlotCounts:
		return ds.Counts, nil
	case SlotData:
		if ds.Data == nil {
			return nil, fmt.Errorf("dataset: %s slot is empty; normalize first", slot)
		}
		return ds.Data, nil
	}
	return nil, fmt.Errorf("dataset: %s is not a sparse slot", slot)
}

// GeneVector returns one gene's values across all cells from slot.
func (ds *Dataset) GeneVector(slot Slot, gene string) ([]float64, error) {
	if slot == SlotScaled {
		if ds.Scaled == nil {
			return nil, fmt.Errorf("dataset: scale.data slot is empty; scale first")
		}
		r, ok := ds.Scaled.Row(gene)
		if !ok {
			return nil, fmt.Errorf("%w: %q not in scale.data", ErrUnknownGene, gene)
		}
		return mat.Row(nil, r, ds.Scaled.Values), nil
	}
	m, err := ds.Matrix(slot)
	if err != nil {
		return nil, err
	}
	g, ok := ds.geneIndex[gene]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGene, gene)
	}
	out := make([]float64, m.Cols)
	for c := 0; c < m.Cols; c++ {
		out[c] = m.At(g, c)
	}
	return out, nil
}

// FetchNumeric returns a per-cell vector named either by a metadata column or
// by a gene (looked up in the data slot, falling back to counts).
func (ds *Dataset) FetchNumeric(name string) ([]float64, error) {
	if ds.Meta.IsNumeric(name) {
		return ds.Meta.Numeric(name)
	}
	slot := SlotData
	if ds.Data == nil {
		slot = SlotCounts
	}
	if _, ok := ds.geneIndex[name]; ok {
		return ds.GeneVector(slot, name)
	}
	return nil, fmt.Errorf("%w: %q is neither a numeric column nor a gene", ErrUnknownColumn, name)
}

// Groups returns per-cell labels: Idents when by is "" or "ident", otherwise
// the named metadata column.
func (ds *Dataset) Groups(by string) ([]string, error) {
	if by == "" || by == "ident" {
		return ds.Idents, nil
	}
	return ds.Meta.String(by)
}

// IdentLevels returns the ordered distinct identities.
func (ds *Dataset) IdentLevels() []string { return Levels(ds.Idents) }

// SetIdents replaces cell identities.
func (ds *Dataset) SetIdents(vals []string) error {
	if len(vals) != len(ds.Cells) {
		return fmt.Errorf("%w: %d identities for %d cells", ErrShape, len(vals), len(ds.Cells))
	}
	ds.Idents = append([]string(nil), vals...)
	return nil
}

// RenameIdents maps identities through rename; unmapped identities are kept.
func (ds *Dataset) RenameIdents(rename map[string]string) {
	for i, id := range ds.Idents {
		if n, ok := rename[id]; ok {
			ds.Idents[i] = n
		}
	}
}

// AddReduction stores a reduction after checking its cell dimension.
func (ds *Dataset) AddReduction(name string, r *Reduction) error {
	rows, _ := r.Embeddings.Dims()
	if rows != len(ds.Cells) {
		return fmt.Errorf("%w: reduction %q has %d rows for %d cells", ErrShape, name, rows, len(ds.Cells))
	}
	ds.Reductions[name] = r
	return nil
}

// Reduction returns a stored reduction.
func (ds *Dataset) Reduction(name string) (*Reduction, error) {
	r, ok := ds.Reductions[name]
	if !ok {
		return nil, fmt.Errorf("dataset: no reduction %q", name)
	}
	return r, nil
}

// SubsetCells keeps the given cells in the given order.
func (ds *Dataset) SubsetCells(idx []int) error {
	counts, err := ds.Counts.SubsetCols(idx)
	if err != nil {
		return fmt.Errorf("subset counts: %w", err)
	}
	var data *sparse.Matrix
	if ds.Data != nil {
		if data, err = ds.Data.SubsetCols(idx); err != nil {
			return fmt.Errorf("subset data: %w", err)
		}
	}
	cells := make([]string, len(idx))
	for i, j := range idx {
		cells[i] = ds.Cells[j]
	}
	var idents []string
	if ds.Idents != nil {
		idents = make([]string, len(idx))
		for i, j := range idx {
			idents[i] = ds.Idents[j]
		}
	}
	if ds.Scaled != nil {
		ds.Scaled = NewScaled(ds.Scaled.Genes, subsetCols(ds.Scaled.Values, idx))
	}
	for name, r := range ds.Reductions {
		ds.Reductions[name] = &Reduction{
			Key:          r.Key,
			Embeddings:   subsetRows(r.Embeddings, idx),
			Loadings:     r.Loadings,
			LoadingGenes: r.LoadingGenes,
			Stdev:        r.Stdev,
		}
	}
	ds.Graphs = map[string]*graph.Graph{}
	ds.Counts, ds.Data, ds.Cells, ds.Idents = counts, data, cells, idents
	ds.Meta = ds.Meta.subset(idx)
	return nil
}

// SubsetGenes keeps the given genes (indices must be increasing).
func (ds *Dataset) SubsetGenes(idx []int) error {
	counts, err := ds.Counts.SubsetRows(idx)
	if err != nil {
		return fmt.Errorf("subset counts: %w", err)
	}
	var data *sparse.Matrix
	if ds.Data != nil {
		if data, err = ds.Data.SubsetRows(idx); err != nil {
			return fmt.Errorf("subset data: %w", err)
		}
	}
	genes := make([]string, len(idx))
	keep := make(map[string]bool, len(idx))
	for i, j := range idx {
		genes[i] = ds.Genes[j]
		keep[genes[i]] = true
	}
	if ds.Scaled != nil {
		var rows []int
		var names []string
		for r, g := range ds.Scaled.Genes {
			if keep[g] {
				rows = append(rows, r)
				names = append(names, g)
			}
		}
		ds.Scaled = NewScaled(names, subsetRows(ds.Scaled.Values, rows))
	}
	if ds.Features != nil {
		ds.Features = ds.Features.subset(idx, keep)
	}
	ds.Counts, ds.Data, ds.Genes = counts, data, genes
	ds.reindex()
	return nil
}

func (f *FeatureStats) subset(idx []int, keep map[string]bool) *FeatureStats {
	pick := func(v []float64) []float64 {
		if v == nil {
			return nil
		}
		out := make([]float64, len(idx))
		for i, j := range idx {
			out[i] = v[j]
		}
		return out
	}
	out := &FeatureStats{
		Method:               f.Method,
		Mean:                 pick(f.Mean),
		Variance:             pick(f.Variance),
		VarianceExpected:     pick(f.VarianceExpected),
		VarianceStandardized: pick(f.VarianceStandardized),
		Dispersion:           pick(f.Dispersion),
		DispersionScaled:     pick(f.DispersionScaled),
	}
	if f.IsVariable != nil {
		out.IsVariable = make([]bool, len(idx))
		for i, j := range idx {
			out.IsVariable[i] = f.IsVariable[j]
		}
	}
	for _, g := range f.Variable {
		if keep[g] {
			out.Variable = append(out.Variable, g)
		}
	}
	return out
}

// VariableFeatures returns the ranked variable genes, or nil.
func (ds *Dataset) VariableFeatures() []string {
	if ds.Features == nil {
		return nil
	}
	return ds.Features.Variable
}

func subsetRows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	if len(idx) == 0 || c == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(idx), c, nil)
	for i, j := range idx {
		out.SetRow(i, m.RawRowView(j))
	}
	return out
}

func subsetCols(m *mat.Dense, idx []int) *mat.Dense {
	r, _ := m.Dims()
	if len(idx) == 0 || r == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(r, len(idx), nil)
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		dst := out.RawRowView(i)
		for k, j := range idx {
			dst[k] = row[j]
		}
	}
	return out
}

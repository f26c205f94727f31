package plots

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"scflow/internal/dataset"
	"scflow/internal/sparse"
)

// small builds 40 cells × 6 genes with two identities, a scaled block, a
// "pca" reduction with loadings and variable-feature statistics.
func small(t *testing.T) *dataset.Dataset {
	t.Helper()
	r := rand.New(rand.NewPCG(5, 6))
	genes := []string{"CD3E", "MS4A1", "LYZ", "NKG7", "PPBP", "GNLY"}
	n := 40
	rows := make([][]float64, len(genes))
	for g := range rows {
		rows[g] = make([]float64, n)
		for c := range rows[g] {
			if r.Float64() < 0.6 {
				rows[g][c] = float64(1 + r.IntN(5))
			}
		}
	}
	cells := make([]string, n)
	ids := make([]string, n)
	for c := range cells {
		cells[c] = fmt.Sprintf("cell%d", c)
		ids[c] = fmt.Sprint(c % 2)
	}
	m, err := sparse.FromDense(len(genes), n, rows)
	require.NoError(t, err)
	ds, err := dataset.New("t", genes, cells, m, dataset.Options{})
	require.NoError(t, err)
	ds.Data = ds.Counts
	require.NoError(t, ds.SetIdents(ids))
	require.NoError(t, ds.Meta.SetNumeric("nCount_RNA", ds.Counts.ColSums()))

	sc := mat.NewDense(len(genes), n, nil)
	for g := range genes {
		for c := 0; c < n; c++ {
			sc.Set(g, c, r.NormFloat64()*2)
		}
	}
	ds.Scaled = dataset.NewScaled(genes, sc)

	emb := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		for d := 0; d < 3; d++ {
			emb.Set(i, d, r.NormFloat64())
		}
	}
	load := mat.NewDense(len(genes), 3, nil)
	for i := range genes {
		for d := 0; d < 3; d++ {
			load.Set(i, d, r.NormFloat64())
		}
	}
	require.NoError(t, ds.AddReduction("pca", &dataset.Reduction{
		Key: "PC_", Embeddings: emb, Loadings: load, LoadingGenes: genes, Stdev: []float64{3, 2, 1},
	}))
	ds.Features = &dataset.FeatureStats{
		Mean:                 []float64{1, 2, 0, 0.5, 3, 1.5},
		VarianceStandardized: []float64{1, 5, 0, 2, 4, 0.3},
		IsVariable:           []bool{false, true, false, true, true, false},
		Variable:             []string{"MS4A1", "PPBP", "NKG7"},
	}
	return ds
}

func assertJPEG(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(b), 2)
	assert.True(t, bytes.HasPrefix(b, []byte{0xFF, 0xD8}), "%s is not a JPEG", path)
}

func TestAllPlotsWriteJPEG(t *testing.T) {
	ds := small(t)
	dir := t.TempDir()
	o := Options{Width: 3, Height: 2.5, DPI: 50}
	p := func(name string) string { return filepath.Join(dir, name+".jpg") }

	require.NoError(t, Violin(p("violin"), ds, []string{"nCount_RNA", "LYZ"}, "", o))
	require.NoError(t, Ridge(p("ridge"), ds, []string{"CD3E", "GNLY"}, "", o))
	require.NoError(t, FeatureScatter(p("scatter"), ds, "nCount_RNA", "LYZ", "orig.ident", o))
	require.NoError(t, FeatureScatters(p("scatters"), ds, [][2]string{{"nCount_RNA", "LYZ"}, {"CD3E", "GNLY"}}, "", o))
	require.NoError(t, VariableFeatures(p("hvg"), ds, 2, o))
	red := ds.Reductions["pca"]
	require.NoError(t, Elbow(p("elbow"), red, 20, o))
	require.NoError(t, DimLoadings(p("loadings"), red, []int{0, 1}, 4, o))
	require.NoError(t, Dim(p("dim"), ds, "pca", "", true, o))
	require.NoError(t, Feature(p("feature"), ds, "pca", []string{"LYZ", "NKG7", "PPBP", "CD3E"}, o))
	skipped, err := Heatmap(p("heatmap"), ds, []string{"LYZ", "nope", "CD3E", "LYZ"}, "", o)
	require.NoError(t, err)
	assert.Equal(t, []string{"nope"}, skipped)
	require.NoError(t, DimHeatmap(p("dimheatmap"), ds, "pca", []int{0, 2}, 20, 4, o))

	for _, name := range []string{"violin", "ridge", "scatter", "scatters", "hvg", "elbow", "loadings", "dim", "feature", "heatmap", "dimheatmap"} {
		assertJPEG(t, p(name))
	}
}

func TestPlotErrors(t *testing.T) {
	ds := small(t)
	dir := t.TempDir()
	o := DefaultOptions()

	err := Violin(filepath.Join(dir, "v.png"), ds, []string{"LYZ"}, "", o)
	require.ErrorIs(t, err, ErrFormat)
	err = Violin(filepath.Join(dir, "v.jpg"), ds, []string{"nope"}, "", o)
	require.ErrorIs(t, err, dataset.ErrUnknownColumn)
	err = Dim(filepath.Join(dir, "d.jpg"), ds, "umap", "", false, o)
	require.Error(t, err)
	_, err = Heatmap(filepath.Join(dir, "h.jpg"), ds, []string{"nope"}, "", o)
	require.ErrorIs(t, err, dataset.ErrUnknownGene)
	err = DimLoadings(filepath.Join(dir, "l.jpg"), ds.Reductions["pca"], []int{7}, 3, o)
	require.Error(t, err)

	ds.Features = nil
	require.Error(t, VariableFeatures(filepath.Join(dir, "x.jpg"), ds, 3, o))
}

func TestKDEIntegratesToAboutOne(t *testing.T) {
	vals := []float64{1, 1.5, 2, 2.2, 3, 3.1, 3.3, 4, 5}
	grid, dens := kde(vals, -5, 11)
	step := grid[1] - grid[0]
	total := 0.0
	for _, d := range dens {
		total += d * step
	}
	assert.InDelta(t, 1, total, 0.02)
	assert.Greater(t, bandwidth([]float64{2, 2, 2}), 0.0)
}

func TestGroupColors(t *testing.T) {
	few := groupColors([]string{"a", "b"})
	assert.Len(t, few, 2)
	many := make([]string, 12)
	for i := range many {
		many[i] = fmt.Sprint(i)
	}
	assert.Len(t, groupColors(many), 12)
}

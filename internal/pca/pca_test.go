package pca

import (
	"bytes"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"scflow/internal/dataset"
	"scflow/internal/sparse"
)

// fixture has 5 genes over 60 cells: A and B follow a shared latent factor,
// C is noise, D is the negative of A and flat is constant.
func fixture(t *testing.T) *dataset.Dataset {
	t.Helper()
	genes := []string{"A", "B", "C", "D", "flat"}
	n := 60
	cells := make([]string, n)
	for i := range cells {
		cells[i] = fmt.Sprintf("cell%02d", i)
	}
	counts := sparse.New(len(genes), n)
	ds, err := dataset.New("t", genes, cells, counts, dataset.Options{})
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(1, 2))
	vals := mat.NewDense(len(genes), n, nil)
	for c := 0; c < n; c++ {
		z := r.NormFloat64() * 3
		vals.Set(0, c, z+0.1*r.NormFloat64())
		vals.Set(1, c, 0.5*z+0.1*r.NormFloat64())
		vals.Set(2, c, r.NormFloat64()*0.5)
		vals.Set(3, c, -z+0.1*r.NormFloat64())
		vals.Set(4, c, 0)
	}
	ds.Scaled = dataset.NewScaled(genes, vals)
	return ds
}

func TestRunProjectsAndCaps(t *testing.T) {
	ds := fixture(t)
	res, err := Run(ds, Options{Features: []string{"A", "B", "C", "D", "flat", "nope"}, NPCs: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, res.NPCs, "capped at usable features - 1")
	assert.Equal(t, []string{"A", "B", "C", "D"}, res.Features)
	assert.Equal(t, []string{"nope"}, res.Missing)

	red, err := ds.Reduction("pca")
	require.NoError(t, err)
	assert.Equal(t, "PC_", red.Key)
	assert.Equal(t, 3, red.Dims())

	// embeddings are the data projected on the loadings
	x := mat.NewDense(60, 4, nil)
	for j, g := range res.Features {
		r, _ := ds.Scaled.Row(g)
		x.SetCol(j, ds.Scaled.Values.RawRowView(r))
	}
	var proj mat.Dense
	proj.Mul(x, red.Loadings)
	assert.True(t, mat.EqualApprox(&proj, red.Embeddings, 1e-9))

	for k := 1; k < len(red.Stdev); k++ {
		assert.GreaterOrEqual(t, red.Stdev[k-1], red.Stdev[k])
	}
	// the first component carries the shared factor
	assert.Greater(t, VarianceExplained(red)[0], 0.9)
}

func TestRunSignConvention(t *testing.T) {
	ds := fixture(t)
	_, err := Run(ds, Options{Features: []string{"A", "B", "C", "D"}})
	require.NoError(t, err)
	red := ds.Reductions["pca"]
	g, d := red.Loadings.Dims()
	for k := 0; k < d; k++ {
		best := 0.0
		for i := 0; i < g; i++ {
			if math.Abs(red.Loadings.At(i, k)) > math.Abs(best) {
				best = red.Loadings.At(i, k)
			}
		}
		assert.Greater(t, best, 0.0, "component %d", k+1)
	}
}

func TestTopFeaturesAndReport(t *testing.T) {
	ds := fixture(t)
	_, err := Run(ds, Options{Features: []string{"A", "B", "C", "D"}, Name: "pca", NPCs: 2})
	require.NoError(t, err)
	red := ds.Reductions["pca"]

	pos, neg, err := TopFeatures(red, 0, 1)
	require.NoError(t, err)
	// A and D are the extreme loadings of PC1, with opposite signs
	assert.ElementsMatch(t, []string{"A", "D"}, append(pos, neg...))

	_, _, err = TopFeatures(red, 5, 1)
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, Report(&buf, red, []int{0, 1}, 2))
	out := buf.String()
	assert.Contains(t, out, "PC_1\nPositive:  ")
	assert.Contains(t, out, "PC_2\nPositive:  ")
	assert.Contains(t, out, "Negative:  ")
}

func TestRunErrors(t *testing.T) {
	ds := fixture(t)
	_, err := Run(ds, Options{Features: []string{"flat", "A"}})
	require.ErrorIs(t, err, ErrNoComponents)

	_, err = Run(ds, Options{Features: []string{"A", "B"}, NPCs: -1})
	require.ErrorIs(t, err, ErrNoComponents)

	_, err = Run(ds, Options{})
	require.Error(t, err, "no variable features")

	ds.Scaled = nil
	_, err = Run(ds, Options{Features: []string{"A"}})
	require.Error(t, err)
}

package cellcycle

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scflow/internal/dataset"
	"scflow/internal/sparse"
)

func TestPhase(t *testing.T) {
	for _, tc := range []struct {
		s, g float64
		want string
	}{
		{-0.1, -0.2, G1},
		{0.3, -0.2, S},
		{-0.3, 0.2, G2M},
		{0.2, 0.2, Undecided},
		{0, -1, S},
	} {
		assert.Equal(t, tc.want, Phase(tc.s, tc.g), "%v", tc)
	}
}

func TestEqualCountBins(t *testing.T) {
	avg := []float64{5, 1, 3, 2, 4, 0}
	assert.Equal(t, []int{2, 0, 1, 1, 2, 0}, equalCountBins(avg, 3))
	assert.Equal(t, []int{1, 0}, equalCountBins([]float64{2, 1}, 24))
}

func TestSampleWithoutReplacement(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	pool := []int{4, 8, 15, 16, 23, 42}
	got := sample(rng, pool, 4)
	assert.Len(t, got, 4)
	seen := map[int]bool{}
	for _, v := range got {
		assert.Contains(t, pool, v)
		assert.False(t, seen[v])
		seen[v] = true
	}
	assert.Len(t, sample(rng, pool, 100), len(pool))
	assert.Equal(t, []int{4, 8, 15, 16, 23, 42}, pool, "pool is not modified")
}

// cycling has S genes at 3 in cells 0-9, G2M genes at 3 in cells 10-19 and
// background genes near 1 everywhere; cells 20-29 express neither module.
func cycling(t *testing.T) *dataset.Dataset {
	t.Helper()
	sGenes := []string{"S1", "S2", "S3"}
	gGenes := []string{"G1", "G2", "G3"}
	genes := append(append([]string(nil), sGenes...), gGenes...)
	for i := 0; i < 18; i++ {
		genes = append(genes, fmt.Sprintf("B%d", i))
	}
	n := 30
	rows := make([][]float64, len(genes))
	for g := range rows {
		rows[g] = make([]float64, n)
		for c := 0; c < n; c++ {
			switch {
			case g < 3 && c < 10, g >= 3 && g < 6 && c >= 10 && c < 20:
				rows[g][c] = 3
			case g >= 6:
				rows[g][c] = 1 + 0.001*float64(g)
			}
		}
	}
	cells := make([]string, n)
	for i := range cells {
		cells[i] = fmt.Sprintf("c%d", i)
	}
	m, err := sparse.FromDense(len(genes), n, rows)
	require.NoError(t, err)
	ds, err := dataset.New("t", genes, cells, m, dataset.Options{})
	require.NoError(t, err)
	ds.Data = ds.Counts
	return ds
}

func TestScoreAssignsPhases(t *testing.T) {
	ds := cycling(t)
	res, err := Score(ds, []string{"S1", "S2", "S3", "NOPE"}, []string{"G1", "G2", "G3"}, Options{Bins: 2, Ctrl: 10, SetIdent: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"NOPE"}, res.S.Missing)
	assert.Equal(t, map[string]int{S: 10, G2M: 10, G1: 10}, res.Counts)

	phase, err := ds.Meta.String(ColPhase)
	require.NoError(t, err)
	assert.Equal(t, S, phase[0])
	assert.Equal(t, G2M, phase[15])
	assert.Equal(t, G1, phase[25])
	assert.Equal(t, phase, ds.Idents)

	old, err := ds.Meta.String(ColOldIdent)
	require.NoError(t, err)
	assert.Equal(t, "t", old[0])

	s, _ := ds.Meta.Numeric(ColS)
	g, _ := ds.Meta.Numeric(ColG2M)
	d, err := ds.Meta.Numeric(ColDiff)
	require.NoError(t, err)
	assert.InDelta(t, s[3]-g[3], d[3], 1e-12)
}

func TestScoreIsSeeded(t *testing.T) {
	a, b := cycling(t), cycling(t)
	ra, err := Score(a, []string{"S1", "S2"}, []string{"G1", "G2"}, Options{Bins: 3})
	require.NoError(t, err)
	rb, err := Score(b, []string{"S1", "S2"}, []string{"G1", "G2"}, Options{Bins: 3})
	require.NoError(t, err)
	assert.Equal(t, ra.S.Controls, rb.S.Controls)
	assert.Equal(t, ra.G2M.Scores, rb.G2M.Scores)
	assert.Equal(t, []string{"t"}, dataset.Levels(a.Idents), "identities unchanged without SetIdent")
}

func TestScoreUsesSeedZeroAsGiven(t *testing.T) {
	a, b := cycling(t), cycling(t)
	r0, err := Score(a, []string{"S1", "S2"}, []string{"G1", "G2"}, Options{Bins: 1, Ctrl: 3})
	require.NoError(t, err)
	r1, err := Score(b, []string{"S1", "S2"}, []string{"G1", "G2"}, Options{Bins: 1, Ctrl: 3, Seed: 1})
	require.NoError(t, err)
	assert.NotEqual(t, r0.S.Controls, r1.S.Controls, "seed 0 is not replaced by 1")
}

func TestScoreErrors(t *testing.T) {
	ds := cycling(t)
	_, err := Score(ds, []string{"X", "Y"}, []string{"G1"}, Options{})
	require.ErrorIs(t, err, dataset.ErrUnknownGene)

	ds.Data = nil
	_, err = Score(ds, []string{"S1"}, []string{"G1"}, Options{})
	require.Error(t, err)
}

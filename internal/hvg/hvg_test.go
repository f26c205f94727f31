package hvg

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scflow/internal/dataset"
	"scflow/internal/normalize"
	"scflow/internal/sparse"
)

func TestLoessReproducesQuadratic(t *testing.T) {
	var x, y []float64
	for i := 0; i < 50; i++ {
		v := float64(i) / 5
		x = append(x, v)
		y = append(y, 2+3*v+v*v)
	}
	fit := Loess(x, y, 0.3)
	for i := range x {
		assert.InDelta(t, y[i], fit[i], 1e-6, "x=%v", x[i])
	}
}

func TestLoessInterpolatesLargeInputs(t *testing.T) {
	var x, y []float64
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		v := r.Float64() * 10
		x = append(x, v)
		y = append(y, 1+2*v)
	}
	fit := Loess(x, y, 0.3)
	for i := range x {
		assert.InDelta(t, y[i], fit[i], 1e-6)
	}
}

func TestLoessTiesAndTinyInputs(t *testing.T) {
	fit := Loess([]float64{1, 1, 1}, []float64{2, 4, 6}, 0.3)
	for _, f := range fit {
		assert.InDelta(t, 4, f, 1e-9)
	}
	assert.Empty(t, Loess(nil, nil, 0.3))
}

// poissonish builds genes with increasing means plus one bimodal gene "HV".
func poissonish(t *testing.T) *dataset.Dataset {
	t.Helper()
	const cells, genes = 120, 80
	r := rand.New(rand.NewPCG(7, 7))
	var ts []sparse.Triplet
	names := make([]string, genes)
	for g := 0; g < genes; g++ {
		names[g] = fmt.Sprintf("G%02d", g)
		lambda := 0.2 + float64(g)/8
		for c := 0; c < cells; c++ {
			if v := poisson(r, lambda); v > 0 {
				ts = append(ts, sparse.Triplet{Row: g, Col: c, Val: v})
			}
		}
	}
	names[genes-1] = "HV"
	ts = filterRow(ts, genes-1)
	// mean 2 like its neighbors G14/G15, but all signal in one cell of ten
	for c := 0; c < cells; c += 10 {
		ts = append(ts, sparse.Triplet{Row: genes - 1, Col: c, Val: 20})
	}
	cellNames := make([]string, cells)
	for c := range cellNames {
		cellNames[c] = fmt.Sprintf("c%03d", c)
	}
	m, err := sparse.FromTriplets(genes, cells, ts)
	require.NoError(t, err)
	ds, err := dataset.New("hvg", names, cellNames, m, dataset.Options{})
	require.NoError(t, err)
	return ds
}

func filterRow(ts []sparse.Triplet, row int) []sparse.Triplet {
	out := ts[:0]
	for _, t := range ts {
		if t.Row != row {
			out = append(out, t)
		}
	}
	return out
}

func poisson(r *rand.Rand, lambda float64) float64 {
	l, k, p := math.Exp(-lambda), 0.0, 1.0
	for {
		p *= r.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

func TestVSTRanksBimodalGeneFirst(t *testing.T) {
	ds := poissonish(t)
	top, err := Find(context.Background(), ds, Options{NFeatures: 10, Threads: 3})
	require.NoError(t, err)
	require.Len(t, top, 10)
	assert.Equal(t, "HV", top[0])
	assert.Equal(t, top, Top(ds, 10))
	assert.Equal(t, VST, ds.Features.Method)

	hv, _ := ds.GeneIndex("HV")
	assert.True(t, ds.Features.IsVariable[hv])
	assert.Greater(t, ds.Features.VarianceStandardized[hv], 5.0)
	// Poisson genes sit near the fitted trend.
	g10, _ := ds.GeneIndex("G10")
	assert.Less(t, ds.Features.VarianceStandardized[g10], 3.0)
}

func TestVSTDeterministicAcrossThreads(t *testing.T) {
	a, err := Find(context.Background(), poissonish(t), Options{NFeatures: 20, Threads: 1})
	require.NoError(t, err)
	b, err := Find(context.Background(), poissonish(t), Options{NFeatures: 20, Threads: 8})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDispersionMethods(t *testing.T) {
	ds := poissonish(t)
	_, err := Find(context.Background(), ds, Options{Method: Dispersion})
	require.Error(t, err, "needs normalized data")

	require.NoError(t, normalize.Run(ds, normalize.Options{}))
	top, err := Find(context.Background(), ds, Options{Method: Dispersion, NFeatures: 5})
	require.NoError(t, err)
	assert.Equal(t, "HV", top[0])

	sel, err := Find(context.Background(), ds, Options{Method: MeanVarPlot})
	require.NoError(t, err)
	for _, g := range sel {
		i, _ := ds.GeneIndex(g)
		assert.Greater(t, ds.Features.Mean[i], 0.1)
		assert.Less(t, ds.Features.Mean[i], 8.0)
		assert.Greater(t, ds.Features.DispersionScaled[i], 1.0)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, err := Find(context.Background(), poissonish(t), Options{Method: "sct"})
	require.Error(t, err)
}

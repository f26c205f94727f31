package neighbors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"scflow/internal/dataset"
	"scflow/internal/sparse"
)

func TestKNNLineWithTies(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	nn, err := KNN(context.Background(), x, 2, Euclidean, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}, {1, 0}, {2, 1}, {3, 2}}, nn.Index)
	assert.Equal(t, []float64{0, 1}, nn.Dist[2])
}

func TestSNNJaccard(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	nn, err := KNN(context.Background(), x, 2, Euclidean, 1)
	require.NoError(t, err)
	g, err := SNN(context.Background(), nn, DefaultPrune, 2)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, g.Weight(0, 1), 1e-12)
	assert.InDelta(t, 1.0/3, g.Weight(0, 2), 1e-12)
	assert.InDelta(t, 1.0/3, g.Weight(1, 2), 1e-12)
	assert.InDelta(t, 1.0/3, g.Weight(3, 2), 1e-12)
	assert.Zero(t, g.Weight(1, 3))
	assert.Zero(t, g.Weight(0, 3))
	for i := 0; i < g.N(); i++ {
		assert.Zero(t, g.Weight(i, i))
	}

	pruned, err := SNN(context.Background(), nn, 0.5, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned.NumEdges())
}

func TestKNNCosine(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{1, 0, 5, 0, 0, 1})
	nn, err := KNN(context.Background(), x, 2, Cosine, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, nn.Index[0])
	assert.InDelta(t, 0, nn.Dist[0][1], 1e-12)
	assert.InDelta(t, 1, nn.Dist[2][1], 1e-12)
}

func TestKNNErrors(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{0, 1, 2})
	_, err := KNN(context.Background(), x, 3, Euclidean, 1)
	require.ErrorIs(t, err, ErrTooFewCells)
	_, err = KNN(context.Background(), x, 0, Euclidean, 1)
	require.Error(t, err)
	_, err = KNN(context.Background(), x, 2, "manhattan", 1)
	require.Error(t, err)
}

// blobs returns a dataset with a two-dimensional "pca" reduction holding two
// well separated groups of n points.
func blobs(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	cells := make([]string, 2*n)
	for i := range cells {
		cells[i] = fmt.Sprintf("c%d", i)
	}
	ds, err := dataset.New("t", []string{"g"}, cells, sparse.New(1, 2*n), dataset.Options{})
	require.NoError(t, err)
	r := rand.New(rand.NewPCG(3, 4))
	emb := mat.NewDense(2*n, 2, nil)
	for i := 0; i < 2*n; i++ {
		off := 0.0
		if i >= n {
			off = 100
		}
		emb.Set(i, 0, off+r.NormFloat64())
		emb.Set(i, 1, off+r.NormFloat64())
	}
	require.NoError(t, ds.AddReduction("pca", &dataset.Reduction{Key: "PC_", Embeddings: emb}))
	return ds
}

func TestFindNeighborsSeparatesGroups(t *testing.T) {
	ds := blobs(t, 15)
	require.NoError(t, FindNeighbors(context.Background(), ds, Options{Dims: 2, K: 5}))
	snn := ds.Graphs[GraphSNN]
	require.NotNil(t, snn)
	require.NotNil(t, ds.Graphs[GraphNN])
	for i, adj := range snn.Adj {
		for _, e := range adj {
			assert.Equal(t, i < 15, e.To < 15, "edge %d-%d crosses groups", i, e.To)
			assert.InDelta(t, e.Weight, snn.Weight(e.To, i), 0)
		}
	}
	assert.Greater(t, snn.NumEdges(), 0)
}

func TestFindNeighborsThreadsAgree(t *testing.T) {
	a, b := blobs(t, 40), blobs(t, 40)
	require.NoError(t, FindNeighbors(context.Background(), a, Options{Dims: 2, K: 10, Threads: 1}))
	require.NoError(t, FindNeighbors(context.Background(), b, Options{Dims: 2, K: 10, Threads: 7}))
	assert.Equal(t, a.Graphs[GraphSNN].Adj, b.Graphs[GraphSNN].Adj)
}

func TestFindNeighborsDimsOutOfRange(t *testing.T) {
	ds := blobs(t, 5)
	err := FindNeighbors(context.Background(), ds, Options{Dims: 3, K: 2})
	require.Error(t, err)
	err = FindNeighbors(context.Background(), ds, Options{Reduction: "umap", Dims: 2, K: 2})
	require.Error(t, err)
}

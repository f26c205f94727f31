package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Matrix {
	t.Helper()
	m, err := FromDense(3, 4, [][]float64{
		{1, 0, 0, 2},
		{0, 0, 3, 0},
		{4, 5, 0, 6},
	})
	require.NoError(t, err)
	return m
}

func TestFromTripletsSumsDuplicatesAndDropsZeros(t *testing.T) {
	m, err := FromTriplets(2, 2, []Triplet{
		{Row: 1, Col: 1, Val: 2},
		{Row: 1, Col: 1, Val: 3},
		{Row: 0, Col: 0, Val: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, m.NNZ())
	assert.Equal(t, 5.0, m.At(1, 1))
	assert.Equal(t, 0.0, m.At(0, 0))
}

func TestFromTripletsRejectsOutOfRange(t *testing.T) {
	_, err := FromTriplets(2, 2, []Triplet{{Row: 2, Col: 0, Val: 1}})
	require.ErrorIs(t, err, ErrShape)
}

func TestSums(t *testing.T) {
	m := sample(t)
	assert.Equal(t, []float64{5, 5, 3, 8}, m.ColSums())
	assert.Equal(t, []float64{3, 3, 15}, m.RowSums())
	assert.Equal(t, []int{2, 1, 1, 2}, m.ColNNZ())
	assert.Equal(t, []int{2, 1, 3}, m.RowNNZ())
}

func TestTranspose(t *testing.T) {
	m := sample(t)
	tr := m.Transpose()
	require.Equal(t, 4, tr.Rows)
	require.Equal(t, 3, tr.Cols)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			assert.Equal(t, m.At(r, c), tr.At(c, r), "(%d,%d)", r, c)
		}
	}
	assert.Equal(t, []float64{4, 5, 0, 6}, tr.ColDense(2))
}

func TestSubsetColsAndRows(t *testing.T) {
	m := sample(t)
	sc, err := m.SubsetCols([]int{3, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 6}, sc.ColDense(0))
	assert.Equal(t, []float64{1, 0, 4}, sc.ColDense(1))

	sr, err := m.SubsetRows([]int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, sr.Rows)
	assert.Equal(t, []float64{1, 4}, sr.ColDense(0))

	_, err = m.SubsetRows([]int{2, 0})
	require.ErrorIs(t, err, ErrShape)
}

func TestMapNonZeroKeepsPattern(t *testing.T) {
	m := sample(t)
	d := m.MapNonZero(func(_, _ int, v float64) float64 { return v * 10 })
	assert.Equal(t, m.NNZ(), d.NNZ())
	assert.Equal(t, 60.0, d.At(2, 3))
	assert.Equal(t, 6.0, m.At(2, 3), "source untouched")
}

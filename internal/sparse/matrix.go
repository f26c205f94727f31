// Package sparse holds the compressed-sparse-column matrix used for count and
// normalized expression data. Columns are cells, rows are genes.
package sparse

import (
	"errors"
	"fmt"
	"sort"
)

// ErrShape is returned when indices or dimensions do not agree.
var ErrShape = errors.New("sparse: shape mismatch")

// Matrix is a CSC matrix. Row indices inside a column are strictly increasing.
type Matrix struct {
	Rows, Cols int
	ColPtr     []int
	RowIdx     []int
	Val        []float64
}

// Triplet is one (row, col, value) entry used to build a Matrix.
type Triplet struct {
	Row, Col int
	Val      float64
}

// New returns an all-zero rows×cols matrix.
func New(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, ColPtr: make([]int, cols+1)}
}

// FromTriplets builds a Matrix. Duplicate (row, col) entries are summed and
// explicit zeros are dropped.
func FromTriplets(rows, cols int, ts []Triplet) (*Matrix, error) {
	for _, t := range ts {
		if t.Row < 0 || t.Row >= rows || t.Col < 0 || t.Col >= cols {
			return nil, fmt.Errorf("%w: entry (%d,%d) outside %dx%d", ErrShape, t.Row, t.Col, rows, cols)
		}
	}
	sorted := make([]Triplet, len(ts))
	copy(sorted, ts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Col != sorted[j].Col {
			return sorted[i].Col < sorted[j].Col
		}
		return sorted[i].Row < sorted[j].Row
	})

	m := &Matrix{Rows: rows, Cols: cols, ColPtr: make([]int, cols+1)}
	m.RowIdx = make([]int, 0, len(sorted))
	m.Val = make([]float64, 0, len(sorted))
	for i := 0; i < len(sorted); {
		t := sorted[i]
		v := t.Val
		j := i + 1
		for j < len(sorted) && sorted[j].Row == t.Row && sorted[j].Col == t.Col {
			v += sorted[j].Val
			j++
		}
		if v != 0 {
			m.RowIdx = append(m.RowIdx, t.Row)
			m.Val = append(m.Val, v)
			m.ColPtr[t.Col+1]++
		}
		i = j
	}
	for c := 0; c < cols; c++ {
		m.ColPtr[c+1] += m.ColPtr[c]
	}
	return m, nil
}

// FromDense builds a Matrix from row-major dense values (rows × cols).
func FromDense(rows, cols int, vals [][]float64) (*Matrix, error) {
	if len(vals) != rows {
		return nil, fmt.Errorf("%w: %d rows given, want %d", ErrShape, len(vals), rows)
	}
	var ts []Triplet
	for r, row := range vals {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, r, len(row), cols)
		}
		for c, v := range row {
			if v != 0 {
				ts = append(ts, Triplet{Row: r, Col: c, Val: v})
			}
		}
	}
	return FromTriplets(rows, cols, ts)
}

// NNZ is the number of stored entries.
func (m *Matrix) NNZ() int { return len(m.Val) }

// Col returns the row indices and values stored for column c. The slices alias
// the matrix storage.
func (m *Matrix) Col(c int) ([]int, []float64) {
	lo, hi := m.ColPtr[c], m.ColPtr[c+1]
	return m.RowIdx[lo:hi], m.Val[lo:hi]
}

// At returns the value at (r, c).
func (m *Matrix) At(r, c int) float64 {
	idx, val := m.Col(c)
	k := sort.SearchInts(idx, r)
	if k < len(idx) && idx[k] == r {
		return val[k]
	}
	return 0
}

// ColSums returns the per-column sum.
func (m *Matrix) ColSums() []float64 {
	out := make([]float64, m.Cols)
	for c := 0; c < m.Cols; c++ {
		_, val := m.Col(c)
		s := 0.0
		for _, v := range val {
			s += v
		}
		out[c] = s
	}
	return out
}

// ColNNZ returns the number of non-zero entries per column.
func (m *Matrix) ColNNZ() []int {
	out := make([]int, m.Cols)
	for c := 0; c < m.Cols; c++ {
		out[c] = m.ColPtr[c+1] - m.ColPtr[c]
	}
	return out
}

// RowNNZ returns the number of non-zero entries per row.
func (m *Matrix) RowNNZ() []int {
	out := make([]int, m.Rows)
	for _, r := range m.RowIdx {
		out[r]++
	}
	return out
}

// RowSums returns the per-row sum.
func (m *Matrix) RowSums() []float64 {
	out := make([]float64, m.Rows)
	for k, r := range m.RowIdx {
		out[r] += m.Val[k]
	}
	return out
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{
		Rows:   m.Rows,
		Cols:   m.Cols,
		ColPtr: append([]int(nil), m.ColPtr...),
		RowIdx: append([]int(nil), m.RowIdx...),
		Val:    append([]float64(nil), m.Val...),
	}
}

// MapNonZero returns a matrix with the same sparsity pattern and values
// fn(row, col, v). Entries mapped to zero are kept as explicit zeros.
func (m *Matrix) MapNonZero(fn func(r, c int, v float64) float64) *Matrix {
	out := m.Clone()
	for c := 0; c < m.Cols; c++ {
		for k := out.ColPtr[c]; k < out.ColPtr[c+1]; k++ {
			out.Val[k] = fn(out.RowIdx[k], c, out.Val[k])
		}
	}
	return out
}

// SubsetCols keeps the given columns in the given order.
func (m *Matrix) SubsetCols(cols []int) (*Matrix, error) {
	out := &Matrix{Rows: m.Rows, Cols: len(cols), ColPtr: make([]int, len(cols)+1)}
	for i, c := range cols {
		if c < 0 || c >= m.Cols {
			return nil, fmt.Errorf("%w: column %d outside [0,%d)", ErrShape, c, m.Cols)
		}
		idx, val := m.Col(c)
		out.RowIdx = append(out.RowIdx, idx...)
		out.Val = append(out.Val, val...)
		out.ColPtr[i+1] = len(out.Val)
	}
	return out, nil
}

// SubsetRows keeps the given rows. rows must be strictly increasing so that the
// per-column ordering of row indices is preserved.
func (m *Matrix) SubsetRows(rows []int) (*Matrix, error) {
	remap := make([]int, m.Rows)
	for i := range remap {
		remap[i] = -1
	}
	prev := -1
	for i, r := range rows {
		if r < 0 || r >= m.Rows {
			return nil, fmt.Errorf("%w: row %d outside [0,%d)", ErrShape, r, m.Rows)
		}
		if r <= prev {
			return nil, fmt.Errorf("%w: rows must be strictly increasing", ErrShape)
		}
		prev = r
		remap[r] = i
	}
	out := &Matrix{Rows: len(rows), Cols: m.Cols, ColPtr: make([]int, m.Cols+1)}
	for c := 0; c < m.Cols; c++ {
		idx, val := m.Col(c)
		for k, r := range idx {
			if nr := remap[r]; nr >= 0 {
				out.RowIdx = append(out.RowIdx, nr)
				out.Val = append(out.Val, val[k])
			}
		}
		out.ColPtr[c+1] = len(out.Val)
	}
	return out, nil
}

// Transpose returns the transposed matrix. Transposing a genes×cells matrix
// gives column access to genes, which is what per-gene statistics need.
func (m *Matrix) Transpose() *Matrix {
	out := &Matrix{Rows: m.Cols, Cols: m.Rows, ColPtr: make([]int, m.Rows+1)}
	for _, r := range m.RowIdx {
		out.ColPtr[r+1]++
	}
	for r := 0; r < m.Rows; r++ {
		out.ColPtr[r+1] += out.ColPtr[r]
	}
	out.RowIdx = make([]int, len(m.RowIdx))
	out.Val = make([]float64, len(m.Val))
	next := append([]int(nil), out.ColPtr[:m.Rows]...)
	for c := 0; c < m.Cols; c++ {
		idx, val := m.Col(c)
		for k, r := range idx {
			p := next[r]
			out.RowIdx[p] = c
			out.Val[p] = val[k]
			next[r]++
		}
	}
	return out
}

// ColDense returns column c as a dense slice of length Rows.
func (m *Matrix) ColDense(c int) []float64 {
	out := make([]float64, m.Rows)
	idx, val := m.Col(c)
	for k, r := range idx {
		out[r] = val[k]
	}
	return out
}

package dataset

import (
	"fmt"
	"sort"
	"strconv"
)

// Meta holds per-cell columns. A column is either numeric or categorical.
// Column order is insertion order; re-setting a column replaces it in place.
type Meta struct {
	n     int
	order []string
	num   map[string][]float64
	str   map[string][]string
}

// NewMeta returns empty metadata for n cells.
func NewMeta(n int) *Meta {
	return &Meta{n: n, num: map[string][]float64{}, str: map[string][]string{}}
}

// Len is the number of cells.
func (m *Meta) Len() int { return m.n }

// Columns returns column names in insertion order.
func (m *Meta) Columns() []string { return append([]string(nil), m.order...) }

// Has reports whether a column exists.
func (m *Meta) Has(name string) bool {
	_, n := m.num[name]
	_, s := m.str[name]
	return n || s
}

// IsNumeric reports whether name is a numeric column.
func (m *Meta) IsNumeric(name string) bool {
	_, ok := m.num[name]
	return ok
}

func (m *Meta) touch(name string) {
	if !m.Has(name) {
		m.order = append(m.order, name)
	}
}

// SetNumeric stores a numeric column, replacing any column with that name.
func (m *Meta) SetNumeric(name string, vals []float64) error {
	if len(vals) != m.n {
		return fmt.Errorf("%w: column %q has %d values for %d cells", ErrShape, name, len(vals), m.n)
	}
	m.touch(name)
	delete(m.str, name)
	m.num[name] = append([]float64(nil), vals...)
	return nil
}

// SetString stores a categorical column, replacing any column with that name.
func (m *Meta) SetString(name string, vals []string) error {
	if len(vals) != m.n {
		return fmt.Errorf("%w: column %q has %d values for %d cells", ErrShape, name, len(vals), m.n)
	}
	m.touch(name)
	delete(m.num, name)
	m.str[name] = append([]string(nil), vals...)
	return nil
}

// Numeric returns a numeric column.
func (m *Meta) Numeric(name string) ([]float64, error) {
	v, ok := m.num[name]
	if !ok {
		if _, isStr := m.str[name]; isStr {
			return nil, fmt.Errorf("%w: column %q is categorical", ErrUnknownColumn, name)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return v, nil
}

// String returns a column rendered as strings. Numeric columns are formatted
// with %g.
func (m *Meta) String(name string) ([]string, error) {
	if v, ok := m.str[name]; ok {
		return v, nil
	}
	if v, ok := m.num[name]; ok {
		out := make([]string, len(v))
		for i, x := range v {
			out[i] = fmt.Sprintf("%g", x)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
}

// Remove deletes a column if present.
func (m *Meta) Remove(name string) {
	if !m.Has(name) {
		return
	}
	delete(m.num, name)
	delete(m.str, name)
	for i, c := range m.order {
		if c == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Meta) subset(idx []int) *Meta {
	out := NewMeta(len(idx))
	out.order = append(out.order, m.order...)
	for k, v := range m.num {
		nv := make([]float64, len(idx))
		for i, j := range idx {
			nv[i] = v[j]
		}
		out.num[k] = nv
	}
	for k, v := range m.str {
		nv := make([]string, len(idx))
		for i, j := range idx {
			nv[i] = v[j]
		}
		out.str[k] = nv
	}
	return out
}

// Levels returns the distinct values of a categorical vector, ordered
// numerically when every value parses as a number and lexically otherwise.
func Levels(vals []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	allNum := true
	nums := make(map[string]float64, len(out))
	for _, v := range out {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			allNum = false
			break
		}
		nums[v] = f
	}
	sort.SliceStable(out, func(i, j int) bool {
		if allNum {
			return nums[out[i]] < nums[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

package output

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"scflow/internal/dataset"
	"scflow/pkg/api"
)

// CellColumn names one per-cell column of the cells table.
type CellColumn struct {
	Name  string
	Value func(i int) string
}

// CellColumns lists ident, every metadata column in order, then the first
// dims embedding columns of each named reduction that exists.
func CellColumns(ds *dataset.Dataset, reductions []string, dims int) ([]CellColumn, error) {
	cols := []CellColumn{{Name: "ident", Value: func(i int) string { return ds.Idents[i] }}}
	for _, name := range ds.Meta.Columns() {
		if ds.Meta.IsNumeric(name) {
			v, err := ds.Meta.Numeric(name)
			if err != nil {
				return nil, err
			}
			cols = append(cols, CellColumn{Name: name, Value: func(i int) string { return Num(v[i]) }})
			continue
		}
		v, err := ds.Meta.String(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, CellColumn{Name: name, Value: func(i int) string { return v[i] }})
	}
	for _, rname := range reductions {
		red, ok := ds.Reductions[rname]
		if !ok {
			continue
		}
		n := red.Dims()
		if dims > 0 && dims < n {
			n = dims
		}
		for d := 0; d < n; d++ {
			cols = append(cols, CellColumn{
				Name:  fmt.Sprintf("%s%d", red.Key, d+1),
				Value: func(i int) string { return Num(red.Embeddings.At(i, d)) },
			})
		}
	}
	return cols, nil
}

// WriteCells writes one TSV row per cell with a header.
func WriteCells(w io.Writer, ds *dataset.Dataset, reductions []string, dims int) error {
	cols, err := CellColumns(ds, reductions, dims)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	names := make([]string, 0, len(cols)+1)
	names = append(names, "cell")
	for _, c := range cols {
		names = append(names, c.Name)
	}
	if _, err := fmt.Fprintln(bw, strings.Join(names, "\t")); err != nil {
		return err
	}
	row := make([]string, len(names))
	for i, cell := range ds.Cells {
		row[0] = cell
		for j, c := range cols {
			row[j+1] = c.Value(i)
		}
		if _, err := fmt.Fprintln(bw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ToAPICells converts per-cell results to the stable wire schema (v1).
func ToAPICells(ds *dataset.Dataset, reductions []string, dims int) ([]api.CellV1, error) {
	out := make([]api.CellV1, len(ds.Cells))
	for i, cell := range ds.Cells {
		out[i] = api.CellV1{Cell: cell, Ident: ds.Idents[i], Meta: map[string]any{}, Embed: map[string]float64{}}
	}
	for _, name := range ds.Meta.Columns() {
		if ds.Meta.IsNumeric(name) {
			v, _ := ds.Meta.Numeric(name)
			for i := range out {
				if !math.IsNaN(v[i]) {
					out[i].Meta[name] = v[i]
				}
			}
			continue
		}
		v, err := ds.Meta.String(name)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].Meta[name] = v[i]
		}
	}
	for _, rname := range reductions {
		red, ok := ds.Reductions[rname]
		if !ok {
			continue
		}
		n := red.Dims()
		if dims > 0 && dims < n {
			n = dims
		}
		for d := 0; d < n; d++ {
			key := fmt.Sprintf("%s%d", red.Key, d+1)
			for i := range out {
				out[i].Embed[key] = red.Embeddings.At(i, d)
			}
		}
	}
	return out, nil
}

// Package exprtsv reads tab-delimited genes × cells expression matrices.
package exprtsv

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"scflow/internal/dataset"
	"scflow/internal/fileio"
	"scflow/internal/sparse"
)

// Matrix is a parsed expression table.
type Matrix struct {
	Genes  []string
	Cells  []string
	Counts *sparse.Matrix
}

// Read parses path. The first non-comment line is the header of cell names.
// It either has one field per value column, or one extra leading field that
// labels the gene-name column. Each following line is a gene name followed by
// one value per cell. Values may be integers or reals; "NA" is rejected.
func Read(path string) (*Matrix, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		header []string
		genes  []string
		ts     []sparse.Triplet
		ln     int
	)
	sc := fileio.NewScanner(rc)
	for sc.Scan() {
		ln++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || line[0] == '#' {
			continue
		}
		f := strings.Split(line, "\t")
		if header == nil {
			header = f
			continue
		}
		switch n := len(f) - 1; {
		case n == len(header):
		case n == len(header)-1 && len(genes) == 0:
			// header carries a label for the gene column
			header = header[1:]
		default:
			return nil, fmt.Errorf("%s:%d has %d values, header lists %d cells", path, ln, len(f)-1, len(header))
		}
		row := len(genes)
		genes = append(genes, unquote(f[0]))
		for c, s := range f[1:] {
			if s == "" || s == "0" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d column %d: %w", path, ln, c+2, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("%s:%d column %d: value %q must be finite and non-negative", path, ln, c+2, s)
			}
			if v != 0 {
				ts = append(ts, sparse.Triplet{Row: row, Col: c, Val: v})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s:%d %w", path, ln, err)
	}
	if header == nil || len(genes) == 0 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}
	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = unquote(h)
	}
	counts, err := sparse.FromTriplets(len(genes), len(cells), ts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Matrix{
		Genes:  dataset.MakeUnique(genes),
		Cells:  dataset.MakeUnique(cells),
		Counts: counts,
	}, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

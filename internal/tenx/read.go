// Package tenx reads 10x Genomics Cell Ranger matrix directories
// (matrix.mtx, features.tsv or genes.tsv, barcodes.tsv; optionally gzipped).
package tenx

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"scflow/internal/dataset"
	"scflow/internal/fileio"
	"scflow/internal/sparse"
)

// ErrMissingFile is returned when a required file is absent from the directory.
var ErrMissingFile = errors.New("tenx: missing file")

// Options controls Read.
type Options struct {
	// GeneColumn is the 1-based column of features.tsv holding gene names.
	// Column 2 holds symbols; when a file has fewer columns, column 1 is used.
	GeneColumn int
}

// Matrix is the raw content of a 10x directory.
type Matrix struct {
	Genes   []string
	Cells   []string
	Counts  *sparse.Matrix // genes × cells
	GeneIDs []string       // column 1 of the features file
}

// Read loads a 10x directory.
func Read(dir string, o Options) (*Matrix, error) {
	if o.GeneColumn <= 0 {
		o.GeneColumn = 2
	}
	mtxPath, err := fileio.FirstExisting(dir, "matrix.mtx")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingFile, err)
	}
	featPath, err := fileio.FirstExisting(dir, "features.tsv", "genes.tsv")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingFile, err)
	}
	bcPath, err := fileio.FirstExisting(dir, "barcodes.tsv")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingFile, err)
	}

	ids, names, err := readFeatures(featPath, o.GeneColumn)
	if err != nil {
		return nil, err
	}
	cells, err := readBarcodes(bcPath)
	if err != nil {
		return nil, err
	}
	counts, err := ReadMTX(mtxPath)
	if err != nil {
		return nil, err
	}
	if counts.Rows != len(names) {
		return nil, fmt.Errorf("%s: matrix has %d rows but %s lists %d features", mtxPath, counts.Rows, featPath, len(names))
	}
	if counts.Cols != len(cells) {
		return nil, fmt.Errorf("%s: matrix has %d columns but %s lists %d barcodes", mtxPath, counts.Cols, bcPath, len(cells))
	}
	return &Matrix{
		Genes:   dataset.MakeUnique(names),
		Cells:   dataset.MakeUnique(cells),
		Counts:  counts,
		GeneIDs: ids,
	}, nil
}

func readFeatures(path string, col int) (ids, names []string, err error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	sc := fileio.NewScanner(rc)
	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		f := strings.Split(line, "\t")
		ids = append(ids, f[0])
		switch {
		case col <= len(f):
			names = append(names, f[col-1])
		default:
			names = append(names, f[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("%s:%d %w", path, ln, err)
	}
	return ids, names, nil
}

func readBarcodes(path string) ([]string, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out []string
	sc := fileio.NewScanner(rc)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, strings.Fields(line)[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// ReadMTX parses a MatrixMarket coordinate file (integer or real, general).
func ReadMTX(path string) (*sparse.Matrix, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sc := fileio.NewScanner(rc)
	ln := 0
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, fmt.Errorf("%s: empty file", path)
	}
	ln++
	header := strings.Fields(strings.ToLower(sc.Text()))
	if len(header) < 5 || header[0] != "%%matrixmarket" || header[1] != "matrix" {
		return nil, fmt.Errorf("%s:%d not a MatrixMarket header", path, ln)
	}
	if header[2] != "coordinate" {
		return nil, fmt.Errorf("%s:%d unsupported format %q (want coordinate)", path, ln, header[2])
	}
	switch header[3] {
	case "integer", "real":
	default:
		return nil, fmt.Errorf("%s:%d unsupported field %q", path, ln, header[3])
	}
	if header[4] != "general" {
		return nil, fmt.Errorf("%s:%d unsupported symmetry %q", path, ln, header[4])
	}

	var rows, cols, nnz int
	sized := false
	var ts []sparse.Triplet
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '%' {
			continue
		}
		f := strings.Fields(line)
		if !sized {
			if len(f) != 3 {
				return nil, fmt.Errorf("%s:%d bad size line", path, ln)
			}
			if rows, err = strconv.Atoi(f[0]); err != nil {
				return nil, fmt.Errorf("%s:%d bad row count: %w", path, ln, err)
			}
			if cols, err = strconv.Atoi(f[1]); err != nil {
				return nil, fmt.Errorf("%s:%d bad column count: %w", path, ln, err)
			}
			if nnz, err = strconv.Atoi(f[2]); err != nil {
				return nil, fmt.Errorf("%s:%d bad entry count: %w", path, ln, err)
			}
			ts = make([]sparse.Triplet, 0, nnz)
			sized = true
			continue
		}
		if len(f) != 3 {
			return nil, fmt.Errorf("%s:%d bad field count", path, ln)
		}
		r, err1 := strconv.Atoi(f[0])
		c, err2 := strconv.Atoi(f[1])
		v, err3 := strconv.ParseFloat(f[2], 64)
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("%s:%d %w", path, ln, err)
		}
		if r < 1 || r > rows || c < 1 || c > cols {
			return nil, fmt.Errorf("%s:%d entry (%d,%d) outside %dx%d", path, ln, r, c, rows, cols)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%s:%d column 3: count %q must be finite and non-negative", path, ln, f[2])
		}
		ts = append(ts, sparse.Triplet{Row: r - 1, Col: c - 1, Val: v})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s:%d %w", path, ln, err)
	}
	if !sized {
		return nil, fmt.Errorf("%s: missing size line", path)
	}
	if len(ts) != nnz {
		return nil, fmt.Errorf("%s: header declares %d entries, found %d", path, nnz, len(ts))
	}
	return sparse.FromTriplets(rows, cols, ts)
}

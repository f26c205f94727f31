// internal/writers/registry.go
package writers

import (
	"fmt"
	"io"
	"sort"

	"scflow/internal/dataset"
	"scflow/internal/markers"
)

// MarkerWriterFunc writes a whole marker table.
type MarkerWriterFunc func(w io.Writer, list []markers.Marker, header bool) error

// CellWriterFunc writes per-cell results.
type CellWriterFunc func(w io.Writer, ds *dataset.Dataset, reductions []string, dims int) error

// Writer registries (format → handler). Registered in init() blocks of the
// marker and cell writer files.
var (
	MarkerWriters = map[string]MarkerWriterFunc{}
	CellWriters   = map[string]CellWriterFunc{}
)

// Register helpers (idempotent last-wins)
func RegisterMarkers(format string, fn MarkerWriterFunc) { MarkerWriters[format] = fn }
func RegisterCells(format string, fn CellWriterFunc)     { CellWriters[format] = fn }

// Formats lists the formats with both a marker and a cell writer.
func Formats() []string {
	var out []string
	for f := range MarkerWriters {
		if _, ok := CellWriters[f]; ok {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// WriteMarkers dispatches to the registered marker writer.
func WriteMarkers(format string, w io.Writer, list []markers.Marker, header bool) error {
	fn, ok := MarkerWriters[format]
	if !ok {
		return fmt.Errorf("unknown marker format %q (no writer registered)", format)
	}
	return fn(w, list, header)
}

// WriteCells dispatches to the registered cell writer.
func WriteCells(format string, w io.Writer, ds *dataset.Dataset, reductions []string, dims int) error {
	fn, ok := CellWriters[format]
	if !ok {
		return fmt.Errorf("unknown cell format %q (no writer registered)", format)
	}
	return fn(w, ds, reductions, dims)
}

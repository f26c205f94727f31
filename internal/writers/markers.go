package writers

import (
	"encoding/json"
	"io"

	"scflow/internal/dataset"
	"scflow/internal/markers"
	"scflow/internal/output"
	"scflow/pkg/api"
)

func init() {
	RegisterMarkers(output.FormatText, output.WriteMarkersText)
	RegisterMarkers(output.FormatJSON, func(w io.Writer, list []markers.Marker, _ bool) error {
		return output.WriteMarkersJSON(w, list)
	})
	RegisterMarkers(output.FormatJSONL, func(w io.Writer, list []markers.Marker, _ bool) error {
		return WriteJSONL(w, list, output.ToAPIMarker)
	})

	RegisterCells(output.FormatText, output.WriteCells)
	RegisterCells(output.FormatJSON, func(w io.Writer, ds *dataset.Dataset, reductions []string, dims int) error {
		cells, err := output.ToAPICells(ds, reductions, dims)
		if err != nil {
			return err
		}
		return output.EncodePretty(w, cells)
	})
	RegisterCells(output.FormatJSONL, func(w io.Writer, ds *dataset.Dataset, reductions []string, dims int) error {
		cells, err := output.ToAPICells(ds, reductions, dims)
		if err != nil {
			return err
		}
		return WriteJSONL(w, cells, func(c api.CellV1) api.CellV1 { return c })
	})
}

// Extension returns the file extension used for format.
func Extension(format string) string {
	if format == output.FormatText {
		return "tsv"
	}
	return format
}

// StartMarkerWriter spins up a writer goroutine for markers. JSONL streams
// each marker as it arrives; text and json collect the table first.
func StartMarkerWriter(out io.Writer, format string, header bool, bufSize int) (chan<- markers.Marker, <-chan error) {
	if format == output.FormatJSONL {
		return StartJSONL(out, bufSize, func(enc *json.Encoder, m markers.Marker) error {
			return enc.Encode(output.ToAPIMarker(m))
		})
	}
	if bufSize <= 0 {
		bufSize = 64
	}
	in := make(chan markers.Marker, bufSize)
	errCh := make(chan error, 1)
	go func() {
		var buf []markers.Marker
		for m := range in {
			buf = append(buf, m)
		}
		err := WriteMarkers(format, out, buf, header)
		if IsBrokenPipe(err) {
			err = nil
		}
		errCh <- err
	}()
	return in, errCh
}

// internal/output/text.go
package output

import (
	"bufio"
	"fmt"
	"io"

	"scflow/internal/markers"
)

// WriteMarkersText prints a TSV table, choosing the roc layout when the
// markers carry no p-values.
func WriteMarkersText(w io.Writer, list []markers.Marker, header bool) error {
	roc := IsROC(list)
	if header {
		h := MarkerHeader
		if roc {
			h = ROCHeader
		}
		if _, err := fmt.Fprintln(w, h); err != nil {
			return err
		}
	}
	for _, m := range list {
		row := FormatMarkerRow(m)
		if roc {
			row = FormatROCRow(m)
		}
		if _, err := fmt.Fprintln(w, row); err != nil {
			return err
		}
	}
	return nil
}

// StreamMarkersText writes p-value markers as they arrive.
func StreamMarkersText(w io.Writer, in <-chan markers.Marker, header bool) error {
	bw := bufio.NewWriter(w)
	if header {
		if _, err := fmt.Fprintln(bw, MarkerHeader); err != nil {
			return err
		}
	}
	for m := range in {
		if _, err := fmt.Fprintln(bw, FormatMarkerRow(m)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

package writers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"scflow/internal/output"
	"scflow/pkg/api"
)

// StartPhaseWriter streams cell-cycle assignments in format.
func StartPhaseWriter(out io.Writer, format string, header bool, bufSize int) (chan<- api.PhaseV1, <-chan error) {
	switch format {
	case output.FormatJSONL:
		return StartJSONL(out, bufSize, func(enc *json.Encoder, p api.PhaseV1) error { return enc.Encode(p) })
	}
	if bufSize <= 0 {
		bufSize = 64
	}
	in := make(chan api.PhaseV1, bufSize)
	errCh := make(chan error, 1)
	go func() {
		var err error
		switch format {
		case output.FormatJSON:
			var buf []api.PhaseV1
			for p := range in {
				buf = append(buf, p)
			}
			err = output.EncodePretty(out, buf)
		case output.FormatText:
			bw := bufio.NewWriter(out)
			if header {
				_, err = fmt.Fprintln(bw, output.PhaseHeader)
			}
			for p := range in {
				if err == nil {
					_, err = fmt.Fprintln(bw, output.FormatPhaseRow(p))
				}
			}
			if err == nil {
				err = bw.Flush()
			}
		default:
			for range in {
			}
			err = fmt.Errorf("unknown phase format %q", format)
		}
		if IsBrokenPipe(err) {
			err = nil
		}
		errCh <- err
	}()
	return in, errCh
}

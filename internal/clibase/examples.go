// internal/clibase/examples.go
package clibase

import (
	"fmt"
	"io"
)

// PrintExamples prints a small quickstart header and one example per line,
// followed by a one-line tip to discover full help.
func PrintExamples(out io.Writer, name string, lines []string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s — quickstart\n\n", name)
	for _, l := range lines {
		_, _ = fmt.Fprintf(out, "  %s\n", l)
	}
	_, _ = fmt.Fprintln(out, "\nTip: run with --help for all flags.")
}

// internal/clibase/usage.go
package clibase

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scflow/internal/version"
)

// UsageCommon sets the shared help header on cmd. extra is appended as a
// tool-specific section.
func UsageCommon(cmd *cobra.Command, name, summary, extra string) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s – %s\n\n", name, summary)
	fmt.Fprintf(&b, "Version: %s\n", version.Version)
	if extra != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(extra, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("\nParameters may also come from --config or SCFLOW_<SECTION>_<KEY> environment variables;\nflags given on the command line win.")
	cmd.Long = b.String()
}

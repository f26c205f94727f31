// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"scflow/internal/appcore"
	"scflow/internal/cellcycleapp"
	"scflow/internal/pbmcapp"
	"scflow/internal/version"
	"scflow/internal/writers"
)

// NewCommand builds the scflow root command with its workflow subcommands.
func NewCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "scflow",
		Short:         "Single-cell RNA-seq workflows",
		Long:          "scflow – single-cell RNA-seq clustering and cell-cycle workflows\n\nVersion: " + version.Version,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(
		pbmcapp.NewCommand(stdout, stderr, code),
		cellcycleapp.NewCommand(stdout, stderr, code),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(stdout, "scflow", version.Version)
				return err
			},
		},
		&cobra.Command{
			Use:   "formats",
			Short: "List output formats",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(stdout, strings.Join(writers.Formats(), "\n"))
				return err
			},
		},
	)
	return root
}

// RunContext dispatches argv to a subcommand and returns its exit code.
func RunContext(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	code := appcore.ExitOK
	root := NewCommand(stdout, stderr, &code)
	root.SetArgs(argv)
	if err := root.ExecuteContext(ctx); err != nil {
		if writers.IsBrokenPipe(err) {
			return appcore.ExitOK
		}
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return appcore.ExitUsage
	}
	return code
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

// internal/pbmcapp/app.go
package pbmcapp

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"scflow/internal/appcore"
	"scflow/internal/cli"
	"scflow/internal/clibase"
	"scflow/internal/cmdutil"
	"scflow/internal/config"
	"scflow/internal/markers"
	"scflow/internal/version"
)

var examples = []string{
	"scflow pbmc filtered_gene_bc_matrices/hg19/ -d pbmc3k",
	"scflow pbmc data/ --plot-genes MS4A1,CD79A,LYZ,GNLY --cluster-labels @labels.tsv",
	"scflow pbmc data/ -o jsonl --resolution 0.8 | head",
}

// NewCommand builds the pbmc command. The workflow's exit code is stored in
// code; a returned error from Execute is a usage error.
func NewCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	var o cli.PBMCOptions
	cmd := &cobra.Command{
		Use:           "pbmc [flags] <10x-directory>",
		Short:         "QC, cluster and find markers in a 10x PBMC dataset",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.Examples {
				clibase.PrintExamples(stdout, "scflow pbmc", examples)
				*code = appcore.ExitOK
				return nil
			}
			if err := cli.FinishPBMC(&o, args); err != nil {
				return err
			}
			p, err := config.Load(config.PBMC, o.ConfigFile, cmd.Flags())
			if err != nil {
				return err
			}
			*code = appcore.Run[markers.Marker](
				cmd.Context(), stdout, stderr,
				appcore.Options{Quiet: o.Quiet, NoResultExitCode: o.NoResultExitCode},
				func(ctx context.Context, send func(markers.Marker) error) (int, error) {
					log := cmdutil.NewLogger(stderr, o.Verbose, o.Quiet)
					defer func() { _ = log.Sync() }()
					return Workflow(ctx, log, &o, p, send)
				},
				appcore.NewMarkerWriterFactory(o.Output, o.Header),
			)
			return nil
		},
	}
	clibase.UsageCommon(cmd, "scflow pbmc", "single-cell clustering of a 10x count matrix",
		"Writes QC, PCA, UMAP and marker plots (.jpg), markers.<ext>, cells.<ext> and run.yaml\n"+
			"to --outdir; markers are also printed to stdout in --output format.")
	cli.RegisterPBMC(cmd.Flags(), &o)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

// RunContext parses argv and runs the pbmc workflow.
func RunContext(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	code := appcore.ExitOK
	cmd := NewCommand(stdout, stderr, &code)
	cmd.SetArgs(argv)
	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return appcore.ExitUsage
	}
	return code
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

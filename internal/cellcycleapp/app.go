package cellcycleapp

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
	"scflow/internal/version"
	"scflow/pkg/api"
)

var examples = []string{
	"scflow cellcycle nestorawa_forcellcycle_expressionMatrix.txt -d cc",
	"scflow cellcycle matrix.txt.gz --regev-genes regev_lab_cell_cycle_genes.txt",
	"scflow cellcycle matrix.txt --regress difference -o json > phases.json",
}

// NewCommand builds the cellcycle command; see pbmcapp.NewCommand for the
// exit code contract.
func NewCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	var o cli.CellCycleOptions
	cmd := &cobra.Command{
		Use:           "cellcycle [flags] <expression-matrix>",
		Short:         "Score cell-cycle phases and regress them out",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.Examples {
				clibase.PrintExamples(stdout, "scflow cellcycle", examples)
				*code = appcore.ExitOK
				return nil
			}
			if err := cli.FinishCellCycle(&o, args); err != nil {
				return err
			}
			p, err := config.Load(config.CellCycle, o.ConfigFile, cmd.Flags())
			if err != nil {
				return err
			}
			*code = appcore.Run[api.PhaseV1](
				cmd.Context(), stdout, stderr,
				appcore.Options{Quiet: o.Quiet, NoResultExitCode: o.NoResultExitCode},
				func(ctx context.Context, send func(api.PhaseV1) error) (int, error) {
					log := cmdutil.NewLogger(stderr, o.Verbose, o.Quiet)
					defer func() { _ = log.Sync() }()
					return Workflow(ctx, log, &o, p, send)
				},
				appcore.NewPhaseWriterFactory(o.Output, o.Header),
			)
			return nil
		},
	}
	clibase.UsageCommon(cmd, "scflow cellcycle", "cell-cycle scoring and regression of a genes x cells matrix",
		"Writes ridge and PCA plots (.jpg), pca_genes.txt, cells.<ext> and run.yaml to --outdir;\n"+
			"per-cell scores and phases are printed to stdout in --output format.")
	cli.RegisterCellCycle(cmd.Flags(), &o)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

// RunContext parses argv and runs the cellcycle workflow.
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

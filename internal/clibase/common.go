// internal/clibase/common.go
package clibase

import (
	"fmt"

	"github.com/spf13/pflag"

	"scflow/internal/config"
	"scflow/internal/writers"
)

// Common holds CLI fields shared by every workflow command.
type Common struct {
	// Input
	Input      string
	ConfigFile string

	// Output
	OutDir           string
	Output           string // text|json|jsonl
	Header           bool
	NoResultExitCode int

	// Misc
	Quiet    bool
	Verbose  bool
	Examples bool
}

// Register wires shared flags onto fs and returns a pointer to the "no-header"
// bool that AfterParse turns into Common.Header. Parameter flags shared by all
// workflows are registered with defaults taken from config.Defaults(workflow).
func Register(fs *pflag.FlagSet, c *Common, workflow string) *bool {
	d := config.Defaults(workflow)

	// Input
	fs.StringVarP(&c.Input, "input", "i", "", "input path (or give it as the positional argument)")
	fs.StringVar(&c.ConfigFile, "config", "", "parameter file (yaml, toml or json)")
	fs.Int("gene-column", d.Input.GeneColumn, "features.tsv column holding gene names")

	// Output
	fs.StringVarP(&c.OutDir, "outdir", "d", "scflow-out", "directory for plots, tables and run.yaml")
	fs.StringVarP(&c.Output, "output", "o", "text", "stdout/table format: text | json | jsonl")
	noHeader := false
	fs.BoolVar(&noHeader, "no-header", false, "suppress header line in text/TSV")
	fs.Float64("plot-width", d.Plots.Width, "plot panel width (inches)")
	fs.Float64("plot-height", d.Plots.Height, "plot panel height (inches)")
	fs.Float64("plot-dpi", d.Plots.DPI, "plot resolution (dots per inch)")

	// Analysis
	fs.String("normalization", d.Normalize.Method, "LogNormalize | RC | CLR")
	fs.Float64("scale-factor", d.Normalize.ScaleFactor, "per-cell normalization target")
	fs.String("hvg-method", d.HVG.Method, "variable features: vst | mean.var.plot | dispersion")
	fs.Int("n-features", d.HVG.NFeatures, "number of variable features")
	fs.Float64("scale-max", d.Scale.ScaleMax, "clip scaled values above this")
	fs.Int("npcs", d.PCA.NPCs, "principal components to compute")

	// Performance
	fs.IntP("threads", "t", d.Threads, "worker threads (0=all CPUs)")

	// Misc
	fs.BoolVarP(&c.Quiet, "quiet", "q", false, "only log errors")
	fs.BoolVar(&c.Verbose, "verbose", false, "log debug detail")
	fs.BoolVar(&c.Examples, "examples", false, "print usage examples and exit")

	return &noHeader
}

// AfterParse finalizes header and runs shared validation.
func AfterParse(c *Common, noHeader *bool) error {
	c.Header = !*noHeader
	return Validate(c)
}

// Validate applies shared CLI invariants used by all workflows.
func Validate(c *Common) error {
	if c.OutDir == "" {
		return fmt.Errorf("--outdir must not be empty")
	}
	ok := false
	for _, f := range writers.Formats() {
		if c.Output == f {
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("invalid --output %q", c.Output)
	}
	if c.NoResultExitCode < 0 || c.NoResultExitCode > 255 {
		return fmt.Errorf("--no-markers-exit-code must be between 0 and 255")
	}
	return nil
}

// internal/cli/options.go
package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"scflow/internal/clibase"
	"scflow/internal/cliutil"
	"scflow/internal/config"
)

// Default genes for the cell-cycle ridge plot.
var DefaultRidgeGenes = []string{"PCNA", "TOP2A", "MCM6", "MKI67"}

// PBMCOptions holds the flags of the pbmc workflow that are not run
// parameters (those are resolved by config.Load).
type PBMCOptions struct {
	clibase.Common
	PlotGenes     []string
	ClusterLabels map[string]string

	noHeader  *bool
	labelSpec string
}

// CellCycleOptions holds the cellcycle workflow's inputs.
type CellCycleOptions struct {
	clibase.Common
	SGenes     string
	G2MGenes   string
	RegevGenes string
	PhaseGenes string
	RidgeGenes []string
	SetIdent   bool

	noHeader *bool
}

// RegisterPBMC wires all pbmc flags onto fs.
func RegisterPBMC(fs *pflag.FlagSet, o *PBMCOptions) {
	d := config.Defaults(config.PBMC)
	o.noHeader = clibase.Register(fs, &o.Common, config.PBMC)
	fs.IntVar(&o.NoResultExitCode, "no-markers-exit-code", 1, "exit code when no markers are found")

	// QC
	fs.Int("min-cells", d.QC.MinCells, "keep genes detected in at least this many cells")
	fs.Int("min-features", d.QC.MinFeatures, "keep cells with at least this many genes")
	fs.Float64("keep-above", d.QC.KeepAbove, "keep cells with nFeature_RNA above this (0=off)")
	fs.Float64("keep-below", d.QC.KeepBelow, "keep cells with nFeature_RNA below this (0=off)")
	fs.Float64("max-percent-mt", d.QC.MaxPercentMT, "keep cells with percent.mt below this (0=off)")
	fs.String("mito-pattern", d.QC.MitoPattern, "regexp for mitochondrial genes")

	// Graph and clustering
	fs.Int("dims", d.Neighbors.Dims, "PCs used for the neighbor graph")
	fs.Int("k-param", d.Neighbors.K, "nearest neighbors per cell")
	fs.Float64("prune", d.Neighbors.Prune, "drop SNN edges below this Jaccard index")
	fs.Float64("resolution", d.Cluster.Resolution, "Louvain resolution")
	fs.Int("n-start", d.Cluster.NStart, "Louvain random starts")
	fs.Int("n-iter", d.Cluster.NIter, "Louvain iterations per start")
	fs.Uint64("cluster-seed", d.Cluster.Seed, "Louvain seed")

	// UMAP
	fs.Int("umap-dims", d.UMAP.Dims, "PCs used for UMAP")
	fs.Int("umap-neighbors", d.UMAP.NNeighbors, "UMAP neighbors")
	fs.Float64("min-dist", d.UMAP.MinDist, "UMAP minimum distance")
	fs.Int("epochs", d.UMAP.Epochs, "UMAP epochs (0=auto)")
	fs.Uint64("umap-seed", d.UMAP.Seed, "UMAP seed")

	// Markers
	fs.String("test", d.Markers.Test, "marker test: wilcox | t | LR | roc")
	fs.Float64("min-pct", d.Markers.MinPct, "minimum detection rate in either group")
	fs.Float64("logfc-threshold", d.Markers.LogFCThreshold, "minimum |avg_log2FC|")
	fs.Bool("only-pos", d.Markers.OnlyPos, "report only up-regulated markers")
	fs.Int("top-n", d.Markers.TopN, "markers per cluster in the heatmap")

	fs.StringSliceVar(&o.PlotGenes, "plot-genes", nil, "genes for violin and feature plots (comma-separated, repeatable)")
	fs.StringVar(&o.labelSpec, "cluster-labels", "", "rename clusters: 'A,B,...', '0=A,1=B' or @file")
}

// RegisterCellCycle wires all cellcycle flags onto fs.
func RegisterCellCycle(fs *pflag.FlagSet, o *CellCycleOptions) {
	d := config.Defaults(config.CellCycle)
	o.noHeader = clibase.Register(fs, &o.Common, config.CellCycle)
	o.NoResultExitCode = 1

	fs.StringVar(&o.SGenes, "s-genes", "", "S-phase gene list (one per line)")
	fs.StringVar(&o.G2MGenes, "g2m-genes", "", "G2/M-phase gene list (one per line)")
	fs.StringVar(&o.RegevGenes, "regev-genes", "", "combined list whose first 43 genes are S phase")
	fs.StringVar(&o.PhaseGenes, "phase-genes", "", "two-column 'phase gene' list (S or G2M)")
	fs.StringSliceVar(&o.RidgeGenes, "ridge-genes", DefaultRidgeGenes, "genes for the ridge plot")
	fs.BoolVar(&o.SetIdent, "set-ident", true, "use phases as identities")
	fs.String("regress", d.CellCycle.Regress, "regress out: scores | difference | none")
	fs.Int("bins", d.CellCycle.Bins, "expression bins for control genes")
	fs.Uint64("score-seed", d.CellCycle.Seed, "control gene sampling seed")
}

// FinishPBMC resolves the input and labels and validates shared flags.
func FinishPBMC(o *PBMCOptions, posArgs []string) error {
	in, err := cliutil.SingleInput(o.Input, posArgs)
	if err != nil {
		return err
	}
	o.Input = in
	o.PlotGenes = cliutil.SplitList(o.PlotGenes)
	if o.ClusterLabels, err = cliutil.ParseLabels(o.labelSpec); err != nil {
		return err
	}
	return clibase.AfterParse(&o.Common, o.noHeader)
}

// FinishCellCycle resolves the input and validates gene list flags.
func FinishCellCycle(o *CellCycleOptions, posArgs []string) error {
	in, err := cliutil.SingleInput(o.Input, posArgs)
	if err != nil {
		return err
	}
	o.Input = in
	o.RidgeGenes = cliutil.SplitList(o.RidgeGenes)
	sources := 0
	for _, set := range []bool{o.RegevGenes != "", o.PhaseGenes != "", o.SGenes != "" || o.G2MGenes != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return fmt.Errorf("use only one of --regev-genes, --phase-genes or --s-genes/--g2m-genes")
	}
	if (o.SGenes == "") != (o.G2MGenes == "") {
		return fmt.Errorf("--s-genes and --g2m-genes must be supplied together")
	}
	return clibase.AfterParse(&o.Common, o.noHeader)
}

// Package config resolves run parameters from defaults, an optional config
// file, SCFLOW_* environment variables and explicitly set flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Workflows.
const (
	PBMC      = "pbmc"
	CellCycle = "cellcycle"
)

// Regression choices for the cell-cycle workflow.
const (
	RegressScores     = "scores"
	RegressDifference = "difference"
	RegressNone       = "none"
)

// EnvPrefix is prepended to every environment override, e.g.
// SCFLOW_CLUSTER_RESOLUTION.
const EnvPrefix = "SCFLOW"

// ErrInvalid marks parameter and config-file errors.
var ErrInvalid = errors.New("invalid configuration")

// Params is the full parameter tree of a run.
type Params struct {
	Threads   int             `mapstructure:"threads"`
	Input     InputParams     `mapstructure:"input"`
	QC        QCParams        `mapstructure:"qc"`
	Normalize NormalizeParams `mapstructure:"normalize"`
	HVG       HVGParams       `mapstructure:"hvg"`
	Scale     ScaleParams     `mapstructure:"scale"`
	PCA       PCAParams       `mapstructure:"pca"`
	Neighbors NeighborsParams `mapstructure:"neighbors"`
	Cluster   ClusterParams   `mapstructure:"cluster"`
	UMAP      UMAPParams      `mapstructure:"umap"`
	Markers   MarkersParams   `mapstructure:"markers"`
	CellCycle CellCycleParams `mapstructure:"cellcycle"`
	Plots     PlotParams      `mapstructure:"plots"`
}

type InputParams struct {
	GeneColumn int `mapstructure:"gene_column"`
}

type QCParams struct {
	MinCells     int     `mapstructure:"min_cells"`
	MinFeatures  int     `mapstructure:"min_features"`
	KeepAbove    float64 `mapstructure:"keep_features_above"`
	KeepBelow    float64 `mapstructure:"keep_features_below"`
	MaxPercentMT float64 `mapstructure:"max_percent_mt"`
	MitoPattern  string  `mapstructure:"mito_pattern"`
}

type NormalizeParams struct {
	Method      string  `mapstructure:"method"`
	ScaleFactor float64 `mapstructure:"scale_factor"`
}

type HVGParams struct {
	Method    string `mapstructure:"method"`
	NFeatures int    `mapstructure:"n_features"`
}

type ScaleParams struct {
	ScaleMax float64 `mapstructure:"scale_max"`
	AllGenes bool    `mapstructure:"all_genes"`
}

type PCAParams struct {
	NPCs int `mapstructure:"npcs"`
}

type NeighborsParams struct {
	Dims  int     `mapstructure:"dims"`
	K     int     `mapstructure:"k"`
	Prune float64 `mapstructure:"prune"`
}

type ClusterParams struct {
	Resolution float64 `mapstructure:"resolution"`
	NStart     int     `mapstructure:"n_start"`
	NIter      int     `mapstructure:"n_iter"`
	Seed       uint64  `mapstructure:"seed"`
}

type UMAPParams struct {
	Dims       int     `mapstructure:"dims"`
	NNeighbors int     `mapstructure:"n_neighbors"`
	MinDist    float64 `mapstructure:"min_dist"`
	Epochs     int     `mapstructure:"epochs"`
	Seed       uint64  `mapstructure:"seed"`
}

type MarkersParams struct {
	Test           string  `mapstructure:"test"`
	MinPct         float64 `mapstructure:"min_pct"`
	LogFCThreshold float64 `mapstructure:"logfc_threshold"`
	OnlyPos        bool    `mapstructure:"only_pos"`
	TopN           int     `mapstructure:"top_n"`
}

type CellCycleParams struct {
	Regress string `mapstructure:"regress"`
	Bins    int    `mapstructure:"bins"`
	Seed    uint64 `mapstructure:"seed"`
}

type PlotParams struct {
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
	DPI    float64 `mapstructure:"dpi"`
}

// Defaults returns the notebook parameters for workflow.
func Defaults(workflow string) Params {
	p := Params{
		Input:     InputParams{GeneColumn: 2},
		QC:        QCParams{MitoPattern: "^MT-"},
		Normalize: NormalizeParams{Method: "LogNormalize", ScaleFactor: 1e4},
		HVG:       HVGParams{Method: "vst", NFeatures: 2000},
		Scale:     ScaleParams{ScaleMax: 10, AllGenes: true},
		PCA:       PCAParams{NPCs: 50},
		Neighbors: NeighborsParams{Dims: 10, K: 20, Prune: 1.0 / 15},
		Cluster:   ClusterParams{Resolution: 0.8, NStart: 10, NIter: 10},
		UMAP:      UMAPParams{Dims: 10, NNeighbors: 30, MinDist: 0.3, Seed: 42},
		Markers:   MarkersParams{Test: "wilcox", MinPct: 0.1, LogFCThreshold: 0.25, TopN: 10},
		CellCycle: CellCycleParams{Regress: RegressScores, Bins: 24, Seed: 1},
		Plots:     PlotParams{Width: 5, Height: 4, DPI: 100},
	}
	if workflow == PBMC {
		p.QC.MinCells = 3
		p.QC.MinFeatures = 200
		p.QC.KeepAbove = 200
		p.QC.KeepBelow = 2500
		p.QC.MaxPercentMT = 5
		p.Cluster.Resolution = 0.5
		p.Markers.MinPct = 0.25
		p.Markers.OnlyPos = true
	}
	return p
}

// Values flattens p into dotted keys, the same keys used by config files and
// environment variables.
func (p Params) Values() map[string]any {
	return map[string]any{
		"threads":                 p.Threads,
		"input.gene_column":       p.Input.GeneColumn,
		"qc.min_cells":            p.QC.MinCells,
		"qc.min_features":         p.QC.MinFeatures,
		"qc.keep_features_above":  p.QC.KeepAbove,
		"qc.keep_features_below":  p.QC.KeepBelow,
		"qc.max_percent_mt":       p.QC.MaxPercentMT,
		"qc.mito_pattern":         p.QC.MitoPattern,
		"normalize.method":        p.Normalize.Method,
		"normalize.scale_factor":  p.Normalize.ScaleFactor,
		"hvg.method":              p.HVG.Method,
		"hvg.n_features":          p.HVG.NFeatures,
		"scale.scale_max":         p.Scale.ScaleMax,
		"scale.all_genes":         p.Scale.AllGenes,
		"pca.npcs":                p.PCA.NPCs,
		"neighbors.dims":          p.Neighbors.Dims,
		"neighbors.k":             p.Neighbors.K,
		"neighbors.prune":         p.Neighbors.Prune,
		"cluster.resolution":      p.Cluster.Resolution,
		"cluster.n_start":         p.Cluster.NStart,
		"cluster.n_iter":          p.Cluster.NIter,
		"cluster.seed":            p.Cluster.Seed,
		"umap.dims":               p.UMAP.Dims,
		"umap.n_neighbors":        p.UMAP.NNeighbors,
		"umap.min_dist":           p.UMAP.MinDist,
		"umap.epochs":             p.UMAP.Epochs,
		"umap.seed":               p.UMAP.Seed,
		"markers.test":            p.Markers.Test,
		"markers.min_pct":         p.Markers.MinPct,
		"markers.logfc_threshold": p.Markers.LogFCThreshold,
		"markers.only_pos":        p.Markers.OnlyPos,
		"markers.top_n":           p.Markers.TopN,
		"cellcycle.regress":       p.CellCycle.Regress,
		"cellcycle.bins":          p.CellCycle.Bins,
		"cellcycle.seed":          p.CellCycle.Seed,
		"plots.width":             p.Plots.Width,
		"plots.height":            p.Plots.Height,
		"plots.dpi":               p.Plots.DPI,
	}
}

// FlagKeys maps command-line flag names to parameter keys. Only flags that
// are registered on the parsed FlagSet are bound.
var FlagKeys = map[string]string{
	"threads":         "threads",
	"gene-column":     "input.gene_column",
	"min-cells":       "qc.min_cells",
	"min-features":    "qc.min_features",
	"keep-above":      "qc.keep_features_above",
	"keep-below":      "qc.keep_features_below",
	"max-percent-mt":  "qc.max_percent_mt",
	"mito-pattern":    "qc.mito_pattern",
	"normalization":   "normalize.method",
	"scale-factor":    "normalize.scale_factor",
	"hvg-method":      "hvg.method",
	"n-features":      "hvg.n_features",
	"scale-max":       "scale.scale_max",
	"npcs":            "pca.npcs",
	"dims":            "neighbors.dims",
	"k-param":         "neighbors.k",
	"prune":           "neighbors.prune",
	"resolution":      "cluster.resolution",
	"n-start":         "cluster.n_start",
	"n-iter":          "cluster.n_iter",
	"cluster-seed":    "cluster.seed",
	"umap-dims":       "umap.dims",
	"umap-neighbors":  "umap.n_neighbors",
	"min-dist":        "umap.min_dist",
	"epochs":          "umap.epochs",
	"umap-seed":       "umap.seed",
	"test":            "markers.test",
	"min-pct":         "markers.min_pct",
	"logfc-threshold": "markers.logfc_threshold",
	"only-pos":        "markers.only_pos",
	"top-n":           "markers.top_n",
	"regress":         "cellcycle.regress",
	"bins":            "cellcycle.bins",
	"score-seed":      "cellcycle.seed",
	"plot-width":      "plots.width",
	"plot-height":     "plots.height",
	"plot-dpi":        "plots.dpi",
}

// Load resolves the parameters of workflow. path may be empty. fs may be nil;
// otherwise every flag named in FlagKeys that the user set overrides the
// other sources.
func Load(workflow, path string, fs *pflag.FlagSet) (Params, error) {
	v := viper.New()
	for k, val := range Defaults(workflow).Values() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Params{}, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
		}
	}

	if fs != nil {
		for name, key := range FlagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Params{}, fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}

	var p Params
	if err := v.Unmarshal(&p); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...))
}

// Validate applies range checks. Messages name the flag that sets the value.
func (p Params) Validate() error {
	switch {
	case p.Threads < 0:
		return invalid("--threads must be ≥ 0")
	case p.Input.GeneColumn < 1:
		return invalid("--gene-column must be ≥ 1")
	case p.QC.MinCells < 0:
		return invalid("--min-cells must be ≥ 0")
	case p.QC.MinFeatures < 0:
		return invalid("--min-features must be ≥ 0")
	case p.QC.KeepAbove < 0 || p.QC.KeepBelow < 0:
		return invalid("--keep-above/--keep-below must be ≥ 0")
	case p.QC.KeepBelow > 0 && p.QC.KeepAbove >= p.QC.KeepBelow:
		return invalid("--keep-above (%g) must be below --keep-below (%g)", p.QC.KeepAbove, p.QC.KeepBelow)
	case p.QC.MaxPercentMT < 0 || p.QC.MaxPercentMT > 100:
		return invalid("--max-percent-mt must be between 0 and 100")
	case p.Normalize.ScaleFactor <= 0:
		return invalid("--scale-factor must be > 0")
	case p.HVG.NFeatures < 1:
		return invalid("--n-features must be ≥ 1")
	case p.Scale.ScaleMax <= 0:
		return invalid("--scale-max must be > 0")
	case p.PCA.NPCs < 1:
		return invalid("--npcs must be ≥ 1")
	case p.Neighbors.Dims < 1 || p.Neighbors.Dims > p.PCA.NPCs:
		return invalid("--dims must be between 1 and --npcs (%d)", p.PCA.NPCs)
	case p.Neighbors.K < 2:
		return invalid("--k-param must be ≥ 2")
	case p.Neighbors.Prune < 0 || p.Neighbors.Prune >= 1:
		return invalid("--prune must be in [0, 1)")
	case p.Cluster.Resolution <= 0:
		return invalid("--resolution must be > 0")
	case p.Cluster.NStart < 1 || p.Cluster.NIter < 1:
		return invalid("--n-start and --n-iter must be ≥ 1")
	case p.UMAP.Dims < 2 || p.UMAP.Dims > p.PCA.NPCs:
		return invalid("--umap-dims must be between 2 and --npcs (%d)", p.PCA.NPCs)
	case p.UMAP.NNeighbors < 2:
		return invalid("--umap-neighbors must be ≥ 2")
	case p.UMAP.MinDist < 0 || p.UMAP.MinDist > 1:
		return invalid("--min-dist must be in [0, 1]")
	case p.UMAP.Epochs < 0:
		return invalid("--epochs must be ≥ 0")
	case p.Markers.MinPct < 0 || p.Markers.MinPct > 1:
		return invalid("--min-pct must be in [0, 1]")
	case p.Markers.TopN < 1:
		return invalid("--top-n must be ≥ 1")
	case p.CellCycle.Bins < 1:
		return invalid("--bins must be ≥ 1")
	case p.Plots.Width <= 0 || p.Plots.Height <= 0 || p.Plots.DPI <= 0:
		return invalid("--plot-width, --plot-height and --plot-dpi must be > 0")
	}
	switch p.Normalize.Method {
	case "LogNormalize", "RC", "CLR":
	default:
		return invalid("invalid --normalization %q (LogNormalize | RC | CLR)", p.Normalize.Method)
	}
	switch p.HVG.Method {
	case "vst", "mean.var.plot", "dispersion":
	default:
		return invalid("invalid --hvg-method %q (vst | mean.var.plot | dispersion)", p.HVG.Method)
	}
	switch p.Markers.Test {
	case "wilcox", "t", "LR", "roc":
	default:
		return invalid("invalid --test %q (wilcox | t | LR | roc)", p.Markers.Test)
	}
	switch p.CellCycle.Regress {
	case RegressScores, RegressDifference, RegressNone:
	default:
		return invalid("invalid --regress %q (scores | difference | none)", p.CellCycle.Regress)
	}
	return nil
}

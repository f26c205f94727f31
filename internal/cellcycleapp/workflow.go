package cellcycleapp

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"scflow/internal/appcore"
	"scflow/internal/cellcycle"
	"scflow/internal/cli"
	"scflow/internal/cmdutil"
	"scflow/internal/config"
	"scflow/internal/dataset"
	"scflow/internal/exprtsv"
	"scflow/internal/genelist"
	"scflow/internal/hvg"
	"scflow/internal/normalize"
	"scflow/internal/pca"
	"scflow/internal/pipeline"
	"scflow/internal/plots"
	"scflow/internal/scale"
	"scflow/internal/writers"
	"scflow/pkg/api"
)

// Project is the orig.ident of every cell.
const Project = "cellcycle"

// Reduction names.
const (
	ReductionPCA   = "pca"
	ReductionCycle = "cc_pca"
)

// Genes resolves the S and G2/M lists from the options, falling back to the
// built-in human lists.
func Genes(o *cli.CellCycleOptions) (genelist.Phased, error) {
	switch {
	case o.RegevGenes != "":
		return genelist.LoadRegev(o.RegevGenes)
	case o.PhaseGenes != "":
		return genelist.LoadPhased(o.PhaseGenes)
	case o.SGenes != "":
		s, err := genelist.Load(o.SGenes)
		if err != nil {
			return genelist.Phased{}, err
		}
		g, err := genelist.Load(o.G2MGenes)
		if err != nil {
			return genelist.Phased{}, err
		}
		return genelist.Phased{S: s, G2M: g}, nil
	}
	return genelist.CellCycle(), nil
}

// Workflow scores phases, optionally regresses them out, writes plots and
// tables into o.OutDir and sends one row per cell.
func Workflow(ctx context.Context, log *zap.Logger, o *cli.CellCycleOptions, p config.Params, send func(api.PhaseV1) error) (n int, err error) {
	cc, err := Genes(o)
	if err != nil {
		return 0, appcore.Usage(err)
	}
	if len(cc.S) == 0 || len(cc.G2M) == 0 {
		return 0, appcore.Usagef("cell-cycle gene lists must name S and G2M genes")
	}

	sess, err := cmdutil.OpenSession(log, o.OutDir, "scflow cellcycle", o.Input, p, o.Quiet)
	if err != nil {
		return 0, err
	}
	defer func() { err = sess.Close(err) }()

	m, err := exprtsv.Read(o.Input)
	if err != nil {
		return 0, appcore.Usage(err)
	}
	ds, err := dataset.New(Project, m.Genes, m.Cells, m.Counts, dataset.Options{})
	if err != nil {
		return 0, appcore.Usage(fmt.Errorf("%s: %w", o.Input, err))
	}
	log.Info("loaded", zap.String("input", o.Input), zap.Int("genes", ds.NumGenes()), zap.Int("cells", ds.NumCells()))

	w := &run{sess: sess, o: o, p: p, cc: cc, po: plots.Options{Width: p.Plots.Width, Height: p.Plots.Height, DPI: int(p.Plots.DPI)}}
	if err := pipeline.Run(ctx, log, ds, w.stages(), sess.Observe); err != nil {
		return 0, err
	}

	s, _ := ds.Meta.Numeric(cellcycle.ColS)
	g, _ := ds.Meta.Numeric(cellcycle.ColG2M)
	phase, _ := ds.Meta.String(cellcycle.ColPhase)
	for i, c := range ds.Cells {
		if err := send(api.PhaseV1{Cell: c, SScore: s[i], G2MScore: g[i], Phase: phase[i]}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

type run struct {
	sess *cmdutil.Session
	o    *cli.CellCycleOptions
	p    config.Params
	cc   genelist.Phased
	po   plots.Options
}

func (w *run) stages() []pipeline.Stage {
	st := []pipeline.Stage{
		pipeline.Func("normalize", func(ds *dataset.Dataset) error {
			return normalize.Run(ds, normalize.Options{Method: w.p.Normalize.Method, ScaleFactor: w.p.Normalize.ScaleFactor})
		}),
		{Name: "variable-features", Run: func(ctx context.Context, ds *dataset.Dataset) error {
			top, err := hvg.Find(ctx, ds, hvg.Options{Method: w.p.HVG.Method, NFeatures: w.p.HVG.NFeatures, Threads: w.p.Threads})
			if err == nil {
				w.sess.Log.Info("variable features", zap.Int("n", len(top)))
			}
			return err
		}},
		{Name: "scale", Run: func(ctx context.Context, ds *dataset.Dataset) error { return w.scale(ctx, ds, nil) }},
		pipeline.Func("pca", func(ds *dataset.Dataset) error { return w.pca(ds, "pca_genes.txt") }),
		pipeline.Func("score", w.score),
		pipeline.Func("ridge-plot", w.ridge),
		pipeline.Func("cycle-pca-before", func(ds *dataset.Dataset) error { return w.cyclePCA(ds, "pca_cellcycle_before.jpg") }),
	}
	if regress := w.regressColumns(); regress != nil {
		st = append(st,
			pipeline.Stage{Name: "regress", Run: func(ctx context.Context, ds *dataset.Dataset) error { return w.scale(ctx, ds, regress) }},
			pipeline.Func("pca-regressed", func(ds *dataset.Dataset) error { return w.pca(ds, "pca_genes_regressed.txt") }),
			pipeline.Func("cycle-pca-after", func(ds *dataset.Dataset) error { return w.cyclePCA(ds, "pca_cellcycle_after.jpg") }),
		)
	}
	return append(st, pipeline.Func("cells", func(ds *dataset.Dataset) error {
		return w.sess.WriteFile("cells."+writers.Extension(w.o.Output), func(f io.Writer) error {
			return writers.WriteCells(w.o.Output, f, ds, []string{ReductionPCA, ReductionCycle}, 2)
		})
	}))
}

func (w *run) regressColumns() []string {
	switch w.p.CellCycle.Regress {
	case config.RegressScores:
		return []string{cellcycle.ColS, cellcycle.ColG2M}
	case config.RegressDifference:
		return []string{cellcycle.ColDiff}
	}
	return nil
}

func (w *run) scale(ctx context.Context, ds *dataset.Dataset, regress []string) error {
	_, err := scale.Run(ctx, ds, scale.Options{
		AllGenes: w.p.Scale.AllGenes, RegressOut: regress, ScaleMax: w.p.Scale.ScaleMax, Threads: w.p.Threads,
	})
	return err
}

func (w *run) pca(ds *dataset.Dataset, report string) error {
	res, err := pca.Run(ds, pca.Options{NPCs: w.p.PCA.NPCs, Name: ReductionPCA})
	if err != nil {
		return err
	}
	if res.NPCs < w.p.PCA.NPCs {
		w.sess.Warnf("pca: computed %d of %d requested components", res.NPCs, w.p.PCA.NPCs)
	}
	red, err := ds.Reduction(ReductionPCA)
	if err != nil {
		return err
	}
	ve := pca.VarianceExplained(red)
	w.sess.Log.Info("pca", zap.Int("npcs", res.NPCs), zap.Float64s("variance_explained", ve[:min(5, len(ve))]))
	return w.sess.WriteFile(report, func(f io.Writer) error {
		return pca.Report(f, red, []int{0, 1, 2, 3, 4}[:min(5, res.NPCs)], 10)
	})
}

func (w *run) score(ds *dataset.Dataset) error {
	res, err := cellcycle.Score(ds, w.cc.S, w.cc.G2M, cellcycle.Options{
		Bins: w.p.CellCycle.Bins, Seed: w.p.CellCycle.Seed, SetIdent: w.o.SetIdent,
	})
	if err != nil {
		return err
	}
	for _, mod := range []cellcycle.Module{res.S, res.G2M} {
		if len(mod.Missing) > 0 {
			w.sess.Warnf("%s: %d of %d genes not found: %v", mod.Name, len(mod.Missing), len(mod.Missing)+len(mod.Features), mod.Missing)
		}
	}
	w.sess.Manifest.Phases = res.Counts
	w.sess.Log.Info("phases", zap.Any("counts", res.Counts))
	return nil
}

func (w *run) ridge(ds *dataset.Dataset) error {
	rows, missing := ds.Resolve(w.o.RidgeGenes)
	if len(missing) > 0 {
		w.sess.Warnf("ridge plot: genes not found: %v", missing)
	}
	if len(rows) == 0 {
		return nil
	}
	genes := make([]string, len(rows))
	for i, r := range rows {
		genes[i] = ds.Genes[r]
	}
	o := w.po
	o.NCol = 2
	return plots.Ridge(w.sess.Path("ridge.jpg"), ds, genes, cellcycle.ColPhase, o)
}

func (w *run) cyclePCA(ds *dataset.Dataset, plot string) error {
	genes := append(append([]string(nil), w.cc.S...), w.cc.G2M...)
	res, err := pca.Run(ds, pca.Options{Features: genes, NPCs: w.p.PCA.NPCs, Name: ReductionCycle, Key: "ccPC_"})
	if err != nil {
		return err
	}
	if len(res.Missing) > 0 {
		w.sess.Warnf("%s: %d of %d cell-cycle genes not in scale.data: %v", plot, len(res.Missing), len(genes), res.Missing)
	}
	return plots.Dim(w.sess.Path(plot), ds, ReductionCycle, cellcycle.ColPhase, false, w.po)
}

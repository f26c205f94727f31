package pbmcapp

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"scflow/internal/appcore"
	"scflow/internal/cli"
	"scflow/internal/cluster"
	"scflow/internal/cmdutil"
	"scflow/internal/config"
	"scflow/internal/dataset"
	"scflow/internal/hvg"
	"scflow/internal/markers"
	"scflow/internal/neighbors"
	"scflow/internal/normalize"
	"scflow/internal/pca"
	"scflow/internal/pipeline"
	"scflow/internal/plots"
	"scflow/internal/qc"
	"scflow/internal/scale"
	"scflow/internal/tenx"
	"scflow/internal/umap"
	"scflow/internal/writers"
	"scflow/pkg/api"
)

// Project is the orig.ident of every cell.
const Project = "pbmc3k"

// ElbowDims is how many components the elbow plot shows.
const ElbowDims = 20

// PlotOptions converts plot parameters.
func PlotOptions(p config.PlotParams) plots.Options {
	return plots.Options{Width: p.Width, Height: p.Height, DPI: int(p.DPI)}
}

// Workflow runs the PBMC analysis, writes every file into o.OutDir and sends
// the markers to send. It returns the number of markers sent.
func Workflow(ctx context.Context, log *zap.Logger, o *cli.PBMCOptions, p config.Params, send func(markers.Marker) error) (n int, err error) {
	sess, err := cmdutil.OpenSession(log, o.OutDir, "scflow pbmc", o.Input, p, o.Quiet)
	if err != nil {
		return 0, err
	}
	defer func() { err = sess.Close(err) }()

	m, err := tenx.Read(o.Input, tenx.Options{GeneColumn: p.Input.GeneColumn})
	if err != nil {
		return 0, appcore.Usage(err)
	}
	ds, err := dataset.New(Project, m.Genes, m.Cells, m.Counts, dataset.Options{MinCells: p.QC.MinCells, MinFeatures: p.QC.MinFeatures})
	if err != nil {
		return 0, appcore.Usage(fmt.Errorf("%s: %w", o.Input, err))
	}
	log.Info("loaded", zap.String("input", o.Input), zap.Int("genes", ds.NumGenes()), zap.Int("cells", ds.NumCells()),
		zap.Int("raw_genes", len(m.Genes)), zap.Int("raw_cells", len(m.Cells)))

	w := &run{sess: sess, o: o, p: p, po: PlotOptions(p.Plots)}
	if err := pipeline.Run(ctx, log, ds, w.stages(), sess.Observe); err != nil {
		return 0, err
	}
	for _, mk := range w.markers {
		if err := send(mk); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

type run struct {
	sess    *cmdutil.Session
	o       *cli.PBMCOptions
	p       config.Params
	po      plots.Options
	markers []markers.Marker
}

func (w *run) stages() []pipeline.Stage {
	return []pipeline.Stage{
		pipeline.Func("qc", w.qc),
		pipeline.Func("qc-plots", w.qcPlots),
		pipeline.Func("filter", w.filter),
		pipeline.Func("normalize", func(ds *dataset.Dataset) error {
			return normalize.Run(ds, normalize.Options{Method: w.p.Normalize.Method, ScaleFactor: w.p.Normalize.ScaleFactor})
		}),
		{Name: "variable-features", Run: w.variableFeatures},
		{Name: "scale", Run: w.scale},
		pipeline.Func("pca", w.pca),
		{Name: "neighbors", Run: func(ctx context.Context, ds *dataset.Dataset) error {
			return neighbors.FindNeighbors(ctx, ds, neighbors.Options{
				Dims: w.p.Neighbors.Dims, K: w.p.Neighbors.K, Prune: w.p.Neighbors.Prune, Threads: w.p.Threads,
			})
		}},
		{Name: "cluster", Run: w.cluster},
		{Name: "umap", Run: w.umap},
		{Name: "markers", Run: w.findMarkers},
		pipeline.Func("marker-plots", w.markerPlots),
		pipeline.Func("labels", w.labels),
		pipeline.Func("cells", func(ds *dataset.Dataset) error {
			return w.sess.WriteFile("cells."+writers.Extension(w.o.Output), func(f io.Writer) error {
				return writers.WriteCells(w.o.Output, f, ds, []string{"umap", "pca"}, 2)
			})
		}),
	}
}

func (w *run) plot(name string, draw func(path string) error) error {
	if err := draw(w.sess.Path(name)); err != nil {
		return fmt.Errorf("plot %s: %w", name, err)
	}
	return nil
}

func (w *run) qc(ds *dataset.Dataset) error {
	mito, err := qc.Compute(ds, qc.Options{MitoPattern: w.p.QC.MitoPattern})
	if err != nil {
		return appcore.Usage(err)
	}
	if len(mito) == 0 {
		w.sess.Warnf("no genes match mitochondrial pattern %q; percent.mt is 0", w.p.QC.MitoPattern)
	}
	for _, s := range qc.Summary(ds) {
		w.sess.Manifest.QC = append(w.sess.Manifest.QC, api.QCStatV1{Column: s.Column, Min: s.Min, Median: s.Median, Max: s.Max})
	}
	return nil
}

func (w *run) qcPlots(ds *dataset.Dataset) error {
	vo := w.po
	vo.NCol = 3
	if err := w.plot("qc_violin.jpg", func(path string) error {
		return plots.Violin(path, ds, []string{qc.ColFeature, qc.ColCount, qc.ColPercentMT}, "", vo)
	}); err != nil {
		return err
	}
	return w.plot("qc_scatter.jpg", func(path string) error {
		return plots.FeatureScatters(path, ds, [][2]string{
			{qc.ColCount, qc.ColPercentMT},
			{qc.ColCount, qc.ColFeature},
		}, "", w.po)
	})
}

func (w *run) filter(ds *dataset.Dataset) error {
	f := qc.Filter{MinFeatures: w.p.QC.KeepAbove, MaxFeatures: w.p.QC.KeepBelow, MaxPercentMT: w.p.QC.MaxPercentMT}
	removed, err := f.Apply(ds)
	if err != nil {
		return err
	}
	w.sess.Log.Info("filtered cells", zap.Int("removed", removed), zap.Int("kept", ds.NumCells()))
	return nil
}

func (w *run) variableFeatures(ctx context.Context, ds *dataset.Dataset) error {
	top, err := hvg.Find(ctx, ds, hvg.Options{Method: w.p.HVG.Method, NFeatures: w.p.HVG.NFeatures, Threads: w.p.Threads})
	if err != nil {
		return err
	}
	w.sess.Log.Info("variable features", zap.Int("n", len(top)), zap.Strings("top10", hvg.Top(ds, 10)))
	return w.plot("variable_features.jpg", func(path string) error {
		return plots.VariableFeatures(path, ds, 10, w.po)
	})
}

func (w *run) scale(ctx context.Context, ds *dataset.Dataset) error {
	res, err := scale.Run(ctx, ds, scale.Options{AllGenes: w.p.Scale.AllGenes, ScaleMax: w.p.Scale.ScaleMax, Threads: w.p.Threads})
	if err != nil {
		return err
	}
	if len(res.Missing) > 0 {
		w.sess.Warnf("scale: %d features not found", len(res.Missing))
	}
	return nil
}

func (w *run) pca(ds *dataset.Dataset) error {
	res, err := pca.Run(ds, pca.Options{NPCs: w.p.PCA.NPCs})
	if err != nil {
		return err
	}
	if res.NPCs < w.p.PCA.NPCs {
		w.sess.Warnf("pca: computed %d of %d requested components", res.NPCs, w.p.PCA.NPCs)
	}
	if res.NPCs < w.p.Neighbors.Dims || res.NPCs < w.p.UMAP.Dims {
		return appcore.Usagef("pca: only %d components; lower --dims/--umap-dims", res.NPCs)
	}
	red, err := ds.Reduction("pca")
	if err != nil {
		return err
	}
	ve := pca.VarianceExplained(red)
	w.sess.Log.Info("pca", zap.Int("npcs", res.NPCs), zap.Float64s("variance_explained", ve[:min(5, len(ve))]))
	if err := w.sess.WriteFile("pca_genes.txt", func(f io.Writer) error {
		return pca.Report(f, red, []int{0, 1, 2, 3, 4}[:min(5, res.NPCs)], 5)
	}); err != nil {
		return err
	}
	steps := []struct {
		name string
		draw func(string) error
	}{
		{"pca_loadings.jpg", func(p string) error { return plots.DimLoadings(p, red, []int{0, 1}, 30, w.po) }},
		{"pca.jpg", func(p string) error { return plots.Dim(p, ds, "pca", "", false, w.po) }},
		{"pc1_heatmap.jpg", func(p string) error { return plots.DimHeatmap(p, ds, "pca", []int{0}, 500, 30, w.po) }},
		{"elbow.jpg", func(p string) error { return plots.Elbow(p, red, ElbowDims, w.po) }},
	}
	for _, s := range steps {
		if err := w.plot(s.name, s.draw); err != nil {
			return err
		}
	}
	return nil
}

func (w *run) cluster(ctx context.Context, ds *dataset.Dataset) error {
	res, err := cluster.Run(ctx, ds, cluster.Options{
		Resolution: w.p.Cluster.Resolution, NStart: w.p.Cluster.NStart, NIter: w.p.Cluster.NIter,
		Seed: w.p.Cluster.Seed, Threads: w.p.Threads,
	})
	if err != nil {
		return err
	}
	w.sess.Manifest.Clusters = map[string]int{}
	for i, n := range res.Sizes {
		w.sess.Manifest.Clusters[fmt.Sprint(i)] = n
	}
	w.sess.Log.Info("clusters", zap.Int("n", res.Clusters), zap.Float64("modularity", res.Modularity), zap.Ints("sizes", res.Sizes))
	return nil
}

func (w *run) umap(ctx context.Context, ds *dataset.Dataset) error {
	if err := umap.Run(ctx, ds, umap.Options{
		Dims: w.p.UMAP.Dims, NNeighbors: w.p.UMAP.NNeighbors, MinDist: w.p.UMAP.MinDist,
		Epochs: w.p.UMAP.Epochs, Seed: w.p.UMAP.Seed, Threads: w.p.Threads,
	}); err != nil {
		return err
	}
	return w.plot("umap.jpg", func(path string) error { return plots.Dim(path, ds, "umap", "", true, w.po) })
}

func (w *run) findMarkers(ctx context.Context, ds *dataset.Dataset) error {
	if len(ds.IdentLevels()) < 2 {
		w.sess.Warnf("markers: only one cluster; nothing to compare")
		return nil
	}
	mo := markers.DefaultOptions()
	mo.Test = w.p.Markers.Test
	mo.MinPct = w.p.Markers.MinPct
	mo.LogFCThreshold = w.p.Markers.LogFCThreshold
	mo.OnlyPos = w.p.Markers.OnlyPos
	mo.Threads = w.p.Threads
	mo.Logger = w.sess.Log
	list, err := markers.FindAll(ctx, ds, mo)
	if err != nil {
		return err
	}
	w.markers = list
	w.sess.Log.Info("markers", zap.Int("n", len(list)))
	return w.sess.WriteFile("markers."+writers.Extension(w.o.Output), func(f io.Writer) error {
		return writers.WriteMarkers(w.o.Output, f, list, w.o.Header)
	})
}

func (w *run) present(ds *dataset.Dataset, genes []string) []string {
	rows, missing := ds.Resolve(genes)
	if len(missing) > 0 {
		w.sess.Warnf("genes not found: %v", missing)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = ds.Genes[r]
	}
	return out
}

func (w *run) markerPlots(ds *dataset.Dataset) error {
	if genes := w.present(ds, w.o.PlotGenes); len(genes) > 0 {
		if err := w.plot("genes_violin.jpg", func(path string) error { return plots.Violin(path, ds, genes, "", w.po) }); err != nil {
			return err
		}
		if err := w.plot("genes_umap.jpg", func(path string) error { return plots.Feature(path, ds, "umap", genes, w.po) }); err != nil {
			return err
		}
	}
	top := markers.Genes(markers.TopN(w.markers, w.p.Markers.TopN))
	if len(top) == 0 {
		return nil
	}
	return w.plot("markers_heatmap.jpg", func(path string) error {
		skipped, err := plots.Heatmap(path, ds, top, "", w.po)
		if len(skipped) > 0 {
			w.sess.Warnf("heatmap: %d genes not in scale.data", len(skipped))
		}
		return err
	})
}

func (w *run) labels(ds *dataset.Dataset) error {
	if len(w.o.ClusterLabels) == 0 {
		return nil
	}
	known := map[string]bool{}
	for _, l := range ds.IdentLevels() {
		known[l] = true
	}
	for k := range w.o.ClusterLabels {
		if !known[k] {
			w.sess.Warnf("cluster label for unknown cluster %q ignored", k)
		}
	}
	ds.RenameIdents(w.o.ClusterLabels)
	ds.Log("RenameIdents", map[string]any{"labels": len(w.o.ClusterLabels)})
	return w.plot("umap_labelled.jpg", func(path string) error { return plots.Dim(path, ds, "umap", "", true, w.po) })
}

// OutputFiles lists the files a complete run writes for format, in order.
func OutputFiles(format string, plotGenes, labels bool) []string {
	out := []string{"qc_violin.jpg", "qc_scatter.jpg", "variable_features.jpg", "pca_genes.txt",
		"pca_loadings.jpg", "pca.jpg", "pc1_heatmap.jpg", "elbow.jpg", "umap.jpg",
		"markers." + writers.Extension(format)}
	if plotGenes {
		out = append(out, "genes_violin.jpg", "genes_umap.jpg")
	}
	out = append(out, "markers_heatmap.jpg")
	if labels {
		out = append(out, "umap_labelled.jpg")
	}
	return append(out, "cells."+writers.Extension(format), config.ManifestName)
}

package integration

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scflow/internal/genelist"
)

func write(t *testing.T, fn, data string) string {
	t.Helper()
	if err := os.WriteFile(fn, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", fn, err)
	}
	return fn
}

// writeTenX writes a v2 10x directory with two well separated populations of
// cells: group A expresses G1..G40 highly, group B G41..G80. Every cell
// carries background counts on all genes and a few mitochondrial reads.
func writeTenX(t *testing.T, perGroup int) string {
	t.Helper()
	dir := t.TempDir()
	rng := rand.New(rand.NewPCG(7, 7))

	var genes []string
	for g := 1; g <= 100; g++ {
		genes = append(genes, fmt.Sprintf("G%d", g))
	}
	genes = append(genes, "MT-CO1", "MT-ND1")

	var (
		cells []string
		mtx   []string
	)
	for c := 0; c < 2*perGroup; c++ {
		cells = append(cells, fmt.Sprintf("CELL%03d-1", c))
		groupA := c < perGroup
		for g := range genes {
			v := rng.IntN(3)
			switch {
			case g < 40 && groupA, g >= 40 && g < 80 && !groupA:
				v += 6 + rng.IntN(6)
			case g >= 100:
				v = 1
			}
			if v > 0 {
				mtx = append(mtx, fmt.Sprintf("%d %d %d", g+1, c+1, v))
			}
		}
	}

	var feat strings.Builder
	for i, g := range genes {
		fmt.Fprintf(&feat, "ENSG%05d\t%s\n", i, g)
	}
	write(t, filepath.Join(dir, "genes.tsv"), feat.String())
	write(t, filepath.Join(dir, "barcodes.tsv"), strings.Join(cells, "\n")+"\n")
	write(t, filepath.Join(dir, "matrix.mtx"), fmt.Sprintf(
		"%%%%MatrixMarket matrix coordinate integer general\n%%\n%d %d %d\n%s\n",
		len(genes), len(cells), len(mtx), strings.Join(mtx, "\n")))
	return dir
}

// writeExpression writes a genes × cells TSV with the first twenty built-in S
// and G2/M genes plus sixty background genes. A third of the cells express the
// S genes, a third the G2/M genes.
func writeExpression(t *testing.T, nCells int) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(11, 11))
	cc := genelist.CellCycle()
	s, g2m := cc.S[:20], cc.G2M[:20]

	var b strings.Builder
	for c := 0; c < nCells; c++ {
		fmt.Fprintf(&b, "\tcell_%d", c)
	}
	b.WriteString("\n")
	row := func(gene string, high func(c int) bool) {
		b.WriteString(gene)
		for c := 0; c < nCells; c++ {
			v := rng.Float64() * 2
			if high(c) {
				v += 8 + rng.Float64()*4
			}
			fmt.Fprintf(&b, "\t%.3f", v)
		}
		b.WriteString("\n")
	}
	for _, g := range s {
		row(g, func(c int) bool { return c%3 == 0 })
	}
	for _, g := range g2m {
		row(g, func(c int) bool { return c%3 == 1 })
	}
	for g := 0; g < 60; g++ {
		row(fmt.Sprintf("BG%d", g), func(c int) bool { return (c+g)%5 == 0 })
	}
	return write(t, filepath.Join(t.TempDir(), "expr.txt"), b.String())
}

// pbmcArgs shrinks the notebook parameters to the synthetic data.
func pbmcArgs(in, out string, extra ...string) []string {
	return append([]string{
		"pbmc", in, "-d", out, "-q",
		"--min-features", "5", "--keep-above", "0", "--keep-below", "0", "--max-percent-mt", "50",
		"--n-features", "80", "--npcs", "20", "--dims", "5", "--k-param", "10",
		"--umap-dims", "5", "--umap-neighbors", "10", "--epochs", "50",
		"--plot-width", "3", "--plot-height", "3", "--plot-dpi", "40",
	}, extra...)
}

func cellCycleArgs(in, out string, extra ...string) []string {
	return append([]string{
		"cellcycle", in, "-d", out, "-q",
		"--n-features", "60", "--npcs", "10",
		"--plot-width", "3", "--plot-height", "3", "--plot-dpi", "40",
	}, extra...)
}

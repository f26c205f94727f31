// internal/integration/integration_test.go
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"scflow/internal/app"
	"scflow/internal/config"
	"scflow/internal/outdir"
	"scflow/internal/pbmcapp"
	"scflow/pkg/api"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPBMCEndToEnd(t *testing.T) {
	in := writeTenX(t, 30)
	out := filepath.Join(t.TempDir(), "run")

	var stdout, stderr bytes.Buffer
	code := app.Run(pbmcArgs(in, out, "--plot-genes", "G1,G50,NOPE"), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run exit %d, err=%s", code, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if lines[0] != "cluster\tgene\tp_val\tavg_log2FC\tpct.1\tpct.2\tp_val_adj" || len(lines) < 2 {
		t.Fatalf("unexpected marker output:\n%s", stdout.String())
	}

	for _, f := range pbmcapp.OutputFiles("text", true, false) {
		if st, err := os.Stat(filepath.Join(out, f)); err != nil || st.Size() == 0 {
			t.Fatalf("missing output %s: %v", f, err)
		}
	}
	saved, err := os.ReadFile(filepath.Join(out, "markers.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(saved) != stdout.String() {
		t.Fatalf("markers.tsv differs from stdout")
	}

	m, err := config.ReadManifest(filepath.Join(out, config.ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != config.StatusOK || m.Cells != 60 || len(m.Clusters) < 2 || m.RunID == "" {
		t.Fatalf("manifest: %+v", m)
	}
	found := false
	for _, w := range m.Warnings {
		found = found || strings.Contains(w, "NOPE")
	}
	if !found {
		t.Fatalf("missing-gene warning not recorded: %v", m.Warnings)
	}
	if _, err := os.Stat(filepath.Join(out, outdir.LockName)); err != nil {
		t.Fatalf("lock file: %v", err)
	}
}

func TestPBMCClusterLabels(t *testing.T) {
	in := writeTenX(t, 30)
	out := filepath.Join(t.TempDir(), "run")

	var stdout, stderr bytes.Buffer
	code := app.Run(pbmcArgs(in, out, "--cluster-labels", "0=Alpha", "-o", "jsonl"), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run exit %d, err=%s", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(out, "umap_labelled.jpg")); err != nil {
		t.Fatal(err)
	}
	cells, err := os.ReadFile(filepath.Join(out, "cells.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	var first api.CellV1
	dec := json.NewDecoder(bytes.NewReader(cells))
	seen := map[string]bool{}
	for dec.More() {
		if err := dec.Decode(&first); err != nil {
			t.Fatal(err)
		}
		seen[first.Ident] = true
	}
	if !seen["Alpha"] || seen["0"] {
		t.Fatalf("cluster 0 not renamed: %v", seen)
	}
}

func TestParallelMatchesEqualSerial(t *testing.T) {
	in := writeTenX(t, 30)

	run := func(threads int) string {
		var out, errB bytes.Buffer
		code := app.Run(pbmcArgs(in, filepath.Join(t.TempDir(), "run"),
			"--threads", fmt.Sprint(threads), "--output", "json"), &out, &errB)
		if code != 0 {
			t.Fatalf("exit %d err %s", code, errB.String())
		}
		return out.String()
	}

	serial := run(1)
	parallel := run(4)

	if serial != parallel {
		t.Fatalf("parallel output differs from serial\nserial: %s\nparallel:%s", serial, parallel)
	}
}

func TestCellCycleEndToEnd(t *testing.T) {
	in := writeExpression(t, 45)
	out := filepath.Join(t.TempDir(), "cc")

	var stdout, stderr bytes.Buffer
	code := app.Run(cellCycleArgs(in, out), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run exit %d, err=%s", code, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if lines[0] != "cell\tS.Score\tG2M.Score\tPhase" || len(lines) != 46 {
		t.Fatalf("unexpected phase output (%d lines):\n%s", len(lines), stdout.String())
	}
	// cell_0 is in the S-high third, cell_1 in the G2/M-high third.
	if !strings.HasSuffix(lines[1], "\tS") || !strings.HasSuffix(lines[2], "\tG2M") {
		t.Fatalf("phases:\n%s\n%s", lines[1], lines[2])
	}
	for _, f := range []string{"pca_genes.txt", "pca_genes_regressed.txt", "ridge.jpg",
		"pca_cellcycle_before.jpg", "pca_cellcycle_after.jpg", "cells.tsv", config.ManifestName} {
		if _, err := os.Stat(filepath.Join(out, f)); err != nil {
			t.Fatalf("missing output %s: %v", f, err)
		}
	}
	m, err := config.ReadManifest(filepath.Join(out, config.ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	if m.Phases["S"] == 0 || m.Phases["G2M"] == 0 {
		t.Fatalf("phase counts: %v", m.Phases)
	}
	// Only 40 of the built-in cycle genes exist in the matrix; both cycle PCAs
	// must say which ones they left out.
	var pcaWarnings int
	for _, w := range m.Warnings {
		if strings.Contains(w, "cell-cycle genes not in scale.data") {
			pcaWarnings++
		}
	}
	if pcaWarnings != 2 {
		t.Fatalf("want 2 cycle PCA warnings, got %d: %v", pcaWarnings, m.Warnings)
	}
}

func TestCellCycleWithoutRegression(t *testing.T) {
	in := writeExpression(t, 30)
	out := filepath.Join(t.TempDir(), "cc")

	var stdout, stderr bytes.Buffer
	if code := app.Run(cellCycleArgs(in, out, "--regress", "none", "-o", "json"), &stdout, &stderr); code != 0 {
		t.Fatalf("run exit %d, err=%s", code, stderr.String())
	}
	var rows []api.PhaseV1
	if err := json.Unmarshal(stdout.Bytes(), &rows); err != nil || len(rows) != 30 {
		t.Fatalf("json rows: %v (%d)", err, len(rows))
	}
	if _, err := os.Stat(filepath.Join(out, "pca_cellcycle_after.jpg")); !os.IsNotExist(err) {
		t.Fatalf("after plot written without regression: %v", err)
	}
}

func TestUsageAndRuntimeErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := app.Run([]string{"pbmc", filepath.Join(t.TempDir(), "nope"), "-d", t.TempDir()}, &stdout, &stderr); code != 2 {
		t.Fatalf("missing input: want exit 2, got %d (%s)", code, stderr.String())
	}
	if code := app.Run([]string{"pbmc", "x", "--resolution", "-1"}, &stdout, &stderr); code != 2 {
		t.Fatalf("bad param: want exit 2, got %d", code)
	}
	if code := app.Run([]string{"cellcycle", "x", "--regress", "sideways"}, &stdout, &stderr); code != 2 {
		t.Fatalf("bad regress: want exit 2, got %d", code)
	}

	in := writeTenX(t, 10)
	dir := filepath.Join(t.TempDir(), "busy")
	d, err := outdir.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	stderr.Reset()
	if code := app.Run(pbmcArgs(in, dir), &stdout, &stderr); code != 3 {
		t.Fatalf("locked outdir: want exit 3, got %d", code)
	}
	if !strings.Contains(stderr.String(), "error:") {
		t.Fatalf("stderr: %q", stderr.String())
	}
}

func TestVersionAndFormats(t *testing.T) {
	var out bytes.Buffer
	if code := app.Run([]string{"formats"}, &out, &out); code != 0 || out.String() != "json\njsonl\ntext\n" {
		t.Fatalf("formats: %d %q", code, out.String())
	}
	out.Reset()
	if code := app.Run([]string{"version"}, &out, &out); code != 0 || !strings.HasPrefix(out.String(), "scflow ") {
		t.Fatalf("version: %d %q", code, out.String())
	}
}

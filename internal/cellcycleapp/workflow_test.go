package cellcycleapp

import (
	"os"
	"path/filepath"
	"testing"

	"scflow/internal/cli"
	"scflow/internal/genelist"
)

func TestGenesSources(t *testing.T) {
	dir := t.TempDir()
	phase := filepath.Join(dir, "phase.txt")
	s := filepath.Join(dir, "s.txt")
	g := filepath.Join(dir, "g.txt")
	for path, body := range map[string]string{
		phase: "S\tPCNA\nG2M\tTOP2A\n",
		s:     "MCM5\nPCNA\n",
		g:     "MKI67\n",
	} {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Genes(&cli.CellCycleOptions{})
	if err != nil || len(got.S) != len(genelist.CellCycle().S) {
		t.Fatalf("built-in: %v %d", err, len(got.S))
	}
	got, err = Genes(&cli.CellCycleOptions{PhaseGenes: phase})
	if err != nil || got.S[0] != "PCNA" || got.G2M[0] != "TOP2A" {
		t.Fatalf("phase file: %v %+v", err, got)
	}
	got, err = Genes(&cli.CellCycleOptions{SGenes: s, G2MGenes: g})
	if err != nil || len(got.S) != 2 || got.G2M[0] != "MKI67" {
		t.Fatalf("explicit lists: %v %+v", err, got)
	}
	if _, err := Genes(&cli.CellCycleOptions{RegevGenes: filepath.Join(dir, "none.txt")}); err == nil {
		t.Fatal("missing regev file must fail")
	}
}

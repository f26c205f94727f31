package fileio

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeGz(t *testing.T, path, data string) {
	t.Helper()
	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gw := gzip.NewWriter(fh)
	if _, err := gw.Write([]byte(data)); err != nil {
		t.Fatalf("write gz: %v", err)
	}
	_ = gw.Close()
	_ = fh.Close()
}

func readAll(t *testing.T, path string) string {
	t.Helper()
	rc, err := Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestOpenPlainAndGzip(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.tsv")
	if err := os.WriteFile(plain, []byte("x\ty\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gz := filepath.Join(dir, "b.tsv.gz")
	writeGz(t, gz, "g\th\n")
	// gzip without suffix is detected by magic bytes
	magic := filepath.Join(dir, "c.tsv")
	writeGz(t, magic, "m\tn\n")

	if got := readAll(t, plain); got != "x\ty\n" {
		t.Fatalf("plain: %q", got)
	}
	if got := readAll(t, gz); got != "g\th\n" {
		t.Fatalf("gz: %q", got)
	}
	if got := readAll(t, magic); got != "m\tn\n" {
		t.Fatalf("magic: %q", got)
	}
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	writeGz(t, filepath.Join(dir, "genes.tsv.gz"), "G\n")
	p, err := FirstExisting(dir, "features.tsv", "genes.tsv")
	if err != nil || filepath.Base(p) != "genes.tsv.gz" {
		t.Fatalf("got %q, %v", p, err)
	}
	if _, err := FirstExisting(dir, "barcodes.tsv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

package integration

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"scflow/internal/app"
	"scflow/internal/config"
)

func TestCancelledRunExit130(t *testing.T) {
	in := writeTenX(t, 30)
	out := filepath.Join(t.TempDir(), "run")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := app.RunContext(ctx, pbmcArgs(in, out), io.Discard, io.Discard)
	if code != 130 {
		t.Fatalf("expected exit 130 on cancel, got %d", code)
	}
	m, err := config.ReadManifest(filepath.Join(out, config.ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != config.StatusCancelled {
		t.Fatalf("status %q", m.Status)
	}
}

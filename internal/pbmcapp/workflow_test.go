package pbmcapp

import (
	"testing"

	"scflow/internal/config"
)

func TestOutputFiles(t *testing.T) {
	base := OutputFiles("json", false, false)
	all := OutputFiles("json", true, true)
	if len(all) != len(base)+3 {
		t.Fatalf("want 3 optional files, got %v", all)
	}
	if base[len(base)-1] != config.ManifestName || base[len(base)-2] != "cells.json" {
		t.Fatalf("tail: %v", base)
	}
}

func TestPlotOptions(t *testing.T) {
	o := PlotOptions(config.PlotParams{Width: 6, Height: 3, DPI: 72.9})
	if o.Width != 6 || o.Height != 3 || o.DPI != 72 {
		t.Fatalf("%+v", o)
	}
}

// Package plots renders diagnostic and result figures as JPEG images.
package plots

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"scflow/internal/dataset"
)

var (
	dark  = color.Gray{Y: 0x30}
	light = color.Gray{Y: 0xc8}
	red   = color.RGBA{R: 0xd7, G: 0x30, B: 0x27, A: 0xff}
	blue  = color.RGBA{R: 0x31, G: 0x5f, B: 0xbf, A: 0xff}
)

// ErrFormat is returned for output paths that are not .jpg or .jpeg.
var ErrFormat = errors.New("plots: only .jpg output is supported")

// Options sizes a figure. Width and Height are per panel, in inches.
type Options struct {
	Width  float64
	Height float64
	DPI    int
	NCol   int // panels per row for multi-feature plots, default up to 3
}

// DefaultOptions returns 5×4 inch panels at 100 dpi.
func DefaultOptions() Options {
	return Options{Width: 5, Height: 4, DPI: 100}
}

func (o Options) fill() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Height <= 0 {
		o.Height = d.Height
	}
	if o.DPI <= 0 {
		o.DPI = d.DPI
	}
	return o
}

// CheckPath rejects output paths without a JPEG extension.
func CheckPath(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return nil
	}
	return fmt.Errorf("%w: %s", ErrFormat, path)
}

// save lays panels out row-major on a grid with ncol columns and writes the
// JPEG.
func save(path string, o Options, ncol int, panels []*plot.Plot) error {
	if err := CheckPath(path); err != nil {
		return err
	}
	if len(panels) == 0 {
		return fmt.Errorf("plots: nothing to draw for %s", path)
	}
	o = o.fill()
	if ncol <= 0 || ncol > len(panels) {
		ncol = len(panels)
	}
	nrow := (len(panels) + ncol - 1) / ncol
	w := vg.Length(o.Width*float64(ncol)) * vg.Inch
	h := vg.Length(o.Height*float64(nrow)) * vg.Inch
	img := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(o.DPI))
	dc := draw.New(img)

	grid := make([][]*plot.Plot, nrow)
	for r := range grid {
		grid[r] = make([]*plot.Plot, ncol)
		for c := range grid[r] {
			if i := r*ncol + c; i < len(panels) {
				grid[r][c] = panels[i]
			}
		}
	}
	tiles := draw.Tiles{
		Rows: nrow, Cols: ncol,
		PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	canvases := plot.Align(grid, tiles, dc)
	for r := range grid {
		for c, p := range grid[r] {
			if p != nil {
				p.Draw(canvases[r][c])
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	jpg := vgimg.JpegCanvas{Canvas: img}
	if _, err := jpg.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("plots: write %s: %w", path, err)
	}
	return f.Close()
}

func defaultCols(n int, o Options) int {
	if o.NCol > 0 {
		return o.NCol
	}
	return min(n, 3)
}

// groupColors assigns one color per level. Up to seven levels use the
// plotutil defaults, more spread over the hue wheel.
func groupColors(levels []string) map[string]color.Color {
	out := make(map[string]color.Color, len(levels))
	if len(levels) <= len(plotutil.DefaultColors) {
		for i, l := range levels {
			out[l] = plotutil.Color(i)
		}
		return out
	}
	cols := palette.Rainbow(len(levels), palette.Red, palette.Magenta, 0.75, 0.9, 1).Colors()
	for i, l := range levels {
		out[l] = cols[i]
	}
	return out
}

// grouping returns per-cell labels and their ordered levels.
func grouping(ds *dataset.Dataset, by string) ([]string, []string, error) {
	labels, err := ds.Groups(by)
	if err != nil {
		return nil, nil, err
	}
	return labels, dataset.Levels(labels), nil
}

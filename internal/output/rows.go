// internal/output/rows.go
package output

import (
	"math"
	"strconv"
	"strings"

	"scflow/internal/markers"
	"scflow/pkg/api"
)

// Num renders a float for TSV output. NaN is written as NA.
func Num(x float64) string {
	if math.IsNaN(x) {
		return "NA"
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// IsROC reports whether a marker table came from the roc test.
func IsROC(list []markers.Marker) bool {
	return len(list) > 0 && math.IsNaN(list[0].PVal)
}

// FormatMarkerRow returns the MarkerHeader columns for m (no trailing newline).
func FormatMarkerRow(m markers.Marker) string {
	return strings.Join([]string{
		m.Cluster, m.Gene, Num(m.PVal), Num(m.AvgLog2FC), Num(m.Pct1), Num(m.Pct2), Num(m.PValAdj),
	}, "\t")
}

// FormatROCRow returns the ROCHeader columns for m.
func FormatROCRow(m markers.Marker) string {
	return strings.Join([]string{
		m.Cluster, m.Gene, Num(m.AUC), Num(m.AvgDiff), Num(m.Power), Num(m.AvgLog2FC), Num(m.Pct1), Num(m.Pct2),
	}, "\t")
}

// FormatPhaseRow returns the PhaseHeader columns for p.
func FormatPhaseRow(p api.PhaseV1) string {
	return strings.Join([]string{p.Cell, Num(p.SScore), Num(p.G2MScore), p.Phase}, "\t")
}

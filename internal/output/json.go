// internal/output/json.go
package output

import (
	"encoding/json"
	"io"
	"math"

	"scflow/internal/markers"
	"scflow/pkg/api"
)

func optional(x float64) *float64 {
	if math.IsNaN(x) {
		return nil
	}
	return &x
}

// ToAPIMarker converts a marker to the stable wire schema (v1).
func ToAPIMarker(m markers.Marker) api.MarkerV1 {
	return api.MarkerV1{
		Cluster:   m.Cluster,
		Gene:      m.Gene,
		PVal:      optional(m.PVal),
		AvgLog2FC: m.AvgLog2FC,
		Pct1:      m.Pct1,
		Pct2:      m.Pct2,
		PValAdj:   optional(m.PValAdj),
		AUC:       m.AUC,
		Power:     m.Power,
		AvgDiff:   m.AvgDiff,
	}
}

func toAPIMarkers(list []markers.Marker) []api.MarkerV1 {
	out := make([]api.MarkerV1, 0, len(list))
	for _, m := range list {
		out = append(out, ToAPIMarker(m))
	}
	return out
}

// EncodePretty writes v as indented JSON to w.
func EncodePretty(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteMarkersJSON writes a single JSON array of v1 markers (pretty-indented).
func WriteMarkersJSON(w io.Writer, list []markers.Marker) error {
	return EncodePretty(w, toAPIMarkers(list))
}

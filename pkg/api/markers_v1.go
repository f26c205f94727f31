// pkg/api/markers_v1.go
package api

// MarkerV1 is the stable JSON/JSONL schema for one differentially expressed
// gene. Keep fields, names, and types stable. Add new fields only with ",omitempty".
type MarkerV1 struct {
	Cluster   string   `json:"cluster"`
	Gene      string   `json:"gene"`
	PVal      *float64 `json:"p_val"` // null for roc
	AvgLog2FC float64  `json:"avg_log2FC"`
	Pct1      float64  `json:"pct.1"`
	Pct2      float64  `json:"pct.2"`
	PValAdj   *float64 `json:"p_val_adj"` // null for roc

	AUC     float64 `json:"myAUC,omitempty"`
	Power   float64 `json:"power,omitempty"`
	AvgDiff float64 `json:"avg_diff,omitempty"`
}

// CellV1 is one row of per-cell results.
type CellV1 struct {
	Cell  string             `json:"cell"`
	Ident string             `json:"ident"`
	Meta  map[string]any     `json:"meta,omitempty"`
	Embed map[string]float64 `json:"embeddings,omitempty"`
}

// PhaseV1 is one cell's cell-cycle assignment.
type PhaseV1 struct {
	Cell     string  `json:"cell"`
	SScore   float64 `json:"S.Score"`
	G2MScore float64 `json:"G2M.Score"`
	Phase    string  `json:"Phase"`
}

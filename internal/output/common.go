package output

// Output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// MarkerHeader is the canonical header row for text/TSV marker tables.
// Keep this as the single source of truth; all writers should use it.
const MarkerHeader = "cluster\tgene\tp_val\tavg_log2FC\tpct.1\tpct.2\tp_val_adj"

// ROCHeader replaces MarkerHeader for the roc test.
const ROCHeader = "cluster\tgene\tmyAUC\tavg_diff\tpower\tavg_log2FC\tpct.1\tpct.2"

// PhaseHeader is the header row for streamed cell-cycle assignments.
const PhaseHeader = "cell\tS.Score\tG2M.Score\tPhase"

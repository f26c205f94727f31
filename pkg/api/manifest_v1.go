// pkg/api/manifest_v1.go
package api

// ManifestV1 describes one finished run. It is written as run.yaml next to
// the run's other outputs.
type ManifestV1 struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	Tool       string         `json:"tool" yaml:"tool"`
	Version    string         `json:"version" yaml:"version"`
	Input      string         `json:"input" yaml:"input"`
	StartedAt  string         `json:"started_at" yaml:"started_at"`
	FinishedAt string         `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Status     string         `json:"status" yaml:"status"` // ok | failed | cancelled
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	Params     map[string]any `json:"params" yaml:"params"`

	Cells    int            `json:"cells" yaml:"cells"`
	Genes    int            `json:"genes" yaml:"genes"`
	Stages   []StageV1      `json:"stages,omitempty" yaml:"stages,omitempty"`
	QC       []QCStatV1     `json:"qc,omitempty" yaml:"qc,omitempty"`
	Clusters map[string]int `json:"clusters,omitempty" yaml:"clusters,omitempty"`
	Phases   map[string]int `json:"phases,omitempty" yaml:"phases,omitempty"`
	Outputs  []string       `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Warnings []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// StageV1 is one timed pipeline stage.
type StageV1 struct {
	Name    string  `json:"name" yaml:"name"`
	Seconds float64 `json:"seconds" yaml:"seconds"`
	Cells   int     `json:"cells" yaml:"cells"`
	Genes   int     `json:"genes" yaml:"genes"`
}

// QCStatV1 summarizes a QC metric column.
type QCStatV1 struct {
	Column string  `json:"column" yaml:"column"`
	Min    float64 `json:"min" yaml:"min"`
	Median float64 `json:"median" yaml:"median"`
	Max    float64 `json:"max" yaml:"max"`
}

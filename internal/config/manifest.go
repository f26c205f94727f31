package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"scflow/pkg/api"
)

// ManifestName is the manifest file written into every output directory.
const ManifestName = "run.yaml"

// Run statuses.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// NewManifest starts a manifest for a run with a fresh run id.
func NewManifest(tool, version, input string, p Params) *api.ManifestV1 {
	return &api.ManifestV1{
		RunID:     uuid.NewString(),
		Tool:      tool,
		Version:   version,
		Input:     input,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Status:    StatusOK,
		Params:    p.Values(),
	}
}

// Finish stamps the end time and the outcome of err.
func Finish(m *api.ManifestV1, err error, cancelled bool) {
	m.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	switch {
	case cancelled:
		m.Status = StatusCancelled
	case err != nil:
		m.Status = StatusFailed
	default:
		m.Status = StatusOK
	}
	if err != nil {
		m.Error = err.Error()
	}
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m *api.ManifestV1) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	return f.Close()
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*api.ManifestV1, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m api.ManifestV1
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

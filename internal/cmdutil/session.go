package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"scflow/internal/config"
	"scflow/internal/outdir"
	"scflow/internal/pipeline"
	"scflow/internal/version"
	"scflow/pkg/api"
)

// Session is one workflow run: its logger, locked output directory and the
// manifest that is written when the run ends.
type Session struct {
	Log      *zap.Logger
	Dir      *outdir.Dir
	Manifest *api.ManifestV1
	Quiet    bool
}

// OpenSession locks dir and starts the manifest.
func OpenSession(log *zap.Logger, dir, tool, input string, p config.Params, quiet bool) (*Session, error) {
	d, err := outdir.Open(dir)
	if err != nil {
		return nil, err
	}
	m := config.NewManifest(tool, version.Version, input, p)
	log.Info("run started", zap.String("tool", tool), zap.String("run_id", m.RunID), zap.String("outdir", d.Root()))
	return &Session{Log: log, Dir: d, Manifest: m, Quiet: quiet}, nil
}

// Warnf logs a warning and keeps it in the manifest.
func (s *Session) Warnf(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	s.Manifest.Warnings = append(s.Manifest.Warnings, msg)
	Warnf(s.Log, s.Quiet, "%s", msg)
}

// Observe records a finished stage; pass it to pipeline.Run.
func (s *Session) Observe(t pipeline.Timing) {
	s.Manifest.Stages = append(s.Manifest.Stages, api.StageV1{
		Name: t.Stage, Seconds: t.Duration.Seconds(), Cells: t.Cells, Genes: t.Genes,
	})
	s.Manifest.Cells = t.Cells
	s.Manifest.Genes = t.Genes
}

// Path returns the location of an output file and records it.
func (s *Session) Path(name string) string {
	s.Manifest.Outputs = append(s.Manifest.Outputs, name)
	return s.Dir.Path(name)
}

// WriteFile creates an output file and hands it to write.
func (s *Session) WriteFile(name string, write func(io.Writer) error) error {
	s.Manifest.Outputs = append(s.Manifest.Outputs, name)
	f, err := s.Dir.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	return f.Close()
}

// Close writes run.yaml with the outcome of runErr and releases the
// directory. The returned error is runErr, or the manifest error when the run
// itself succeeded.
func (s *Session) Close(runErr error) error {
	config.Finish(s.Manifest, runErr, errors.Is(runErr, context.Canceled))
	merr := config.WriteManifest(s.Dir.Path(config.ManifestName), s.Manifest)
	uerr := s.Dir.Close()
	switch {
	case runErr != nil:
		if merr != nil {
			s.Log.Error("manifest not written", zap.Error(merr))
		}
		return runErr
	case merr != nil:
		return merr
	default:
		s.Log.Info("run finished", zap.String("run_id", s.Manifest.RunID), zap.Int("stages", len(s.Manifest.Stages)))
		return uerr
	}
}

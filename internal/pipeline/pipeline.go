// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scflow/internal/dataset"
)

// Stage is one named step of a workflow.
type Stage struct {
	Name string
	Run  func(ctx context.Context, ds *dataset.Dataset) error
}

// Timing records one finished stage.
type Timing struct {
	Stage    string
	Duration time.Duration
	Cells    int
	Genes    int
}

// Run executes stages in order. It stops at the first error, which is wrapped
// with the stage name, or when ctx is cancelled between stages. observe, when
// non-nil, is called after every successful stage.
func Run(ctx context.Context, log *zap.Logger, ds *dataset.Dataset, stages []Stage, observe func(Timing)) error {
	if log == nil {
		log = zap.NewNop()
	}
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.Run == nil {
			return fmt.Errorf("stage %d (%s): no run func", i, st.Name)
		}
		log.Debug("stage start", zap.String("stage", st.Name), zap.Int("cells", ds.NumCells()), zap.Int("genes", ds.NumGenes()))
		start := time.Now()
		if err := st.Run(ctx, ds); err != nil {
			return fmt.Errorf("%s: %w", st.Name, err)
		}
		t := Timing{Stage: st.Name, Duration: time.Since(start), Cells: ds.NumCells(), Genes: ds.NumGenes()}
		log.Info("stage done",
			zap.String("stage", st.Name),
			zap.Duration("took", t.Duration),
			zap.Int("cells", t.Cells),
			zap.Int("genes", t.Genes))
		if observe != nil {
			observe(t)
		}
	}
	return nil
}

// Func adapts a dataset-only function into a Stage.
func Func(name string, fn func(ds *dataset.Dataset) error) Stage {
	return Stage{Name: name, Run: func(_ context.Context, ds *dataset.Dataset) error { return fn(ds) }}
}

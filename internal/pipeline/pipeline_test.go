package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"scflow/internal/dataset"
	"scflow/internal/sparse"
)

func tiny(t *testing.T) *dataset.Dataset {
	t.Helper()
	m, err := sparse.FromDense(2, 3, [][]float64{{1, 0, 2}, {0, 3, 1}})
	if err != nil {
		t.Fatal(err)
	}
	ds, err := dataset.New("p", []string{"A", "B"}, []string{"x", "y", "z"}, m, dataset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestRunOrderAndTimings(t *testing.T) {
	ds := tiny(t)
	var order []string
	var seen []Timing
	stages := []Stage{
		Func("one", func(*dataset.Dataset) error { order = append(order, "one"); return nil }),
		Func("two", func(d *dataset.Dataset) error {
			order = append(order, "two")
			return d.SubsetCells([]int{0, 2})
		}),
	}
	if err := Run(context.Background(), zaptest.NewLogger(t), ds, stages, func(tm Timing) { seen = append(seen, tm) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 2 || order[0] != "one" || order[1] != "two" {
		t.Fatalf("order: %v", order)
	}
	if len(seen) != 2 || seen[1].Stage != "two" || seen[1].Cells != 2 || seen[0].Cells != 3 {
		t.Fatalf("timings: %+v", seen)
	}
}

func TestRunStopsAtError(t *testing.T) {
	ds := tiny(t)
	boom := errors.New("boom")
	ran := false
	stages := []Stage{
		Func("bad", func(*dataset.Dataset) error { return boom }),
		Func("never", func(*dataset.Dataset) error { ran = true; return nil }),
	}
	err := Run(context.Background(), nil, ds, stages, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if ran {
		t.Fatal("stage after error ran")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ds := tiny(t)
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	stages := []Stage{
		Func("cancel", func(*dataset.Dataset) error { cancel(); return nil }),
		Func("never", func(*dataset.Dataset) error { ran = true; return nil }),
	}
	err := Run(ctx, nil, ds, stages, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if ran {
		t.Fatal("stage ran after cancel")
	}
}

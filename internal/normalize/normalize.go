// Package normalize turns raw counts into the data slot.
package normalize

import (
	"fmt"
	"math"

	"scflow/internal/dataset"
)

// Methods.
const (
	LogNormalize = "LogNormalize"
	RC           = "RC"
	CLR          = "CLR"
)

// DefaultScaleFactor is the per-cell target total.
const DefaultScaleFactor = 1e4

// Options controls Run.
type Options struct {
	Method      string
	ScaleFactor float64
}

// Run fills ds.Data from ds.Counts.
//
//	LogNormalize: log1p(x / total * sf)
//	RC:           x / total * sf
//	CLR:          per gene, log1p(x / exp(sum(log1p(x)) / ncells))
//
// Cells with no counts get an all-zero column.
func Run(ds *dataset.Dataset, o Options) error {
	if o.Method == "" {
		o.Method = LogNormalize
	}
	if o.ScaleFactor == 0 {
		o.ScaleFactor = DefaultScaleFactor
	}
	if o.ScaleFactor < 0 {
		return fmt.Errorf("normalize: scale factor must be > 0, got %g", o.ScaleFactor)
	}

	switch o.Method {
	case LogNormalize, RC:
		totals := ds.Counts.ColSums()
		logged := o.Method == LogNormalize
		ds.Data = ds.Counts.MapNonZero(func(_, c int, v float64) float64 {
			if totals[c] == 0 {
				return 0
			}
			x := v / totals[c] * o.ScaleFactor
			if logged {
				return math.Log1p(x)
			}
			return x
		})
	case CLR:
		n := float64(ds.NumCells())
		logSum := make([]float64, ds.NumGenes())
		for k, r := range ds.Counts.RowIdx {
			if v := ds.Counts.Val[k]; v > 0 {
				logSum[r] += math.Log1p(v)
			}
		}
		geo := make([]float64, len(logSum))
		for g, s := range logSum {
			geo[g] = math.Exp(s / n)
		}
		ds.Data = ds.Counts.MapNonZero(func(r, _ int, v float64) float64 {
			return math.Log1p(v / geo[r])
		})
	default:
		return fmt.Errorf("normalize: unknown method %q (want %s, %s or %s)", o.Method, LogNormalize, RC, CLR)
	}
	ds.Log("NormalizeData", map[string]any{"normalization.method": o.Method, "scale.factor": o.ScaleFactor})
	return nil
}

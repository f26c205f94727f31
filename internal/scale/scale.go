// Package scale regresses unwanted per-cell covariates out of each gene and
// then centers and scales genes into the dense scale.data slot.
package scale

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"scflow/internal/dataset"
	"scflow/internal/runutil"
)

// DefaultScaleMax clips scaled values from above.
const DefaultScaleMax = 10

// Options controls Run.
type Options struct {
	// Features to scale. Empty means the variable features, or every gene
	// when AllGenes is set or no variable features exist.
	Features   []string
	AllGenes   bool
	RegressOut []string // numeric metadata columns
	NoCenter   bool
	NoScale    bool
	ScaleMax   float64
	Threads    int
}

// Result reports what Run did.
type Result struct {
	Genes   int
	Missing []string
}

// Run fills ds.Scaled.
func Run(ctx context.Context, ds *dataset.Dataset, o Options) (Result, error) {
	if ds.Data == nil {
		return Result{}, fmt.Errorf("scale: data slot is empty; normalize first")
	}
	if o.ScaleMax == 0 {
		o.ScaleMax = DefaultScaleMax
	}

	features := o.Features
	switch {
	case len(features) > 0:
	case o.AllGenes || len(ds.VariableFeatures()) == 0:
		features = ds.Genes
	default:
		features = ds.VariableFeatures()
	}
	rows, missing := ds.Resolve(features)
	if len(rows) == 0 {
		return Result{Missing: missing}, fmt.Errorf("%w: none of %d requested features are present", dataset.ErrUnknownGene, len(features))
	}

	n := ds.NumCells()
	resid, err := newResidualizer(ds, o.RegressOut)
	if err != nil {
		return Result{}, err
	}

	byGene := ds.Data.Transpose()
	out := mat.NewDense(len(rows), n, nil)
	err = runutil.ParallelRange(ctx, o.Threads, len(rows), func(ctx context.Context, lo, hi int) error {
		buf := make([]float64, n)
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for k := range buf {
				buf[k] = 0
			}
			idx, val := byGene.Col(rows[i])
			for k, c := range idx {
				buf[c] = val[k]
			}
			if resid != nil {
				resid.apply(buf)
			}
			standardize(buf, !o.NoCenter, !o.NoScale, o.ScaleMax)
			out.SetRow(i, buf)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = ds.Genes[r]
	}
	ds.Scaled = dataset.NewScaled(names, out)
	ds.Log("ScaleData", map[string]any{
		"features": len(names), "vars.to.regress": o.RegressOut,
		"do.center": !o.NoCenter, "do.scale": !o.NoScale, "scale.max": o.ScaleMax,
	})
	return Result{Genes: len(names), Missing: missing}, nil
}

// residualizer removes the least-squares fit on the design [1, covariates].
// x and h are shared read-only across goroutines.
type residualizer struct {
	x *mat.Dense // n × p design
	h *mat.Dense // n × p, X (XᵀX)⁻¹
}

func newResidualizer(ds *dataset.Dataset, cols []string) (*residualizer, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	n := ds.NumCells()
	p := len(cols) + 1
	if n <= p {
		return nil, fmt.Errorf("scale: %d cells cannot support %d regression terms", n, p)
	}
	design := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
	}
	for j, name := range cols {
		v, err := ds.Meta.Numeric(name)
		if err != nil {
			return nil, fmt.Errorf("scale: vars.to.regress: %w", err)
		}
		for i, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("scale: vars.to.regress: %q has non-finite value at cell %s", name, ds.Cells[i])
			}
			design.Set(i, j+1, x)
		}
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, design.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok || chol.Cond() > 1e12 {
		return nil, fmt.Errorf("scale: vars.to.regress %v are collinear or constant", cols)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("scale: vars.to.regress: %w", err)
	}
	h := mat.NewDense(n, p, nil)
	h.Mul(design, &inv)
	return &residualizer{x: design, h: h}, nil
}

// apply replaces y with y - H Xᵀ y, the OLS residual.
func (r *residualizer) apply(y []float64) {
	n, p := r.x.Dims()
	coef := make([]float64, p)
	for i := 0; i < n; i++ {
		row := r.x.RawRowView(i)
		for j := 0; j < p; j++ {
			coef[j] += row[j] * y[i]
		}
	}
	for i := 0; i < n; i++ {
		row := r.h.RawRowView(i)
		fit := 0.0
		for j := 0; j < p; j++ {
			fit += row[j] * coef[j]
		}
		y[i] -= fit
	}
}

// standardize centers and scales v in place. Constant rows become zeros when
// scaling.
func standardize(v []float64, center, scale bool, max float64) {
	n := float64(len(v))
	mean := 0.0
	for _, x := range v {
		mean += x
	}
	mean /= n
	if center {
		for i := range v {
			v[i] -= mean
		}
	}
	if scale {
		// sd when centered, root-mean-square otherwise
		ss := 0.0
		for _, x := range v {
			ss += x * x
		}
		sd := math.Sqrt(ss / (n - 1))
		if sd == 0 || math.IsNaN(sd) {
			for i := range v {
				v[i] = 0
			}
			return
		}
		for i := range v {
			v[i] /= sd
		}
	}
	for i := range v {
		if v[i] > max {
			v[i] = max
		}
	}
}

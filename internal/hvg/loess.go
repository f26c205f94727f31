package hvg

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// maxAnchors bounds the number of direct local fits; other points are
// linearly interpolated between anchors.
const maxAnchors = 200

// Loess fits a local quadratic regression with tricube weights (span is the
// fraction of points in each neighborhood) and returns fitted values at x.
func Loess(x, y []float64, span float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, j := range order {
		xs[i], ys[i] = x[j], y[j]
	}

	q := int(math.Floor(float64(n) * span))
	if q < 3 {
		q = 3
	}
	if q > n {
		q = n
	}

	anchors := anchorPoints(xs)
	fits := make([]float64, len(anchors))
	for i, a := range anchors {
		fits[i] = localFit(xs, ys, a, q, span)
	}
	for i, j := range order {
		out[j] = interpolate(anchors, fits, xs[i])
	}
	return out
}

func anchorPoints(xs []float64) []float64 {
	n := len(xs)
	if n <= maxAnchors {
		return dedupe(xs)
	}
	lo, hi := xs[0], xs[n-1]
	if hi == lo {
		return []float64{lo}
	}
	out := make([]float64, maxAnchors)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(maxAnchors-1)
	}
	return out
}

func dedupe(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for i, v := range xs {
		if i == 0 || v != xs[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func interpolate(ax, ay []float64, x float64) float64 {
	if len(ax) == 1 || x <= ax[0] {
		return ay[0]
	}
	if x >= ax[len(ax)-1] {
		return ay[len(ay)-1]
	}
	k := sort.SearchFloat64s(ax, x)
	if ax[k] == x {
		return ay[k]
	}
	t := (x - ax[k-1]) / (ax[k] - ax[k-1])
	return ay[k-1] + t*(ay[k]-ay[k-1])
}

// localFit evaluates the weighted quadratic fit at x0 using the q points
// nearest to x0.
func localFit(xs, ys []float64, x0 float64, q int, span float64) float64 {
	n := len(xs)
	// grow [lo,hi) around the insertion point until it holds q points
	lo := sort.SearchFloat64s(xs, x0)
	hi := lo
	for hi-lo < q {
		switch {
		case lo == 0:
			hi++
		case hi == n:
			lo--
		case x0-xs[lo-1] <= xs[hi]-x0:
			lo--
		default:
			hi++
		}
	}
	d := math.Max(x0-xs[lo], xs[hi-1]-x0)
	if span > 1 {
		d *= math.Sqrt(span)
	}

	var s [5]float64 // sum w*u^k, k=0..4
	var t [3]float64 // sum w*u^k*y, k=0..2
	for i := lo; i < hi; i++ {
		u := xs[i] - x0
		w := 1.0
		if d > 0 {
			r := math.Abs(u) / d
			if r >= 1 {
				continue
			}
			c := 1 - r*r*r
			w = c * c * c
		}
		pow := w
		for k := 0; k < 5; k++ {
			s[k] += pow
			if k < 3 {
				t[k] += pow * ys[i]
			}
			pow *= u
		}
	}
	if s[0] == 0 {
		return 0
	}

	quad := mat.NewSymDense(3, []float64{
		s[0], s[1], s[2],
		s[1], s[2], s[3],
		s[2], s[3], s[4],
	})
	var chol mat.Cholesky
	if chol.Factorize(quad) {
		var b mat.VecDense
		if err := chol.SolveVecTo(&b, mat.NewVecDense(3, t[:])); err == nil && chol.Cond() < 1e12 {
			return b.AtVec(0)
		}
	}
	// Too few distinct x values for a quadratic: fall back to a local line.
	det := s[0]*s[2] - s[1]*s[1]
	if math.Abs(det) > 1e-12*math.Max(1, s[0]*s[2]) {
		return (s[2]*t[0] - s[1]*t[1]) / det
	}
	return t[0] / s[0]
}

package markers

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// obs is one cell's value for a gene and its group (1 or 2).
type obs struct {
	v float64
	g int8
}

// rankSum returns the sum of mid-ranks of group 1 and Σ(t³-t) over tie blocks.
// vals must hold every non-zero observation; zero1 and zero2 count the zeros
// per group, which form one tie block at their sorted position.
func rankSum(vals []obs, zero1, zero2 int) (r1, ties float64) {
	sort.Slice(vals, func(a, b int) bool { return vals[a].v < vals[b].v })
	pos := 0 // ranks assigned so far
	zeros := zero1 + zero2
	zerosDone := zeros == 0
	flushZeros := func() {
		if zerosDone {
			return
		}
		mid := float64(pos) + float64(zeros+1)/2
		r1 += mid * float64(zero1)
		t := float64(zeros)
		ties += t*t*t - t
		pos += zeros
		zerosDone = true
	}
	for i := 0; i < len(vals); {
		if vals[i].v > 0 {
			flushZeros()
		}
		j := i
		for j < len(vals) && vals[j].v == vals[i].v {
			j++
		}
		mid := float64(pos) + float64(j-i+1)/2
		for k := i; k < j; k++ {
			if vals[k].g == 1 {
				r1 += mid
			}
		}
		t := float64(j - i)
		ties += t*t*t - t
		pos += j - i
		i = j
	}
	flushZeros()
	return r1, ties
}

// wilcoxP is the two-sided rank-sum p-value from the normal approximation
// with tie and continuity corrections. It also returns U for group 1.
func wilcoxP(r1, ties float64, n1, n2 int) (p, u float64) {
	a, b := float64(n1), float64(n2)
	n := a + b
	u = r1 - a*(a+1)/2
	mu := a * b / 2
	sigma := math.Sqrt(a * b / 12 * ((n + 1) - ties/(n*(n-1))))
	if sigma == 0 {
		return 1, u
	}
	d := u - mu
	corr := 0.0
	if d > 0 {
		corr = 0.5
	} else if d < 0 {
		corr = -0.5
	}
	z := (d - corr) / sigma
	return math.Min(1, 2*distuv.UnitNormal.Survival(math.Abs(z))), u
}

// welchP is the two-sided Welch t-test p-value.
func welchP(m1, v1 float64, n1 int, m2, v2 float64, n2 int) float64 {
	a, b := v1/float64(n1), v2/float64(n2)
	se := math.Sqrt(a + b)
	if se == 0 || math.IsNaN(se) {
		return 1
	}
	t := (m1 - m2) / se
	df := (a + b) * (a + b) / (a*a/float64(n1-1) + b*b/float64(n2-1))
	st := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return math.Min(1, 2*st.Survival(math.Abs(t)))
}

// lrP compares a logistic regression of group membership on expression with
// the intercept-only model and returns the χ²₁ likelihood-ratio p-value.
func lrP(x []float64, y []bool) float64 {
	n := float64(len(x))
	k := 0.0
	for _, v := range y {
		if v {
			k++
		}
	}
	if k == 0 || k == n {
		return 1
	}
	p0 := k / n
	ll0 := k*math.Log(p0) + (n-k)*math.Log(1-p0)

	// Newton-Raphson on (b0, b1)
	b0, b1 := math.Log(p0/(1-p0)), 0.0
	ll := ll0
	for it := 0; it < 25; it++ {
		var g0, g1, h00, h01, h11 float64
		for i, xi := range x {
			pi := 1 / (1 + math.Exp(-(b0 + b1*xi)))
			yi := 0.0
			if y[i] {
				yi = 1
			}
			w := pi * (1 - pi)
			g0 += yi - pi
			g1 += (yi - pi) * xi
			h00 += w
			h01 += w * xi
			h11 += w * xi * xi
		}
		det := h00*h11 - h01*h01
		if det <= 1e-12 {
			break
		}
		d0 := (h11*g0 - h01*g1) / det
		d1 := (h00*g1 - h01*g0) / det
		b0 += d0
		b1 += d1
		next := logLik(x, y, b0, b1)
		if math.Abs(next-ll) < 1e-10 {
			ll = next
			break
		}
		ll = next
	}
	stat := 2 * (ll - ll0)
	if stat <= 0 || math.IsNaN(stat) {
		return 1
	}
	return distuv.ChiSquared{K: 1}.Survival(stat)
}

func logLik(x []float64, y []bool, b0, b1 float64) float64 {
	ll := 0.0
	for i, xi := range x {
		eta := b0 + b1*xi
		// log(1+e^eta) without overflow
		var l1p float64
		if eta > 0 {
			l1p = eta + math.Log1p(math.Exp(-eta))
		} else {
			l1p = math.Log1p(math.Exp(eta))
		}
		if y[i] {
			ll += eta - l1p
		} else {
			ll -= l1p
		}
	}
	return ll
}

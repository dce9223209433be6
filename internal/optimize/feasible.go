package optimize

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	feasTol  = 1e-9
	boundTol = 1e-12
)

// affine projects onto {x : E x = b} using the pseudo-inverse of E.
type affine struct {
	e   *mat.Dense
	b   []float64
	svd mat.SVD
	rk  int
}

func newAffine(e *mat.Dense, b []float64) (*affine, bool) {
	a := &affine{e: e, b: b}
	if !a.svd.Factorize(e, mat.SVDThin) {
		return nil, false
	}
	a.rk = a.svd.Rank(rcond)
	return a, a.rk > 0
}

func (a *affine) residual(x []float64) []float64 {
	var ex mat.VecDense
	ex.MulVec(a.e, mat.NewVecDense(len(x), x))
	r := make([]float64, len(a.b))
	for i := range r {
		r[i] = ex.AtVec(i) - a.b[i]
	}
	return r
}

func (a *affine) project(x []float64) []float64 {
	r := a.residual(x)
	var z mat.VecDense
	a.svd.SolveVecTo(&z, mat.NewVecDense(len(r), r), a.rk)
	out := make([]float64, len(x))
	for i := range out {
		out[i] = x[i] - z.AtVec(i)
	}
	return out
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

func clip(x, lo, hi []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = math.Min(math.Max(x[i], lo[i]), hi[i])
	}
	return out
}

// feasibleStart finds the point of {E x = b, lo <= x <= hi} nearest x0 by
// Dykstra's alternating projections, then snaps the free coordinates back
// onto the affine set exactly. It reports false when the set looks empty.
func feasibleStart(x0 []float64, e *mat.Dense, b, lo, hi []float64, maxIter int) ([]float64, bool) {
	aff, ok := newAffine(e, b)
	if !ok {
		return nil, false
	}
	n := len(x0)
	x := clip(x0, lo, hi)
	if maxAbs(aff.residual(x)) < feasTol {
		return x, true
	}

	p := make([]float64, n)
	q := make([]float64, n)
	for it := 0; it < maxIter*10; it++ {
		xp := make([]float64, n)
		for i := range xp {
			xp[i] = x[i] + p[i]
		}
		y := aff.project(xp)
		for i := range p {
			p[i] = xp[i] - y[i]
		}
		yq := make([]float64, n)
		for i := range yq {
			yq[i] = y[i] + q[i]
		}
		x = clip(yq, lo, hi)
		for i := range q {
			q[i] = yq[i] - x[i]
		}
		if maxAbs(aff.residual(x)) < feasTol*1e-3 {
			break
		}
	}

	if polished, ok := polish(x, e, aff, lo, hi); ok {
		return polished, true
	}
	return x, maxAbs(aff.residual(x)) < feasTol
}

// polish holds coordinates sitting on a bound and moves the rest by the
// minimum-norm correction that zeroes the equality residual.
func polish(x []float64, e *mat.Dense, aff *affine, lo, hi []float64) ([]float64, bool) {
	var freeIdx []int
	for i := range x {
		if x[i]-lo[i] > feasTol && hi[i]-x[i] > feasTol {
			freeIdx = append(freeIdx, i)
		}
	}
	if len(freeIdx) == 0 {
		return nil, false
	}
	m, _ := e.Dims()
	ef := mat.NewDense(m, len(freeIdx), nil)
	for r := 0; r < m; r++ {
		for c, i := range freeIdx {
			ef.Set(r, c, e.At(r, i))
		}
	}
	var svd mat.SVD
	if !svd.Factorize(ef, mat.SVDThin) {
		return nil, false
	}
	rk := svd.Rank(rcond)
	if rk == 0 {
		return nil, false
	}
	res := aff.residual(x)
	var delta mat.VecDense
	svd.SolveVecTo(&delta, mat.NewVecDense(m, res), rk)

	out := append([]float64(nil), x...)
	for c, i := range freeIdx {
		out[i] -= delta.AtVec(c)
		if out[i] < lo[i]-boundTol || out[i] > hi[i]+boundTol {
			return nil, false
		}
	}
	out = clip(out, lo, hi)
	if maxAbs(aff.residual(out)) >= feasTol {
		return nil, false
	}
	return out, true
}

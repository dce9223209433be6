package optimize

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	stepTol = 1e-12
	multTol = 1e-10
	rcond   = 1e-12
)

const (
	free int8 = iota
	atLower
	atUpper
)

// boxQP is
//
//	min ½ dᵀHd + gᵀd  s.t.  E d = 0,  lo <= d <= hi
//
// solved by a primal active-set method from d = 0, so lo <= 0 <= hi is
// required. Only bound constraints enter the working set.
type boxQP struct {
	h      mat.Symmetric
	g      []float64
	e      *mat.Dense
	lo, hi []float64
}

func (q boxQP) gradient(d []float64) []float64 {
	n := len(d)
	var hd mat.VecDense
	hd.MulVec(q.h, mat.NewVecDense(n, d))
	out := make([]float64, n)
	for i := range out {
		out[i] = hd.AtVec(i) + q.g[i]
	}
	return out
}

// step solves the equality-constrained subproblem over the free variables.
// It returns the full-length step and the equality multipliers.
func (q boxQP) step(freeIdx []int, grad []float64) (p, nu []float64) {
	n := len(grad)
	m, _ := q.e.Dims()
	nf := len(freeIdx)
	p = make([]float64, n)
	nu = make([]float64, m)
	if nf == 0 {
		return p, nu
	}

	k := mat.NewDense(nf+m, nf+m, nil)
	rhs := mat.NewVecDense(nf+m, nil)
	for a, i := range freeIdx {
		for b, j := range freeIdx {
			k.Set(a, b, q.h.At(i, j))
		}
		for r := 0; r < m; r++ {
			k.Set(a, nf+r, q.e.At(r, i))
			k.Set(nf+r, a, q.e.At(r, i))
		}
		rhs.SetVec(a, -grad[i])
	}

	var svd mat.SVD
	if !svd.Factorize(k, mat.SVDThin) {
		return p, nu
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return p, nu
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, rhs, rank)
	for a, i := range freeIdx {
		p[i] = x.AtVec(a)
	}
	for r := 0; r < m; r++ {
		nu[r] = x.AtVec(nf + r)
	}
	return p, nu
}

// solve runs at most maxIter active-set iterations.
func (q boxQP) solve(maxIter int) (d []float64, iters int, ok bool) {
	n := len(q.g)
	m, _ := q.e.Dims()
	d = make([]float64, n)
	state := make([]int8, n)

	for it := 1; it <= maxIter; it++ {
		grad := q.gradient(d)
		freeIdx := make([]int, 0, n)
		for i, s := range state {
			if s == free {
				freeIdx = append(freeIdx, i)
			}
		}
		p, nu := q.step(freeIdx, grad)

		if floats.Norm(p, math.Inf(1)) <= stepTol {
			// Stationary on the working set: release the bound with the
			// most negative multiplier, or stop.
			worst, worstVal := -1, -multTol
			for i, s := range state {
				if s == free {
					continue
				}
				r := grad[i]
				for k := 0; k < m; k++ {
					r += q.e.At(k, i) * nu[k]
				}
				if s == atUpper {
					r = -r
				}
				if r < worstVal {
					worst, worstVal = i, r
				}
			}
			if worst < 0 {
				return d, it, true
			}
			state[worst] = free
			continue
		}

		alpha, block := 1.0, -1
		for _, i := range freeIdx {
			var a float64
			switch {
			case p[i] < -stepTol:
				a = (q.lo[i] - d[i]) / p[i]
			case p[i] > stepTol:
				a = (q.hi[i] - d[i]) / p[i]
			default:
				continue
			}
			if a < alpha {
				alpha, block = math.Max(a, 0), i
			}
		}
		floats.AddScaled(d, alpha, p)
		if block >= 0 {
			if p[block] < 0 {
				d[block], state[block] = q.lo[block], atLower
			} else {
				d[block], state[block] = q.hi[block], atUpper
			}
		}
	}
	return d, maxIter, false
}

// ones is the 1×n budget row.
func ones(n int) *mat.Dense {
	e := mat.NewDense(1, n, nil)
	for i := 0; i < n; i++ {
		e.Set(0, i, 1)
	}
	return e
}

package optimize

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	varianceFloor = 1e-18
	armijo        = 1e-4
	maxHalvings   = 40
)

// Solver is the constrained optimizer: an active-set QP for the variance
// modes and SQP with a damped BFGS model for the Sharpe ratio. It starts
// from equal weights and returns them unchanged if it cannot converge.
type Solver struct {
	MaxIter int
	log     zerolog.Logger
}

func NewSolver(maxIter int) *Solver {
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	return &Solver{MaxIter: maxIter, log: zerolog.Nop()}
}

func (s *Solver) Method() Method { return MethodSQP }

func (s *Solver) Optimize(p Problem) (Solution, error) {
	if err := p.validate(); err != nil {
		return Solution{}, err
	}
	n := p.n()
	if n == 1 {
		return single(MethodSQP), nil
	}
	lo, hi := p.bounds()
	w0 := EqualWeights(n)

	var (
		w     []float64
		iters int
		ok    bool
	)
	switch p.Mode {
	case MinVariance:
		w, iters, ok = s.quadratic(p.Cov, w0, ones(n), lo, hi)
	case TargetReturn:
		e := mat.NewDense(2, n, nil)
		for i := 0; i < n; i++ {
			e.Set(0, i, 1)
			e.Set(1, i, p.Mu[i])
		}
		start, feasible := feasibleStart(w0, e, []float64{1, p.TargetReturn}, lo, hi, s.MaxIter)
		if !feasible {
			s.log.Warn().Float64("target", p.TargetReturn).Msg("optimizer: target return unreachable within bounds, equal weights")
			return Solution{
				Weights: w0,
				Method:  MethodSQP,
				Err:     fmt.Errorf("target %.4f infeasible: %w", p.TargetReturn, ErrSolverNonConvergence),
			}, nil
		}
		w, iters, ok = s.quadratic(p.Cov, start, e, lo, hi)
	case MaxSharpe:
		w, iters, ok = s.maxSharpe(p, w0, lo, hi)
	default:
		return Solution{}, fmt.Errorf("%v: %w", p.Mode, ErrUnknownMode)
	}

	if !ok {
		s.log.Warn().Str("mode", p.Mode.String()).Int("iterations", iters).Msg("optimizer: no convergence, equal weights")
		return Solution{
			Weights:    w0,
			Iterations: iters,
			Method:     MethodSQP,
			Err:        fmt.Errorf("%s after %d iterations: %w", p.Mode, iters, ErrSolverNonConvergence),
		}, nil
	}
	return Solution{Weights: w, Converged: true, Iterations: iters, Method: MethodSQP}, nil
}

// quadratic minimizes wᵀΣw over the constraint rows e from a feasible start.
func (s *Solver) quadratic(cov mat.Symmetric, start []float64, e *mat.Dense, lo, hi []float64) ([]float64, int, bool) {
	n := len(start)
	h := mat.NewSymDense(n, nil)
	h.ScaleSym(2, cov)
	var g mat.VecDense
	g.MulVec(h, mat.NewVecDense(n, start))

	q := boxQP{h: h, g: g.RawVector().Data, e: e}
	q.lo, q.hi = shift(start, lo, hi)
	d, iters, ok := q.solve(s.MaxIter)
	if !ok {
		return nil, iters, false
	}
	w := make([]float64, n)
	floats.AddTo(w, start, d)
	return clip(w, lo, hi), iters, true
}

// shift expresses the box around w as bounds on a step from w.
func shift(w, lo, hi []float64) (dlo, dhi []float64) {
	dlo = make([]float64, len(w))
	dhi = make([]float64, len(w))
	for i := range w {
		dlo[i] = math.Min(lo[i]-w[i], 0)
		dhi[i] = math.Max(hi[i]-w[i], 0)
	}
	return dlo, dhi
}

type sharpe struct {
	mu  []float64
	cov mat.Symmetric
	rf  float64
}

// value is the negative Sharpe ratio with the variance floored.
func (f sharpe) value(w []float64) float64 {
	v := math.Max(variance(w, f.cov), varianceFloor)
	return -(floats.Dot(w, f.mu) - f.rf) / math.Sqrt(v)
}

func (f sharpe) grad(w []float64) []float64 {
	n := len(w)
	var sw mat.VecDense
	sw.MulVec(f.cov, mat.NewVecDense(n, w))
	v := mat.Dot(mat.NewVecDense(n, w), &sw)
	r := floats.Dot(w, f.mu) - f.rf
	out := make([]float64, n)
	if v <= varianceFloor {
		sd := math.Sqrt(varianceFloor)
		for i := range out {
			out[i] = -f.mu[i] / sd
		}
		return out
	}
	sd := math.Sqrt(v)
	for i := range out {
		out[i] = -f.mu[i]/sd + r*sw.AtVec(i)/(v*sd)
	}
	return out
}

func (s *Solver) maxSharpe(p Problem, w0, lo, hi []float64) ([]float64, int, bool) {
	n := p.n()
	f := sharpe{mu: p.Mu, cov: p.Cov, rf: p.RiskFree}
	budget := ones(n)

	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		b.SetSym(i, i, 1)
	}

	w := append([]float64(nil), w0...)
	fw := f.value(w)
	g := f.grad(w)

	for k := 1; k <= s.MaxIter; k++ {
		q := boxQP{h: b, g: g, e: budget}
		q.lo, q.hi = shift(w, lo, hi)
		d, _, ok := q.solve(s.MaxIter)
		if !ok {
			return nil, k, false
		}
		if floats.Norm(d, math.Inf(1)) < 1e-10 {
			return w, k, true
		}
		slope := floats.Dot(g, d)
		if slope >= 0 {
			return w, k, slope < 1e-12
		}

		alpha := 1.0
		var wn []float64
		var fn float64
		accepted := false
		for h := 0; h < maxHalvings; h++ {
			wn = make([]float64, n)
			floats.AddScaledTo(wn, w, alpha, d)
			wn = clip(wn, lo, hi)
			fn = f.value(wn)
			if fn <= fw+armijo*alpha*slope {
				accepted = true
				break
			}
			alpha /= 2
		}
		if !accepted {
			return w, k, math.Abs(slope) < 1e-10
		}

		step := make([]float64, n)
		floats.SubTo(step, wn, w)
		gn := f.grad(wn)
		y := make([]float64, n)
		floats.SubTo(y, gn, g)
		bfgsUpdate(b, step, y)

		done := floats.Norm(step, math.Inf(1)) < 1e-10 ||
			math.Abs(fw-fn) <= 1e-15*(1+math.Abs(fw))
		w, fw, g = wn, fn, gn
		if done {
			return w, k, true
		}
	}
	return nil, s.MaxIter, false
}

// bfgsUpdate applies Powell's damped BFGS update in place, keeping b
// positive definite.
func bfgsUpdate(b *mat.SymDense, s, y []float64) {
	n := len(s)
	sv := mat.NewVecDense(n, s)
	var bs mat.VecDense
	bs.MulVec(b, sv)
	sBs := mat.Dot(sv, &bs)
	if sBs <= 0 {
		return
	}
	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	sy := mat.Dot(sv, yv)
	if sy < 0.2*sBs {
		theta := 0.8 * sBs / (sBs - sy)
		yv.ScaleVec(theta, yv)
		yv.AddScaledVec(yv, 1-theta, &bs)
		sy = mat.Dot(sv, yv)
	}
	if sy <= 0 {
		return
	}
	b.SymRankOne(b, -1/sBs, &bs)
	b.SymRankOne(b, 1/sy, yv)
}

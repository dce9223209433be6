package optimize

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Problem is one allocation request over annualized inputs.
type Problem struct {
	Mu           []float64
	Cov          mat.Symmetric
	RiskFree     float64
	AllowShort   bool
	Mode         Mode
	TargetReturn float64
}

// Solution carries raw optimizer weights; pass them through Normalize.
type Solution struct {
	Weights    []float64
	Converged  bool
	Iterations int
	Method     Method
	Err        error // set when Weights fell back to the start point
}

type Optimizer interface {
	Optimize(p Problem) (Solution, error)
	Method() Method
}

type Config struct {
	Method  Method
	MaxIter int
	Logger  zerolog.Logger
}

const DefaultMaxIter = 1000

// New picks the strategy named by cfg.Method.
func New(cfg Config) (Optimizer, error) {
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = DefaultMaxIter
	}
	log := cfg.Logger.With().Str("component", "optimizer").Logger()
	switch cfg.Method {
	case MethodSQP, "":
		return &Solver{MaxIter: cfg.MaxIter, log: log}, nil
	case MethodHeuristic:
		return &Heuristic{log: log}, nil
	}
	return nil, fmt.Errorf("%q: %w", cfg.Method, ErrUnknownMethod)
}

func (p Problem) n() int { return len(p.Mu) }

func (p Problem) validate() error {
	n := p.n()
	if n == 0 {
		return ErrEmptyPortfolio
	}
	if p.Cov == nil || p.Cov.SymmetricDim() != n {
		return fmt.Errorf("mu has %d entries, covariance does not match: %w", n, ErrDimension)
	}
	for i := 0; i < n; i++ {
		if !finite(p.Mu[i]) {
			return fmt.Errorf("mu[%d] = %v: %w", i, p.Mu[i], ErrDegenerateInput)
		}
		for j := 0; j <= i; j++ {
			if !finite(p.Cov.At(i, j)) {
				return fmt.Errorf("cov[%d,%d] = %v: %w", i, j, p.Cov.At(i, j), ErrDegenerateInput)
			}
		}
	}
	if !finite(p.RiskFree) {
		return fmt.Errorf("risk-free rate %v: %w", p.RiskFree, ErrDegenerateInput)
	}
	return nil
}

func (p Problem) bounds() (lo, hi []float64) {
	l := 0.0
	if p.AllowShort {
		l = -1
	}
	lo = make([]float64, p.n())
	hi = make([]float64, p.n())
	for i := range lo {
		lo[i], hi[i] = l, 1
	}
	return lo, hi
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func single(m Method) Solution {
	return Solution{Weights: []float64{1}, Converged: true, Method: m}
}

package optimize

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type Stats struct {
	ExpectedReturn float64
	Volatility     float64
	Sharpe         float64 // NaN when Volatility is zero
}

func variance(w []float64, cov mat.Symmetric) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, cov, v)
}

// ComputeStats evaluates a weight vector against annualized inputs.
func ComputeStats(w, mu []float64, cov mat.Symmetric, rf float64) Stats {
	er := floats.Dot(w, mu)
	vol := math.Sqrt(math.Max(variance(w, cov), 0))
	sharpe := math.NaN()
	if vol > 0 {
		sharpe = (er - rf) / vol
	}
	return Stats{ExpectedReturn: er, Volatility: vol, Sharpe: sharpe}
}

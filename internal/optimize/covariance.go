package optimize

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// AnnualizationFactor converts daily variance to annual.
const AnnualizationFactor = 252

// DailyCovariance is the sample (n-1) covariance of a returns matrix with
// one row per date and one column per ticker.
func DailyCovariance(returns mat.Matrix) (*mat.SymDense, error) {
	r, c := returns.Dims()
	if c == 0 {
		return nil, ErrEmptyPortfolio
	}
	if r < 2 {
		return nil, fmt.Errorf("covariance needs 2 observations, have %d: %w", r, ErrDegenerateInput)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, returns, nil)
	return &cov, nil
}

// Annualize scales every entry of cov by factor into a new matrix.
func Annualize(cov mat.Symmetric, factor float64) *mat.SymDense {
	n := cov.SymmetricDim()
	if n == 0 {
		return &mat.SymDense{}
	}
	out := mat.NewSymDense(n, nil)
	out.ScaleSym(factor, cov)
	return out
}

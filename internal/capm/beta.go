package capm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MinObservations is the smallest aligned sample a regression is run on.
const MinObservations = 2

// Estimate is the CAPM view of one ticker.
type Estimate struct {
	Ticker         string
	Alpha          float64
	Beta           float64
	ExpectedReturn float64
	Observations   int
	Returns        AlignedReturns
}

// EstimateBeta fits stock = alpha + beta*market by ordinary least squares.
func EstimateBeta(a AlignedReturns) (alpha, beta float64, err error) {
	if a.Len() < MinObservations {
		return 0, 0, fmt.Errorf("%d observations: %w", a.Len(), ErrInsufficientOverlap)
	}
	if stat.Variance(a.Market, nil) == 0 {
		return 0, 0, fmt.Errorf("market returns have zero variance: %w", ErrDegenerateInput)
	}
	alpha, beta = stat.LinearRegression(a.Market, a.Stock, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, 0, fmt.Errorf("beta %v: %w", beta, ErrDegenerateInput)
	}
	return alpha, beta, nil
}

// ExpectedReturn applies the CAPM security market line.
func ExpectedReturn(beta float64, mc MarketContext) float64 {
	return mc.RiskFree + beta*(mc.MarketReturn-mc.RiskFree)
}

// EstimateCAPM aligns stock against market, regresses and prices the ticker.
// It fails with ErrInsufficientOverlap or ErrDegenerateInput; callers fall
// back to the historical mean in either case.
func EstimateCAPM(ticker string, stock, market PriceSeries, mc MarketContext) (Estimate, error) {
	aligned := Align(stock, market)
	alpha, beta, err := EstimateBeta(aligned)
	if err != nil {
		return Estimate{Ticker: ticker, Observations: aligned.Len(), Returns: aligned}, fmt.Errorf("%s: %w", ticker, err)
	}
	return Estimate{
		Ticker:         ticker,
		Alpha:          alpha,
		Beta:           beta,
		ExpectedReturn: ExpectedReturn(beta, mc),
		Observations:   aligned.Len(),
		Returns:        aligned,
	}, nil
}

// HistoricalMean annualizes the arithmetic mean of daily returns.
func HistoricalMean(daily []float64) float64 {
	if len(daily) == 0 {
		return math.NaN()
	}
	return stat.Mean(daily, nil) * TradingDays
}

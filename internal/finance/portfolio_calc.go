package finance

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"capmOptimizerBot/internal/optimize"
)

// calculateWeightedPortfolio compounds the daily returns of a constant-weight,
// daily-rebalanced portfolio from initialValue.
func calculateWeightedPortfolio(timestamps []time.Time, returns mat.Matrix, weights []float64, initialValue float64) (*PortfolioData, error) {
	if returns == nil || len(timestamps) == 0 {
		return nil, fmt.Errorf("no returns provided")
	}
	numDays, numAssets := returns.Dims()
	if numDays != len(timestamps) {
		return nil, fmt.Errorf("returns have %d rows, expected %d", numDays, len(timestamps))
	}
	if numAssets != len(weights) {
		return nil, fmt.Errorf("weights (%d) don't match assets (%d)", len(weights), numAssets)
	}

	// Values[0] is the starting point before the first return
	values := make([]float64, numDays+1)
	daily := make([]float64, numDays)
	values[0] = initialValue
	for day := 0; day < numDays; day++ {
		r := 0.0
		for a := 0; a < numAssets; a++ {
			r += weights[a] * returns.At(day, a)
		}
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("invalid portfolio return on day %d: %f", day, r)
		}
		daily[day] = r
		values[day+1] = values[day] * (1 + r)
	}

	ts := make([]time.Time, 0, numDays+1)
	ts = append(ts, timestamps[0].AddDate(0, 0, -1))
	ts = append(ts, timestamps...)
	return &PortfolioData{Timestamps: ts, Values: values, Returns: daily}, nil
}

func calculatePortfolioStats(portfolio *PortfolioData) (*PortfolioStats, error) {
	if portfolio == nil || len(portfolio.Values) < 2 {
		return nil, fmt.Errorf("insufficient portfolio data")
	}
	first, last := portfolio.Values[0], portfolio.Values[len(portfolio.Values)-1]
	if first <= 0 {
		return nil, fmt.Errorf("invalid initial value: %f", first)
	}
	return &PortfolioStats{
		TotalReturn: last/first - 1,
		MaxDrawdown: calculateMaxDrawdown(portfolio.Values),
		NumDays:     len(portfolio.Returns),
	}, nil
}

// calculateMaxDrawdown is the largest peak-to-trough decline as a fraction.
func calculateMaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	maxDrawdown := 0.0
	peak := values[0]
	for _, value := range values {
		if value > peak {
			peak = value
		}
		if peak > 0 && value >= 0 {
			if dd := (peak - value) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return maxDrawdown
}

// Backtest replays the optimized and equal weights over the joined history.
func Backtest(r *Result) (optimized, baseline *PortfolioData, err error) {
	if r == nil || r.Returns == nil {
		return nil, nil, fmt.Errorf("no return history")
	}
	optimized, err = calculateWeightedPortfolio(r.Dates, r.Returns, r.Weights, 100)
	if err != nil {
		return nil, nil, err
	}
	baseline, err = calculateWeightedPortfolio(r.Dates, r.Returns, optimize.EqualWeights(len(r.Weights)), 100)
	if err != nil {
		return nil, nil, err
	}
	return optimized, baseline, nil
}

// Stats summarizes the value path.
func (d *PortfolioData) Stats() (*PortfolioStats, error) {
	return calculatePortfolioStats(d)
}

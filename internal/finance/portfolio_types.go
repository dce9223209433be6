package finance

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"capmOptimizerBot/internal/capm"
	"capmOptimizerBot/internal/optimize"
)

// Request is one optimization job.
type Request struct {
	Tickers      []string
	Mode         optimize.Mode
	TargetReturn float64 // NaN when not given
	Lookback     Lookback
	AllowShort   bool
}

const (
	SourceCAPM       = "capm"
	SourceHistorical = "historical"
)

// TickerResult is the per-ticker estimate feeding the optimizer.
type TickerResult struct {
	Ticker         string
	Source         string
	Beta           float64 // NaN when Source is historical
	ExpectedReturn float64
	CAGR           float64 // NaN when history spans under a year-end
	Observations   int

	returns capm.ReturnSeries
	prices  capm.PriceSeries
}

// Result is the outcome of Pipeline.Run. Weights and PerTicker follow Tickers.
type Result struct {
	ID         string
	CreatedAt  time.Time
	Mode       optimize.Mode
	Target     float64
	AllowShort bool
	Lookback   Lookback

	Tickers    []string
	Weights    []float64
	PerTicker  []TickerResult
	Stats      optimize.Stats
	Baseline   optimize.Stats
	Market     capm.MarketContext
	Method     optimize.Method
	Converged  bool
	Iterations int
	Skipped    []string
	Notes      []string

	// joined daily returns behind the covariance estimate
	Dates   []time.Time
	Returns *mat.Dense
}

// PortfolioData is a value path of a fixed-weight portfolio.
type PortfolioData struct {
	Timestamps []time.Time
	Values     []float64 // starting from the initial value
	Returns    []float64 // daily portfolio returns
}

// PortfolioStats summarizes a realized value path.
type PortfolioStats struct {
	TotalReturn float64
	MaxDrawdown float64
	NumDays     int
}

package capm

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// TradingDays annualizes daily figures.
const TradingDays = 252

// MarketContext carries the rates every stage of a run prices against.
type MarketContext struct {
	RiskFree       float64
	MarketReturn   float64
	MarketSymbol   string
	RiskFreeSymbol string
	AsOf           time.Time
}

// YearReturn is the change between consecutive year-end closes.
type YearReturn struct {
	Year   int
	Return float64
}

// yearEnds keeps the last close of each calendar year.
func yearEnds(s PriceSeries) (years []int, prices []float64) {
	c := s.Clean()
	for i, d := range c.Dates {
		y := d.Year()
		if n := len(years); n > 0 && years[n-1] == y {
			prices[n-1] = c.Prices[i]
			continue
		}
		years = append(years, y)
		prices = append(prices, c.Prices[i])
	}
	return years, prices
}

// AnnualReturns resamples to year-end closes and takes percentage changes.
// The current, partial year counts with its latest close.
func AnnualReturns(s PriceSeries) []YearReturn {
	years, prices := yearEnds(s)
	var out []YearReturn
	for i := 1; i < len(prices); i++ {
		out = append(out, YearReturn{Year: years[i], Return: prices[i]/prices[i-1] - 1})
	}
	return out
}

// MeanAnnualReturn is the market-return estimate: mean of AnnualReturns.
// NaN when the series spans fewer than two calendar years.
func MeanAnnualReturn(s PriceSeries) float64 {
	ar := AnnualReturns(s)
	if len(ar) == 0 {
		return math.NaN()
	}
	rs := make([]float64, len(ar))
	for i, r := range ar {
		rs[i] = r.Return
	}
	return stat.Mean(rs, nil)
}

// CAGR compounds first to last year-end close over at least one year.
func CAGR(s PriceSeries) (float64, bool) {
	years, prices := yearEnds(s)
	if len(prices) < 2 {
		return math.NaN(), false
	}
	n := years[len(years)-1] - years[0]
	if n < 1 {
		n = 1
	}
	return math.Pow(prices[len(prices)-1]/prices[0], 1/float64(n)) - 1, true
}

// RiskFreeFromYield converts the latest quoted yield (in percent) to a rate.
func RiskFreeFromYield(s PriceSeries) (float64, bool) {
	c := s.Clean()
	if c.Len() == 0 {
		return math.NaN(), false
	}
	return c.Prices[c.Len()-1] / 100, true
}

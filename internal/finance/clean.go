package finance

import (
	"math"
	"time"

	"capmOptimizerBot/internal/capm"
)

// toSeries pairs Yahoo timestamps with closes, dropping non-positive or
// missing closes and anything outside [start, end].
func toSeries(ticker string, ts []int64, cl []float64, loc *time.Location, start, end time.Time) capm.PriceSeries {
	n := len(ts)
	if len(cl) < n {
		n = len(cl)
	}
	out := capm.PriceSeries{
		Ticker: ticker,
		Dates:  make([]time.Time, 0, n),
		Prices: make([]float64, 0, n),
	}
	for i := 0; i < n; i++ {
		if cl[i] <= 0 || math.IsNaN(cl[i]) {
			continue
		}
		t := time.Unix(ts[i], 0).In(loc)
		if !start.IsZero() && t.Before(start) {
			continue
		}
		if !end.IsZero() && t.After(end) {
			continue
		}
		out.Dates = append(out.Dates, t)
		out.Prices = append(out.Prices, cl[i])
	}
	return out
}

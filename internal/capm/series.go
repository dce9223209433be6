package capm

import (
	"math"
	"sort"
	"time"
)

// PriceSeries is one ticker's close history as returned by a provider.
// Dates and Prices are parallel slices.
type PriceSeries struct {
	Ticker string
	Dates  []time.Time
	Prices []float64
}

func (s PriceSeries) Len() int { return len(s.Prices) }

// ReturnSeries holds simple daily returns keyed by calendar date.
type ReturnSeries struct {
	Ticker  string
	Dates   []time.Time
	Returns []float64
}

func (r ReturnSeries) Len() int { return len(r.Returns) }

// Day truncates t to its calendar date in t's own location and re-anchors it
// at UTC midnight, so two timestamps of the same trading day compare equal
// regardless of time-of-day or zone offset.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func usable(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

type obs struct {
	at    time.Time
	price float64
}

// Clean drops missing and non-positive prices, normalizes dates to days and
// sorts ascending. When a day appears twice the latest timestamp wins; equal
// timestamps keep the one given last.
func (s PriceSeries) Clean() PriceSeries {
	latest := make(map[time.Time]obs, len(s.Prices))
	n := len(s.Dates)
	if len(s.Prices) < n {
		n = len(s.Prices)
	}
	for i := 0; i < n; i++ {
		if !usable(s.Prices[i]) {
			continue
		}
		d := Day(s.Dates[i])
		if prev, ok := latest[d]; ok && s.Dates[i].Before(prev.at) {
			continue
		}
		latest[d] = obs{at: s.Dates[i], price: s.Prices[i]}
	}
	byDay := make(map[time.Time]float64, len(latest))
	for d, o := range latest {
		byDay[d] = o.price
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := PriceSeries{Ticker: s.Ticker, Dates: days, Prices: make([]float64, len(days))}
	for i, d := range days {
		out.Prices[i] = byDay[d]
	}
	return out
}

// Returns computes percentage changes over consecutive cleaned observations.
// The first observation has no prior value and produces no return.
func Returns(s PriceSeries) ReturnSeries {
	c := s.Clean()
	out := ReturnSeries{Ticker: s.Ticker}
	for i := 1; i < len(c.Prices); i++ {
		r := c.Prices[i]/c.Prices[i-1] - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out.Dates = append(out.Dates, c.Dates[i])
		out.Returns = append(out.Returns, r)
	}
	return out
}

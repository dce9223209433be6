package capm

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func series(ticker string, days []int, prices []float64) PriceSeries {
	s := PriceSeries{Ticker: ticker}
	for i, d := range days {
		s.Dates = append(s.Dates, day(d))
		s.Prices = append(s.Prices, prices[i])
	}
	return s
}

func TestAlignKeepsCommonDays(t *testing.T) {
	stock := series("AAA", []int{1, 2, 3, 5}, []float64{100, 110, 121, 133.1})
	market := series("^GSPC", []int{1, 2, 4, 5}, []float64{10, 11, 12, 13.3})

	a := Align(stock, market)

	require.Equal(t, 2, a.Len())
	assert.Equal(t, []time.Time{day(2), day(5)}, a.Dates)
	assert.InDelta(t, 0.10, a.Stock[0], 1e-12)
	assert.InDelta(t, 0.10, a.Market[0], 1e-12)
	assert.InDelta(t, 0.10, a.Stock[1], 1e-12)
	assert.InDelta(t, 0.1083, a.Market[1], 1e-4)
}

func TestAlignIgnoresTimeOfDayAndZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	stock := PriceSeries{
		Dates: []time.Time{
			time.Date(2024, 1, 2, 16, 0, 0, 0, ny),
			time.Date(2024, 1, 3, 16, 0, 0, 0, ny),
			time.Date(2024, 1, 4, 9, 30, 0, 0, ny),
		},
		Prices: []float64{50, 55, 60.5},
	}
	market := series("^GSPC", []int{2, 3, 4}, []float64{100, 101, 102})

	a := Align(stock, market)
	require.Equal(t, 2, a.Len())
	assert.Equal(t, day(3), a.Dates[0])
	assert.Equal(t, day(4), a.Dates[1])
}

func TestAlignStripsMissingAndDisjointIsEmpty(t *testing.T) {
	stock := series("AAA", []int{1, 2, 3}, []float64{100, math.NaN(), 0})
	market := series("^GSPC", []int{1, 2, 3}, []float64{10, 11, 12})
	assert.Equal(t, 0, Align(stock, market).Len())

	disjoint := series("BBB", []int{10, 11, 12}, []float64{1, 2, 3})
	assert.Equal(t, 0, Align(disjoint, market).Len())
}

func TestCleanLastObservationWins(t *testing.T) {
	s := PriceSeries{
		Dates:  []time.Time{day(2).Add(10 * time.Hour), day(1), day(2).Add(15 * time.Hour)},
		Prices: []float64{20, 10, 21},
	}
	c := s.Clean()
	assert.Equal(t, []time.Time{day(1), day(2)}, c.Dates)
	assert.Equal(t, []float64{10, 21}, c.Prices)

	// out-of-order bars: the later timestamp wins, not the later position
	s = PriceSeries{
		Dates:  []time.Time{day(1), day(2).Add(15 * time.Hour), day(2).Add(10 * time.Hour)},
		Prices: []float64{10, 21, 20},
	}
	c = s.Clean()
	assert.Equal(t, []float64{10, 21}, c.Prices)

	// identical timestamps keep the last one given
	s = PriceSeries{
		Dates:  []time.Time{day(1), day(1)},
		Prices: []float64{10, 11},
	}
	assert.Equal(t, []float64{11}, s.Clean().Prices)
}

func TestExpectedReturn(t *testing.T) {
	mc := MarketContext{RiskFree: 0.04, MarketReturn: 0.09}
	assert.InDelta(t, 0.10, ExpectedReturn(1.2, mc), 1e-12)
	assert.InDelta(t, 0.04, ExpectedReturn(0, mc), 1e-12)
}

func TestEstimateBeta(t *testing.T) {
	market := []float64{0.01, -0.02, 0.015, 0.003, -0.007}
	stock := make([]float64, len(market))
	for i, m := range market {
		stock[i] = 0.001 + 1.5*m
	}

	alpha, beta, err := EstimateBeta(AlignedReturns{Dates: make([]time.Time, len(market)), Stock: stock, Market: market})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, beta, 1e-9)
	assert.InDelta(t, 0.001, alpha, 1e-9)
}

func TestEstimateBetaFailures(t *testing.T) {
	tests := []struct {
		name string
		in   AlignedReturns
		want error
	}{
		{
			name: "single observation",
			in:   AlignedReturns{Dates: []time.Time{day(2)}, Stock: []float64{0.1}, Market: []float64{0.1}},
			want: ErrInsufficientOverlap,
		},
		{
			name: "empty",
			in:   AlignedReturns{},
			want: ErrInsufficientOverlap,
		},
		{
			name: "flat market",
			in:   AlignedReturns{Dates: []time.Time{day(2), day(3)}, Stock: []float64{0.1, 0.2}, Market: []float64{0.01, 0.01}},
			want: ErrDegenerateInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := EstimateBeta(tt.in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEstimateCAPM(t *testing.T) {
	mc := MarketContext{RiskFree: 0.04, MarketReturn: 0.09}
	market := series("^GSPC", []int{1, 2, 3, 4, 5}, []float64{100, 101, 99, 102, 103})
	// stock moves exactly twice the market each day
	stock := series("LEV", []int{1, 2, 3, 4, 5}, []float64{100, 0, 0, 0, 0})
	for i := 1; i < 5; i++ {
		r := market.Prices[i]/market.Prices[i-1] - 1
		stock.Prices[i] = stock.Prices[i-1] * (1 + 2*r)
	}

	est, err := EstimateCAPM("LEV", stock, market, mc)
	require.NoError(t, err)
	assert.Equal(t, 4, est.Observations)
	assert.InDelta(t, 2.0, est.Beta, 1e-9)
	assert.InDelta(t, 0.14, est.ExpectedReturn, 1e-9)

	_, err = EstimateCAPM("NEW", series("NEW", []int{4, 5}, []float64{10, 11}), market, mc)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestHistoricalMean(t *testing.T) {
	assert.InDelta(t, 0.252, HistoricalMean([]float64{0.001, 0.002, 0.0}), 1e-12)
	assert.True(t, math.IsNaN(HistoricalMean(nil)))
}

func yearly() PriceSeries {
	return PriceSeries{
		Ticker: "^GSPC",
		Dates: []time.Time{
			time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 12, 30, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		Prices: []float64{100, 110, 90, 121, 133.1},
	}
}

func TestAnnualReturns(t *testing.T) {
	ar := AnnualReturns(yearly())
	require.Len(t, ar, 2)
	assert.Equal(t, 2022, ar[0].Year)
	assert.InDelta(t, 0.10, ar[0].Return, 1e-12)
	assert.Equal(t, 2023, ar[1].Year)
	assert.InDelta(t, 0.10, ar[1].Return, 1e-12)

	assert.InDelta(t, 0.10, MeanAnnualReturn(yearly()), 1e-12)
	assert.True(t, math.IsNaN(MeanAnnualReturn(series("X", []int{1, 2}, []float64{1, 2}))))
}

func TestCAGR(t *testing.T) {
	g, ok := CAGR(yearly())
	require.True(t, ok)
	assert.InDelta(t, 0.10, g, 1e-12)

	_, ok = CAGR(series("X", []int{1, 2}, []float64{1, 2}))
	assert.False(t, ok)
}

func TestRiskFreeFromYield(t *testing.T) {
	rf, ok := RiskFreeFromYield(series("^TNX", []int{1, 2, 3}, []float64{4.1, 4.2, math.NaN()}))
	require.True(t, ok)
	assert.InDelta(t, 0.042, rf, 1e-12)

	_, ok = RiskFreeFromYield(PriceSeries{})
	assert.False(t, ok)
}

func TestJoinReturns(t *testing.T) {
	a := ReturnSeries{Dates: []time.Time{day(2), day(3), day(5)}, Returns: []float64{0.1, 0.2, 0.3}}
	b := ReturnSeries{Dates: []time.Time{day(5), day(2)}, Returns: []float64{-0.3, -0.1}}

	dates, m := JoinReturns(a, b)
	require.NotNil(t, m)
	assert.Equal(t, []time.Time{day(2), day(5)}, dates)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.3, m.At(1, 0))
	assert.Equal(t, -0.1, m.At(0, 1))

	_, m = JoinReturns(a, ReturnSeries{Dates: []time.Time{day(9)}, Returns: []float64{1}})
	assert.Nil(t, m)
}

package finance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"capmOptimizerBot/internal/capm"
	"capmOptimizerBot/internal/optimize"
)

var testNow = time.Date(2024, time.June, 28, 21, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	series map[string]capm.PriceSeries
	calls  map[string]int
}

func newFakeSource(series ...capm.PriceSeries) *fakeSource {
	f := &fakeSource{series: map[string]capm.PriceSeries{}, calls: map[string]int{}}
	for _, s := range series {
		f.series[s.Ticker] = s
	}
	return f
}

func (f *fakeSource) PriceSeries(_ context.Context, ticker string, start, end time.Time) (capm.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ticker]++
	s, ok := f.series[ticker]
	if !ok {
		return capm.PriceSeries{}, fmt.Errorf("%w: %s", capm.ErrDataUnavailable, ticker)
	}
	out := capm.PriceSeries{Ticker: ticker}
	for i, d := range s.Dates {
		if d.Before(start) || d.After(end) {
			continue
		}
		out.Dates = append(out.Dates, d)
		out.Prices = append(out.Prices, s.Prices[i])
	}
	return out, nil
}

// business-day closes from mid 2021 up to testNow
func gen(ticker string, ret func(i int) float64) capm.PriceSeries {
	s := capm.PriceSeries{Ticker: ticker}
	p := 100.0
	i := 0
	for d := time.Date(2021, 7, 1, 20, 0, 0, 0, time.UTC); !d.After(testNow); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		s.Dates = append(s.Dates, d)
		s.Prices = append(s.Prices, p)
		p *= 1 + ret(i)
		i++
	}
	return s
}

func marketRet(i int) float64 { return 0.0004 + 0.01*math.Sin(float64(i)*0.7) }

func testPipeline(t *testing.T, primary, fallback PriceSource, method optimize.Method) *Pipeline {
	t.Helper()
	opt, err := optimize.New(optimize.Config{Method: method})
	require.NoError(t, err)
	cfg := DefaultMarketConfig
	cfg.Lookback = Years(2)
	p := NewPipeline(primary, fallback, opt, cfg, zerolog.Nop())
	p.Now = func() time.Time { return testNow }
	return p
}

func testMarket() capm.MarketContext {
	return capm.MarketContext{RiskFree: 0.04, MarketReturn: 0.09, MarketSymbol: "^GSPC"}
}

func universe() []capm.PriceSeries {
	return []capm.PriceSeries{
		gen("^GSPC", marketRet),
		gen("AAA", func(i int) float64 { return 1.2*marketRet(i) + 0.004*math.Cos(float64(i)*1.9) }),
		gen("BBB", func(i int) float64 { return 0.6*marketRet(i) + 0.006*math.Sin(float64(i)*2.3+1) }),
		gen("CCC", func(i int) float64 { return 0.9*marketRet(i) + 0.008*math.Cos(float64(i)*0.31+2) }),
	}
}

func TestRunMaxSharpe(t *testing.T) {
	p := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodSQP)

	res, err := p.Run(context.Background(), Request{
		Tickers:  []string{"AAA", "BBB", "CCC"},
		Mode:     optimize.MaxSharpe,
		Lookback: Years(2),
	}, testMarket())
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, res.Tickers)
	assert.NotEmpty(t, res.ID)
	assert.Empty(t, res.Skipped)
	require.Len(t, res.PerTicker, 3)
	for _, tr := range res.PerTicker {
		assert.Equal(t, SourceCAPM, tr.Source, tr.Ticker)
		assert.InDelta(t, capm.ExpectedReturn(tr.Beta, testMarket()), tr.ExpectedReturn, 1e-12)
	}
	assert.InDelta(t, 1.2, res.PerTicker[0].Beta, 0.1)
	assert.InDelta(t, 0.6, res.PerTicker[1].Beta, 0.1)

	assert.True(t, res.Converged)
	assert.InDelta(t, 1, floats.Sum(res.Weights), 1e-9)
	for _, w := range res.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
	}
	assert.GreaterOrEqual(t, res.Stats.Sharpe, res.Baseline.Sharpe-1e-9)
	assert.InDelta(t, floats.Dot(optimize.EqualWeights(3), []float64{
		res.PerTicker[0].ExpectedReturn, res.PerTicker[1].ExpectedReturn, res.PerTicker[2].ExpectedReturn,
	}), res.Baseline.ExpectedReturn, 1e-12)
}

func TestRunIsDeterministic(t *testing.T) {
	src := newFakeSource(universe()...)
	req := Request{Tickers: []string{"CCC", "AAA", "BBB"}, Mode: optimize.MinVariance, Lookback: Years(2)}

	p1 := testPipeline(t, src, nil, optimize.MethodSQP)
	p1.Concurrency = 1
	seq, err := p1.Run(context.Background(), req, testMarket())
	require.NoError(t, err)

	p2 := testPipeline(t, src, nil, optimize.MethodSQP)
	p2.Concurrency = 8
	par, err := p2.Run(context.Background(), req, testMarket())
	require.NoError(t, err)

	assert.Equal(t, seq.Tickers, par.Tickers)
	assert.Equal(t, seq.Weights, par.Weights)
	assert.Equal(t, seq.Stats, par.Stats)
}

func TestRunSkipsUnknownTickers(t *testing.T) {
	p := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodHeuristic)

	res, err := p.Run(context.Background(), Request{
		Tickers:  []string{"AAA", "NOPE", "BBB"},
		Mode:     optimize.MinVariance,
		Lookback: Years(2),
	}, testMarket())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, res.Tickers)
	assert.Equal(t, []string{"NOPE"}, res.Skipped)
	assert.Len(t, res.Weights, 2)
}

func TestRunAllUnknownIsEmptyPortfolio(t *testing.T) {
	p := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodSQP)
	_, err := p.Run(context.Background(), Request{Tickers: []string{"NOPE", "NADA"}, Lookback: Years(2)}, testMarket())
	assert.True(t, errors.Is(err, optimize.ErrEmptyPortfolio), "got %v", err)

	_, err = p.Run(context.Background(), Request{}, testMarket())
	assert.ErrorIs(t, err, optimize.ErrEmptyPortfolio)
}

func TestRunUsesFallbackSource(t *testing.T) {
	all := universe()
	primary := newFakeSource(all[0], all[1])
	fallback := newFakeSource(all...)
	p := testPipeline(t, primary, fallback, optimize.MethodSQP)

	res, err := p.Run(context.Background(), Request{Tickers: []string{"AAA", "CCC"}, Lookback: Years(2)}, testMarket())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "CCC"}, res.Tickers)
	assert.Equal(t, SourceCAPM, res.PerTicker[1].Source)
	assert.Equal(t, 1, fallback.calls["CCC"])
	assert.Zero(t, fallback.calls["AAA"])
}

func TestRunHistoricalMeanWithoutMarketOverlap(t *testing.T) {
	// weekend-only prices never meet the index
	weekend := capm.PriceSeries{Ticker: "WKND"}
	p := 50.0
	for d := time.Date(2023, 1, 7, 12, 0, 0, 0, time.UTC); d.Before(testNow); d = d.AddDate(0, 0, 7) {
		weekend.Dates = append(weekend.Dates, d)
		weekend.Prices = append(weekend.Prices, p)
		p *= 1.002
	}
	pl := testPipeline(t, newFakeSource(append(universe(), weekend)...), nil, optimize.MethodSQP)

	res, err := pl.Run(context.Background(), Request{Tickers: []string{"WKND"}, Lookback: Years(2)}, testMarket())
	require.NoError(t, err)
	require.Len(t, res.PerTicker, 1)
	tr := res.PerTicker[0]
	assert.Equal(t, SourceHistorical, tr.Source)
	assert.True(t, math.IsNaN(tr.Beta))
	assert.InDelta(t, 0.002*capm.TradingDays, tr.ExpectedReturn, 1e-9)
	assert.Equal(t, []float64{1}, res.Weights)
}

func TestRunTargetWithoutValueFallsBackToMaxSharpe(t *testing.T) {
	p := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodSQP)
	res, err := p.Run(context.Background(), Request{
		Tickers:      []string{"AAA", "BBB"},
		Mode:         optimize.TargetReturn,
		TargetReturn: math.NaN(),
		Lookback:     Years(2),
	}, testMarket())
	require.NoError(t, err)
	assert.Equal(t, optimize.MaxSharpe, res.Mode)
	assert.NotEmpty(t, res.Notes)
}

func TestRunTargetReturn(t *testing.T) {
	p := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodSQP)
	mc := testMarket()
	// between the lowest and highest CAPM return of the three
	target := mc.RiskFree + 0.9*(mc.MarketReturn-mc.RiskFree)
	res, err := p.Run(context.Background(), Request{
		Tickers:      []string{"AAA", "BBB", "CCC"},
		Mode:         optimize.TargetReturn,
		TargetReturn: target,
		Lookback:     Years(2),
	}, mc)
	require.NoError(t, err)
	require.True(t, res.Converged)
	assert.InDelta(t, target, res.Stats.ExpectedReturn, 1e-6)
}

func TestRunCanceled(t *testing.T) {
	p := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodSQP)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, Request{Tickers: []string{"AAA"}, Lookback: Years(2)}, testMarket())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimate(t *testing.T) {
	p := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodSQP)
	tr, prices, err := p.Estimate(context.Background(), "AAA", Years(2), testMarket())
	require.NoError(t, err)
	assert.Equal(t, SourceCAPM, tr.Source)
	assert.Greater(t, prices.Len(), 400)
	assert.False(t, math.IsNaN(tr.CAGR))

	_, _, err = p.Estimate(context.Background(), "NOPE", Years(2), testMarket())
	assert.ErrorIs(t, err, capm.ErrDataUnavailable)
}

func TestMarketContext(t *testing.T) {
	tnx := capm.PriceSeries{
		Ticker: "^TNX",
		Dates:  []time.Time{testNow.AddDate(0, 0, -3), testNow.AddDate(0, 0, -1)},
		Prices: []float64{4.1, 4.25},
	}
	src := newFakeSource(append(universe(), tnx)...)
	p := testPipeline(t, src, nil, optimize.MethodSQP)

	mc, err := p.MarketContext(context.Background(), Lookback{})
	require.NoError(t, err)
	assert.InDelta(t, 0.0425, mc.RiskFree, 1e-12)
	assert.False(t, math.IsNaN(mc.MarketReturn))
	assert.Equal(t, "^GSPC", mc.MarketSymbol)

	// second call is served from memory
	again, err := p.MarketContext(context.Background(), Years(2))
	require.NoError(t, err)
	assert.Equal(t, mc, again)
	assert.Equal(t, 1, src.calls["^TNX"])

	rf := 0.03
	p2 := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodSQP)
	p2.Market.RiskFreeRate = &rf
	mc, err = p2.MarketContext(context.Background(), Lookback{})
	require.NoError(t, err)
	assert.Equal(t, 0.03, mc.RiskFree)
}

func TestMarketContextFollowsWindow(t *testing.T) {
	rf := 0.03
	src := newFakeSource(universe()...)
	p := testPipeline(t, src, nil, optimize.MethodSQP)
	p.Market.RiskFreeRate = &rf

	want := func(lb Lookback) float64 {
		s, err := src.PriceSeries(context.Background(), "^GSPC", lb.Start(testNow), testNow)
		require.NoError(t, err)
		return capm.MeanAnnualReturn(s)
	}

	two, err := p.MarketContext(context.Background(), Years(2))
	require.NoError(t, err)
	one, err := p.MarketContext(context.Background(), Years(1))
	require.NoError(t, err)
	assert.InDelta(t, want(Years(2)), two.MarketReturn, 1e-12)
	assert.InDelta(t, want(Years(1)), one.MarketReturn, 1e-12)
	assert.NotEqual(t, one.MarketReturn, two.MarketReturn)

	// each window is cached on its own
	again, err := p.MarketContext(context.Background(), Years(1))
	require.NoError(t, err)
	assert.Equal(t, one, again)
	assert.Equal(t, 4, src.calls["^GSPC"])

	// windows under a year are priced over one year
	short, err := p.MarketContext(context.Background(), Lookback{N: 90, Unit: 'd'})
	require.NoError(t, err)
	assert.Equal(t, one, short)
	assert.Equal(t, 4, src.calls["^GSPC"])
}

func TestBacktest(t *testing.T) {
	p := testPipeline(t, newFakeSource(universe()...), nil, optimize.MethodHeuristic)
	res, err := p.Run(context.Background(), Request{Tickers: []string{"AAA", "BBB"}, Mode: optimize.MinVariance, Lookback: Years(2)}, testMarket())
	require.NoError(t, err)

	opt, base, err := Backtest(res)
	require.NoError(t, err)
	assert.Len(t, opt.Values, len(res.Dates)+1)
	assert.Equal(t, 100.0, opt.Values[0])
	assert.Equal(t, 100.0, base.Values[0])

	// baseline compounds the plain average of the two columns
	v := 100.0
	for i := range res.Dates {
		v *= 1 + (res.Returns.At(i, 0)+res.Returns.At(i, 1))/2
	}
	assert.InDelta(t, v, base.Values[len(base.Values)-1], 1e-9)

	stats, err := calculatePortfolioStats(opt)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.MaxDrawdown, 0.0)
	assert.Equal(t, len(res.Dates), stats.NumDays)
}

func TestCalculateMaxDrawdown(t *testing.T) {
	assert.InDelta(t, 0.25, calculateMaxDrawdown([]float64{100, 120, 90, 110, 130}), 1e-12)
	assert.Equal(t, 0.0, calculateMaxDrawdown([]float64{100, 101, 102}))
	assert.Equal(t, 0.0, calculateMaxDrawdown([]float64{100}))
}

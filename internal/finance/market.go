package finance

import (
	"context"
	"fmt"
	"math"
	"time"

	"capmOptimizerBot/internal/capm"
)

// MarketConfig names the benchmark and yield series the market context is
// built from.
type MarketConfig struct {
	MarketSymbol   string
	RiskFreeSymbol string
	// Lookback is used when a request names no window.
	Lookback Lookback
	// RiskFreeRate, when set, replaces the yield lookup.
	RiskFreeRate *float64
	// TTL bounds how long a loaded context is reused.
	TTL time.Duration
}

var DefaultMarketConfig = MarketConfig{
	MarketSymbol:   "^GSPC",
	RiskFreeSymbol: "^TNX",
	Lookback:       DefaultLookback,
	TTL:            time.Hour,
}

type cachedMarket struct {
	mc capm.MarketContext
	at time.Time
}

// MarketContext loads (or reuses) the risk-free rate and the expected
// market return over lb. A zero lb means the configured lookback. Windows
// under a year are widened to one year, the shortest span that always
// contains a year end.
func (p *Pipeline) MarketContext(ctx context.Context, lb Lookback) (capm.MarketContext, error) {
	lb = p.marketWindow(lb)

	p.mu.Lock()
	if c, ok := p.markets[lb]; ok && p.Now().Sub(c.at) < p.Market.TTL {
		p.mu.Unlock()
		return c.mc, nil
	}
	p.mu.Unlock()

	mc, err := p.loadMarket(ctx, lb)
	if err != nil {
		return capm.MarketContext{}, err
	}

	p.mu.Lock()
	if p.markets == nil {
		p.markets = make(map[Lookback]cachedMarket)
	}
	p.markets[lb] = cachedMarket{mc: mc, at: p.Now()}
	p.mu.Unlock()
	return mc, nil
}

func (p *Pipeline) marketWindow(lb Lookback) Lookback {
	if lb.N == 0 {
		lb = p.Market.Lookback
	}
	if lb.N == 0 {
		lb = DefaultLookback
	}
	end := p.Now()
	if lb.Start(end).After(end.AddDate(-1, 0, 0)) {
		return Years(1)
	}
	return lb
}

func (p *Pipeline) loadMarket(ctx context.Context, lb Lookback) (capm.MarketContext, error) {
	cfg := p.Market
	end := p.Now()

	idx, err := p.fetch(ctx, cfg.MarketSymbol, lb.Start(end), end)
	if err != nil {
		return capm.MarketContext{}, fmt.Errorf("market return: %w", err)
	}
	rm := capm.MeanAnnualReturn(idx)
	if math.IsNaN(rm) {
		return capm.MarketContext{}, fmt.Errorf("market return: %s spans under two year-ends: %w", cfg.MarketSymbol, capm.ErrDataUnavailable)
	}

	var rf float64
	if cfg.RiskFreeRate != nil {
		rf = *cfg.RiskFreeRate
	} else {
		y, err := p.fetch(ctx, cfg.RiskFreeSymbol, end.AddDate(0, -1, 0), end)
		if err != nil {
			return capm.MarketContext{}, fmt.Errorf("risk-free rate: %w", err)
		}
		var ok bool
		if rf, ok = capm.RiskFreeFromYield(y); !ok {
			return capm.MarketContext{}, fmt.Errorf("risk-free rate: no %s quotes in the last month: %w", cfg.RiskFreeSymbol, capm.ErrDataUnavailable)
		}
	}

	mc := capm.MarketContext{
		RiskFree:       rf,
		MarketReturn:   rm,
		MarketSymbol:   cfg.MarketSymbol,
		RiskFreeSymbol: cfg.RiskFreeSymbol,
		AsOf:           end,
	}
	p.log.Info().Float64("rf", rf).Float64("rm", rm).Str("lookback", lb.String()).Msg("pipeline: market context loaded")
	return mc, nil
}

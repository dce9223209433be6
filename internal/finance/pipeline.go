package finance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"capmOptimizerBot/internal/capm"
	"capmOptimizerBot/internal/optimize"
)

// Pipeline fetches prices, estimates expected returns and covariance, and
// runs the configured optimizer.
type Pipeline struct {
	Primary     PriceSource
	Fallback    PriceSource // optional second source
	Optimizer   optimize.Optimizer
	Market      MarketConfig
	Concurrency int
	Now         func() time.Time

	log zerolog.Logger

	mu      sync.Mutex
	markets map[Lookback]cachedMarket
}

func NewPipeline(primary, fallback PriceSource, opt optimize.Optimizer, market MarketConfig, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		Primary:     primary,
		Fallback:    fallback,
		Optimizer:   opt,
		Market:      market,
		Concurrency: 4,
		Now:         time.Now,
		log:         log.With().Str("component", "pipeline").Logger(),
	}
}

// fetch tries the primary source, then the fallback.
func (p *Pipeline) fetch(ctx context.Context, ticker string, start, end time.Time) (capm.PriceSeries, error) {
	s, err := p.Primary.PriceSeries(ctx, ticker, start, end)
	if err == nil {
		return s, nil
	}
	if p.Fallback == nil || ctx.Err() != nil {
		return capm.PriceSeries{}, err
	}
	p.log.Debug().Err(err).Str("ticker", ticker).Msg("pipeline: primary source failed, trying fallback")
	return p.Fallback.PriceSeries(ctx, ticker, start, end)
}

// benchmark holds the market series for one run, refetched from the
// fallback source at most once.
type benchmark struct {
	primary  capm.PriceSeries
	once     sync.Once
	fallback capm.PriceSeries
}

func (b *benchmark) secondary(ctx context.Context, p *Pipeline, start, end time.Time) capm.PriceSeries {
	b.once.Do(func() {
		if p.Fallback == nil {
			return
		}
		s, err := p.Fallback.PriceSeries(ctx, p.Market.MarketSymbol, start, end)
		if err != nil {
			p.log.Warn().Err(err).Msg("pipeline: fallback market series unavailable")
			return
		}
		b.fallback = s
	})
	return b.fallback
}

type outcome struct {
	res     TickerResult
	skipped bool
	reason  error
}

// estimate prices one ticker: CAPM when it overlaps the market, otherwise
// its own daily returns with the historical mean filled in later.
func (p *Pipeline) estimate(ctx context.Context, ticker string, bm *benchmark, mc capm.MarketContext, start, end time.Time) outcome {
	stock, err := p.fetch(ctx, ticker, start, end)
	if err != nil {
		return outcome{res: TickerResult{Ticker: ticker}, skipped: true, reason: err}
	}

	tr := TickerResult{Ticker: ticker, Beta: math.NaN(), ExpectedReturn: math.NaN(), CAGR: math.NaN(), prices: stock}
	if g, ok := capm.CAGR(stock); ok {
		tr.CAGR = g
	}

	est, err := capm.EstimateCAPM(ticker, stock, bm.primary, mc)
	if errors.Is(err, capm.ErrInsufficientOverlap) && p.Fallback != nil {
		if s2, ferr := p.Fallback.PriceSeries(ctx, ticker, start, end); ferr == nil {
			if m2 := bm.secondary(ctx, p, start, end); m2.Len() > 0 {
				if est2, err2 := capm.EstimateCAPM(ticker, s2, m2, mc); err2 == nil {
					est, err, stock = est2, nil, s2
					tr.prices = s2
				}
			}
		}
	}

	if err == nil {
		tr.Source = SourceCAPM
		tr.Beta = est.Beta
		tr.ExpectedReturn = est.ExpectedReturn
		tr.Observations = est.Observations
		tr.returns = est.Returns.StockSeries(ticker)
		return outcome{res: tr}
	}

	p.log.Info().Err(err).Str("ticker", ticker).Msg("pipeline: CAPM skipped, using historical mean")
	tr.Source = SourceHistorical
	tr.returns = capm.Returns(stock)
	tr.Observations = tr.returns.Len()
	if tr.returns.Len() == 0 {
		return outcome{res: tr, skipped: true, reason: fmt.Errorf("%s: no usable price history: %w", ticker, capm.ErrDataUnavailable)}
	}
	return outcome{res: tr}
}

// Estimate runs the per-ticker stage alone, for single-ticker reports.
func (p *Pipeline) Estimate(ctx context.Context, ticker string, lb Lookback, mc capm.MarketContext) (TickerResult, capm.PriceSeries, error) {
	end := p.Now()
	start := lb.Start(end)
	bm := &benchmark{}
	if m, err := p.fetch(ctx, p.Market.MarketSymbol, start, end); err == nil {
		bm.primary = m
	}
	out := p.estimate(ctx, ticker, bm, mc, start, end)
	if out.skipped {
		return TickerResult{}, capm.PriceSeries{}, out.reason
	}
	if out.res.Source == SourceHistorical {
		out.res.ExpectedReturn = capm.HistoricalMean(out.res.returns.Returns)
	}
	return out.res, out.res.prices, nil
}

// Run executes the whole flow for req against mc. The only error for bad
// data is optimize.ErrEmptyPortfolio; tickers without data are skipped.
func (p *Pipeline) Run(ctx context.Context, req Request, mc capm.MarketContext) (*Result, error) {
	if len(req.Tickers) == 0 {
		return nil, fmt.Errorf("no tickers: %w", optimize.ErrEmptyPortfolio)
	}
	lb := req.Lookback
	if lb.N == 0 {
		lb = DefaultLookback
	}
	end := p.Now()
	start := lb.Start(end)

	res := &Result{
		ID:         uuid.NewString(),
		CreatedAt:  end,
		Mode:       req.Mode,
		Target:     req.TargetReturn,
		AllowShort: req.AllowShort,
		Lookback:   lb,
		Market:     mc,
	}
	if res.Mode == optimize.TargetReturn && (math.IsNaN(req.TargetReturn) || math.IsInf(req.TargetReturn, 0)) {
		res.Mode = optimize.MaxSharpe
		res.Notes = append(res.Notes, "no valid target return given, using max_sharpe")
		p.log.Warn().Msg("pipeline: target_return without a valid target, using max_sharpe")
	}

	bm := &benchmark{}
	market, err := p.fetch(ctx, p.Market.MarketSymbol, start, end)
	if err != nil {
		p.log.Warn().Err(err).Str("symbol", p.Market.MarketSymbol).Msg("pipeline: market series unavailable, CAPM disabled for this run")
		res.Notes = append(res.Notes, "market index unavailable, expected returns are historical means")
	} else {
		bm.primary = market
	}

	outcomes := make([]outcome, len(req.Tickers))
	g, gctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for i, t := range req.Tickers {
		i, t := i, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.estimate(gctx, t, bm, mc, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var series []capm.ReturnSeries
	for _, o := range outcomes {
		if o.skipped {
			p.log.Warn().Err(o.reason).Str("ticker", o.res.Ticker).Msg("pipeline: ticker dropped")
			res.Skipped = append(res.Skipped, o.res.Ticker)
			continue
		}
		res.Tickers = append(res.Tickers, o.res.Ticker)
		res.PerTicker = append(res.PerTicker, o.res)
		series = append(series, o.res.returns)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no ticker has usable price data: %w", optimize.ErrEmptyPortfolio)
	}

	dates, joined := capm.JoinReturns(series...)
	if joined == nil || len(dates) < 2 {
		return nil, fmt.Errorf("tickers share fewer than 2 return dates: %w", optimize.ErrEmptyPortfolio)
	}
	res.Dates, res.Returns = dates, joined

	mu := make([]float64, len(series))
	for j := range res.PerTicker {
		tr := &res.PerTicker[j]
		if tr.Source == SourceHistorical {
			tr.ExpectedReturn = stat.Mean(mat.Col(nil, j, joined), nil) * capm.TradingDays
		}
		mu[j] = tr.ExpectedReturn
	}

	daily, err := optimize.DailyCovariance(joined)
	if err != nil {
		return nil, fmt.Errorf("covariance: %w", err)
	}
	cov := optimize.Annualize(daily, optimize.AnnualizationFactor)

	sol, err := p.Optimizer.Optimize(optimize.Problem{
		Mu:           mu,
		Cov:          cov,
		RiskFree:     mc.RiskFree,
		AllowShort:   req.AllowShort,
		Mode:         res.Mode,
		TargetReturn: req.TargetReturn,
	})
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	if sol.Err != nil {
		res.Notes = append(res.Notes, sol.Err.Error())
	}

	res.Weights = optimize.Normalize(sol.Weights, req.AllowShort)
	res.Method, res.Converged, res.Iterations = sol.Method, sol.Converged, sol.Iterations
	res.Stats = optimize.ComputeStats(res.Weights, mu, cov, mc.RiskFree)
	res.Baseline = optimize.ComputeStats(optimize.EqualWeights(len(mu)), mu, cov, mc.RiskFree)

	p.log.Info().
		Str("run", res.ID).
		Str("mode", res.Mode.String()).
		Strs("tickers", res.Tickers).
		Bool("converged", res.Converged).
		Float64("sharpe", res.Stats.Sharpe).
		Msg("pipeline: optimized")
	return res, nil
}

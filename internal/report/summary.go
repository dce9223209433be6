package report

import (
	"math"
	"time"

	"capmOptimizerBot/internal/capm"
	"capmOptimizerBot/internal/finance"
	"capmOptimizerBot/internal/optimize"
)

// Summary is the serializable view of one optimization run. Values that are
// NaN or infinite encode as null.
type Summary struct {
	ID           string                  `json:"id"`
	CreatedAt    time.Time               `json:"createdAt"`
	Mode         string                  `json:"mode"`
	TargetReturn *float64                `json:"targetReturn"`
	AllowShort   bool                    `json:"allowShort"`
	Lookback     string                  `json:"lookback"`
	Weights      map[string]float64      `json:"weights"`
	UsedTickers  []string                `json:"usedTickers"`
	PerStock     map[string]StockSummary `json:"perStock"`
	Stats        StatsSummary            `json:"stats"`
	Baseline     StatsSummary            `json:"baseline"`
	Market       MarketSummary           `json:"market"`
	Converged    bool                    `json:"converged"`
	Method       string                  `json:"method"`
	Iterations   int                     `json:"iterations"`
	Skipped      []string                `json:"skipped"`
	Notes        []string                `json:"notes"`
	Backtest     *BacktestSummary        `json:"backtest,omitempty"`
}

type StockSummary struct {
	Beta         *float64 `json:"beta"`
	ExpectedCAPM *float64 `json:"expectedCAPM"`
	CAGRApprox   *float64 `json:"cagrApprox"`
	Source       string   `json:"source"`
	Observations int      `json:"observations"`
}

type StatsSummary struct {
	ExpectedReturn *float64 `json:"expected_return"`
	Volatility     *float64 `json:"volatility"`
	Sharpe         *float64 `json:"sharpe"`
}

type MarketSummary struct {
	Rf             *float64  `json:"Rf"`
	Rm             *float64  `json:"Rm"`
	MarketSymbol   string    `json:"marketSymbol,omitempty"`
	RiskFreeSymbol string    `json:"riskFreeSymbol,omitempty"`
	AsOf           time.Time `json:"asOf"`
}

// BacktestSummary replays the weights over the joined history.
type BacktestSummary struct {
	Days                int      `json:"days"`
	TotalReturn         *float64 `json:"totalReturn"`
	MaxDrawdown         *float64 `json:"maxDrawdown"`
	BaselineTotalReturn *float64 `json:"baselineTotalReturn"`
	BaselineMaxDrawdown *float64 `json:"baselineMaxDrawdown"`
}

func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func val(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func statsSummary(s optimize.Stats) StatsSummary {
	return StatsSummary{ExpectedReturn: num(s.ExpectedReturn), Volatility: num(s.Volatility), Sharpe: num(s.Sharpe)}
}

func Market(mc capm.MarketContext) MarketSummary {
	return MarketSummary{
		Rf:             num(mc.RiskFree),
		Rm:             num(mc.MarketReturn),
		MarketSymbol:   mc.MarketSymbol,
		RiskFreeSymbol: mc.RiskFreeSymbol,
		AsOf:           mc.AsOf,
	}
}

func Stock(tr finance.TickerResult) StockSummary {
	return StockSummary{
		Beta:         num(tr.Beta),
		ExpectedCAPM: num(tr.ExpectedReturn),
		CAGRApprox:   num(tr.CAGR),
		Source:       tr.Source,
		Observations: tr.Observations,
	}
}

// FromResult builds the summary of r, including the equal-weight backtest
// when the joined history allows it.
func FromResult(r *finance.Result) Summary {
	s := Summary{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		Mode:         r.Mode.String(),
		TargetReturn: num(r.Target),
		AllowShort:   r.AllowShort,
		Lookback:     r.Lookback.String(),
		Weights:      make(map[string]float64, len(r.Tickers)),
		UsedTickers:  append([]string{}, r.Tickers...),
		PerStock:     make(map[string]StockSummary, len(r.PerTicker)),
		Stats:        statsSummary(r.Stats),
		Baseline:     statsSummary(r.Baseline),
		Market:       Market(r.Market),
		Converged:    r.Converged,
		Method:       string(r.Method),
		Iterations:   r.Iterations,
		Skipped:      append([]string{}, r.Skipped...),
		Notes:        append([]string{}, r.Notes...),
	}
	for i, t := range r.Tickers {
		s.Weights[t] = r.Weights[i]
	}
	for _, tr := range r.PerTicker {
		s.PerStock[tr.Ticker] = Stock(tr)
	}

	if optimized, baseline, err := finance.Backtest(r); err == nil {
		ost, oerr := optimized.Stats()
		bs, berr := baseline.Stats()
		if oerr == nil && berr == nil {
			s.Backtest = &BacktestSummary{
				Days:                ost.NumDays,
				TotalReturn:         num(ost.TotalReturn),
				MaxDrawdown:         num(ost.MaxDrawdown),
				BaselineTotalReturn: num(bs.TotalReturn),
				BaselineMaxDrawdown: num(bs.MaxDrawdown),
			}
		}
	}
	return s
}

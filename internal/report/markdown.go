package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"capmOptimizerBot/internal/capm"
	"capmOptimizerBot/internal/finance"
)

var hundred = decimal.NewFromInt(100)

// Percent rounds a fraction to two decimals of a percent: 0.12345 -> "12.35%".
func Percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).Mul(hundred).Round(2).StringFixed(2) + "%"
}

// PercentTrunc truncates instead of rounding: 0.12349 -> "12.34%".
func PercentTrunc(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).Mul(hundred).Truncate(2).StringFixed(2) + "%"
}

// Number rounds to two decimals.
func Number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

var mdEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escape protects free text from Markdown entity parsing.
func escape(s string) string { return mdEscaper.Replace(s) }

func statsLine(s StatsSummary) string {
	return fmt.Sprintf("return %s • volatility %s • Sharpe %s",
		Percent(val(s.ExpectedReturn)), Percent(val(s.Volatility)), Number(val(s.Sharpe)))
}

// Markdown renders a run for chat and terminal output.
func Markdown(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Portfolio* `%s` • %d tickers • %s", s.Mode, len(s.UsedTickers), s.Lookback)
	if s.TargetReturn != nil {
		fmt.Fprintf(&b, " • target %s", Percent(*s.TargetReturn))
	}
	if s.AllowShort {
		b.WriteString(" • shorts allowed")
	}
	b.WriteString("\n")

	status := "converged"
	if !s.Converged {
		status = "not converged"
	}
	fmt.Fprintf(&b, "Solver `%s`: %s after %d iterations\n", s.Method, status, s.Iterations)
	fmt.Fprintf(&b, "Rf %s • Rm %s\n\n", Percent(val(s.Market.Rf)), Percent(val(s.Market.Rm)))

	b.WriteString("```\n")
	fmt.Fprintf(&b, "%-8s %8s %6s %8s %8s %s\n", "Ticker", "Weight", "Beta", "E[R]", "CAGR", "Source")
	for _, t := range s.UsedTickers {
		ps := s.PerStock[t]
		fmt.Fprintf(&b, "%-8s %8s %6s %8s %8s %s\n", t, Percent(s.Weights[t]), Number(val(ps.Beta)),
			PercentTrunc(val(ps.ExpectedCAPM)), PercentTrunc(val(ps.CAGRApprox)), ps.Source)
	}
	b.WriteString("```\n\n")

	fmt.Fprintf(&b, "Optimized: %s\n", statsLine(s.Stats))
	fmt.Fprintf(&b, "Equal weight: %s\n", statsLine(s.Baseline))
	if bt := s.Backtest; bt != nil {
		fmt.Fprintf(&b, "Backtest (%d days): %s vs %s, max drawdown %s vs %s\n", bt.Days,
			Percent(val(bt.TotalReturn)), Percent(val(bt.BaselineTotalReturn)),
			Percent(val(bt.MaxDrawdown)), Percent(val(bt.BaselineMaxDrawdown)))
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped (no data): %s\n", strings.Join(s.Skipped, ", "))
	}
	for _, n := range s.Notes {
		fmt.Fprintf(&b, "Note: %s\n", escape(n))
	}
	return b.String()
}

// EstimateMarkdown renders a single-ticker CAPM estimate.
func EstimateMarkdown(tr finance.TickerResult, mc capm.MarketContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* vs %s\n\n", tr.Ticker, mc.MarketSymbol)
	if tr.Source == finance.SourceCAPM {
		fmt.Fprintf(&b, "Beta: %s (%d observations)\n", Number(tr.Beta), tr.Observations)
		fmt.Fprintf(&b, "CAPM expected return: %s\n", PercentTrunc(tr.ExpectedReturn))
	} else {
		fmt.Fprintf(&b, "Beta: n/a, no overlap with %s\n", mc.MarketSymbol)
		fmt.Fprintf(&b, "Historical mean return: %s (%d observations)\n", PercentTrunc(tr.ExpectedReturn), tr.Observations)
	}
	fmt.Fprintf(&b, "CAGR: %s\n", PercentTrunc(tr.CAGR))
	fmt.Fprintf(&b, "Rf %s • Rm %s\n", Percent(mc.RiskFree), Percent(mc.MarketReturn))
	return b.String()
}

// MarketMarkdown renders the market context.
func MarketMarkdown(mc capm.MarketContext) string {
	var b strings.Builder
	b.WriteString("*Market*\n\n")
	fmt.Fprintf(&b, "Risk-free rate (%s): %s\n", mc.RiskFreeSymbol, Percent(mc.RiskFree))
	fmt.Fprintf(&b, "Expected market return (%s): %s\n", mc.MarketSymbol, Percent(mc.MarketReturn))
	fmt.Fprintf(&b, "Equity premium: %s\n", Percent(mc.MarketReturn-mc.RiskFree))
	if !mc.AsOf.IsZero() {
		fmt.Fprintf(&b, "As of %s\n", mc.AsOf.Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}

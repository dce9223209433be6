package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/subcommands"

	"capmOptimizerBot/internal/finance"
	"capmOptimizerBot/internal/optimize"
	"capmOptimizerBot/internal/report"
)

// --- optimizeCmd ---

type optimizeCmd struct {
	common
	mode   string
	target string
	short  bool
	chart  string
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "compute portfolio weights from CAPM expected returns" }
func (*optimizeCmd) Usage() string {
	return `capm optimize [-mode max_sharpe|min_variance|target_return] [-target 0.12] [-short] TICKER...

  Fetches daily prices, estimates CAPM expected returns against the market
  index and prints the optimal weights next to the equal-weight baseline.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	c.setCommonFlags(f)
	f.StringVar(&c.mode, "mode", "max_sharpe", "Objective: max_sharpe, min_variance or target_return.")
	f.StringVar(&c.target, "target", "", "Target annual return for target_return, e.g. 0.12 or 12%.")
	f.BoolVar(&c.short, "short", c.cfg.AllowShort, "Allow short positions (weights in [-1, 1]).")
	f.StringVar(&c.chart, "chart", "", "Write the weights chart to this PNG file.")
}

func (c *optimizeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tickers, err := finance.NormalizeTickers(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	mode, err := optimize.ParseMode(c.mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	target := math.NaN()
	if c.target != "" {
		if target, err = finance.ParseTarget(c.target); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	p, closer, err := c.pipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer closer()

	lb, _ := c.lookback()
	mc, err := p.MarketContext(ctx, lb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading market context: %v\n", err)
		return subcommands.ExitFailure
	}
	res, err := p.Run(ctx, finance.Request{
		Tickers:      tickers,
		Mode:         mode,
		TargetReturn: target,
		Lookback:     lb,
		AllowShort:   c.short,
	}, mc)
	if errors.Is(err, optimize.ErrEmptyPortfolio) {
		fmt.Fprintf(os.Stderr, "No usable price data for %s\n", strings.Join(tickers, ", "))
		return subcommands.ExitFailure
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Optimization failed: %v\n", err)
		return subcommands.ExitFailure
	}

	summary := report.FromResult(res)
	if err := c.print(report.Markdown(summary), summary); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.chart != "" {
		img, err := finance.MakeWeightsChart(res.Tickers, res.Weights, fmt.Sprintf("Weights (%s)", res.Mode))
		if err == nil {
			err = os.WriteFile(c.chart, img, 0o644)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing chart: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

// --- betaCmd ---

type betaCmd struct {
	common
}

func (*betaCmd) Name() string     { return "beta" }
func (*betaCmd) Synopsis() string { return "estimate beta and the CAPM expected return of tickers" }
func (*betaCmd) Usage() string {
	return `capm beta [-years 5] TICKER...

  Regresses each ticker's daily returns on the market index.
`
}

func (c *betaCmd) SetFlags(f *flag.FlagSet) { c.setCommonFlags(f) }

func (c *betaCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tickers, err := finance.NormalizeTickers(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	p, closer, err := c.pipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer closer()

	lb, _ := c.lookback()
	mc, err := p.MarketContext(ctx, lb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading market context: %v\n", err)
		return subcommands.ExitFailure
	}

	status := subcommands.ExitSuccess
	var md strings.Builder
	out := make(map[string]report.StockSummary)
	for _, t := range tickers {
		tr, _, err := p.Estimate(ctx, t, lb, mc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error estimating %s: %v\n", t, err)
			status = subcommands.ExitFailure
			continue
		}
		md.WriteString(report.EstimateMarkdown(tr, mc))
		md.WriteString("\n")
		out[t] = report.Stock(tr)
	}
	if err := c.print(md.String(), out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return status
}

// --- marketCmd ---

type marketCmd struct {
	common
}

func (*marketCmd) Name() string     { return "market" }
func (*marketCmd) Synopsis() string { return "show the risk-free rate and expected market return" }
func (*marketCmd) Usage() string {
	return `capm market [-years 5] [-rf 4.2%]

  Prints the market context every estimate is computed against.
`
}

func (c *marketCmd) SetFlags(f *flag.FlagSet) { c.setCommonFlags(f) }

func (c *marketCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	p, closer, err := c.pipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer closer()

	lb, _ := c.lookback()
	mc, err := p.MarketContext(ctx, lb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading market context: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := c.print(report.MarketMarkdown(mc), report.Market(mc)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

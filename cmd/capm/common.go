package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"

	"capmOptimizerBot/internal/config"
	"capmOptimizerBot/internal/finance"
	"capmOptimizerBot/internal/optimize"
	"capmOptimizerBot/internal/storage"
)

// common holds the flags every subcommand shares. Defaults come from the
// environment, see internal/config.
type common struct {
	cfg config.Config

	years    int
	riskFree string
	solver   string
	cache    string
	asJSON   bool
}

func (c *common) setCommonFlags(f *flag.FlagSet) {
	f.IntVar(&c.years, "years", c.cfg.HistoryYears, "Years of daily history to use.")
	f.StringVar(&c.riskFree, "rf", "", "Risk-free rate override, e.g. 0.042 or 4.2%. Defaults to the latest ^TNX yield.")
	f.StringVar(&c.solver, "solver", string(c.cfg.Solver), "Optimizer strategy: sqp or heuristic.")
	f.StringVar(&c.cache, "cache", "", "Path to a sqlite file used to cache downloaded prices.")
	f.BoolVar(&c.asJSON, "json", false, "Print JSON instead of a rendered report.")
}

func (c *common) lookback() (finance.Lookback, error) {
	if c.years < 1 || c.years > 30 {
		return finance.Lookback{}, fmt.Errorf("-years must be between 1 and 30, got %d", c.years)
	}
	return finance.Years(c.years), nil
}

// pipeline wires the Yahoo sources, the optional price cache and the
// optimizer. The returned func releases the cache.
func (c *common) pipeline() (*finance.Pipeline, func(), error) {
	lb, err := c.lookback()
	if err != nil {
		return nil, nil, err
	}
	method, err := optimize.ParseMethod(c.solver)
	if err != nil {
		return nil, nil, err
	}
	opt, err := optimize.New(optimize.Config{Method: method, MaxIter: c.cfg.SolverMaxIter, Logger: log.Logger})
	if err != nil {
		return nil, nil, err
	}

	market := finance.MarketConfig{
		MarketSymbol:   c.cfg.MarketSymbol,
		RiskFreeSymbol: c.cfg.RiskFreeSymbol,
		Lookback:       lb,
		RiskFreeRate:   c.cfg.RiskFreeRate,
		TTL:            finance.DefaultMarketConfig.TTL,
	}
	if c.riskFree != "" {
		rf, err := finance.ParseTarget(c.riskFree)
		if err != nil {
			return nil, nil, fmt.Errorf("-rf: %w", err)
		}
		market.RiskFreeRate = &rf
	}

	closer := func() {}
	var cache finance.PriceCache
	if c.cache != "" {
		_ = os.MkdirAll(filepath.Dir(c.cache), 0o755)
		db, err := storage.OpenSQLite("file:" + c.cache)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.InitSchema(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		cache = storage.NewStore(db)
		closer = func() { db.Close() }
	}

	primary, fallback := finance.YahooSources(cache, c.cfg.PriceCacheTTL, log.Logger)
	p := finance.NewPipeline(primary, fallback, opt, market, log.Logger)
	p.Concurrency = c.cfg.FetchConcurrency
	return p, closer, nil
}

func (c *common) print(md string, v any) error {
	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	printMarkdown(md)
	return nil
}

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

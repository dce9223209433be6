package main

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capmOptimizerBot/internal/config"
	"capmOptimizerBot/internal/finance"
	"capmOptimizerBot/internal/optimize"
)

func TestCommonPipeline(t *testing.T) {
	c := &optimizeCmd{common: common{cfg: config.LoadShared()}}
	f := flag.NewFlagSet("optimize", flag.ContinueOnError)
	c.SetFlags(f)
	require.NoError(t, f.Parse([]string{
		"-years", "3", "-rf", "4.2%", "-solver", "heuristic",
		"-cache", filepath.Join(t.TempDir(), "cache", "prices.db"),
		"AAPL", "MSFT",
	}))
	assert.Equal(t, []string{"AAPL", "MSFT"}, f.Args())

	p, closer, err := c.pipeline()
	require.NoError(t, err)
	defer closer()

	assert.Equal(t, finance.Years(3), p.Market.Lookback)
	require.NotNil(t, p.Market.RiskFreeRate)
	assert.InDelta(t, 0.042, *p.Market.RiskFreeRate, 1e-12)
	assert.Equal(t, optimize.MethodHeuristic, p.Optimizer.Method())
	assert.IsType(t, &finance.CachedSource{}, p.Primary)
	assert.IsType(t, &finance.YahooSource{}, p.Fallback)
}

func TestCommonPipelineErrors(t *testing.T) {
	for _, args := range [][]string{
		{"-years", "0"},
		{"-rf", "lots"},
		{"-solver", "annealing"},
	} {
		c := &marketCmd{common: common{cfg: config.LoadShared()}}
		f := flag.NewFlagSet("market", flag.ContinueOnError)
		c.SetFlags(f)
		require.NoError(t, f.Parse(args))
		_, _, err := c.pipeline()
		assert.Error(t, err, args)
	}
}

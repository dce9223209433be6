package finance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"capmOptimizerBot/internal/capm"
)

// PriceCache persists fetched series by key.
type PriceCache interface {
	LoadPrices(key string, maxAge time.Duration) (capm.PriceSeries, bool, error)
	SavePrices(key string, s capm.PriceSeries) error
}

// CachedSource serves repeated requests for the same ticker and day range
// from a PriceCache. Cache errors are logged and bypassed.
type CachedSource struct {
	Source PriceSource
	Cache  PriceCache
	TTL    time.Duration
	log    zerolog.Logger
}

func NewCachedSource(src PriceSource, cache PriceCache, ttl time.Duration, log zerolog.Logger) *CachedSource {
	return &CachedSource{Source: src, Cache: cache, TTL: ttl, log: log.With().Str("component", "price_cache").Logger()}
}

func cacheKey(ticker string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s", strings.ToUpper(ticker), start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func (c *CachedSource) PriceSeries(ctx context.Context, ticker string, start, end time.Time) (capm.PriceSeries, error) {
	key := cacheKey(ticker, start, end)
	s, ok, err := c.Cache.LoadPrices(key, c.TTL)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache: load failed")
	} else if ok {
		return s, nil
	}

	s, err = c.Source.PriceSeries(ctx, ticker, start, end)
	if err != nil {
		return capm.PriceSeries{}, err
	}
	if s.Len() > 0 {
		if err := c.Cache.SavePrices(key, s); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache: save failed")
		}
	}
	return s, nil
}

// YahooSources returns the chart endpoint, behind cache when one is given,
// and the spark endpoint as its fallback.
func YahooSources(cache PriceCache, ttl time.Duration, log zerolog.Logger) (primary, fallback PriceSource) {
	primary = NewYahooSource(EndpointChart, log)
	if cache != nil {
		primary = NewCachedSource(primary, cache, ttl, log)
	}
	return primary, NewYahooSource(EndpointSpark, log)
}

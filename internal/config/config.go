package config

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"capmOptimizerBot/internal/optimize"
)

type Config struct {
	TelegramToken    string
	WebhookPublicURL string
	OpenAIKey        string // optional; /explain is disabled without it
	Port             string
	DBPath           string
	CORSOrigin       string
	LogLevel         zerolog.Level

	MarketSymbol   string
	RiskFreeSymbol string
	RiskFreeRate   *float64 // overrides the yield lookup when set
	HistoryYears   int
	AllowShort     bool

	Solver           optimize.Method
	SolverMaxIter    int
	FetchConcurrency int
	PriceCacheTTL    time.Duration
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatal().Str("key", k).Msg("config: missing env")
	}
	return v
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < min || n > max {
		log.Warn().Str("key", k).Str("value", v).Int("default", def).Msg("config: invalid value, using default")
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Bool("default", def).Msg("config: invalid value, using default")
		return def
	}
	return b
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d < 0 {
		log.Warn().Str("key", k).Str("value", v).Dur("default", def).Msg("config: invalid value, using default")
		return def
	}
	return d
}

// envRate reads a rate as a decimal or a percent ("0.042", "4.2%").
func envRate(k string) *float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	pct := strings.HasSuffix(v, "%")
	r, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	if err != nil || math.IsNaN(r) || math.IsInf(r, 0) {
		log.Warn().Str("key", k).Str("value", v).Msg("config: invalid rate, using market yield")
		return nil
	}
	if pct {
		r /= 100
	}
	return &r
}

// LoadShared reads everything except the Telegram credentials, for the CLI
// and tests.
func LoadShared() Config {
	level, err := zerolog.ParseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	solver, err := optimize.ParseMethod(envOr("SOLVER", string(optimize.MethodSQP)))
	if err != nil {
		log.Warn().Err(err).Msg("config: unknown solver, using sqp")
	}
	return Config{
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		Port:             envOr("PORT", "9095"),
		DBPath:           envOr("DB_PATH", "/app/data/optimizer.db"),
		CORSOrigin:       envOr("CORS_ORIGIN", "*"),
		LogLevel:         level,
		MarketSymbol:     strings.ToUpper(envOr("MARKET_SYMBOL", "^GSPC")),
		RiskFreeSymbol:   strings.ToUpper(envOr("RISK_FREE_SYMBOL", "^TNX")),
		RiskFreeRate:     envRate("RISK_FREE_RATE"),
		HistoryYears:     envInt("HISTORY_YEARS", 5, 1, 30),
		AllowShort:       envBool("ALLOW_SHORT", false),
		Solver:           solver,
		SolverMaxIter:    envInt("SOLVER_MAX_ITER", optimize.DefaultMaxIter, 1, 1000000),
		FetchConcurrency: envInt("FETCH_CONCURRENCY", 4, 1, 64),
		PriceCacheTTL:    envDuration("PRICE_CACHE_TTL", 24*time.Hour),
	}
}

// Load is LoadShared plus the Telegram credentials the bot cannot run without.
func Load() Config {
	cfg := LoadShared()
	cfg.TelegramToken = mustEnv("TELEGRAM_BOT_TOKEN")
	cfg.WebhookPublicURL = mustEnv("WEBHOOK_PUBLIC_URL")
	return cfg
}

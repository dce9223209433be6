package main

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"capmOptimizerBot/internal/config"
	"capmOptimizerBot/internal/finance"
	"capmOptimizerBot/internal/openai"
	"capmOptimizerBot/internal/optimize"
	"capmOptimizerBot/internal/server"
	"capmOptimizerBot/internal/storage"
	"capmOptimizerBot/internal/telegram"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.Load()
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.LogLevel > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	// Ensure parent directory for the DB exists
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	db, err := storage.OpenSQLite("file:" + cfg.DBPath + "?_fk=1")
	if err != nil {
		log.Fatal().Err(err).Msg("db: open failed")
	}
	defer db.Close()
	log.Info().Str("path", cfg.DBPath).Msg("db: opened sqlite")
	if err := storage.InitSchema(db); err != nil {
		log.Fatal().Err(err).Msg("db: schema failed")
	}
	log.Info().Msg("db: schema ensured (prices, runs tables)")
	store := storage.NewStore(db)

	opt, err := optimize.New(optimize.Config{Method: cfg.Solver, MaxIter: cfg.SolverMaxIter, Logger: log.Logger})
	if err != nil {
		log.Fatal().Err(err).Msg("optimize: bad solver config")
	}
	primary, fallback := finance.YahooSources(store, cfg.PriceCacheTTL, log.Logger)
	pipeline := finance.NewPipeline(primary, fallback, opt, finance.MarketConfig{
		MarketSymbol:   cfg.MarketSymbol,
		RiskFreeSymbol: cfg.RiskFreeSymbol,
		Lookback:       finance.Years(cfg.HistoryYears),
		RiskFreeRate:   cfg.RiskFreeRate,
		TTL:            finance.DefaultMarketConfig.TTL,
	}, log.Logger)
	pipeline.Concurrency = cfg.FetchConcurrency
	log.Info().Str("solver", string(opt.Method())).Int("concurrency", cfg.FetchConcurrency).Msg("pipeline: ready")

	var explainer telegram.Explainer
	if ex, err := openai.NewExplainer(cfg.OpenAIKey); err == nil {
		explainer = ex
	} else {
		log.Warn().Err(err).Msg("openai: /explain disabled")
	}

	tg, err := telegram.NewBot(cfg.TelegramToken, cfg.WebhookPublicURL, pipeline, store, explainer,
		telegram.Defaults{Lookback: finance.Years(cfg.HistoryYears), AllowShort: cfg.AllowShort}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram: init failed")
	}
	log.Info().Str("webhook", cfg.WebhookPublicURL).Msg("telegram: bot initialized")

	router := server.NewRouter(server.Options{
		Webhook:    tg.WebhookHandler, // registers /telegram/webhook
		Pipeline:   pipeline,
		Runs:       store,
		CORSOrigin: cfg.CORSOrigin,
		Log:        log.Logger,
	})
	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("http: listening")
	if err := server.ListenAndServe(addr, router); err != nil {
		log.Error().Err(err).Msg("http: server error")
		os.Exit(1)
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"capmOptimizerBot/internal/capm"
	"capmOptimizerBot/internal/finance"
	"capmOptimizerBot/internal/optimize"
	"capmOptimizerBot/internal/report"
	"capmOptimizerBot/internal/storage"
)

// Optimizer is the part of finance.Pipeline the API drives.
type Optimizer interface {
	MarketContext(ctx context.Context, lb finance.Lookback) (capm.MarketContext, error)
	Run(ctx context.Context, req finance.Request, mc capm.MarketContext) (*finance.Result, error)
}

type RunSaver interface {
	SaveRun(r storage.Run) error
}

type Options struct {
	Webhook    http.HandlerFunc // optional Telegram webhook
	Pipeline   Optimizer
	Runs       RunSaver // optional
	CORSOrigin string
	Timeout    time.Duration
	Log        zerolog.Logger
}

// OptimizeRequest is the body of POST /api/optimize.
type OptimizeRequest struct {
	Tickers      []string `json:"tickers"`
	Mode         string   `json:"mode"`
	TargetReturn *float64 `json:"targetReturn"`
	HistoryYears int      `json:"historyYears"`
	AllowShort   bool     `json:"allowShort"`
}

func (r OptimizeRequest) toRequest() (finance.Request, error) {
	tickers, err := finance.NormalizeTickers(r.Tickers)
	if err != nil {
		return finance.Request{}, err
	}
	mode, err := optimize.ParseMode(r.Mode)
	if err != nil {
		return finance.Request{}, err
	}
	years := r.HistoryYears
	if years == 0 {
		years = finance.DefaultLookback.N
	}
	if years < 1 || years > 30 {
		return finance.Request{}, fmt.Errorf("historyYears must be between 1 and 30, got %d", r.HistoryYears)
	}
	target := math.NaN()
	if r.TargetReturn != nil {
		target = *r.TargetReturn
	}
	return finance.Request{
		Tickers:      tickers,
		Mode:         mode,
		TargetReturn: target,
		Lookback:     finance.Years(years),
		AllowShort:   r.AllowShort,
	}, nil
}

type api struct {
	opts Options
	log  zerolog.Logger
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	a := &api{opts: opts, log: opts.Log.With().Str("component", "http").Logger()}

	router := gin.New()
	router.Use(gin.Recovery(), a.requestLog, corsFor(opts.CORSOrigin))

	if opts.Webhook != nil {
		router.POST("/telegram/webhook", gin.WrapF(opts.Webhook))
	}
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/market", a.market)
	router.POST("/api/optimize", a.optimize)
	router.OPTIONS("/api/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

func (a *api) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	a.log.Debug().
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", c.Writer.Status()).
		Dur("took", time.Since(start)).
		Msg("http: request")
}

func corsFor(origin string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		for _, o := range strings.Split(origin, ",") {
			cfg.AllowOrigins = append(cfg.AllowOrigins, strings.TrimSpace(o))
		}
	}
	return cors.New(cfg)
}

func returnErrorJsonCode(err error, c *gin.Context, code int) {
	c.AbortWithStatusJSON(code, gin.H{
		"error": err.Error(),
	})
}

func (a *api) market(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), a.opts.Timeout)
	defer cancel()
	var lb finance.Lookback
	if w := c.Query("window"); w != "" {
		var err error
		if lb, err = finance.ParseLookback(w); err != nil {
			returnErrorJsonCode(err, c, http.StatusBadRequest)
			return
		}
	}
	mc, err := a.opts.Pipeline.MarketContext(ctx, lb)
	if err != nil {
		a.log.Warn().Err(err).Msg("http: market context failed")
		returnErrorJsonCode(err, c, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, report.Market(mc))
}

func (a *api) optimize(c *gin.Context) {
	var body OptimizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		returnErrorJsonCode(fmt.Errorf("failed to read request body: %w", err), c, http.StatusBadRequest)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), a.opts.Timeout)
	defer cancel()
	mc, err := a.opts.Pipeline.MarketContext(ctx, req.Lookback)
	if err != nil {
		a.log.Warn().Err(err).Msg("http: market context failed")
		returnErrorJsonCode(fmt.Errorf("market data unavailable: %w", err), c, http.StatusBadGateway)
		return
	}
	res, err := a.opts.Pipeline.Run(ctx, req, mc)
	switch {
	case errors.Is(err, optimize.ErrEmptyPortfolio):
		returnErrorJsonCode(err, c, http.StatusUnprocessableEntity)
		return
	case err != nil:
		a.log.Error().Err(err).Strs("tickers", req.Tickers).Msg("http: optimize failed")
		returnErrorJsonCode(err, c, http.StatusInternalServerError)
		return
	}

	summary := report.FromResult(res)
	if a.opts.Runs != nil {
		payload, err := json.Marshal(summary)
		if err == nil {
			err = a.opts.Runs.SaveRun(storage.Run{
				ID:        res.ID,
				CreatedAt: res.CreatedAt,
				Mode:      summary.Mode,
				Tickers:   res.Tickers,
				Payload:   payload,
			})
		}
		if err != nil {
			a.log.Warn().Err(err).Str("run", res.ID).Msg("http: failed to save run")
		}
	}
	c.JSON(http.StatusOK, summary)
}

func ListenAndServe(addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

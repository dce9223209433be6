package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"capmOptimizerBot/internal/capm"
	"capmOptimizerBot/internal/finance"
	"capmOptimizerBot/internal/optimize"
	"capmOptimizerBot/internal/report"
	"capmOptimizerBot/internal/storage"
)

var (
	// /optimize T1 T2 ... [mode] [target] [window] [short]
	reOptimize = regexp.MustCompile(`^/optimize(?:@[\w_]+)?(?:\s+.*)?$`)
	// /capm SYMBOL [window]
	reCAPM = regexp.MustCompile(`^/capm(?:@[\w_]+)?\s+([A-Za-z0-9\.^_=+-]+)(?:\s+(\d+[dwmyDWMY]))?$`)
	// /market [window]
	reMarket = regexp.MustCompile(`^/market(?:@[\w_]+)?(?:\s+(\d+[dwmyDWMY]))?$`)
	// /history [n]
	reHistory = regexp.MustCompile(`^/history(?:@[\w_]+)?(?:\s+(\d+))?$`)
	// /explain
	reExplain = regexp.MustCompile(`^/explain(?:@[\w_]+)?$`)
	// /help
	reHelp = regexp.MustCompile(`^/(help|start)(?:@[\w_]+)?$`)
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Optimizer is the part of finance.Pipeline the bot drives.
type Optimizer interface {
	MarketContext(ctx context.Context, lb finance.Lookback) (capm.MarketContext, error)
	Run(ctx context.Context, req finance.Request, mc capm.MarketContext) (*finance.Result, error)
	Estimate(ctx context.Context, ticker string, lb finance.Lookback, mc capm.MarketContext) (finance.TickerResult, capm.PriceSeries, error)
}

type RunStore interface {
	SaveRun(r storage.Run) error
	RecentRuns(chatID int64, limit int) ([]storage.Run, error)
	LastRun(chatID int64) (storage.Run, error)
}

type Explainer interface {
	Explain(ctx context.Context, summary string) (string, error)
}

// Defaults fill in what an /optimize command leaves out.
type Defaults struct {
	Lookback   finance.Lookback
	AllowShort bool
}

type Handlers struct {
	api      sender
	pipeline Optimizer
	store    RunStore
	explain  Explainer // nil when no OpenAI key is configured
	defaults Defaults
	timeout  time.Duration
	log      zerolog.Logger
}

func NewHandlers(api sender, pipeline Optimizer, store RunStore, explain Explainer, defaults Defaults, log zerolog.Logger) *Handlers {
	if defaults.Lookback.N == 0 {
		defaults.Lookback = finance.DefaultLookback
	}
	return &Handlers{
		api:      api,
		pipeline: pipeline,
		store:    store,
		explain:  explain,
		defaults: defaults,
		timeout:  90 * time.Second,
		log:      log.With().Str("component", "telegram").Logger(),
	}
}

func (h *Handlers) HandleMessage(m *tgbotapi.Message) {
	txt := strings.TrimSpace(m.Text)
	chatID := m.Chat.ID
	switch {
	case reOptimize.MatchString(txt):
		h.handleOptimize(chatID, txt)

	case reCAPM.MatchString(txt):
		g := reCAPM.FindStringSubmatch(txt)
		h.handleCAPM(chatID, g[1], g[2])

	case reMarket.MatchString(txt):
		h.handleMarket(chatID, reMarket.FindStringSubmatch(txt)[1])

	case reHistory.MatchString(txt):
		n := 5
		if g := reHistory.FindStringSubmatch(txt); len(g) == 2 && g[1] != "" {
			n, _ = strconv.Atoi(g[1])
			if n < 1 {
				n = 1
			}
			if n > 20 {
				n = 20
			}
		}
		h.handleHistory(chatID, n)

	case reExplain.MatchString(txt):
		h.handleExplain(chatID)

	case reHelp.MatchString(txt):
		h.handleHelp(chatID)
	}
}

func (h *Handlers) handleOptimize(chatID int64, txt string) {
	req, err := finance.ParseOptimizeCommandDefaults(txt, h.defaults.Lookback, h.defaults.AllowShort)
	if err != nil {
		h.reply(chatID, "Couldn’t read that: "+err.Error()+"\nUsage: /optimize AAPL MSFT NVDA [max_sharpe|min_variance|target_return] [12%] [5y] [short]")
		return
	}
	h.reply(chatID, fmt.Sprintf("Optimizing %s (%s, %s)…", strings.Join(req.Tickers, ", "), req.Mode, req.Lookback))

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	mc, err := h.pipeline.MarketContext(ctx, req.Lookback)
	if err != nil {
		h.log.Warn().Err(err).Msg("telegram: market context failed")
		h.reply(chatID, "Market data unavailable: "+err.Error())
		return
	}
	res, err := h.pipeline.Run(ctx, req, mc)
	if errors.Is(err, optimize.ErrEmptyPortfolio) {
		h.reply(chatID, "None of these tickers has enough price history to optimize: "+strings.Join(req.Tickers, ", "))
		return
	}
	if err != nil {
		h.reply(chatID, "Optimization failed: "+err.Error())
		return
	}

	summary := report.FromResult(res)
	h.replyMarkdown(chatID, report.Markdown(summary))

	title := fmt.Sprintf("Weights (%s)", res.Mode)
	if img, err := finance.MakeWeightsChart(res.Tickers, res.Weights, title); err == nil {
		h.sendPhoto(chatID, "weights_"+res.ID+".png", img, title)
	} else {
		h.log.Debug().Err(err).Msg("telegram: weights chart skipped")
	}
	if img, err := finance.MakeGrowthChart(res); err == nil {
		h.sendPhoto(chatID, "growth_"+res.ID+".png", img, "Growth of 100: optimized vs equal weight")
	} else {
		h.log.Debug().Err(err).Msg("telegram: growth chart skipped")
	}

	payload, err := json.Marshal(summary)
	if err == nil {
		err = h.store.SaveRun(storage.Run{
			ID:        res.ID,
			ChatID:    chatID,
			CreatedAt: res.CreatedAt,
			Mode:      summary.Mode,
			Tickers:   res.Tickers,
			Payload:   payload,
		})
	}
	if err != nil {
		h.log.Warn().Err(err).Str("run", res.ID).Msg("telegram: failed to save run")
	}
}

func (h *Handlers) handleCAPM(chatID int64, sym, window string) {
	lb := h.defaults.Lookback
	if window != "" {
		var err error
		if lb, err = finance.ParseLookback(window); err != nil {
			h.reply(chatID, err.Error())
			return
		}
	}
	sym = strings.ToUpper(sym)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	mc, err := h.pipeline.MarketContext(ctx, lb)
	if err != nil {
		h.reply(chatID, "Market data unavailable: "+err.Error())
		return
	}
	tr, prices, err := h.pipeline.Estimate(ctx, sym, lb, mc)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Couldn’t fetch %s: %v", sym, err))
		return
	}

	text := report.EstimateMarkdown(tr, mc)
	img, err := finance.MakePriceChart(prices)
	if err != nil {
		h.replyMarkdown(chatID, text)
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: sym + "_" + lb.String() + ".png", Bytes: img})
	photo.Caption = text
	photo.ParseMode = tgbotapi.ModeMarkdown
	h.send(photo)
}

func (h *Handlers) handleMarket(chatID int64, window string) {
	lb := h.defaults.Lookback
	if window != "" {
		var err error
		if lb, err = finance.ParseLookback(window); err != nil {
			h.reply(chatID, err.Error())
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	mc, err := h.pipeline.MarketContext(ctx, lb)
	if err != nil {
		h.reply(chatID, "Market data unavailable: "+err.Error())
		return
	}
	h.replyMarkdown(chatID, report.MarketMarkdown(mc))
}

func (h *Handlers) handleHistory(chatID int64, n int) {
	runs, err := h.store.RecentRuns(chatID, n)
	if err != nil {
		h.reply(chatID, "History failed: "+err.Error())
		return
	}
	if len(runs) == 0 {
		h.reply(chatID, "No optimizations yet. Try /optimize AAPL MSFT NVDA")
		return
	}
	var b strings.Builder
	b.WriteString("*Recent runs*\n\n")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		sharpe := "n/a"
		var s report.Summary
		if json.Unmarshal(r.Payload, &s) == nil && s.Stats.Sharpe != nil {
			sharpe = report.Number(*s.Stats.Sharpe)
		}
		fmt.Fprintf(&b, "`%s` %s • `%s` • %s • Sharpe %s\n", id, r.CreatedAt.UTC().Format("2006-01-02 15:04"), r.Mode, strings.Join(r.Tickers, ", "), sharpe)
	}
	h.replyMarkdown(chatID, b.String())
}

func (h *Handlers) handleExplain(chatID int64) {
	if h.explain == nil {
		h.reply(chatID, "Explanations are disabled on this bot.")
		return
	}
	run, err := h.store.LastRun(chatID)
	if errors.Is(err, storage.ErrNoRuns) {
		h.reply(chatID, "Nothing to explain yet. Run /optimize first.")
		return
	}
	if err != nil {
		h.reply(chatID, "Explain failed: "+err.Error())
		return
	}
	var s report.Summary
	if err := json.Unmarshal(run.Payload, &s); err != nil {
		h.reply(chatID, "Explain failed: stored run is unreadable")
		return
	}

	h.reply(chatID, "Explaining your last run…")
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	out, err := h.explain.Explain(ctx, report.Markdown(s))
	if err != nil {
		h.reply(chatID, "Explain failed: "+err.Error())
		return
	}
	h.reply(chatID, out)
}

func (h *Handlers) handleHelp(chatID int64) {
	help := "Commands\n\n" +
		"- /optimize T1 T2 ... [max_sharpe|min_variance|target_return] [0.12|12%] [window] [short] - CAPM expected returns and optimal weights\n" +
		"- /capm SYMBOL [window] - Beta, CAPM expected return and CAGR with a 20-day moving average chart\n" +
		"- /market [window] - Risk-free rate and expected market return over the window\n" +
		"- /history [n] - Your last n optimizations (default: 5, max: 20)\n" +
		"- /explain - Plain-language explanation of your last optimization\n" +
		"\nWindows: 90d, 12w, 6m, 5y (default " + h.defaults.Lookback.String() + "). A bare target like 12% implies target_return."
	h.reply(chatID, help)
}

func (h *Handlers) send(c tgbotapi.Chattable) {
	if _, err := h.api.Send(c); err != nil {
		h.log.Warn().Err(err).Msg("telegram: send failed")
	}
}

func (h *Handlers) sendPhoto(chatID int64, name string, img []byte, caption string) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: img})
	photo.Caption = caption
	h.send(photo)
}

func (h *Handlers) reply(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

func (h *Handlers) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	h.send(msg)
}

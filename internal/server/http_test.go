package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capmOptimizerBot/internal/capm"
	"capmOptimizerBot/internal/finance"
	"capmOptimizerBot/internal/optimize"
	"capmOptimizerBot/internal/storage"
)

type fakePipeline struct {
	mcErr  error
	runErr error
	got    finance.Request
	gotLB  finance.Lookback
}

func (f *fakePipeline) MarketContext(_ context.Context, lb finance.Lookback) (capm.MarketContext, error) {
	f.gotLB = lb
	if f.mcErr != nil {
		return capm.MarketContext{}, f.mcErr
	}
	return capm.MarketContext{RiskFree: 0.04, MarketReturn: 0.09, MarketSymbol: "^GSPC", RiskFreeSymbol: "^TNX"}, nil
}

func (f *fakePipeline) Run(_ context.Context, req finance.Request, mc capm.MarketContext) (*finance.Result, error) {
	f.got = req
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &finance.Result{
		ID:        "run-1",
		Mode:      req.Mode,
		Target:    req.TargetReturn,
		Lookback:  req.Lookback,
		Tickers:   req.Tickers,
		Weights:   []float64{0.6, 0.4},
		PerTicker: []finance.TickerResult{{Ticker: req.Tickers[0], Source: finance.SourceCAPM, Beta: 1.1, ExpectedReturn: 0.095, CAGR: math.NaN()}, {Ticker: req.Tickers[1], Source: finance.SourceHistorical, Beta: math.NaN(), ExpectedReturn: 0.07, CAGR: 0.08}},
		Stats:     optimize.Stats{ExpectedReturn: 0.085, Volatility: 0.2, Sharpe: 0.225},
		Baseline:  optimize.Stats{ExpectedReturn: 0.0825, Volatility: 0, Sharpe: math.NaN()},
		Market:    mc,
		Method:    optimize.MethodSQP,
		Converged: true,
	}, nil
}

type memRuns struct{ runs []storage.Run }

func (m *memRuns) SaveRun(r storage.Run) error {
	m.runs = append(m.runs, r)
	return nil
}

func testRouter(p *fakePipeline, runs RunSaver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(Options{Pipeline: p, Runs: runs, CORSOrigin: "https://app.example", Log: zerolog.Nop()})
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOptimize(t *testing.T) {
	p := &fakePipeline{}
	runs := &memRuns{}
	w := do(testRouter(p, runs), http.MethodPost, "/api/optimize",
		`{"tickers":["aapl","msft","AAPL"],"mode":"min_variance","historyYears":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, []string{"AAPL", "MSFT"}, p.got.Tickers)
	assert.Equal(t, optimize.MinVariance, p.got.Mode)
	assert.Equal(t, finance.Years(3), p.got.Lookback)
	assert.Equal(t, finance.Years(3), p.gotLB, "market return over the request window")
	assert.True(t, math.IsNaN(p.got.TargetReturn))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["id"])
	assert.Equal(t, map[string]any{"AAPL": 0.6, "MSFT": 0.4}, body["weights"])
	assert.Equal(t, []any{"AAPL", "MSFT"}, body["usedTickers"])
	assert.Nil(t, body["baseline"].(map[string]any)["sharpe"])
	per := body["perStock"].(map[string]any)
	assert.Nil(t, per["MSFT"].(map[string]any)["beta"])
	assert.Equal(t, 1.1, per["AAPL"].(map[string]any)["beta"])
	assert.Equal(t, 0.04, body["market"].(map[string]any)["Rf"])

	require.Len(t, runs.runs, 1)
	assert.Equal(t, "run-1", runs.runs[0].ID)
	assert.Equal(t, "min_variance", runs.runs[0].Mode)
}

func TestOptimizeTarget(t *testing.T) {
	p := &fakePipeline{}
	w := do(testRouter(p, nil), http.MethodPost, "/api/optimize",
		`{"tickers":["AAPL","MSFT"],"mode":"target_return","targetReturn":0.12,"allowShort":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, optimize.TargetReturn, p.got.Mode)
	assert.Equal(t, 0.12, p.got.TargetReturn)
	assert.True(t, p.got.AllowShort)
	assert.Equal(t, finance.DefaultLookback.N, p.got.Lookback.N)
}

func TestOptimizeErrors(t *testing.T) {
	tests := []struct {
		name string
		p    *fakePipeline
		body string
		code int
	}{
		{"bad json", &fakePipeline{}, `{"tickers":`, http.StatusBadRequest},
		{"no tickers", &fakePipeline{}, `{"tickers":[]}`, http.StatusBadRequest},
		{"bad ticker", &fakePipeline{}, `{"tickers":["$$$"]}`, http.StatusBadRequest},
		{"bad mode", &fakePipeline{}, `{"tickers":["AAPL"],"mode":"yolo"}`, http.StatusBadRequest},
		{"bad years", &fakePipeline{}, `{"tickers":["AAPL"],"historyYears":50}`, http.StatusBadRequest},
		{"market down", &fakePipeline{mcErr: capm.ErrDataUnavailable}, `{"tickers":["AAPL","MSFT"]}`, http.StatusBadGateway},
		{"empty portfolio", &fakePipeline{runErr: fmt.Errorf("no data: %w", optimize.ErrEmptyPortfolio)}, `{"tickers":["AAPL","MSFT"]}`, http.StatusUnprocessableEntity},
		{"internal", &fakePipeline{runErr: errors.New("boom")}, `{"tickers":["AAPL","MSFT"]}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(testRouter(tt.p, nil), http.MethodPost, "/api/optimize", tt.body)
			assert.Equal(t, tt.code, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHealthAndMarket(t *testing.T) {
	r := testRouter(&fakePipeline{}, nil)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodOptions, "/api/optimize", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/market", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	p := &fakePipeline{}
	r = testRouter(p, nil)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/market?window=2y", "").Code)
	assert.Equal(t, finance.Years(2), p.gotLB)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/market?window=2x", "").Code)

	w = do(r, http.MethodGet, "/api/market", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, p.gotLB)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0.09, body["Rm"])
	assert.Equal(t, "^GSPC", body["marketSymbol"])
}

func TestWebhookRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := false
	r := NewRouter(Options{
		Webhook:  func(w http.ResponseWriter, _ *http.Request) { called = true; w.WriteHeader(http.StatusOK) },
		Pipeline: &fakePipeline{},
		Log:      zerolog.Nop(),
	})
	w := do(r, http.MethodPost, "/telegram/webhook", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

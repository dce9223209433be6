package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"capmOptimizerBot/internal/capm"
)

// PriceSource yields daily closes for a ticker over [start, end].
// Failures wrap capm.ErrDataUnavailable. An empty series is not an error.
type PriceSource interface {
	PriceSeries(ctx context.Context, ticker string, start, end time.Time) (capm.PriceSeries, error)
}

type Endpoint int

const (
	// EndpointChart is the v8 chart API, the primary source.
	EndpointChart Endpoint = iota
	// EndpointSpark is the v7 spark API, used as the fallback source.
	EndpointSpark
)

func (e Endpoint) String() string {
	if e == EndpointSpark {
		return "spark"
	}
	return "chart"
}

var defaultHosts = []string{"https://query1.finance.yahoo.com", "https://query2.finance.yahoo.com"}

var defaultBackoffs = []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

var errNotFound = errors.New("symbol not found")

// YahooSource fetches daily closes from one Yahoo endpoint, rotating hosts
// and backing off between rounds.
type YahooSource struct {
	Endpoint Endpoint
	Client   *http.Client
	Hosts    []string
	Backoffs []time.Duration
	log      zerolog.Logger
}

func NewYahooSource(endpoint Endpoint, log zerolog.Logger) *YahooSource {
	return &YahooSource{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 20 * time.Second},
		Hosts:    defaultHosts,
		Backoffs: defaultBackoffs,
		log:      log.With().Str("component", "yahoo").Str("endpoint", endpoint.String()).Logger(),
	}
}

func (y *YahooSource) PriceSeries(ctx context.Context, ticker string, start, end time.Time) (capm.PriceSeries, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return capm.PriceSeries{}, fmt.Errorf("empty ticker: %w", capm.ErrDataUnavailable)
	}
	if end.IsZero() {
		end = time.Now()
	}

	body, err := y.get(ctx, ticker, func(host string) string { return y.url(host, ticker, start, end) })
	if err != nil {
		return capm.PriceSeries{}, fmt.Errorf("%w: %s via %s: %v", capm.ErrDataUnavailable, ticker, y.Endpoint, err)
	}

	var s capm.PriceSeries
	if y.Endpoint == EndpointSpark {
		s, err = decodeSpark(ticker, body, start, end)
	} else {
		s, err = decodeChart(ticker, body, start, end)
	}
	if err != nil {
		return capm.PriceSeries{}, fmt.Errorf("%w: %s via %s: %v", capm.ErrDataUnavailable, ticker, y.Endpoint, err)
	}
	y.log.Debug().Str("ticker", ticker).Int("points", s.Len()).Msg("yahoo: fetched")
	return s, nil
}

func (y *YahooSource) url(host, ticker string, start, end time.Time) string {
	if y.Endpoint == EndpointSpark {
		return fmt.Sprintf("%s/v7/finance/spark?symbols=%s&range=%s&interval=1d",
			host, url.QueryEscape(ticker), rangeFor(start, end))
	}
	var period1 int64
	if !start.IsZero() {
		period1 = start.Unix()
	}
	return fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=div,splits",
		host, url.PathEscape(ticker), period1, end.Unix())
}

// get tries every host, then sleeps the next backoff and tries again.
// A 404 is final.
func (y *YahooSource) get(ctx context.Context, ticker string, buildURL func(host string) string) ([]byte, error) {
	client := y.Client
	if client == nil {
		client = http.DefaultClient
	}
	var lastErr error
	for attempt := 0; attempt < len(y.Backoffs)+1; attempt++ {
		for _, host := range y.Hosts {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildURL(host), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15")
			req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")
			req.Header.Set("Referer", fmt.Sprintf("https://finance.yahoo.com/quote/%s/history", ticker))

			resp, err := client.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				lastErr = err
				continue
			}
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read yahoo response: %w", readErr)
				continue
			}
			if resp.StatusCode == http.StatusNotFound {
				return nil, errNotFound
			}
			if resp.StatusCode == http.StatusTooManyRequests || strings.HasPrefix(string(body), "Edge: Too Many Requests") {
				lastErr = fmt.Errorf("yahoo %s returned 429: Edge: Too Many Requests", host)
				continue
			}
			if resp.StatusCode != http.StatusOK {
				lastErr = fmt.Errorf("yahoo %s returned %d: %s", host, resp.StatusCode, preview(body))
				continue
			}
			if strings.HasPrefix(string(body), "<") || strings.HasPrefix(string(body), "Edge:") {
				lastErr = fmt.Errorf("yahoo returned non-json body: %s", preview(body))
				continue
			}
			return body, nil
		}
		if attempt < len(y.Backoffs) {
			y.log.Debug().Err(lastErr).Str("ticker", ticker).Int("attempt", attempt+1).Msg("yahoo: retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(y.Backoffs[attempt]):
			}
		}
	}
	return nil, lastErr
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

func decodeChart(ticker string, body []byte, start, end time.Time) (capm.PriceSeries, error) {
	var yc yahooChartResp
	if err := json.Unmarshal(body, &yc); err != nil {
		return capm.PriceSeries{}, fmt.Errorf("failed to parse yahoo json: %v; body: %s", err, preview(body))
	}
	if yc.Chart.Error != nil {
		return capm.PriceSeries{}, fmt.Errorf("%s: %s", yc.Chart.Error.Code, yc.Chart.Error.Description)
	}
	if len(yc.Chart.Result) == 0 {
		return capm.PriceSeries{Ticker: ticker}, nil
	}
	r := yc.Chart.Result[0]
	loc := exchangeLocation(r.Meta.Timezone, r.Meta.GmtOffset)
	var closes []float64
	if len(r.Indicators.AdjClose) > 0 && len(r.Indicators.AdjClose[0].AdjClose) > 0 {
		closes = r.Indicators.AdjClose[0].AdjClose
	} else if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}
	return toSeries(ticker, r.Timestamp, closes, loc, start, end), nil
}

func decodeSpark(ticker string, body []byte, start, end time.Time) (capm.PriceSeries, error) {
	var sp yahooSparkResp
	if err := json.Unmarshal(body, &sp); err != nil {
		return capm.PriceSeries{}, fmt.Errorf("failed to parse yahoo spark json: %v", err)
	}
	if sp.Spark.Error != nil {
		return capm.PriceSeries{}, fmt.Errorf("%s: %s", sp.Spark.Error.Code, sp.Spark.Error.Description)
	}
	for _, res := range sp.Spark.Result {
		if !strings.EqualFold(res.Symbol, ticker) || len(res.Response) == 0 {
			continue
		}
		r := res.Response[0]
		if len(r.Indicators.Quote) == 0 {
			break
		}
		loc := exchangeLocation(r.Meta.Timezone, r.Meta.GmtOffset)
		return toSeries(ticker, r.Timestamp, r.Indicators.Quote[0].Close, loc, start, end), nil
	}
	return capm.PriceSeries{Ticker: ticker}, nil
}

// rangeFor picks the smallest spark range covering [start, end].
func rangeFor(start, end time.Time) string {
	if start.IsZero() {
		return "max"
	}
	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	switch {
	case days <= 5:
		return "5d"
	case days <= 31:
		return "1mo"
	case days <= 92:
		return "3mo"
	case days <= 183:
		return "6mo"
	case days <= 366:
		return "1y"
	case days <= 731:
		return "2y"
	case days <= 1827:
		return "5y"
	case days <= 3653:
		return "10y"
	}
	return "max"
}

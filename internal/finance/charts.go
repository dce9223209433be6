package finance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/vicanso/go-charts/v2"

	"capmOptimizerBot/internal/capm"
)

const movingAverageDays = 20

// movingAverage is the trailing simple average; the first n-1 points have
// no value and are omitted.
func movingAverage(values []float64, n int) []float64 {
	if n <= 0 || len(values) < n {
		return nil
	}
	out := make([]float64, 0, len(values)-n+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out = append(out, sum/float64(n))
		}
	}
	return out
}

func paddedRange(series ...[]float64) (float64, float64) {
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			yMin = math.Min(yMin, v)
			yMax = math.Max(yMax, v)
		}
	}
	pad := (yMax - yMin) * 0.05
	if pad < yMax*0.002 {
		pad = yMax * 0.002
	}
	yMin -= pad
	if yMin < 0 {
		yMin = 0
	}
	return yMin, yMax + pad
}

// MakePriceChart draws closes with their 20-day moving average.
func MakePriceChart(s capm.PriceSeries) ([]byte, error) {
	c := s.Clean()
	if c.Len() < movingAverageDays+1 {
		return nil, errors.New("not enough data points")
	}
	cacheKey := fmt.Sprintf("price|%s|%s|%d", strings.ToUpper(s.Ticker), c.Dates[c.Len()-1].Format("2006-01-02"), c.Len())
	if img, ok := cacheGet(cacheKey); ok {
		return img, nil
	}

	ma := movingAverage(c.Prices, movingAverageDays)
	prices := c.Prices[movingAverageDays-1:]
	dates := c.Dates[movingAverageDays-1:]
	xLabels := make([]string, len(dates))
	for i, d := range dates {
		xLabels[i] = d.Format("Jan '06")
	}
	yMin, yMax := paddedRange(prices, ma)
	names := []string{strings.ToUpper(s.Ticker), fmt.Sprintf("MA%d", movingAverageDays)}

	seriesList := charts.NewSeriesListDataFromValues([][]float64{prices, ma}, charts.ChartTypeLine)
	painter, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc(strings.ToUpper(s.Ticker)+" • 1D • close", fmt.Sprintf("%d-day moving average", movingAverageDays)),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: xLabels, BoundaryGap: charts.FalseFlag(), SplitNumber: 6}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	img, err := painter.Bytes()
	if err != nil {
		return nil, err
	}
	cacheSet(cacheKey, img)
	return img, nil
}

// MakeWeightsChart renders an allocation as a pie, or as bars when it
// holds short positions.
func MakeWeightsChart(tickers []string, weights []float64, title string) ([]byte, error) {
	if len(tickers) == 0 || len(tickers) != len(weights) {
		return nil, errors.New("tickers and weights length mismatch")
	}
	short := false
	for _, w := range weights {
		if w < 0 {
			short = true
		}
	}

	if short {
		painter, err := charts.BarRender([][]float64{weights},
			charts.TitleTextOptionFunc(title),
			charts.XAxisOptionFunc(charts.XAxisOption{Data: tickers}),
			charts.ThemeOptionFunc(charts.ThemeLight),
			charts.WidthOptionFunc(800),
			charts.HeightOptionFunc(600),
		)
		if err != nil {
			return nil, err
		}
		return painter.Bytes()
	}

	var values []float64
	var labels []string
	for i, t := range tickers {
		if weights[i] <= 0 {
			continue
		}
		values = append(values, weights[i])
		labels = append(labels, fmt.Sprintf("%s (%.1f%%)", t, weights[i]*100))
	}
	if len(values) == 0 {
		return nil, errors.New("no positive weights")
	}
	painter, err := charts.PieRender(values,
		charts.TitleTextOptionFunc(title),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: labels,
			Top:  charts.PositionBottom,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(800),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}

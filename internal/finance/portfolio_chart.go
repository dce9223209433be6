package finance

import (
	"fmt"

	"github.com/vicanso/go-charts/v2"
)

// MakeGrowthChart plots 100 invested in the optimized and the equal-weight
// portfolio over the joined history.
func MakeGrowthChart(r *Result) ([]byte, error) {
	cacheKey := "growth-" + r.ID
	if img, found := cacheGet(cacheKey); found {
		return img, nil
	}

	optimized, baseline, err := Backtest(r)
	if err != nil {
		return nil, fmt.Errorf("failed to replay portfolio: %w", err)
	}
	optStats, err := calculatePortfolioStats(optimized)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate stats: %w", err)
	}
	baseStats, err := calculatePortfolioStats(baseline)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate stats: %w", err)
	}

	var xLabels []string
	for _, ts := range optimized.Timestamps {
		if len(optimized.Timestamps) <= 60 {
			xLabels = append(xLabels, ts.Format("Jan 02"))
		} else {
			xLabels = append(xLabels, ts.Format("Jan '06"))
		}
	}
	yMin, yMax := paddedRange(optimized.Values, baseline.Values)

	splitNum := 6
	if len(xLabels) <= 30 {
		splitNum = len(xLabels) / 3
		if splitNum < 3 {
			splitNum = 3
		}
	}

	title := fmt.Sprintf("Optimized (%s) vs equal weight", r.Mode)
	subtitle := fmt.Sprintf("Return: %.2f%% vs %.2f%% | MaxDD: %.2f%% vs %.2f%%",
		optStats.TotalReturn*100, baseStats.TotalReturn*100, optStats.MaxDrawdown*100, baseStats.MaxDrawdown*100)

	seriesList := charts.NewSeriesListDataFromValues([][]float64{optimized.Values, baseline.Values}, charts.ChartTypeLine)
	p, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc(title, subtitle),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{Data: []string{"Optimized", "Equal weight"}}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	cacheSet(cacheKey, buf)
	return buf, nil
}

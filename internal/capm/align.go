package capm

import "time"

// AlignedReturns pairs a stock's daily returns with the market's on the
// dates both series traded.
type AlignedReturns struct {
	Dates  []time.Time
	Stock  []float64
	Market []float64
}

func (a AlignedReturns) Len() int { return len(a.Dates) }

// StockSeries returns the stock leg as a standalone ReturnSeries.
func (a AlignedReturns) StockSeries(ticker string) ReturnSeries {
	return ReturnSeries{Ticker: ticker, Dates: a.Dates, Returns: a.Stock}
}

// Align converts both price series to daily returns and keeps the dates
// present in both. An empty result is valid.
func Align(stock, market PriceSeries) AlignedReturns {
	sr := Returns(stock)
	mr := Returns(market)

	mIdx := make(map[time.Time]int, mr.Len())
	for i, d := range mr.Dates {
		mIdx[d] = i
	}

	var out AlignedReturns
	for i, d := range sr.Dates {
		j, ok := mIdx[d]
		if !ok {
			continue
		}
		out.Dates = append(out.Dates, d)
		out.Stock = append(out.Stock, sr.Returns[i])
		out.Market = append(out.Market, mr.Returns[j])
	}
	return out
}

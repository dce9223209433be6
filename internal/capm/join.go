package capm

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// JoinReturns inner-joins return series on the dates common to all of them.
// The matrix has one row per common date and one column per series, in
// argument order. It is nil when no date is shared.
func JoinReturns(series ...ReturnSeries) ([]time.Time, *mat.Dense) {
	if len(series) == 0 {
		return nil, nil
	}
	counts := make(map[time.Time]int)
	for _, s := range series {
		seen := make(map[time.Time]bool, s.Len())
		for _, d := range s.Dates {
			if !seen[d] {
				seen[d] = true
				counts[d]++
			}
		}
	}
	var dates []time.Time
	for d, c := range counts {
		if c == len(series) {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, nil
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	row := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		row[d] = i
	}

	m := mat.NewDense(len(dates), len(series), nil)
	for j, s := range series {
		for i, d := range s.Dates {
			if r, ok := row[d]; ok {
				m.Set(r, j, s.Returns[i])
			}
		}
	}
	return dates, m
}

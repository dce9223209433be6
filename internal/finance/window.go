package finance

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Lookback is a history window such as 90d, 12w, 6m or 5y.
type Lookback struct {
	N    int
	Unit byte // 'd', 'w', 'm' or 'y'
}

var DefaultLookback = Lookback{N: 5, Unit: 'y'}

func Years(n int) Lookback { return Lookback{N: n, Unit: 'y'} }

func (l Lookback) String() string { return fmt.Sprintf("%d%c", l.N, l.Unit) }

// Start is the first instant of the window ending at end.
func (l Lookback) Start(end time.Time) time.Time {
	switch l.Unit {
	case 'd':
		return end.AddDate(0, 0, -l.N)
	case 'w':
		return end.AddDate(0, 0, -7*l.N)
	case 'm':
		return end.AddDate(0, -l.N, 0)
	}
	return end.AddDate(-l.N, 0, 0)
}

// ParseLookback parses window strings like "5y" or "18m"; empty means the default.
func ParseLookback(window string) (Lookback, error) {
	window = strings.ToLower(strings.TrimSpace(window))
	if window == "" {
		return DefaultLookback, nil
	}
	unit := window[len(window)-1]
	switch unit {
	case 'd', 'w', 'm', 'y':
	default:
		return Lookback{}, fmt.Errorf("invalid window format: %s (use format like 90d, 12w, 6m, 5y)", window)
	}
	n, err := strconv.Atoi(window[:len(window)-1])
	if err != nil || n <= 0 {
		return Lookback{}, fmt.Errorf("invalid window format: %s (use format like 90d, 12w, 6m, 5y)", window)
	}
	if unit == 'y' && n > 30 {
		return Lookback{}, fmt.Errorf("window %s too long (max 30y)", window)
	}
	return Lookback{N: n, Unit: unit}, nil
}

// isLookback reports whether s looks like a window token.
func isLookback(s string) bool {
	_, err := ParseLookback(s)
	return err == nil && strings.TrimSpace(s) != ""
}

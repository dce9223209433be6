package finance

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"capmOptimizerBot/internal/optimize"
)

const maxTickers = 20

var reTicker = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]{0,14}$`)

// ParseOptimizeCommand parses an optimize command string.
// Format: /optimize AAPL MSFT NVDA [max_sharpe|min_variance|target_return] [0.12|12%] [5y] [short]
// Tokens other than tickers may appear in any order.
func ParseOptimizeCommand(input string) (Request, error) {
	return ParseOptimizeCommandDefaults(input, DefaultLookback, false)
}

// ParseOptimizeCommandDefaults is ParseOptimizeCommand with the window and
// short flag used when the command does not name them.
func ParseOptimizeCommandDefaults(input string, lookback Lookback, allowShort bool) (Request, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "/") {
		if i := strings.IndexAny(input, " \t\n"); i >= 0 {
			input = input[i:]
		} else {
			input = ""
		}
	}

	req := Request{Mode: optimize.MaxSharpe, TargetReturn: math.NaN(), Lookback: lookback, AllowShort: allowShort}
	var raw []string
	modeSet := false
	for _, tok := range strings.Fields(input) {
		lower := strings.ToLower(tok)
		switch {
		case lower == "short" || lower == "shorts" || lower == "allow_short":
			req.AllowShort = true
		case lower == "long" || lower == "long_only":
			req.AllowShort = false
		case isModeToken(lower):
			req.Mode, _ = optimize.ParseMode(lower)
			modeSet = true
		case isLookback(lower):
			req.Lookback, _ = ParseLookback(lower)
		case isNumber(lower):
			t, err := ParseTarget(lower)
			if err != nil {
				return Request{}, err
			}
			req.TargetReturn = t
		default:
			raw = append(raw, tok)
		}
	}

	tickers, err := NormalizeTickers(raw)
	if err != nil {
		return Request{}, err
	}
	req.Tickers = tickers
	// a bare target implies target_return
	if !math.IsNaN(req.TargetReturn) && !modeSet {
		req.Mode = optimize.TargetReturn
	}
	return req, nil
}

// NormalizeTickers uppercases, validates and dedupes symbols, keeping the
// first occurrence of each.
func NormalizeTickers(raw []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range raw {
		sym := strings.ToUpper(strings.TrimSpace(tok))
		if sym == "" {
			continue
		}
		if !reTicker.MatchString(sym) {
			return nil, fmt.Errorf("invalid ticker %q", tok)
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tickers given")
	}
	if len(out) > maxTickers {
		return nil, fmt.Errorf("too many tickers: %d (max %d)", len(out), maxTickers)
	}
	return out, nil
}

// ParseTarget reads an annual return as a decimal ("0.12") or percent ("12%").
func ParseTarget(s string) (float64, error) {
	s = strings.TrimSpace(s)
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), fmt.Errorf("invalid target return %q", s)
	}
	if pct {
		v /= 100
	}
	return v, nil
}

func isModeToken(s string) bool {
	if s == "" {
		return false
	}
	_, err := optimize.ParseMode(s)
	return err == nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	return err == nil
}

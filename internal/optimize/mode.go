package optimize

import (
	"fmt"
	"strings"
)

type Mode int

const (
	MaxSharpe Mode = iota
	MinVariance
	TargetReturn
)

func (m Mode) String() string {
	switch m {
	case MaxSharpe:
		return "max_sharpe"
	case MinVariance:
		return "min_variance"
	case TargetReturn:
		return "target_return"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the wire names plus a few short forms ("sharpe", "minvar", "target").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "max_sharpe", "maxsharpe", "sharpe", "":
		return MaxSharpe, nil
	case "min_variance", "minvariance", "min_var", "minvar":
		return MinVariance, nil
	case "target_return", "targetreturn", "target":
		return TargetReturn, nil
	}
	return MaxSharpe, fmt.Errorf("%q: %w", s, ErrUnknownMode)
}

// Method names an optimizer strategy.
type Method string

const (
	MethodSQP       Method = "sqp"
	MethodHeuristic Method = "heuristic"
)

func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqp", "slsqp", "solver", "":
		return MethodSQP, nil
	case "heuristic", "closed_form":
		return MethodHeuristic, nil
	}
	return MethodSQP, fmt.Errorf("%q: %w", s, ErrUnknownMethod)
}

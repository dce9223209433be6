package capm

import "errors"

var (
	// ErrDataUnavailable is returned by price sources for unknown tickers or
	// an unreachable provider.
	ErrDataUnavailable = errors.New("price data unavailable")
	// ErrInsufficientOverlap means fewer than two aligned observations.
	ErrInsufficientOverlap = errors.New("insufficient overlapping observations")
	ErrDegenerateInput     = errors.New("degenerate input")
)

package optimize

import "errors"

var (
	// ErrEmptyPortfolio is the one hard failure: nothing left to allocate.
	ErrEmptyPortfolio = errors.New("empty portfolio")
	// ErrSolverNonConvergence is attached to a Solution whose weights fell
	// back to the equal-weight start. Optimize never returns it.
	ErrSolverNonConvergence = errors.New("solver did not converge")
	ErrDegenerateInput      = errors.New("degenerate input")
	ErrDimension            = errors.New("dimension mismatch")
	ErrUnknownMode          = errors.New("unknown optimization mode")
	ErrUnknownMethod        = errors.New("unknown solver method")
)

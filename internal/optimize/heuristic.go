package optimize

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

const minDiag = 1e-12

// Heuristic allocates in closed form from the covariance diagonal.
// The TargetReturn rule does not enforce the target; its solutions are
// flagged as not converged. With shorting allowed, MaxSharpe scores of
// opposite sign can nearly cancel and blow the weights up; when any weight
// leaves [-1, 1] the long-only scores are used instead.
type Heuristic struct {
	log zerolog.Logger
}

func (h *Heuristic) Method() Method { return MethodHeuristic }

func (h *Heuristic) Optimize(p Problem) (Solution, error) {
	if err := p.validate(); err != nil {
		return Solution{}, err
	}
	if p.n() == 1 {
		return single(MethodHeuristic), nil
	}

	sol := Solution{Method: MethodHeuristic, Converged: true}
	switch p.Mode {
	case MaxSharpe:
		sol.Weights = h.maxSharpe(p)
	case MinVariance:
		sol.Weights = h.minVariance(p)
	case TargetReturn:
		sol.Weights = h.targetReturn(p)
		sol.Converged = false
		sol.Err = fmt.Errorf("target %.4f not enforced by heuristic: %w", p.TargetReturn, ErrSolverNonConvergence)
	default:
		return Solution{}, fmt.Errorf("%v: %w", p.Mode, ErrUnknownMode)
	}
	return sol, nil
}

func diag(p Problem, i int) float64 {
	return math.Max(p.Cov.At(i, i), minDiag)
}

func (h *Heuristic) maxSharpe(p Problem) []float64 {
	if p.AllowShort {
		if w, ok := sharpeScores(p, true); ok && inBox(w, -1, 1) {
			return w
		}
		h.log.Debug().Msg("heuristic: short scores out of bounds, long only")
	}
	w, ok := sharpeScores(p, false)
	if !ok {
		h.log.Debug().Msg("heuristic: no positive excess return, equal weights")
		return EqualWeights(p.n())
	}
	return w
}

// sharpeScores normalizes (mu-rf)/sigma per asset. It reports false when the
// scores sum to zero.
func sharpeScores(p Problem, short bool) ([]float64, bool) {
	scores := make([]float64, p.n())
	var sum float64
	for i, m := range p.Mu {
		s := (m - p.RiskFree) / math.Sqrt(diag(p, i))
		if !short && s < 0 {
			s = 0
		}
		scores[i] = s
		sum += s
	}
	if sum == 0 {
		return nil, false
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores, true
}

func inBox(w []float64, lo, hi float64) bool {
	for _, x := range w {
		if x < lo || x > hi || math.IsNaN(x) {
			return false
		}
	}
	return true
}

func (h *Heuristic) minVariance(p Problem) []float64 {
	w := make([]float64, p.n())
	var sum float64
	for i := range w {
		w[i] = 1 / diag(p, i)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

func (h *Heuristic) targetReturn(p Problem) []float64 {
	w := make([]float64, p.n())
	var sum float64
	for i, m := range p.Mu {
		w[i] = math.Max(m, 0)
		sum += w[i]
	}
	if sum == 0 {
		return EqualWeights(p.n())
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

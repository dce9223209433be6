package optimize

import "math"

// EqualWeights returns 1/n for each of n assets.
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// Normalize rescales w to sum to one. Negative entries are clipped first
// unless shorting is allowed. A zero or non-finite total yields equal
// weights. Normalize is idempotent.
func Normalize(w []float64, allowShort bool) []float64 {
	out := make([]float64, len(w))
	var sum float64
	for i, x := range w {
		if !allowShort && x < 0 {
			x = 0
		}
		out[i] = x
		sum += x
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return EqualWeights(len(w))
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

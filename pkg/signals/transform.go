package signals

import "math"

// Transform maps a raw signal value onto a [0,1] sub-score. Transforms are
// monotonic and saturate, so a single outlier cannot dominate a composite.
type Transform func(v float64) float64

// Saturating scales v logarithmically so that ceiling and above map to 1.
// Negative values map to 0.
func Saturating(ceiling float64) Transform {
	denom := math.Log1p(ceiling)
	return func(v float64) float64 {
		if v <= 0 || math.IsNaN(v) {
			return 0
		}
		return clamp(math.Log1p(v)/denom, 0, 1)
	}
}

// Linear maps [lo, hi] onto [0,1], clamping outside the range.
func Linear(lo, hi float64) Transform {
	return func(v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return clamp((v-lo)/(hi-lo), 0, 1)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// StoufferCombine combines one-sided p-values by Stouffer's weighted Z
// method. Weights may be nil for equal weighting. p-values are clamped away
// from 0 and 1 so the normal quantile stays finite.
func StoufferCombine(pvals, weights []float64) float64 {
	if len(pvals) == 0 {
		return 1
	}
	const eps = 1e-15

	var num, sumSq float64
	for i, p := range pvals {
		if p < eps {
			p = eps
		} else if p > 1-eps {
			p = 1 - eps
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		z := distuv.UnitNormal.Quantile(1 - p)
		num += w * z
		sumSq += w * w
	}
	if sumSq == 0 {
		return 1
	}
	return distuv.UnitNormal.Survival(num / math.Sqrt(sumSq))
}

// GaussianKernel returns exp(-d^2 / (2h^2)) for distance d and bandwidth h.
func GaussianKernel(d, h float64) float64 {
	if h <= 0 {
		return 1
	}
	return math.Exp(-d * d / (2 * h * h))
}

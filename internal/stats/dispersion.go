package stats

import (
	"math"
	"sort"
)

// Dispersions holds the three-stage dispersion estimate used by the
// expression engine: a single common value, an abundance-trended value per
// gene, and a per-gene value shrunk toward the trend.
type Dispersions struct {
	Common  float64
	Trended []float64
	Tagwise []float64
}

// trendWindow is the number of abundance-neighbouring genes pooled for the
// trended estimate.
const trendWindow = 101

// shrinkWeight is the weight given to the trend when moderating the raw
// per-gene estimate.
const shrinkWeight = 0.75

// EstimateDispersions computes moment-based negative-binomial dispersion
// estimates from counts (genes × samples) and effective library sizes.
// Raw per-gene estimates use the quadratic mean-variance relation
// var = mu + phi*mu^2 on library-size-scaled counts; the common estimate is
// their median, the trend a running median over abundance, and the tagwise
// estimate a convex shrink of raw toward trend.
func EstimateDispersions(counts [][]float64, effLib []float64) Dispersions {
	nGenes := len(counts)
	nSamples := len(effLib)
	d := Dispersions{
		Trended: make([]float64, nGenes),
		Tagwise: make([]float64, nGenes),
	}
	if nGenes == 0 || nSamples < 2 {
		return d
	}

	meanLib := 0.0
	for _, l := range effLib {
		meanLib += l
	}
	meanLib /= float64(nSamples)

	raw := make([]float64, nGenes)
	abundance := make([]float64, nGenes)
	for g, row := range counts {
		var mean float64
		scaled := make([]float64, nSamples)
		for s, c := range row {
			scaled[s] = c * meanLib / effLib[s]
			mean += scaled[s]
		}
		mean /= float64(nSamples)

		var variance float64
		for _, v := range scaled {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(nSamples - 1)

		abundance[g] = math.Log2(mean + 0.5)
		if mean > 0 {
			raw[g] = math.Max(0, (variance-mean)/(mean*mean))
		}
	}

	d.Common = median(append([]float64(nil), raw...))

	// Trended: running median over genes ordered by abundance.
	order := make([]int, nGenes)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return abundance[order[i]] < abundance[order[j]] })

	half := trendWindow / 2
	window := make([]float64, 0, trendWindow)
	for pos, g := range order {
		lo := pos - half
		if lo < 0 {
			lo = 0
		}
		hi := pos + half + 1
		if hi > nGenes {
			hi = nGenes
		}
		window = window[:0]
		for _, gg := range order[lo:hi] {
			window = append(window, raw[gg])
		}
		d.Trended[g] = median(window)
	}

	for g := range raw {
		d.Tagwise[g] = shrinkWeight*d.Trended[g] + (1-shrinkWeight)*raw[g]
	}
	return d
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return QuantileR7(v, 0.5)
}

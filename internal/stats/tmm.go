package stats

import (
	"fmt"
	"math"
)

// TMM trimming defaults, following Robinson & Oshlack (2010).
const (
	tmmLogRatioTrim  = 0.3
	tmmAbundanceTrim = 0.05
)

// TMMFactors returns per-sample scaling factors for the columns of counts
// (samples × genes is not expected; counts is genes-major: counts[g][s]).
// Factors multiply the raw library sizes to give effective library sizes.
// The reference sample is the one whose upper quartile is closest to the
// mean upper quartile.
func TMMFactors(counts [][]float64, libSizes []float64) ([]float64, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("tmm: empty count matrix")
	}
	nSamples := len(libSizes)
	for g, row := range counts {
		if len(row) != nSamples {
			return nil, fmt.Errorf("tmm: gene row %d has %d samples, want %d", g, len(row), nSamples)
		}
	}
	if nSamples == 1 {
		return []float64{1}, nil
	}

	ref := tmmReference(counts, libSizes)

	f := make([]float64, nSamples)
	for s := range f {
		f[s] = tmmFactor(counts, libSizes, s, ref)
	}

	// Scale so the factors multiply to one.
	var meanLog float64
	for _, v := range f {
		meanLog += math.Log(v)
	}
	meanLog = math.Exp(meanLog / float64(nSamples))
	for i := range f {
		f[i] /= meanLog
	}
	return f, nil
}

// tmmReference picks the sample whose 75th percentile of CPM is closest to
// the mean across samples.
func tmmReference(counts [][]float64, libSizes []float64) int {
	n := len(libSizes)
	q75 := make([]float64, n)
	col := make([]float64, 0, len(counts))
	for s := 0; s < n; s++ {
		col = col[:0]
		for g := range counts {
			if counts[g][s] > 0 {
				col = append(col, counts[g][s]/libSizes[s])
			}
		}
		if len(col) == 0 {
			continue
		}
		q75[s] = QuantileR7(col, 0.75)
	}

	var mean float64
	for _, v := range q75 {
		mean += v
	}
	mean /= float64(n)

	ref := 0
	best := math.Abs(q75[0] - mean)
	for s := 1; s < n; s++ {
		if d := math.Abs(q75[s] - mean); d < best {
			best = d
			ref = s
		}
	}
	return ref
}

// tmmFactor computes the trimmed mean of M-values of sample s against ref,
// weighted by asymptotic (delta-method) variances.
func tmmFactor(counts [][]float64, libSizes []float64, s, ref int) float64 {
	if s == ref {
		return 1
	}

	var logRatio, absIntensity, weight []float64
	for g := range counts {
		obs, refv := counts[g][s], counts[g][ref]
		if obs == 0 || refv == 0 {
			continue
		}
		po, pr := obs/libSizes[s], refv/libSizes[ref]
		m := math.Log2(po / pr)
		a := math.Log2(po*pr) / 2
		if math.IsInf(m, 0) || math.IsNaN(m) || math.IsInf(a, 0) {
			continue
		}
		logRatio = append(logRatio, m)
		absIntensity = append(absIntensity, a)
		weight = append(weight, (libSizes[s]-obs)/(libSizes[s]*obs)+(libSizes[ref]-refv)/(libSizes[ref]*refv))
	}
	if len(logRatio) == 0 {
		return 1
	}

	n := float64(len(logRatio))
	loM := math.Floor(n*tmmLogRatioTrim) + 1
	hiM := n + 1 - loM
	loA := math.Floor(n*tmmAbundanceTrim) + 1
	hiA := n + 1 - loA

	rM := rank(logRatio)
	rA := rank(absIntensity)

	var num, den float64
	for i := range logRatio {
		// rank() is zero-based; the trim bounds are one-based.
		if rM[i]+1 < loM || rM[i]+1 > hiM || rA[i]+1 < loA || rA[i]+1 > hiA {
			continue
		}
		num += logRatio[i] / weight[i]
		den += 1 / weight[i]
	}
	if den == 0 {
		return 1
	}
	return math.Pow(2, num/den)
}

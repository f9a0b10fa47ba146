// Package stats holds the delegated numerics shared by both pipelines:
// library-size normalization, quantile normalization, least-squares model
// fitting with likelihood-ratio tests, multiple-testing correction, and
// p-value combination. Model fitting and tail probabilities are delegated
// to gonum.
package stats

import "sort"

// BenjaminiHochberg returns FDR-adjusted p-values using the step-up
// procedure. Adjusted values are clamped to [0, 1] and are monotone
// non-decreasing when inputs are sorted by raw p-value.
func BenjaminiHochberg(pvals []float64) []float64 {
	n := len(pvals)
	if n == 0 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return pvals[idx[i]] < pvals[idx[j]]
	})

	fdr := make([]float64, n)
	minP := 1.0
	for i := n - 1; i >= 0; i-- {
		orig := idx[i]
		adjusted := pvals[orig] * float64(n) / float64(i+1)
		if adjusted > 1 {
			adjusted = 1
		}
		if adjusted < minP {
			minP = adjusted
		} else {
			adjusted = minP
		}
		fdr[orig] = adjusted
	}

	return fdr
}

package stats

import (
	"fmt"
	"sort"
)

// rank returns sample ranks for v, ties resolved as the mean rank of
// coequal values. Ranks are zero-based.
func rank(v []float64) []float64 {
	n := len(v)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return v[idx[i]] < v[idx[j]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j < n && v[idx[j]] == v[idx[i]] {
			j++
		}
		mean := float64(i+j-1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = mean
		}
		i = j
	}
	return ranks
}

// NormalizeQuantiles maps every column of cols onto the mean empirical
// distribution across columns, in place. Columns must have equal length.
// Ties within a column receive the mean of the reference values they span.
func NormalizeQuantiles(cols [][]float64) error {
	if len(cols) == 0 {
		return nil
	}
	n := len(cols[0])
	for i, c := range cols {
		if len(c) != n {
			return fmt.Errorf("quantile normalization: column %d has %d values, want %d", i, len(c), n)
		}
	}
	if n == 0 || len(cols) == 1 {
		return nil
	}

	// Reference distribution: mean of the k-th order statistics.
	ref := make([]float64, n)
	sorted := make([]float64, n)
	for _, c := range cols {
		copy(sorted, c)
		sort.Float64s(sorted)
		for k, v := range sorted {
			ref[k] += v
		}
	}
	for k := range ref {
		ref[k] /= float64(len(cols))
	}

	for _, c := range cols {
		r := rank(c)
		for i := range c {
			lo := int(r[i])
			hi := lo
			if r[i] != float64(lo) {
				hi = lo + 1
			}
			c[i] = (ref[lo] + ref[hi]) / 2
		}
	}
	return nil
}

// QuantileR7 returns the p-th quantile of v using the R-7 estimator.
// v is sorted in place.
func QuantileR7(v []float64, p float64) float64 {
	sort.Float64s(v)
	if p >= 1 || len(v) == 1 {
		return v[len(v)-1]
	}
	h := float64(len(v)-1) * p
	i := int(h)
	return v[i] + (h-float64(i))*(v[i+1]-v[i])
}

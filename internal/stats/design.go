package stats

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Design pairs a full model matrix with its reduced counterpart. The tested
// coefficient is always the last column of Full; Reduced drops it. Rows are
// samples in the order the covariate slices were given.
type Design struct {
	Full    *mat.Dense
	Reduced *mat.Dense
	// TestLevels records the two factor levels being contrasted, in
	// (reference, tested) order.
	TestLevels [2]string
	// TestIdx marks which samples carry the tested level.
	TestIdx []bool
}

// DF returns the degrees of freedom of the likelihood-ratio test, which is
// always one: a single tested coefficient.
func (d *Design) DF() int { return 1 }

// Residual returns the residual degrees of freedom of the full model.
func (d *Design) Residual() int {
	r, c := d.Full.Dims()
	return r - c
}

// PairedDesign builds a blocked two-level design: intercept, one indicator
// per non-reference block level, and a final indicator for the tested
// condition. The tested covariate must have exactly two levels; the
// lexicographically smaller level is the reference. The contrast argument,
// when non-empty, names the level to be tested ("tested-vs-rest" of a
// two-level factor), overriding the lexicographic choice.
func PairedDesign(block, tested []string, contrast string) (*Design, error) {
	n := len(tested)
	if n == 0 {
		return nil, fmt.Errorf("design: no samples")
	}
	if len(block) != n {
		return nil, fmt.Errorf("design: blocking covariate has %d values, want %d", len(block), n)
	}

	levels := uniqueSorted(tested)
	if len(levels) != 2 {
		return nil, fmt.Errorf("design: tested covariate has %d levels %v, want exactly 2", len(levels), levels)
	}
	refLevel, testLevel := levels[0], levels[1]
	if contrast != "" {
		switch contrast {
		case testLevel:
			// Already the tested level.
		case refLevel:
			refLevel, testLevel = testLevel, refLevel
		default:
			return nil, fmt.Errorf("design: contrast level %q not among %v", contrast, levels)
		}
	}

	blocks := uniqueSorted(block)
	nCoef := 1 + (len(blocks) - 1) + 1
	if n <= nCoef {
		return nil, fmt.Errorf("design: %d samples cannot support %d coefficients", n, nCoef)
	}

	blockIdx := make(map[string]int, len(blocks))
	for i, b := range blocks {
		blockIdx[b] = i
	}

	full := mat.NewDense(n, nCoef, nil)
	reduced := mat.NewDense(n, nCoef-1, nil)
	testIdx := make([]bool, n)
	for i := 0; i < n; i++ {
		full.Set(i, 0, 1)
		reduced.Set(i, 0, 1)
		if j := blockIdx[block[i]]; j > 0 {
			full.Set(i, j, 1)
			reduced.Set(i, j, 1)
		}
		if tested[i] == testLevel {
			full.Set(i, nCoef-1, 1)
			testIdx[i] = true
		}
	}

	return &Design{
		Full:       full,
		Reduced:    reduced,
		TestLevels: [2]string{refLevel, testLevel},
		TestIdx:    testIdx,
	}, nil
}

func uniqueSorted(v []string) []string {
	seen := make(map[string]bool, len(v))
	var out []string
	for _, s := range v {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Package expr implements the differential-expression pipeline: expression
// filtering and the paired generalized-linear-model engine.
package expr

import (
	"github.com/ebareke/cedernaes2018-analysis/internal/annot"
	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
)

// FilterParams controls expression-level gene filtering.
type FilterParams struct {
	// MinCPM is the counts-per-million a sample must exceed to count as
	// expressing the gene.
	MinCPM float64
	// MinSamples is how many samples must exceed MinCPM for the gene to
	// be retained.
	MinSamples int
}

// DefaultFilterParams mirror the study thresholds.
func DefaultFilterParams() FilterParams {
	return FilterParams{MinCPM: 1, MinSamples: 5}
}

// FilterByExpression retains genes whose CPM exceeds p.MinCPM in at least
// p.MinSamples samples. Filtering is monotonic in both thresholds: raising
// either can only shrink the retained set. A filtered gene never re-enters
// later stages.
func FilterByExpression(m *dataset.CountMatrix, p FilterParams) *dataset.CountMatrix {
	cpm := m.CPM(m.LibrarySizes())
	keep := make(map[string]bool)
	for i, g := range m.Genes {
		n := 0
		for _, v := range cpm[i] {
			if v > p.MinCPM {
				n++
			}
		}
		if n >= p.MinSamples {
			keep[g] = true
		}
	}
	return m.SubsetGenes(keep)
}

// FilterProteinCoding restricts the matrix to genes annotated as
// protein-coding. Genes missing from the annotation are dropped with them.
func FilterProteinCoding(m *dataset.CountMatrix, table *annot.Table) *dataset.CountMatrix {
	keep := make(map[string]bool)
	for _, g := range m.Genes {
		if table.ProteinCoding(g) {
			keep[g] = true
		}
	}
	return m.SubsetGenes(keep)
}

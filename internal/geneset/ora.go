package geneset

import (
	"sort"

	fet "github.com/glycerine/golang-fisher-exact"

	"github.com/ebareke/cedernaes2018-analysis/internal/stats"
)

// ORAParams controls Fisher overrepresentation testing.
type ORAParams struct {
	// MaxP is the raw Fisher p ceiling for reported sets.
	MaxP float64
	// MinGenes is the minimum hit-set overlap for a set to be tested.
	MinGenes int
}

// DefaultORAParams mirror the study thresholds.
func DefaultORAParams() ORAParams { return ORAParams{MaxP: 0.01, MinGenes: 3} }

// ORAResult is the overrepresentation outcome for one gene set.
type ORAResult struct {
	Set        string
	Overlap    int
	SetSize    int // set members inside the background
	Background int
	PValue     float64
	FDR        float64
	Genes      []string // overlapping genes, sorted
}

// Overrepresentation runs a one-sided Fisher's exact test per set against
// the restricted background (only genes the assay could ever have detected,
// never the whole genome). Hits outside the background are ignored. Sets
// overlapping fewer than p.MinGenes hits are skipped. An empty hit list
// yields an empty, valid result.
func Overrepresentation(hits, background map[string]bool, coll *Collection, p ORAParams) []ORAResult {
	nBackground := len(background)
	nHits := 0
	for g := range hits {
		if background[g] {
			nHits++
		}
	}
	if nHits == 0 || nBackground == 0 {
		return []ORAResult{}
	}

	var tested []ORAResult
	var pvals []float64
	for _, set := range coll.SetNames() {
		var overlap []string
		setSize := 0
		for _, g := range coll.Members(set) {
			if !background[g] {
				continue
			}
			setSize++
			if hits[g] {
				overlap = append(overlap, g)
			}
		}
		if len(overlap) < p.MinGenes {
			continue
		}

		n11 := len(overlap)
		n12 := nHits - n11
		n21 := setSize - n11
		n22 := nBackground - nHits - n21

		_, _, rightP, _ := fet.FisherExactTest(n11, n12, n21, n22)

		sort.Strings(overlap)
		tested = append(tested, ORAResult{
			Set:        set,
			Overlap:    n11,
			SetSize:    setSize,
			Background: nBackground,
			PValue:     rightP,
			Genes:      overlap,
		})
		pvals = append(pvals, rightP)
	}

	for i, q := range stats.BenjaminiHochberg(pvals) {
		tested[i].FDR = q
	}

	out := []ORAResult{}
	for _, r := range tested {
		if r.PValue <= p.MaxP {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PValue != out[j].PValue {
			return out[i].PValue < out[j].PValue
		}
		return out[i].Set < out[j].Set
	})
	return out
}

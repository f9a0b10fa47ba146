package expr

import "sort"

// Result is one differential-expression row. Fields are addressed by name
// throughout; column position is never load-bearing. GeneName and EntrezID
// are nil when the gene has no annotation, which downstream writers render
// as an explicit null, never as an empty string.
type Result struct {
	GeneID string
	LogFC  float64
	LogCPM float64
	LR     float64
	PValue float64
	FDR    float64

	GeneName *string
	EntrezID *string
}

// SortByPValue orders results by raw p-value ascending, ties broken by
// absolute log fold change descending, then gene identifier.
func SortByPValue(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].PValue != results[j].PValue {
			return results[i].PValue < results[j].PValue
		}
		ai, aj := abs(results[i].LogFC), abs(results[j].LogFC)
		if ai != aj {
			return ai > aj
		}
		return results[i].GeneID < results[j].GeneID
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

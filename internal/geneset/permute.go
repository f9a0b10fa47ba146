package geneset

import (
	"math"
	"math/rand"
	"sort"
)

// PermutationPValues replaces the normal-approximation p-values of a
// directional result with permutation estimates: for every distinct set
// size, nPerm random same-size gene sets are drawn from the scored universe
// and the observed mean rank is compared against that null. The rng must be
// seeded by the caller; reproducibility of a run is part of the contract.
func PermutationPValues(res *DirectionalResult, scores map[string]float64, nPerm int, rng *rand.Rand) {
	if nPerm <= 0 {
		return
	}

	genes := make([]string, 0, len(scores))
	for g := range scores {
		genes = append(genes, g)
	}
	sort.Strings(genes)
	vals := make([]float64, len(genes))
	for i, g := range genes {
		vals[i] = scores[g]
	}
	ranks := rankAscending(vals)

	// Null mean-rank draws per distinct set size.
	nullBySize := make(map[int][]float64)
	for _, s := range res.Stats {
		if _, done := nullBySize[s.Size]; done {
			continue
		}
		draws := make([]float64, nPerm)
		idx := make([]int, len(ranks))
		for i := range idx {
			idx[i] = i
		}
		for p := 0; p < nPerm; p++ {
			rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
			var sum float64
			for _, i := range idx[:s.Size] {
				sum += ranks[i]
			}
			draws[p] = sum / float64(s.Size)
		}
		nullBySize[s.Size] = draws
	}

	n := float64(len(genes))
	for i := range res.Stats {
		size := res.Stats[i].Size
		s := float64(size)
		// Recover the observed mean rank from the z score.
		variance := (n - s) * (n + 1) / (12 * s)
		observed := res.Stats[i].Score*math.Sqrt(variance) + (n+1)/2

		var ge, le int
		for _, d := range nullBySize[size] {
			if d >= observed {
				ge++
			}
			if d <= observed {
				le++
			}
		}
		total := float64(nPerm + 1)
		pUp := float64(ge+1) / total
		pDown := float64(le+1) / total
		res.Greater[i].PValue = pUp
		res.Less[i].PValue = pDown
		res.Stats[i].PValue = math.Min(1, 2*math.Min(pUp, pDown))
	}

	applyFDR(res.Greater, collectP(res.Greater))
	applyFDR(res.Less, collectP(res.Less))
	applyFDR(res.Stats, collectP(res.Stats))
}

func collectP(rows []SetStat) []float64 {
	p := make([]float64, len(rows))
	for i, r := range rows {
		p[i] = r.PValue
	}
	return p
}

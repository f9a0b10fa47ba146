package geneset

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ebareke/cedernaes2018-analysis/internal/expr"
	"github.com/ebareke/cedernaes2018-analysis/internal/stats"
)

// RankMeasure selects the per-gene statistic used to rank genes before
// set-level testing.
type RankMeasure int

const (
	// RankLogFC ranks by log2 fold change.
	RankLogFC RankMeasure = iota
	// RankSignedLogP ranks by -log10(p) * sign(logFC).
	RankSignedLogP
)

// SetStat is the enrichment statistic for one gene set in one direction.
type SetStat struct {
	Set    string
	Size   int // members with a resolvable score
	Score  float64
	PValue float64
	FDR    float64
}

// DirectionalResult partitions set-level enrichment into three independent
// collections: sets shifted toward up-regulation, toward down-regulation,
// and the two-sided statistics. A set appearing in Greater need not appear
// in Less.
type DirectionalResult struct {
	Greater []SetStat
	Less    []SetStat
	Stats   []SetStat
}

// ScoreGenes maps Entrez identifiers to ranking scores. Genes without a
// resolvable Entrez id are silently excluded. When several genes share an
// Entrez id the largest absolute score wins.
func ScoreGenes(results []expr.Result, measure RankMeasure) map[string]float64 {
	scores := make(map[string]float64)
	for _, r := range results {
		if r.EntrezID == nil {
			continue
		}
		var s float64
		switch measure {
		case RankSignedLogP:
			p := r.PValue
			if p < 1e-300 {
				p = 1e-300
			}
			s = -math.Log10(p)
			if r.LogFC < 0 {
				s = -s
			}
		default:
			s = r.LogFC
		}
		if prev, ok := scores[*r.EntrezID]; !ok || math.Abs(s) > math.Abs(prev) {
			scores[*r.EntrezID] = s
		}
	}
	return scores
}

// TestCollection runs a mean-rank test per gene set: member scores are
// ranked among all scored genes and the mean rank compared to its null
// expectation with a normal approximation. Sets with fewer than two scored
// members are skipped. FDR is computed independently within each of the
// three result collections.
func TestCollection(scores map[string]float64, coll *Collection) DirectionalResult {
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
	rankOf := make(map[string]float64, len(genes))
	for i, g := range genes {
		rankOf[g] = ranks[i]
	}

	n := float64(len(genes))
	var result DirectionalResult
	var pGreater, pLess, pStats []float64
	for _, set := range coll.SetNames() {
		var sum float64
		var size int
		for _, g := range coll.Members(set) {
			if r, ok := rankOf[g]; ok {
				sum += r
				size++
			}
		}
		if size < 2 || float64(size) >= n {
			continue
		}

		s := float64(size)
		meanRank := sum / s
		expected := (n + 1) / 2
		variance := (n - s) * (n + 1) / (12 * s)
		z := (meanRank - expected) / math.Sqrt(variance)

		up := SetStat{Set: set, Size: size, Score: z, PValue: distuv.UnitNormal.Survival(z)}
		down := SetStat{Set: set, Size: size, Score: z, PValue: distuv.UnitNormal.CDF(z)}
		both := SetStat{Set: set, Size: size, Score: z, PValue: 2 * distuv.UnitNormal.Survival(math.Abs(z))}

		result.Greater = append(result.Greater, up)
		result.Less = append(result.Less, down)
		result.Stats = append(result.Stats, both)
		pGreater = append(pGreater, up.PValue)
		pLess = append(pLess, down.PValue)
		pStats = append(pStats, both.PValue)
	}

	applyFDR(result.Greater, pGreater)
	applyFDR(result.Less, pLess)
	applyFDR(result.Stats, pStats)
	return result
}

func applyFDR(rows []SetStat, pvals []float64) {
	for i, q := range stats.BenjaminiHochberg(pvals) {
		rows[i].FDR = q
	}
}

// rankAscending returns one-based mean ranks with ties averaged.
func rankAscending(v []float64) []float64 {
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
		mean := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = mean
		}
		i = j
	}
	return ranks
}

// TopParams controls top-set extraction for reporting.
type TopParams struct {
	// MaxFDR is the adjusted-significance ceiling. The reporting call
	// site uses 0.01 while the pipeline driver default is 0.05; both are
	// supplied explicitly, never inferred.
	MaxFDR float64
	// NameLen truncates set names for display.
	NameLen int
}

// DefaultTopParams is the driver default.
func DefaultTopParams() TopParams { return TopParams{MaxFDR: 0.05, NameLen: 50} }

// TopSet is a display-ready enrichment row: statistic rounded to two
// decimals, significance to two significant figures, name truncated.
type TopSet struct {
	Set   string
	Size  int
	Score float64
	FDR   float64
}

// TopSets filters one directional collection by adjusted significance and
// formats it for display. A single surviving row is returned as a one-row
// slice, never degenerated.
func TopSets(sets []SetStat, p TopParams) []TopSet {
	var out []TopSet
	for _, s := range sets {
		if s.FDR > p.MaxFDR {
			continue
		}
		name := s.Set
		if p.NameLen > 0 && len(name) > p.NameLen {
			name = name[:p.NameLen]
		}
		out = append(out, TopSet{
			Set:   name,
			Size:  s.Size,
			Score: math.Round(s.Score*100) / 100,
			FDR:   roundSigFigs(s.FDR, 2),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FDR != out[j].FDR {
			return out[i].FDR < out[j].FDR
		}
		return out[i].Set < out[j].Set
	})
	return out
}

func roundSigFigs(v float64, figs int) float64 {
	if v == 0 {
		return 0
	}
	scale := math.Pow(10, float64(figs)-math.Ceil(math.Log10(math.Abs(v))))
	return math.Round(v*scale) / scale
}

// String renders the measure name for logs and file names.
func (m RankMeasure) String() string {
	switch m {
	case RankSignedLogP:
		return "signed_logp"
	default:
		return "logfc"
	}
}

// ParseRankMeasure resolves a measure name from configuration.
func ParseRankMeasure(s string) (RankMeasure, error) {
	switch s {
	case "logfc", "logFC", "":
		return RankLogFC, nil
	case "signed_logp", "signedLogP":
		return RankSignedLogP, nil
	}
	return 0, fmt.Errorf("unknown rank measure %q", s)
}

package meth

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
	"github.com/ebareke/cedernaes2018-analysis/internal/stats"
)

// betaOffset stabilizes the beta-value denominator against near-zero total
// intensity, as array pipelines conventionally do.
const betaOffset = 100

// mOffset keeps the M-value logit finite for zero intensities.
const mOffset = 1

// NormalizeParams controls the normalization pipeline. The step order is
// fixed: quantile normalization, detection filtering, SNP removal,
// exclusion-list removal, batch correction. Quantile normalization must see
// the full probe set; batch correction must run last so it never touches
// probes that are about to be discarded.
type NormalizeParams struct {
	// DetectionP drops a probe unless its detection p-value passes this
	// ceiling in every sample.
	DetectionP float64
	// DropSNPs removes probes overlapping known polymorphisms.
	DropSNPs bool
	// ExcludeProbes lists non-specific probes to remove by identifier.
	ExcludeProbes map[string]bool
	// BatchCorrect applies empirical-Bayes batch correction on M-values.
	BatchCorrect bool
	// BatchKey names the sample covariate carrying the processing batch.
	BatchKey string
	// Workers bounds the per-probe fan-out; 0 means GOMAXPROCS.
	Workers int
}

// DefaultNormalizeParams mirror the study defaults.
func DefaultNormalizeParams() NormalizeParams {
	return NormalizeParams{
		DetectionP:   0.01,
		DropSNPs:     true,
		BatchCorrect: true,
		BatchKey:     "chip",
	}
}

// NormalizedSet is the output of normalization: surviving probes sorted by
// genomic coordinate, with beta and M values per sample.
type NormalizedSet struct {
	Probes  []Probe
	Samples []dataset.Sample
	Beta    [][]float64
	M       [][]float64
}

// Normalizer runs the fixed normalization pipeline for one tissue.
type Normalizer struct {
	params NormalizeParams
	logger *zap.Logger
}

// NewNormalizer creates a normalizer with the given parameters.
func NewNormalizer(params NormalizeParams) *Normalizer {
	return &Normalizer{params: params, logger: zap.NewNop()}
}

// SetLogger sets the logger for per-step probe counts.
func (n *Normalizer) SetLogger(l *zap.Logger) { n.logger = l }

// Run normalizes one tissue's raw arrays. Each step operates on the
// surviving probe set of the previous step.
func (n *Normalizer) Run(a *ArraySet) (*NormalizedSet, error) {
	if len(a.Samples) < 2 {
		return nil, fmt.Errorf("normalize: need at least 2 samples, have %d", len(a.Samples))
	}

	quantileNormalizeIntensities(a)

	keep := n.detectionFilter(a)
	n.logger.Info("detection filter", zap.Int("kept", len(keep)), zap.Int("total", len(a.Probes)))
	a = a.subsetProbes(keep)

	if n.params.DropSNPs {
		var kept []int
		for i, p := range a.Probes {
			if !p.SNP {
				kept = append(kept, i)
			}
		}
		n.logger.Info("SNP filter", zap.Int("kept", len(kept)), zap.Int("total", len(a.Probes)))
		a = a.subsetProbes(kept)
	}

	if len(n.params.ExcludeProbes) > 0 {
		var kept []int
		for i, p := range a.Probes {
			if !n.params.ExcludeProbes[p.ID] {
				kept = append(kept, i)
			}
		}
		n.logger.Info("exclusion filter", zap.Int("kept", len(kept)), zap.Int("total", len(a.Probes)))
		a = a.subsetProbes(kept)
	}

	if len(a.Probes) == 0 {
		return nil, fmt.Errorf("normalize: no probes survive filtering")
	}

	set := &NormalizedSet{
		Probes:  append([]Probe(nil), a.Probes...),
		Samples: a.Samples,
		Beta:    newMatrix(len(a.Probes), len(a.Samples)),
		M:       newMatrix(len(a.Probes), len(a.Samples)),
	}
	n.parallelProbes(len(a.Probes), func(i int) {
		for j := range a.Samples {
			m, u := a.Meth[i][j], a.Unmeth[i][j]
			set.Beta[i][j] = m / (m + u + betaOffset)
			set.M[i][j] = math.Log2((m + mOffset) / (u + mOffset))
		}
	})

	if n.params.BatchCorrect {
		batches, err := batchLabels(a.Samples, n.params.BatchKey)
		if err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		if distinct(batches) > 1 {
			correctBatches(set.M, batches, n.workers())
			// Reconstitute betas from the corrected logit scale so the
			// two views stay coherent.
			n.parallelProbes(len(set.Probes), func(i int) {
				for j := range set.Samples {
					e := math.Exp2(set.M[i][j])
					set.Beta[i][j] = e / (e + 1)
				}
			})
			n.logger.Info("batch correction applied", zap.Int("batches", distinct(batches)))
		}
	}

	set.sortByCoordinate()
	return set, nil
}

// detectionFilter keeps a probe only when it passes the detection ceiling
// in all samples.
func (n *Normalizer) detectionFilter(a *ArraySet) []int {
	var keep []int
	for i := range a.Probes {
		pass := true
		for j := range a.Samples {
			if a.DetP[i][j] > n.params.DetectionP {
				pass = false
				break
			}
		}
		if pass {
			keep = append(keep, i)
		}
	}
	return keep
}

// quantileNormalizeIntensities maps each sample's methylated and
// unmethylated channels onto the cross-sample mean distribution.
func quantileNormalizeIntensities(a *ArraySet) {
	for _, channel := range [][][]float64{a.Meth, a.Unmeth} {
		cols := make([][]float64, len(a.Samples))
		for j := range a.Samples {
			col := make([]float64, len(a.Probes))
			for i := range a.Probes {
				col[i] = channel[i][j]
			}
			cols[j] = col
		}
		// Column lengths are equal by construction.
		_ = stats.NormalizeQuantiles(cols)
		for j := range a.Samples {
			for i := range a.Probes {
				channel[i][j] = cols[j][i]
			}
		}
	}
}

// parallelProbes fans fn out over probe indexes. Each probe's computation
// is independent; worker order never reaches the output.
func (n *Normalizer) parallelProbes(nProbes int, fn func(i int)) {
	workers := n.workers()
	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (nProbes + workers - 1) / workers
	for lo := 0; lo < nProbes; lo += chunk {
		hi := lo + chunk
		if hi > nProbes {
			hi = nProbes
		}
		lo := lo
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				fn(i)
			}
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()
}

func (n *Normalizer) workers() int {
	if n.params.Workers > 0 {
		return n.params.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func batchLabels(samples []dataset.Sample, key string) ([]string, error) {
	labels := make([]string, len(samples))
	for i := range samples {
		v, ok := samples[i].Covariate(key)
		if !ok {
			return nil, fmt.Errorf("sample %q has no batch covariate %q", samples[i].ID, key)
		}
		labels[i] = v
	}
	return labels, nil
}

func distinct(v []string) int {
	seen := make(map[string]bool, len(v))
	for _, s := range v {
		seen[s] = true
	}
	return len(seen)
}

// sortByCoordinate orders probes by (chrom, pos, id) so regional smoothing
// and the region->probe lookup can binary-search.
func (s *NormalizedSet) sortByCoordinate() {
	idx := make([]int, len(s.Probes))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		pa, pb := s.Probes[idx[a]], s.Probes[idx[b]]
		if pa.Chrom != pb.Chrom {
			return pa.Chrom < pb.Chrom
		}
		if pa.Pos != pb.Pos {
			return pa.Pos < pb.Pos
		}
		return pa.ID < pb.ID
	})

	probes := make([]Probe, len(idx))
	beta := make([][]float64, len(idx))
	m := make([][]float64, len(idx))
	for k, i := range idx {
		probes[k] = s.Probes[i]
		beta[k] = s.Beta[i]
		m[k] = s.M[i]
	}
	s.Probes, s.Beta, s.M = probes, beta, m
}

// ProbesInRegion returns the indexes of probes falling inside
// [start, end] on chrom. It is the single region->probe mapping used by the
// region caller, the annotator, and the exporters.
func (s *NormalizedSet) ProbesInRegion(chrom string, start, end int) []int {
	lo := sort.Search(len(s.Probes), func(i int) bool {
		p := s.Probes[i]
		return p.Chrom > chrom || (p.Chrom == chrom && p.Pos >= start)
	})
	var idx []int
	for i := lo; i < len(s.Probes); i++ {
		p := s.Probes[i]
		if p.Chrom != chrom || p.Pos > end {
			break
		}
		idx = append(idx, i)
	}
	return idx
}

package meth

import (
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ebareke/cedernaes2018-analysis/internal/stats"
)

// RegionParams controls differentially-methylated-region calling.
type RegionParams struct {
	// ProbeP is the per-probe significance ceiling for seed inclusion.
	ProbeP float64
	// MinEffect is the minimum absolute mean beta difference a region
	// must reach.
	MinEffect float64
	// RegionP is the ceiling on the Stouffer-combined region p-value.
	RegionP float64
	// Bandwidth is the kernel bandwidth in base pairs.
	Bandwidth int
	// Scale widens the probe-merging gap to Bandwidth*Scale.
	Scale float64
	// Workers bounds the per-probe fan-out; 0 means GOMAXPROCS.
	Workers int
}

// DefaultRegionParams mirror the study defaults.
func DefaultRegionParams() RegionParams {
	return RegionParams{
		ProbeP:    0.05,
		MinEffect: 0.02,
		RegionP:   0.05,
		Bandwidth: 1000,
		Scale:     2,
	}
}

// Region is one called differentially methylated region. Genes and Feature
// are filled by the annotator.
type Region struct {
	Chrom  string
	Start  int
	End    int
	Probes int
	// MeanDiff is the kernel-weighted mean beta difference
	// (tested minus reference condition) across constituent probes.
	MeanDiff float64
	// PValue is the Stouffer-combined significance of the region.
	PValue float64

	Genes   string
	Feature string
}

// ProbeResult is the per-probe secondary view, reported when the
// region-level result set is empty.
type ProbeResult struct {
	Probe  string
	Chrom  string
	Pos    int
	Diff   float64
	PValue float64
	FDR    float64
}

// CallResult is the region caller output. Zero called regions is a valid
// outcome, represented as an empty (non-nil) Regions slice so downstream
// annotation and export can no-op; ProbeResults always carries the
// single-probe view as a fallback.
type CallResult struct {
	Regions      []Region
	ProbeResults []ProbeResult
}

// Empty reports whether no region survived calling.
func (r CallResult) Empty() bool { return len(r.Regions) == 0 }

// RegionCaller detects differentially methylated regions for one tissue.
type RegionCaller struct {
	params RegionParams
	logger *zap.Logger
}

// NewRegionCaller creates a caller with the given parameters.
func NewRegionCaller(params RegionParams) *RegionCaller {
	return &RegionCaller{params: params, logger: zap.NewNop()}
}

// SetLogger sets the logger for progress messages.
func (c *RegionCaller) SetLogger(l *zap.Logger) { c.logger = l }

// ModelSpec names the covariates of the per-probe model: the blocking
// factor, the tested condition, and an optional contrast level naming which
// condition level is tested.
type ModelSpec struct {
	Blocking string
	Tested   string
	Contrast string
}

// Call fits the single-probe model under the paired design and aggregates
// significant probes into regions. Covariates are resolved from the
// normalized set's own samples.
func (c *RegionCaller) Call(set *NormalizedSet, spec ModelSpec) (CallResult, error) {
	block := make([]string, len(set.Samples))
	tested := make([]string, len(set.Samples))
	for j := range set.Samples {
		v, ok := set.Samples[j].Covariate(spec.Blocking)
		if !ok {
			return CallResult{}, fmt.Errorf("region calling: sample %q has no covariate %q", set.Samples[j].ID, spec.Blocking)
		}
		block[j] = v
		if v, ok = set.Samples[j].Covariate(spec.Tested); !ok {
			return CallResult{}, fmt.Errorf("region calling: sample %q has no covariate %q", set.Samples[j].ID, spec.Tested)
		}
		tested[j] = v
	}

	design, err := stats.PairedDesign(block, tested, spec.Contrast)
	if err != nil {
		return CallResult{}, fmt.Errorf("region calling: %w", err)
	}

	diffs, pvals, err := c.fitProbes(set, design)
	if err != nil {
		return CallResult{}, err
	}

	probeResults := make([]ProbeResult, len(set.Probes))
	for i, p := range set.Probes {
		probeResults[i] = ProbeResult{
			Probe:  p.ID,
			Chrom:  p.Chrom,
			Pos:    p.Pos,
			Diff:   diffs[i],
			PValue: pvals[i],
		}
	}
	for i, q := range stats.BenjaminiHochberg(pvals) {
		probeResults[i].FDR = q
	}

	regions := c.aggregate(set, diffs, pvals)
	c.logger.Info("region calling done",
		zap.Int("probes", len(set.Probes)),
		zap.Int("regions", len(regions)))

	return CallResult{Regions: regions, ProbeResults: probeResults}, nil
}

// fitProbes runs the single-probe linear model for every probe, returning
// the mean beta difference and LRT p-value per probe. Probes are fitted in
// parallel; output position depends only on probe index.
func (c *RegionCaller) fitProbes(set *NormalizedSet, design *stats.Design) ([]float64, []float64, error) {
	n := len(set.Probes)
	diffs := make([]float64, n)
	pvals := make([]float64, n)

	workers := c.params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		lo := lo
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				fit, err := stats.FitLRT(set.M[i], nil, design)
				if err != nil {
					return fmt.Errorf("region calling: probe %s: %w", set.Probes[i].ID, err)
				}
				pvals[i] = fit.P
				diffs[i] = betaDiff(set.Beta[i], design.TestIdx)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return diffs, pvals, nil
}

// betaDiff is the mean beta of tested samples minus the mean of the rest.
func betaDiff(beta []float64, testIdx []bool) float64 {
	var sumT, sumR float64
	var nT, nR int
	for j, v := range beta {
		if testIdx[j] {
			sumT += v
			nT++
		} else {
			sumR += v
			nR++
		}
	}
	if nT == 0 || nR == 0 {
		return 0
	}
	return sumT/float64(nT) - sumR/float64(nR)
}

// aggregate clusters seed probes into candidate regions and filters them by
// effect size and combined significance. Zero surviving candidates yields
// an empty (non-nil) slice, never an error: no significant regions is a
// valid scientific outcome.
func (c *RegionCaller) aggregate(set *NormalizedSet, diffs, pvals []float64) []Region {
	maxGap := int(float64(c.params.Bandwidth) * c.params.Scale)

	regions := []Region{}
	var seed []int
	flush := func() {
		if len(seed) == 0 {
			return
		}
		if r, ok := c.buildRegion(set, seed, diffs, pvals); ok {
			regions = append(regions, r)
		}
		seed = seed[:0]
	}

	for i := range set.Probes {
		if pvals[i] > c.params.ProbeP {
			continue
		}
		if len(seed) > 0 {
			prev := set.Probes[seed[len(seed)-1]]
			cur := set.Probes[i]
			if cur.Chrom != prev.Chrom || cur.Pos-prev.Pos > maxGap {
				flush()
			}
		}
		seed = append(seed, i)
	}
	flush()
	return regions
}

// buildRegion scores one candidate: Gaussian kernel weights around the
// region midpoint feed both the weighted mean effect and the Stouffer
// combination. All probes inside the candidate span contribute, resolved
// through the shared region->probe lookup.
func (c *RegionCaller) buildRegion(set *NormalizedSet, seed []int, diffs, pvals []float64) (Region, bool) {
	chrom := set.Probes[seed[0]].Chrom
	start := set.Probes[seed[0]].Pos
	end := set.Probes[seed[len(seed)-1]].Pos

	members := set.ProbesInRegion(chrom, start, end)
	if len(members) == 0 {
		return Region{}, false
	}

	mid := float64(start+end) / 2
	h := float64(c.params.Bandwidth)
	weights := make([]float64, len(members))
	memberP := make([]float64, len(members))
	var effect, wSum float64
	for k, i := range members {
		w := stats.GaussianKernel(float64(set.Probes[i].Pos)-mid, h)
		weights[k] = w
		memberP[k] = pvals[i]
		effect += w * diffs[i]
		wSum += w
	}
	if wSum == 0 {
		return Region{}, false
	}
	effect /= wSum

	combined := stats.StoufferCombine(memberP, weights)

	if math.Abs(effect) < c.params.MinEffect || combined > c.params.RegionP {
		return Region{}, false
	}
	return Region{
		Chrom:    chrom,
		Start:    start,
		End:      end,
		Probes:   len(members),
		MeanDiff: effect,
		PValue:   combined,
	}, true
}

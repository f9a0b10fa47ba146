package meth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
)

var regionSpec = ModelSpec{Blocking: "subject", Tested: "condition", Contrast: "deprived"}

func pairedMethSamples() []dataset.Sample {
	return []dataset.Sample{
		{ID: "s1", Subject: "p1", Tissue: "adipose", Condition: "rested"},
		{ID: "s2", Subject: "p1", Tissue: "adipose", Condition: "deprived"},
		{ID: "s3", Subject: "p2", Tissue: "adipose", Condition: "rested"},
		{ID: "s4", Subject: "p2", Tissue: "adipose", Condition: "deprived"},
	}
}

// signalSet carries a three-probe cluster on chr1 with a strong,
// subject-consistent condition effect, plus two unaffected probes. Probes
// are listed in coordinate order, as the normalizer guarantees.
func signalSet() *NormalizedSet {
	return &NormalizedSet{
		Probes: []Probe{
			{ID: "cg01", Chrom: "chr1", Pos: 1000},
			{ID: "cg02", Chrom: "chr1", Pos: 1100},
			{ID: "cg03", Chrom: "chr1", Pos: 1200},
			{ID: "cg04", Chrom: "chr1", Pos: 50000},
			{ID: "cg05", Chrom: "chr2", Pos: 700},
		},
		Samples: pairedMethSamples(),
		Beta: [][]float64{
			{0.2, 0.5, 0.2, 0.5},
			{0.25, 0.55, 0.22, 0.52},
			{0.18, 0.48, 0.21, 0.5},
			{0.5, 0.5, 0.5, 0.5},
			{0.7, 0.7, 0.7, 0.7},
		},
		M: [][]float64{
			{-2.0, 0.05, -1.95, -0.02},
			{-1.8, 0.1, -2.1, 0.0},
			{-2.2, -0.1, -1.9, 0.1},
			{0.5, 0.45, 0.52, 0.55},
			{-1.0, -0.9, -1.1, -1.15},
		},
	}
}

func TestRegionCaller_CallsCluster(t *testing.T) {
	caller := NewRegionCaller(DefaultRegionParams())
	res, err := caller.Call(signalSet(), regionSpec)
	require.NoError(t, err)

	require.Len(t, res.Regions, 1)
	assert.False(t, res.Empty())

	r := res.Regions[0]
	assert.Equal(t, "chr1", r.Chrom)
	assert.Equal(t, 1000, r.Start)
	assert.Equal(t, 1200, r.End)
	assert.Equal(t, 3, r.Probes)
	assert.InDelta(t, 0.3, r.MeanDiff, 0.05, "deprived minus rested beta")
	assert.Less(t, r.PValue, 0.05)

	// Annotation fields stay unset until the annotator runs.
	assert.Empty(t, r.Genes)
	assert.Empty(t, r.Feature)
}

func TestRegionCaller_ProbeResultsAlwaysPresent(t *testing.T) {
	caller := NewRegionCaller(DefaultRegionParams())
	res, err := caller.Call(signalSet(), regionSpec)
	require.NoError(t, err)

	require.Len(t, res.ProbeResults, 5)
	byID := make(map[string]ProbeResult)
	for _, pr := range res.ProbeResults {
		byID[pr.Probe] = pr
		assert.GreaterOrEqual(t, pr.FDR, pr.PValue)
	}

	assert.Less(t, byID["cg01"].PValue, 0.05)
	assert.InDelta(t, 0.3, byID["cg01"].Diff, 0.01)
	assert.Greater(t, byID["cg04"].PValue, 0.1)
	assert.InDelta(t, 0, byID["cg04"].Diff, 1e-9)
}

func TestRegionCaller_NoRegionsIsNotAnError(t *testing.T) {
	set := signalSet()
	// Flatten the cluster: now nothing is differentially methylated.
	set.M[0] = []float64{0.1, 0.05, 0.12, 0.2}
	set.M[1] = []float64{-0.3, -0.25, -0.35, -0.42}
	set.M[2] = []float64{1.0, 1.1, 0.9, 0.85}
	set.Beta[0] = []float64{0.5, 0.5, 0.5, 0.5}
	set.Beta[1] = []float64{0.45, 0.45, 0.45, 0.45}
	set.Beta[2] = []float64{0.6, 0.6, 0.6, 0.6}

	caller := NewRegionCaller(DefaultRegionParams())
	res, err := caller.Call(set, regionSpec)
	require.NoError(t, err)

	assert.True(t, res.Empty())
	assert.NotNil(t, res.Regions)
	assert.Empty(t, res.Regions)
	assert.Len(t, res.ProbeResults, 5, "probe-level view survives an empty call")
}

func TestRegionCaller_EffectFloor(t *testing.T) {
	set := signalSet()
	params := DefaultRegionParams()
	params.MinEffect = 0.9 // beyond any real beta difference

	res, err := NewRegionCaller(params).Call(set, regionSpec)
	require.NoError(t, err)
	assert.True(t, res.Empty(), "significant but tiny effects are dropped")
}

func TestRegionCaller_GapSplitsClusters(t *testing.T) {
	set := signalSet()
	params := DefaultRegionParams()
	params.Bandwidth = 20
	params.Scale = 1 // max gap 20bp: the three seeds no longer merge

	res, err := NewRegionCaller(params).Call(set, regionSpec)
	require.NoError(t, err)

	// Each seed stands alone; single-probe candidates must clear the
	// region p-value on their own.
	for _, r := range res.Regions {
		assert.Equal(t, 1, r.Probes)
	}
}

func TestRegionCaller_MissingCovariate(t *testing.T) {
	_, err := NewRegionCaller(DefaultRegionParams()).Call(signalSet(), ModelSpec{
		Blocking: "plate", Tested: "condition",
	})
	assert.Error(t, err)
}

package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebareke/cedernaes2018-analysis/internal/annot"
	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
)

// Two subjects, each sampled rested and deprived. Library sizes are equal
// by construction so normalization stays near the identity and the induced
// effects dominate.
func pairedScenario(t *testing.T) (*dataset.CountMatrix, *dataset.SampleTable) {
	t.Helper()
	m, err := dataset.NewCountMatrix(
		[]string{"gUP", "gDOWN", "gF1", "gF2", "gF3", "gF4"},
		[]string{"a1", "a2", "a3", "a4"},
		[][]float64{
			{100, 400, 120, 380},   // up in deprived
			{400, 100, 380, 120},   // down in deprived
			{500, 500, 500, 500},   // flat
			{250, 250, 250, 250},   // flat
			{50, 53, 52, 48},       // jitter, discordant between subjects
			{1000, 995, 996, 1003}, // jitter, discordant between subjects
		})
	require.NoError(t, err)

	samples, err := dataset.NewSampleTable([]dataset.Sample{
		{ID: "a1", Subject: "p1", Tissue: "adipose", Condition: "rested"},
		{ID: "a2", Subject: "p1", Tissue: "adipose", Condition: "deprived"},
		{ID: "a3", Subject: "p2", Tissue: "adipose", Condition: "rested"},
		{ID: "a4", Subject: "p2", Tissue: "adipose", Condition: "deprived"},
	})
	require.NoError(t, err)
	return m, samples
}

var pairedSpec = ModelSpec{Blocking: "subject", Tested: "condition", Contrast: "deprived"}

func TestEngine_PairedScenario(t *testing.T) {
	m, samples := pairedScenario(t)

	results, err := NewEngine().Run(m, samples, pairedSpec, nil)
	require.NoError(t, err)
	require.Len(t, results, 6)

	byID := make(map[string]Result, len(results))
	for i, r := range results {
		byID[r.GeneID] = r
		assert.GreaterOrEqual(t, r.FDR, r.PValue, "%s", r.GeneID)
		assert.LessOrEqual(t, r.FDR, 1.0, "%s", r.GeneID)
		if i > 0 {
			assert.GreaterOrEqual(t, r.PValue, results[i-1].PValue, "sorted by p-value")
		}
		// No annotation lookup supplied, so the join stays null.
		assert.Nil(t, r.GeneName)
		assert.Nil(t, r.EntrezID)
	}

	assert.Greater(t, byID["gUP"].LogFC, 1.0)
	assert.Less(t, byID["gDOWN"].LogFC, -1.0)

	assert.Less(t, byID["gUP"].PValue, byID["gF1"].PValue)
	assert.Less(t, byID["gDOWN"].PValue, byID["gF1"].PValue)

	// The induced genes outrank the flat ones.
	top := map[string]bool{results[0].GeneID: true, results[1].GeneID: true}
	assert.True(t, top["gUP"], "gUP among the top two")
	assert.True(t, top["gDOWN"], "gDOWN among the top two")
}

func TestEngine_ContrastFlipsSign(t *testing.T) {
	m, samples := pairedScenario(t)

	spec := pairedSpec
	spec.Contrast = "rested"
	results, err := NewEngine().Run(m, samples, spec, nil)
	require.NoError(t, err)

	for _, r := range results {
		if r.GeneID == "gUP" {
			assert.Less(t, r.LogFC, -1.0, "testing rested flips the fold change")
		}
	}
}

func TestEngine_AnnotationJoin(t *testing.T) {
	m, samples := pairedScenario(t)
	lookup := annot.NewTable(map[string][]annot.GeneInfo{
		"gUP":   {{Biotype: "protein_coding", Name: "PER1", Entrez: "5187"}},
		"gDOWN": {{Biotype: "protein_coding", Name: "BMAL1", Entrez: ""}},
		// the flat genes stay unannotated
	})

	results, err := NewEngine().Run(m, samples, pairedSpec, lookup)
	require.NoError(t, err)

	for _, r := range results {
		switch r.GeneID {
		case "gUP":
			require.NotNil(t, r.GeneName)
			assert.Equal(t, "PER1", *r.GeneName)
			require.NotNil(t, r.EntrezID)
			assert.Equal(t, "5187", *r.EntrezID)
		case "gDOWN":
			require.NotNil(t, r.GeneName)
			assert.Nil(t, r.EntrezID, "empty cross-reference stays null")
		default:
			assert.Nil(t, r.GeneName)
			assert.Nil(t, r.EntrezID)
		}
	}
}

func TestEngine_MaxPFilter(t *testing.T) {
	m, samples := pairedScenario(t)

	engine := NewEngine()
	engine.MaxP = 0.05
	results, err := engine.Run(m, samples, pairedSpec, nil)
	require.NoError(t, err)

	for _, r := range results {
		assert.LessOrEqual(t, r.PValue, 0.05)
	}
	assert.Less(t, len(results), 6, "flat genes filtered out")
}

func TestEngine_WorkerCountDoesNotChangeResults(t *testing.T) {
	m, samples := pairedScenario(t)

	serial := NewEngine()
	serial.Workers = 1
	want, err := serial.Run(m, samples, pairedSpec, nil)
	require.NoError(t, err)

	parallel := NewEngine()
	parallel.Workers = 4
	got, err := parallel.Run(m, samples, pairedSpec, nil)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestEngine_MisalignedSamples(t *testing.T) {
	m, _ := pairedScenario(t)
	other, err := dataset.NewSampleTable([]dataset.Sample{
		{ID: "x1", Subject: "p1", Tissue: "adipose", Condition: "rested"},
		{ID: "x2", Subject: "p1", Tissue: "adipose", Condition: "deprived"},
		{ID: "x3", Subject: "p2", Tissue: "adipose", Condition: "rested"},
		{ID: "x4", Subject: "p2", Tissue: "adipose", Condition: "deprived"},
	})
	require.NoError(t, err)

	_, err = NewEngine().Run(m, other, pairedSpec, nil)
	assert.Error(t, err)
}

func TestEngine_UnknownCovariate(t *testing.T) {
	m, samples := pairedScenario(t)
	_, err := NewEngine().Run(m, samples, ModelSpec{Blocking: "plate", Tested: "condition"}, nil)
	assert.Error(t, err)
}

func TestSortByPValue_Ties(t *testing.T) {
	results := []Result{
		{GeneID: "b", PValue: 0.5, LogFC: 1},
		{GeneID: "a", PValue: 0.5, LogFC: 1},
		{GeneID: "c", PValue: 0.5, LogFC: -3},
		{GeneID: "d", PValue: 0.1},
	}
	SortByPValue(results)
	assert.Equal(t, "d", results[0].GeneID)
	assert.Equal(t, "c", results[1].GeneID, "larger |logFC| wins the tie")
	assert.Equal(t, "a", results[2].GeneID)
	assert.Equal(t, "b", results[3].GeneID)
}

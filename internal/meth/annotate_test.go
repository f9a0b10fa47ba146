package meth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebareke/cedernaes2018-analysis/internal/annot"
)

func testAnnotator(t *testing.T) *Annotator {
	t.Helper()
	tss := []annot.TSS{
		{Gene: "CRY1", Chrom: "chr1", Pos: 1500},
		{Gene: "PER2", Chrom: "chr1", Pos: 800},
		{Gene: "BMAL1", Chrom: "chr2", Pos: 90000},
	}
	features := []Feature{
		{Chrom: "chr1", Start: 40000, End: 41000, Class: "Intron"},
		{Chrom: "chr1", Start: 40800, End: 41200, Class: "Promoter"},
		{Chrom: "chr1", Start: 60000, End: 61000, Class: "Exon"},
		{Chrom: "chr2", Start: 100, End: 200, Class: "FiveUTR"},
	}
	a, err := NewAnnotator(tss, features, nil, 2000)
	require.NoError(t, err)
	return a
}

func TestAnnotator_NearTSSOverridesFeatures(t *testing.T) {
	a := testAnnotator(t)
	regions := []Region{
		{Chrom: "chr1", Start: 1000, End: 1100}, // CRY1 and PER2 both in window
		{Chrom: "chr1", Start: 40900, End: 41100},
		{Chrom: "chr1", Start: 60500, End: 60600},
		{Chrom: "chr3", Start: 500, End: 600},
	}
	a.Annotate(regions)

	assert.Equal(t, FeatureNearTSS, regions[0].Feature)
	assert.Equal(t, "CRY1,PER2", regions[0].Genes, "genes sorted and joined")

	// Promoter outranks the overlapping Intron.
	assert.Equal(t, "Promoter", regions[1].Feature)
	assert.Empty(t, regions[1].Genes)

	assert.Equal(t, "Exon", regions[2].Feature)
	assert.Equal(t, FeatureIntergenic, regions[3].Feature)
}

func TestAnnotator_ExactlyOneFeaturePerRegion(t *testing.T) {
	a := testAnnotator(t)
	regions := []Region{
		{Chrom: "chr1", Start: 1000, End: 1100},
		{Chrom: "chr1", Start: 40000, End: 61000}, // spans Intron, Promoter and Exon
		{Chrom: "chr2", Start: 150, End: 160},
		{Chrom: "chr2", Start: 5000, End: 5100},
	}
	a.Annotate(regions)

	valid := map[string]bool{FeatureNearTSS: true, FeatureIntergenic: true}
	for _, c := range DefaultPrecedence {
		valid[c] = true
	}
	for _, r := range regions {
		assert.True(t, valid[r.Feature], "region %s:%d got label %q", r.Chrom, r.Start, r.Feature)
	}
	assert.Equal(t, "Promoter", regions[1].Feature)
	assert.Equal(t, "FiveUTR", regions[2].Feature)
	assert.Equal(t, FeatureIntergenic, regions[3].Feature)
}

func TestAnnotator_WindowBoundary(t *testing.T) {
	a := testAnnotator(t)
	// CRY1 TSS at 1500; a region starting exactly 2000bp downstream is still in.
	inside := []Region{{Chrom: "chr1", Start: 3500, End: 3600}}
	a.Annotate(inside)
	assert.Equal(t, FeatureNearTSS, inside[0].Feature)
	assert.Equal(t, "CRY1", inside[0].Genes)

	outside := []Region{{Chrom: "chr1", Start: 3501, End: 3600}}
	a.Annotate(outside)
	assert.Equal(t, FeatureIntergenic, outside[0].Feature)
	assert.Empty(t, outside[0].Genes)
}

func TestAnnotator_EmptyRegionsNoop(t *testing.T) {
	a := testAnnotator(t)
	a.Annotate(nil)
	a.Annotate([]Region{})
}

func TestNewAnnotator_PrecedenceValidation(t *testing.T) {
	tss := []annot.TSS{{Gene: "CRY1", Chrom: "chr1", Pos: 1500}}

	_, err := NewAnnotator(tss, nil, []string{"Promoter", "Enhancer"}, 2000)
	assert.ErrorContains(t, err, "Enhancer")

	_, err = NewAnnotator(tss, nil, []string{"Promoter", "Exon", "Promoter"}, 2000)
	assert.ErrorContains(t, err, "duplicate")

	features := []Feature{{Chrom: "chr1", Start: 1, End: 10, Class: "CDS"}}
	_, err = NewAnnotator(tss, features, nil, 2000)
	assert.ErrorContains(t, err, "CDS")
}

func TestAnnotator_CoveredGenes(t *testing.T) {
	a := testAnnotator(t)
	set := &NormalizedSet{
		Probes: []Probe{
			{ID: "cg01", Chrom: "chr1", Pos: 1600},  // CRY1 and PER2
			{ID: "cg02", Chrom: "chr1", Pos: 45000}, // no TSS nearby
			{ID: "cg03", Chrom: "chr2", Pos: 89500}, // BMAL1
		},
	}
	covered := a.CoveredGenes(set)
	assert.Equal(t, map[string]bool{"CRY1": true, "PER2": true, "BMAL1": true}, covered)

	set.Probes = set.Probes[1:2]
	assert.Empty(t, a.CoveredGenes(set))
}

func TestLoadFeatures_Parses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.tsv")
	content := "chrom\tstart\tend\tclass\n" +
		"chr1\t100\t200\tPromoter\n" +
		"# a comment\n" +
		"chr2\t5\t50\tIntron\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	features, err := LoadFeatures(path)
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, Feature{Chrom: "chr1", Start: 100, End: 200, Class: "Promoter"}, features[0])
	assert.Equal(t, Feature{Chrom: "chr2", Start: 5, End: 50, Class: "Intron"}, features[1])
}

func TestLoadFeatures_Malformed(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.tsv")
	require.NoError(t, os.WriteFile(short, []byte("chr1\t100\t200\n"), 0o644))
	_, err := LoadFeatures(short)
	assert.ErrorContains(t, err, "want 4")

	bad := filepath.Join(dir, "bad.tsv")
	require.NoError(t, os.WriteFile(bad, []byte("chr1\tten\t200\tExon\n"), 0o644))
	_, err = LoadFeatures(bad)
	assert.ErrorContains(t, err, "malformed coordinates")
}

package meth

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

const manifestCSV = `probe,chrom,pos,snp
cg001,chr1,1000,false
cg002,chr1,2000,true
cg003,chr2,500,0
cg004,chr2,800,1
`

func TestLoadManifest(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "manifest.csv", manifestCSV)

	probes, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, probes, 4)

	assert.Equal(t, Probe{ID: "cg001", Chrom: "chr1", Pos: 1000, SNP: false}, probes[0])
	assert.True(t, probes[1].SNP)
	assert.False(t, probes[2].SNP)
	assert.True(t, probes[3].SNP, "numeric snp flag accepted")
}

func TestLoadManifest_DuplicateProbe(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "manifest.csv",
		"probe,chrom,pos,snp\ncg001,chr1,1,false\ncg001,chr1,2,false\n")
	_, err := LoadManifest(path)
	assert.Error(t, err)
}

func twoSampleTable(t *testing.T) *dataset.SampleTable {
	t.Helper()
	tab, err := dataset.NewSampleTable([]dataset.Sample{
		{ID: "s1", Subject: "p1", Tissue: "adipose", Condition: "rested"},
		{ID: "s2", Subject: "p1", Tissue: "adipose", Condition: "deprived"},
	})
	require.NoError(t, err)
	return tab
}

func TestLoadArrays(t *testing.T) {
	dir := t.TempDir()
	manifest := writeTemp(t, dir, "manifest.csv", manifestCSV)
	probes, err := LoadManifest(manifest)
	require.NoError(t, err)

	for _, id := range []string{"s1", "s2"} {
		content := "probe,meth,unmeth,detection_p\n"
		for i, p := range probes {
			content += fmt.Sprintf("%s,%d,%d,0.001\n", p.ID, 1000+i, 2000+i)
		}
		// A probe outside the manifest is silently skipped.
		content += "cg999,5,5,0.5\n"
		writeTemp(t, dir, id+".csv", content)
	}

	set, err := LoadArrays(probes, dir, twoSampleTable(t))
	require.NoError(t, err)

	assert.Len(t, set.Probes, 4)
	assert.Len(t, set.Samples, 2)
	assert.Equal(t, 1000.0, set.Meth[0][0])
	assert.Equal(t, 2003.0, set.Unmeth[3][1])
	assert.Equal(t, 0.001, set.DetP[2][0])
}

func TestLoadArrays_MissingProbeReading(t *testing.T) {
	dir := t.TempDir()
	probes := []Probe{{ID: "cg001", Chrom: "chr1", Pos: 1}, {ID: "cg002", Chrom: "chr1", Pos: 2}}

	writeTemp(t, dir, "s1.csv", "probe,meth,unmeth,detection_p\ncg001,1,1,0.01\ncg002,1,1,0.01\n")
	writeTemp(t, dir, "s2.csv", "probe,meth,unmeth,detection_p\ncg001,1,1,0.01\n")

	_, err := LoadArrays(probes, dir, twoSampleTable(t))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cg002")
}

func TestLoadArrays_MissingSampleFile(t *testing.T) {
	dir := t.TempDir()
	probes := []Probe{{ID: "cg001", Chrom: "chr1", Pos: 1}}
	writeTemp(t, dir, "s1.csv", "probe,meth,unmeth,detection_p\ncg001,1,1,0.01\n")

	_, err := LoadArrays(probes, dir, twoSampleTable(t))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "s2")
}

func TestArraySet_SplitByTissue(t *testing.T) {
	tab, err := dataset.NewSampleTable([]dataset.Sample{
		{ID: "a1", Subject: "p1", Tissue: "adipose", Condition: "rested"},
		{ID: "m1", Subject: "p1", Tissue: "muscle", Condition: "rested"},
		{ID: "a2", Subject: "p1", Tissue: "adipose", Condition: "deprived"},
	})
	require.NoError(t, err)

	set := &ArraySet{
		Probes:  []Probe{{ID: "cg001", Chrom: "chr1", Pos: 1}},
		Samples: tab.Samples,
		Meth:    [][]float64{{10, 20, 30}},
		Unmeth:  [][]float64{{1, 2, 3}},
		DetP:    [][]float64{{0.1, 0.2, 0.3}},
	}

	assert.Equal(t, []string{"adipose", "muscle"}, set.Tissues())

	split := set.SplitByTissue()
	require.Len(t, split, 2)

	adipose := split["adipose"]
	require.Len(t, adipose.Samples, 2)
	assert.Equal(t, "a1", adipose.Samples[0].ID)
	assert.Equal(t, []float64{10, 30}, adipose.Meth[0])
	assert.Equal(t, []float64{0.1, 0.3}, adipose.DetP[0])

	muscle := split["muscle"]
	assert.Equal(t, []float64{20}, muscle.Meth[0])
}

package dataset

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadCountMatrix_Tab(t *testing.T) {
	path := writeTemp(t, "counts.tsv",
		"gene\ta1\ta2\ta3\n"+
			"g1\t10\t0\t5\n"+
			"g2\t1\t2\t3\n")

	m, err := LoadCountMatrix(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"g1", "g2"}, m.Genes)
	assert.Equal(t, []string{"a1", "a2", "a3"}, m.Samples)

	row, ok := m.Counts("g1")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 0, 5}, row)

	_, ok = m.Counts("missing")
	assert.False(t, ok)
}

func TestLoadCountMatrix_CommaAndGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("gene,a1,a2\ng1,4,6\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	m, err := LoadCountMatrix(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, m.Samples)
	row, _ := m.Counts("g1")
	assert.Equal(t, []float64{4, 6}, row)
}

func TestLoadCountMatrix_Malformed(t *testing.T) {
	cases := map[string]string{
		"ragged row": "gene\ta1\ta2\ng1\t1\n",
		"bad count":  "gene\ta1\ng1\tx\n",
		"negative":   "gene\ta1\ng1\t-3\n",
		"no samples": "gene\n",
		"dup gene":   "gene\ta1\ng1\t1\ng1\t2\n",
		"fractional": "gene\ta1\ng1\t1.5\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeTemp(t, "counts.tsv", content)
			_, err := LoadCountMatrix(path)
			assert.Error(t, err)
		})
	}
}

func TestCountMatrix_LibrarySizesAndCPM(t *testing.T) {
	m, err := NewCountMatrix(
		[]string{"g1", "g2"},
		[]string{"a", "b"},
		[][]float64{{90, 10}, {10, 40}})
	require.NoError(t, err)

	libs := m.LibrarySizes()
	assert.Equal(t, []float64{100, 50}, libs)

	cpm := m.CPM(libs)
	assert.InDelta(t, 900000, cpm[0][0], 1e-6)
	assert.InDelta(t, 200000, cpm[0][1], 1e-6)

	// Columns of CPM sum to one million.
	for s := range m.Samples {
		var sum float64
		for g := range m.Genes {
			sum += cpm[g][s]
		}
		assert.InDelta(t, 1e6, sum, 1e-6)
	}
}

func TestCountMatrix_SubsetGenes(t *testing.T) {
	m, err := NewCountMatrix(
		[]string{"g1", "g2", "g3"},
		[]string{"a"},
		[][]float64{{1}, {2}, {3}})
	require.NoError(t, err)

	sub := m.SubsetGenes(map[string]bool{"g3": true, "g1": true})
	assert.Equal(t, []string{"g1", "g3"}, sub.Genes)
	row, _ := sub.Counts("g3")
	assert.Equal(t, []float64{3}, row)
}

func TestCountMatrix_SubsetSamples(t *testing.T) {
	m, err := NewCountMatrix(
		[]string{"g1"},
		[]string{"a", "b", "c"},
		[][]float64{{1, 2, 3}})
	require.NoError(t, err)

	sub, err := m.SubsetSamples([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sub.Samples)
	row, _ := sub.Counts("g1")
	assert.Equal(t, []float64{3, 1}, row)

	_, err = m.SubsetSamples([]string{"a", "nope"})
	assert.Error(t, err)
}

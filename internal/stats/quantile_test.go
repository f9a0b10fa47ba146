package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuantiles_TwoColumns(t *testing.T) {
	cols := [][]float64{
		{3, 1, 2},
		{40, 60, 50},
	}
	require.NoError(t, NormalizeQuantiles(cols))

	// Reference: means of the order statistics {20.5, 25.5, 30.5}.
	assert.InDelta(t, 30.5, cols[0][0], 1e-12)
	assert.InDelta(t, 20.5, cols[0][1], 1e-12)
	assert.InDelta(t, 25.5, cols[0][2], 1e-12)

	assert.InDelta(t, 20.5, cols[1][0], 1e-12)
	assert.InDelta(t, 30.5, cols[1][1], 1e-12)
	assert.InDelta(t, 25.5, cols[1][2], 1e-12)
}

func TestNormalizeQuantiles_IdenticalDistributionsAfter(t *testing.T) {
	cols := [][]float64{
		{10, 200, 3, 47, 8},
		{1, 2, 3, 4, 5},
		{90, 80, 70, 60, 50},
	}
	require.NoError(t, NormalizeQuantiles(cols))

	// Every column now carries the same multiset of values.
	sorted := make([][]float64, len(cols))
	for i, c := range cols {
		sorted[i] = append([]float64(nil), c...)
		QuantileR7(sorted[i], 1) // sorts in place
	}
	for i := 1; i < len(sorted); i++ {
		assert.Equal(t, sorted[0], sorted[i])
	}
}

func TestNormalizeQuantiles_Ties(t *testing.T) {
	// Tied values share the mean of the reference values they span.
	cols := [][]float64{
		{5, 5, 1, 2},
		{10, 20, 30, 40},
	}
	require.NoError(t, NormalizeQuantiles(cols))
	assert.Equal(t, cols[0][0], cols[0][1])
}

func TestNormalizeQuantiles_RaggedColumns(t *testing.T) {
	err := NormalizeQuantiles([][]float64{{1, 2}, {1}})
	assert.Error(t, err)
}

func TestNormalizeQuantiles_SingleColumnNoop(t *testing.T) {
	cols := [][]float64{{3, 1, 2}}
	require.NoError(t, NormalizeQuantiles(cols))
	assert.Equal(t, []float64{3, 1, 2}, cols[0])
}

func TestQuantileR7(t *testing.T) {
	assert.InDelta(t, 2.5, QuantileR7([]float64{4, 3, 2, 1}, 0.5), 1e-12)
	assert.InDelta(t, 1.75, QuantileR7([]float64{1, 2, 3, 4}, 0.25), 1e-12)
	assert.InDelta(t, 4, QuantileR7([]float64{1, 2, 3, 4}, 1), 1e-12)
	assert.InDelta(t, 7, QuantileR7([]float64{7}, 0.5), 1e-12)
}

func TestRank_Ties(t *testing.T) {
	r := rank([]float64{2, 1, 2})
	assert.Equal(t, []float64{1.5, 0, 1.5}, r)
}

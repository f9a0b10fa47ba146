package stats

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBenjaminiHochberg_KnownValues(t *testing.T) {
	// Sorted input: adjusted values are p*n/rank with the running minimum
	// from the back.
	adj := BenjaminiHochberg([]float64{0.005, 0.01, 0.03, 0.05})

	assert.InDelta(t, 0.02, adj[0], 1e-12)
	assert.InDelta(t, 0.02, adj[1], 1e-12)
	assert.InDelta(t, 0.04, adj[2], 1e-12)
	assert.InDelta(t, 0.05, adj[3], 1e-12)
}

func TestBenjaminiHochberg_UnsortedInput(t *testing.T) {
	// Order of the output follows the order of the input.
	adj := BenjaminiHochberg([]float64{0.05, 0.005, 0.03, 0.01})

	assert.InDelta(t, 0.05, adj[0], 1e-12)
	assert.InDelta(t, 0.02, adj[1], 1e-12)
	assert.InDelta(t, 0.04, adj[2], 1e-12)
	assert.InDelta(t, 0.02, adj[3], 1e-12)
}

func TestBenjaminiHochberg_Properties(t *testing.T) {
	pvals := []float64{0.9, 0.001, 0.2, 0.04, 0.7, 0.5, 0.0001, 1}
	adj := BenjaminiHochberg(pvals)

	for i := range pvals {
		if adj[i] < pvals[i] {
			t.Errorf("adjusted[%d]=%g below raw %g", i, adj[i], pvals[i])
		}
		if adj[i] > 1 {
			t.Errorf("adjusted[%d]=%g above 1", i, adj[i])
		}
	}

	// Adjusted values keep the ordering of the raw values.
	type pair struct{ raw, adj float64 }
	pairs := make([]pair, len(pvals))
	for i := range pvals {
		pairs[i] = pair{pvals[i], adj[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].raw < pairs[j].raw })
	for i := 1; i < len(pairs); i++ {
		if pairs[i].adj < pairs[i-1].adj {
			t.Errorf("adjusted values not monotone: %g after %g", pairs[i].adj, pairs[i-1].adj)
		}
	}
}

func TestBenjaminiHochberg_Empty(t *testing.T) {
	assert.Empty(t, BenjaminiHochberg(nil))
}

func TestBenjaminiHochberg_Single(t *testing.T) {
	adj := BenjaminiHochberg([]float64{0.4})
	assert.Len(t, adj, 1)
	assert.True(t, math.Abs(adj[0]-0.4) < 1e-12)
}

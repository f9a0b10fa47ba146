package meth

import (
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"gonum.org/v1/gonum/stat"
)

// correctBatches removes batch-associated location and scale shifts from the
// probes × samples matrix m, in place. The model is the parametric
// empirical-Bayes scheme of Johnson et al. (ComBat) under a null
// (intercept-only) design: per-probe values are standardized against the
// grand mean and pooled variance, per-batch location/scale estimates are
// shrunk toward their across-probe moments, and the standardized values are
// adjusted and transformed back.
func correctBatches(m [][]float64, batches []string, workers int) {
	nProbes := len(m)
	if nProbes == 0 {
		return
	}

	byBatch := make(map[string][]int)
	for j, b := range batches {
		byBatch[b] = append(byBatch[b], j)
	}
	names := make([]string, 0, len(byBatch))
	for b := range byBatch {
		names = append(names, b)
	}
	sort.Strings(names)

	// Standardize each probe: intercept-only fit, pooled variance.
	grand := make([]float64, nProbes)
	pooledSD := make([]float64, nProbes)
	z := make([][]float64, nProbes)
	for g, row := range m {
		grand[g] = stat.Mean(row, nil)
		sd := stat.StdDev(row, nil)
		if sd == 0 {
			sd = 1
		}
		pooledSD[g] = sd
		zr := make([]float64, len(row))
		for j, v := range row {
			zr[j] = (v - grand[g]) / sd
		}
		z[g] = zr
	}

	// Per-batch raw location (gamma) and scale (delta^2) estimates.
	gammaHat := make(map[string][]float64, len(names))
	deltaHat := make(map[string][]float64, len(names))
	for _, b := range names {
		cols := byBatch[b]
		gh := make([]float64, nProbes)
		dh := make([]float64, nProbes)
		vals := make([]float64, len(cols))
		for g := range z {
			for k, j := range cols {
				vals[k] = z[g][j]
			}
			gh[g] = stat.Mean(vals, nil)
			if len(cols) > 1 {
				dh[g] = stat.Variance(vals, nil)
			}
			if dh[g] <= 0 {
				dh[g] = 1
			}
		}
		gammaHat[b] = gh
		deltaHat[b] = dh
	}

	// Empirical-Bayes hyperparameters per batch, method of moments across
	// probes: normal prior on gamma, inverse-gamma prior on delta^2.
	type prior struct {
		gammaBar, tau2 float64
		lambda, theta  float64
	}
	priors := make(map[string]prior, len(names))
	for _, b := range names {
		gBar := stat.Mean(gammaHat[b], nil)
		tau2 := stat.Variance(gammaHat[b], nil)
		if tau2 <= 0 {
			tau2 = 1e-8
		}
		dBar := stat.Mean(deltaHat[b], nil)
		dVar := stat.Variance(deltaHat[b], nil)
		if dVar <= 0 {
			dVar = 1e-8
		}
		priors[b] = prior{
			gammaBar: gBar,
			tau2:     tau2,
			lambda:   (2*dVar + dBar*dBar) / dVar,
			theta:    (dBar*dVar + dBar*dBar*dBar) / dVar,
		}
	}

	// Shrink, adjust, and de-standardize. Probes are independent.
	var eg errgroup.Group
	eg.SetLimit(workers)
	chunk := (nProbes + workers - 1) / workers
	for lo := 0; lo < nProbes; lo += chunk {
		hi := lo + chunk
		if hi > nProbes {
			hi = nProbes
		}
		lo := lo
		eg.Go(func() error {
			for g := lo; g < hi; g++ {
				for _, b := range names {
					cols := byBatch[b]
					nb := float64(len(cols))
					pr := priors[b]
					gh := gammaHat[b][g]
					dh := deltaHat[b][g]

					gammaStar := (nb*pr.tau2*gh + dh*pr.gammaBar) / (nb*pr.tau2 + dh)

					var ss float64
					for _, j := range cols {
						d := z[g][j] - gammaStar
						ss += d * d
					}
					deltaStar := (pr.theta + 0.5*ss) / (nb/2 + pr.lambda - 1)
					if deltaStar <= 0 {
						deltaStar = dh
					}

					scale := pooledSD[g] / math.Sqrt(deltaStar)
					for _, j := range cols {
						m[g][j] = scale*(z[g][j]-gammaStar) + grand[g]
					}
				}
			}
			return nil
		})
	}
	_ = eg.Wait()
}

package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LRTResult holds the outcome of a per-feature likelihood-ratio test.
type LRTResult struct {
	// Coef is the fitted coefficient of the tested covariate
	// (log2 fold change when the response is log2 scale).
	Coef float64
	// LR is the likelihood-ratio statistic of full vs. reduced model.
	LR float64
	// P is the chi-squared upper-tail probability of LR.
	P float64
}

// FitLRT fits the response y under the full and reduced design by weighted
// least squares and tests the last full-model coefficient with a
// likelihood-ratio test (Gaussian working likelihood, chi-squared reference
// distribution). Weights may be nil for an unweighted fit. The QR solve is
// delegated to gonum.
func FitLRT(y, weights []float64, d *Design) (LRTResult, error) {
	n, pFull := d.Full.Dims()
	if len(y) != n {
		return LRTResult{}, fmt.Errorf("lrt: response has %d values, design has %d rows", len(y), n)
	}
	if weights != nil && len(weights) != n {
		return LRTResult{}, fmt.Errorf("lrt: %d weights for %d observations", len(weights), n)
	}

	coefFull, rssFull, err := solveWLS(d.Full, y, weights)
	if err != nil {
		return LRTResult{}, fmt.Errorf("lrt: full model: %w", err)
	}
	_, rssReduced, err := solveWLS(d.Reduced, y, weights)
	if err != nil {
		return LRTResult{}, fmt.Errorf("lrt: reduced model: %w", err)
	}

	// LR under a Gaussian working likelihood: n * log(RSS0/RSS1).
	const floor = 1e-12
	if rssFull < floor {
		rssFull = floor
	}
	if rssReduced < rssFull {
		rssReduced = rssFull
	}
	lr := float64(n) * math.Log(rssReduced/rssFull)

	chi := distuv.ChiSquared{K: float64(d.DF())}
	return LRTResult{
		Coef: coefFull[pFull-1],
		LR:   lr,
		P:    chi.Survival(lr),
	}, nil
}

// solveWLS solves min ||W^(1/2)(Xb - y)|| and returns the coefficients and
// the weighted residual sum of squares.
func solveWLS(x *mat.Dense, y, weights []float64) ([]float64, float64, error) {
	n, p := x.Dims()

	xw := x
	yw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		yw.SetVec(i, y[i])
	}
	if weights != nil {
		xw = mat.NewDense(n, p, nil)
		for i := 0; i < n; i++ {
			sw := math.Sqrt(weights[i])
			for j := 0; j < p; j++ {
				xw.Set(i, j, x.At(i, j)*sw)
			}
			yw.SetVec(i, y[i]*sw)
		}
	}

	var qr mat.QR
	qr.Factorize(xw)

	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, yw); err != nil {
		return nil, 0, err
	}

	coef := make([]float64, p)
	for j := 0; j < p; j++ {
		coef[j] = sol.At(j, 0)
	}

	var rss float64
	for i := 0; i < n; i++ {
		var fit float64
		for j := 0; j < p; j++ {
			fit += xw.At(i, j) * coef[j]
		}
		r := yw.AtVec(i) - fit
		rss += r * r
	}
	return coef, rss, nil
}

package expr

import (
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ebareke/cedernaes2018-analysis/internal/annot"
	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
	"github.com/ebareke/cedernaes2018-analysis/internal/stats"
)

// ModelSpec names the covariates of the paired design: Blocking is the
// subject factor absorbed by the model, Tested the condition whose effect
// the likelihood-ratio test measures. Contrast optionally names the factor
// level treated as the tested level.
type ModelSpec struct {
	Blocking string
	Tested   string
	Contrast string
}

// Engine fits a paired model per gene and reports fold change and
// significance. Numerics are delegated to the stats package (gonum
// underneath); the engine itself is orchestration and is fully
// deterministic.
type Engine struct {
	// MaxP drops genes whose raw p-value exceeds it. The default 1
	// retains every tested gene.
	MaxP float64
	// Workers bounds the per-gene fan-out; 0 means GOMAXPROCS.
	Workers int

	logger *zap.Logger
}

// NewEngine creates an engine retaining all tested genes.
func NewEngine() *Engine {
	return &Engine{MaxP: 1, logger: zap.NewNop()}
}

// SetLogger sets the logger for progress and warning messages.
func (e *Engine) SetLogger(l *zap.Logger) {
	e.logger = l
}

// Run tests every gene of the filtered, tissue-restricted matrix under the
// paired design. Samples of the matrix and table must already be aligned;
// misalignment is fatal before any fitting. The lookup may be nil, in which
// case annotation fields stay nil.
func (e *Engine) Run(m *dataset.CountMatrix, samples *dataset.SampleTable, spec ModelSpec, lookup annot.Lookup) ([]Result, error) {
	aligned, err := samples.Align(m.Samples)
	if err != nil {
		return nil, fmt.Errorf("differential expression: %w", err)
	}

	block, err := aligned.Covariates(spec.Blocking)
	if err != nil {
		return nil, fmt.Errorf("differential expression: blocking covariate: %w", err)
	}
	tested, err := aligned.Covariates(spec.Tested)
	if err != nil {
		return nil, fmt.Errorf("differential expression: tested covariate: %w", err)
	}

	design, err := stats.PairedDesign(block, tested, spec.Contrast)
	if err != nil {
		return nil, fmt.Errorf("differential expression: %w", err)
	}

	// Library-size normalization.
	lib := m.LibrarySizes()
	factors, err := stats.TMMFactors(m.Rows(), lib)
	if err != nil {
		return nil, fmt.Errorf("differential expression: normalization: %w", err)
	}
	effLib := make([]float64, len(lib))
	for s := range lib {
		effLib[s] = lib[s] * factors[s]
	}

	// Common -> trended -> tagwise dispersion.
	disp := stats.EstimateDispersions(m.Rows(), effLib)
	e.logger.Info("dispersion estimated",
		zap.Float64("common", disp.Common),
		zap.Int("genes", len(m.Genes)))

	// Genes are fitted in parallel chunks; output position depends only
	// on gene index, so the result order is deterministic.
	cpm := m.CPM(effLib)
	counts := m.Rows()
	results := make([]Result, len(m.Genes))
	pvals := make([]float64, len(m.Genes))

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (len(m.Genes) + workers - 1) / workers
	for lo := 0; lo < len(m.Genes); lo += chunk {
		hi := lo + chunk
		if hi > len(m.Genes) {
			hi = len(m.Genes)
		}
		lo := lo
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				y := make([]float64, len(cpm[i]))
				for s, v := range cpm[i] {
					y[s] = math.Log2(v + 0.5)
				}
				w := nbWeights(counts[i], disp.Tagwise[i])

				fit, err := stats.FitLRT(y, w, design)
				if err != nil {
					return fmt.Errorf("differential expression: gene %s: %w", m.Genes[i], err)
				}

				var meanCPM float64
				for _, v := range cpm[i] {
					meanCPM += v
				}
				meanCPM /= float64(len(cpm[i]))

				results[i] = Result{
					GeneID: m.Genes[i],
					LogFC:  fit.Coef,
					LogCPM: math.Log2(meanCPM + 0.5),
					LR:     fit.LR,
					PValue: fit.P,
				}
				pvals[i] = fit.P
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, q := range stats.BenjaminiHochberg(pvals) {
		results[i].FDR = q
	}

	if e.MaxP < 1 {
		kept := results[:0]
		for _, r := range results {
			if r.PValue <= e.MaxP {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	if lookup != nil {
		for i := range results {
			if gi, ok := lookup.Get(results[i].GeneID); ok {
				name, entrez := gi.Name, gi.Entrez
				results[i].GeneName = &name
				if entrez != "" {
					results[i].EntrezID = &entrez
				}
			}
		}
	}

	SortByPValue(results)
	return results, nil
}

// nbWeights derives observation weights from the negative-binomial
// mean-variance relation, using the observed count as the working mean.
func nbWeights(counts []float64, phi float64) []float64 {
	w := make([]float64, len(counts))
	for i, c := range counts {
		mu := c + 0.5
		w[i] = mu / (1 + phi*mu)
	}
	return w
}

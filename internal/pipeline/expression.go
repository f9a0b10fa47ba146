package pipeline

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ebareke/cedernaes2018-analysis/internal/annot"
	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
	"github.com/ebareke/cedernaes2018-analysis/internal/expr"
	"github.com/ebareke/cedernaes2018-analysis/internal/geneset"
	"github.com/ebareke/cedernaes2018-analysis/internal/report"
	"github.com/ebareke/cedernaes2018-analysis/internal/store"
)

// RunExpression executes the differential-expression pipeline once per
// tissue. A failing tissue is logged and skipped so its siblings still
// complete; the combined error is returned at the end.
func RunExpression(cfg ExpressionConfig, logger *zap.Logger) error {
	counts, err := dataset.LoadCountMatrix(cfg.CountsPath)
	if err != nil {
		return fmt.Errorf("loading counts: %w", err)
	}
	samples, err := dataset.LoadSampleTable(cfg.SamplesPath)
	if err != nil {
		return fmt.Errorf("loading samples: %w", err)
	}
	lookup, err := annot.LoadTable(cfg.AnnotationPath)
	if err != nil {
		return fmt.Errorf("loading annotation: %w", err)
	}
	collections, err := loadCollections(cfg.GeneSets)
	if err != nil {
		return err
	}

	var archive *store.Store
	if cfg.ArchivePath != "" {
		archive, err = store.Open(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()
	}

	byTissue := samples.SplitByTissue()
	var errs []error
	for _, tissue := range samples.Tissues() {
		log := logger.With(zap.String("tissue", tissue))
		if err := runExpressionTissue(cfg, tissue, counts, byTissue[tissue], lookup, collections, archive, log); err != nil {
			log.Error("tissue failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("tissue %s: %w", tissue, err))
		}
	}
	return errors.Join(errs...)
}

func runExpressionTissue(cfg ExpressionConfig, tissue string, counts *dataset.CountMatrix, samples *dataset.SampleTable,
	lookup *annot.Table, collections []*geneset.Collection, archive *store.Store, log *zap.Logger) error {

	outDir := filepath.Join(cfg.OutputDir, tissue)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	m, err := counts.SubsetSamples(samples.IDs())
	if err != nil {
		return err
	}
	log.Info("counts loaded", zap.Int("genes", len(m.Genes)), zap.Int("samples", len(m.Samples)))

	m = expr.FilterProteinCoding(m, lookup)
	m = expr.FilterByExpression(m, cfg.Filter)
	log.Info("filters applied", zap.Int("genes", len(m.Genes)))

	engine := expr.NewEngine()
	engine.MaxP = cfg.MaxP
	engine.Workers = cfg.Workers
	engine.SetLogger(log)
	results, err := engine.Run(m, samples, cfg.Model, lookup)
	if err != nil {
		return err
	}
	log.Info("model fitted", zap.Int("results", len(results)))

	if err := writeFile(filepath.Join(outDir, "expression_results.tsv"), func(f *os.File) error {
		dw := report.NewDEWriter(f)
		if err := dw.WriteAll(results); err != nil {
			return err
		}
		return dw.Flush()
	}); err != nil {
		return err
	}

	up, down := splitByDirection(results, cfg.ListFDR)
	if err := writeFile(filepath.Join(outDir, "genes_up.txt"), func(f *os.File) error {
		return report.WriteGeneList(f, up)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "genes_down.txt"), func(f *os.File) error {
		return report.WriteGeneList(f, down)
	}); err != nil {
		return err
	}

	scores := geneset.ScoreGenes(results, cfg.RankMeasure)
	for _, coll := range collections {
		dir := geneset.TestCollection(scores, coll)
		if cfg.Permutations > 0 {
			rng := rand.New(rand.NewSource(cfg.Seed))
			geneset.PermutationPValues(&dir, scores, cfg.Permutations, rng)
		}
		if err := writeEnrichment(outDir, coll.Name, dir, cfg.TopFDR); err != nil {
			return err
		}
	}

	if err := writeFile(filepath.Join(outDir, "library_sizes.tsv"), func(f *os.File) error {
		return report.WriteCountQC(f, m)
	}); err != nil {
		return err
	}

	if archive != nil {
		if err := archive.WriteExpressionResults(cfg.Run, tissue, results); err != nil {
			return fmt.Errorf("archiving results: %w", err)
		}
	}
	return nil
}

// writeEnrichment emits both directional views of one collection plus the
// thresholded summaries: one at the configured ceiling, one at the stricter
// reporting ceiling.
func writeEnrichment(outDir, name string, dir geneset.DirectionalResult, topFDR float64) error {
	views := []struct {
		suffix string
		sets   []geneset.SetStat
	}{
		{"up", dir.Greater},
		{"down", dir.Less},
	}
	for _, v := range views {
		suffix, sets := v.suffix, v.sets
		top := geneset.TopSets(sets, geneset.TopParams{MaxFDR: topFDR, NameLen: 50})
		path := filepath.Join(outDir, fmt.Sprintf("enrichment_%s_%s.tsv", name, suffix))
		if err := writeFile(path, func(f *os.File) error {
			return report.WriteTopSets(f, top)
		}); err != nil {
			return err
		}
		strict := geneset.TopSets(sets, geneset.TopParams{MaxFDR: strictTopFDR, NameLen: 50})
		path = filepath.Join(outDir, fmt.Sprintf("enrichment_%s_%s_top.tsv", name, suffix))
		if err := writeFile(path, func(f *os.File) error {
			return report.WriteTopSets(f, strict)
		}); err != nil {
			return err
		}
	}
	return nil
}

// splitByDirection returns the up- and down-regulated gene identifiers at
// the given adjusted ceiling, in result order.
func splitByDirection(results []expr.Result, maxFDR float64) (up, down []string) {
	up = []string{}
	down = []string{}
	for _, r := range results {
		if r.FDR > maxFDR {
			continue
		}
		if r.LogFC > 0 {
			up = append(up, r.GeneID)
		} else if r.LogFC < 0 {
			down = append(down, r.GeneID)
		}
	}
	return up, down
}

func loadCollections(sources []GeneSetSource) ([]*geneset.Collection, error) {
	colls := make([]*geneset.Collection, 0, len(sources))
	for _, src := range sources {
		c, err := geneset.LoadGMT(src.Name, src.Path)
		if err != nil {
			return nil, fmt.Errorf("loading gene sets %s: %w", src.Name, err)
		}
		colls = append(colls, c)
	}
	return colls, nil
}

func writeFile(path string, fn func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

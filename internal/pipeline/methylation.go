package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ebareke/cedernaes2018-analysis/internal/annot"
	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
	"github.com/ebareke/cedernaes2018-analysis/internal/geneset"
	"github.com/ebareke/cedernaes2018-analysis/internal/meth"
	"github.com/ebareke/cedernaes2018-analysis/internal/report"
	"github.com/ebareke/cedernaes2018-analysis/internal/store"
)

// RunMethylation executes the differential-methylation pipeline once per
// tissue, with the same failure isolation as RunExpression.
func RunMethylation(cfg MethylationConfig, logger *zap.Logger) error {
	probes, err := meth.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	samples, err := dataset.LoadSampleTable(cfg.SamplesPath)
	if err != nil {
		return fmt.Errorf("loading samples: %w", err)
	}
	arrays, err := meth.LoadArrays(probes, cfg.IntensityDir, samples)
	if err != nil {
		return fmt.Errorf("loading arrays: %w", err)
	}
	tss, err := annot.LoadTSS(cfg.TSSPath)
	if err != nil {
		return fmt.Errorf("loading TSS positions: %w", err)
	}
	features, err := meth.LoadFeatures(cfg.FeaturesPath)
	if err != nil {
		return fmt.Errorf("loading features: %w", err)
	}
	lookup, err := annot.LoadTable(cfg.AnnotationPath)
	if err != nil {
		return fmt.Errorf("loading annotation: %w", err)
	}
	annotator, err := meth.NewAnnotator(tss, features, meth.DefaultPrecedence, cfg.MaxTSSDist)
	if err != nil {
		return err
	}
	collections, err := loadCollections(cfg.GeneSets)
	if err != nil {
		return err
	}

	normParams := cfg.Normalize
	if cfg.ExcludeListPath != "" {
		excluded, err := loadProbeList(cfg.ExcludeListPath)
		if err != nil {
			return fmt.Errorf("loading exclusion list: %w", err)
		}
		normParams.ExcludeProbes = excluded
	}

	var archive *store.Store
	if cfg.ArchivePath != "" {
		archive, err = store.Open(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()
	}

	byTissue := arrays.SplitByTissue()
	var errs []error
	for _, tissue := range arrays.Tissues() {
		log := logger.With(zap.String("tissue", tissue))
		if err := runMethylationTissue(cfg, normParams, tissue, byTissue[tissue], annotator, lookup, collections, archive, log); err != nil {
			log.Error("tissue failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("tissue %s: %w", tissue, err))
		}
	}
	return errors.Join(errs...)
}

func runMethylationTissue(cfg MethylationConfig, normParams meth.NormalizeParams, tissue string,
	arrays *meth.ArraySet, annotator *meth.Annotator, lookup annot.Lookup,
	collections []*geneset.Collection, archive *store.Store, log *zap.Logger) error {

	outDir := filepath.Join(cfg.OutputDir, tissue)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	normalizer := meth.NewNormalizer(normParams)
	normalizer.SetLogger(log)
	set, err := normalizer.Run(arrays)
	if err != nil {
		return err
	}
	log.Info("normalization done", zap.Int("probes", len(set.Probes)), zap.Int("samples", len(set.Samples)))

	caller := meth.NewRegionCaller(cfg.Regions)
	caller.SetLogger(log)
	res, err := caller.Call(set, cfg.Model)
	if err != nil {
		return err
	}
	log.Info("regions called", zap.Int("regions", len(res.Regions)), zap.Int("probes", len(res.ProbeResults)))

	annotator.Annotate(res.Regions)

	if err := writeFile(filepath.Join(outDir, "methylation_regions.tsv"), func(f *os.File) error {
		rw := report.NewRegionWriter(f)
		return rw.WriteAll(res.Regions)
	}); err != nil {
		return err
	}
	if res.Empty() {
		// With no regions the per-probe view is the only usable result.
		log.Warn("no significant regions, reporting probe-level results")
		if err := writeFile(filepath.Join(outDir, "methylation_probes.tsv"), func(f *os.File) error {
			return report.WriteProbeResults(f, res.ProbeResults)
		}); err != nil {
			return err
		}
	}

	// Curated collections are keyed by Entrez, so both the hit list and
	// the covered background are converted before testing; genes without a
	// cross-reference drop out silently.
	hits := entrezSet(regionGenes(res.Regions), lookup)
	background := entrezSet(annotator.CoveredGenes(set), lookup)
	log.Info("overrepresentation background", zap.Int("genes", len(background)), zap.Int("hits", len(hits)))
	for _, coll := range collections {
		ora := geneset.Overrepresentation(hits, background, coll, cfg.ORA)
		path := filepath.Join(outDir, fmt.Sprintf("ora_%s.tsv", coll.Name))
		if err := writeFile(path, func(f *os.File) error {
			return report.WriteORAResults(f, ora)
		}); err != nil {
			return err
		}
	}

	if err := report.ExportBetaCSV(filepath.Join(outDir, "betas.csv.gz"), set); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "beta_distribution.tsv"), func(f *os.File) error {
		return report.WriteBetaQC(f, set)
	}); err != nil {
		return err
	}

	if archive != nil {
		if err := archive.WriteRegions(cfg.Run, tissue, res.Regions); err != nil {
			return fmt.Errorf("archiving regions: %w", err)
		}
	}
	return nil
}

// entrezSet converts a gene set to Entrez space through the annotation
// table, dropping unmappable genes.
func entrezSet(genes map[string]bool, lookup annot.Lookup) map[string]bool {
	ids := make([]string, 0, len(genes))
	for g := range genes {
		ids = append(ids, g)
	}
	out := make(map[string]bool, len(ids))
	for _, e := range annot.MapToEntrez(ids, lookup) {
		out[e] = true
	}
	return out
}

// regionGenes collects the distinct genes attached to annotated regions.
func regionGenes(regions []meth.Region) map[string]bool {
	genes := make(map[string]bool)
	for _, r := range regions {
		if r.Genes == "" {
			continue
		}
		for _, g := range strings.Split(r.Genes, ",") {
			genes[g] = true
		}
	}
	return genes
}

// loadProbeList reads one probe identifier per line, ignoring blanks and
// lines starting with '#'.
func loadProbeList(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	probes := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		probes[line] = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return probes, nil
}

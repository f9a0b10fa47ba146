// Package pipeline wires the per-tissue analysis drivers. All knobs enter
// through explicit Config values passed by the CLI; nothing reads ambient
// global state, so two runs in one process cannot interfere.
package pipeline

import (
	"github.com/ebareke/cedernaes2018-analysis/internal/expr"
	"github.com/ebareke/cedernaes2018-analysis/internal/geneset"
	"github.com/ebareke/cedernaes2018-analysis/internal/meth"
)

// Config carries the knobs shared by both pipelines.
type Config struct {
	// OutputDir receives all report artifacts, one subdirectory per tissue.
	OutputDir string
	// Run labels the archive rows for this invocation.
	Run string
	// ArchivePath is the DuckDB run archive; empty disables archiving.
	ArchivePath string
	// Seed drives any resampling sub-step (permutation enrichment).
	Seed int64
	// Workers bounds internal per-probe parallelism; 0 means GOMAXPROCS.
	Workers int
}

// GeneSetSource names one curated collection and its GMT path. Order is
// preserved in reports.
type GeneSetSource struct {
	Name string
	Path string
}

// ExpressionConfig configures the differential-expression pipeline.
type ExpressionConfig struct {
	Config

	CountsPath     string
	SamplesPath    string
	AnnotationPath string
	GeneSets       []GeneSetSource

	Filter expr.FilterParams
	Model  expr.ModelSpec
	// MaxP is the raw significance ceiling for retained genes (1 keeps all).
	MaxP float64
	// ListFDR is the adjusted ceiling for the exported gene lists.
	ListFDR float64
	// RankMeasure selects the enrichment ranking statistic.
	RankMeasure geneset.RankMeasure
	// TopFDR is the driver-level top-set ceiling. The report call site
	// additionally writes a stricter 0.01 view; the two thresholds are
	// independent.
	TopFDR float64
	// Permutations enables seeded permutation p-values when positive.
	Permutations int
}

// MethylationConfig configures the differential-methylation pipeline.
type MethylationConfig struct {
	Config

	ManifestPath   string
	IntensityDir   string
	SamplesPath    string
	AnnotationPath string
	TSSPath        string
	FeaturesPath   string
	// ExcludeListPath is the fetched non-specific probe list; optional.
	ExcludeListPath string
	GeneSets        []GeneSetSource

	Normalize meth.NormalizeParams
	Regions   meth.RegionParams
	Model     meth.ModelSpec
	// MaxTSSDist is the TSS proximity window in base pairs.
	MaxTSSDist int
	ORA        geneset.ORAParams
}

// strictTopFDR is the reporting-site ceiling for the additional "top"
// enrichment view, intentionally independent of ExpressionConfig.TopFDR.
const strictTopFDR = 0.01

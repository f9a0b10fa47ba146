package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ebareke/cedernaes2018-analysis/internal/expr"
	"github.com/ebareke/cedernaes2018-analysis/internal/geneset"
	"github.com/ebareke/cedernaes2018-analysis/internal/pipeline"
)

func newExpressionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expression",
		Short: "Run the differential-expression pipeline",
		Long: `Run the RNA-seq differential-expression pipeline per tissue:
protein-coding and expression filtering, trimmed-mean normalization, a
paired per-gene model with likelihood-ratio tests, adjusted p-values,
annotation join, and directional gene-set enrichment.`,
		Example: `  cedernaes expression --counts counts.tsv.gz --samples samples.csv \
      --annotation genes.tsv --gene-sets go_bp=c5.bp.gmt --output results`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := expressionConfig()
			if err != nil {
				return err
			}
			return pipeline.RunExpression(cfg, logger)
		},
	}

	f := cmd.Flags()
	f.String("counts", "", "gene-by-sample count matrix (TSV/CSV, .gz supported)")
	f.String("samples", "", "sample table CSV {sample, subject, tissue, condition, ...}")
	f.String("annotation", "", "gene annotation table {gene_id, biotype, name, entrez}")
	f.StringSlice("gene-sets", nil, "gene-set collections as name=path.gmt, repeatable")
	f.Float64("min-cpm", 1, "expression filter: CPM a gene must exceed")
	f.Int("min-samples", 5, "expression filter: samples that must exceed min-cpm")
	f.String("blocking", "subject", "blocking covariate of the paired model")
	f.String("tested", "condition", "tested covariate of the paired model")
	f.String("contrast", "", "tested level (default: lexically later level)")
	f.Float64("max-p", 1, "raw p-value ceiling for retained genes")
	f.Float64("list-fdr", 0.05, "adjusted ceiling for the exported gene lists")
	f.String("rank", "signed_logp", "enrichment ranking: logfc or signed_logp")
	f.Float64("top-fdr", 0.05, "adjusted ceiling for the enrichment summaries")
	f.Int("permutations", 0, "permutation count for resampled enrichment p-values (0: analytic only)")

	cmd.MarkFlagRequired("counts")
	cmd.MarkFlagRequired("samples")
	cmd.MarkFlagRequired("annotation")

	return cmd
}

func expressionConfig() (pipeline.ExpressionConfig, error) {
	var cfg pipeline.ExpressionConfig

	sets, err := parseGeneSetSources(viper.GetStringSlice("gene-sets"))
	if err != nil {
		return cfg, err
	}
	measure, err := geneset.ParseRankMeasure(viper.GetString("rank"))
	if err != nil {
		return cfg, err
	}

	cfg = pipeline.ExpressionConfig{
		Config:         sharedConfig(),
		CountsPath:     viper.GetString("counts"),
		SamplesPath:    viper.GetString("samples"),
		AnnotationPath: viper.GetString("annotation"),
		GeneSets:       sets,
		Filter: expr.FilterParams{
			MinCPM:     viper.GetFloat64("min-cpm"),
			MinSamples: viper.GetInt("min-samples"),
		},
		Model: expr.ModelSpec{
			Blocking: viper.GetString("blocking"),
			Tested:   viper.GetString("tested"),
			Contrast: viper.GetString("contrast"),
		},
		MaxP:         viper.GetFloat64("max-p"),
		ListFDR:      viper.GetFloat64("list-fdr"),
		RankMeasure:  measure,
		TopFDR:       viper.GetFloat64("top-fdr"),
		Permutations: viper.GetInt("permutations"),
	}
	return cfg, nil
}

func sharedConfig() pipeline.Config {
	return pipeline.Config{
		OutputDir:   viper.GetString("output"),
		Run:         viper.GetString("run"),
		ArchivePath: viper.GetString("archive"),
		Seed:        viper.GetInt64("seed"),
		Workers:     viper.GetInt("workers"),
	}
}

// parseGeneSetSources parses repeated name=path.gmt specifications,
// preserving order.
func parseGeneSetSources(specs []string) ([]pipeline.GeneSetSource, error) {
	sources := make([]pipeline.GeneSetSource, 0, len(specs))
	for _, spec := range specs {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("malformed gene-set specification %q, want name=path.gmt", spec)
		}
		sources = append(sources, pipeline.GeneSetSource{Name: name, Path: path})
	}
	return sources, nil
}

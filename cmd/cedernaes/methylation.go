package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ebareke/cedernaes2018-analysis/internal/geneset"
	"github.com/ebareke/cedernaes2018-analysis/internal/meth"
	"github.com/ebareke/cedernaes2018-analysis/internal/pipeline"
)

func newMethylationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "methylation",
		Short: "Run the differential-methylation pipeline",
		Long: `Run the methylation array pipeline per tissue: quantile
normalization, detection and probe filtering, batch correction, kernel
smoothed region calling, genomic annotation, and overrepresentation
analysis against the array-covered gene universe.`,
		Example: `  cedernaes methylation --manifest manifest.csv --intensities idat/ \
      --samples samples.csv --tss tss.tsv --features features.tsv \
      --gene-sets go_bp=c5.bp.gmt --output results`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := methylationConfig()
			if err != nil {
				return err
			}
			return pipeline.RunMethylation(cfg, logger)
		},
	}

	f := cmd.Flags()
	f.String("manifest", "", "probe manifest CSV {probe, chrom, pos, snp}")
	f.String("intensities", "", "directory with one <sample>.csv intensity file per sample")
	f.String("samples", "", "sample table CSV {sample, subject, tissue, condition, chip, ...}")
	f.String("tss", "", "transcription start site table {gene, chrom, pos, strand}")
	f.String("features", "", "genomic feature annotation {chrom, start, end, class}")
	f.String("exclude-probes", "", "non-specific probe list, one identifier per line (optional)")
	f.StringSlice("gene-sets", nil, "gene-set collections as name=path.gmt, repeatable")
	f.Float64("detection-p", 0.01, "detection p-value a probe must beat in every sample")
	f.Bool("drop-snps", true, "drop probes overlapping known variants")
	f.String("batch-key", "chip", "sample covariate naming the processing batch")
	f.Bool("batch-correct", true, "apply empirical Bayes batch correction")
	f.Float64("probe-p", 0.05, "per-probe seed p-value for region building")
	f.Float64("min-effect", 0.02, "minimum absolute mean beta difference per region")
	f.Float64("region-p", 0.05, "combined region p-value ceiling")
	f.Int("bandwidth", 1000, "smoothing bandwidth in base pairs")
	f.Float64("scale", 2, "cluster gap as a multiple of the bandwidth")
	f.String("blocking", "subject", "blocking covariate of the paired model")
	f.String("tested", "condition", "tested covariate of the paired model")
	f.String("contrast", "", "tested level (default: lexically later level)")
	f.Int("tss-dist", 5000, "TSS proximity window in base pairs")
	f.Float64("ora-p", 0.01, "overrepresentation p-value ceiling")
	f.Int("ora-min-genes", 3, "minimum overlap for a testable set")

	cmd.MarkFlagRequired("manifest")
	cmd.MarkFlagRequired("intensities")
	cmd.MarkFlagRequired("samples")
	cmd.MarkFlagRequired("tss")
	cmd.MarkFlagRequired("features")

	return cmd
}

func methylationConfig() (pipeline.MethylationConfig, error) {
	var cfg pipeline.MethylationConfig

	sets, err := parseGeneSetSources(viper.GetStringSlice("gene-sets"))
	if err != nil {
		return cfg, err
	}

	shared := sharedConfig()
	cfg = pipeline.MethylationConfig{
		Config:          shared,
		ManifestPath:    viper.GetString("manifest"),
		IntensityDir:    viper.GetString("intensities"),
		SamplesPath:     viper.GetString("samples"),
		TSSPath:         viper.GetString("tss"),
		FeaturesPath:    viper.GetString("features"),
		ExcludeListPath: viper.GetString("exclude-probes"),
		GeneSets:        sets,
		Normalize: meth.NormalizeParams{
			DetectionP:   viper.GetFloat64("detection-p"),
			DropSNPs:     viper.GetBool("drop-snps"),
			BatchCorrect: viper.GetBool("batch-correct"),
			BatchKey:     viper.GetString("batch-key"),
			Workers:      shared.Workers,
		},
		Regions: meth.RegionParams{
			ProbeP:    viper.GetFloat64("probe-p"),
			MinEffect: viper.GetFloat64("min-effect"),
			RegionP:   viper.GetFloat64("region-p"),
			Bandwidth: viper.GetInt("bandwidth"),
			Scale:     viper.GetFloat64("scale"),
			Workers:   shared.Workers,
		},
		Model: meth.ModelSpec{
			Blocking: viper.GetString("blocking"),
			Tested:   viper.GetString("tested"),
			Contrast: viper.GetString("contrast"),
		},
		MaxTSSDist: viper.GetInt("tss-dist"),
		ORA: geneset.ORAParams{
			MaxP:     viper.GetFloat64("ora-p"),
			MinGenes: viper.GetInt("ora-min-genes"),
		},
	}
	return cfg, nil
}

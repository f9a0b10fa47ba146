// Package main provides the cedernaes command-line tool, the batch driver
// for the paired expression and methylation analyses.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cedernaes",
		Short:   "Paired expression and methylation analysis pipelines",
		Version: fmt.Sprintf("%s (%s) built %s", version, commit, date),
		Long: `cedernaes runs two batch pipelines over paired tissue biopsies:

  expression   count filtering, normalization, paired differential
               expression and directional gene-set enrichment
  methylation  array normalization, differentially methylated region
               calling, annotation and overrepresentation analysis

Each pipeline runs once per tissue and writes one report directory per
tissue. Configuration is read from flags, environment variables with the
CEDERNAES_ prefix, and ~/.cedernaes.yaml, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cmd); err != nil {
				return err
			}
			var err error
			if verbose {
				logger, err = zap.NewDevelopment()
			} else {
				logger, err = zap.NewProduction()
			}
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ~/.cedernaes.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose (development) logging")
	pf.String("output", "results", "output directory, one subdirectory per tissue")
	pf.String("archive", "", "DuckDB run archive path (empty disables archiving)")
	pf.String("run", "default", "run label used in the archive")
	pf.Int64("seed", 1, "seed for resampling sub-steps")
	pf.Int("workers", 0, "worker count for parallel sections (0: all CPUs)")

	cmd.AddCommand(newExpressionCmd())
	cmd.AddCommand(newMethylationCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".cedernaes")
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix("CEDERNAES")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config is fine; anything else is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	return viper.BindPFlags(cmd.Flags())
}

// dataDir is where fetched reference files live by default.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cedernaes"
	}
	return filepath.Join(home, ".cedernaes")
}

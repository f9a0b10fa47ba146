package report

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/ebareke/cedernaes2018-analysis/internal/meth"
)

// ExportBetaCSV writes the filtered probe-level beta values as a gzipped
// CSV: one row per probe, one column per sample.
func ExportBetaCSV(path string, set *meth.NormalizedSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create beta export: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)

	header := make([]string, 0, len(set.Samples)+3)
	header = append(header, "probe", "chrom", "pos")
	for _, s := range set.Samples {
		header = append(header, s.ID)
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write beta export header: %w", err)
	}

	row := make([]string, len(header))
	for i, p := range set.Probes {
		row[0] = p.ID
		row[1] = p.Chrom
		row[2] = strconv.Itoa(p.Pos)
		for j := range set.Samples {
			row[3+j] = strconv.FormatFloat(set.Beta[i][j], 'f', 6, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write beta export row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush beta export: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	return nil
}

package report

import (
	"bufio"
	"fmt"
	"io"

	mfstats "github.com/montanaflynn/stats"

	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
	"github.com/ebareke/cedernaes2018-analysis/internal/meth"
)

// WriteCountQC writes per-sample library sizes for the expression pipeline.
func WriteCountQC(w io.Writer, m *dataset.CountMatrix) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("sample\tlibrary_size\n"); err != nil {
		return err
	}
	lib := m.LibrarySizes()
	for j, s := range m.Samples {
		if _, err := fmt.Fprintf(bw, "%s\t%.0f\n", s, lib[j]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteBetaQC writes per-sample beta distribution summaries (min, quartiles,
// max). These are the numbers the study's violin and density plots showed;
// plot rendering itself stays out of scope.
func WriteBetaQC(w io.Writer, set *meth.NormalizedSet) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("sample\tmin\tq25\tmedian\tq75\tmax\n"); err != nil {
		return err
	}
	col := make([]float64, len(set.Probes))
	for j, s := range set.Samples {
		for i := range set.Probes {
			col[i] = set.Beta[i][j]
		}
		min, err := mfstats.Min(col)
		if err != nil {
			return fmt.Errorf("beta QC for %s: %w", s.ID, err)
		}
		q, err := mfstats.Quartile(col)
		if err != nil {
			return fmt.Errorf("beta QC for %s: %w", s.ID, err)
		}
		max, err := mfstats.Max(col)
		if err != nil {
			return fmt.Errorf("beta QC for %s: %w", s.ID, err)
		}
		if _, err := fmt.Fprintf(bw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			s.ID, min, q.Q1, q.Q2, q.Q3, max); err != nil {
			return err
		}
	}
	return bw.Flush()
}

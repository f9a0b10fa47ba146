// Package report writes the pipeline outputs: tab-delimited result tables,
// plain gene lists for web-tool upload, compressed probe-level exports, and
// QC summaries.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ebareke/cedernaes2018-analysis/internal/expr"
	"github.com/ebareke/cedernaes2018-analysis/internal/geneset"
	"github.com/ebareke/cedernaes2018-analysis/internal/meth"
)

// naField renders optional annotation columns: a nil value is an explicit
// NA, never an empty string.
const naField = "NA"

// DEWriter writes differential-expression results in tab-delimited format.
type DEWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewDEWriter creates a differential-expression table writer.
func NewDEWriter(w io.Writer) *DEWriter {
	return &DEWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"gene_id",
			"logFC",
			"logCPM",
			"LR",
			"pvalue",
			"FDR",
			"gene_name",
			"entrez_id",
		},
	}
}

// WriteHeader writes the header line.
func (dw *DEWriter) WriteHeader() error {
	_, err := dw.w.WriteString(strings.Join(dw.columns, "\t") + "\n")
	return err
}

// Write writes one result row.
func (dw *DEWriter) Write(r expr.Result) error {
	name := naField
	if r.GeneName != nil {
		name = *r.GeneName
	}
	entrez := naField
	if r.EntrezID != nil {
		entrez = *r.EntrezID
	}
	_, err := fmt.Fprintf(dw.w, "%s\t%.6g\t%.4f\t%.4f\t%.6g\t%.6g\t%s\t%s\n",
		r.GeneID, r.LogFC, r.LogCPM, r.LR, r.PValue, r.FDR, name, entrez)
	return err
}

// WriteAll writes the header and every row, then flushes.
func (dw *DEWriter) WriteAll(results []expr.Result) error {
	if err := dw.WriteHeader(); err != nil {
		return err
	}
	for _, r := range results {
		if err := dw.Write(r); err != nil {
			return err
		}
	}
	return dw.Flush()
}

// Flush flushes buffered output.
func (dw *DEWriter) Flush() error { return dw.w.Flush() }

// RegionWriter writes called methylation regions in tab-delimited format.
type RegionWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewRegionWriter creates a region table writer.
func NewRegionWriter(w io.Writer) *RegionWriter {
	return &RegionWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"chrom",
			"start",
			"end",
			"n_probes",
			"mean_diff",
			"pvalue",
			"genes",
			"feature",
		},
	}
}

// WriteAll writes the header and every region, then flushes. An empty
// region slice yields a header-only table.
func (rw *RegionWriter) WriteAll(regions []meth.Region) error {
	if _, err := rw.w.WriteString(strings.Join(rw.columns, "\t") + "\n"); err != nil {
		return err
	}
	for _, r := range regions {
		if _, err := fmt.Fprintf(rw.w, "%s\t%d\t%d\t%d\t%.6g\t%.6g\t%s\t%s\n",
			r.Chrom, r.Start, r.End, r.Probes, r.MeanDiff, r.PValue, r.Genes, r.Feature); err != nil {
			return err
		}
	}
	return rw.w.Flush()
}

// WriteProbeResults writes the per-probe fallback view.
func WriteProbeResults(w io.Writer, results []meth.ProbeResult) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("probe\tchrom\tpos\tdiff\tpvalue\tFDR\n"); err != nil {
		return err
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%.6g\t%.6g\t%.6g\n",
			r.Probe, r.Chrom, r.Pos, r.Diff, r.PValue, r.FDR); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteTopSets writes a display-ready enrichment table.
func WriteTopSets(w io.Writer, sets []geneset.TopSet) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("set\tsize\tscore\tFDR\n"); err != nil {
		return err
	}
	for _, s := range sets {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%.2f\t%g\n", s.Set, s.Size, s.Score, s.FDR); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteORAResults writes one overrepresentation result collection.
func WriteORAResults(w io.Writer, results []geneset.ORAResult) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("set\toverlap\tset_size\tbackground\tpvalue\tFDR\tgenes\n"); err != nil {
		return err
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%d\t%d\t%.6g\t%.6g\t%s\n",
			r.Set, r.Overlap, r.SetSize, r.Background, r.PValue, r.FDR, strings.Join(r.Genes, ",")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Package dataset provides loading and alignment of the study inputs: the
// gene-by-sample count matrix and the sample/phenotype sheet.
package dataset

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// CountMatrix is a gene × sample matrix of raw read counts. Gene identifiers
// are unique; values are non-negative integers (held as float64 for the
// downstream numerics).
type CountMatrix struct {
	Genes   []string
	Samples []string
	counts  [][]float64 // genes × samples
	geneIdx map[string]int
}

// NewCountMatrix builds a matrix from parallel slices. Rows of counts follow
// the order of genes; each row follows the order of samples.
func NewCountMatrix(genes, samples []string, counts [][]float64) (*CountMatrix, error) {
	if len(counts) != len(genes) {
		return nil, fmt.Errorf("count matrix: %d rows for %d genes", len(counts), len(genes))
	}
	idx := make(map[string]int, len(genes))
	for i, g := range genes {
		if _, dup := idx[g]; dup {
			return nil, fmt.Errorf("count matrix: duplicate gene identifier %q", g)
		}
		idx[g] = i
		if len(counts[i]) != len(samples) {
			return nil, fmt.Errorf("count matrix: gene %q has %d values for %d samples", g, len(counts[i]), len(samples))
		}
		for j, v := range counts[i] {
			if v < 0 || v != math.Trunc(v) {
				return nil, fmt.Errorf("count matrix: gene %q sample %q: count %v is not a non-negative integer", g, samples[j], v)
			}
		}
	}
	return &CountMatrix{Genes: genes, Samples: samples, counts: counts, geneIdx: idx}, nil
}

// LoadCountMatrix reads a delimited count matrix. The first column holds
// gene identifiers, the header row holds sample identifiers. Tab and comma
// delimiters are auto-detected from the header; .gz files are decompressed.
func LoadCountMatrix(path string) (*CountMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open count matrix: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("count matrix %s: empty file", path)
	}
	header := scanner.Text()
	sep := "\t"
	if !strings.Contains(header, "\t") && strings.Contains(header, ",") {
		sep = ","
	}
	fields := strings.Split(header, sep)
	if len(fields) < 2 {
		return nil, fmt.Errorf("count matrix %s: header has no sample columns", path)
	}
	samples := fields[1:]

	var genes []string
	var counts [][]float64
	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) != len(samples)+1 {
			return nil, fmt.Errorf("count matrix %s line %d: %d fields, want %d", path, lineNum, len(fields), len(samples)+1)
		}
		row := make([]float64, len(samples))
		for j, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("count matrix %s line %d: bad count %q: %w", path, lineNum, s, err)
			}
			row[j] = v
		}
		genes = append(genes, fields[0])
		counts = append(counts, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read count matrix: %w", err)
	}

	return NewCountMatrix(genes, samples, counts)
}

// Counts returns the raw count row for a gene and whether the gene exists.
func (m *CountMatrix) Counts(gene string) ([]float64, bool) {
	i, ok := m.geneIdx[gene]
	if !ok {
		return nil, false
	}
	return m.counts[i], true
}

// Rows exposes the underlying genes × samples values. Callers must not
// mutate the returned slices.
func (m *CountMatrix) Rows() [][]float64 { return m.counts }

// LibrarySizes returns the per-sample column sums.
func (m *CountMatrix) LibrarySizes() []float64 {
	lib := make([]float64, len(m.Samples))
	for _, row := range m.counts {
		for j, v := range row {
			lib[j] += v
		}
	}
	return lib
}

// CPM returns counts per million for every cell, using the given library
// sizes (raw when effective sizes are not wanted).
func (m *CountMatrix) CPM(libSizes []float64) [][]float64 {
	out := make([][]float64, len(m.counts))
	for i, row := range m.counts {
		r := make([]float64, len(row))
		for j, v := range row {
			if libSizes[j] > 0 {
				r[j] = v / libSizes[j] * 1e6
			}
		}
		out[i] = r
	}
	return out
}

// SubsetGenes returns a matrix restricted to the listed genes, preserving
// the receiver's row order. Unknown genes are ignored.
func (m *CountMatrix) SubsetGenes(keep map[string]bool) *CountMatrix {
	var genes []string
	var counts [][]float64
	for i, g := range m.Genes {
		if keep[g] {
			genes = append(genes, g)
			counts = append(counts, m.counts[i])
		}
	}
	sub, _ := NewCountMatrix(genes, m.Samples, counts)
	return sub
}

// SubsetSamples returns a matrix holding only the named sample columns, in
// the order given. Unknown sample identifiers are an error: the caller's
// sample sheet and the matrix must agree.
func (m *CountMatrix) SubsetSamples(samples []string) (*CountMatrix, error) {
	colIdx := make(map[string]int, len(m.Samples))
	for j, s := range m.Samples {
		colIdx[s] = j
	}
	cols := make([]int, len(samples))
	for i, s := range samples {
		j, ok := colIdx[s]
		if !ok {
			return nil, fmt.Errorf("count matrix: sample %q not present", s)
		}
		cols[i] = j
	}
	counts := make([][]float64, len(m.counts))
	for i, row := range m.counts {
		r := make([]float64, len(cols))
		for k, j := range cols {
			r[k] = row[j]
		}
		counts[i] = r
	}
	return NewCountMatrix(append([]string(nil), m.Genes...), append([]string(nil), samples...), counts)
}

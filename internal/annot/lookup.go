// Package annot provides gene annotation lookup shared by both pipelines:
// biotype, display name and Entrez cross-reference per stable gene
// identifier, plus transcription start site coordinates.
package annot

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// GeneInfo holds the annotation attached to one gene identifier.
type GeneInfo struct {
	Biotype string
	Name    string
	Entrez  string
}

// Lookup resolves a stable gene identifier to its annotation.
type Lookup interface {
	Get(geneID string) (GeneInfo, bool)
}

// Table is an in-memory annotation table loaded from a snapshot file or the
// REST service. It implements Lookup.
type Table struct {
	info map[string]GeneInfo
}

// NewTable collapses candidate annotations per identifier: candidates are
// sorted lexicographically by (biotype, name, entrez) and the first is
// retained. One-to-many external mappings are expected, not an error.
func NewTable(candidates map[string][]GeneInfo) *Table {
	info := make(map[string]GeneInfo, len(candidates))
	for id, cands := range candidates {
		if len(cands) == 0 {
			continue
		}
		sorted := append([]GeneInfo(nil), cands...)
		sort.Slice(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			if a.Biotype != b.Biotype {
				return a.Biotype < b.Biotype
			}
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.Entrez < b.Entrez
		})
		info[id] = sorted[0]
	}
	return &Table{info: info}
}

// Get returns the annotation for a gene identifier.
func (t *Table) Get(geneID string) (GeneInfo, bool) {
	gi, ok := t.info[geneID]
	return gi, ok
}

// Len returns the number of annotated identifiers.
func (t *Table) Len() int { return len(t.info) }

// IDs returns all annotated identifiers, sorted.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.info))
	for id := range t.info {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProteinCoding reports whether the identifier is annotated as a
// protein-coding gene.
func (t *Table) ProteinCoding(geneID string) bool {
	gi, ok := t.info[geneID]
	return ok && gi.Biotype == "protein_coding"
}

// LoadTable reads an annotation snapshot: tab-delimited
// {gene_id, biotype, name, entrez}, optional header, .gz supported.
// Duplicate identifiers collapse by the NewTable rule.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotation snapshot: %w", err)
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

	candidates := make(map[string][]GeneInfo)
	scanner := bufio.NewScanner(reader)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if lineNum == 1 && strings.EqualFold(fields[0], "gene_id") {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("annotation snapshot %s line %d: %d fields, want 4", path, lineNum, len(fields))
		}
		candidates[fields[0]] = append(candidates[fields[0]], GeneInfo{
			Biotype: fields[1],
			Name:    fields[2],
			Entrez:  fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read annotation snapshot: %w", err)
	}
	return NewTable(candidates), nil
}

// MapToEntrez converts gene identifiers to Entrez identifiers through the
// table. Unmappable identifiers are silently dropped; the result is
// deduplicated and sorted.
func MapToEntrez(geneIDs []string, lookup Lookup) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range geneIDs {
		gi, ok := lookup.Get(id)
		if !ok || gi.Entrez == "" {
			continue
		}
		if !seen[gi.Entrez] {
			seen[gi.Entrez] = true
			out = append(out, gi.Entrez)
		}
	}
	sort.Strings(out)
	return out
}

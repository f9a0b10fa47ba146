// Package geneset implements gene-set enrichment: the curated collection
// loader, the directional mean-rank test used on expression results, and
// Fisher overrepresentation testing used on methylation results.
package geneset

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Collection is a read-only mapping from gene-set name to member gene
// identifiers, loaded once and reused across enrichment calls.
type Collection struct {
	Name string
	sets map[string][]string
}

// NewCollection builds a collection from raw memberships. Members are
// deduplicated and sorted per set.
func NewCollection(name string, sets map[string][]string) *Collection {
	clean := make(map[string][]string, len(sets))
	for set, members := range sets {
		seen := make(map[string]bool, len(members))
		var m []string
		for _, g := range members {
			if g != "" && !seen[g] {
				seen[g] = true
				m = append(m, g)
			}
		}
		sort.Strings(m)
		clean[set] = m
	}
	return &Collection{Name: name, sets: clean}
}

// LoadGMT reads a gene-set collection in GMT format: one set per line,
// tab-delimited {name, description, member...}. .gz supported.
func LoadGMT(name, path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gene set collection: %w", err)
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

	sets := make(map[string][]string)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("gene set collection %s line %d: %d fields, want at least 3", path, lineNum, len(fields))
		}
		sets[fields[0]] = fields[2:]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gene set collection: %w", err)
	}
	return NewCollection(name, sets), nil
}

// SetNames returns all set names, sorted.
func (c *Collection) SetNames() []string {
	names := make([]string, 0, len(c.sets))
	for n := range c.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Members returns the member genes of a set.
func (c *Collection) Members(set string) []string {
	return c.sets[set]
}

// Len returns the number of sets.
func (c *Collection) Len() int { return len(c.sets) }

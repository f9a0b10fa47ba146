package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Well-known sample sheet columns. Any further columns are kept as extra
// covariates (chip, position, and similar batch identifiers).
const (
	ColSample    = "sample"
	ColSubject   = "subject"
	ColTissue    = "tissue"
	ColCondition = "condition"
)

// Sample is one row of the phenotype sheet.
type Sample struct {
	ID        string
	Subject   string
	Tissue    string
	Condition string
	Extra     map[string]string
}

// Covariate returns the named covariate value. Well-known names resolve to
// the struct fields; anything else is looked up among the extra columns.
func (s *Sample) Covariate(name string) (string, bool) {
	switch strings.ToLower(name) {
	case ColSample:
		return s.ID, true
	case ColSubject:
		return s.Subject, true
	case ColTissue:
		return s.Tissue, true
	case ColCondition:
		return s.Condition, true
	}
	v, ok := s.Extra[strings.ToLower(name)]
	return v, ok
}

// SampleTable is an ordered phenotype sheet with unique sample identifiers.
type SampleTable struct {
	Samples []Sample
	index   map[string]int
}

// NewSampleTable validates identifier uniqueness and builds the lookup index.
func NewSampleTable(samples []Sample) (*SampleTable, error) {
	idx := make(map[string]int, len(samples))
	for i, s := range samples {
		if s.ID == "" {
			return nil, fmt.Errorf("sample table: row %d has no sample identifier", i+1)
		}
		if _, dup := idx[s.ID]; dup {
			return nil, fmt.Errorf("sample table: duplicate sample identifier %q", s.ID)
		}
		idx[s.ID] = i
	}
	return &SampleTable{Samples: samples, index: idx}, nil
}

// LoadSampleTable reads a comma-delimited phenotype sheet. Header names are
// matched case-insensitively; sample, subject, tissue and condition are
// required.
func LoadSampleTable(path string) (*SampleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample sheet: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read sample sheet: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("sample sheet %s: no data rows", path)
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for j, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = j
	}
	for _, req := range []string{ColSample, ColSubject, ColTissue, ColCondition} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("sample sheet %s: missing required column %q", path, req)
		}
	}

	samples := make([]Sample, 0, len(records)-1)
	for _, rec := range records[1:] {
		s := Sample{
			ID:        rec[col[ColSample]],
			Subject:   rec[col[ColSubject]],
			Tissue:    rec[col[ColTissue]],
			Condition: rec[col[ColCondition]],
		}
		for name, j := range col {
			switch name {
			case ColSample, ColSubject, ColTissue, ColCondition:
				continue
			}
			if s.Extra == nil {
				s.Extra = make(map[string]string)
			}
			s.Extra[name] = rec[j]
		}
		samples = append(samples, s)
	}
	return NewSampleTable(samples)
}

// Get returns the sample with the given identifier.
func (t *SampleTable) Get(id string) (Sample, bool) {
	i, ok := t.index[id]
	if !ok {
		return Sample{}, false
	}
	return t.Samples[i], true
}

// IDs returns the sample identifiers in table order.
func (t *SampleTable) IDs() []string {
	ids := make([]string, len(t.Samples))
	for i, s := range t.Samples {
		ids[i] = s.ID
	}
	return ids
}

// Covariates returns the named covariate for every sample, in table order.
func (t *SampleTable) Covariates(name string) ([]string, error) {
	out := make([]string, len(t.Samples))
	for i := range t.Samples {
		v, ok := t.Samples[i].Covariate(name)
		if !ok {
			return nil, fmt.Errorf("sample table: sample %q has no covariate %q", t.Samples[i].ID, name)
		}
		out[i] = v
	}
	return out, nil
}

// Align checks that ids and the table rows agree as identifier sets and
// returns a table reordered to match ids. Any mismatch is fatal: the caller
// must not fit models against misaligned columns.
func (t *SampleTable) Align(ids []string) (*SampleTable, error) {
	if len(ids) != len(t.Samples) {
		return nil, fmt.Errorf("sample alignment: %d matrix columns vs %d sheet rows", len(ids), len(t.Samples))
	}
	ordered := make([]Sample, len(ids))
	for i, id := range ids {
		s, ok := t.Get(id)
		if !ok {
			return nil, fmt.Errorf("sample alignment: matrix column %q not found in sample sheet", id)
		}
		ordered[i] = s
	}
	return NewSampleTable(ordered)
}

// SplitByTissue partitions the table by tissue. Map iteration must not feed
// output order; use the sorted Tissues helper when iterating.
func (t *SampleTable) SplitByTissue() map[string]*SampleTable {
	byTissue := make(map[string][]Sample)
	for _, s := range t.Samples {
		byTissue[s.Tissue] = append(byTissue[s.Tissue], s)
	}
	out := make(map[string]*SampleTable, len(byTissue))
	for tissue, samples := range byTissue {
		sub, _ := NewSampleTable(samples)
		out[tissue] = sub
	}
	return out
}

// Tissues returns the distinct tissue names in sorted order.
func (t *SampleTable) Tissues() []string {
	seen := make(map[string]bool)
	var tissues []string
	for _, s := range t.Samples {
		if !seen[s.Tissue] {
			seen[s.Tissue] = true
			tissues = append(tissues, s.Tissue)
		}
	}
	sort.Strings(tissues)
	return tissues
}

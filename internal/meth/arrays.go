// Package meth implements the differential-methylation pipeline: raw array
// loading, normalization and batch correction, region calling, and genomic
// annotation of called regions.
package meth

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ebareke/cedernaes2018-analysis/internal/dataset"
)

// Probe is one array probe with its genomic mapping.
type Probe struct {
	ID    string
	Chrom string
	Pos   int
	// SNP marks probes overlapping a known polymorphism.
	SNP bool
}

// ArraySet holds raw per-probe intensities for a set of samples. Matrices
// are probes × samples, aligned with Probes and Samples.
type ArraySet struct {
	Probes  []Probe
	Samples []dataset.Sample
	Meth    [][]float64
	Unmeth  [][]float64
	DetP    [][]float64
}

// LoadManifest reads the probe manifest CSV {probe, chrom, pos, snp}.
func LoadManifest(path string) ([]Probe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open probe manifest: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read probe manifest: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("probe manifest %s: no data rows", path)
	}

	probes := make([]Probe, 0, len(records)-1)
	seen := make(map[string]bool, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 4 {
			return nil, fmt.Errorf("probe manifest %s row %d: %d fields, want 4", path, i+2, len(rec))
		}
		if seen[rec[0]] {
			return nil, fmt.Errorf("probe manifest %s: duplicate probe %q", path, rec[0])
		}
		seen[rec[0]] = true
		pos, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("probe manifest %s row %d: bad position %q: %w", path, i+2, rec[2], err)
		}
		probes = append(probes, Probe{
			ID:    rec[0],
			Chrom: rec[1],
			Pos:   pos,
			SNP:   strings.EqualFold(rec[3], "true") || rec[3] == "1",
		})
	}
	return probes, nil
}

// LoadArrays reads one intensity CSV per sample from dir
// (<dir>/<sampleID>.csv, columns {probe, meth, unmeth, detection_p}) and
// assembles them against the manifest. Every manifest probe must appear in
// every sample file; samples follow sheet order.
func LoadArrays(probes []Probe, dir string, samples *dataset.SampleTable) (*ArraySet, error) {
	probeIdx := make(map[string]int, len(probes))
	for i, p := range probes {
		probeIdx[p.ID] = i
	}

	set := &ArraySet{
		Probes:  probes,
		Samples: samples.Samples,
		Meth:    newMatrix(len(probes), len(samples.Samples)),
		Unmeth:  newMatrix(len(probes), len(samples.Samples)),
		DetP:    newMatrix(len(probes), len(samples.Samples)),
	}

	for j, s := range samples.Samples {
		path := filepath.Join(dir, s.ID+".csv")
		if err := loadSampleIntensities(path, probeIdx, set, j); err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.ID, err)
		}
	}
	return set, nil
}

func loadSampleIntensities(path string, probeIdx map[string]int, set *ArraySet, col int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open intensity file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("read intensity file: %w", err)
	}

	filled := make([]bool, len(set.Probes))
	for rowNum, rec := range records {
		if rowNum == 0 && strings.EqualFold(rec[0], "probe") {
			continue
		}
		if len(rec) < 4 {
			return fmt.Errorf("%s row %d: %d fields, want 4", path, rowNum+1, len(rec))
		}
		i, ok := probeIdx[rec[0]]
		if !ok {
			// Probe absent from the manifest: not usable downstream.
			continue
		}
		m, err1 := strconv.ParseFloat(rec[1], 64)
		u, err2 := strconv.ParseFloat(rec[2], 64)
		p, err3 := strconv.ParseFloat(rec[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return fmt.Errorf("%s row %d: malformed intensities", path, rowNum+1)
		}
		set.Meth[i][col] = m
		set.Unmeth[i][col] = u
		set.DetP[i][col] = p
		filled[i] = true
	}
	for i, ok := range filled {
		if !ok {
			return fmt.Errorf("%s: manifest probe %s has no reading", path, set.Probes[i].ID)
		}
	}
	return nil
}

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// SplitByTissue partitions the set by sample tissue, keeping probe order.
func (a *ArraySet) SplitByTissue() map[string]*ArraySet {
	byTissue := make(map[string][]int)
	for j, s := range a.Samples {
		byTissue[s.Tissue] = append(byTissue[s.Tissue], j)
	}

	out := make(map[string]*ArraySet, len(byTissue))
	for tissue, cols := range byTissue {
		sub := &ArraySet{
			Probes:  a.Probes,
			Samples: make([]dataset.Sample, len(cols)),
			Meth:    newMatrix(len(a.Probes), len(cols)),
			Unmeth:  newMatrix(len(a.Probes), len(cols)),
			DetP:    newMatrix(len(a.Probes), len(cols)),
		}
		for k, j := range cols {
			sub.Samples[k] = a.Samples[j]
			for i := range a.Probes {
				sub.Meth[i][k] = a.Meth[i][j]
				sub.Unmeth[i][k] = a.Unmeth[i][j]
				sub.DetP[i][k] = a.DetP[i][j]
			}
		}
		out[tissue] = sub
	}
	return out
}

// Tissues returns the distinct sample tissues, sorted.
func (a *ArraySet) Tissues() []string {
	seen := make(map[string]bool)
	var tissues []string
	for _, s := range a.Samples {
		if !seen[s.Tissue] {
			seen[s.Tissue] = true
			tissues = append(tissues, s.Tissue)
		}
	}
	sort.Strings(tissues)
	return tissues
}

// subsetProbes returns a set restricted to the given probe indexes.
func (a *ArraySet) subsetProbes(keep []int) *ArraySet {
	sub := &ArraySet{
		Probes:  make([]Probe, len(keep)),
		Samples: a.Samples,
		Meth:    make([][]float64, len(keep)),
		Unmeth:  make([][]float64, len(keep)),
		DetP:    make([][]float64, len(keep)),
	}
	for k, i := range keep {
		sub.Probes[k] = a.Probes[i]
		sub.Meth[k] = a.Meth[i]
		sub.Unmeth[k] = a.Unmeth[i]
		sub.DetP[k] = a.DetP[i]
	}
	return sub
}

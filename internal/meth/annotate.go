package meth

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/store/interval"

	"github.com/ebareke/cedernaes2018-analysis/internal/annot"
)

// Genomic feature labels. NearTSS is distinguished: whenever a TSS lies
// within the proximity window it overrides any structural classification.
// Intergenic is the implicit fallback for regions matching no feature.
const (
	FeatureNearTSS    = "NearTSS"
	FeatureIntergenic = "Intergenic"
)

// DefaultPrecedence is the tie-breaking order over structural features when
// a region overlaps several.
var DefaultPrecedence = []string{
	"Promoter",
	"ImmediateDownstream",
	"FiveUTR",
	"ThreeUTR",
	"Exon",
	"Intron",
}

// Feature is one annotated genomic feature interval.
type Feature struct {
	Chrom string
	Start int
	End   int
	Class string
}

// LoadFeatures reads a tab-delimited feature annotation
// {chrom, start, end, class}, optional header, .gz supported.
func LoadFeatures(path string) ([]Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feature annotation: %w", err)
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

	var features []Feature
	scanner := bufio.NewScanner(reader)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if lineNum == 1 && strings.EqualFold(fields[0], "chrom") {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("feature annotation %s line %d: %d fields, want 4", path, lineNum, len(fields))
		}
		start, err1 := strconv.Atoi(fields[1])
		end, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("feature annotation %s line %d: malformed coordinates", path, lineNum)
		}
		features = append(features, Feature{Chrom: fields[0], Start: start, End: end, Class: fields[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feature annotation: %w", err)
	}
	return features, nil
}

// featureInterval adapts a Feature to the biogo interval tree.
type featureInterval struct {
	start, end int
	id         uintptr
	class      string
}

func (i featureInterval) Overlap(b interval.IntRange) bool {
	return i.end >= b.Start && i.start <= b.End
}
func (i featureInterval) ID() uintptr { return i.id }
func (i featureInterval) Range() interval.IntRange {
	return interval.IntRange{Start: i.start, End: i.end}
}

// Annotator classifies regions against TSS proximity and structural
// genomic features.
type Annotator struct {
	maxTSSDist int
	precedence map[string]int
	trees      map[string]*interval.IntTree
	classOf    map[uintptr]string
	tssByChrom map[string][]annot.TSS
}

// NewAnnotator builds an annotator. The precedence list is validated up
// front: an unrecognized feature class, in the list or in the annotation,
// is fatal before any region is processed. maxTSSDist is the TSS proximity
// window in base pairs.
func NewAnnotator(tss []annot.TSS, features []Feature, precedence []string, maxTSSDist int) (*Annotator, error) {
	if len(precedence) == 0 {
		precedence = DefaultPrecedence
	}
	known := make(map[string]bool, len(DefaultPrecedence))
	for _, c := range DefaultPrecedence {
		known[c] = true
	}
	prec := make(map[string]int, len(precedence))
	for i, c := range precedence {
		if !known[c] {
			return nil, fmt.Errorf("annotator: unrecognized feature class %q in precedence order", c)
		}
		if _, dup := prec[c]; dup {
			return nil, fmt.Errorf("annotator: duplicate feature class %q in precedence order", c)
		}
		prec[c] = i
	}

	a := &Annotator{
		maxTSSDist: maxTSSDist,
		precedence: prec,
		trees:      make(map[string]*interval.IntTree),
		classOf:    make(map[uintptr]string),
		tssByChrom: make(map[string][]annot.TSS),
	}

	for i, f := range features {
		if _, ok := prec[f.Class]; !ok {
			return nil, fmt.Errorf("annotator: feature %s:%d-%d has unrecognized class %q", f.Chrom, f.Start, f.End, f.Class)
		}
		iv := featureInterval{start: f.Start, end: f.End, id: uintptr(i), class: f.Class}
		tree, ok := a.trees[f.Chrom]
		if !ok {
			tree = &interval.IntTree{}
			a.trees[f.Chrom] = tree
		}
		if err := tree.Insert(iv, false); err != nil {
			return nil, fmt.Errorf("annotator: index feature %s:%d-%d: %w", f.Chrom, f.Start, f.End, err)
		}
		a.classOf[iv.id] = f.Class
	}

	for _, t := range tss {
		a.tssByChrom[t.Chrom] = append(a.tssByChrom[t.Chrom], t)
	}
	for chrom := range a.tssByChrom {
		sites := a.tssByChrom[chrom]
		sort.Slice(sites, func(i, j int) bool {
			if sites[i].Pos != sites[j].Pos {
				return sites[i].Pos < sites[j].Pos
			}
			return sites[i].Gene < sites[j].Gene
		})
	}
	return a, nil
}

// Annotate labels every region with its nearby genes and exactly one
// feature class, in place. An empty region slice is a no-op. TSS proximity
// takes final precedence: a region with any TSS in the window is labelled
// NearTSS regardless of structural overlap.
func (a *Annotator) Annotate(regions []Region) {
	for i := range regions {
		r := &regions[i]

		genes := a.nearbyGenes(r.Chrom, r.Start, r.End)
		r.Genes = strings.Join(genes, ",")

		if len(genes) > 0 {
			r.Feature = FeatureNearTSS
			continue
		}
		r.Feature = a.classify(r.Chrom, r.Start, r.End)
	}
}

// nearbyGenes returns the deduplicated, sorted gene names with a TSS within
// maxTSSDist of the region.
func (a *Annotator) nearbyGenes(chrom string, start, end int) []string {
	sites := a.tssByChrom[chrom]
	if len(sites) == 0 {
		return nil
	}
	lo := sort.Search(len(sites), func(i int) bool {
		return sites[i].Pos >= start-a.maxTSSDist
	})
	seen := make(map[string]bool)
	var genes []string
	for i := lo; i < len(sites) && sites[i].Pos <= end+a.maxTSSDist; i++ {
		if !seen[sites[i].Gene] {
			seen[sites[i].Gene] = true
			genes = append(genes, sites[i].Gene)
		}
	}
	sort.Strings(genes)
	return genes
}

// CoveredGenes returns the genes whose TSS lies within the proximity window
// of at least one retained probe. This is the assay-covered universe used as
// the overrepresentation background, never the whole genome.
func (a *Annotator) CoveredGenes(set *NormalizedSet) map[string]bool {
	genes := make(map[string]bool)
	for _, p := range set.Probes {
		for _, g := range a.nearbyGenes(p.Chrom, p.Pos, p.Pos) {
			genes[g] = true
		}
	}
	return genes
}

// classify picks the single structural feature class of a region using the
// precedence order, or Intergenic when nothing overlaps.
func (a *Annotator) classify(chrom string, start, end int) string {
	tree, ok := a.trees[chrom]
	if !ok {
		return FeatureIntergenic
	}
	hits := tree.Get(featureInterval{start: start, end: end})
	best := len(a.precedence)
	class := FeatureIntergenic
	for _, h := range hits {
		c := a.classOf[h.ID()]
		if rank := a.precedence[c]; rank < best {
			best = rank
			class = c
		}
	}
	return class
}

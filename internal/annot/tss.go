package annot

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// TSS is one transcription start site.
type TSS struct {
	Gene   string
	Chrom  string
	Pos    int
	Strand string
}

// LoadTSS reads a tab-delimited TSS table {gene, chrom, pos, strand},
// optional header, .gz supported. Sites are returned sorted by
// (chrom, pos, gene).
func LoadTSS(path string) ([]TSS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open TSS table: %w", err)
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

	var sites []TSS
	scanner := bufio.NewScanner(reader)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if lineNum == 1 && strings.EqualFold(fields[0], "gene") {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("TSS table %s line %d: %d fields, want 4", path, lineNum, len(fields))
		}
		pos, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("TSS table %s line %d: bad position %q: %w", path, lineNum, fields[2], err)
		}
		sites = append(sites, TSS{Gene: fields[0], Chrom: fields[1], Pos: pos, Strand: fields[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read TSS table: %w", err)
	}

	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Chrom != sites[j].Chrom {
			return sites[i].Chrom < sites[j].Chrom
		}
		if sites[i].Pos != sites[j].Pos {
			return sites[i].Pos < sites[j].Pos
		}
		return sites[i].Gene < sites[j].Gene
	})
	return sites, nil
}

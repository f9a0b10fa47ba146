package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ebareke/cedernaes2018-analysis/internal/annot"
)

// Reference resource URLs.
const (
	ensemblRESTURL = "https://rest.ensembl.org"
	// crossReactiveURL is the published list of non-specific array probes.
	crossReactiveURL = "https://raw.githubusercontent.com/sirselim/illumina450k_filtering/master/48639-non-specific-probes-Illumina450k.csv"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch reference files into the local data directory",
		Long: `Fetch the reference files both pipelines need: a gene annotation
snapshot resolved through the Ensembl REST service, and the published
non-specific probe list for array filtering. Files land in ~/.cedernaes/
and are skipped when already present.`,
		Example: `  # fetch everything, resolving annotation for the given genes
  cedernaes fetch --genes gene_ids.txt

  # probe list only
  cedernaes fetch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch()
		},
	}

	f := cmd.Flags()
	f.String("genes", "", "file with one gene identifier per line; enables the annotation snapshot")
	f.String("data-dir", "", "destination directory (default: ~/.cedernaes)")
	f.String("rest-url", ensemblRESTURL, "Ensembl REST base URL")

	return cmd
}

func runFetch() error {
	destDir := viper.GetString("data-dir")
	if destDir == "" {
		destDir = dataDir()
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", destDir, err)
	}

	fmt.Printf("Fetching reference files\nDestination: %s\n\n", destDir)

	probeFile := filepath.Join(destDir, "non_specific_probes.csv")
	if err := downloadFile(crossReactiveURL, probeFile); err != nil {
		return fmt.Errorf("downloading probe list: %w", err)
	}

	if genesPath := viper.GetString("genes"); genesPath != "" {
		ids, err := readGeneIDs(genesPath)
		if err != nil {
			return err
		}
		fmt.Printf("  Resolving %d genes through %s...\n", len(ids), viper.GetString("rest-url"))

		client := annot.NewRESTClient(viper.GetString("rest-url"))
		table, err := client.FetchTable(ids)
		if err != nil {
			return fmt.Errorf("fetching annotation: %w", err)
		}

		annotFile := filepath.Join(destDir, "annotation.tsv")
		if err := writeAnnotationSnapshot(annotFile, table); err != nil {
			return fmt.Errorf("writing annotation snapshot: %w", err)
		}
		fmt.Printf("    Done: %d genes resolved\n", table.Len())
	}

	fmt.Printf("\nFetch complete.\n")
	return nil
}

// readGeneIDs reads one identifier per line, ignoring blanks and comments.
func readGeneIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gene list: %w", err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read gene list: %w", err)
	}
	return ids, nil
}

// writeAnnotationSnapshot persists a fetched annotation table in the format
// the pipelines load.
func writeAnnotationSnapshot(path string, table *annot.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "gene_id\tbiotype\tname\tentrez")
	for _, id := range table.IDs() {
		info, _ := table.Get(id)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, info.Biotype, info.Name, info.Entrez)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// downloadFile downloads a file to the destination path with progress,
// skipping files already present.
func downloadFile(url, destPath string) error {
	if info, err := os.Stat(destPath); err == nil {
		fmt.Printf("  %s already exists (%s), skipping\n", filepath.Base(destPath), formatSize(info.Size()))
		return nil
	}

	fmt.Printf("  Downloading %s...\n", filepath.Base(destPath))

	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	var downloaded int64
	pw := &progressWriter{
		total:      resp.ContentLength,
		downloaded: &downloaded,
		lastPrint:  time.Now(),
	}

	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	fmt.Printf("    Done: %s\n", formatSize(downloaded))
	return nil
}

// progressWriter tracks download progress.
type progressWriter struct {
	total      int64
	downloaded *int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	*pw.downloaded += int64(n)

	if time.Since(pw.lastPrint) > time.Second {
		if pw.total > 0 {
			pct := float64(*pw.downloaded) / float64(pw.total) * 100
			fmt.Printf("\r    Progress: %s / %s (%.1f%%)  ",
				formatSize(*pw.downloaded), formatSize(pw.total), pct)
		} else {
			fmt.Printf("\r    Progress: %s  ", formatSize(*pw.downloaded))
		}
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

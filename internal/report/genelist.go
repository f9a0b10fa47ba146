package report

import (
	"bufio"
	"io"
)

// WriteGeneList writes one identifier per line, no header and no quoting,
// the format the third-party web enrichment service expects for manual
// upload.
func WriteGeneList(w io.Writer, ids []string) error {
	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := bw.WriteString(id + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

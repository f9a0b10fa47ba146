package annot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RESTClient fetches gene annotation from a biomart-style lookup service.
// It is used by the fetch command to build a local snapshot; the pipelines
// themselves only read snapshots, so a run never depends on the network.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a client for the given service base URL.
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type restGene struct {
	ID      string `json:"id"`
	Biotype string `json:"biotype"`
	Name    string `json:"display_name"`
	Entrez  string `json:"entrez_id"`
}

// restBatchSize bounds the identifiers per POST request.
const restBatchSize = 500

// FetchTable looks up annotation for the given gene identifiers and returns
// a collapsed table. Identifiers unknown to the service are absent from the
// result, not an error.
func (c *RESTClient) FetchTable(geneIDs []string) (*Table, error) {
	candidates := make(map[string][]GeneInfo)
	for lo := 0; lo < len(geneIDs); lo += restBatchSize {
		hi := lo + restBatchSize
		if hi > len(geneIDs) {
			hi = len(geneIDs)
		}
		genes, err := c.fetchBatch(geneIDs[lo:hi])
		if err != nil {
			return nil, err
		}
		for _, g := range genes {
			candidates[g.ID] = append(candidates[g.ID], GeneInfo{
				Biotype: g.Biotype,
				Name:    g.Name,
				Entrez:  g.Entrez,
			})
		}
	}
	return NewTable(candidates), nil
}

func (c *RESTClient) fetchBatch(ids []string) ([]restGene, error) {
	url := fmt.Sprintf("%s/lookup/id?content-type=application/json", c.baseURL)

	body, err := json.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("marshal lookup request: %w", err)
	}

	resp, err := c.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("annotation lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("annotation lookup error %d: %s", resp.StatusCode, string(msg))
	}

	var genes []restGene
	if err := json.NewDecoder(resp.Body).Decode(&genes); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	return genes, nil
}

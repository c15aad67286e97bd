// Package patents provides an HTTP client for the external patent record
// and citation graph API.
package patents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mcdaddytn/patentgraph/internal/config"
	"github.com/mcdaddytn/patentgraph/internal/models"
)

// Client talks to the patent record API over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a patent API client from configuration.
func New(cfg config.Config) *Client {
	timeout := cfg.PatentAPITimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.PatentAPIURL,
		apiKey:  cfg.PatentAPIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// patentResponse is the wire shape of one patent record.
type patentResponse struct {
	PatentID     string   `json:"patent_id"`
	Title        string   `json:"title"`
	GrantDate    string   `json:"grant_date,omitempty"`
	Assignee     string   `json:"assignee,omitempty"`
	CPCCodes     []string `json:"cpc_codes,omitempty"`
	CitedByCount int      `json:"cited_by_count"`
	CitingCount  int      `json:"citing_count"`
	Abstract     string   `json:"abstract,omitempty"`
}

// citationsResponse is the wire shape of a neighbor lookup.
type citationsResponse struct {
	PatentID  string   `json:"patent_id"`
	CitedBy   []string `json:"cited_by"`
	Citations []string `json:"citations"`
}

// Resolve fetches the bibliographic record for one patent. A 404 means the
// patent is unknown to the API and returns (nil, nil); expansion treats that
// as zero CPC-overlap contribution rather than an error.
func (c *Client) Resolve(ctx context.Context, patentID string) (*models.PatentRecord, error) {
	var resp patentResponse
	found, err := c.get(ctx, "/patents/"+url.PathEscape(patentID), &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	record := &models.PatentRecord{
		PatentID: resp.PatentID,
		Title:    resp.Title,
		Assignee: resp.Assignee,
		CPCCodes: resp.CPCCodes,
		CitedBy:  resp.CitedByCount,
		Citing:   resp.CitingCount,
		Abstract: resp.Abstract,
	}
	if resp.GrantDate != "" {
		if date, parseErr := time.Parse("2006-01-02", resp.GrantDate); parseErr == nil {
			record.Date = &date
		}
	}
	return record, nil
}

// Neighbors fetches the one-hop citation neighbors of a patent. An unknown
// patent has empty neighbor sets, not an error.
func (c *Client) Neighbors(ctx context.Context, patentID string) (*models.Citations, error) {
	var resp citationsResponse
	found, err := c.get(ctx, "/patents/"+url.PathEscape(patentID)+"/citations", &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.Citations{}, nil
	}
	return &models.Citations{
		ForwardIDs:  resp.CitedBy,
		BackwardIDs: resp.Citations,
	}, nil
}

// get performs one GET request, decoding the body into result. Returns false
// without error on a 404.
func (c *Client) get(ctx context.Context, path string, result any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("patent api error: %s - %s", resp.Status, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return false, fmt.Errorf("unmarshal response: %w", err)
	}
	return true, nil
}

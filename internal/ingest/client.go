// Package ingest pulls raw account records from the upstream
// core-banking service, either over HTTP or from an uploaded
// pipe-delimited loan report.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

// Client fetches account snapshots from the upstream PACS service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a snapshot client. A zero timeout defaults to 30
// seconds.
func NewClient(cfg domain.IngestConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchAll retrieves every account record from the upstream service.
// The upstream endpoint is already filtered to one society; Kestrel
// does not paginate it.
func (c *Client) FetchAll(ctx context.Context) ([]*domain.AccountRecord, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: ingest base URL not configured", domain.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pacs/all", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch accounts: upstream returned %s", resp.Status)
	}

	var records []*domain.AccountRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return records, nil
}

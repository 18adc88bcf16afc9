// internal/catalog/omdb.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// OMDBClient is the secondary metadata provider client. It supplies the
// enrichment fields keyed by IMDb identifier. Callers treat its failures as
// non-fatal.
type OMDBClient struct {
	base   string
	apiKey string
	hc     *http.Client
}

// omdbDetail mirrors the provider's by-id payload. The provider reports
// lookup misses in-band via the Response field.
type omdbDetail struct {
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	IMDBRating string `json:"imdbRating"`
	Director   string `json:"Director"`
	Actors     string `json:"Actors"`
}

// NewOMDB creates a secondary provider client with bounded dial and request
// timeouts.
func NewOMDB(baseURL, apiKey string) *OMDBClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
	}
	return &OMDBClient{
		base:   baseURL,
		apiKey: apiKey,
		hc:     &http.Client{Transport: transport, Timeout: 5 * time.Second},
	}
}

// Lookup fetches enrichment data for an IMDb identifier.
func (c *OMDBClient) Lookup(ctx context.Context, imdbID string) (*omdbDetail, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	q := u.Query()
	q.Set("i", imdbID)
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var out omdbDetail
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if out.Response == "False" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, out.Error)
	}
	return &out, nil
}

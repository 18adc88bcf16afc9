// internal/catalog/tmdb.go
// Package catalog queries external movie-metadata providers and merges their
// responses with local ownership state.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Provider error sentinels. Handlers map these onto the wire taxonomy.
var (
	ErrNotFound            = errors.New("catalog entry not found")
	ErrProviderUnavailable = errors.New("metadata provider unavailable")
)

// TMDBClient is the primary metadata provider client. It covers title search
// and per-movie detail lookup.
type TMDBClient struct {
	base   string
	apiKey string
	hc     *http.Client
}

// tmdbSearchResponse mirrors the provider's search payload.
type tmdbSearchResponse struct {
	Results []tmdbMovie `json:"results"`
}

type tmdbMovie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	Popularity  float64 `json:"popularity"`
}

// tmdbDetail mirrors the provider's movie detail payload. The imdb_id field
// links into the secondary provider.
type tmdbDetail struct {
	ID          int64   `json:"id"`
	IMDBID      string  `json:"imdb_id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	Runtime     int     `json:"runtime"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// NewTMDB creates a primary provider client with bounded dial and request
// timeouts.
func NewTMDB(baseURL, apiKey string) *TMDBClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
	}
	return &TMDBClient{
		base:   baseURL,
		apiKey: apiKey,
		hc:     &http.Client{Transport: transport, Timeout: 5 * time.Second},
	}
}

// Search queries the provider's title search endpoint.
func (c *TMDBClient) Search(ctx context.Context, title string) ([]tmdbMovie, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	u.Path += "/search/movie"
	q := u.Query()
	q.Set("query", title)
	q.Set("include_adult", "false")
	q.Set("language", "en-US")
	q.Set("page", "1")
	u.RawQuery = q.Encode()

	var out tmdbSearchResponse
	if err := c.get(ctx, u.String(), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Detail fetches core metadata for one movie, including its IMDb identifier.
func (c *TMDBClient) Detail(ctx context.Context, tmdbID string) (*tmdbDetail, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	u.Path += "/movie/" + tmdbID
	q := u.Query()
	q.Set("language", "en-US")
	u.RawQuery = q.Encode()

	var out tmdbDetail
	if err := c.get(ctx, u.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *TMDBClient) get(ctx context.Context, rawURL string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: provider returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}
}

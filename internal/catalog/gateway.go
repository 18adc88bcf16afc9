// internal/catalog/gateway.go
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/cinetrack/cinetrack-go/internal/model"
	"github.com/cinetrack/cinetrack-go/internal/storage"
)

// Gateway merges the two external providers into the shapes the handlers
// serve: search hits decorated with local ownership, and a detail view whose
// enrichment fields degrade gracefully when the secondary provider fails.
type Gateway struct {
	primary   *TMDBClient
	secondary *OMDBClient
	store     storage.Store
	log       *slog.Logger
}

// NewGateway creates a metadata gateway over the given providers and store.
func NewGateway(primary *TMDBClient, secondary *OMDBClient, store storage.Store, log *slog.Logger) *Gateway {
	return &Gateway{primary: primary, secondary: secondary, store: store, log: log}
}

// Search queries the primary provider by title and, when ownerID is present,
// decorates each hit with the caller's existing record id. An empty title
// returns an empty result set. Results are ordered by provider popularity,
// most popular first.
func (g *Gateway) Search(ctx context.Context, title, ownerID string) ([]model.SearchResult, error) {
	if title == "" {
		return []model.SearchResult{}, nil
	}

	hits, err := g.primary.Search(ctx, title)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[j].Popularity < hits[i].Popularity
	})

	var owned map[string]string
	if ownerID != "" {
		owned, err = g.store.MapOwnedCatalogIDs(ctx, ownerID)
		if err != nil {
			return nil, err
		}
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		tmdbID := strconv.FormatInt(hit.ID, 10)
		result := model.SearchResult{
			TMDBID:      tmdbID,
			Title:       hit.Title,
			PosterPath:  hit.PosterPath,
			ReleaseDate: hit.ReleaseDate,
			Overview:    hit.Overview,
			Popularity:  hit.Popularity,
		}
		if owned != nil {
			result.RecordID = owned[tmdbID]
		}
		results = append(results, result)
	}
	return results, nil
}

// Detail fetches core metadata from the primary provider and, when the movie
// carries an IMDb identifier, enriches it from the secondary provider. A
// secondary failure is logged and swallowed: the detail still returns with
// the enrichment fields absent. Primary failures propagate.
func (g *Gateway) Detail(ctx context.Context, tmdbID string) (*model.MovieDetail, error) {
	primary, err := g.primary.Detail(ctx, tmdbID)
	if err != nil {
		return nil, err
	}

	detail := &model.MovieDetail{
		TMDBID:      strconv.FormatInt(primary.ID, 10),
		IMDBID:      primary.IMDBID,
		Title:       primary.Title,
		Overview:    primary.Overview,
		PosterPath:  primary.PosterPath,
		ReleaseDate: primary.ReleaseDate,
		Runtime:     primary.Runtime,
	}
	for _, genre := range primary.Genres {
		detail.Genres = append(detail.Genres, genre.Name)
	}

	if primary.IMDBID == "" {
		return detail, nil
	}

	enrichment, err := g.secondary.Lookup(ctx, primary.IMDBID)
	if err != nil {
		g.log.Warn("secondary provider lookup failed, serving degraded detail",
			"tmdbId", tmdbID, "imdbId", primary.IMDBID, "error", err)
		return detail, nil
	}

	if enrichment.IMDBRating != "" && enrichment.IMDBRating != "N/A" {
		detail.ExternalRating = &enrichment.IMDBRating
	}
	if enrichment.Director != "" && enrichment.Director != "N/A" {
		detail.Director = &enrichment.Director
	}
	if enrichment.Actors != "" && enrichment.Actors != "N/A" {
		detail.Actors = &enrichment.Actors
	}
	return detail, nil
}

// LookupIMDBID resolves the secondary identifier for a catalog movie. The
// add flow uses it to backfill records at creation time.
func (g *Gateway) LookupIMDBID(ctx context.Context, tmdbID string) (string, error) {
	primary, err := g.primary.Detail(ctx, tmdbID)
	if err != nil {
		return "", err
	}
	return primary.IMDBID, nil
}

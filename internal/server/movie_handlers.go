// internal/server/movie_handlers.go
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/catalog"
	errordefs "github.com/cinetrack/cinetrack-go/internal/errors"
	"github.com/cinetrack/cinetrack-go/internal/model"
	"github.com/cinetrack/cinetrack-go/internal/schema"
	"github.com/cinetrack/cinetrack-go/internal/storage"
	"github.com/cinetrack/cinetrack-go/internal/view"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// patchRequest is the wire shape of a movie update. Absent fields stay
// untouched.
type patchRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	PosterPath  *string  `json:"posterPath,omitempty"`
	WatchTime   *string  `json:"watchTime,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
}

// handleSearch handles POST /api/movies/search. A valid session decorates the
// results with the caller's existing records; without one the search is
// anonymous.
func (m *Mux) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("cinetrack-service").Start(r.Context(), "handleSearch")
	defer span.End()
	correlationID := correlationIDFrom(ctx)
	defer r.Body.Close()

	var req model.SearchRequest
	if _, err := decodeBody(r, &req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}

	ownerID := m.optionalCallerAccountID(r)
	span.SetAttributes(
		attribute.String("title", req.Title),
		attribute.Bool("authenticated", ownerID != ""),
	)

	start := time.Now()
	results, err := m.gw.Search(ctx, strings.TrimSpace(req.Title), ownerID)
	m.observeProvider("tmdb", "search", start, err)
	if err != nil {
		span.SetStatus(codes.Error, "search failed")
		if errors.Is(err, catalog.ErrProviderUnavailable) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_PROVIDER_UNAVAILABLE, "movie search is temporarily unavailable", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to search movies", correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"results": results})
}

// handleDetail handles POST /api/movies/detail
func (m *Mux) handleDetail(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("cinetrack-service").Start(r.Context(), "handleDetail")
	defer span.End()
	correlationID := correlationIDFrom(ctx)
	defer r.Body.Close()

	var req model.DetailRequest
	if _, err := decodeBody(r, &req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}
	if req.TMDBID == "" {
		span.SetStatus(codes.Error, "tmdbId is required")
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "tmdbId is required", correlationID))
		return
	}
	span.SetAttributes(attribute.String("tmdbId", req.TMDBID))

	start := time.Now()
	detail, err := m.gw.Detail(ctx, req.TMDBID)
	m.observeProvider("tmdb", "detail", start, err)
	if err != nil {
		span.SetStatus(codes.Error, "detail failed")
		if errors.Is(err, catalog.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "movie not found", correlationID))
			return
		}
		if errors.Is(err, catalog.ErrProviderUnavailable) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_PROVIDER_UNAVAILABLE, "movie detail is temporarily unavailable", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to fetch movie detail", correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, detail)
}

// handleMovies dispatches /api/user/movies by method: POST adds a record,
// GET returns the caller's aggregated list view.
func (m *Mux) handleMovies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		m.handleAddMovie(w, r)
	case http.MethodGet:
		m.handleListMovies(w, r)
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.CT_BAD_REQUEST, "method not allowed", correlationIDFrom(r.Context())))
	}
}

// handleAddMovie handles POST /api/user/movies. The IMDb identifier is
// backfilled from the primary provider before the record is stored; a failed
// lookup aborts the add.
func (m *Mux) handleAddMovie(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("cinetrack-service").Start(r.Context(), "handleAddMovie")
	defer span.End()
	correlationID := correlationIDFrom(ctx)
	ownerID := accountIDFrom(ctx)
	defer r.Body.Close()

	var req model.AddMovieRequest
	raw, err := decodeBody(r, &req)
	if err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}
	span.SetAttributes(attribute.String("tmdbId", req.TMDBID))

	if err := m.validator.Validate(schema.AddMovie, raw); err != nil {
		m.observeValidation(schema.AddMovie, err)
		span.SetStatus(codes.Error, "schema validation failed")
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.CT_SCHEMA_REJECT, "invalid movie payload", correlationID, err.Error()))
		return
	}
	m.observeValidation(schema.AddMovie, nil)

	watchTime, err := time.Parse(time.RFC3339, req.WatchTime)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "watchTime must be an RFC 3339 timestamp", correlationID))
		return
	}

	start := time.Now()
	imdbID, err := m.gw.LookupIMDBID(ctx, req.TMDBID)
	m.observeProvider("tmdb", "detail", start, err)
	if err != nil {
		span.SetStatus(codes.Error, "imdb id lookup failed")
		if errors.Is(err, catalog.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "movie not found in catalog", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_PROVIDER_UNAVAILABLE, "movie catalog is temporarily unavailable", correlationID))
		return
	}

	now := time.Now().UTC()
	movie := model.WatchedMovie{
		ID:          ulid.Make().String(),
		OwnerID:     ownerID,
		TMDBID:      req.TMDBID,
		IMDBID:      imdbID,
		Title:       req.Title,
		PosterPath:  req.PosterPath,
		Description: req.Description,
		WatchTime:   watchTime,
		Rating:      req.Rating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	start = time.Now()
	err = m.s.CreateWatchedMovie(ctx, movie)
	m.observeStorage("create_watched_movie", start, err)
	if err != nil {
		span.SetStatus(codes.Error, "create failed")
		if errors.Is(err, storage.ErrConflict) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_DUPLICATE_MOVIE, "this movie is already on your list", correlationID))
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "account not found", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to add movie", correlationID))
		return
	}

	if err := m.p.PublishMovieAdded(ctx, movie); err != nil {
		slog.Warn("failed to publish movie added event", "error", err)
	}

	m.writeSuccess(w, http.StatusCreated, map[string]interface{}{"movie": movie})
}

// handleListMovies handles GET /api/user/movies. Query parameters shape the
// view: sort selects the comparator, q filters titles, groupByMonth buckets
// the sorted list by watch month.
func (m *Mux) handleListMovies(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("cinetrack-service").Start(r.Context(), "handleListMovies")
	defer span.End()
	correlationID := correlationIDFrom(ctx)
	ownerID := accountIDFrom(ctx)

	start := time.Now()
	movies, err := m.s.ListWatchedMovies(ctx, ownerID)
	m.observeStorage("list_watched_movies", start, err)
	if err != nil {
		span.SetStatus(codes.Error, "list failed")
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "account not found", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to list movies", correlationID))
		return
	}

	sortOption := view.SortOption(r.URL.Query().Get("sort"))
	if sortOption == "" {
		sortOption = view.SortWatchTimeDesc
	}
	query := r.URL.Query().Get("q")
	groupByMonth := r.URL.Query().Get("groupByMonth") == "true"
	span.SetAttributes(
		attribute.String("sort", string(sortOption)),
		attribute.Bool("groupByMonth", groupByMonth),
		attribute.Int("count", len(movies)),
	)

	m.writeSuccess(w, http.StatusOK, view.Compose(movies, sortOption, query, groupByMonth))
}

// handleMovieItem dispatches /api/user/movies/{id} by method.
func (m *Mux) handleMovieItem(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationIDFrom(r.Context())

	recordID := strings.TrimPrefix(r.URL.Path, "/api/user/movies/")
	if recordID == "" || strings.Contains(recordID, "/") {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "record id is required", correlationID))
		return
	}

	switch r.Method {
	case http.MethodGet:
		m.handleGetMovie(w, r, recordID)
	case http.MethodPut:
		m.handleUpdateMovie(w, r, recordID)
	case http.MethodDelete:
		m.handleDeleteMovie(w, r, recordID)
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.CT_BAD_REQUEST, "method not allowed", correlationID))
	}
}

// handleGetMovie handles GET /api/user/movies/{id}
func (m *Mux) handleGetMovie(w http.ResponseWriter, r *http.Request, recordID string) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	ownerID := accountIDFrom(ctx)

	start := time.Now()
	movie, err := m.s.GetWatchedMovie(ctx, recordID, ownerID)
	m.observeStorage("get_watched_movie", start, err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "movie not found", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to fetch movie", correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"movie": movie})
}

// handleUpdateMovie handles PUT /api/user/movies/{id}
func (m *Mux) handleUpdateMovie(w http.ResponseWriter, r *http.Request, recordID string) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	ownerID := accountIDFrom(ctx)
	defer r.Body.Close()

	var req patchRequest
	raw, err := decodeBody(r, &req)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}

	if err := m.validator.Validate(schema.UpdateMovie, raw); err != nil {
		m.observeValidation(schema.UpdateMovie, err)
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.CT_SCHEMA_REJECT, "invalid update payload", correlationID, err.Error()))
		return
	}
	m.observeValidation(schema.UpdateMovie, nil)

	patch := model.MoviePatch{
		Title:       req.Title,
		Description: req.Description,
		PosterPath:  req.PosterPath,
		Rating:      req.Rating,
	}
	if req.WatchTime != nil {
		watchTime, err := time.Parse(time.RFC3339, *req.WatchTime)
		if err != nil {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "watchTime must be an RFC 3339 timestamp", correlationID))
			return
		}
		patch.WatchTime = &watchTime
	}

	start := time.Now()
	movie, err := m.s.UpdateWatchedMovie(ctx, recordID, ownerID, patch)
	m.observeStorage("update_watched_movie", start, err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "movie not found", correlationID))
			return
		}
		if errors.Is(err, storage.ErrNotOwner) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_OWNER, "you do not own this record", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to update movie", correlationID))
		return
	}

	if err := m.p.PublishMovieUpdated(ctx, *movie); err != nil {
		slog.Warn("failed to publish movie updated event", "error", err)
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"movie": movie})
}

// handleDeleteMovie handles DELETE /api/user/movies/{id}
func (m *Mux) handleDeleteMovie(w http.ResponseWriter, r *http.Request, recordID string) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	ownerID := accountIDFrom(ctx)

	start := time.Now()
	err := m.s.DeleteWatchedMovie(ctx, recordID, ownerID)
	m.observeStorage("delete_watched_movie", start, err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "movie not found", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to delete movie", correlationID))
		return
	}

	if err := m.p.PublishMovieDeleted(ctx, recordID, ownerID); err != nil {
		slog.Warn("failed to publish movie deleted event", "error", err)
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handlePosterUploadInit handles POST /api/posters/uploadInit
func (m *Mux) handlePosterUploadInit(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("cinetrack-service").Start(r.Context(), "handlePosterUploadInit")
	defer span.End()
	correlationID := correlationIDFrom(ctx)
	ownerID := accountIDFrom(ctx)
	defer r.Body.Close()

	var req model.PosterUploadRequest
	raw, err := decodeBody(r, &req)
	if err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}
	span.SetAttributes(
		attribute.String("mimeType", req.MimeType),
		attribute.Int64("size", req.Size),
	)

	if err := m.validator.Validate(schema.PosterUpload, raw); err != nil {
		m.observeValidation(schema.PosterUpload, err)
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.CT_SCHEMA_REJECT, "invalid upload payload", correlationID, err.Error()))
		return
	}
	m.observeValidation(schema.PosterUpload, nil)

	if req.Size > m.maxPosterSize {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_POSTER_SIZE, fmt.Sprintf("poster size exceeds limit of %d bytes", m.maxPosterSize), correlationID))
		return
	}

	allowed := false
	for _, mimeType := range m.allowedMimeTypes {
		if req.MimeType == mimeType {
			allowed = true
			break
		}
	}
	if !allowed {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_POSTER_TYPE, fmt.Sprintf("poster type %s is not allowed", req.MimeType), correlationID))
		return
	}

	if m.posters == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "poster storage is not configured", correlationID))
		return
	}

	posterPath, uploadURL, expiresAt, err := m.posters.InitUpload(ctx, ownerID, req.MimeType)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to initialize upload", correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, model.PosterUploadData{
		PosterPath: posterPath,
		UploadURL:  uploadURL,
		ExpiresAt:  expiresAt,
	})
}

// handlePosterFinalize handles POST /api/posters/finalize. It confirms the
// direct upload actually landed before the client stores the path on a
// record.
func (m *Mux) handlePosterFinalize(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("cinetrack-service").Start(r.Context(), "handlePosterFinalize")
	defer span.End()
	correlationID := correlationIDFrom(ctx)
	ownerID := accountIDFrom(ctx)
	defer r.Body.Close()

	var req model.PosterFinalizeRequest
	if _, err := decodeBody(r, &req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}

	// Poster keys are namespaced by owner; finalizing someone else's path
	// is refused without touching storage.
	prefix := "/posters/" + ownerID + "/"
	if !strings.HasPrefix(req.PosterPath, prefix) {
		span.SetStatus(codes.Error, "poster path not owned by caller")
		m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_OWNER, "poster path does not belong to you", correlationID))
		return
	}

	if m.posters == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "poster storage is not configured", correlationID))
		return
	}

	size, err := m.posters.VerifyObject(ctx, strings.TrimPrefix(req.PosterPath, "/"))
	if err != nil {
		span.SetStatus(codes.Error, "object verification failed")
		m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "poster upload not found", correlationID))
		return
	}
	if size > m.maxPosterSize {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_POSTER_SIZE, fmt.Sprintf("poster size exceeds limit of %d bytes", m.maxPosterSize), correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"posterPath": req.PosterPath,
		"size":       size,
	})
}

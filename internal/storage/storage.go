// Package storage provides implementations of the Store interface
// for both in-memory and PostgreSQL storage backends.
package storage

import (
	"context"
	"errors"

	"github.com/cinetrack/cinetrack-go/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Record or account absent, or not visible to the caller
	ErrConflict = errors.New("conflict")  // Uniqueness violation
	ErrNotOwner = errors.New("not owner") // Record exists but belongs to another account
)

// Store defines the persistence operations required by the cinetrack service.
// It is implemented by both the in-memory and PostgreSQL backends.
type Store interface {
	// Account operations
	CreateAccount(ctx context.Context, account model.Account) error        // ErrConflict on duplicate email
	GetAccount(ctx context.Context, id string) (*model.Account, error)     // ErrNotFound when absent
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	UpdateAccount(ctx context.Context, account model.Account) error        // Mutates auth/verification state

	// Watched-movie operations, all scoped to ownership
	CreateWatchedMovie(ctx context.Context, movie model.WatchedMovie) error // Record + owner reference, atomic
	GetWatchedMovie(ctx context.Context, recordID, ownerID string) (*model.WatchedMovie, error)
	ListWatchedMovies(ctx context.Context, ownerID string) ([]model.WatchedMovie, error)
	UpdateWatchedMovie(ctx context.Context, recordID, ownerID string, patch model.MoviePatch) (*model.WatchedMovie, error)
	DeleteWatchedMovie(ctx context.Context, recordID, ownerID string) error // Record + owner reference, atomic

	// MapOwnedCatalogIDs returns {tmdbId -> recordId} for an owner, used to
	// decorate search results with local ownership.
	MapOwnedCatalogIDs(ctx context.Context, ownerID string) (map[string]string, error)
}

// applyPatch copies the set fields of a patch onto a movie record.
// Owner and catalog identifier are immutable and never touched here.
func applyPatch(movie *model.WatchedMovie, patch model.MoviePatch) {
	if patch.Title != nil {
		movie.Title = *patch.Title
	}
	if patch.Description != nil {
		movie.Description = *patch.Description
	}
	if patch.PosterPath != nil {
		movie.PosterPath = *patch.PosterPath
	}
	if patch.WatchTime != nil {
		movie.WatchTime = *patch.WatchTime
	}
	if patch.Rating != nil {
		movie.Rating = *patch.Rating
	}
}

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/model"
)

func newTestAccount(id, email string) model.Account {
	return model.Account{
		ID:           id,
		Name:         "Test User",
		Email:        email,
		PasswordHash: "$2a$10$notarealhash",
		CreatedAt:    time.Now().UTC(),
	}
}

func newTestMovie(id, ownerID, tmdbID string) model.WatchedMovie {
	now := time.Now().UTC()
	return model.WatchedMovie{
		ID:          id,
		OwnerID:     ownerID,
		TMDBID:      tmdbID,
		IMDBID:      "tt0000001",
		Title:       "Test Movie",
		PosterPath:  "/poster.jpg",
		Description: "A test movie.",
		WatchTime:   now,
		Rating:      4.5,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "user@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	err := store.CreateAccount(ctx, newTestAccount("acct-2", "User@Example.com"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestGetAccountByEmail(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "user@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	account, err := store.GetAccountByEmail(ctx, "USER@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail failed: %v", err)
	}
	if account.ID != "acct-1" {
		t.Errorf("expected account acct-1, got %s", account.ID)
	}

	if _, err := store.GetAccountByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown email, got %v", err)
	}
}

func TestUpdateAccountPreservesRefs(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "user@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-1", "acct-1", "100")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}

	// An auth-state update carries no reference list; the stored one must
	// survive.
	updated := newTestAccount("acct-1", "user@example.com")
	updated.Verified = true
	if err := store.UpdateAccount(ctx, updated); err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}

	account, err := store.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.Verified {
		t.Error("expected account to be verified after update")
	}
	if len(account.WatchedRefs) != 1 || account.WatchedRefs[0] != "rec-1" {
		t.Errorf("expected refs [rec-1], got %v", account.WatchedRefs)
	}
}

func TestCreateWatchedMovieAppendsRef(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "user@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-1", "acct-1", "100")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-2", "acct-1", "200")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}

	account, err := store.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if len(account.WatchedRefs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(account.WatchedRefs))
	}
	if account.WatchedRefs[0] != "rec-1" || account.WatchedRefs[1] != "rec-2" {
		t.Errorf("expected refs in insertion order, got %v", account.WatchedRefs)
	}
}

func TestCreateWatchedMovieDuplicatePerOwner(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "a@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := store.CreateAccount(ctx, newTestAccount("acct-2", "b@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-1", "acct-1", "100")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}

	// Same catalog movie, same owner: rejected.
	err := store.CreateWatchedMovie(ctx, newTestMovie("rec-2", "acct-1", "100"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate catalog id, got %v", err)
	}

	// Same catalog movie, different owner: allowed.
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-3", "acct-2", "100")); err != nil {
		t.Fatalf("expected different owner to track the same movie, got %v", err)
	}
}

func TestCreateWatchedMovieUnknownAccount(t *testing.T) {
	store := NewMemory()

	err := store.CreateWatchedMovie(context.Background(), newTestMovie("rec-1", "missing", "100"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown account, got %v", err)
	}
}

func TestGetWatchedMovieOwnerScoped(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "a@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-1", "acct-1", "100")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}

	if _, err := store.GetWatchedMovie(ctx, "rec-1", "acct-1"); err != nil {
		t.Fatalf("GetWatchedMovie failed for owner: %v", err)
	}

	// Someone else's record reads as absent.
	if _, err := store.GetWatchedMovie(ctx, "rec-1", "acct-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for non-owner read, got %v", err)
	}
}

func TestUpdateWatchedMovie(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "a@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-1", "acct-1", "100")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}

	rating := 3.5
	title := "Retitled"
	updated, err := store.UpdateWatchedMovie(ctx, "rec-1", "acct-1", model.MoviePatch{Rating: &rating, Title: &title})
	if err != nil {
		t.Fatalf("UpdateWatchedMovie failed: %v", err)
	}
	if updated.Rating != 3.5 {
		t.Errorf("expected rating 3.5, got %v", updated.Rating)
	}
	if updated.Title != "Retitled" {
		t.Errorf("expected title Retitled, got %q", updated.Title)
	}
	// Untouched fields survive a partial patch.
	if updated.Description != "A test movie." {
		t.Errorf("expected description to be unchanged, got %q", updated.Description)
	}
}

func TestUpdateWatchedMovieNotOwner(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "a@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-1", "acct-1", "100")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}

	rating := 1.0
	if _, err := store.UpdateWatchedMovie(ctx, "rec-1", "acct-2", model.MoviePatch{Rating: &rating}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if _, err := store.UpdateWatchedMovie(ctx, "missing", "acct-1", model.MoviePatch{Rating: &rating}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestDeleteWatchedMovie(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "a@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-1", "acct-1", "100")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}

	// Non-owner delete leaves the record intact.
	if err := store.DeleteWatchedMovie(ctx, "rec-1", "acct-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-owner delete, got %v", err)
	}

	if err := store.DeleteWatchedMovie(ctx, "rec-1", "acct-1"); err != nil {
		t.Fatalf("DeleteWatchedMovie failed: %v", err)
	}

	if _, err := store.GetWatchedMovie(ctx, "rec-1", "acct-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected record to be gone, got %v", err)
	}

	account, err := store.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if len(account.WatchedRefs) != 0 {
		t.Errorf("expected reference to be removed, got %v", account.WatchedRefs)
	}

	// Delete frees the catalog slot for re-adding.
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-2", "acct-1", "100")); err != nil {
		t.Errorf("expected re-add after delete to succeed, got %v", err)
	}
}

func TestListWatchedMovies(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "a@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	for i, tmdbID := range []string{"100", "200", "300"} {
		movie := newTestMovie("rec-"+tmdbID, "acct-1", tmdbID)
		movie.WatchTime = time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
		if err := store.CreateWatchedMovie(ctx, movie); err != nil {
			t.Fatalf("CreateWatchedMovie failed: %v", err)
		}
	}

	movies, err := store.ListWatchedMovies(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListWatchedMovies failed: %v", err)
	}
	if len(movies) != 3 {
		t.Fatalf("expected 3 movies, got %d", len(movies))
	}
	for i, tmdbID := range []string{"100", "200", "300"} {
		if movies[i].TMDBID != tmdbID {
			t.Errorf("expected movie %d to be %s, got %s", i, tmdbID, movies[i].TMDBID)
		}
	}

	if _, err := store.ListWatchedMovies(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown account, got %v", err)
	}
}

func TestMapOwnedCatalogIDs(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateAccount(ctx, newTestAccount("acct-1", "a@example.com")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-1", "acct-1", "100")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}
	if err := store.CreateWatchedMovie(ctx, newTestMovie("rec-2", "acct-1", "200")); err != nil {
		t.Fatalf("CreateWatchedMovie failed: %v", err)
	}

	owned, err := store.MapOwnedCatalogIDs(ctx, "acct-1")
	if err != nil {
		t.Fatalf("MapOwnedCatalogIDs failed: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(owned))
	}
	if owned["100"] != "rec-1" || owned["200"] != "rec-2" {
		t.Errorf("unexpected catalog mapping: %v", owned)
	}

	empty, err := store.MapOwnedCatalogIDs(ctx, "acct-2")
	if err != nil {
		t.Fatalf("MapOwnedCatalogIDs failed for unknown owner: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty mapping, got %v", empty)
	}
}

package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/model"
)

// memory implements the Store interface using in-memory maps.
// It's intended for development and testing purposes.
type memory struct {
	mu              sync.RWMutex
	accounts        map[string]*model.Account       // account id -> account
	accountsByEmail map[string]string               // lower-cased email -> account id
	movies          map[string]*model.WatchedMovie  // record id -> record
	catalogByOwner  map[string]map[string]string    // owner id -> tmdb id -> record id
}

// NewMemory creates a new in-memory storage implementation.
func NewMemory() Store {
	return &memory{
		accounts:        make(map[string]*model.Account),
		accountsByEmail: make(map[string]string),
		movies:          make(map[string]*model.WatchedMovie),
		catalogByOwner:  make(map[string]map[string]string),
	}
}

func (m *memory) CreateAccount(ctx context.Context, account model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, exists := m.accountsByEmail[email]; exists {
		return ErrConflict
	}
	if _, exists := m.accounts[account.ID]; exists {
		return ErrConflict
	}

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	accountCopy := account
	accountCopy.WatchedRefs = append([]string(nil), account.WatchedRefs...)
	m.accounts[account.ID] = &accountCopy
	m.accountsByEmail[email] = account.ID
	return nil
}

func (m *memory) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, exists := m.accounts[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyAccount(account), nil
}

func (m *memory) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.accountsByEmail[strings.ToLower(email)]
	if !exists {
		return nil, ErrNotFound
	}
	return copyAccount(m.accounts[id]), nil
}

func (m *memory) UpdateAccount(ctx context.Context, account model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.accounts[account.ID]
	if !exists {
		return ErrNotFound
	}

	// The reference list is owned by the movie operations; auth-state
	// updates never replace it.
	existing.Name = account.Name
	existing.PasswordHash = account.PasswordHash
	existing.Verified = account.Verified
	existing.VerifyCode = account.VerifyCode
	existing.VerifyCodeExpires = account.VerifyCodeExpires
	existing.ResetCode = account.ResetCode
	existing.ResetCodeExpires = account.ResetCodeExpires
	return nil
}

func (m *memory) CreateWatchedMovie(ctx context.Context, movie model.WatchedMovie) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, exists := m.accounts[movie.OwnerID]
	if !exists {
		return ErrNotFound
	}

	catalog := m.catalogByOwner[movie.OwnerID]
	if catalog == nil {
		catalog = make(map[string]string)
		m.catalogByOwner[movie.OwnerID] = catalog
	}
	if _, exists := catalog[movie.TMDBID]; exists {
		return ErrConflict
	}
	if _, exists := m.movies[movie.ID]; exists {
		return ErrConflict
	}

	// Record and owner reference are written under the same lock hold, so
	// concurrent readers observe both or neither.
	movieCopy := movie
	m.movies[movie.ID] = &movieCopy
	catalog[movie.TMDBID] = movie.ID
	owner.WatchedRefs = append(owner.WatchedRefs, movie.ID)
	return nil
}

func (m *memory) GetWatchedMovie(ctx context.Context, recordID, ownerID string) (*model.WatchedMovie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	movie, exists := m.movies[recordID]
	if !exists || movie.OwnerID != ownerID {
		// Another user's record is indistinguishable from an absent one.
		return nil, ErrNotFound
	}
	movieCopy := *movie
	return &movieCopy, nil
}

func (m *memory) ListWatchedMovies(ctx context.Context, ownerID string) ([]model.WatchedMovie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owner, exists := m.accounts[ownerID]
	if !exists {
		return nil, ErrNotFound
	}

	out := make([]model.WatchedMovie, 0, len(owner.WatchedRefs))
	for _, ref := range owner.WatchedRefs {
		if movie, ok := m.movies[ref]; ok {
			out = append(out, *movie)
		}
	}
	return out, nil
}

func (m *memory) UpdateWatchedMovie(ctx context.Context, recordID, ownerID string, patch model.MoviePatch) (*model.WatchedMovie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	movie, exists := m.movies[recordID]
	if !exists {
		return nil, ErrNotFound
	}
	if movie.OwnerID != ownerID {
		return nil, ErrNotOwner
	}

	applyPatch(movie, patch)
	movie.UpdatedAt = time.Now().UTC()
	movieCopy := *movie
	return &movieCopy, nil
}

func (m *memory) DeleteWatchedMovie(ctx context.Context, recordID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	movie, exists := m.movies[recordID]
	if !exists || movie.OwnerID != ownerID {
		return ErrNotFound
	}

	delete(m.movies, recordID)
	if catalog := m.catalogByOwner[ownerID]; catalog != nil {
		delete(catalog, movie.TMDBID)
	}
	if owner, ok := m.accounts[ownerID]; ok {
		refs := owner.WatchedRefs[:0]
		for _, ref := range owner.WatchedRefs {
			if ref != recordID {
				refs = append(refs, ref)
			}
		}
		owner.WatchedRefs = refs
	}
	return nil
}

func (m *memory) MapOwnedCatalogIDs(ctx context.Context, ownerID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.catalogByOwner[ownerID]))
	for tmdbID, recordID := range m.catalogByOwner[ownerID] {
		out[tmdbID] = recordID
	}
	return out, nil
}

func copyAccount(account *model.Account) *model.Account {
	accountCopy := *account
	accountCopy.WatchedRefs = append([]string(nil), account.WatchedRefs...)
	return &accountCopy
}

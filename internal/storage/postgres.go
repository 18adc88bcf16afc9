// internal/storage/postgres.go
// Package storage provides PostgreSQL implementation of the Store interface.
// This implementation is intended for production use with persistent data storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// It provides persistent storage for accounts and watched movie records.
type postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
// Parameters:
//   - dsn: Database connection string in PostgreSQL format
// Returns:
//   - Store: Implementation of the storage interface
//   - error: Any error that occurred during initialization
func NewPostgres(dsn string) (Store, error) {
	// Parse the database connection string
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	// Configure connection pool settings for optimal performance
	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	// Establish connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize database schema
	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema initializes the database schema.
// It creates all required tables and indexes if they don't already exist.
// This function is called automatically when creating a new PostgreSQL store.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	// SQL schema definition with all required tables and indexes
	schema := `
		-- Accounts table for storing user accounts
		CREATE TABLE IF NOT EXISTS accounts (
		    id TEXT PRIMARY KEY,                     -- Unique account identifier
		    name TEXT NOT NULL,                      -- Display name
		    email TEXT NOT NULL UNIQUE,              -- Login email, lower-cased
		    password_hash TEXT NOT NULL,             -- bcrypt hash of the password
		    verified BOOLEAN NOT NULL DEFAULT FALSE, -- Whether the email is verified
		    verify_code TEXT NOT NULL DEFAULT '',    -- Pending verification code
		    verify_code_expires TIMESTAMP WITH TIME ZONE,  -- When the verification code lapses
		    reset_code TEXT NOT NULL DEFAULT '',     -- Pending password reset code
		    reset_code_expires TIMESTAMP WITH TIME ZONE,   -- When the reset code lapses
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()  -- Account creation time
		);

		-- Watched movies table for per-user movie records
		CREATE TABLE IF NOT EXISTS watched_movies (
		    id TEXT PRIMARY KEY,                     -- Unique record identifier
		    owner_id TEXT NOT NULL REFERENCES accounts(id),  -- Owning account
		    tmdb_id TEXT NOT NULL,                   -- Catalog identifier
		    imdb_id TEXT NOT NULL,                   -- External rating identifier
		    title TEXT NOT NULL,                     -- Movie title
		    poster_path TEXT NOT NULL,               -- Poster image path
		    description TEXT NOT NULL,               -- Plot overview
		    watch_time TIMESTAMP WITH TIME ZONE,     -- When the user watched it
		    rating DOUBLE PRECISION NOT NULL,        -- Personal rating
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),  -- Record creation time
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),  -- Last modification time
		    UNIQUE(owner_id, tmdb_id)                -- Each user tracks a movie at most once
		);

		-- Indexes for watched_movies table to improve query performance
		CREATE INDEX IF NOT EXISTS idx_watched_movies_owner_id ON watched_movies(owner_id);
		CREATE INDEX IF NOT EXISTS idx_watched_movies_watch_time ON watched_movies(watch_time DESC);

		-- Ordered reference list linking accounts to their records
		CREATE TABLE IF NOT EXISTS account_movie_refs (
		    seq BIGSERIAL PRIMARY KEY,               -- Insertion order
		    owner_id TEXT NOT NULL REFERENCES accounts(id),  -- Owning account
		    record_id TEXT NOT NULL REFERENCES watched_movies(id) ON DELETE CASCADE,  -- Referenced record
		    UNIQUE(owner_id, record_id)              -- One reference per record
		);

		-- Index for account_movie_refs table to improve query performance
		CREATE INDEX IF NOT EXISTS idx_account_movie_refs_owner_id ON account_movie_refs(owner_id, seq);
	`

	// Execute the schema creation SQL
	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

// CreateAccount creates a new account in the database
func (p *postgres) CreateAccount(ctx context.Context, account model.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `INSERT INTO accounts (id, name, email, password_hash, verified, verify_code, verify_code_expires, reset_code, reset_code_expires, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := p.db.Exec(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Verified,
		account.VerifyCode,
		nullableTime(account.VerifyCodeExpires),
		account.ResetCode,
		nullableTime(account.ResetCodeExpires),
		createdAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by its identifier
func (p *postgres) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT id, name, email, password_hash, verified, verify_code, verify_code_expires, reset_code, reset_code_expires, created_at
	          FROM accounts WHERE id = $1`

	account, err := p.scanAccount(p.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	refs, err := p.listRefs(ctx, id)
	if err != nil {
		return nil, err
	}
	account.WatchedRefs = refs

	return account, nil
}

// GetAccountByEmail retrieves an account by its login email
func (p *postgres) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT id, name, email, password_hash, verified, verify_code, verify_code_expires, reset_code, reset_code_expires, created_at
	          FROM accounts WHERE LOWER(email) = LOWER($1)`

	account, err := p.scanAccount(p.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, err
	}

	refs, err := p.listRefs(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.WatchedRefs = refs

	return account, nil
}

// UpdateAccount updates the mutable auth state of an account.
// The watched reference list is maintained by the movie operations and is
// never touched here.
func (p *postgres) UpdateAccount(ctx context.Context, account model.Account) error {
	query := `UPDATE accounts SET name = $1, password_hash = $2, verified = $3, verify_code = $4, verify_code_expires = $5, reset_code = $6, reset_code_expires = $7
	          WHERE id = $8`

	result, err := p.db.Exec(ctx, query,
		account.Name,
		account.PasswordHash,
		account.Verified,
		account.VerifyCode,
		nullableTime(account.VerifyCodeExpires),
		account.ResetCode,
		nullableTime(account.ResetCodeExpires),
		account.ID)

	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateWatchedMovie inserts a movie record and its owner reference in a
// single transaction so the two are never observed apart.
func (p *postgres) CreateWatchedMovie(ctx context.Context, movie model.WatchedMovie) error {
	// First check if account exists
	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, movie.OwnerID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO watched_movies (id, owner_id, tmdb_id, imdb_id, title, poster_path, description, watch_time, rating, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = tx.Exec(ctx, query,
		movie.ID,
		movie.OwnerID,
		movie.TMDBID,
		movie.IMDBID,
		movie.Title,
		movie.PosterPath,
		movie.Description,
		nullableTime(movie.WatchTime),
		movie.Rating,
		movie.CreatedAt,
		movie.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create watched movie: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO account_movie_refs (owner_id, record_id) VALUES ($1, $2)`, movie.OwnerID, movie.ID)
	if err != nil {
		return fmt.Errorf("failed to create movie reference: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetWatchedMovie retrieves a record scoped to its owner.
// A record owned by someone else reads as absent.
func (p *postgres) GetWatchedMovie(ctx context.Context, recordID, ownerID string) (*model.WatchedMovie, error) {
	query := `SELECT id, owner_id, tmdb_id, imdb_id, title, poster_path, description, watch_time, rating, created_at, updated_at
	          FROM watched_movies WHERE id = $1 AND owner_id = $2`

	return p.scanMovie(p.db.QueryRow(ctx, query, recordID, ownerID))
}

// ListWatchedMovies lists an account's records in insertion order
func (p *postgres) ListWatchedMovies(ctx context.Context, ownerID string) ([]model.WatchedMovie, error) {
	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, ownerID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	query := `SELECT m.id, m.owner_id, m.tmdb_id, m.imdb_id, m.title, m.poster_path, m.description, m.watch_time, m.rating, m.created_at, m.updated_at
	          FROM watched_movies m
	          JOIN account_movie_refs r ON r.record_id = m.id
	          WHERE r.owner_id = $1
	          ORDER BY r.seq ASC`

	rows, err := p.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watched movies: %w", err)
	}
	defer rows.Close()

	movies := make([]model.WatchedMovie, 0)
	for rows.Next() {
		movie, err := scanMovieRow(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, *movie)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watched movies: %w", err)
	}
	return movies, nil
}

// UpdateWatchedMovie applies a partial update to an owned record.
// Updating another user's record is rejected rather than hidden, so callers
// can surface the distinction.
func (p *postgres) UpdateWatchedMovie(ctx context.Context, recordID, ownerID string, patch model.MoviePatch) (*model.WatchedMovie, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT id, owner_id, tmdb_id, imdb_id, title, poster_path, description, watch_time, rating, created_at, updated_at
	          FROM watched_movies WHERE id = $1 FOR UPDATE`

	movie, err := p.scanMovie(tx.QueryRow(ctx, query, recordID))
	if err != nil {
		return nil, err
	}
	if movie.OwnerID != ownerID {
		return nil, ErrNotOwner
	}

	applyPatch(movie, patch)
	movie.UpdatedAt = time.Now().UTC()

	update := `UPDATE watched_movies SET title = $1, poster_path = $2, description = $3, watch_time = $4, rating = $5, updated_at = $6
	           WHERE id = $7`

	_, err = tx.Exec(ctx, update,
		movie.Title,
		movie.PosterPath,
		movie.Description,
		nullableTime(movie.WatchTime),
		movie.Rating,
		movie.UpdatedAt,
		movie.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update watched movie: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return movie, nil
}

// DeleteWatchedMovie removes a record and its owner reference together
func (p *postgres) DeleteWatchedMovie(ctx context.Context, recordID, ownerID string) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM account_movie_refs WHERE owner_id = $1 AND record_id = $2`, ownerID, recordID); err != nil {
		return fmt.Errorf("failed to delete movie reference: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM watched_movies WHERE id = $1 AND owner_id = $2`, recordID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete watched movie: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MapOwnedCatalogIDs returns the catalog identifiers an account already
// tracks, keyed to the owning record
func (p *postgres) MapOwnedCatalogIDs(ctx context.Context, ownerID string) (map[string]string, error) {
	rows, err := p.db.Query(ctx, `SELECT tmdb_id, id FROM watched_movies WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to map owned catalog ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var tmdbID, recordID string
		if err := rows.Scan(&tmdbID, &recordID); err != nil {
			return nil, fmt.Errorf("failed to scan catalog mapping: %w", err)
		}
		out[tmdbID] = recordID
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog mappings: %w", err)
	}
	return out, nil
}

// listRefs fetches an account's reference list in insertion order
func (p *postgres) listRefs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT record_id FROM account_movie_refs WHERE owner_id = $1 ORDER BY seq ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list movie references: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("failed to scan movie reference: %w", err)
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating movie references: %w", err)
	}
	return refs, nil
}

func (p *postgres) scanAccount(row pgx.Row) (*model.Account, error) {
	var account model.Account
	var verifyExpires, resetExpires *time.Time

	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&account.Verified,
		&account.VerifyCode,
		&verifyExpires,
		&account.ResetCode,
		&resetExpires,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if verifyExpires != nil {
		account.VerifyCodeExpires = *verifyExpires
	}
	if resetExpires != nil {
		account.ResetCodeExpires = *resetExpires
	}
	return &account, nil
}

func (p *postgres) scanMovie(row pgx.Row) (*model.WatchedMovie, error) {
	movie, err := scanMovieRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return movie, nil
}

func scanMovieRow(row pgx.Row) (*model.WatchedMovie, error) {
	var movie model.WatchedMovie
	var watchTime *time.Time

	err := row.Scan(
		&movie.ID,
		&movie.OwnerID,
		&movie.TMDBID,
		&movie.IMDBID,
		&movie.Title,
		&movie.PosterPath,
		&movie.Description,
		&watchTime,
		&movie.Rating,
		&movie.CreatedAt,
		&movie.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan watched movie: %w", err)
	}

	if watchTime != nil {
		movie.WatchTime = *watchTime
	}
	return &movie, nil
}

// nullableTime maps the zero time to NULL so unknown dates round-trip
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Package model defines the data structures used throughout the cinetrack service.
// These structures represent the core domain objects for accounts, watched-movie
// records, and the transient shapes returned by the metadata gateway.
package model

import (
	"time"
)

// Account represents a registered user of the service.
// It carries the credential hash and the one-time-code state used by the
// email-verification and password-reset flows, plus the ordered list of
// watched-movie record ids the account owns.
// This corresponds to the accounts table in storage.
type Account struct {
	ID                 string    `json:"id" db:"id"`                     // Unique account identifier (ULID)
	Name               string    `json:"name" db:"name"`                 // Display name
	Email              string    `json:"email" db:"email"`               // Unique, lower-cased email address
	PasswordHash       string    `json:"-" db:"password_hash"`           // bcrypt credential hash, never serialized
	Verified           bool      `json:"verified" db:"verified"`         // Whether the email address has been verified
	VerifyCode         string    `json:"-" db:"verify_code"`             // Pending email-verification one-time code
	VerifyCodeExpires  time.Time `json:"-" db:"verify_code_expires"`     // When the verification code lapses
	ResetCode          string    `json:"-" db:"reset_code"`              // Pending password-reset one-time code
	ResetCodeExpires   time.Time `json:"-" db:"reset_code_expires"`      // When the reset code lapses
	WatchedRefs        []string  `json:"watchedRefs" db:"watched_refs"`  // Ordered ids of owned watched-movie records
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`      // When the account was created
}

// WatchedMovie is a user's personal record of having watched a specific film.
// TMDBID is the external catalog identifier; IMDBID is the secondary
// identifier backfilled from the primary provider's detail record at add
// time. Title and PosterPath are denormalized copies and never re-fetched.
// This corresponds to the watched_movies table in storage.
type WatchedMovie struct {
	ID          string    `json:"id" db:"id"`                    // Unique record identifier (ULID)
	OwnerID     string    `json:"ownerId" db:"owner_id"`         // Owning account id, immutable after creation
	TMDBID      string    `json:"tmdbId" db:"tmdb_id"`           // Catalog identifier, immutable after creation
	IMDBID      string    `json:"imdbId,omitempty" db:"imdb_id"` // Secondary identifier, may be empty
	Title       string    `json:"title" db:"title"`              // Denormalized film title
	PosterPath  string    `json:"posterPath,omitempty" db:"poster_path"`
	Description string    `json:"description,omitempty" db:"description"`
	WatchTime   time.Time `json:"watchTime" db:"watch_time"`     // When the user watched the film (required)
	Rating      float64   `json:"rating" db:"rating"`            // User rating on the canonical 0-5 scale
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// SearchResult is a transient metadata-provider hit decorated with local
// ownership. RecordID carries the caller's watched-movie record id when the
// caller already logged this film, and is empty otherwise, letting the UI
// offer "edit" versus "add".
type SearchResult struct {
	TMDBID      string  `json:"tmdbId"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"posterPath,omitempty"`
	ReleaseDate string  `json:"releaseDate,omitempty"`
	Overview    string  `json:"overview,omitempty"`
	Popularity  float64 `json:"popularity"`
	RecordID    string  `json:"recordId,omitempty"` // Present only for films the caller owns
}

// MovieDetail is the merged detail view for a single film. Primary fields
// come from the catalog provider; the pointer fields are enrichment from the
// secondary provider and stay nil when that provider is unavailable.
type MovieDetail struct {
	TMDBID      string   `json:"tmdbId"`
	IMDBID      string   `json:"imdbId,omitempty"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview,omitempty"`
	PosterPath  string   `json:"posterPath,omitempty"`
	ReleaseDate string   `json:"releaseDate,omitempty"`
	Runtime     int      `json:"runtime,omitempty"`
	Genres      []string `json:"genres,omitempty"`

	// Enrichment, explicitly absent when the secondary provider fails.
	ExternalRating *string `json:"externalRating,omitempty"`
	Director       *string `json:"director,omitempty"`
	Actors         *string `json:"actors,omitempty"`
}

// MoviePatch carries the mutable fields of an update. Nil pointers mean
// "leave unchanged"; owner and catalog identifier are never patchable.
type MoviePatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	PosterPath  *string    `json:"posterPath,omitempty"`
	WatchTime   *time.Time `json:"watchTime,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
}

// AddMovieRequest is the request body for POST /api/user/movies.
// The owner is taken from the verified token subject, never from the body.
type AddMovieRequest struct {
	TMDBID      string  `json:"tmdbId"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"posterPath,omitempty"`
	Description string  `json:"description,omitempty"`
	WatchTime   string  `json:"watchTime"` // RFC 3339
	Rating      float64 `json:"rating"`
}

// SearchRequest is the request body for POST /api/movies/search.
type SearchRequest struct {
	Title string `json:"title"`
}

// DetailRequest is the request body for POST /api/movies/detail.
type DetailRequest struct {
	TMDBID string `json:"tmdbId"`
}

// Profile is the public projection of an account returned by
// GET /api/user/profile.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// PosterUploadRequest is the request body for POST /api/posters/uploadInit.
type PosterUploadRequest struct {
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Filename string `json:"filename,omitempty"`
}

// PosterFinalizeRequest is the request body for POST /api/posters/finalize.
type PosterFinalizeRequest struct {
	PosterPath string `json:"posterPath"`
}

// PosterUploadData contains what a client needs to upload a poster image.
type PosterUploadData struct {
	PosterPath string    `json:"posterPath"` // Path to store on the movie record once uploaded
	UploadURL  string    `json:"uploadUrl"`  // Presigned URL for the direct upload
	ExpiresAt  time.Time `json:"expiresAt"`  // When the upload URL expires
}

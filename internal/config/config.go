// Package config provides configuration loading and management for the cinetrack service.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// In development, it loads .env and .env.local files if they exist.
// In production, it relies solely on system environment variables.
// godotenv.Load() does not override already-set environment variables,
// preserving OS env > .env precedence.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// .env.local holds local overrides and is gitignored
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the cinetrack service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // PostgreSQL connection string (empty selects the in-memory store)
	NATSURL     string // NATS server URL for movie events

	// Session tokens
	JWTSecret   string // HS256 signing secret (required)
	JWTIssuer   string // Issuer claim stamped on and expected from tokens
	JWTAudience string // Audience claim stamped on and expected from tokens

	// Metadata providers
	TMDBBaseURL string // TMDb API base URL
	TMDBAPIKey  string // TMDb bearer token
	OMDBBaseURL string // OMDb API base URL
	OMDBAPIKey  string // OMDb api key

	// Poster object storage
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// Poster limits
	MaxPosterSize    int64    // Maximum poster size in bytes (default 5MB)
	AllowedMimeTypes []string // Allowed MIME types for poster uploads

	// CORS configuration
	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Default configuration values used when environment variables are not set
const (
	defaultPort        = "8080"
	defaultS3Region    = "us-east-1"
	defaultEnv         = "dev"
	defaultTMDBBaseURL = "https://api.themoviedb.org/3"
	defaultOMDBBaseURL = "https://www.omdbapi.com"
	defaultJWTIssuer   = "cinetrack"
	defaultJWTAudience = "cinetrack-web"
)

// Load reads environment variables and produces a Config suitable for wiring
// the service. Returns an error if required parameters are missing.
func Load() (Config, error) {
	cfg := Config{
		Env:         getEnv("CT_ENV", defaultEnv),
		Port:        getEnv("CT_PORT", defaultPort),
		JWTIssuer:   getEnv("CT_JWT_ISSUER", defaultJWTIssuer),
		JWTAudience: getEnv("CT_JWT_AUDIENCE", defaultJWTAudience),
		TMDBBaseURL: getEnv("CT_TMDB_BASE_URL", defaultTMDBBaseURL),
		OMDBBaseURL: getEnv("CT_OMDB_BASE_URL", defaultOMDBBaseURL),
		S3Region:    getEnv("CT_S3_REGION", defaultS3Region),
	}

	if dsn, exists := os.LookupEnv("CT_DB_DSN"); exists {
		cfg.DatabaseDSN = dsn
	}

	if natsURL, exists := os.LookupEnv("CT_NATS_URL"); exists {
		cfg.NATSURL = natsURL
	}

	if secret, exists := os.LookupEnv("CT_JWT_SECRET"); exists {
		cfg.JWTSecret = secret
	}

	if key, exists := os.LookupEnv("CT_TMDB_API_KEY"); exists {
		cfg.TMDBAPIKey = key
	}

	if key, exists := os.LookupEnv("CT_OMDB_API_KEY"); exists {
		cfg.OMDBAPIKey = key
	}

	if endpoint, exists := os.LookupEnv("CT_S3_ENDPOINT"); exists {
		cfg.S3Endpoint = endpoint
	}

	if bucket, exists := os.LookupEnv("CT_S3_BUCKET"); exists {
		cfg.S3Bucket = bucket
	}

	if accessKey, exists := os.LookupEnv("CT_S3_ACCESS_KEY"); exists {
		cfg.S3AccessKey = accessKey
	}

	if secretKey, exists := os.LookupEnv("CT_S3_SECRET_KEY"); exists {
		cfg.S3SecretKey = secretKey
	}

	if maxPosterSize, exists := os.LookupEnv("CT_MAX_POSTER_SIZE"); exists {
		if size, err := strconv.ParseInt(maxPosterSize, 10, 64); err == nil {
			cfg.MaxPosterSize = size
		}
	}
	if cfg.MaxPosterSize == 0 {
		cfg.MaxPosterSize = 5 * 1024 * 1024
	}

	if allowedMimeTypes, exists := os.LookupEnv("CT_ALLOWED_MIME_TYPES"); exists {
		cfg.AllowedMimeTypes = splitAndTrim(allowedMimeTypes)
	} else {
		cfg.AllowedMimeTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}

	if corsOrigins, exists := os.LookupEnv("CT_CORS_ALLOWED_ORIGINS"); exists {
		cfg.CORSAllowedOrigins = splitAndTrim(corsOrigins)
	}

	// Validate required parameters
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("CT_JWT_SECRET is required")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// splitAndTrim splits a comma-separated list and trims whitespace from each entry
func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

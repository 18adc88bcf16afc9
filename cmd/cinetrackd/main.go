// cmd/cinetrackd/main.go
// Package main implements the entry point for the cinetrack service.
// It initializes all components and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/auth"
	"github.com/cinetrack/cinetrack-go/internal/catalog"
	"github.com/cinetrack/cinetrack-go/internal/config"
	"github.com/cinetrack/cinetrack-go/internal/event"
	"github.com/cinetrack/cinetrack-go/internal/mail"
	"github.com/cinetrack/cinetrack-go/internal/media"
	"github.com/cinetrack/cinetrack-go/internal/server"
	"github.com/cinetrack/cinetrack-go/internal/storage"
	"github.com/cinetrack/cinetrack-go/internal/telemetry"
)

// main initializes all components, starts the HTTP server, and handles
// graceful shutdown.
func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer("cinetrack-service")
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize storage backend (PostgreSQL or in-memory)
	var store storage.Store
	if cfg.DatabaseDSN != "" {
		store, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
	} else {
		// In-memory storage for development and testing
		store = storage.NewMemory()
	}

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisherFromEnv()
	defer pub.Close()

	// Metadata providers behind the gateway
	primary := catalog.NewTMDB(cfg.TMDBBaseURL, cfg.TMDBAPIKey)
	secondary := catalog.NewOMDB(cfg.OMDBBaseURL, cfg.OMDBAPIKey)
	gw := catalog.NewGateway(primary, secondary, store, logger)

	authn := auth.New(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	mailer := mail.NewLogMailer(logger)

	// Poster object storage is optional; uploads fail cleanly without it
	var posters *media.PosterStore
	if cfg.S3Bucket != "" {
		posters, err = media.NewPosterStore(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			logger.Error("failed to initialize poster storage", "error", err)
			os.Exit(1)
		}
	}

	// Create HTTP mux with all handlers and middleware
	mux := server.NewMux(&cfg, store, pub, gw, authn, mailer, posters)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start server in a separate goroutine
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	// Close PostgreSQL storage if used
	if postgresStore, ok := store.(interface{ Close() }); ok {
		postgresStore.Close()
	}

	logger.Info("server exited")
}

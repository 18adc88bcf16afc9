// internal/event/nats.go
// Package event provides NATS JetStream implementation for event publishing.
// It streams watched-movie and account events to support activity feeds and
// audit trails.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/model"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher interface defines the event publishing operations required by the
// service. It provides methods for publishing watched-movie and account
// lifecycle events to the event stream.
type Publisher interface {
	// Watched-movie events
	PublishMovieAdded(ctx context.Context, movie model.WatchedMovie) error
	PublishMovieUpdated(ctx context.Context, movie model.WatchedMovie) error
	PublishMovieDeleted(ctx context.Context, recordID, ownerID string) error

	// Account events
	PublishAccountRegistered(ctx context.Context, account model.Account) error

	// Close closes the publisher connection
	Close() error
}

// noop is a no-op implementation of Publisher for when NATS is not configured.
// It implements all Publisher methods but does nothing, allowing the service
// to function without event streaming when NATS is not available.
type noop struct{}

func (n *noop) Close() error { return nil }

func (n *noop) PublishMovieAdded(ctx context.Context, movie model.WatchedMovie) error { return nil }

func (n *noop) PublishMovieUpdated(ctx context.Context, movie model.WatchedMovie) error { return nil }

func (n *noop) PublishMovieDeleted(ctx context.Context, recordID, ownerID string) error { return nil }

func (n *noop) PublishAccountRegistered(ctx context.Context, account model.Account) error { return nil }

// natsPub is the NATS JetStream implementation of Publisher.
// It connects to a NATS server and publishes events to JetStream streams.
type natsPub struct {
	nc *nats.Conn            // NATS connection
	js nats.JetStreamContext // JetStream context for stream operations

	// Deduplication fields
	dedup map[string]time.Time // Map of event keys to last publish time
	mutex sync.RWMutex         // Mutex for thread-safe access to the dedup map
}

// NewPublisherFromEnv creates a new publisher based on environment configuration.
// It reads the CT_NATS_URL environment variable to determine if NATS should be
// used. If NATS is not configured or connection fails, it returns a no-op
// publisher.
func NewPublisherFromEnv() Publisher {
	url := os.Getenv("CT_NATS_URL")
	if url == "" {
		return &noop{}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{
		nc:    nc,
		js:    js,
		dedup: make(map[string]time.Time),
	}
}

// initStreams initializes the required NATS streams.
// It creates the CT_MOVIES and CT_ACCOUNTS streams used for activity feeds
// and audit trails.
func initStreams(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "CT_MOVIES",
		Subjects:  []string{"ct.movies.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create CT_MOVIES stream: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      "CT_ACCOUNTS",
		Subjects:  []string{"ct.accounts.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create CT_ACCOUNTS stream: %w", err)
	}

	return nil
}

// EventEnvelope represents the standard event envelope structure.
// All events published to NATS are wrapped in this envelope for consistency.
type EventEnvelope struct {
	Type          string      `json:"type"`          // Event type identifier
	Version       string      `json:"version"`       // Event schema version
	OccurredAt    time.Time   `json:"occurredAt"`    // When the event occurred
	CorrelationID string      `json:"correlationId"` // Correlation ID for tracing
	Payload       interface{} `json:"payload"`       // Event-specific data
}

// Close closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// shouldDedup checks if an event should be deduplicated based on the 2-minute
// window. Keys combine the event type with the subject id so distinct event
// kinds for the same record never suppress each other.
func (p *natsPub) shouldDedup(key string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if lastTime, exists := p.dedup[key]; exists {
		return time.Since(lastTime) < 2*time.Minute
	}
	return false
}

// updateDedup updates the deduplication map with the current time for a given
// key. This should be called after successfully publishing an event.
func (p *natsPub) updateDedup(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	// Clean up old entries to prevent memory leaks
	cutoff := time.Now().Add(-5 * time.Minute)
	for k, t := range p.dedup {
		if t.Before(cutoff) {
			delete(p.dedup, k)
		}
	}

	p.dedup[key] = time.Now()
}

// publish wraps a payload in the standard envelope and sends it on subject,
// applying the dedup window keyed by dedupKey.
func (p *natsPub) publish(subject, eventType, dedupKey string, payload interface{}) error {
	if p.shouldDedup(dedupKey) {
		return nil
	}

	envelope := EventEnvelope{
		Type:          eventType,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if _, err := p.js.Publish(subject, b); err != nil {
		return err
	}

	p.updateDedup(dedupKey)
	return nil
}

// PublishMovieAdded publishes an event when a user logs a new watched movie.
func (p *natsPub) PublishMovieAdded(ctx context.Context, movie model.WatchedMovie) error {
	return p.publish("ct.movies.added", "ct.movies.added", "added:"+movie.ID, movie)
}

// PublishMovieUpdated publishes an event when a watched-movie record changes.
func (p *natsPub) PublishMovieUpdated(ctx context.Context, movie model.WatchedMovie) error {
	return p.publish("ct.movies.updated", "ct.movies.updated", "updated:"+movie.ID, movie)
}

// PublishMovieDeleted publishes an event when a watched-movie record is removed.
func (p *natsPub) PublishMovieDeleted(ctx context.Context, recordID, ownerID string) error {
	payload := map[string]string{"recordId": recordID, "ownerId": ownerID}
	return p.publish("ct.movies.deleted", "ct.movies.deleted", "deleted:"+recordID, payload)
}

// PublishAccountRegistered publishes an event when a new account is created.
// The payload is the account's public projection; credential and code state
// never leave the service.
func (p *natsPub) PublishAccountRegistered(ctx context.Context, account model.Account) error {
	payload := map[string]string{"accountId": account.ID, "name": account.Name}
	return p.publish("ct.accounts.registered", "ct.accounts.registered", "registered:"+account.ID, payload)
}

// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the cinetrack
// service. It provides RESTful endpoints for account, search, and
// watched-movie operations with JWT session authentication, schema
// validation, and event publishing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/auth"
	"github.com/cinetrack/cinetrack-go/internal/catalog"
	"github.com/cinetrack/cinetrack-go/internal/config"
	errordefs "github.com/cinetrack/cinetrack-go/internal/errors"
	"github.com/cinetrack/cinetrack-go/internal/event"
	"github.com/cinetrack/cinetrack-go/internal/mail"
	"github.com/cinetrack/cinetrack-go/internal/media"
	"github.com/cinetrack/cinetrack-go/internal/metrics"
	"github.com/cinetrack/cinetrack-go/internal/schema"
	"github.com/cinetrack/cinetrack-go/internal/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

const (
	// Context keys for storing request-scoped values
	ContextKeyAccountID     ContextKey = "accountId"     // Stores the account id from the session token
	ContextKeyCorrelationID ContextKey = "correlationId" // Unique ID for request tracking

	// SessionCookie carries the signed session token.
	SessionCookie = "ct_session"
)

// Mux handles HTTP requests for the cinetrack service.
// It implements all the required endpoints and manages dependencies such as
// storage, the metadata gateway, event publishing, and mail delivery.
type Mux struct {
	mux       *http.ServeMux    // HTTP request multiplexer
	s         storage.Store     // Storage interface for accounts and movies
	p         event.Publisher   // Event publisher for streaming updates
	gw        *catalog.Gateway  // Metadata gateway for external providers
	authn     *auth.Authenticator
	mailer    mail.Mailer
	posters   *media.PosterStore // S3 client for poster uploads, may be nil
	validator *schema.Validator  // Request payload validator
	metrics   *metrics.Metrics   // Metrics for monitoring

	// Poster limits
	maxPosterSize    int64
	allowedMimeTypes []string

	// CORS configuration
	corsAllowedOrigins []string

	// Cookie hardening, on outside development
	secureCookies bool
}

// NewMux creates a new HTTP mux with all service endpoints.
// It initializes the payload validator and registers the HTTP handlers.
func NewMux(cfg *config.Config, s storage.Store, p event.Publisher, gw *catalog.Gateway, authn *auth.Authenticator, mailer mail.Mailer, posters *media.PosterStore) *http.ServeMux {
	validator, err := schema.NewValidator()
	if err != nil {
		slog.Error("failed to initialize schema validator", "error", err)
		os.Exit(1)
	}

	m := &Mux{
		mux:                http.NewServeMux(),
		s:                  s,
		p:                  p,
		gw:                 gw,
		authn:              authn,
		mailer:             mailer,
		posters:            posters,
		validator:          validator,
		metrics:            metrics.NewMetrics(),
		maxPosterSize:      cfg.MaxPosterSize,
		allowedMimeTypes:   cfg.AllowedMimeTypes,
		corsAllowedOrigins: cfg.CORSAllowedOrigins,
		secureCookies:      cfg.Env != "dev" && cfg.Env != "development",
	}

	// Health and operational endpoints
	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	// Account endpoints
	m.mux.HandleFunc("/api/auth/register", m.method("POST", m.withMiddleware(m.handleRegister)))
	m.mux.HandleFunc("/api/auth/login", m.method("POST", m.withMiddleware(m.handleLogin)))
	m.mux.HandleFunc("/api/auth/logout", m.method("POST", m.withMiddleware(m.handleLogout)))
	m.mux.HandleFunc("/api/auth/is-auth", m.method("GET", m.withMiddleware(m.handleIsAuth)))
	m.mux.HandleFunc("/api/auth/send-verify-code", m.method("POST", m.withMiddleware(m.authed(m.handleSendVerifyCode))))
	m.mux.HandleFunc("/api/auth/verify-account", m.method("POST", m.withMiddleware(m.authed(m.handleVerifyAccount))))
	m.mux.HandleFunc("/api/auth/send-reset-code", m.method("POST", m.withMiddleware(m.handleSendResetCode)))
	m.mux.HandleFunc("/api/auth/reset-password", m.method("POST", m.withMiddleware(m.handleResetPassword)))

	// Metadata gateway endpoints, search works anonymously
	m.mux.HandleFunc("/api/movies/search", m.method("POST", m.withMiddleware(m.handleSearch)))
	m.mux.HandleFunc("/api/movies/detail", m.method("POST", m.withMiddleware(m.handleDetail)))

	// Watched-movie endpoints, always owner-scoped
	m.mux.HandleFunc("/api/user/movies", m.withMiddleware(m.authed(m.handleMovies)))
	m.mux.HandleFunc("/api/user/movies/", m.withMiddleware(m.authed(m.handleMovieItem)))
	m.mux.HandleFunc("/api/user/profile", m.method("GET", m.withMiddleware(m.authed(m.handleProfile))))

	// Poster uploads
	m.mux.HandleFunc("/api/posters/uploadInit", m.method("POST", m.withMiddleware(m.authed(m.handlePosterUploadInit))))
	m.mux.HandleFunc("/api/posters/finalize", m.method("POST", m.withMiddleware(m.authed(m.handlePosterFinalize))))

	return m.mux
}

// method ensures the HTTP method matches the expected method
func (m *Mux) method(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && r.Method != http.MethodOptions {
			err := errordefs.New(errordefs.CT_BAD_REQUEST, "method not allowed", "")
			m.writeErrorDef(w, err)
			return
		}
		h(w, r)
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// withMiddleware applies common middleware to handlers: CORS, correlation id
// assignment, request logging, and HTTP metrics.
func (m *Mux) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-Id")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusOK)
			return
		}

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(recorder, r)

		duration := time.Since(start)
		status := strconv.Itoa(recorder.status)
		m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration.Seconds())
		m.logRequest(r, recorder.status, duration, correlationID)
	}
}

// authed requires a valid session token and stores the account id in the
// request context. The account id is the only source of ownership downstream;
// client-supplied owner fields are never trusted.
func (m *Mux) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID, _ := r.Context().Value(ContextKeyCorrelationID).(string)

		accountID, err := m.callerAccountID(r)
		if err != nil {
			var errorDef *errordefs.Error
			if e, ok := err.(*errordefs.Error); ok {
				errorDef = e
				errorDef.CorrelationID = correlationID
			} else {
				errorDef = errordefs.New(errordefs.CT_AUTHN, err.Error(), correlationID)
			}
			m.writeErrorDef(w, errorDef)
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), ContextKeyAccountID, accountID))
		h(w, r)
	}
}

// callerAccountID extracts and verifies the session token from the request.
// The session cookie is the primary carrier; a bearer Authorization header
// works for non-browser clients.
func (m *Mux) callerAccountID(r *http.Request) (string, error) {
	var tokenString string
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		tokenString = c.Value
	} else if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	if tokenString == "" {
		return "", errordefs.New(errordefs.CT_AUTHN, "missing session token", "")
	}

	accountID, err := m.authn.Verify(tokenString)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return "", errordefs.New(errordefs.CT_TOKEN_EXPIRED, "session token expired", "")
		}
		return "", errordefs.New(errordefs.CT_TOKEN_INVALID, "invalid session token", "")
	}
	return accountID, nil
}

// optionalCallerAccountID returns the verified caller id, or empty when the
// request carries no usable token. Anonymous search uses it.
func (m *Mux) optionalCallerAccountID(r *http.Request) string {
	accountID, err := m.callerAccountID(r)
	if err != nil {
		return ""
	}
	return accountID
}

// setCORSHeaders sets the Access-Control-Allow-Origin header when the request
// origin is allowed.
func (m *Mux) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(m.corsAllowedOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, allowedOrigin := range m.corsAllowedOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			return
		}
	}
}

// setSessionCookie attaches a signed session token to the response.
func (m *Mux) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie on the client.
func (m *Mux) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"data": data,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeError writes an error response following the service error taxonomy
func (m *Mux) writeError(w http.ResponseWriter, statusCode int, code, message, correlationID string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":          code,
			"message":       message,
			"correlationId": correlationID,
		},
	}

	if details != nil {
		response["error"].(map[string]interface{})["details"] = details
	}

	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorDef writes an error response using the error definitions package
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *errordefs.Error) {
	m.writeError(w, err.HTTPStatus, string(err.Code), err.Message, err.CorrelationID, err.Details)
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
	}

	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	if accountID, ok := r.Context().Value(ContextKeyAccountID).(string); ok && accountID != "" {
		attrs = append(attrs, slog.String("account_id", accountID))
	}

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(r.Context(), level, "request completed", attrs...)
}

// observeStorage records a storage operation metric.
func (m *Mux) observeStorage(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.StorageOperationTotal.WithLabelValues(operation, status).Inc()
	m.metrics.StorageOperationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// observeProvider records an external provider request metric.
func (m *Mux) observeProvider(provider, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.ProviderRequestTotal.WithLabelValues(provider, operation, status).Inc()
	m.metrics.ProviderRequestDuration.WithLabelValues(provider, operation, status).Observe(time.Since(start).Seconds())
}

// observeValidation records a schema validation metric.
func (m *Mux) observeValidation(schemaName string, err error) {
	status := "ok"
	if err != nil {
		status = "invalid"
	}
	m.metrics.SchemaValidationTotal.WithLabelValues(schemaName, status).Inc()
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz handles readiness health check requests
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// A lookup that misses still proves the store is reachable.
	_, err := m.s.GetAccount(ctx, "health-check")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// correlationIDFrom extracts the correlation id stored by the middleware.
func correlationIDFrom(ctx context.Context) string {
	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	return correlationID
}

// accountIDFrom extracts the verified caller id stored by the auth middleware.
func accountIDFrom(ctx context.Context) string {
	accountID, _ := ctx.Value(ContextKeyAccountID).(string)
	return accountID
}

// decodeBody decodes a JSON request body into both a typed struct and the
// generic map the schema validator consumes.
func decodeBody(r *http.Request, v interface{}) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return nil, err
	}
	return raw, nil
}

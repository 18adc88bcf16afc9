// integration/session_gate_test.go
// Package integration exercises the session token gate through the full HTTP
// stack, covering the bearer header path used by non-browser clients.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/auth"
	"github.com/cinetrack/cinetrack-go/internal/catalog"
	"github.com/cinetrack/cinetrack-go/internal/config"
	"github.com/cinetrack/cinetrack-go/internal/mail"
	"github.com/cinetrack/cinetrack-go/internal/model"
	"github.com/cinetrack/cinetrack-go/internal/server"
	"github.com/cinetrack/cinetrack-go/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"io"
	"log/slog"
)

const (
	testSecret   = "integration-secret"
	testIssuer   = "cinetrack"
	testAudience = "cinetrack-web"
)

// gateTestPublisher records published movie events.
type gateTestPublisher struct {
	movieEvents []model.WatchedMovie
}

func (p *gateTestPublisher) PublishMovieAdded(ctx context.Context, movie model.WatchedMovie) error {
	p.movieEvents = append(p.movieEvents, movie)
	return nil
}

func (p *gateTestPublisher) PublishMovieUpdated(ctx context.Context, movie model.WatchedMovie) error {
	return nil
}

func (p *gateTestPublisher) PublishMovieDeleted(ctx context.Context, recordID, ownerID string) error {
	return nil
}

func (p *gateTestPublisher) PublishAccountRegistered(ctx context.Context, account model.Account) error {
	return nil
}

func (p *gateTestPublisher) Close() error { return nil }

// signToken builds an HS256 token with arbitrary claims, letting tests forge
// expired or mis-scoped tokens the authenticator itself would never issue.
func signToken(t *testing.T, secret, issuer, audience, subject string, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// newGateMux builds the service mux with a seeded account and a fake primary
// provider that answers any detail lookup.
func newGateMux(t *testing.T) (*http.ServeMux, *gateTestPublisher, string) {
	t.Helper()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":550,"imdb_id":"tt0137523","title":"Fight Club"}`)
	}))
	t.Cleanup(primary.Close)

	store := storage.NewMemory()
	accountID := ulid.Make().String()
	account := model.Account{
		ID:        accountID,
		Name:      "Gate Tester",
		Email:     "gate@example.com",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	pub := &gateTestPublisher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := catalog.NewGateway(catalog.NewTMDB(primary.URL, "key"), catalog.NewOMDB(primary.URL, "key"), store, log)
	authn := auth.New(testSecret, testIssuer, testAudience)

	cfg := &config.Config{
		Env:              "dev",
		MaxPosterSize:    1024 * 1024,
		AllowedMimeTypes: []string{"image/jpeg"},
	}
	mux := server.NewMux(cfg, store, pub, gw, authn, mail.NewLogMailer(log), nil)
	return mux, pub, accountID
}

// doBearer performs a request carrying a bearer token.
func doBearer(mux *http.ServeMux, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	if env.Error == nil {
		t.Fatalf("expected error envelope, got %s", rr.Body.String())
	}
	return env.Error.Code
}

func TestBearerTokenGate(t *testing.T) {
	mux, pub, accountID := newGateMux(t)

	t.Run("ValidToken", func(t *testing.T) {
		token := signToken(t, testSecret, testIssuer, testAudience, accountID, time.Now().Add(time.Hour))

		body := `{"tmdbId":"550","title":"Fight Club","watchTime":"2024-05-01T22:00:00Z","rating":4}`
		rr := doBearer(mux, http.MethodPost, "/api/user/movies", token, body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("add returned status %d: %s", rr.Code, rr.Body.String())
		}

		// Ownership derives from the token subject, never from the payload.
		if len(pub.movieEvents) != 1 {
			t.Fatalf("expected one published event, got %d", len(pub.movieEvents))
		}
		if pub.movieEvents[0].OwnerID != accountID {
			t.Errorf("record owner %q should match token subject %q", pub.movieEvents[0].OwnerID, accountID)
		}
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		token := signToken(t, testSecret, testIssuer, testAudience, accountID, time.Now().Add(-time.Hour))

		rr := doBearer(mux, http.MethodGet, "/api/user/movies", token, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expired token returned status %d, want %d", rr.Code, http.StatusUnauthorized)
		}
		if code := errorCode(t, rr); code != "CT_TOKEN_EXPIRED" {
			t.Errorf("expected CT_TOKEN_EXPIRED, got %s", code)
		}
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		token := signToken(t, testSecret, "someone-else", testAudience, accountID, time.Now().Add(time.Hour))

		rr := doBearer(mux, http.MethodGet, "/api/user/movies", token, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("wrong issuer returned status %d, want %d", rr.Code, http.StatusUnauthorized)
		}
		if code := errorCode(t, rr); code != "CT_TOKEN_INVALID" {
			t.Errorf("expected CT_TOKEN_INVALID, got %s", code)
		}
	})

	t.Run("WrongAudience", func(t *testing.T) {
		token := signToken(t, testSecret, testIssuer, "other-app", accountID, time.Now().Add(time.Hour))

		rr := doBearer(mux, http.MethodGet, "/api/user/movies", token, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("wrong audience returned status %d, want %d", rr.Code, http.StatusUnauthorized)
		}
		if code := errorCode(t, rr); code != "CT_TOKEN_INVALID" {
			t.Errorf("expected CT_TOKEN_INVALID, got %s", code)
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token := signToken(t, "other-secret", testIssuer, testAudience, accountID, time.Now().Add(time.Hour))

		rr := doBearer(mux, http.MethodGet, "/api/user/movies", token, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("wrong secret returned status %d, want %d", rr.Code, http.StatusUnauthorized)
		}
		if code := errorCode(t, rr); code != "CT_TOKEN_INVALID" {
			t.Errorf("expected CT_TOKEN_INVALID, got %s", code)
		}
	})

	t.Run("MissingToken", func(t *testing.T) {
		rr := doBearer(mux, http.MethodGet, "/api/user/movies", "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("missing token returned status %d, want %d", rr.Code, http.StatusUnauthorized)
		}
		if code := errorCode(t, rr); code != "CT_AUTHN" {
			t.Errorf("expected CT_AUTHN, got %s", code)
		}
	})
}

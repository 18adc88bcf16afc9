// internal/server/mux_test.go
// Package server provides unit tests for the HTTP handlers and routing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cinetrack/cinetrack-go/internal/auth"
	"github.com/cinetrack/cinetrack-go/internal/catalog"
	"github.com/cinetrack/cinetrack-go/internal/config"
	"github.com/cinetrack/cinetrack-go/internal/mail"
	"github.com/cinetrack/cinetrack-go/internal/model"
	"github.com/cinetrack/cinetrack-go/internal/storage"
)

// mockPublisher implements event.Publisher for testing purposes. It counts
// published movie events so tests can assert the side effect fired.
type mockPublisher struct {
	added   atomic.Int64
	updated atomic.Int64
	deleted atomic.Int64
}

func (m *mockPublisher) PublishMovieAdded(ctx context.Context, movie model.WatchedMovie) error {
	m.added.Add(1)
	return nil
}

func (m *mockPublisher) PublishMovieUpdated(ctx context.Context, movie model.WatchedMovie) error {
	m.updated.Add(1)
	return nil
}

func (m *mockPublisher) PublishMovieDeleted(ctx context.Context, recordID, ownerID string) error {
	m.deleted.Add(1)
	return nil
}

func (m *mockPublisher) PublishAccountRegistered(ctx context.Context, account model.Account) error {
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// envelope matches the wire format of every JSON response.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newTestMux builds a mux backed by the in-memory store and fake metadata
// providers. The fake primary knows one movie (id 603) with two search hits;
// the fake secondary enriches its IMDb identifier.
func newTestMux(t *testing.T) (*http.ServeMux, *mockPublisher) {
	t.Helper()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/search/movie"):
			fmt.Fprint(w, `{"results":[
				{"id":603,"title":"The Matrix","poster_path":"/matrix.jpg","release_date":"1999-03-31","popularity":50.0},
				{"id":604,"title":"The Matrix Reloaded","poster_path":"/reloaded.jpg","release_date":"2003-05-15","popularity":80.0}
			]}`)
		case strings.HasSuffix(r.URL.Path, "/movie/603"):
			fmt.Fprint(w, `{"id":603,"imdb_id":"tt0133093","title":"The Matrix","poster_path":"/matrix.jpg","overview":"A hacker learns the truth.","release_date":"1999-03-31","runtime":136,"genres":[{"name":"Action"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status_message":"not found"}`)
		}
	}))
	t.Cleanup(primary.Close)

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("i") == "tt0133093" {
			fmt.Fprint(w, `{"Response":"True","imdbRating":"8.7","Director":"Lana Wachowski, Lilly Wachowski","Actors":"Keanu Reeves, Laurence Fishburne"}`)
			return
		}
		fmt.Fprint(w, `{"Response":"False","Error":"Incorrect IMDb ID."}`)
	}))
	t.Cleanup(secondary.Close)

	store := storage.NewMemory()
	pub := &mockPublisher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := catalog.NewGateway(catalog.NewTMDB(primary.URL, "test-key"), catalog.NewOMDB(secondary.URL, "test-key"), store, log)
	authn := auth.New("test-secret", "cinetrack", "cinetrack-clients")

	cfg := &config.Config{
		Env:              "dev",
		MaxPosterSize:    1024 * 1024,
		AllowedMimeTypes: []string{"image/jpeg", "image/png"},
	}

	mux := NewMux(cfg, store, pub, gw, authn, mail.NewLogMailer(log), nil)
	return mux, pub
}

// doJSON performs a JSON request against the mux and returns the recorder.
func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

// registerAccount registers a fresh account and returns its session cookie.
func registerAccount(t *testing.T, mux *http.ServeMux, email string) *http.Cookie {
	t.Helper()

	body := fmt.Sprintf(`{"name":"Test User","email":%q,"password":"correct horse"}`, email)
	rr := doJSON(t, mux, http.MethodPost, "/api/auth/register", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register returned status %d: %s", rr.Code, rr.Body.String())
	}

	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("register did not set a session cookie")
	return nil
}

// addMovie records movie 603 for the session and returns the new record id.
func addMovie(t *testing.T, mux *http.ServeMux, cookie *http.Cookie, watchTime string) string {
	t.Helper()

	body := fmt.Sprintf(`{"tmdbId":"603","title":"The Matrix","posterPath":"/matrix.jpg","watchTime":%q,"rating":4.5}`, watchTime)
	rr := doJSON(t, mux, http.MethodPost, "/api/user/movies", body, cookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add movie returned status %d: %s", rr.Code, rr.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode add response: %v", err)
	}
	var data struct {
		Movie model.WatchedMovie `json:"movie"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("failed to decode movie payload: %v", err)
	}
	if data.Movie.ID == "" {
		t.Fatal("add movie returned an empty record id")
	}
	return data.Movie.ID
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return env
}

func TestHealthzEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("handler returned unexpected body: got %v want ok", rr.Body.String())
	}
}

func TestReadyzEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
}

func TestRegisterSetsSessionCookie(t *testing.T) {
	mux, _ := newTestMux(t)

	cookie := registerAccount(t, mux, "alice@example.com")
	if !cookie.HttpOnly {
		t.Error("session cookie should be http-only")
	}

	// The fresh session authenticates immediately.
	rr := doJSON(t, mux, http.MethodGet, "/api/auth/is-auth", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("is-auth returned status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"authenticated":true`) {
		t.Errorf("expected authenticated session, got %s", rr.Body.String())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	mux, _ := newTestMux(t)

	registerAccount(t, mux, "bob@example.com")

	body := `{"name":"Other Bob","email":"Bob@Example.com","password":"hunter2hunter2"}`
	rr := doJSON(t, mux, http.MethodPost, "/api/auth/register", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register returned status %d, want %d", rr.Code, http.StatusConflict)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_CONFLICT" {
		t.Errorf("expected CT_CONFLICT error, got %+v", env.Error)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	mux, _ := newTestMux(t)

	body := `{"name":"Eve","email":"eve@example.com","password":"short"}`
	rr := doJSON(t, mux, http.MethodPost, "/api/auth/register", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("register returned status %d, want %d", rr.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_SCHEMA_REJECT" {
		t.Errorf("expected CT_SCHEMA_REJECT error, got %+v", env.Error)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	mux, _ := newTestMux(t)

	registerAccount(t, mux, "carol@example.com")

	rr := doJSON(t, mux, http.MethodPost, "/api/auth/login", `{"email":"carol@example.com","password":"wrong password"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("login returned status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_AUTHN" {
		t.Errorf("expected CT_AUTHN error, got %+v", env.Error)
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodPost, "/api/auth/login", `{"email":"nobody@example.com","password":"whatever123"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("login returned status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_AUTHN" {
		t.Errorf("expected CT_AUTHN error, got %+v", env.Error)
	}
}

func TestMoviesRequireAuth(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodGet, "/api/user/movies", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list returned status %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	// A garbage bearer token is rejected the same way.
	req := httptest.NewRequest(http.MethodGet, "/api/user/movies", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token returned status %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != "CT_TOKEN_INVALID" {
		t.Errorf("expected CT_TOKEN_INVALID error, got %+v", env.Error)
	}
}

func TestAddMovieBackfillsIMDBID(t *testing.T) {
	mux, pub := newTestMux(t)
	cookie := registerAccount(t, mux, "dave@example.com")

	body := `{"tmdbId":"603","title":"The Matrix","watchTime":"2024-03-15T20:00:00Z","rating":5}`
	rr := doJSON(t, mux, http.MethodPost, "/api/user/movies", body, cookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add returned status %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"imdbId":"tt0133093"`) {
		t.Errorf("expected backfilled imdb id in response, got %s", rr.Body.String())
	}
	if pub.added.Load() != 1 {
		t.Errorf("expected one movie-added event, got %d", pub.added.Load())
	}
}

func TestAddMovieUnknownCatalogID(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "erin@example.com")

	body := `{"tmdbId":"999999","title":"Ghost Film","watchTime":"2024-03-15T20:00:00Z","rating":3}`
	rr := doJSON(t, mux, http.MethodPost, "/api/user/movies", body, cookie)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("add returned status %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestAddMovieSchemaReject(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "frank@example.com")

	body := `{"tmdbId":"603","title":"The Matrix","watchTime":"2024-03-15T20:00:00Z","rating":9}`
	rr := doJSON(t, mux, http.MethodPost, "/api/user/movies", body, cookie)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("add returned status %d, want %d", rr.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_SCHEMA_REJECT" {
		t.Errorf("expected CT_SCHEMA_REJECT error, got %+v", env.Error)
	}
}

func TestAddDuplicateMovie(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "grace@example.com")

	addMovie(t, mux, cookie, "2024-03-15T20:00:00Z")

	body := `{"tmdbId":"603","title":"The Matrix","watchTime":"2024-04-01T20:00:00Z","rating":4}`
	rr := doJSON(t, mux, http.MethodPost, "/api/user/movies", body, cookie)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate add returned status %d, want %d", rr.Code, http.StatusConflict)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_DUPLICATE_MOVIE" {
		t.Errorf("expected CT_DUPLICATE_MOVIE error, got %+v", env.Error)
	}
}

func TestListMoviesGrouped(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "heidi@example.com")

	addMovie(t, mux, cookie, "2024-03-15T20:00:00Z")

	rr := doJSON(t, mux, http.MethodGet, "/api/user/movies?groupByMonth=true", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("list returned status %d: %s", rr.Code, rr.Body.String())
	}

	env := decodeEnvelope(t, rr)
	var lv struct {
		Grouped bool `json:"grouped"`
		Empty   bool `json:"empty"`
		Groups  []struct {
			Label  string               `json:"label"`
			Movies []model.WatchedMovie `json:"movies"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(env.Data, &lv); err != nil {
		t.Fatalf("failed to decode list view: %v", err)
	}
	if !lv.Grouped || lv.Empty {
		t.Fatalf("expected non-empty grouped view, got grouped=%v empty=%v", lv.Grouped, lv.Empty)
	}
	if len(lv.Groups) != 1 || lv.Groups[0].Label != "March 2024" {
		t.Errorf("expected a single March 2024 group, got %+v", lv.Groups)
	}
}

func TestListMoviesFilter(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "ivan@example.com")

	addMovie(t, mux, cookie, "2024-03-15T20:00:00Z")

	rr := doJSON(t, mux, http.MethodGet, "/api/user/movies?q=matrix", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("list returned status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "The Matrix") {
		t.Errorf("expected filtered list to keep The Matrix, got %s", rr.Body.String())
	}

	rr = doJSON(t, mux, http.MethodGet, "/api/user/movies?q=nonexistent", "", cookie)
	env := decodeEnvelope(t, rr)
	if !strings.Contains(string(env.Data), `"empty":true`) {
		t.Errorf("expected empty view for non-matching filter, got %s", env.Data)
	}
}

func TestUpdateMovie(t *testing.T) {
	mux, pub := newTestMux(t)
	cookie := registerAccount(t, mux, "judy@example.com")
	recordID := addMovie(t, mux, cookie, "2024-03-15T20:00:00Z")

	rr := doJSON(t, mux, http.MethodPut, "/api/user/movies/"+recordID, `{"rating":2.5}`, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("update returned status %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"rating":2.5`) {
		t.Errorf("expected updated rating, got %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"title":"The Matrix"`) {
		t.Errorf("partial update should preserve title, got %s", rr.Body.String())
	}
	if pub.updated.Load() != 1 {
		t.Errorf("expected one movie-updated event, got %d", pub.updated.Load())
	}
}

func TestUpdateMovieNotOwner(t *testing.T) {
	mux, _ := newTestMux(t)
	ownerCookie := registerAccount(t, mux, "owner@example.com")
	otherCookie := registerAccount(t, mux, "other@example.com")
	recordID := addMovie(t, mux, ownerCookie, "2024-03-15T20:00:00Z")

	rr := doJSON(t, mux, http.MethodPut, "/api/user/movies/"+recordID, `{"rating":1}`, otherCookie)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("cross-owner update returned status %d, want %d", rr.Code, http.StatusForbidden)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_NOT_OWNER" {
		t.Errorf("expected CT_NOT_OWNER error, got %+v", env.Error)
	}
}

func TestDeleteMovie(t *testing.T) {
	mux, pub := newTestMux(t)
	cookie := registerAccount(t, mux, "kate@example.com")
	recordID := addMovie(t, mux, cookie, "2024-03-15T20:00:00Z")

	rr := doJSON(t, mux, http.MethodDelete, "/api/user/movies/"+recordID, "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete returned status %d: %s", rr.Code, rr.Body.String())
	}
	if pub.deleted.Load() != 1 {
		t.Errorf("expected one movie-deleted event, got %d", pub.deleted.Load())
	}

	rr = doJSON(t, mux, http.MethodGet, "/api/user/movies/"+recordID, "", cookie)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("deleted record fetch returned status %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestDeleteMovieNotOwnerLooksAbsent(t *testing.T) {
	mux, _ := newTestMux(t)
	ownerCookie := registerAccount(t, mux, "laura@example.com")
	otherCookie := registerAccount(t, mux, "mallory@example.com")
	recordID := addMovie(t, mux, ownerCookie, "2024-03-15T20:00:00Z")

	rr := doJSON(t, mux, http.MethodDelete, "/api/user/movies/"+recordID, "", otherCookie)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cross-owner delete returned status %d, want %d", rr.Code, http.StatusNotFound)
	}

	// The record survives for its owner.
	rr = doJSON(t, mux, http.MethodGet, "/api/user/movies/"+recordID, "", ownerCookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner fetch after failed delete returned status %d", rr.Code)
	}
}

func TestSearchAnonymous(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodPost, "/api/movies/search", `{"title":"matrix"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("search returned status %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "recordId") {
		t.Errorf("anonymous search must not carry ownership, got %s", rr.Body.String())
	}
}

func TestSearchDecoratesOwnedMovies(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "nina@example.com")
	recordID := addMovie(t, mux, cookie, "2024-03-15T20:00:00Z")

	rr := doJSON(t, mux, http.MethodPost, "/api/movies/search", `{"title":"matrix"}`, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("search returned status %d: %s", rr.Code, rr.Body.String())
	}

	env := decodeEnvelope(t, rr)
	var data struct {
		Results []model.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("failed to decode search results: %v", err)
	}
	var owned, unowned bool
	for _, r := range data.Results {
		if r.TMDBID == "603" {
			owned = r.RecordID == recordID
		} else if r.RecordID == "" {
			unowned = true
		}
	}
	if !owned {
		t.Error("owned movie should carry its record id")
	}
	if !unowned {
		t.Error("unowned movies should carry no record id")
	}
}

func TestDetailMergesSecondaryProvider(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodPost, "/api/movies/detail", `{"tmdbId":"603"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("detail returned status %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"externalRating":"8.7"`) {
		t.Errorf("expected secondary enrichment, got %s", body)
	}
	if !strings.Contains(body, `"runtime":136`) {
		t.Errorf("expected primary detail fields, got %s", body)
	}
}

func TestDetailUnknownMovie(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodPost, "/api/movies/detail", `{"tmdbId":"999999"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("detail returned status %d, want %d", rr.Code, http.StatusNotFound)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_NOT_FOUND" {
		t.Errorf("expected CT_NOT_FOUND error, got %+v", env.Error)
	}
}

func TestPosterSizeLimit(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "oscar@example.com")

	body := `{"mimeType":"image/jpeg","size":5242880}`
	rr := doJSON(t, mux, http.MethodPost, "/api/posters/uploadInit", body, cookie)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("oversized upload returned status %d, want %d", rr.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_POSTER_SIZE" {
		t.Errorf("expected CT_POSTER_SIZE error, got %+v", env.Error)
	}
}

func TestPosterTypeNotAllowed(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "peggy@example.com")

	body := `{"mimeType":"application/pdf","size":1024}`
	rr := doJSON(t, mux, http.MethodPost, "/api/posters/uploadInit", body, cookie)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("disallowed type returned status %d, want %d", rr.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_POSTER_TYPE" {
		t.Errorf("expected CT_POSTER_TYPE error, got %+v", env.Error)
	}
}

func TestPosterFinalizeRefusesForeignPath(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "trent@example.com")

	body := `{"posterPath":"/posters/someone-else/01ARZ3NDEKTSV4RRFFQ69G5FAV.jpg"}`
	rr := doJSON(t, mux, http.MethodPost, "/api/posters/finalize", body, cookie)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign path finalize returned status %d, want %d", rr.Code, http.StatusForbidden)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_NOT_OWNER" {
		t.Errorf("expected CT_NOT_OWNER error, got %+v", env.Error)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "quinn@example.com")

	rr := doJSON(t, mux, http.MethodPost, "/api/auth/logout", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout returned status %d", rr.Code)
	}

	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("logout should expire the session cookie")
	}
}

func TestVerifyAccountFlow(t *testing.T) {
	mux, _ := newTestMux(t)
	cookie := registerAccount(t, mux, "rita@example.com")

	rr := doJSON(t, mux, http.MethodPost, "/api/auth/send-verify-code", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("send-verify-code returned status %d: %s", rr.Code, rr.Body.String())
	}

	// A wrong code is rejected without flipping the verified flag.
	rr = doJSON(t, mux, http.MethodPost, "/api/auth/verify-account", `{"code":"000000"}`, cookie)
	if rr.Code == http.StatusOK {
		// The random code colliding with 000000 is possible but vanishingly
		// unlikely; treat success here as a failure signal.
		t.Fatal("verify-account accepted a wrong code")
	}

	rr = doJSON(t, mux, http.MethodGet, "/api/user/profile", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile returned status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"verified":false`) {
		t.Errorf("account should stay unverified after failed code, got %s", rr.Body.String())
	}
}

func TestSendResetCodeNeverLeaksExistence(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodPost, "/api/auth/send-reset-code", `{"email":"ghost@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("send-reset-code returned status %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"sent":true`) {
		t.Errorf("expected sent acknowledgment, got %s", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := doJSON(t, mux, http.MethodGet, "/api/auth/register", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("wrong method returned status %d, want %d", rr.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, rr)
	if env.Error == nil || env.Error.Code != "CT_BAD_REQUEST" {
		t.Errorf("expected CT_BAD_REQUEST error, got %+v", env.Error)
	}
}

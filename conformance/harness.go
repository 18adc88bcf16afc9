// Package conformance provides an end-to-end test harness that exercises the
// service through its public HTTP surface, the way a browser client would.
package conformance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cinetrack/cinetrack-go/internal/auth"
	"github.com/cinetrack/cinetrack-go/internal/catalog"
	"github.com/cinetrack/cinetrack-go/internal/config"
	"github.com/cinetrack/cinetrack-go/internal/event"
	"github.com/cinetrack/cinetrack-go/internal/mail"
	"github.com/cinetrack/cinetrack-go/internal/server"
	"github.com/cinetrack/cinetrack-go/internal/storage"

	"log/slog"
)

// Harness runs the full service against an in-memory store and fake metadata
// providers, exposed through a real HTTP listener.
type Harness struct {
	server    *httptest.Server
	primary   *httptest.Server
	secondary *httptest.Server
	store     storage.Store
	pub       event.Publisher
}

// Config holds configuration for the conformance test harness.
type Config struct {
	// JWTSecret signs session tokens issued during the run
	JWTSecret string

	// JWTIssuer is the issuer claim stamped on session tokens
	JWTIssuer string

	// JWTAudience is the audience claim stamped on session tokens
	JWTAudience string
}

// fakeCatalog answers as both metadata providers. The primary knows two
// films; the secondary enriches the one with an IMDb identifier.
var fakeFilms = map[string]string{
	"27205": `{"id":27205,"imdb_id":"tt1375666","title":"Inception","poster_path":"/inception.jpg","overview":"A thief enters dreams.","release_date":"2010-07-16","runtime":148,"genres":[{"name":"Science Fiction"}]}`,
	"77338": `{"id":77338,"imdb_id":"","title":"The Intouchables","poster_path":"/intouchables.jpg","overview":"An unlikely friendship.","release_date":"2011-11-02","runtime":112,"genres":[{"name":"Drama"}]}`,
}

// NewHarness creates a new conformance test harness.
func NewHarness(cfg Config) (*Harness, error) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/search/movie") {
			fmt.Fprint(w, `{"results":[
				{"id":27205,"title":"Inception","poster_path":"/inception.jpg","release_date":"2010-07-16","popularity":90.5},
				{"id":77338,"title":"The Intouchables","poster_path":"/intouchables.jpg","release_date":"2011-11-02","popularity":60.1}
			]}`)
			return
		}
		for id, body := range fakeFilms {
			if strings.HasSuffix(r.URL.Path, "/movie/"+id) {
				fmt.Fprint(w, body)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status_message":"not found"}`)
	}))

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("i") == "tt1375666" {
			fmt.Fprint(w, `{"Response":"True","imdbRating":"8.8","Director":"Christopher Nolan","Actors":"Leonardo DiCaprio"}`)
			return
		}
		fmt.Fprint(w, `{"Response":"False","Error":"Incorrect IMDb ID."}`)
	}))

	store := storage.NewMemory()
	pub := event.NewPublisherFromEnv()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw := catalog.NewGateway(catalog.NewTMDB(primary.URL, "conformance-key"), catalog.NewOMDB(secondary.URL, "conformance-key"), store, log)
	authn := auth.New(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)

	serverCfg := &config.Config{
		Env:              "dev",
		MaxPosterSize:    5 * 1024 * 1024,
		AllowedMimeTypes: []string{"image/jpeg", "image/png", "image/webp"},
	}

	mux := server.NewMux(serverCfg, store, pub, gw, authn, mail.NewLogMailer(log), nil)

	return &Harness{
		server:    httptest.NewServer(mux),
		primary:   primary,
		secondary: secondary,
		store:     store,
		pub:       pub,
	}, nil
}

// URL returns the base URL of the test server.
func (h *Harness) URL() string {
	return h.server.URL
}

// Close shuts down the test server and cleans up resources.
func (h *Harness) Close() {
	h.server.Close()
	h.primary.Close()
	h.secondary.Close()
	h.pub.Close()
}

// RunConformanceTests runs the full suite against the service.
func (h *Harness) RunConformanceTests(t *testing.T) {
	t.Run("HealthEndpoints", h.testHealthEndpoints)
	t.Run("AccountLifecycle", h.testAccountLifecycle)
	t.Run("MovieLifecycle", h.testMovieLifecycle)
	t.Run("ListAggregation", h.testListAggregation)
	t.Run("OwnershipIsolation", h.testOwnershipIsolation)
	t.Run("MetadataDegradation", h.testMetadataDegradation)
}

// newClient returns an HTTP client with its own cookie jar, standing in for
// one browser session.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

// postJSON sends a JSON body and decodes the enveloped response data into out
// when out is non-nil. It returns the HTTP status code.
func (h *Harness) postJSON(t *testing.T, c *http.Client, path, body string, out interface{}) int {
	t.Helper()
	return h.do(t, c, http.MethodPost, path, body, out)
}

func (h *Harness) do(t *testing.T, c *http.Client, method, path, body string, out interface{}) int {
	t.Helper()

	req, err := http.NewRequest(method, h.URL()+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}

	if out != nil {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("failed to decode envelope %q: %v", raw, err)
		}
		if env.Data != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("failed to decode data %q: %v", env.Data, err)
			}
		}
	}
	return resp.StatusCode
}

// register creates a fresh account on the given session and leaves its cookie
// in the client's jar.
func (h *Harness) register(t *testing.T, c *http.Client, email string) {
	t.Helper()
	body := fmt.Sprintf(`{"name":"Conformance User","email":%q,"password":"a long password"}`, email)
	if status := h.postJSON(t, c, "/api/auth/register", body, nil); status != http.StatusCreated {
		t.Fatalf("register returned status %d", status)
	}
}

func (h *Harness) testHealthEndpoints(t *testing.T) {
	for _, endpoint := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(h.URL() + endpoint)
		if err != nil {
			t.Fatalf("failed to GET %s: %v", endpoint, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200 for %s, got %d", endpoint, resp.StatusCode)
		}
	}
}

func (h *Harness) testAccountLifecycle(t *testing.T) {
	c := newClient(t)
	h.register(t, c, "lifecycle@example.com")

	var authState struct {
		Authenticated bool `json:"authenticated"`
	}
	if status := h.do(t, c, http.MethodGet, "/api/auth/is-auth", "", &authState); status != http.StatusOK {
		t.Fatalf("is-auth returned status %d", status)
	}
	if !authState.Authenticated {
		t.Fatal("fresh registration should leave an authenticated session")
	}

	if status := h.postJSON(t, c, "/api/auth/logout", "", nil); status != http.StatusOK {
		t.Fatalf("logout returned status %d", status)
	}

	if status := h.do(t, c, http.MethodGet, "/api/auth/is-auth", "", &authState); status != http.StatusOK {
		t.Fatalf("is-auth after logout returned status %d", status)
	}
	if authState.Authenticated {
		t.Error("logout should clear the session")
	}

	// Logging back in restores access.
	if status := h.postJSON(t, c, "/api/auth/login", `{"email":"lifecycle@example.com","password":"a long password"}`, nil); status != http.StatusOK {
		t.Fatalf("login returned status %d", status)
	}
	if status := h.do(t, c, http.MethodGet, "/api/user/profile", "", nil); status != http.StatusOK {
		t.Fatalf("profile after login returned status %d", status)
	}
}

func (h *Harness) testMovieLifecycle(t *testing.T) {
	c := newClient(t)
	h.register(t, c, "movies@example.com")

	// Search surfaces the catalog.
	var search struct {
		Results []struct {
			TMDBID   string `json:"tmdbId"`
			RecordID string `json:"recordId"`
		} `json:"results"`
	}
	if status := h.postJSON(t, c, "/api/movies/search", `{"title":"inception"}`, &search); status != http.StatusOK {
		t.Fatalf("search returned status %d", status)
	}
	if len(search.Results) != 2 {
		t.Fatalf("expected 2 search results, got %d", len(search.Results))
	}

	// Add, which backfills the IMDb identifier from the provider.
	var added struct {
		Movie struct {
			ID     string  `json:"id"`
			IMDBID string  `json:"imdbId"`
			Rating float64 `json:"rating"`
		} `json:"movie"`
	}
	addBody := `{"tmdbId":"27205","title":"Inception","watchTime":"2024-01-10T21:00:00Z","rating":4.5}`
	if status := h.postJSON(t, c, "/api/user/movies", addBody, &added); status != http.StatusCreated {
		t.Fatalf("add returned status %d", status)
	}
	if added.Movie.IMDBID != "tt1375666" {
		t.Errorf("expected backfilled imdb id, got %q", added.Movie.IMDBID)
	}

	// The same film now carries its record id in search results.
	if status := h.postJSON(t, c, "/api/movies/search", `{"title":"inception"}`, &search); status != http.StatusOK {
		t.Fatalf("search returned status %d", status)
	}
	var decorated bool
	for _, r := range search.Results {
		if r.TMDBID == "27205" && r.RecordID == added.Movie.ID {
			decorated = true
		}
	}
	if !decorated {
		t.Error("search should decorate owned films with their record id")
	}

	// Update, then delete.
	var updated struct {
		Movie struct {
			Rating float64 `json:"rating"`
		} `json:"movie"`
	}
	if status := h.do(t, c, http.MethodPut, "/api/user/movies/"+added.Movie.ID, `{"rating":3}`, &updated); status != http.StatusOK {
		t.Fatalf("update returned status %d", status)
	}
	if updated.Movie.Rating != 3 {
		t.Errorf("expected rating 3 after update, got %v", updated.Movie.Rating)
	}

	if status := h.do(t, c, http.MethodDelete, "/api/user/movies/"+added.Movie.ID, "", nil); status != http.StatusOK {
		t.Fatalf("delete returned status %d", status)
	}
	if status := h.do(t, c, http.MethodGet, "/api/user/movies/"+added.Movie.ID, "", nil); status != http.StatusNotFound {
		t.Fatalf("deleted record fetch returned status %d, want 404", status)
	}
}

func (h *Harness) testListAggregation(t *testing.T) {
	c := newClient(t)
	h.register(t, c, "aggregation@example.com")

	adds := []string{
		`{"tmdbId":"27205","title":"Inception","watchTime":"2024-03-15T20:00:00Z","rating":4.5}`,
		`{"tmdbId":"77338","title":"The Intouchables","watchTime":"2024-01-05T20:00:00Z","rating":5}`,
	}
	for _, body := range adds {
		if status := h.postJSON(t, c, "/api/user/movies", body, nil); status != http.StatusCreated {
			t.Fatalf("add returned status %d", status)
		}
	}

	// Default view is newest first.
	var flat struct {
		Movies []struct {
			Title string `json:"title"`
		} `json:"movies"`
	}
	if status := h.do(t, c, http.MethodGet, "/api/user/movies", "", &flat); status != http.StatusOK {
		t.Fatalf("list returned status %d", status)
	}
	if len(flat.Movies) != 2 || flat.Movies[0].Title != "Inception" {
		t.Fatalf("expected Inception first under default sort, got %+v", flat.Movies)
	}

	// Grouped view buckets by watch month, newest bucket first.
	var grouped struct {
		Grouped bool `json:"grouped"`
		Groups  []struct {
			Label string `json:"label"`
		} `json:"groups"`
	}
	if status := h.do(t, c, http.MethodGet, "/api/user/movies?groupByMonth=true", "", &grouped); status != http.StatusOK {
		t.Fatalf("grouped list returned status %d", status)
	}
	if !grouped.Grouped || len(grouped.Groups) != 2 {
		t.Fatalf("expected 2 month groups, got %+v", grouped)
	}
	if grouped.Groups[0].Label != "March 2024" || grouped.Groups[1].Label != "January 2024" {
		t.Errorf("unexpected group order: %+v", grouped.Groups)
	}

	// Rating sort with a title filter.
	if status := h.do(t, c, http.MethodGet, "/api/user/movies?sort=ratingDesc&q=intouchables", "", &flat); status != http.StatusOK {
		t.Fatalf("filtered list returned status %d", status)
	}
	if len(flat.Movies) != 1 || flat.Movies[0].Title != "The Intouchables" {
		t.Errorf("expected only The Intouchables, got %+v", flat.Movies)
	}
}

func (h *Harness) testOwnershipIsolation(t *testing.T) {
	alice := newClient(t)
	bob := newClient(t)
	h.register(t, alice, "alice-isolation@example.com")
	h.register(t, bob, "bob-isolation@example.com")

	var added struct {
		Movie struct {
			ID string `json:"id"`
		} `json:"movie"`
	}
	addBody := `{"tmdbId":"27205","title":"Inception","watchTime":"2024-02-01T20:00:00Z","rating":4}`
	if status := h.postJSON(t, alice, "/api/user/movies", addBody, &added); status != http.StatusCreated {
		t.Fatalf("add returned status %d", status)
	}

	// Bob cannot see, change, or remove Alice's record.
	if status := h.do(t, bob, http.MethodGet, "/api/user/movies/"+added.Movie.ID, "", nil); status != http.StatusNotFound {
		t.Errorf("cross-owner read returned status %d, want 404", status)
	}
	if status := h.do(t, bob, http.MethodPut, "/api/user/movies/"+added.Movie.ID, `{"rating":1}`, nil); status != http.StatusForbidden {
		t.Errorf("cross-owner update returned status %d, want 403", status)
	}
	if status := h.do(t, bob, http.MethodDelete, "/api/user/movies/"+added.Movie.ID, "", nil); status != http.StatusNotFound {
		t.Errorf("cross-owner delete returned status %d, want 404", status)
	}

	// Bob's own list stays empty.
	var view struct {
		Empty bool `json:"empty"`
	}
	if status := h.do(t, bob, http.MethodGet, "/api/user/movies", "", &view); status != http.StatusOK {
		t.Fatalf("list returned status %d", status)
	}
	if !view.Empty {
		t.Error("bob's list should be empty")
	}
}

func (h *Harness) testMetadataDegradation(t *testing.T) {
	c := newClient(t)

	// A film without an IMDb identifier never reaches the secondary provider
	// and still returns its primary detail.
	var detail struct {
		Title          string  `json:"title"`
		Runtime        int     `json:"runtime"`
		ExternalRating *string `json:"externalRating"`
	}
	if status := h.postJSON(t, c, "/api/movies/detail", `{"tmdbId":"77338"}`, &detail); status != http.StatusOK {
		t.Fatalf("detail returned status %d", status)
	}
	if detail.Title != "The Intouchables" || detail.Runtime != 112 {
		t.Errorf("unexpected primary detail: %+v", detail)
	}
	if detail.ExternalRating != nil {
		t.Error("film without imdb id should carry no enrichment")
	}

	// A film with one gets the merged view.
	if status := h.postJSON(t, c, "/api/movies/detail", `{"tmdbId":"27205"}`, &detail); status != http.StatusOK {
		t.Fatalf("detail returned status %d", status)
	}
	if detail.ExternalRating == nil || *detail.ExternalRating != "8.8" {
		t.Errorf("expected enrichment rating 8.8, got %v", detail.ExternalRating)
	}
}

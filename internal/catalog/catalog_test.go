package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newTestClient(baseURL string) *Client {
	c := New(Config{APIKey: "test-key", Language: "en-US"}, zap.NewNop())
	c.baseURL = baseURL
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func writeResults(w http.ResponseWriter, results ...map[string]any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func TestSearchFindsFirstResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/tv" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("missing api_key, got query %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("language") != "en-US" {
			t.Errorf("missing language, got query %s", r.URL.RawQuery)
		}
		writeResults(w, map[string]any{"id": 31910, "name": "Naruto Shippuden"})
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).Search(context.Background(), "naruto-shippuden", MediaTV)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if id != 31910 {
		t.Fatalf("id = %d, want 31910", id)
	}
}

func TestSearchFallsBackToShorterVariant(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("query") == "dr stone" {
			writeResults(w, map[string]any{"id": 86031, "name": "Dr. STONE"})
			return
		}
		writeResults(w)
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).Search(context.Background(), "dr-stone-new-world", MediaTV)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if id != 86031 {
		t.Fatalf("id = %d, want 86031", id)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server saw %d queries, want 3", got)
	}
}

func TestSearchNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResults(w)
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).Search(context.Background(), "totally-unknown-show", MediaTV)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if id != 0 {
		t.Fatalf("id = %d, want 0 for no match", id)
	}
}

func TestSearchDisabledWithoutKey(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(Config{}, zap.NewNop())
	c.baseURL = srv.URL

	id, err := c.Search(context.Background(), "naruto", MediaTV)
	if err != nil || id != 0 {
		t.Fatalf("disabled client returned (%d, %v), want (0, nil)", id, err)
	}
	if c.Enabled() {
		t.Fatal("client without key reports Enabled")
	}
	if calls.Load() != 0 {
		t.Fatal("disabled client hit the network")
	}
}

func TestDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tv/31910" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":             31910,
			"name":           "Naruto Shippuden",
			"overview":       "Naruto returns after years of training.",
			"poster_path":    "/abc.jpg",
			"backdrop_path":  "/bd.jpg",
			"vote_average":   8.6,
			"popularity":     156.2,
			"first_air_date": "2007-02-15",
			"genres": []map[string]any{
				{"name": "Animation"},
				{"name": "Action & Adventure"},
			},
		})
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Details(context.Background(), 31910, MediaTV)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if d == nil {
		t.Fatal("Details returned nil for existing id")
	}
	if d.Title != "Naruto Shippuden" {
		t.Errorf("Title = %q", d.Title)
	}
	if d.PosterURL != posterBaseURL+"/abc.jpg" {
		t.Errorf("PosterURL = %q", d.PosterURL)
	}
	if d.BackdropURL != backdropBaseURL+"/bd.jpg" {
		t.Errorf("BackdropURL = %q", d.BackdropURL)
	}
	if d.Rating != 8.6 || d.Popularity != 156.2 {
		t.Errorf("Rating/Popularity = %v/%v", d.Rating, d.Popularity)
	}
	if len(d.Genres) != 2 || d.Genres[0] != "Animation" {
		t.Errorf("Genres = %v", d.Genres)
	}
	if d.FirstAired != "2007-02-15" {
		t.Errorf("FirstAired = %q", d.FirstAired)
	}
}

func TestDetailsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Details(context.Background(), 999999, MediaTV)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if d != nil {
		t.Fatalf("Details = %+v, want nil for 404", d)
	}
}

func TestDetailsMovieFieldFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/372058" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           372058,
			"title":        "Your Name.",
			"release_date": "2016-08-26",
		})
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Details(context.Background(), 372058, MediaMovie)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if d.Title != "Your Name." {
		t.Errorf("Title = %q, want movie title fallback", d.Title)
	}
	if d.FirstAired != "2016-08-26" {
		t.Errorf("FirstAired = %q, want release date fallback", d.FirstAired)
	}
}

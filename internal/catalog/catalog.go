// Package catalog looks series metadata up in TMDB. It is an optional
// enrichment layer: a client built without an API key answers every call
// with an empty result instead of an error.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	posterBaseURL   = "https://image.tmdb.org/t/p/w500"
	backdropBaseURL = "https://image.tmdb.org/t/p/w780"

	// MediaTV and MediaMovie select the TMDB search index.
	MediaTV    = "tv"
	MediaMovie = "movie"
)

// Config carries the TMDB settings.
type Config struct {
	APIKey   string
	Language string
}

// Details is the subset of TMDB metadata the sync pipeline consumes.
type Details struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	PosterURL   string   `json:"poster_url"`
	BackdropURL string   `json:"backdrop_url"`
	Rating      float64  `json:"rating"`
	Popularity  float64  `json:"popularity"`
	Genres      []string `json:"genres"`
	FirstAired  string   `json:"first_aired"`
}

// Client is a rate-limited TMDB v3 client. The zero key disables it.
type Client struct {
	apiKey   string
	language string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en-US"
	}
	return &Client{
		apiKey:   cfg.APIKey,
		language: lang,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(300*time.Millisecond), 2),
		logger:   logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Search resolves a raw site title or slug to a TMDB id, trying cleaned
// query variants in order. A zero id with nil error means no match.
func (c *Client) Search(ctx context.Context, rawTitle, mediaType string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	if mediaType != MediaTV && mediaType != MediaMovie {
		mediaType = MediaTV
	}
	for _, query := range SearchVariants(rawTitle) {
		var resp searchResponse
		params := url.Values{"query": {query}}
		if err := c.get(ctx, "/search/"+mediaType, params, &resp); err != nil {
			return 0, err
		}
		if len(resp.Results) > 0 {
			return resp.Results[0].ID, nil
		}
		c.logger.Debug("catalog search miss", zap.String("query", query))
	}
	return 0, nil
}

// Details fetches metadata for a known TMDB id. A nil result with nil
// error means the id is gone.
func (c *Client) Details(ctx context.Context, id int64, mediaType string) (*Details, error) {
	if !c.Enabled() || id == 0 {
		return nil, nil
	}
	if mediaType != MediaTV && mediaType != MediaMovie {
		mediaType = MediaTV
	}
	var resp detailsResponse
	err := c.get(ctx, fmt.Sprintf("/%s/%d", mediaType, id), nil, &resp)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}

	d := &Details{
		ID:         resp.ID,
		Title:      resp.Name,
		Overview:   resp.Overview,
		Rating:     resp.VoteAverage,
		Popularity: resp.Popularity,
		FirstAired: resp.FirstAirDate,
	}
	if d.Title == "" {
		d.Title = resp.Title
	}
	if d.FirstAired == "" {
		d.FirstAired = resp.ReleaseDate
	}
	if resp.PosterPath != "" {
		d.PosterURL = posterBaseURL + resp.PosterPath
	}
	if resp.BackdropPath != "" {
		d.BackdropURL = backdropBaseURL + resp.BackdropPath
	}
	for _, g := range resp.Genres {
		if g.Name != "" {
			d.Genres = append(d.Genres, g.Name)
		}
	}
	return d, nil
}

var errNotFound = errors.New("catalog: not found")

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("catalog: bad url %q: %w", c.baseURL+path, err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	q.Set("api_key", c.apiKey)
	q.Set("language", c.language)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("catalog: %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type searchResponse struct {
	Results []struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Title string `json:"title"`
	} `json:"results"`
}

type detailsResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	Popularity   float64 `json:"popularity"`
	FirstAirDate string  `json:"first_air_date"`
	ReleaseDate  string  `json:"release_date"`
	Genres       []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// Package store persists scraped series and episodes. Implementations
// treat a missing record as a nil result, not an error, so callers can
// tell "never seen" apart from "backend broken".
package store

import (
	"context"
	"time"
)

// Server is one playable mirror for an episode.
type Server struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Series is a show-level record.
type Series struct {
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Poster     string    `json:"poster,omitempty"`
	Overview   string    `json:"overview,omitempty"`
	Genres     []string  `json:"genres,omitempty"`
	TMDBID     int64     `json:"tmdb_id,omitempty"`
	Rating     float64   `json:"rating,omitempty"`
	Popularity float64   `json:"popularity,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Episode is one episode of a series, keyed by (SeriesSlug, Season,
// Episode). Poster is denormalized from the owning series so feed
// consumers get a complete card from one record.
type Episode struct {
	SeriesSlug string    `json:"series_slug"`
	Season     int       `json:"season"`
	Episode    int       `json:"episode"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	Poster     string    `json:"poster,omitempty"`
	Servers    []Server  `json:"servers"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is the persistence boundary of the sync pipeline.
type Store interface {
	UpsertSeries(ctx context.Context, s *Series) error
	UpsertEpisode(ctx context.Context, e *Episode) error
	// GetSeries returns (nil, nil) when the slug is unknown.
	GetSeries(ctx context.Context, slug string) (*Series, error)
	// GetEpisode returns (nil, nil) when the key is unknown.
	GetEpisode(ctx context.Context, seriesSlug string, season, episode int) (*Episode, error)
	// RecentEpisodes returns the latest-updated episodes, newest first.
	RecentEpisodes(ctx context.Context, limit int) ([]Episode, error)
	Ping(ctx context.Context) error
	Close()
}

// Package postgres provides the Postgres-backed Store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// Store persists series and episodes in Postgres.
type Store struct {
	pool dbPool
}

var _ store.Store = (*Store)(nil)

// New connects to Postgres and makes sure the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing). The schema is assumed to exist.
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS series (
	slug TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	poster TEXT NOT NULL DEFAULT '',
	overview TEXT NOT NULL DEFAULT '',
	genres JSONB NOT NULL DEFAULT '[]',
	tmdb_id BIGINT NOT NULL DEFAULT 0,
	rating DOUBLE PRECISION NOT NULL DEFAULT 0,
	popularity DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS episodes (
	series_slug TEXT NOT NULL,
	season INT NOT NULL,
	episode INT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	thumbnail TEXT NOT NULL DEFAULT '',
	poster TEXT NOT NULL DEFAULT '',
	servers JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (series_slug, season, episode)
)`,
	`CREATE TABLE IF NOT EXISTS latest_episodes (
	series_slug TEXT NOT NULL,
	season INT NOT NULL,
	episode INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (series_slug, season, episode)
)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

const upsertSeriesSQL = `
INSERT INTO series (slug, title, url, poster, overview, genres, tmdb_id, rating, popularity, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (slug) DO UPDATE SET
	title = EXCLUDED.title,
	url = EXCLUDED.url,
	poster = CASE WHEN EXCLUDED.poster <> '' THEN EXCLUDED.poster ELSE series.poster END,
	overview = CASE WHEN EXCLUDED.overview <> '' THEN EXCLUDED.overview ELSE series.overview END,
	genres = CASE WHEN EXCLUDED.genres <> '[]'::jsonb THEN EXCLUDED.genres ELSE series.genres END,
	tmdb_id = CASE WHEN EXCLUDED.tmdb_id <> 0 THEN EXCLUDED.tmdb_id ELSE series.tmdb_id END,
	rating = CASE WHEN EXCLUDED.rating <> 0 THEN EXCLUDED.rating ELSE series.rating END,
	popularity = CASE WHEN EXCLUDED.popularity <> 0 THEN EXCLUDED.popularity ELSE series.popularity END,
	updated_at = now()`

// UpsertSeries inserts or refreshes a series row. Empty incoming fields
// never clobber previously enriched values.
func (s *Store) UpsertSeries(ctx context.Context, rec *store.Series) error {
	if rec.Slug == "" {
		return fmt.Errorf("series slug is required")
	}
	genres, err := marshalJSONList(rec.Genres)
	if err != nil {
		return fmt.Errorf("marshal genres: %w", err)
	}
	args := []any{rec.Slug, rec.Title, rec.URL, rec.Poster, rec.Overview, genres, rec.TMDBID, rec.Rating, rec.Popularity}
	if _, err := s.pool.Exec(ctx, upsertSeriesSQL, args...); err != nil {
		return fmt.Errorf("upsert series: %w", err)
	}
	return nil
}

const upsertEpisodeSQL = `
INSERT INTO episodes (series_slug, season, episode, title, url, thumbnail, poster, servers, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (series_slug, season, episode) DO UPDATE SET
	title = EXCLUDED.title,
	url = EXCLUDED.url,
	thumbnail = CASE WHEN EXCLUDED.thumbnail <> '' THEN EXCLUDED.thumbnail ELSE episodes.thumbnail END,
	poster = CASE WHEN EXCLUDED.poster <> '' THEN EXCLUDED.poster ELSE episodes.poster END,
	servers = EXCLUDED.servers,
	updated_at = now()`

const touchLatestSQL = `
INSERT INTO latest_episodes (series_slug, season, episode, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (series_slug, season, episode) DO UPDATE SET updated_at = now()`

// UpsertEpisode writes the episode row and refreshes the recency feed in
// one transaction. Servers are replaced wholesale by the fresh resolution.
func (s *Store) UpsertEpisode(ctx context.Context, rec *store.Episode) error {
	if rec.SeriesSlug == "" {
		return fmt.Errorf("episode series slug is required")
	}
	servers, err := marshalJSONList(rec.Servers)
	if err != nil {
		return fmt.Errorf("marshal servers: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin episode upsert: %w", err)
	}
	args := []any{rec.SeriesSlug, rec.Season, rec.Episode, rec.Title, rec.URL, rec.Thumbnail, rec.Poster, servers}
	if _, err := tx.Exec(ctx, upsertEpisodeSQL, args...); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("upsert episode: %w", err)
	}
	if _, err := tx.Exec(ctx, touchLatestSQL, rec.SeriesSlug, rec.Season, rec.Episode); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("touch latest: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit episode upsert: %w", err)
	}
	return nil
}

const getSeriesSQL = `
SELECT slug, title, url, poster, overview, genres, tmdb_id, rating, popularity, updated_at
FROM series WHERE slug = $1`

func (s *Store) GetSeries(ctx context.Context, slug string) (*store.Series, error) {
	var (
		rec    store.Series
		genres []byte
	)
	row := s.pool.QueryRow(ctx, getSeriesSQL, slug)
	err := row.Scan(&rec.Slug, &rec.Title, &rec.URL, &rec.Poster, &rec.Overview, &genres, &rec.TMDBID, &rec.Rating, &rec.Popularity, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get series %q: %w", slug, err)
	}
	if err := json.Unmarshal(genres, &rec.Genres); err != nil {
		return nil, fmt.Errorf("decode genres for %q: %w", slug, err)
	}
	return &rec, nil
}

const getEpisodeSQL = `
SELECT series_slug, season, episode, title, url, thumbnail, poster, servers, updated_at
FROM episodes WHERE series_slug = $1 AND season = $2 AND episode = $3`

func (s *Store) GetEpisode(ctx context.Context, seriesSlug string, season, episode int) (*store.Episode, error) {
	var (
		rec     store.Episode
		servers []byte
	)
	row := s.pool.QueryRow(ctx, getEpisodeSQL, seriesSlug, season, episode)
	err := row.Scan(&rec.SeriesSlug, &rec.Season, &rec.Episode, &rec.Title, &rec.URL, &rec.Thumbnail, &rec.Poster, &servers, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %s %dx%d: %w", seriesSlug, season, episode, err)
	}
	if err := json.Unmarshal(servers, &rec.Servers); err != nil {
		return nil, fmt.Errorf("decode servers for %s %dx%d: %w", seriesSlug, season, episode, err)
	}
	return &rec, nil
}

const recentEpisodesSQL = `
SELECT e.series_slug, e.season, e.episode, e.title, e.url, e.thumbnail, e.poster, e.servers, e.updated_at
FROM latest_episodes l
JOIN episodes e
	ON e.series_slug = l.series_slug AND e.season = l.season AND e.episode = l.episode
ORDER BY l.updated_at DESC
LIMIT $1`

func (s *Store) RecentEpisodes(ctx context.Context, limit int) ([]store.Episode, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.pool.Query(ctx, recentEpisodesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("recent episodes: %w", err)
	}
	defer rows.Close()

	var out []store.Episode
	for rows.Next() {
		var (
			rec     store.Episode
			servers []byte
		)
		err := rows.Scan(&rec.SeriesSlug, &rec.Season, &rec.Episode, &rec.Title, &rec.URL, &rec.Thumbnail, &rec.Poster, &servers, &rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan recent episode: %w", err)
		}
		if err := json.Unmarshal(servers, &rec.Servers); err != nil {
			return nil, fmt.Errorf("decode recent servers: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent episodes rows: %w", err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// marshalJSONList marshals a slice for a JSONB column, mapping nil to the
// empty array instead of SQL null.
func marshalJSONList[T any](list []T) ([]byte, error) {
	if len(list) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(list)
}

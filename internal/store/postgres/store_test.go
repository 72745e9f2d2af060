package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/store"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithPool(mock)
	require.NoError(t, err)
	return mock, s
}

func TestInitSchemaCreatesTables(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS series").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS episodes").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS latest_episodes").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.initSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSeriesInsertsRow(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	mock.ExpectExec("INSERT INTO series").
		WithArgs(
			"naruto",
			"Naruto",
			"https://toonstream.example/series/naruto/",
			"https://img.example/p.jpg",
			"A ninja story.",
			[]byte(`["Action","Adventure"]`),
			int64(31910),
			8.4,
			156.2,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertSeries(context.Background(), &store.Series{
		Slug:       "naruto",
		Title:      "Naruto",
		URL:        "https://toonstream.example/series/naruto/",
		Poster:     "https://img.example/p.jpg",
		Overview:   "A ninja story.",
		Genres:     []string{"Action", "Adventure"},
		TMDBID:     31910,
		Rating:     8.4,
		Popularity: 156.2,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSeriesEmptyGenres(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	mock.ExpectExec("INSERT INTO series").
		WithArgs("naruto", "Naruto", "u", "", "", []byte(`[]`), int64(0), float64(0), float64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertSeries(context.Background(), &store.Series{Slug: "naruto", Title: "Naruto", URL: "u"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEpisodeTransaction(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO episodes").
		WithArgs(
			"naruto", 1, 3,
			"Episode 3",
			"https://toonstream.example/episode/naruto-1x3/",
			"https://img.example/t.jpg",
			"https://img.example/p.jpg",
			[]byte(`[{"name":"Server 1","url":"https://streamtape.com/e/a"}]`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO latest_episodes").
		WithArgs("naruto", 1, 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.UpsertEpisode(context.Background(), &store.Episode{
		SeriesSlug: "naruto",
		Season:     1,
		Episode:    3,
		Title:      "Episode 3",
		URL:        "https://toonstream.example/episode/naruto-1x3/",
		Thumbnail:  "https://img.example/t.jpg",
		Poster:     "https://img.example/p.jpg",
		Servers:    []store.Server{{Name: "Server 1", URL: "https://streamtape.com/e/a"}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEpisodeRollsBackOnError(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO episodes").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.UpsertEpisode(context.Background(), &store.Episode{SeriesSlug: "naruto", Season: 1, Episode: 1, URL: "u"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert episode")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSeriesMissingIsNil(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM series").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetSeries(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSeriesDecodesRow(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"slug", "title", "url", "poster", "overview", "genres", "tmdb_id", "rating", "popularity", "updated_at"}).
		AddRow("naruto", "Naruto", "u", "p", "o", []byte(`["Action"]`), int64(31910), 8.4, 156.2, now)
	mock.ExpectQuery("SELECT (.+) FROM series").
		WithArgs("naruto").
		WillReturnRows(rows)

	got, err := s.GetSeries(context.Background(), "naruto")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Naruto", got.Title)
	require.Equal(t, []string{"Action"}, got.Genres)
	require.Equal(t, int64(31910), got.TMDBID)
	require.Equal(t, 8.4, got.Rating)
	require.Equal(t, 156.2, got.Popularity)
	require.Equal(t, now, got.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEpisodeDecodesServers(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"series_slug", "season", "episode", "title", "url", "thumbnail", "poster", "servers", "updated_at"}).
		AddRow("naruto", 1, 3, "Episode 3", "u", "t", "p", []byte(`[{"name":"Server 1","url":"https://dood.watch/e/x"}]`), now)
	mock.ExpectQuery("SELECT (.+) FROM episodes").
		WithArgs("naruto", 1, 3).
		WillReturnRows(rows)

	got, err := s.GetEpisode(context.Background(), "naruto", 1, 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "p", got.Poster)
	require.Len(t, got.Servers, 1)
	require.Equal(t, "https://dood.watch/e/x", got.Servers[0].URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEpisodeMissingIsNil(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM episodes").
		WithArgs("naruto", 9, 9).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetEpisode(context.Background(), "naruto", 9, 9)
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentEpisodesKeepsFeedOrder(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"series_slug", "season", "episode", "title", "url", "thumbnail", "poster", "servers", "updated_at"}).
		AddRow("bleach", 1, 2, "", "u2", "", "", []byte(`[]`), now).
		AddRow("naruto", 1, 1, "", "u1", "", "", []byte(`[{"name":"Server 1","url":"https://voe.sx/e/q"}]`), now.Add(-time.Hour))
	mock.ExpectQuery("FROM latest_episodes").
		WithArgs(10).
		WillReturnRows(rows)

	got, err := s.RecentEpisodes(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "bleach", got[0].SeriesSlug)
	require.Equal(t, "naruto", got[1].SeriesSlug)
	require.Len(t, got[1].Servers, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentEpisodesDefaultLimit(t *testing.T) {
	t.Parallel()
	mock, s := newMockStore(t)

	rows := pgxmock.NewRows([]string{"series_slug", "season", "episode", "title", "url", "thumbnail", "poster", "servers", "updated_at"})
	mock.ExpectQuery("FROM latest_episodes").
		WithArgs(25).
		WillReturnRows(rows)

	got, err := s.RecentEpisodes(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

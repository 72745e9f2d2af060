package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	series := &Series{
		Slug:   "naruto",
		Title:  "Naruto",
		URL:    "https://toonstream.example/series/naruto/",
		Genres: []string{"Action"},
	}
	if err := m.UpsertSeries(ctx, series); err != nil {
		t.Fatalf("UpsertSeries: %v", err)
	}

	episode := &Episode{
		SeriesSlug: "naruto",
		Season:     1,
		Episode:    3,
		URL:        "https://toonstream.example/episode/naruto-1x3/",
		Servers:    []Server{{Name: "Server 1", URL: "https://streamtape.com/e/abc"}},
	}
	if err := m.UpsertEpisode(ctx, episode); err != nil {
		t.Fatalf("UpsertEpisode: %v", err)
	}

	// Mutating the caller's slices must not reach the stored copy.
	series.Genres[0] = "mutated"
	episode.Servers[0].URL = "mutated"

	gotSeries, err := m.GetSeries(ctx, "naruto")
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if gotSeries == nil || gotSeries.Title != "Naruto" {
		t.Fatalf("GetSeries = %+v", gotSeries)
	}
	if gotSeries.Genres[0] != "Action" {
		t.Fatalf("stored series aliased caller slice: %v", gotSeries.Genres)
	}
	if gotSeries.UpdatedAt.IsZero() {
		t.Fatal("UpsertSeries did not stamp UpdatedAt")
	}

	gotEp, err := m.GetEpisode(ctx, "naruto", 1, 3)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if gotEp == nil || len(gotEp.Servers) != 1 {
		t.Fatalf("GetEpisode = %+v", gotEp)
	}
	if gotEp.Servers[0].URL != "https://streamtape.com/e/abc" {
		t.Fatalf("stored episode aliased caller slice: %v", gotEp.Servers)
	}
}

func TestMemoryMissingIsNil(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s, err := m.GetSeries(ctx, "nope")
	if err != nil || s != nil {
		t.Fatalf("GetSeries = (%+v, %v), want (nil, nil)", s, err)
	}
	e, err := m.GetEpisode(ctx, "nope", 1, 1)
	if err != nil || e != nil {
		t.Fatalf("GetEpisode = (%+v, %v), want (nil, nil)", e, err)
	}
}

func TestMemoryRecentEpisodes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 1; i <= 3; i++ {
		err := m.UpsertEpisode(ctx, &Episode{
			SeriesSlug: "naruto",
			Season:     1,
			Episode:    i,
			URL:        "https://toonstream.example/episode/naruto-1x1/",
		})
		if err != nil {
			t.Fatalf("UpsertEpisode: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	recent, err := m.RecentEpisodes(ctx, 2)
	if err != nil {
		t.Fatalf("RecentEpisodes: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Episode != 3 || recent[1].Episode != 2 {
		t.Fatalf("order = [%d %d], want newest first", recent[0].Episode, recent[1].Episode)
	}
}

func TestMemoryUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ep := &Episode{SeriesSlug: "naruto", Season: 1, Episode: 1, URL: "u"}
	if err := m.UpsertEpisode(ctx, ep); err != nil {
		t.Fatal(err)
	}
	ep.Servers = []Server{{Name: "Server 1", URL: "https://dood.watch/e/x"}}
	if err := m.UpsertEpisode(ctx, ep); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetEpisode(ctx, "naruto", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Servers) != 1 {
		t.Fatalf("Servers = %v, want overwrite to stick", got.Servers)
	}
	all, _ := m.RecentEpisodes(ctx, 0)
	if len(all) != 1 {
		t.Fatalf("store holds %d episodes, want 1", len(all))
	}
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used when no database is configured and
// in tests. Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	series   map[string]Series
	episodes map[string]Episode
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		series:   make(map[string]Series),
		episodes: make(map[string]Episode),
	}
}

func episodeKey(seriesSlug string, season, episode int) string {
	return fmt.Sprintf("%s/%dx%d", seriesSlug, season, episode)
}

func (m *Memory) UpsertSeries(_ context.Context, s *Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Genres = append([]string(nil), s.Genres...)
	cp.UpdatedAt = time.Now()
	m.series[s.Slug] = cp
	return nil
}

func (m *Memory) UpsertEpisode(_ context.Context, e *Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.Servers = append([]Server(nil), e.Servers...)
	cp.UpdatedAt = time.Now()
	m.episodes[episodeKey(e.SeriesSlug, e.Season, e.Episode)] = cp
	return nil
}

func (m *Memory) GetSeries(_ context.Context, slug string) (*Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[slug]
	if !ok {
		return nil, nil
	}
	cp := s
	cp.Genres = append([]string(nil), s.Genres...)
	return &cp, nil
}

func (m *Memory) GetEpisode(_ context.Context, seriesSlug string, season, episode int) (*Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.episodes[episodeKey(seriesSlug, season, episode)]
	if !ok {
		return nil, nil
	}
	cp := e
	cp.Servers = append([]Server(nil), e.Servers...)
	return &cp, nil
}

func (m *Memory) RecentEpisodes(_ context.Context, limit int) ([]Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Episode, 0, len(m.episodes))
	for _, e := range m.episodes {
		cp := e
		cp.Servers = append([]Server(nil), e.Servers...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

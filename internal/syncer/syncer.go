// Package syncer orchestrates one scrape run: listing pages in, episode
// records out. Episodes and servers are processed strictly sequentially
// with a politeness delay between external fetches.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/catalog"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/extract"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/fetch"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/metrics"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/store"
)

// ErrRunActive is returned when a run is requested while one is in flight.
var ErrRunActive = errors.New("sync run already active")

var (
	errNotEpisode = errors.New("url carries no episode code")
	errFresh      = errors.New("record is fresh")
	errDuplicate  = errors.New("episode already processed this run")
)

// maxAjaxSlots bounds the slot probe against the player ajax endpoint.
const maxAjaxSlots = 5

// Fetcher retrieves page text. *fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (string, error)
	PostForm(ctx context.Context, rawURL string, form map[string]string, opts fetch.Options) (string, error)
}

// Resolver turns an embed URL into a playable URL. *resolve.Engine
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, startURL, referer string) (string, error)
}

// Catalog enriches series records. *catalog.Client satisfies it; nil
// disables enrichment.
type Catalog interface {
	Enabled() bool
	Search(ctx context.Context, rawTitle, mediaType string) (int64, error)
	Details(ctx context.Context, id int64, mediaType string) (*catalog.Details, error)
}

// Config carries the orchestration knobs. An empty AjaxURL derives the
// player ajax endpoint from the episode page's own site.
type Config struct {
	BaseURL        string
	FallbackURLs   []string
	AjaxURL        string
	Delay          time.Duration
	EpisodeRetries int
	MaxSeriesPages int
}

// RunStats are the counters for one run, exposed on the status endpoint.
type RunStats struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Pages           int       `json:"pages"`
	EpisodesSeen    int       `json:"episodes_seen"`
	EpisodesSynced  int       `json:"episodes_synced"`
	EpisodesSkipped int       `json:"episodes_skipped"`
	EpisodesFailed  int       `json:"episodes_failed"`
	ServersResolved int       `json:"servers_resolved"`
	ServersDropped  int       `json:"servers_dropped"`
	LastError       string    `json:"last_error,omitempty"`
}

// Syncer drives scrape runs. At most one run is active at a time; Run and
// SyncSeries return ErrRunActive instead of queueing.
type Syncer struct {
	cfg      Config
	fetcher  Fetcher
	resolver Resolver
	store    store.Store
	catalog  Catalog
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	last    RunStats
}

// run is the state confined to one sync run.
type run struct {
	force  bool
	stats  RunStats
	seen   map[string]struct{}
	series map[string]*store.Series
}

func New(cfg Config, fetcher Fetcher, resolver Resolver, st store.Store, cat Catalog, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EpisodeRetries <= 0 {
		cfg.EpisodeRetries = 3
	}
	if cfg.MaxSeriesPages <= 0 {
		cfg.MaxSeriesPages = 10
	}
	return &Syncer{
		cfg:      cfg,
		fetcher:  fetcher,
		resolver: resolver,
		store:    st,
		catalog:  cat,
		logger:   logger,
	}
}

// Status reports whether a run is active and the stats of the last
// completed run.
func (s *Syncer) Status() (bool, RunStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.last
}

// Run syncs the listing page: every episode card found there goes through
// the per-episode pipeline. Failures of individual episodes are counted,
// not propagated; only an unreachable listing fails the run.
func (s *Syncer) Run(ctx context.Context, force bool) (RunStats, error) {
	r, err := s.begin(force)
	if err != nil {
		return RunStats{}, err
	}
	defer s.finish(r)

	s.logger.Info("sync run started", zap.Bool("force", force))

	markup, base, err := s.fetchListing(ctx)
	if err != nil {
		r.stats.LastError = err.Error()
		metrics.ObserveRun("failed", time.Since(r.stats.StartedAt))
		return r.stats, err
	}
	r.stats.Pages++

	cards, err := extract.EpisodeCards(markup, base)
	if err != nil {
		r.stats.LastError = err.Error()
		metrics.ObserveRun("failed", time.Since(r.stats.StartedAt))
		return r.stats, fmt.Errorf("parse listing: %w", err)
	}

	for _, card := range cards {
		if ctx.Err() != nil {
			r.stats.LastError = ctx.Err().Error()
			break
		}
		r.stats.EpisodesSeen++
		s.account(r, card.URL, s.syncEpisode(ctx, r, card, ""))
	}

	metrics.ObserveRun(runOutcome(ctx), time.Since(r.stats.StartedAt))
	s.logger.Info("sync run finished",
		zap.Int("seen", r.stats.EpisodesSeen),
		zap.Int("synced", r.stats.EpisodesSynced),
		zap.Int("skipped", r.stats.EpisodesSkipped),
		zap.Int("failed", r.stats.EpisodesFailed))
	return r.stats, nil
}

// SyncSeries backfills every episode listed on a series page, following
// pagination up to the configured page cap.
func (s *Syncer) SyncSeries(ctx context.Context, seriesURL string, force bool) (RunStats, error) {
	r, err := s.begin(force)
	if err != nil {
		return RunStats{}, err
	}
	defer s.finish(r)

	s.logger.Info("series backfill started", zap.String("series", seriesURL))

	pageURL := seriesURL
	var links []extract.EpisodeLink
	for page := 0; page < s.cfg.MaxSeriesPages && pageURL != ""; page++ {
		if page > 0 {
			s.pause(ctx)
		}
		markup, err := s.fetcher.Fetch(ctx, pageURL, fetch.Options{})
		if err != nil {
			if r.stats.Pages == 0 {
				r.stats.LastError = err.Error()
				metrics.ObserveRun("failed", time.Since(r.stats.StartedAt))
				return r.stats, fmt.Errorf("series page: %w", err)
			}
			s.logger.Warn("series pagination stopped", zap.String("url", pageURL), zap.Error(err))
			break
		}
		r.stats.Pages++
		pageLinks, err := extract.SeriesEpisodeLinks(markup, pageURL)
		if err == nil {
			links = append(links, pageLinks...)
		}
		pageURL = extract.NextPageURL(markup, pageURL)
	}

	for _, link := range links {
		if ctx.Err() != nil {
			r.stats.LastError = ctx.Err().Error()
			break
		}
		r.stats.EpisodesSeen++
		card := extract.EpisodeCard{URL: link.URL, Title: link.Title, Thumbnail: link.Thumbnail}
		s.account(r, link.URL, s.syncEpisode(ctx, r, card, seriesURL))
	}

	metrics.ObserveRun(runOutcome(ctx), time.Since(r.stats.StartedAt))
	return r.stats, nil
}

func runOutcome(ctx context.Context) string {
	if ctx.Err() != nil {
		return "canceled"
	}
	return "ok"
}

func (s *Syncer) begin(force bool) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrRunActive
	}
	s.running = true
	return &run{
		force:  force,
		stats:  RunStats{ID: uuid.NewString(), StartedAt: time.Now()},
		seen:   make(map[string]struct{}),
		series: make(map[string]*store.Series),
	}, nil
}

func (s *Syncer) finish(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.stats.FinishedAt = time.Now()
	s.last = r.stats
	s.running = false
}

func (s *Syncer) account(r *run, epURL string, err error) {
	switch {
	case err == nil:
		r.stats.EpisodesSynced++
		metrics.ObserveEpisode("synced")
	case errors.Is(err, errNotEpisode), errors.Is(err, errFresh), errors.Is(err, errDuplicate):
		r.stats.EpisodesSkipped++
		metrics.ObserveEpisode("skipped")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.stats.LastError = err.Error()
	default:
		r.stats.EpisodesFailed++
		r.stats.LastError = err.Error()
		metrics.ObserveEpisode("failed")
		s.logger.Warn("episode sync failed", zap.String("url", epURL), zap.Error(err))
	}
}

// fetchListing tries the base URL and then each fallback until one
// answers.
func (s *Syncer) fetchListing(ctx context.Context) (string, string, error) {
	candidates := make([]string, 0, 1+len(s.cfg.FallbackURLs))
	candidates = append(candidates, s.cfg.BaseURL)
	candidates = append(candidates, s.cfg.FallbackURLs...)

	var lastErr error
	for _, base := range candidates {
		if base == "" {
			continue
		}
		markup, err := s.fetcher.Fetch(ctx, base, fetch.Options{})
		if err == nil {
			return markup, base, nil
		}
		lastErr = err
		s.logger.Warn("listing fetch failed", zap.String("url", base), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", "", fmt.Errorf("all listing sources unreachable: %w", lastErr)
}

// syncEpisode runs the per-episode pipeline. Sentinel errors classify the
// skip reasons; anything else counts as a failure.
func (s *Syncer) syncEpisode(ctx context.Context, r *run, card extract.EpisodeCard, seriesHint string) error {
	code := extract.ParseEpisodeCode(card.URL)
	if code == nil {
		return errNotEpisode
	}
	slug := extract.EpisodeSlug(card.URL)

	key := fmt.Sprintf("%s-%dx%d", slug, code.Season, code.Episode)
	if _, dup := r.seen[key]; dup {
		return errDuplicate
	}
	r.seen[key] = struct{}{}

	if !r.force {
		needs, err := s.needsUpdate(ctx, slug, code)
		if err != nil {
			return err
		}
		if !needs {
			return errFresh
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.EpisodeRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			s.logger.Debug("retrying episode sync",
				zap.String("url", card.URL),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
		}
		lastErr = s.buildAndPersist(ctx, r, card, slug, code, seriesHint)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
	}
	return lastErr
}

// needsUpdate implements the change-detection policy: a record is stale
// when it is missing, has no servers, or lacks a thumbnail or poster.
func (s *Syncer) needsUpdate(ctx context.Context, slug string, code *extract.EpisodeCode) (bool, error) {
	ep, err := s.store.GetEpisode(ctx, slug, code.Season, code.Episode)
	if err != nil {
		return false, fmt.Errorf("lookup episode: %w", err)
	}
	if ep == nil || len(ep.Servers) == 0 || ep.Thumbnail == "" || ep.Poster == "" {
		return true, nil
	}
	return false, nil
}

// buildAndPersist is one build+upsert+verify cycle for an episode.
func (s *Syncer) buildAndPersist(ctx context.Context, r *run, card extract.EpisodeCard, slug string, code *extract.EpisodeCode, seriesHint string) error {
	s.pause(ctx)
	page, err := s.fetcher.Fetch(ctx, card.URL, fetch.Options{})
	if err != nil {
		return fmt.Errorf("episode page: %w", err)
	}

	seriesURL := extract.BreadcrumbSeriesURL(page, card.URL)
	if seriesURL == "" {
		seriesURL = extract.SeriesURLFromEpisode(card.URL, siteBase(card.URL))
	}
	if seriesURL == "" {
		seriesURL = seriesHint
	}
	series, err := s.ensureSeries(ctx, r, seriesURL, slug)
	if err != nil {
		return err
	}

	title := extract.EpisodeTitle(page)
	if title == "" {
		title = card.Title
	}
	thumb := extract.EpisodeThumbnail(page, card.URL)
	if thumb == "" {
		thumb = card.Thumbnail
	}

	embeds, err := extract.Embeds(page, card.URL)
	if err != nil {
		return fmt.Errorf("parse embeds: %w", err)
	}
	if len(embeds) == 0 {
		embeds = s.ajaxEmbeds(ctx, page, card.URL)
	}

	servers := make([]store.Server, 0, len(embeds))
	for _, em := range embeds {
		s.pause(ctx)
		final, err := s.resolver.Resolve(ctx, em.URL, card.URL)
		if err != nil {
			return err
		}
		if final == "" || final == em.URL {
			r.stats.ServersDropped++
			metrics.ObserveServer("dropped")
			s.logger.Debug("server dropped",
				zap.String("episode", card.URL),
				zap.String("embed", em.URL))
			continue
		}
		servers = append(servers, store.Server{Name: em.Name, URL: final})
		r.stats.ServersResolved++
		metrics.ObserveServer("resolved")
	}

	rec := &store.Episode{
		SeriesSlug: series.Slug,
		Season:     code.Season,
		Episode:    code.Episode,
		Title:      title,
		URL:        card.URL,
		Thumbnail:  thumb,
		Poster:     series.Poster,
		Servers:    servers,
	}
	if err := s.store.UpsertEpisode(ctx, rec); err != nil {
		return fmt.Errorf("upsert episode: %w", err)
	}

	got, err := s.store.GetEpisode(ctx, series.Slug, code.Season, code.Episode)
	if err != nil {
		return fmt.Errorf("verify episode: %w", err)
	}
	if got == nil {
		return fmt.Errorf("verify episode %s %dx%d: record missing after upsert", series.Slug, code.Season, code.Episode)
	}
	return nil
}

// ajaxEmbeds asks the player ajax endpoint for server options when the page
// markup carried none. Slots are numbered from 1; the probe stops at the
// first empty reply. A page without a post id does not expose the endpoint,
// so the episode simply ends up serverless.
func (s *Syncer) ajaxEmbeds(ctx context.Context, page, pageURL string) []extract.Embed {
	postID := extract.PostID(page)
	if postID == "" {
		s.logger.Debug("no post id for ajax embeds", zap.String("episode", pageURL))
		return nil
	}
	endpoint := s.cfg.AjaxURL
	if endpoint == "" {
		base := siteBase(pageURL)
		if base == "" {
			return nil
		}
		endpoint = base + "/wp-admin/admin-ajax.php"
	}
	nonce := extract.Nonce(page)

	var embeds []extract.Embed
	seen := map[string]struct{}{}
	for slot := 1; slot <= maxAjaxSlots; slot++ {
		if ctx.Err() != nil {
			break
		}
		s.pause(ctx)
		form := map[string]string{
			"action": "doo_player_ajax",
			"post":   postID,
			"nume":   strconv.Itoa(slot),
			"type":   "tv",
		}
		if nonce != "" {
			form["nonce"] = nonce
		}
		body, err := s.fetcher.PostForm(ctx, endpoint, form, fetch.Options{Referer: pageURL})
		if err != nil {
			s.logger.Debug("ajax embed fetch failed",
				zap.String("episode", pageURL),
				zap.Int("slot", slot),
				zap.Error(err))
			break
		}
		u := extract.AjaxEmbedURL(body, pageURL)
		if u == "" {
			break
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		embeds = append(embeds, extract.Embed{Name: fmt.Sprintf("Server %d", slot), URL: u})
	}
	if len(embeds) > 0 {
		s.logger.Debug("embeds recovered via ajax endpoint",
			zap.String("episode", pageURL),
			zap.Int("count", len(embeds)))
	}
	return embeds
}

// ensureSeries resolves the series record for an episode, at most once per
// run per series. Catalog enrichment fills only the fields scraping left
// empty.
func (s *Syncer) ensureSeries(ctx context.Context, r *run, seriesURL, fallbackSlug string) (*store.Series, error) {
	cacheKey := seriesURL
	if cacheKey == "" {
		cacheKey = fallbackSlug
	}
	if cached, ok := r.series[cacheKey]; ok {
		return cached, nil
	}

	slug := fallbackSlug
	if seriesURL != "" {
		if fromURL := pathSlug(seriesURL); fromURL != "" {
			slug = fromURL
		}
	}
	if slug == "" {
		return nil, fmt.Errorf("series slug unavailable for %q", seriesURL)
	}

	rec := &store.Series{Slug: slug, URL: seriesURL}
	if seriesURL != "" {
		s.pause(ctx)
		markup, err := s.fetcher.Fetch(ctx, seriesURL, fetch.Options{})
		if err != nil {
			s.logger.Debug("series page fetch failed", zap.String("url", seriesURL), zap.Error(err))
		} else if info, err := extract.SeriesDetails(markup, seriesURL); err == nil {
			rec.Title = info.Title
			rec.Overview = info.Description
			rec.Poster = info.Poster
			rec.Genres = info.Genres
		}
	}

	if s.catalog != nil && s.catalog.Enabled() && (rec.Poster == "" || rec.Overview == "") {
		s.enrichSeries(ctx, rec, slug)
	}
	if rec.Title == "" {
		rec.Title = titleFromSlug(slug)
	}

	if err := s.store.UpsertSeries(ctx, rec); err != nil {
		return nil, fmt.Errorf("upsert series %q: %w", slug, err)
	}
	r.series[cacheKey] = rec
	return rec, nil
}

// enrichSeries is best-effort: lookup failures are logged and ignored.
func (s *Syncer) enrichSeries(ctx context.Context, rec *store.Series, slug string) {
	id, err := s.catalog.Search(ctx, slug, catalog.MediaTV)
	if err != nil {
		s.logger.Debug("catalog search failed", zap.String("slug", slug), zap.Error(err))
		return
	}
	if id == 0 {
		return
	}
	rec.TMDBID = id
	details, err := s.catalog.Details(ctx, id, catalog.MediaTV)
	if err != nil || details == nil {
		s.logger.Debug("catalog details failed", zap.Int64("id", id), zap.Error(err))
		return
	}
	rec.Rating = details.Rating
	rec.Popularity = details.Popularity
	if rec.Title == "" {
		rec.Title = details.Title
	}
	if rec.Poster == "" {
		rec.Poster = details.PosterURL
	}
	if rec.Overview == "" {
		rec.Overview = details.Overview
	}
	if len(rec.Genres) == 0 {
		rec.Genres = details.Genres
	}
}

func (s *Syncer) pause(ctx context.Context) {
	if s.cfg.Delay <= 0 {
		return
	}
	t := time.NewTimer(s.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// siteBase reduces a URL to scheme://host for deriving sibling URLs.
func siteBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// pathSlug returns the last non-empty path segment of a URL.
func pathSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// titleFromSlug is the display-title fallback when neither scraping nor
// the catalog produced one.
func titleFromSlug(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

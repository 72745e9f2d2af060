package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/store"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/syncer"
)

const (
	defaultEpisodeLimit = 25
	maxEpisodeLimit     = 200
	defaultLogLimit     = 100
	maxLogLimit         = 1000
)

// status handles GET /api/status. It reports whether a run is active, the
// counters of the last completed run, the proxy pool shape, and uptime.
func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	running, last := s.sync.Status()
	payload := map[string]any{
		"running":        running,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	if !last.StartedAt.IsZero() {
		payload["last_run"] = last
	}
	if s.pool != nil {
		payload["proxy"] = s.pool.Stats()
	}
	writeJSON(w, http.StatusOK, payload)
}

// recentEpisodes handles GET /api/episodes/recent?limit=. It returns
// {"episodes": [...]} newest first, or 400 for an invalid limit.
func (s *Server) recentEpisodes(w http.ResponseWriter, r *http.Request) {
	def := s.cfg.Sync.RecentLimit
	if def <= 0 {
		def = defaultEpisodeLimit
	}
	limit, err := parseLimit(r, def, maxEpisodeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	episodes, err := s.store.RecentEpisodes(ctx, limit)
	if err != nil {
		s.logger.Error("recent episodes lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list episodes")
		return
	}
	if episodes == nil {
		episodes = []store.Episode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"episodes": episodes})
}

// recentLogs handles GET /api/logs?limit=. It returns the ring buffer tail,
// oldest first, or 503 when no ring was wired.
func (s *Server) recentLogs(w http.ResponseWriter, r *http.Request) {
	if s.ring == nil {
		writeError(w, http.StatusServiceUnavailable, "log buffer unavailable")
		return
	}
	limit, err := parseLimit(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.ring.Tail(limit)})
}

// triggerSync handles POST /api/sync?force=. The run happens on a background
// context; the response is 202 immediately, or 409 while a run is active.
func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	force := parseForce(r.URL.Query().Get("force"))
	if running, _ := s.sync.Status(); running {
		writeError(w, http.StatusConflict, "a sync run is already active")
		return
	}
	go s.runDetached("sync", func(ctx context.Context) (syncer.RunStats, error) {
		return s.sync.Run(ctx, force)
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "force": force})
}

type seriesSyncRequest struct {
	URL   string `json:"url"`
	Force bool   `json:"force"`
}

// triggerSeries handles POST /api/sync/series. The series URL comes from the
// "url" query parameter or a JSON body; the query parameter wins.
func (s *Server) triggerSeries(w http.ResponseWriter, r *http.Request) {
	var req seriesSyncRequest
	if r.Body != nil {
		// Body is optional; a decode failure only matters if the query
		// parameter is also missing.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	seriesURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if seriesURL == "" {
		seriesURL = strings.TrimSpace(req.URL)
	}
	if seriesURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if u, err := url.Parse(seriesURL); err != nil || u.Scheme == "" || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be absolute")
		return
	}
	force := req.Force || parseForce(r.URL.Query().Get("force"))
	if running, _ := s.sync.Status(); running {
		writeError(w, http.StatusConflict, "a sync run is already active")
		return
	}
	go s.runDetached("series backfill", func(ctx context.Context) (syncer.RunStats, error) {
		return s.sync.SyncSeries(ctx, seriesURL, force)
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "url": seriesURL})
}

// runDetached executes one run on the server's base context. The 409 check
// in the handlers is advisory; the syncer's own guard is authoritative, so a
// lost race surfaces here as ErrRunActive and is only logged.
func (s *Server) runDetached(name string, fn func(context.Context) (syncer.RunStats, error)) {
	stats, err := fn(s.baseCtx)
	switch {
	case errors.Is(err, syncer.ErrRunActive):
		s.logger.Warn("run request ignored, another run is active", zap.String("trigger", name))
	case err != nil:
		s.logger.Error("triggered run failed", zap.String("trigger", name), zap.Error(err))
	default:
		s.logger.Info("triggered run finished",
			zap.String("trigger", name),
			zap.String("run_id", stats.ID),
			zap.Int("synced", stats.EpisodesSynced),
			zap.Int("failed", stats.EpisodesFailed),
		)
	}
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

func parseForce(raw string) bool {
	return raw == "1" || strings.EqualFold(raw, "true")
}

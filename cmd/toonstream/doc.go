// Package main hosts the scraper service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/server exposes health, status, recent-episode,
//     recent-log, and metrics endpoints plus the manual sync triggers. Trigger
//     routes respond 202 and hand the run to the syncer on a background
//     context; 409 is returned while a run is active.
//   - Sync pipeline: internal/syncer walks the listing page (or a series page
//     for backfills), parses episode cards via internal/extract, and builds
//     one record per (series, season, episode). Episodes and embed servers
//     are processed strictly sequentially with a politeness delay between
//     external fetches.
//   - Embed resolution: internal/resolve follows each server's embed chain
//     (redirector pages, nested iframes, script-embedded sources) to a
//     playable URL, bounded by depth and a visited set. An unresolvable chain
//     drops that server, never the episode.
//   - Fetch layer: internal/fetch wraps a Colly collector with per-attempt
//     cloning, retry/backoff, realistic browser headers, and rotation over
//     the internal/proxy pool. A proxy failure marks the endpoint and the
//     next attempt picks another.
//   - Persistence: internal/store defines the Store interface with an
//     in-memory implementation; internal/store/postgres persists series and
//     episodes (server lists as JSONB) behind the same interface when a DSN
//     is configured. Upserts are keyed on (series_slug, season, episode).
//   - Catalog enrichment: internal/catalog fills missing posters, overviews,
//     and genres from TMDB when an API key is configured; lookups are
//     rate-limited and strictly best-effort.
//   - Configuration & plumbing: Viper populates config from file/env; zap
//     provides structured logging with a ring buffer backing /api/logs;
//     Prometheus metrics are exported via middleware and /metrics; cron
//     drives scheduled runs with run-on-start support.
//
// Operational notes:
//   - Concurrency model: one sync run at a time, enforced by the syncer;
//     scheduler ticks and HTTP triggers both skip instead of queueing.
//     Shutdown is coordinated via context cancellation from main through the
//     scheduler and any in-flight run.
//   - Politeness: a configurable delay precedes every external fetch, and
//     fetch retries back off exponentially. Proxies are optional; with none
//     configured all traffic goes direct.
//   - Observability: zap logs carry run IDs and URLs at key transitions;
//     Prometheus counters/histograms track fetches, resolution tiers,
//     episode outcomes, and run durations; /api/status reports the last
//     run's counters.
//
// Quick checklist:
//   - Configure env vars with the TOONSTREAM_ prefix: TOONSTREAM_SOURCE_BASE_URL,
//     TOONSTREAM_SERVER_PORT, TOONSTREAM_DATABASE_ENABLED/TOONSTREAM_DATABASE_DSN,
//     TOONSTREAM_TMDB_API_KEY, TOONSTREAM_SCHEDULER_CRON_EXPR, and proxy
//     settings (TOONSTREAM_PROXY_*) when rotation is required.
//   - Run locally: go run ./cmd/toonstream -config config.yaml (or rely
//     solely on env overrides).
//   - The server listens on the configured port, reacts to SIGINT/SIGTERM
//     with graceful drain, and bounds shutdown at ten seconds.
package main

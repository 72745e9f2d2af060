// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	resolveOutcomesTotal       *prometheus.CounterVec
	episodesTotal              *prometheus.CounterVec
	serversTotal               *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	proxyPoolEndpoints         *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetch_attempts_total",
				Help: "Total outbound fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_fetch_duration_seconds",
				Help:    "Histogram of outbound fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		resolveOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_resolve_outcomes_total",
				Help: "Embed resolution outcomes, labeled by the winning tier.",
			},
			[]string{"tier"},
		)

		episodesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_episodes_total",
				Help: "Episodes processed per sync, labeled by status.",
			},
			[]string{"status"},
		)

		serversTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_servers_total",
				Help: "Embed servers handled during sync, labeled by status.",
			},
			[]string{"status"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Completed sync runs, labeled by status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Histogram of full sync run durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
			},
		)

		proxyPoolEndpoints = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scraper_proxy_pool_endpoints",
				Help: "Proxy pool size, labeled by endpoint state.",
			},
			[]string{"state"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt against a site.
func ObserveFetch(site, outcome string, duration time.Duration) {
	sanitized := SanitizeSite(site)
	fetchAttemptsTotal.WithLabelValues(sanitized, outcome).Inc()
	if duration > 0 {
		fetchDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
	}
}

// ObserveResolve records the tier that won one embed resolution.
func ObserveResolve(tier string) {
	resolveOutcomesTotal.WithLabelValues(tier).Inc()
}

// ObserveEpisode increments the episode counter for the given status.
func ObserveEpisode(status string) {
	episodesTotal.WithLabelValues(status).Inc()
}

// ObserveServer increments the server counter for the given status.
func ObserveServer(status string) {
	serversTotal.WithLabelValues(status).Inc()
}

// ObserveRun records a completed run and its duration.
func ObserveRun(status string, duration time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// SetProxyPool publishes the pool's current size and healthy count.
func SetProxyPool(total, active int) {
	proxyPoolEndpoints.WithLabelValues("total").Set(float64(total))
	proxyPoolEndpoints.WithLabelValues("active").Set(float64(active))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

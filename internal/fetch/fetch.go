// Package fetch issues outbound HTTP requests through Colly with retry,
// header spoofing, and optional proxy routing.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/metrics"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/proxy"
)

const maxRedirects = 5

// Pool supplies proxy endpoints to route attempts through. A nil endpoint
// means "fetch without a proxy".
type Pool interface {
	Next() *proxy.Endpoint
	MarkFailed(*proxy.Endpoint)
}

// Options tune a single Fetch call.
type Options struct {
	Referer string
	Headers map[string]string
}

// Config controls client-wide fetch behavior.
type Config struct {
	SourceURL   string
	Cookie      string
	Timeout     time.Duration
	Retries     int
	BackoffBase time.Duration
	UserAgents  []string
}

// Client fetches pages with bounded retries. Attempts run strictly
// sequentially; the collector is cloned per attempt so proxy and header
// state never leaks between calls.
type Client struct {
	cfg        Config
	pool       Pool
	logger     *zap.Logger
	base       *colly.Collector
	sourceHost string
}

// New builds a fetch Client.
func New(cfg Config, pool Pool, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}

	base := colly.NewCollector(
		colly.Async(false),
		colly.ParseHTTPErrorResponse(),
		colly.AllowURLRevisit(),
	)
	base.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})

	return &Client{
		cfg:        cfg,
		pool:       pool,
		logger:     logger,
		base:       base,
		sourceHost: canonicalHost(hostOf(cfg.SourceURL)),
	}
}

// Fetch retrieves the page text at rawURL, retrying with linear backoff.
// Exhaustion returns an *ExhaustedError carrying the last underlying error.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (string, error) {
	return c.do(ctx, rawURL, opts, nil)
}

// PostForm submits an urlencoded form to rawURL with the same retry and
// proxy behavior as Fetch. Player ajax endpoints answer only to POST.
func (c *Client) PostForm(ctx context.Context, rawURL string, form map[string]string, opts Options) (string, error) {
	if form == nil {
		form = map[string]string{}
	}
	return c.do(ctx, rawURL, opts, form)
}

// do is the shared retry loop. A nil form means GET.
func (c *Client) do(ctx context.Context, rawURL string, opts Options, form map[string]string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, time.Duration(attempt-1)*c.cfg.BackoffBase); err != nil {
				return "", err
			}
		}

		start := time.Now()
		body, err := c.attempt(ctx, rawURL, opts, form)
		if err == nil {
			metrics.ObserveFetch(rawURL, "success", time.Since(start))
			return body, nil
		}
		lastErr = err
		metrics.ObserveFetch(rawURL, "retry", time.Since(start))
		c.logger.Warn("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if ctx.Err() != nil {
			break
		}
	}

	metrics.ObserveFetch(rawURL, "exhausted", 0)
	return "", &ExhaustedError{URL: rawURL, Attempts: c.cfg.Retries, Last: lastErr}
}

func (c *Client) attempt(ctx context.Context, rawURL string, opts Options, form map[string]string) (string, error) {
	collector := c.base.Clone()
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.UserAgent = c.randomUserAgent()

	endpoint := c.nextProxy()
	transport, err := c.newTransport(endpoint)
	if err != nil {
		return "", err
	}
	collector.WithTransport(transport)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		for k, v := range c.buildHeaders(r.URL, opts) {
			r.Headers.Set(k, v)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.runCollector(ctx, collector, rawURL, form); err != nil {
		c.maybeMarkProxy(endpoint, err)
		return "", err
	}
	if fetchErr != nil {
		c.maybeMarkProxy(endpoint, fetchErr)
		return "", fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
	}
	if status < http.StatusOK || status >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, status)
	}
	return string(body), nil
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, form map[string]string) error {
	done := make(chan error, 1)
	go func() {
		if form != nil {
			done <- collector.Post(rawURL, form)
		} else {
			done <- collector.Visit(rawURL)
		}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", rawURL, err)
		}
		return nil
	}
}

func (c *Client) nextProxy() *proxy.Endpoint {
	if c.pool == nil {
		return nil
	}
	return c.pool.Next()
}

// maybeMarkProxy takes the endpoint out of rotation on connection-level
// failures only; HTTP status errors are the origin server's fault, not the
// tunnel's.
func (c *Client) maybeMarkProxy(endpoint *proxy.Endpoint, err error) {
	if endpoint == nil || c.pool == nil || !isConnectionError(err) {
		return
	}
	c.pool.MarkFailed(endpoint)
}

func (c *Client) newTransport(endpoint *proxy.Endpoint) (*http.Transport, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if endpoint != nil {
		proxyURL, err := url.Parse(endpoint.URL())
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return transport, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func canonicalHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// Package proxy maintains the rotating pool of outbound proxy endpoints.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/metrics"
)

// Health is the lifecycle state of a proxy endpoint.
type Health int

const (
	HealthUntested Health = iota
	HealthHealthy
	HealthFailed
)

// String returns the lowercase state name.
func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthFailed:
		return "failed"
	default:
		return "untested"
	}
}

// Endpoint is one proxy candidate. Health state is owned by the Pool and
// mutated only through it.
type Endpoint struct {
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string

	health      Health
	lastFailure time.Time
}

// URL renders the endpoint as a proxy URL usable by http.Transport.
func (e *Endpoint) URL() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "http"
	}
	if e.Username != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%s", scheme, url.QueryEscape(e.Username), url.QueryEscape(e.Password), e.Host, e.Port)
	}
	return fmt.Sprintf("%s://%s:%s", scheme, e.Host, e.Port)
}

// Health reports the endpoint's current state.
func (e *Endpoint) Health() Health { return e.health }

// ParseEndpoint accepts the common proxy list formats:
// "host:port", "host:port:user:pass", and "scheme://[user:pass@]host:port".
func ParseEndpoint(raw string) (*Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty proxy entry")
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url %q: %w", raw, err)
		}
		if u.Hostname() == "" || u.Port() == "" {
			return nil, fmt.Errorf("proxy url %q missing host or port", raw)
		}
		e := &Endpoint{Scheme: u.Scheme, Host: u.Hostname(), Port: u.Port()}
		if u.User != nil {
			e.Username = u.User.Username()
			e.Password, _ = u.User.Password()
		}
		return e, nil
	}
	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 2:
		return &Endpoint{Host: parts[0], Port: parts[1]}, nil
	case 4:
		return &Endpoint{Host: parts[0], Port: parts[1], Username: parts[2], Password: parts[3]}, nil
	default:
		return nil, fmt.Errorf("unrecognized proxy entry %q", raw)
	}
}

// Stats is the pool snapshot served by the status endpoint.
type Stats struct {
	Enabled bool `json:"enabled"`
	Total   int  `json:"total"`
	Active  int  `json:"active"`
}

// Config controls pool loading and validation.
type Config struct {
	Enabled      bool
	List         []string
	File         string
	Validate     bool
	TestURL      string
	MaxValidated int
	ProbeTimeout time.Duration
}

// Pool rotates over healthy endpoints. A failed endpoint stays failed until
// the next Initialize; there is no in-process recovery.
type Pool struct {
	mu        sync.Mutex
	cfg       Config
	endpoints []*Endpoint
	cursor    int
	logger    *zap.Logger
	probeFn   func(ctx context.Context, e *Endpoint) error
}

// NewPool builds a Pool; call Initialize before Next.
func NewPool(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	p := &Pool{cfg: cfg, logger: logger}
	p.probeFn = p.probeEndpoint
	return p
}

// Initialize loads the candidate list and optionally validates the first
// MaxValidated candidates against the test URL. Candidates beyond the cap
// stay untested and remain in rotation.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endpoints = nil
	p.cursor = 0
	defer func() { metrics.SetProxyPool(len(p.endpoints), p.activeLocked()) }()
	if !p.cfg.Enabled {
		return nil
	}

	raws, err := p.loadCandidates()
	if err != nil {
		return err
	}
	for _, raw := range raws {
		e, err := ParseEndpoint(raw)
		if err != nil {
			p.logger.Warn("skipping malformed proxy entry", zap.String("entry", raw), zap.Error(err))
			continue
		}
		p.endpoints = append(p.endpoints, e)
	}

	if p.cfg.Validate && p.cfg.TestURL != "" {
		p.validateLocked(ctx)
	}

	p.logger.Info("proxy pool initialized",
		zap.Int("total", len(p.endpoints)),
		zap.Int("active", p.activeLocked()))
	return nil
}

func (p *Pool) loadCandidates() ([]string, error) {
	raws := append([]string(nil), p.cfg.List...)
	if p.cfg.File == "" {
		return raws, nil
	}
	f, err := os.Open(p.cfg.File)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raws = append(raws, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	return raws, nil
}

func (p *Pool) validateLocked(ctx context.Context) {
	max := p.cfg.MaxValidated
	if max <= 0 || max > len(p.endpoints) {
		max = len(p.endpoints)
	}
	kept := p.endpoints[:0]
	for i, e := range p.endpoints {
		if i >= max {
			kept = append(kept, e)
			continue
		}
		if err := p.probeFn(ctx, e); err != nil {
			p.logger.Warn("proxy failed validation",
				zap.String("proxy", e.Host+":"+e.Port), zap.Error(err))
			continue
		}
		e.health = HealthHealthy
		kept = append(kept, e)
	}
	p.endpoints = kept
}

func (p *Pool) probeEndpoint(ctx context.Context, e *Endpoint) error {
	proxyURL, err := url.Parse(e.URL())
	if err != nil {
		return fmt.Errorf("parse proxy url: %w", err)
	}
	client := &http.Client{
		Timeout:   p.cfg.ProbeTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.TestURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe via proxy: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // drained below
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Next returns the next healthy endpoint in rotation, or nil when proxying
// is disabled or every endpoint has failed. Callers must treat nil as
// "fetch without a proxy", never as an error.
func (p *Pool) Next() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Enabled || len(p.endpoints) == 0 {
		return nil
	}
	for i := 0; i < len(p.endpoints); i++ {
		e := p.endpoints[p.cursor%len(p.endpoints)]
		p.cursor++
		if e.health != HealthFailed {
			return e
		}
	}
	return nil
}

// MarkFailed takes the endpoint out of rotation until the next Initialize.
func (p *Pool) MarkFailed(e *Endpoint) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e.health = HealthFailed
	e.lastFailure = time.Now()
	metrics.SetProxyPool(len(p.endpoints), p.activeLocked())
	p.logger.Warn("proxy marked failed",
		zap.String("proxy", e.Host+":"+e.Port),
		zap.Int("active", p.activeLocked()))
}

// Stats reports the pool's current shape.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Enabled: p.cfg.Enabled,
		Total:   len(p.endpoints),
		Active:  p.activeLocked(),
	}
}

func (p *Pool) activeLocked() int {
	n := 0
	for _, e := range p.endpoints {
		if e.health != HealthFailed {
			n++
		}
	}
	return n
}

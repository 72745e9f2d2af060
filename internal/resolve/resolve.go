// Package resolve walks iframe and redirector chains from a player embed
// page down to a URL worth handing to a video player. The walk is bounded
// by a depth limit and a visited set, so hostile or miswired pages cannot
// loop it.
package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/extract"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/fetch"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/metrics"
)

// depthPadding widens the configured bound so chains sitting exactly at
// the advertised limit still reach their terminal URL.
const depthPadding = 2

const defaultMaxDepth = 3

// Fetcher retrieves the text of a page. *fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (string, error)
}

// Config carries the engine knobs.
type Config struct {
	// MaxDepth is the nominal recursion bound. The engine pads it
	// internally before enforcing.
	MaxDepth int
	// SourceURL anchors the same-site test for iframe chains.
	SourceURL string
}

// Engine resolves embed URLs. Safe for concurrent use; each Resolve call
// carries its own visited set.
type Engine struct {
	fetcher    Fetcher
	logger     *zap.Logger
	bound      int
	sourceHost string
}

func New(cfg Config, fetcher Fetcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = defaultMaxDepth
	}
	return &Engine{
		fetcher:    fetcher,
		logger:     logger,
		bound:      depth + depthPadding,
		sourceHost: extract.HostOf(cfg.SourceURL),
	}
}

// Resolve follows the chain starting at startURL and returns the deepest
// playable URL it reached. An empty result means the chain broke on a
// failed fetch; a result equal to startURL means nothing usable was found.
// The error is non-nil only when ctx was canceled.
func (e *Engine) Resolve(ctx context.Context, startURL, referer string) (string, error) {
	w := &walk{visited: make(map[string]struct{})}
	final, err := e.hop(ctx, w, startURL, referer, 0)
	if err != nil {
		return "", err
	}
	if final == "" {
		e.logger.Debug("embed chain broke", zap.String("start", startURL))
	}
	return final, nil
}

type walk struct {
	visited map[string]struct{}
}

func (w *walk) seen(rawURL string) bool {
	_, ok := w.visited[rawURL]
	return ok
}

// hop processes one page of the chain. Terminal outcomes are decided here;
// recursive outcomes are passed through from the child hop untouched, so
// every resolution records exactly one outcome.
func (e *Engine) hop(ctx context.Context, w *walk, pageURL, referer string, depth int) (string, error) {
	if w.seen(pageURL) || depth > e.bound {
		// Surface the deepest URL reached instead of failing the chain.
		metrics.ObserveResolve("depth_limit")
		return pageURL, nil
	}
	w.visited[pageURL] = struct{}{}

	body, err := e.fetcher.Fetch(ctx, pageURL, fetch.Options{Referer: referer})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		e.logger.Debug("embed page fetch failed",
			zap.String("url", pageURL),
			zap.Int("depth", depth),
			zap.Error(err))
		metrics.ObserveResolve("fetch_failed")
		return "", nil
	}

	if video := extract.VideoSrc(body, pageURL); video != "" && video != pageURL {
		metrics.ObserveResolve("direct_video")
		return video, nil
	}

	if next := e.firstIframe(body, pageURL, w); next != "" {
		if isRedirector(next) || e.sameSite(next, pageURL) {
			return e.hop(ctx, w, next, pageURL, depth+1)
		}
		if isKnownPlayerHost(next) || looksLikeVideoURL(next) {
			metrics.ObserveResolve("player_iframe")
			return next, nil
		}
		// Unknown external hosts terminate the chain.
		metrics.ObserveResolve("external_iframe")
		return next, nil
	}

	scripts := e.scriptCandidates(body, pageURL, w)
	for _, candidate := range scripts {
		if looksLikeVideoURL(candidate) {
			metrics.ObserveResolve("script_video")
			return candidate, nil
		}
	}
	if depth < e.bound {
		for _, candidate := range scripts {
			if needsFollow(candidate) {
				return e.hop(ctx, w, candidate, pageURL, depth+1)
			}
		}
	}

	metrics.ObserveResolve("unresolved")
	return pageURL, nil
}

// firstIframe returns the first iframe source on the page that is neither
// the page itself nor already visited.
func (e *Engine) firstIframe(body, pageURL string, w *walk) string {
	for _, src := range extract.IframeSrcs(body, pageURL) {
		if src == pageURL || w.seen(src) {
			continue
		}
		return src
	}
	return ""
}

func (e *Engine) scriptCandidates(body, pageURL string, w *walk) []string {
	var out []string
	for _, u := range extract.ScriptURLs(body, pageURL) {
		if u == pageURL || w.seen(u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// sameSite reports whether candidate lives on the configured source host,
// falling back to the current page's host when no source is configured.
func (e *Engine) sameSite(candidate, pageURL string) bool {
	if e.sourceHost != "" {
		return extract.HostOf(candidate) == e.sourceHost
	}
	return extract.SameHost(candidate, pageURL)
}

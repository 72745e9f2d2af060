package fetch

import (
	"math/rand/v2"
	"net/url"
)

// defaultUserAgents is the rotation pool. Picking one uniformly at random
// per request defeats trivial single-UA blocking.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

func (c *Client) randomUserAgent() string {
	return c.cfg.UserAgents[rand.IntN(len(c.cfg.UserAgents))]
}

// buildHeaders assembles request headers. Generic browser headers are always
// sent; the source-site spoof block (Referer, Origin, Sec-Fetch-*, Cookie)
// applies only when the target host matches the configured source site.
// An explicit Options.Referer wins over the spoofed one on any host.
func (c *Client) buildHeaders(target *url.URL, opts Options) map[string]string {
	h := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Upgrade-Insecure-Requests": "1",
	}

	if c.isSourceHost(target) {
		h["Referer"] = c.cfg.SourceURL + "/"
		h["Origin"] = c.cfg.SourceURL
		h["Sec-Fetch-Dest"] = "document"
		h["Sec-Fetch-Mode"] = "navigate"
		h["Sec-Fetch-Site"] = "same-origin"
		if c.cfg.Cookie != "" {
			h["Cookie"] = c.cfg.Cookie
		}
	}

	if opts.Referer != "" {
		h["Referer"] = opts.Referer
	}
	for k, v := range opts.Headers {
		h[k] = v
	}
	return h
}

func (c *Client) isSourceHost(target *url.URL) bool {
	return c.sourceHost != "" && canonicalHost(target.Hostname()) == c.sourceHost
}

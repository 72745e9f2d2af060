package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	postIDScriptRes = []*regexp.Regexp{
		regexp.MustCompile(`"post_?id"\s*:\s*"?(\d+)`),
		regexp.MustCompile(`post_?id\s*[:=]\s*["']?(\d+)`),
		regexp.MustCompile(`"post"\s*:\s*"?(\d+)`),
	}
	bodyPostClassRe = regexp.MustCompile(`postid-(\d+)`)
	articleIDRe     = regexp.MustCompile(`^post-(\d+)$`)

	nonceScriptRes = []*regexp.Regexp{
		regexp.MustCompile(`"nonce"\s*:\s*"([A-Za-z0-9]+)"`),
		regexp.MustCompile(`nonce\s*[:=]\s*["']([A-Za-z0-9]+)["']`),
		regexp.MustCompile(`_wpnonce=([A-Za-z0-9]+)`),
	}

	scriptKVURLRe   = regexp.MustCompile(`(?:src|file|url)\s*["']?\s*[:=]\s*["']((?:https?:)?\\?/\\?/[^"'\s]+)["']`)
	scriptBareURLRe = regexp.MustCompile(`https?://[^\s"'<>\\)]+`)
)

// PostID scans for the WordPress post identifier in priority order:
// data-attributes, form fields, body/article element ids, then inline
// script patterns. First match wins; "" means the feature is unavailable.
func PostID(markup string) string {
	doc, err := parse(markup)
	if err != nil {
		return ""
	}

	if v := firstAttr(doc, "[data-post]", "data-post"); v != "" {
		return v
	}
	if v := firstAttr(doc, "[data-postid]", "data-postid"); v != "" {
		return v
	}
	for _, name := range []string{"post_id", "postid", "id"} {
		if v := firstAttr(doc, `input[name="`+name+`"]`, "value"); v != "" && isDigits(v) {
			return v
		}
	}
	if class, ok := doc.Find("body").Attr("class"); ok {
		if m := bodyPostClassRe.FindStringSubmatch(class); m != nil {
			return m[1]
		}
	}
	var fromArticle string
	doc.Find("article[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := articleIDRe.FindStringSubmatch(s.AttrOr("id", "")); m != nil {
			fromArticle = m[1]
			return false
		}
		return true
	})
	if fromArticle != "" {
		return fromArticle
	}
	return scanScripts(doc, postIDScriptRes)
}

// Nonce scans for an AJAX nonce in priority order: data-attributes, form
// fields, then inline script patterns. "" means unavailable.
func Nonce(markup string) string {
	doc, err := parse(markup)
	if err != nil {
		return ""
	}

	if v := firstAttr(doc, "[data-nonce]", "data-nonce"); v != "" {
		return v
	}
	for _, name := range []string{"nonce", "_wpnonce", "security"} {
		if v := firstAttr(doc, `input[name="`+name+`"]`, "value"); v != "" {
			return v
		}
	}
	return scanScripts(doc, nonceScriptRes)
}

// AjaxEmbedURL pulls the player URL out of a player-ajax response. The
// endpoint answers either with JSON carrying an embed_url field or with a
// raw iframe fragment; the result may itself be a same-site redirector hop.
// WordPress answers "0" to an unknown action; that is "no embed", not an
// error.
func AjaxEmbedURL(body, baseURL string) string {
	body = strings.TrimSpace(body)
	if body == "" || body == "0" || body == "-1" {
		return ""
	}
	var reply struct {
		EmbedURL string `json:"embed_url"`
	}
	if err := json.Unmarshal([]byte(body), &reply); err == nil && reply.EmbedURL != "" {
		body = strings.TrimSpace(reply.EmbedURL)
	}
	if strings.Contains(body, "<") {
		doc, err := parse(body)
		if err != nil {
			return ""
		}
		return NormalizeURL(iframeSrc(doc.Find("iframe").First()), baseURL)
	}
	return NormalizeURL(body, baseURL)
}

// IframeSrcs returns every iframe target in document order, normalized
// against base and deduplicated.
func IframeSrcs(markup, baseURL string) []string {
	doc, err := parse(markup)
	if err != nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		u := NormalizeURL(iframeSrc(s), baseURL)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	})
	return out
}

// VideoSrc returns the first direct media element source that is not a
// local blob reference, or "".
func VideoSrc(markup, baseURL string) string {
	doc, err := parse(markup)
	if err != nil {
		return ""
	}
	var found string
	doc.Find("video, video source, source").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"src", "data-src"} {
			raw, ok := s.Attr(attr)
			if !ok || strings.TrimSpace(raw) == "" {
				continue
			}
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "blob:") {
				continue
			}
			if u := NormalizeURL(raw, baseURL); u != "" {
				found = u
				return false
			}
		}
		return true
	})
	return found
}

// ScriptURLs extracts URL-shaped substrings from inline script bodies using
// an ordered set of textual patterns: explicit src=/file=/url= pairs first,
// then bare https URLs as last resort. Results keep that priority order and
// are normalized and deduplicated.
func ScriptURLs(markup, baseURL string) []string {
	doc, err := parse(markup)
	if err != nil {
		return nil
	}

	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if body := s.Text(); strings.TrimSpace(body) != "" {
			scripts = append(scripts, body)
		}
	})

	var out []string
	seen := map[string]struct{}{}
	add := func(raw string) {
		raw = strings.ReplaceAll(raw, `\/`, "/")
		u := NormalizeURL(raw, baseURL)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	for _, body := range scripts {
		for _, m := range scriptKVURLRe.FindAllStringSubmatch(body, -1) {
			add(m[1])
		}
	}
	for _, body := range scripts {
		for _, m := range scriptBareURLRe.FindAllString(body, -1) {
			add(strings.TrimRight(m, ".,;"))
		}
	}
	return out
}

func firstAttr(doc *goquery.Document, selector, attr string) string {
	if v, ok := doc.Find(selector).First().Attr(attr); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func scanScripts(doc *goquery.Document, patterns []*regexp.Regexp) string {
	var bodies []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if body := s.Text(); body != "" {
			bodies = append(bodies, body)
		}
	})
	for _, re := range patterns {
		for _, body := range bodies {
			if m := re.FindStringSubmatch(body); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

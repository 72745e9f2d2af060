package extract

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// EpisodeCode is the (season, episode) pair parsed from an episode slug.
type EpisodeCode struct {
	Season  int
	Episode int
}

var episodeSlugRe = regexp.MustCompile(`^(.*)-(\d+)x(\d+)$`)

// ParseEpisodeCode parses the trailing `<slug>-<season>x<episode>` pattern
// from a slug or URL. A non-matching input returns nil; callers treat that
// as "not an episode", never as an error.
func ParseEpisodeCode(s string) *EpisodeCode {
	slug := lastPathSegment(s)
	m := episodeSlugRe.FindStringSubmatch(slug)
	if m == nil {
		return nil
	}
	season, err := strconv.Atoi(m[2])
	if err != nil || season <= 0 {
		return nil
	}
	episode, err := strconv.Atoi(m[3])
	if err != nil || episode <= 0 {
		return nil
	}
	return &EpisodeCode{Season: season, Episode: episode}
}

// EpisodeSlug returns the series part of an episode slug, the text before
// the trailing -SxE suffix. Empty when the input carries no episode code.
func EpisodeSlug(s string) string {
	slug := lastPathSegment(s)
	m := episodeSlugRe.FindStringSubmatch(slug)
	if m == nil {
		return ""
	}
	return m[1]
}

// SeriesURLFromEpisode derives the owning series URL by stripping the
// trailing -SxE suffix from the episode slug.
func SeriesURLFromEpisode(episodeURL, baseURL string) string {
	slug := EpisodeSlug(episodeURL)
	if slug == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/series/" + slug + "/"
}

// NormalizeURL decodes HTML entities embedded in a raw href (sites
// double-encode ampersands), resolves it against base, and rejects
// javascript:/data:/blob: pseudo-URLs. A rejected or unparsable input
// returns the empty string.
func NormalizeURL(raw, base string) string {
	raw = strings.TrimSpace(html.UnescapeString(raw))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "#") {
		return ""
	}
	lower := strings.ToLower(raw)
	for _, bad := range []string{"javascript:", "data:", "blob:", "about:"} {
		if strings.HasPrefix(lower, bad) {
			return ""
		}
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	return u.String()
}

// HostOf returns the lowercase hostname of a URL with any www. prefix
// stripped, or "" when the URL does not parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// SameHost compares two URLs by canonical hostname.
func SameHost(a, b string) bool {
	ha, hb := HostOf(a), HostOf(b)
	return ha != "" && ha == hb
}

// RedirectorURL synthesizes the intermediate player URL from the numeric
// slot, post, and type identifiers carried by a player option element.
func RedirectorURL(baseURL, nume, post, typ string) string {
	if typ == "" {
		typ = "1"
	}
	return fmt.Sprintf("%s/?trembed=%s&trid=%s&trtype=%s",
		strings.TrimRight(baseURL, "/"), nume, post, typ)
}

func lastPathSegment(s string) string {
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		s = u.Path
	}
	s = strings.Trim(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

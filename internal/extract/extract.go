// Package extract provides pure parsing functions over raw site markup.
// Nothing here touches the network; a missing structure yields an empty
// value, never an error.
package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EpisodeCard is one listing-page entry pointing at an episode.
type EpisodeCard struct {
	URL       string
	Title     string
	Thumbnail string
}

// EpisodeLink is one entry from a series page's episode list.
type EpisodeLink struct {
	EpisodeCode
	URL       string
	Title     string
	Thumbnail string
}

// Embed is one candidate server option found on an episode page.
type Embed struct {
	Name string
	URL  string
}

// SeriesInfo is the metadata scraped from a series page.
type SeriesInfo struct {
	Title       string
	Description string
	Poster      string
	Genres      []string
}

// EpisodeCards scans listing markup for repeating card structures anchored
// to an episode path, deduplicated by normalized URL. When no card structure
// exists it falls back to any anchor matching the episode path pattern.
func EpisodeCards(markup, baseURL string) ([]EpisodeCard, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}

	var cards []EpisodeCard
	seen := map[string]struct{}{}

	doc.Find("article, li.episodes, div.item").Each(func(_ int, s *goquery.Selection) {
		anchor := firstEpisodeAnchor(s)
		if anchor == nil {
			return
		}
		u := NormalizeURL(anchor.AttrOr("href", ""), baseURL)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		cards = append(cards, EpisodeCard{
			URL:       u,
			Title:     cardTitle(s, anchor),
			Thumbnail: imageSrc(s.Find("img").First(), baseURL),
		})
	})

	if len(cards) > 0 {
		return cards, nil
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if !isEpisodeHref(href) {
			return
		}
		u := NormalizeURL(href, baseURL)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		cards = append(cards, EpisodeCard{
			URL:       u,
			Title:     cardTitle(a, a),
			Thumbnail: imageSrc(a.Find("img").First(), baseURL),
		})
	})
	return cards, nil
}

// SeriesEpisodeLinks collects every episode link on a series page, sorted
// ascending by (season, episode) and deduplicated by that pair.
func SeriesEpisodeLinks(markup, baseURL string) ([]EpisodeLink, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}

	var links []EpisodeLink
	seen := map[EpisodeCode]struct{}{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		code := ParseEpisodeCode(href)
		if code == nil {
			return
		}
		u := NormalizeURL(href, baseURL)
		if u == "" {
			return
		}
		if _, dup := seen[*code]; dup {
			return
		}
		seen[*code] = struct{}{}
		links = append(links, EpisodeLink{
			EpisodeCode: *code,
			URL:         u,
			Title:       cardTitle(a, a),
			Thumbnail:   imageSrc(a.Find("img").First(), baseURL),
		})
	})

	sort.Slice(links, func(i, j int) bool {
		if links[i].Season != links[j].Season {
			return links[i].Season < links[j].Season
		}
		return links[i].Episode < links[j].Episode
	})
	return links, nil
}

// Embeds recognizes the two server-option patterns on an episode page:
// player-option elements carrying numeric slot and post identifiers, from
// which the intermediate redirector URL is synthesized, and bare iframes
// whose source is already off-site.
func Embeds(markup, baseURL string) ([]Embed, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}

	var embeds []Embed
	seen := map[string]struct{}{}

	doc.Find("[data-nume][data-post]").Each(func(i int, s *goquery.Selection) {
		nume := strings.TrimSpace(s.AttrOr("data-nume", ""))
		post := strings.TrimSpace(s.AttrOr("data-post", ""))
		if nume == "" || post == "" {
			return
		}
		typ := strings.TrimSpace(s.AttrOr("data-type", ""))
		u := RedirectorURL(baseURL, nume, post, typ)
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}

		name := strings.TrimSpace(s.Find(".title, .server").First().Text())
		if name == "" {
			name = strings.TrimSpace(s.Text())
		}
		if name == "" {
			name = fmt.Sprintf("Server %s", nume)
		}
		embeds = append(embeds, Embed{Name: name, URL: u})
	})

	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		src := iframeSrc(s)
		u := NormalizeURL(src, baseURL)
		if u == "" || SameHost(u, baseURL) {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		name := HostOf(u)
		if name == "" {
			name = "embed"
		}
		embeds = append(embeds, Embed{Name: name, URL: u})
	})

	return embeds, nil
}

// SeriesDetails scrapes title, description, poster, and genres from a
// series page.
func SeriesDetails(markup, baseURL string) (SeriesInfo, error) {
	doc, err := parse(markup)
	if err != nil {
		return SeriesInfo{}, err
	}

	info := SeriesInfo{
		Title:       strings.TrimSpace(doc.Find("h1").First().Text()),
		Description: strings.TrimSpace(doc.Find(".wp-content p, .description p, [itemprop=description]").First().Text()),
		Poster:      imageSrc(doc.Find(".poster img, .post-thumbnail img, article img").First(), baseURL),
	}
	if info.Title == "" {
		info.Title = pageTitle(doc)
	}
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && info.Poster == "" {
		info.Poster = NormalizeURL(og, baseURL)
	}

	seen := map[string]struct{}{}
	doc.Find(".sgeneros a, .genres a, a[rel='tag']").Each(func(_ int, a *goquery.Selection) {
		g := strings.TrimSpace(a.Text())
		if g == "" {
			return
		}
		key := strings.ToLower(g)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		info.Genres = append(info.Genres, g)
	})
	return info, nil
}

// EpisodeTitle pulls the episode heading, falling back to the page title
// with any trailing site name stripped.
func EpisodeTitle(markup string) string {
	doc, err := parse(markup)
	if err != nil {
		return ""
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return pageTitle(doc)
}

// EpisodeThumbnail prefers the og:image meta, then the first article image.
func EpisodeThumbnail(markup, baseURL string) string {
	doc, err := parse(markup)
	if err != nil {
		return ""
	}
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		if u := NormalizeURL(og, baseURL); u != "" {
			return u
		}
	}
	return imageSrc(doc.Find("article img, .post-thumbnail img, #single img").First(), baseURL)
}

// BreadcrumbSeriesURL finds the owning series link on an episode page,
// preferring breadcrumb and episode-navigation containers.
func BreadcrumbSeriesURL(markup, baseURL string) string {
	doc, err := parse(markup)
	if err != nil {
		return ""
	}
	containers := []string{
		".breadcrumb a[href*='/series/']",
		".breadcrumbs a[href*='/series/']",
		".pag_episodes a[href*='/series/']",
		"a[href*='/series/']",
	}
	for _, sel := range containers {
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			if u := NormalizeURL(href, baseURL); u != "" {
				return u
			}
		}
	}
	return ""
}

// NextPageURL returns the pagination successor of a listing page, or "".
func NextPageURL(markup, baseURL string) string {
	doc, err := parse(markup)
	if err != nil {
		return ""
	}
	for _, sel := range []string{"link[rel='next']", "a[rel='next']", ".pagination a.next", "a.arrow_pag"} {
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			if u := NormalizeURL(href, baseURL); u != "" {
				return u
			}
		}
	}
	return ""
}

func parse(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return doc, nil
}

func firstEpisodeAnchor(s *goquery.Selection) *goquery.Selection {
	var anchor *goquery.Selection
	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if isEpisodeHref(a.AttrOr("href", "")) {
			anchor = a
			return false
		}
		return true
	})
	return anchor
}

func isEpisodeHref(href string) bool {
	if href == "" {
		return false
	}
	return strings.Contains(href, "/episode/") || ParseEpisodeCode(href) != nil
}

func cardTitle(card, anchor *goquery.Selection) string {
	if t := strings.TrimSpace(card.Find("h2, h3, .entry-title, .title").First().Text()); t != "" {
		return t
	}
	if t := strings.TrimSpace(anchor.AttrOr("title", "")); t != "" {
		return t
	}
	if img := anchor.Find("img").First(); img.Length() > 0 {
		if t := strings.TrimSpace(img.AttrOr("alt", "")); t != "" {
			return t
		}
	}
	return strings.TrimSpace(anchor.Text())
}

func imageSrc(img *goquery.Selection, baseURL string) string {
	if img == nil || img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if v, ok := img.Attr(attr); ok {
			if u := NormalizeURL(v, baseURL); u != "" {
				return u
			}
		}
	}
	return ""
}

func iframeSrc(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func pageTitle(doc *goquery.Document) string {
	t := strings.TrimSpace(doc.Find("title").First().Text())
	for _, sep := range []string{" | ", " - ", " — "} {
		if i := strings.Index(t, sep); i > 0 {
			t = t[:i]
			break
		}
	}
	return strings.TrimSpace(t)
}

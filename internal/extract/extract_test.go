package extract

import (
	"strings"
	"testing"
)

const listingMarkup = `
<html><body>
<article class="post episodes">
  <a href="/episode/naruto-2x5/"><img data-src="/img/naruto-2x5.jpg" alt="Naruto 2x5"></a>
  <header><h2 class="entry-title">Naruto Season 2 Episode 5</h2></header>
</article>
<article class="post episodes">
  <a href="https://toonstream.example/episode/one-piece-1x3/" title="One Piece 1x3">
    <img src="https://cdn.example/one-piece.jpg">
  </a>
</article>
<article class="post episodes">
  <a href="/episode/naruto-2x5/">duplicate card</a>
</article>
<article class="promo">
  <a href="/news/site-update/">Not an episode</a>
</article>
</body></html>`

func TestEpisodeCards(t *testing.T) {
	t.Parallel()

	cards, err := EpisodeCards(listingMarkup, "https://toonstream.example")
	if err != nil {
		t.Fatalf("EpisodeCards() error = %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 unique cards, got %d: %+v", len(cards), cards)
	}

	first := cards[0]
	if first.URL != "https://toonstream.example/episode/naruto-2x5/" {
		t.Fatalf("unexpected first card url %q", first.URL)
	}
	if first.Title != "Naruto Season 2 Episode 5" {
		t.Fatalf("unexpected first card title %q", first.Title)
	}
	if first.Thumbnail != "https://toonstream.example/img/naruto-2x5.jpg" {
		t.Fatalf("unexpected first card thumbnail %q", first.Thumbnail)
	}

	second := cards[1]
	if second.URL != "https://toonstream.example/episode/one-piece-1x3/" {
		t.Fatalf("unexpected second card url %q", second.URL)
	}
	if second.Title != "One Piece 1x3" {
		t.Fatalf("unexpected second card title %q", second.Title)
	}
}

func TestEpisodeCardsAnchorFallback(t *testing.T) {
	t.Parallel()

	markup := `<html><body>
	<div class="raw-links">
	  <a href="/episode/bleach-1x1/">Bleach 1x1</a>
	  <a href="/about/">About</a>
	  <a href="/episode/bleach-1x2/">Bleach 1x2</a>
	</div>
	</body></html>`

	cards, err := EpisodeCards(markup, "https://toonstream.example")
	if err != nil {
		t.Fatalf("EpisodeCards() error = %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 fallback cards, got %d: %+v", len(cards), cards)
	}
	if cards[0].Title != "Bleach 1x1" || cards[1].Title != "Bleach 1x2" {
		t.Fatalf("unexpected fallback titles: %+v", cards)
	}
}

func TestSeriesEpisodeLinks(t *testing.T) {
	t.Parallel()

	markup := `<html><body><ul>
	  <li><a href="/episode/naruto-2x1/">2x1</a></li>
	  <li><a href="/episode/naruto-1x2/">1x2</a></li>
	  <li><a href="/episode/naruto-1x1/"><img src="/img/1x1.jpg">1x1</a></li>
	  <li><a href="/episode/naruto-1x2/">1x2 duplicate</a></li>
	  <li><a href="/series/naruto/">series link</a></li>
	</ul></body></html>`

	links, err := SeriesEpisodeLinks(markup, "https://toonstream.example")
	if err != nil {
		t.Fatalf("SeriesEpisodeLinks() error = %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 unique links, got %d: %+v", len(links), links)
	}

	wantOrder := []EpisodeCode{{1, 1}, {1, 2}, {2, 1}}
	for i, want := range wantOrder {
		if links[i].EpisodeCode != want {
			t.Fatalf("links[%d] = %+v, want %+v", i, links[i].EpisodeCode, want)
		}
	}
	if links[0].Thumbnail != "https://toonstream.example/img/1x1.jpg" {
		t.Fatalf("expected thumbnail carried, got %q", links[0].Thumbnail)
	}
}

func TestEmbeds(t *testing.T) {
	t.Parallel()

	markup := `<html><body>
	<ul id="playeroptionsul">
	  <li class="dooplay_player_option" data-type="tv" data-post="1234" data-nume="1">
	    <span class="title">VidCloud</span>
	  </li>
	  <li class="dooplay_player_option" data-type="tv" data-post="1234" data-nume="2">
	    <span class="title">StreamTape</span>
	  </li>
	  <li class="dooplay_player_option" data-post="1234" data-nume="2" data-type="tv">
	    <span class="title">Duplicate slot</span>
	  </li>
	</ul>
	<iframe src="https://filemoon.example/e/abc123"></iframe>
	<iframe src="https://toonstream.example/?trembed=9&trid=1234&trtype=tv"></iframe>
	</body></html>`

	embeds, err := Embeds(markup, "https://toonstream.example")
	if err != nil {
		t.Fatalf("Embeds() error = %v", err)
	}
	if len(embeds) != 3 {
		t.Fatalf("expected 3 embeds, got %d: %+v", len(embeds), embeds)
	}

	if embeds[0].Name != "VidCloud" ||
		embeds[0].URL != "https://toonstream.example/?trembed=1&trid=1234&trtype=tv" {
		t.Fatalf("unexpected first embed: %+v", embeds[0])
	}
	if embeds[1].Name != "StreamTape" ||
		embeds[1].URL != "https://toonstream.example/?trembed=2&trid=1234&trtype=tv" {
		t.Fatalf("unexpected second embed: %+v", embeds[1])
	}
	if embeds[2].Name != "filemoon.example" ||
		embeds[2].URL != "https://filemoon.example/e/abc123" {
		t.Fatalf("unexpected iframe embed: %+v", embeds[2])
	}
}

func TestEmbedsNameFallback(t *testing.T) {
	t.Parallel()

	markup := `<div data-nume="3" data-post="55"></div>`
	embeds, err := Embeds(markup, "https://toonstream.example")
	if err != nil {
		t.Fatalf("Embeds() error = %v", err)
	}
	if len(embeds) != 1 || embeds[0].Name != "Server 3" {
		t.Fatalf("expected numbered fallback name, got %+v", embeds)
	}
	if embeds[0].URL != "https://toonstream.example/?trembed=3&trid=55&trtype=1" {
		t.Fatalf("expected default trtype, got %q", embeds[0].URL)
	}
}

func TestSeriesDetails(t *testing.T) {
	t.Parallel()

	markup := `<html><head>
	<meta property="og:image" content="/img/og-naruto.jpg">
	<title>Naruto | ToonStream</title>
	</head><body>
	<h1>Naruto</h1>
	<div class="poster"><img src="/img/naruto-poster.jpg"></div>
	<div class="wp-content"><p>A young ninja seeks recognition.</p></div>
	<div class="sgeneros">
	  <a rel="tag">Action</a>
	  <a rel="tag">Adventure</a>
	  <a rel="tag">action</a>
	</div>
	</body></html>`

	info, err := SeriesDetails(markup, "https://toonstream.example")
	if err != nil {
		t.Fatalf("SeriesDetails() error = %v", err)
	}
	if info.Title != "Naruto" {
		t.Fatalf("unexpected title %q", info.Title)
	}
	if info.Description != "A young ninja seeks recognition." {
		t.Fatalf("unexpected description %q", info.Description)
	}
	if info.Poster != "https://toonstream.example/img/naruto-poster.jpg" {
		t.Fatalf("unexpected poster %q", info.Poster)
	}
	if len(info.Genres) != 2 {
		t.Fatalf("expected genres deduplicated case-insensitively, got %v", info.Genres)
	}
}

func TestEpisodeTitleFallsBackToPageTitle(t *testing.T) {
	t.Parallel()

	markup := `<html><head><title>Naruto 2x5 | ToonStream</title></head><body></body></html>`
	if got := EpisodeTitle(markup); got != "Naruto 2x5" {
		t.Fatalf("EpisodeTitle() = %q", got)
	}

	withH1 := `<html><body><h1>Naruto Season 2 Episode 5</h1></body></html>`
	if got := EpisodeTitle(withH1); got != "Naruto Season 2 Episode 5" {
		t.Fatalf("EpisodeTitle() = %q", got)
	}
}

func TestEpisodeThumbnailPrefersOgImage(t *testing.T) {
	t.Parallel()

	markup := `<html><head><meta property="og:image" content="/img/og.jpg"></head>
	<body><article><img src="/img/inline.jpg"></article></body></html>`
	if got := EpisodeThumbnail(markup, "https://toonstream.example"); got != "https://toonstream.example/img/og.jpg" {
		t.Fatalf("EpisodeThumbnail() = %q", got)
	}

	noOg := `<html><body><article><img src="/img/inline.jpg"></article></body></html>`
	if got := EpisodeThumbnail(noOg, "https://toonstream.example"); got != "https://toonstream.example/img/inline.jpg" {
		t.Fatalf("EpisodeThumbnail() fallback = %q", got)
	}
}

func TestBreadcrumbSeriesURL(t *testing.T) {
	t.Parallel()

	markup := `<html><body>
	<ol class="breadcrumb">
	  <li><a href="/">Home</a></li>
	  <li><a href="/series/naruto/">Naruto</a></li>
	</ol>
	<a href="/series/unrelated/">Related show</a>
	</body></html>`

	got := BreadcrumbSeriesURL(markup, "https://toonstream.example")
	if got != "https://toonstream.example/series/naruto/" {
		t.Fatalf("BreadcrumbSeriesURL() = %q", got)
	}

	if got := BreadcrumbSeriesURL("<html><body><p>nothing</p></body></html>", "https://toonstream.example"); got != "" {
		t.Fatalf("expected empty for page without series link, got %q", got)
	}
}

func TestNextPageURL(t *testing.T) {
	t.Parallel()

	markup := `<html><head><link rel="next" href="/episodes/page/2/"></head><body></body></html>`
	if got := NextPageURL(markup, "https://toonstream.example"); got != "https://toonstream.example/episodes/page/2/" {
		t.Fatalf("NextPageURL() = %q", got)
	}
	if got := NextPageURL("<html></html>", "https://toonstream.example"); got != "" {
		t.Fatalf("expected empty when no pagination, got %q", got)
	}
}

func TestEpisodeCardsRejectJavascriptHrefs(t *testing.T) {
	t.Parallel()

	markup := `<article><a href="javascript:void(0)" title="Trap -1x1">x</a>
	<a href="/episode/real-1x1/">Real 1x1</a></article>`
	cards, err := EpisodeCards(markup, "https://toonstream.example")
	if err != nil {
		t.Fatalf("EpisodeCards() error = %v", err)
	}
	for _, c := range cards {
		if strings.HasPrefix(c.URL, "javascript") {
			t.Fatalf("javascript url leaked: %+v", c)
		}
	}
	if len(cards) != 1 || cards[0].URL != "https://toonstream.example/episode/real-1x1/" {
		t.Fatalf("expected only the real episode, got %+v", cards)
	}
}

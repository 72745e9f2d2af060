package catalog

import (
	"regexp"
	"strings"
)

// titleNoiseRe matches release-name noise that never appears in catalog
// titles: season/part/episode counters, quality tags, audio/dub markers.
var titleNoiseRe = regexp.MustCompile(`(?i)\b(?:season\s*\d+|s\d{1,2}|part\s*\d+|episode\s*\d+|ep\s*\d+|\d{3,4}p|full\s*hd|hd|4k|bluray|web[- ]?dl|hindi|english|japanese|tamil|telugu|dubbed|dub|subbed|sub|dual\s*audio|multi\s*audio|uncensored)\b`)

var bracketedRe = regexp.MustCompile(`[(\[][^)\]]*[)\]]`)

var spaceRe = regexp.MustCompile(`\s+`)

// CleanTitle turns a site slug or page heading into a search query: dashes
// become spaces, bracketed tags and release noise are dropped, whitespace
// is collapsed.
func CleanTitle(raw string) string {
	s := strings.ReplaceAll(raw, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	s = bracketedRe.ReplaceAllString(s, " ")
	s = titleNoiseRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SearchVariants returns the queries to try in order: the cleaned title
// first, then progressively shorter prefixes. At most three variants.
func SearchVariants(raw string) []string {
	clean := CleanTitle(raw)
	if clean == "" {
		return nil
	}
	variants := []string{clean}
	words := strings.Fields(clean)
	for len(words) > 2 && len(variants) < 3 {
		words = words[:len(words)-1]
		variants = append(variants, strings.Join(words, " "))
	}
	return variants
}

package resolve

import (
	"net/url"
	"strings"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/extract"
)

// knownPlayerHosts is the allowlist of third-party embed/video hosts. A
// substring match against the hostname is deliberate: these providers
// rotate TLDs and mirror domains faster than any exact list could track.
var knownPlayerHosts = []string{
	"streamtape", "strtape", "strcloud",
	"dood", "ds2play", "d0o0d", "do7go",
	"filemoon", "moonplayer", "kerapoxy",
	"mixdrop", "mdy48tn97",
	"mp4upload",
	"vidcloud", "rabbitstream", "megacloud",
	"voe", "simpulumlamerop",
	"streamwish", "awish", "dwish",
	"vidhide", "filelions", "vidhidepro",
	"ok.ru", "okru", "odnoklassniki",
	"uqload",
	"vidmoly",
	"streamlare", "slwatch",
	"upstream",
	"sendvid",
	"yourupload",
	"vtube", "vtbe",
	"embedgram",
	"streamsb", "sbplay",
}

var videoExtensions = []string{".mp4", ".m3u8", ".webm", ".mkv", ".avi", ".mov", ".flv"}

var videoPathMarkers = []string{"/video/", "/stream/", "/hls/", "/videos/"}

var videoCDNHosts = []string{"cloudfront.net", "akamaized.net", "b-cdn.net", "googlevideo.com"}

var redirectorMarkers = []string{"trembed", "trid=", "trtype="}

var embedPathMarkers = []string{"/embed/", "/player/", "/iframe/", "/e/", "/v/"}

// isKnownPlayerHost reports whether the URL's host matches the embed-host
// allowlist.
func isKnownPlayerHost(rawURL string) bool {
	host := extract.HostOf(rawURL)
	if host == "" {
		return false
	}
	for _, marker := range knownPlayerHosts {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

// looksLikeVideoURL applies the terminal-media heuristic: a video file
// extension, a video-ish path segment, or a known video CDN host.
func looksLikeVideoURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	for _, marker := range videoPathMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	host := strings.ToLower(u.Hostname())
	for _, cdn := range videoCDNHosts {
		if host == cdn || strings.HasSuffix(host, "."+cdn) {
			return true
		}
	}
	return false
}

// isRedirector reports whether the URL carries the known intermediate
// redirector query markers.
func isRedirector(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, marker := range redirectorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// needsFollow reports whether a script-extracted candidate is worth a
// recursive hop: a redirector, or an embed/player-shaped path.
func needsFollow(rawURL string) bool {
	if isRedirector(rawURL) {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, marker := range embedPathMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// Package text parses freeform track input: pasted Spotify links or URIs,
// links to other music services, and "Artist - Title" style free text.
package text

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// minPartsForTrackURI is the number of colon-separated parts in a track URI
	minPartsForTrackURI = 3
)

// Kind classifies one parsed input line.
type Kind int

const (
	// KindFreeText is a textual track description to be fuzzy matched
	KindFreeText Kind = iota
	// KindSpotifyLink carries a Spotify track link or URI, resolvable directly
	KindSpotifyLink
	// KindMusicLink is a link to another music service; only the text around
	// it can be matched
	KindMusicLink
)

var (
	urlRegex        = regexp.MustCompile(`https?://\S+`)
	spotifyURIRegex = regexp.MustCompile(`spotify:\w+:\w+`)
	spaceRegex      = regexp.MustCompile(`\s+`)

	spotifyDomains = map[string]bool{
		"open.spotify.com": true,
		"spotify.com":      true,
	}

	musicDomains = map[string]bool{
		"youtube.com":     true,
		"youtu.be":        true,
		"music.apple.com": true,
		"soundcloud.com":  true,
		"bandcamp.com":    true,
	}
)

// Input is one parsed line of track input.
type Input struct {
	Kind    Kind
	Text    string
	URLs    []string
	TrackID string // set for KindSpotifyLink
	Artist  string // set for KindFreeText when the text splits cleanly
	Title   string
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(text string) Input {
	text = p.normalizeText(text)
	urls := p.extractURLs(text)

	input := Input{
		Kind: p.classify(text, urls),
		Text: text,
		URLs: urls,
	}

	switch input.Kind {
	case KindSpotifyLink:
		input.TrackID = p.firstSpotifyTrackID(text, urls)
	case KindFreeText:
		input.Artist, input.Title = SplitArtistTitle(text)
	}

	return input
}

func (p *Parser) normalizeText(text string) string {
	text = strings.TrimSpace(text)
	text = norm.NFKC.String(text)
	text = spaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	var normalizedLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			normalizedLines = append(normalizedLines, line)
		}
	}

	return strings.Join(normalizedLines, " ")
}

func (p *Parser) extractURLs(text string) []string {
	matches := urlRegex.FindAllString(text, -1)
	var cleanURLs []string

	for _, match := range matches {
		cleanURL := p.cleanURL(match)
		if cleanURL != "" {
			cleanURLs = append(cleanURLs, cleanURL)
		}
	}

	return cleanURLs
}

func (p *Parser) cleanURL(rawURL string) string {
	rawURL = strings.TrimRight(rawURL, ".,!?;")

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if u.Host == "" {
		return ""
	}

	q := u.Query()

	// Strip tracking parameters so identical links deduplicate
	utmParams := []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}
	for _, param := range utmParams {
		q.Del(param)
	}

	q.Del("si")

	u.RawQuery = q.Encode()

	return u.String()
}

func (p *Parser) classify(text string, urls []string) Kind {
	if spotifyURIRegex.MatchString(text) {
		return KindSpotifyLink
	}

	for _, url := range urls {
		if p.isSpotifyURL(url) {
			return KindSpotifyLink
		}
	}

	for _, url := range urls {
		if p.isMusicURL(url) {
			return KindMusicLink
		}
	}

	return KindFreeText
}

func (p *Parser) isSpotifyURL(rawURL string) bool {
	if strings.Contains(rawURL, "spotify:track:") {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	hostname := strings.ToLower(u.Hostname())

	if spotifyDomains[hostname] {
		return strings.Contains(u.Path, "/track/")
	}

	return false
}

func (p *Parser) isMusicURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	hostname := strings.ToLower(u.Hostname())

	if hostname == "www.youtube.com" || hostname == "m.youtube.com" {
		hostname = "youtube.com"
	}

	return musicDomains[hostname]
}

func (p *Parser) firstSpotifyTrackID(text string, urls []string) string {
	if uri := spotifyURIRegex.FindString(text); strings.HasPrefix(uri, "spotify:track:") {
		if id, err := p.ExtractSpotifyTrackID(uri); err == nil && id != "" {
			return id
		}
	}

	for _, url := range urls {
		if id, err := p.ExtractSpotifyTrackID(url); err == nil && id != "" {
			return id
		}
	}

	return ""
}

// ExtractSpotifyTrackID pulls the track ID out of a Spotify track URI or an
// open.spotify.com track link.
func (p *Parser) ExtractSpotifyTrackID(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "spotify:track:") {
		parts := strings.Split(rawURL, ":")
		if len(parts) >= minPartsForTrackURI {
			return parts[2], nil
		}
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", errors.New("invalid URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	pathParts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range pathParts {
		if part == "track" && i+1 < len(pathParts) {
			trackID := pathParts[i+1]
			if idx := strings.Index(trackID, "?"); idx != -1 {
				trackID = trackID[:idx]
			}
			return trackID, nil
		}
	}

	return "", nil
}

// SplitArtistTitle splits free text into an artist and title using the common
// "Artist - Title" and "Title by Artist" shapes. Returns empty artist when
// the text carries no recognizable separator.
func SplitArtistTitle(text string) (artist, title string) {
	if before, after, found := strings.Cut(text, " - "); found {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}

	if idx := strings.LastIndex(text, " by "); idx > 0 {
		return strings.TrimSpace(text[idx+4:]), strings.TrimSpace(text[:idx])
	}

	return "", strings.TrimSpace(text)
}

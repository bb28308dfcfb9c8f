// Package history imports listening history from Last.fm as track descriptors
// for the matcher.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"trackboard/internal/core"
)

const (
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"
	pageSize       = 200
)

// Client talks to the Last.fm API. It only reads public listening data, so an
// API key is enough and no user authentication is involved.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

func NewClient(apiKey string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// NewClientWithBaseURL points the client at a different endpoint, used by
// tests.
func NewClientWithBaseURL(apiKey, baseURL string, logger *zap.Logger) *Client {
	client := NewClient(apiKey, logger)
	client.baseURL = baseURL
	return client
}

type lastfmText struct {
	Text string `json:"#text"`
	MBID string `json:"mbid"`
}

type recentTrack struct {
	Name   string     `json:"name"`
	MBID   string     `json:"mbid"`
	Artist lastfmText `json:"artist"`
	Album  lastfmText `json:"album"`
	Date   struct {
		UTS string `json:"uts"`
	} `json:"date"`
	Attr struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

type recentTracksResponse struct {
	RecentTracks struct {
		Track []recentTrack `json:"track"`
		Attr  struct {
			TotalPages string `json:"totalPages"`
		} `json:"@attr"`
	} `json:"recenttracks"`
}

type topTrack struct {
	Name   string `json:"name"`
	MBID   string `json:"mbid"`
	Artist struct {
		Name string `json:"name"`
		MBID string `json:"mbid"`
	} `json:"artist"`
	Playcount string `json:"playcount"`
}

type topTracksResponse struct {
	TopTracks struct {
		Track []topTrack `json:"track"`
		Attr  struct {
			TotalPages string `json:"totalPages"`
		} `json:"@attr"`
	} `json:"toptracks"`
}

type errorResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// RecentTracks fetches up to limit scrobbles for the user, newest first. The
// currently playing track carries no scrobble timestamp and is skipped.
func (c *Client) RecentTracks(ctx context.Context, user string, limit int) ([]core.ImportedTrack, error) {
	if user == "" {
		return nil, &core.ValidationError{Field: "user", Reason: "empty Last.fm user"}
	}

	var imported []core.ImportedTrack
	for page := 1; len(imported) < limit; page++ {
		var response recentTracksResponse
		if err := c.call(ctx, "user.getrecenttracks", user, page, &response); err != nil {
			return nil, err
		}

		for _, track := range response.RecentTracks.Track {
			if track.Attr.NowPlaying == "true" {
				continue
			}
			imported = append(imported, core.ImportedTrack{
				Artist:   track.Artist.Text,
				Name:     track.Name,
				Album:    track.Album.Text,
				MBID:     track.MBID,
				PlayedAt: parseUTS(track.Date.UTS),
			})
			if len(imported) == limit {
				break
			}
		}

		if page >= totalPages(response.RecentTracks.Attr.TotalPages) {
			break
		}
	}

	c.logger.Info("Imported recent tracks",
		zap.String("user", user),
		zap.Int("count", len(imported)))
	return imported, nil
}

// TopTracks fetches the user's most played tracks, ordered by play count.
func (c *Client) TopTracks(ctx context.Context, user string, limit int) ([]core.ImportedTrack, error) {
	if user == "" {
		return nil, &core.ValidationError{Field: "user", Reason: "empty Last.fm user"}
	}

	var imported []core.ImportedTrack
	for page := 1; len(imported) < limit; page++ {
		var response topTracksResponse
		if err := c.call(ctx, "user.gettoptracks", user, page, &response); err != nil {
			return nil, err
		}

		for _, track := range response.TopTracks.Track {
			playcount, _ := strconv.Atoi(track.Playcount)
			imported = append(imported, core.ImportedTrack{
				Artist:    track.Artist.Name,
				Name:      track.Name,
				MBID:      track.MBID,
				Playcount: playcount,
			})
			if len(imported) == limit {
				break
			}
		}

		if page >= totalPages(response.TopTracks.Attr.TotalPages) {
			break
		}
	}

	c.logger.Info("Imported top tracks",
		zap.String("user", user),
		zap.Int("count", len(imported)))
	return imported, nil
}

func (c *Client) call(ctx context.Context, method, user string, page int, out any) error {
	params := url.Values{}
	params.Set("method", method)
	params.Set("user", user)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.NewDecoder(response.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return &core.RemoteError{Status: response.StatusCode, Message: apiErr.Message}
		}
		return &core.RemoteError{Status: response.StatusCode, Message: method + " failed"}
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

func parseUTS(uts string) time.Time {
	seconds, err := strconv.ParseInt(uts, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}

func totalPages(raw string) int {
	pages, err := strconv.Atoi(raw)
	if err != nil || pages < 1 {
		return 1
	}
	return pages
}

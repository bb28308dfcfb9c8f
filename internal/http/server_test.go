package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"trackboard/internal/core"
	"trackboard/internal/flood"
	"trackboard/internal/history"
	"trackboard/internal/match"
	"trackboard/internal/reconcile"
	"trackboard/internal/store"
)

// apiCatalog is an in-memory catalog backing the handler tests.
type apiCatalog struct {
	mu        sync.Mutex
	playlists []core.Playlist
	entries   []core.PlaylistEntry
	tracks    []core.Track
	err       error

	appends [][]string
	removes [][]string
}

func (c *apiCatalog) Playlists(context.Context) ([]core.Playlist, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.playlists, nil
}

func (c *apiCatalog) PlaylistPage(_ context.Context, _ string, offset int) (*core.TrackPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if offset != 0 {
		return &core.TrackPage{Next: -1, Total: len(c.entries)}, nil
	}
	items := make([]core.PlaylistEntry, len(c.entries))
	copy(items, c.entries)
	return &core.TrackPage{Items: items, Next: -1, Total: len(c.entries), SnapshotID: "snap-0"}, nil
}

func (c *apiCatalog) ReplaceTracks(context.Context, string, []string) (string, error) {
	return "snap-r", nil
}

func (c *apiCatalog) AppendTracks(_ context.Context, _ string, uris []string, _ int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.appends = append(c.appends, uris)
	return "snap-1", nil
}

func (c *apiCatalog) RemoveTracks(_ context.Context, _ string, uris []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removes = append(c.removes, uris)
	return "snap-1", nil
}

func (c *apiCatalog) ReorderTracks(context.Context, string, int, int, int) (string, error) {
	return "snap-1", nil
}

func (c *apiCatalog) SearchTracks(context.Context, string, int) ([]core.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.tracks, nil
}

func newTestServer(t *testing.T, catalog *apiCatalog) *Server {
	t.Helper()

	logger := zap.NewNop()
	config := &core.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	cache := store.NewTrackCache(catalog, core.NewBus(), logger)
	reconciler := reconcile.New(catalog, cache, logger)
	matcher := match.NewMatcher(catalog, &core.MatchConfig{BatchSize: 20, CacheSize: 64, MaxCandidates: 5}, logger)

	return NewServer(config, Deps{
		Catalog:    catalog,
		Cache:      cache,
		Reconciler: reconciler,
		Matcher:    matcher,
	}, logger)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	request.RemoteAddr = "192.0.2.1:1234"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestServer_Healthz(t *testing.T) {
	server := newTestServer(t, &apiCatalog{})

	recorder := doJSON(t, server.Handler(), http.MethodGet, "/healthz", "")
	if recorder.Code != http.StatusOK {
		t.Errorf("/healthz status = %d", recorder.Code)
	}
	if got := recorder.Body.String(); got != `{"status":"ok","service":"trackboard"}` {
		t.Errorf("/healthz body = %q", got)
	}
}

func TestServer_Metrics(t *testing.T) {
	server := newTestServer(t, &apiCatalog{})

	recorder := doJSON(t, server.Handler(), http.MethodGet, "/metrics", "")
	if recorder.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", recorder.Code)
	}
}

func TestServer_Playlists(t *testing.T) {
	catalog := &apiCatalog{playlists: []core.Playlist{{ID: "pl", Name: "Mix", TrackCount: 2}}}
	server := newTestServer(t, catalog)

	recorder := doJSON(t, server.Handler(), http.MethodGet, "/api/playlists", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Playlists []core.Playlist `json:"playlists"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(payload.Playlists) != 1 || payload.Playlists[0].Name != "Mix" {
		t.Errorf("playlists = %+v", payload.Playlists)
	}
}

func TestServer_TracksLoadsCache(t *testing.T) {
	catalog := &apiCatalog{entries: []core.PlaylistEntry{
		{Track: core.Track{URI: "spotify:track:a", Name: "A"}, Position: 0},
		{Track: core.Track{URI: "spotify:track:a", Name: "A"}, Position: 1},
	}}
	server := newTestServer(t, catalog)

	recorder := doJSON(t, server.Handler(), http.MethodGet, "/api/playlists/pl/tracks", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		SnapshotID string               `json:"snapshotID"`
		Tracks     []core.PlaylistEntry `json:"tracks"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if payload.SnapshotID != "snap-0" || len(payload.Tracks) != 2 {
		t.Errorf("payload = %+v", payload)
	}

	// The flattened view collapses the duplicate URI.
	recorder = doJSON(t, server.Handler(), http.MethodGet, "/api/playlists/pl/tracks?flatten=true", "")
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(payload.Tracks) != 1 {
		t.Errorf("flattened tracks = %d, want 1", len(payload.Tracks))
	}
}

func TestServer_AddTracks(t *testing.T) {
	catalog := &apiCatalog{entries: []core.PlaylistEntry{
		{Track: core.Track{URI: "spotify:track:a"}, Position: 0},
	}}
	server := newTestServer(t, catalog)

	// Prime the cache.
	doJSON(t, server.Handler(), http.MethodGet, "/api/playlists/pl/tracks", "")

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/playlists/pl/tracks",
		`{"tracks":[{"uri":"spotify:track:b"}]}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	if len(catalog.appends) != 1 || catalog.appends[0][0] != "spotify:track:b" {
		t.Errorf("appends = %v", catalog.appends)
	}
}

func TestServer_RemoveValidation(t *testing.T) {
	catalog := &apiCatalog{entries: []core.PlaylistEntry{
		{Track: core.Track{URI: "spotify:track:a"}, Position: 0},
	}}
	server := newTestServer(t, catalog)
	doJSON(t, server.Handler(), http.MethodGet, "/api/playlists/pl/tracks", "")

	recorder := doJSON(t, server.Handler(), http.MethodDelete, "/api/playlists/pl/tracks", `{}`)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
}

func TestServer_TokenExpiryBecomes401(t *testing.T) {
	catalog := &apiCatalog{err: core.ErrTokenExpired}
	server := newTestServer(t, catalog)

	recorder := doJSON(t, server.Handler(), http.MethodGet, "/api/playlists", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"error":"token_expired"`) {
		t.Errorf("body = %q", recorder.Body.String())
	}
}

func TestServer_Match(t *testing.T) {
	catalog := &apiCatalog{tracks: []core.Track{
		{URI: "spotify:track:kp", Name: "Karma Police", Artists: []string{"Radiohead"}, Popularity: 80},
	}}
	server := newTestServer(t, catalog)

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/match",
		`{"tracks":[{"artist":"Radiohead","name":"Karma Police"}]}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Results []core.MatchResult `json:"results"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(payload.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(payload.Results))
	}
	if payload.Results[0].Confidence != core.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", payload.Results[0].Confidence)
	}
}

func TestServer_MatchEmptyBody(t *testing.T) {
	server := newTestServer(t, &apiCatalog{})

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/match", `{"tracks":[]}`)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
}

func TestServer_RateLimit(t *testing.T) {
	catalog := &apiCatalog{}
	server := newTestServer(t, catalog)
	server.floodgate = flood.New(1)
	defer server.floodgate.Stop()

	if recorder := doJSON(t, server.Handler(), http.MethodGet, "/api/playlists", ""); recorder.Code != http.StatusOK {
		t.Fatalf("first request status = %d", recorder.Code)
	}
	recorder := doJSON(t, server.Handler(), http.MethodGet, "/api/playlists", "")
	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", recorder.Code)
	}

	// Probes stay exempt.
	if recorder := doJSON(t, server.Handler(), http.MethodGet, "/healthz", ""); recorder.Code != http.StatusOK {
		t.Errorf("/healthz blocked by rate limiting: %d", recorder.Code)
	}
}

func TestServer_Resolve(t *testing.T) {
	catalog := &apiCatalog{tracks: []core.Track{
		{URI: "spotify:track:kp", Name: "Karma Police", Artists: []string{"Radiohead"}, Popularity: 80},
	}}
	server := newTestServer(t, catalog)

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/resolve",
		`{"inputs":["https://open.spotify.com/track/63OQupATfueTdZMWTxW03A","Radiohead - Karma Police","https://youtu.be/dQw4w9WgXcQ"]}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Resolved []struct {
			Kind   string            `json:"kind"`
			URI    string            `json:"uri"`
			Result *core.MatchResult `json:"result"`
		} `json:"resolved"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(payload.Resolved) != 3 {
		t.Fatalf("resolved = %d entries, want 3", len(payload.Resolved))
	}
	if payload.Resolved[0].Kind != "spotify_link" || payload.Resolved[0].URI != "spotify:track:63OQupATfueTdZMWTxW03A" {
		t.Errorf("link entry = %+v", payload.Resolved[0])
	}
	if payload.Resolved[1].Kind != "free_text" || payload.Resolved[1].Result == nil || payload.Resolved[1].Result.Best == nil {
		t.Errorf("free text entry = %+v", payload.Resolved[1])
	}
	if payload.Resolved[2].Kind != "music_link" {
		t.Errorf("music link entry = %+v", payload.Resolved[2])
	}
}

func TestServer_ImportNotConfigured(t *testing.T) {
	server := newTestServer(t, &apiCatalog{})

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/import", `{"user":"alice"}`)
	if recorder.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", recorder.Code)
	}
}

func TestServer_ImportDeduplicates(t *testing.T) {
	lastfm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// The same scrobble twice; both resolve to the same catalog track.
		w.Write([]byte(`{
  "recenttracks": {
    "track": [
      {"name": "Karma Police", "artist": {"#text": "Radiohead"}, "date": {"uts": "1700000000"}},
      {"name": "Karma Police", "artist": {"#text": "Radiohead"}, "date": {"uts": "1699999000"}}
    ],
    "@attr": {"totalPages": "1"}
  }
}`))
	}))
	defer lastfm.Close()

	catalog := &apiCatalog{tracks: []core.Track{
		{URI: "spotify:track:kp", Name: "Karma Police", Artists: []string{"Radiohead"}, Popularity: 80},
	}}
	server := newTestServer(t, catalog)
	server.importer = history.NewClientWithBaseURL("key", lastfm.URL, zap.NewNop())
	server.dedup = store.NewImportDedup(100, 0.001)

	recorder := doJSON(t, server.Handler(), http.MethodPost, "/api/import", `{"user":"alice","limit":10}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Results []core.MatchResult `json:"results"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(payload.Results) != 1 {
		t.Errorf("results = %d, want 1 after URI deduplication", len(payload.Results))
	}
	if !server.dedup.Has("spotify:track:kp") {
		t.Error("resolved URI not recorded in the import dedup store")
	}

	// A re-import skips the URI resolved in the first run.
	recorder = doJSON(t, server.Handler(), http.MethodPost, "/api/import", `{"user":"alice","limit":10}`)
	var second struct {
		Results []core.MatchResult `json:"results"`
		Skipped int                `json:"skipped"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &second); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(second.Results) != 0 || second.Skipped != 1 {
		t.Errorf("re-import = %d results, %d skipped; want 0 and 1", len(second.Results), second.Skipped)
	}
}

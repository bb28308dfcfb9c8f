package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"trackboard/internal/core"
	"trackboard/internal/match"
	"trackboard/internal/reconcile"
	"trackboard/pkg/text"
)

type trackPayload struct {
	URI     string   `json:"uri"`
	Name    string   `json:"name,omitempty"`
	Artists []string `json:"artists,omitempty"`
}

type addRequest struct {
	Tracks  []trackPayload `json:"tracks"`
	Markers []int          `json:"markers,omitempty"`
}

type removeRequest struct {
	URIs      []string `json:"uris,omitempty"`
	Positions []int    `json:"positions,omitempty"`
}

type reorderRequest struct {
	From         int `json:"from"`
	InsertBefore int `json:"insertBefore"`
	Length       int `json:"length"`
}

type matchRequest struct {
	Tracks []importPayload `json:"tracks"`
}

type importPayload struct {
	Artist string `json:"artist"`
	Name   string `json:"name"`
	Album  string `json:"album,omitempty"`
}

type importRequest struct {
	User   string `json:"user"`
	Source string `json:"source"`
	Limit  int    `json:"limit"`
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.catalog.Playlists(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	playlistID := r.PathValue("id")

	if _, ok := s.cache.Meta(playlistID); !ok {
		start := time.Now()
		if err := s.cache.Load(r.Context(), playlistID); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.metrics.CacheLoadDuration.Observe(time.Since(start).Seconds())
	}

	var entries []core.PlaylistEntry
	if r.URL.Query().Get("flatten") == "true" {
		entries, _ = s.cache.Flattened(playlistID)
	} else {
		entries, _ = s.cache.Entries(playlistID)
	}
	meta, _ := s.cache.Meta(playlistID)

	writeJSON(w, http.StatusOK, map[string]any{
		"playlistID": playlistID,
		"snapshotID": meta.SnapshotID,
		"total":      meta.Total,
		"loadedAll":  meta.LoadedAll,
		"tracks":     entries,
	})
}

func (s *Server) handleAddTracks(w http.ResponseWriter, r *http.Request) {
	playlistID := r.PathValue("id")

	var request addRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	tracks := make([]core.Track, len(request.Tracks))
	for i, payload := range request.Tracks {
		tracks[i] = core.Track{URI: payload.URI, Name: payload.Name, Artists: payload.Artists}
	}

	err := s.reconciler.Add(r.Context(), playlistID, tracks, request.Markers)
	s.recordMutation("add", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	meta, _ := s.cache.Meta(playlistID)
	writeJSON(w, http.StatusOK, map[string]any{"snapshotID": meta.SnapshotID})
}

func (s *Server) handleRemoveTracks(w http.ResponseWriter, r *http.Request) {
	playlistID := r.PathValue("id")

	var request removeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	err := s.reconciler.Remove(r.Context(), playlistID, reconcile.RemoveRequest{
		URIs:      request.URIs,
		Positions: request.Positions,
	})
	s.recordMutation("remove", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	meta, _ := s.cache.Meta(playlistID)
	writeJSON(w, http.StatusOK, map[string]any{"snapshotID": meta.SnapshotID})
}

func (s *Server) handleReorderTracks(w http.ResponseWriter, r *http.Request) {
	playlistID := r.PathValue("id")

	var request reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	err := s.reconciler.Reorder(r.Context(), playlistID, request.From, request.InsertBefore, request.Length)
	s.recordMutation("reorder", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	meta, _ := s.cache.Meta(playlistID)
	writeJSON(w, http.StatusOK, map[string]any{"snapshotID": meta.SnapshotID})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var request matchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if len(request.Tracks) == 0 {
		writeJSONError(w, http.StatusBadRequest, "no_tracks")
		return
	}

	imports := make([]core.ImportedTrack, len(request.Tracks))
	for i, payload := range request.Tracks {
		imports[i] = core.ImportedTrack{Artist: payload.Artist, Name: payload.Name, Album: payload.Album}
	}

	results := s.matcher.MatchAll(r.Context(), imports)
	for _, result := range results {
		s.metrics.MatchesTotal.WithLabelValues(string(result.Confidence)).Inc()
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type resolveRequest struct {
	Inputs []string `json:"inputs"`
}

type resolvedInput struct {
	Input  string            `json:"input"`
	Kind   string            `json:"kind"`
	URI    string            `json:"uri,omitempty"`
	Result *core.MatchResult `json:"result,omitempty"`
}

// handleResolve turns freeform input lines into tracks: pasted Spotify links
// resolve directly to a URI, free text goes through the fuzzy matcher, links
// to other music services are reported as unresolvable.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var request resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if len(request.Inputs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "no_inputs")
		return
	}

	resolved := make([]resolvedInput, 0, len(request.Inputs))
	for _, raw := range request.Inputs {
		input := s.parser.Parse(raw)

		switch {
		case input.Kind == text.KindSpotifyLink && input.TrackID != "":
			resolved = append(resolved, resolvedInput{
				Input: raw,
				Kind:  "spotify_link",
				URI:   "spotify:track:" + input.TrackID,
			})
		case input.Kind == text.KindFreeText && input.Artist != "" && input.Title != "":
			results := s.matcher.MatchAll(r.Context(), []core.ImportedTrack{
				{Artist: input.Artist, Name: input.Title},
			})
			s.metrics.MatchesTotal.WithLabelValues(string(results[0].Confidence)).Inc()
			resolved = append(resolved, resolvedInput{
				Input:  raw,
				Kind:   "free_text",
				Result: results[0],
			})
		case input.Kind == text.KindMusicLink:
			resolved = append(resolved, resolvedInput{Input: raw, Kind: "music_link"})
		default:
			resolved = append(resolved, resolvedInput{Input: raw, Kind: "unresolved"})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"resolved": resolved})
}

// handleImport pulls listening history, matches it against the catalog and
// returns the results, skipping URIs already resolved this session.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		writeJSONError(w, http.StatusNotImplemented, "import_not_configured")
		return
	}

	var request importRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if request.Limit <= 0 || request.Limit > 1000 {
		request.Limit = 100
	}

	var imports []core.ImportedTrack
	var err error
	switch request.Source {
	case "top":
		imports, err = s.importer.TopTracks(r.Context(), request.User, request.Limit)
	case "", "recent":
		imports, err = s.importer.RecentTracks(r.Context(), request.User, request.Limit)
	default:
		writeJSONError(w, http.StatusBadRequest, "unknown_source")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results := s.matcher.MatchAll(r.Context(), imports)
	for _, result := range results {
		s.metrics.MatchesTotal.WithLabelValues(string(result.Confidence)).Inc()
	}

	// A listening history repeats tracks; collapse repeated resolutions first.
	results = match.Deduplicate(results)

	skipped := 0
	if s.dedup != nil {
		filtered := results[:0]
		for _, result := range results {
			if result.Best != nil && s.dedup.Has(result.Best.URI) {
				skipped++
				continue
			}
			if result.Best != nil {
				s.dedup.Add(result.Best.URI)
			}
			filtered = append(filtered, result)
		}
		results = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"skipped": skipped,
	})
}

// writeError maps the domain error taxonomy onto HTTP status codes. A token
// expiry anywhere in the chain becomes the single canonical 401 payload the
// UI watches for.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *core.ValidationError
	var remote *core.RemoteError
	var partial *core.PartialBatchError

	switch {
	case errors.Is(err, core.ErrTokenExpired):
		if s.analytics != nil {
			s.analytics.RecordAuthEvent(r.Context(), "", "token_expired")
		}
		writeJSONError(w, http.StatusUnauthorized, "token_expired")
	case errors.As(err, &partial):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     "partial_batch",
			"completed": partial.Completed,
			"total":     partial.Total,
			"detail":    partial.Err.Error(),
		})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation",
			"field":  validation.Field,
			"detail": validation.Reason,
		})
	case errors.As(err, &remote):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  "upstream",
			"status": remote.Status,
			"detail": remote.Message,
		})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already committed; an encode failure has nowhere
	// to go.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// Package catalog implements the remote catalog contract against the Spotify
// Web API. All errors are normalized so a 401 from any endpoint surfaces as
// core.ErrTokenExpired.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"trackboard/internal/core"
)

const (
	// MaxBatch is the largest URI batch the remote service accepts per
	// replace/append/remove call.
	MaxBatch = 100

	trackURIPrefix = "spotify:track:"
)

// Client implements core.CatalogClient on top of the Spotify Web API.
type Client struct {
	api      *spotify.Client
	logger   *zap.Logger
	pageSize int
}

func NewClient(api *spotify.Client, config *core.CacheConfig, logger *zap.Logger) *Client {
	pageSize := config.PageSize
	if pageSize <= 0 || pageSize > MaxBatch {
		pageSize = MaxBatch
	}

	return &Client{
		api:      api,
		logger:   logger,
		pageSize: pageSize,
	}
}

// Playlists lists the playlists of the authenticated user.
func (c *Client) Playlists(ctx context.Context) ([]core.Playlist, error) {
	page, err := c.api.CurrentUsersPlaylists(ctx)
	if err != nil {
		return nil, normalizeError(err)
	}

	playlists := make([]core.Playlist, 0, len(page.Playlists))
	for i := range page.Playlists {
		playlist := &page.Playlists[i]
		playlists = append(playlists, core.Playlist{
			ID:         string(playlist.ID),
			Name:       playlist.Name,
			Owner:      playlist.Owner.DisplayName,
			SnapshotID: playlist.SnapshotID,
			TrackCount: int(playlist.Tracks.Total), //nolint:gosec // Spotify playlist counts fit in int
		})
	}

	return playlists, nil
}

// PlaylistPage fetches one page of the playlist's track list starting at the
// given offset. The first page additionally resolves the current snapshot ID.
func (c *Client) PlaylistPage(ctx context.Context, playlistID string, offset int) (*core.TrackPage, error) {
	spotifyPlaylistID := spotify.ID(playlistID)

	snapshotID := ""
	if offset == 0 {
		playlist, err := c.api.GetPlaylist(ctx, spotifyPlaylistID)
		if err != nil {
			return nil, normalizeError(err)
		}
		snapshotID = playlist.SnapshotID
	}

	items, err := c.api.GetPlaylistItems(ctx, spotifyPlaylistID,
		spotify.Limit(c.pageSize), spotify.Offset(offset))
	if err != nil {
		return nil, normalizeError(err)
	}

	entries := make([]core.PlaylistEntry, 0, len(items.Items))
	for i := range items.Items {
		item := &items.Items[i]
		// Episodes and null items are not editable rows and are skipped, so
		// Position carries the remote row offset and can have gaps. The cache
		// renumbers merged pages to contiguous track-list indices.
		if item.Track.Track == nil {
			continue
		}

		entry := core.PlaylistEntry{
			Track:    convertTrack(item.Track.Track),
			Position: offset + i,
			AddedBy:  item.AddedBy.ID,
		}
		if addedAt, parseErr := time.Parse(spotify.TimestampLayout, item.AddedAt); parseErr == nil {
			entry.AddedAt = addedAt
		}
		entries = append(entries, entry)
	}

	next := -1
	if offset+len(items.Items) < int(items.Total) {
		next = offset + len(items.Items)
	}

	return &core.TrackPage{
		Items:      entries,
		Next:       next,
		Total:      int(items.Total),
		SnapshotID: snapshotID,
	}, nil
}

// ReplaceTracks replaces the playlist contents wholesale. An empty URI list
// clears the playlist. The remote replace endpoint returns no snapshot, so
// the new one is read back afterwards.
func (c *Client) ReplaceTracks(ctx context.Context, playlistID string, uris []string) (string, error) {
	trackIDs, err := trackIDsFromURIs(uris)
	if err != nil {
		return "", err
	}
	if len(trackIDs) > MaxBatch {
		return "", &core.ValidationError{Field: "uris", Reason: fmt.Sprintf("replace accepts at most %d tracks", MaxBatch)}
	}

	if err := c.api.ReplacePlaylistTracks(ctx, spotify.ID(playlistID), trackIDs...); err != nil {
		return "", normalizeError(err)
	}

	playlist, err := c.api.GetPlaylist(ctx, spotify.ID(playlistID))
	if err != nil {
		return "", normalizeError(err)
	}

	c.logger.Debug("Replaced playlist tracks",
		zap.String("playlistID", playlistID),
		zap.Int("count", len(trackIDs)))

	return playlist.SnapshotID, nil
}

// AppendTracks adds up to MaxBatch URIs. A negative position appends at the
// end; otherwise the appended block is reordered into place, since the remote
// add endpoint only appends.
func (c *Client) AppendTracks(ctx context.Context, playlistID string, uris []string, position int) (string, error) {
	trackIDs, err := trackIDsFromURIs(uris)
	if err != nil {
		return "", err
	}
	if len(trackIDs) == 0 {
		return "", &core.ValidationError{Field: "uris", Reason: "empty batch"}
	}
	if len(trackIDs) > MaxBatch {
		return "", &core.ValidationError{Field: "uris", Reason: fmt.Sprintf("append accepts at most %d tracks", MaxBatch)}
	}

	spotifyPlaylistID := spotify.ID(playlistID)

	snapshotID, err := c.api.AddTracksToPlaylist(ctx, spotifyPlaylistID, trackIDs...)
	if err != nil {
		return "", normalizeError(err)
	}

	if position < 0 {
		return snapshotID, nil
	}

	// The block landed at the end; move it to the requested position.
	items, err := c.api.GetPlaylistItems(ctx, spotifyPlaylistID, spotify.Limit(1))
	if err != nil {
		c.logger.Warn("Tracks appended but playlist length lookup failed, leaving them at the end",
			zap.String("playlistID", playlistID),
			zap.Error(err))
		return snapshotID, nil
	}

	reorderSnapshot, err := c.api.ReorderPlaylistTracks(ctx, spotifyPlaylistID, spotify.PlaylistReorderOptions{
		RangeStart:   int(items.Total) - len(trackIDs),
		RangeLength:  len(trackIDs),
		InsertBefore: position,
	})
	if err != nil {
		c.logger.Warn("Tracks appended but reorder into position failed",
			zap.String("playlistID", playlistID),
			zap.Int("position", position),
			zap.Error(err))
		return snapshotID, nil
	}

	return reorderSnapshot, nil
}

// RemoveTracks removes every occurrence of each URI. The remote service
// ignores positions on this endpoint; positional removal must go through the
// rebuild fallback.
func (c *Client) RemoveTracks(ctx context.Context, playlistID string, uris []string) (string, error) {
	trackIDs, err := trackIDsFromURIs(uris)
	if err != nil {
		return "", err
	}
	if len(trackIDs) == 0 {
		return "", &core.ValidationError{Field: "uris", Reason: "empty batch"}
	}
	if len(trackIDs) > MaxBatch {
		return "", &core.ValidationError{Field: "uris", Reason: fmt.Sprintf("remove accepts at most %d tracks", MaxBatch)}
	}

	snapshotID, err := c.api.RemoveTracksFromPlaylist(ctx, spotify.ID(playlistID), trackIDs...)
	if err != nil {
		return "", normalizeError(err)
	}

	return snapshotID, nil
}

// ReorderTracks moves the range [rangeStart, rangeStart+rangeLength) so it
// sits before insertBefore, per the remote service's reorder semantics.
func (c *Client) ReorderTracks(ctx context.Context, playlistID string, rangeStart, insertBefore, rangeLength int) (string, error) {
	snapshotID, err := c.api.ReorderPlaylistTracks(ctx, spotify.ID(playlistID), spotify.PlaylistReorderOptions{
		RangeStart:   rangeStart,
		RangeLength:  rangeLength,
		InsertBefore: insertBefore,
	})
	if err != nil {
		return "", normalizeError(err)
	}

	return snapshotID, nil
}

// SearchTracks runs a structured track search and returns ranked candidates.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]core.Track, error) {
	results, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, normalizeError(err)
	}

	if results.Tracks == nil {
		return nil, nil
	}

	tracks := make([]core.Track, 0, len(results.Tracks.Tracks))
	for i := range results.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&results.Tracks.Tracks[i]))
	}

	return tracks, nil
}

func convertTrack(track *spotify.FullTrack) core.Track {
	var artists []string
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	return core.Track{
		ID:         string(track.ID),
		URI:        string(track.URI),
		Name:       track.Name,
		Artists:    artists,
		AlbumID:    string(track.Album.ID),
		AlbumName:  track.Album.Name,
		Duration:   time.Duration(track.Duration) * time.Millisecond,
		Popularity: int(track.Popularity),
	}
}

// trackIDsFromURIs converts spotify:track: URIs to IDs, rejecting anything
// else before a network call is made.
func trackIDsFromURIs(uris []string) ([]spotify.ID, error) {
	trackIDs := make([]spotify.ID, 0, len(uris))
	for _, uri := range uris {
		id, ok := strings.CutPrefix(uri, trackURIPrefix)
		if !ok || id == "" {
			return nil, &core.ValidationError{Field: "uri", Reason: fmt.Sprintf("%q is not a track URI", uri)}
		}
		trackIDs = append(trackIDs, spotify.ID(id))
	}
	return trackIDs, nil
}

// normalizeError maps remote failures onto the error taxonomy: 401 becomes
// ErrTokenExpired, other API rejections become RemoteError.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized {
			return core.ErrTokenExpired
		}
		return &core.RemoteError{Status: apiErr.Status, Message: apiErr.Message}
	}

	return err
}

// Package core defines the domain types, configuration, and service
// interfaces shared by the trackboard components.
package core

import (
	"context"
	"time"
)

// Track is a canonical track resolved within the catalog. Treated as
// authoritative once obtained.
type Track struct {
	ID         string
	URI        string
	Name       string
	Artists    []string
	AlbumID    string
	AlbumName  string
	Duration   time.Duration
	Popularity int
}

// PlaylistEntry is one row of a playlist's track list. Position is the
// authoritative ordering key: unique and contiguous from 0 within one
// snapshot. The same URI may legitimately repeat at different positions.
type PlaylistEntry struct {
	Track
	Position int
	AddedAt  time.Time
	AddedBy  string
}

// TrackPage is one page of a playlist's track listing. Next is the offset of
// the following page, or -1 when this page is the last one.
type TrackPage struct {
	Items      []PlaylistEntry
	Next       int
	Total      int
	SnapshotID string
}

// Playlist describes a playlist the user can edit.
type Playlist struct {
	ID         string
	Name       string
	Owner      string
	SnapshotID string
	TrackCount int
}

// ImportedTrack is an externally sourced track descriptor, typically imported
// from a listening-history service. Immutable once fetched; consumed only by
// the matcher.
type ImportedTrack struct {
	Artist    string
	Name      string
	Album     string
	MBID      string
	Playcount int
	PlayedAt  time.Time
}

// Confidence is the tier assigned to a match score. Thresholds are a contract
// the UI relies on; see match.ConfidenceForScore.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidence tiers none < low < medium < high.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return 0
	}
}

// MatchStatus is the lifecycle state of a cached match entry.
type MatchStatus string

const (
	MatchIdle    MatchStatus = "idle"
	MatchPending MatchStatus = "pending"
	MatchMatched MatchStatus = "matched"
	MatchFailed  MatchStatus = "failed"
)

// Candidate is one scored catalog track considered for a match.
type Candidate struct {
	Track Track
	Score int
}

// MatchResult associates one imported track with zero-or-one best catalog
// track. Never mutated in place, only replaced wholesale on re-match.
type MatchResult struct {
	Imported   ImportedTrack
	Best       *Track
	Score      int
	Confidence Confidence
	Status     MatchStatus
	Alternates []Candidate
}

// CatalogClient is the contract with the remote catalog service, the sole
// source of truth for playlists. Every mutation returns the new snapshot ID.
type CatalogClient interface {
	Playlists(ctx context.Context) ([]Playlist, error)
	PlaylistPage(ctx context.Context, playlistID string, offset int) (*TrackPage, error)
	// ReplaceTracks replaces the playlist contents with up to 100 URIs; an
	// empty slice clears the playlist.
	ReplaceTracks(ctx context.Context, playlistID string, uris []string) (string, error)
	// AppendTracks adds up to 100 URIs at the given position, or at the end
	// when position is negative.
	AppendTracks(ctx context.Context, playlistID string, uris []string, position int) (string, error)
	// RemoveTracks removes all occurrences of each URI. The remote service
	// has no position-aware removal; callers needing positional removal go
	// through the rebuild fallback instead.
	RemoveTracks(ctx context.Context, playlistID string, uris []string) (string, error)
	ReorderTracks(ctx context.Context, playlistID string, rangeStart, insertBefore, rangeLength int) (string, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]Track, error)
}

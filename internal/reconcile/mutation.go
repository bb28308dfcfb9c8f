// Package reconcile applies playlist edits optimistically to the local track
// cache, mirrors them to the catalog service, and rolls back or reconciles on
// the outcome.
package reconcile

import (
	"fmt"
	"sort"

	"trackboard/internal/core"
	"trackboard/internal/store"
)

// State is the lifecycle of one mutation instance.
type State int

const (
	// StatePendingOptimistic: refetches cancelled, prior state captured, the
	// edit applied locally.
	StatePendingOptimistic State = iota
	// StateInFlight: the remote write was issued and is awaited.
	StateInFlight
	// StateConfirmed: the remote accepted the write; the snapshot ID was
	// reconciled.
	StateConfirmed
	// StateRolledBack: the remote rejected the write; the captured prior
	// state was restored. Terminal failure state.
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePendingOptimistic:
		return "pending-optimistic"
	case StateInFlight:
		return "in-flight"
	case StateConfirmed:
		return "confirmed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Kind names the edit a mutation performs.
type Kind string

const (
	KindAdd     Kind = "add"
	KindRemove  Kind = "remove"
	KindReorder Kind = "reorder"
)

// Mutation tracks one optimistic edit from local apply to remote resolution.
type Mutation struct {
	Kind       Kind
	PlaylistID string
	State      State

	prior *store.Snapshot
}

// insertAtMarkers inserts the track block at every marker position. Markers
// are processed in ascending order; each subsequent marker's effective index
// shifts by the number of tracks already inserted at earlier markers, so
// marker values always refer to positions in the original list.
func insertAtMarkers(entries []core.PlaylistEntry, tracks []core.Track, markers []int) ([]core.PlaylistEntry, error) {
	if len(markers) == 0 {
		return insertBlock(entries, tracks, len(entries))
	}

	sorted := make([]int, len(markers))
	copy(sorted, markers)
	sort.Ints(sorted)

	patched := entries
	inserted := 0
	for _, marker := range sorted {
		if marker < 0 || marker > len(entries) {
			return nil, &core.ValidationError{Field: "marker", Reason: fmt.Sprintf("position %d out of range [0, %d]", marker, len(entries))}
		}

		var err error
		patched, err = insertBlock(patched, tracks, marker+inserted)
		if err != nil {
			return nil, err
		}
		inserted += len(tracks)
	}

	return patched, nil
}

func insertBlock(entries []core.PlaylistEntry, tracks []core.Track, index int) ([]core.PlaylistEntry, error) {
	if index < 0 || index > len(entries) {
		return nil, &core.ValidationError{Field: "position", Reason: fmt.Sprintf("index %d out of range [0, %d]", index, len(entries))}
	}

	block := make([]core.PlaylistEntry, len(tracks))
	for i, track := range tracks {
		block[i] = core.PlaylistEntry{Track: track}
	}

	patched := make([]core.PlaylistEntry, 0, len(entries)+len(tracks))
	patched = append(patched, entries[:index]...)
	patched = append(patched, block...)
	patched = append(patched, entries[index:]...)

	return renumber(patched), nil
}

// removeAtPositions drops the entries at the given positions.
func removeAtPositions(entries []core.PlaylistEntry, positions []int) ([]core.PlaylistEntry, error) {
	drop := make(map[int]struct{}, len(positions))
	for _, position := range positions {
		if position < 0 || position >= len(entries) {
			return nil, &core.ValidationError{Field: "position", Reason: fmt.Sprintf("position %d out of range [0, %d)", position, len(entries))}
		}
		drop[position] = struct{}{}
	}

	patched := make([]core.PlaylistEntry, 0, len(entries)-len(drop))
	for i, entry := range entries {
		if _, dropped := drop[i]; dropped {
			continue
		}
		patched = append(patched, entry)
	}

	return renumber(patched), nil
}

// removeByURIs drops every occurrence of each URI, mirroring the remote
// removal primitive's semantics.
func removeByURIs(entries []core.PlaylistEntry, uris []string) []core.PlaylistEntry {
	drop := make(map[string]struct{}, len(uris))
	for _, uri := range uris {
		drop[uri] = struct{}{}
	}

	patched := make([]core.PlaylistEntry, 0, len(entries))
	for _, entry := range entries {
		if _, dropped := drop[entry.URI]; dropped {
			continue
		}
		patched = append(patched, entry)
	}

	return renumber(patched)
}

// moveRange moves [from, from+length) so it sits before insertBefore, using
// the remote service's reorder semantics: moving forward the landing index is
// insertBefore-length, moving backward it is insertBefore unchanged. An
// insertBefore inside the moved range is a no-op.
func moveRange(entries []core.PlaylistEntry, from, insertBefore, length int) ([]core.PlaylistEntry, error) {
	if length < 1 {
		return nil, &core.ValidationError{Field: "rangeLength", Reason: "must be at least 1"}
	}
	if from < 0 || from+length > len(entries) {
		return nil, &core.ValidationError{Field: "rangeStart", Reason: fmt.Sprintf("range [%d, %d) out of bounds", from, from+length)}
	}
	if insertBefore < 0 || insertBefore > len(entries) {
		return nil, &core.ValidationError{Field: "insertBefore", Reason: fmt.Sprintf("index %d out of range [0, %d]", insertBefore, len(entries))}
	}

	var landing int
	switch {
	case insertBefore >= from+length:
		landing = insertBefore - length
	case insertBefore <= from:
		landing = insertBefore
	default:
		return renumber(copySlice(entries)), nil
	}

	moved := make([]core.PlaylistEntry, length)
	copy(moved, entries[from:from+length])

	remaining := make([]core.PlaylistEntry, 0, len(entries)-length)
	remaining = append(remaining, entries[:from]...)
	remaining = append(remaining, entries[from+length:]...)

	patched := make([]core.PlaylistEntry, 0, len(entries))
	patched = append(patched, remaining[:landing]...)
	patched = append(patched, moved...)
	patched = append(patched, remaining[landing:]...)

	return renumber(patched), nil
}

// renumber reassigns contiguous 0-indexed positions after a structural edit.
func renumber(entries []core.PlaylistEntry) []core.PlaylistEntry {
	for i := range entries {
		entries[i].Position = i
	}
	return entries
}

func copySlice(entries []core.PlaylistEntry) []core.PlaylistEntry {
	copied := make([]core.PlaylistEntry, len(entries))
	copy(copied, entries)
	return copied
}

// chunk splits uris into batches of at most size.
func chunk(uris []string, size int) [][]string {
	if size < 1 {
		size = 1
	}

	var batches [][]string
	for start := 0; start < len(uris); start += size {
		end := start + size
		if end > len(uris) {
			end = len(uris)
		}
		batches = append(batches, uris[start:end])
	}
	return batches
}

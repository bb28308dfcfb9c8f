// Package store holds the in-memory mirrors of remote playlist state: the
// per-playlist track cache and the import deduplication store.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"trackboard/internal/core"
)

// TrackCache mirrors playlist track lists fetched from the catalog service.
// After the first page of a playlist loads, the remaining pages are prefetched
// sequentially in the background so search/sort/filter need no further round
// trips. The cache never refetches on its own; it is refreshed only by
// explicit invalidation or a confirmed mutation.
//
// Writers are the mutation reconciler and the cache's own fetch path; readers
// subscribe to the event bus and re-read on notification.
type TrackCache struct {
	catalog core.CatalogClient
	bus     *core.Bus
	logger  *zap.Logger

	mu     sync.RWMutex
	states map[string]*playlistState

	// generation is a cache-global counter; every load or cancellation takes
	// a fresh value, so a loop surviving from a forgotten playlist can never
	// collide with its successor.
	generation uint64
}

type playlistState struct {
	entries    []core.PlaylistEntry
	snapshotID string
	total      int

	loading      bool
	fetchingRest bool
	loadedAll    bool

	// generation invalidates in-flight fetch loops: a loop captured with an
	// older generation must not write into newer state.
	generation uint64
}

// Meta reports a cached playlist's bookkeeping state.
type Meta struct {
	SnapshotID   string
	Total        int
	Loading      bool
	FetchingRest bool
	LoadedAll    bool
}

// Snapshot is a deep copy of a playlist's cached contents, captured before an
// optimistic mutation so a failed remote write can restore it exactly.
type Snapshot struct {
	Entries    []core.PlaylistEntry
	SnapshotID string
	Total      int
	LoadedAll  bool
}

func NewTrackCache(catalog core.CatalogClient, bus *core.Bus, logger *zap.Logger) *TrackCache {
	return &TrackCache{
		catalog: catalog,
		bus:     bus,
		logger:  logger,
		states:  make(map[string]*playlistState),
	}
}

// Load fetches the first page of a playlist synchronously and, when more
// pages exist, prefetches the rest sequentially in the background. Any
// in-flight fetch loop for the same playlist is invalidated first. The
// previous contents stay visible until the first page of the reload lands; a
// failed first page leaves them untouched.
func (tc *TrackCache) Load(ctx context.Context, playlistID string) error {
	tc.mu.Lock()
	state := tc.ensureState(playlistID)
	tc.generation++
	generation := tc.generation
	state.generation = generation
	state.loading = true
	state.fetchingRest = false
	tc.mu.Unlock()

	page, err := tc.catalog.PlaylistPage(ctx, playlistID, 0)
	if err != nil {
		tc.mu.Lock()
		if state, ok := tc.states[playlistID]; ok && state.generation == generation {
			state.loading = false
		}
		tc.mu.Unlock()
		return err
	}

	tc.mu.Lock()
	state, ok := tc.states[playlistID]
	if !ok || state.generation != generation {
		// A newer load or mutation superseded this fetch.
		tc.mu.Unlock()
		return nil
	}

	state.entries = renumberFrom(page.Items, 0)
	state.snapshotID = page.SnapshotID
	state.total = page.Total
	state.loading = false
	state.loadedAll = false

	next := page.Next
	if next < 0 {
		state.loadedAll = true
	} else {
		state.fetchingRest = true
	}
	tc.mu.Unlock()

	tc.bus.Publish(core.Event{PlaylistID: playlistID})

	if next >= 0 {
		go tc.prefetchRest(ctx, playlistID, generation, next)
	}

	return nil
}

// prefetchRest sequentially fetches the remaining pages. Pages are not
// fetched in parallel, to preserve cursor continuation. A fetch error stops
// prefetching silently, keeping whatever pages already merged. A generation
// mismatch means the playlist was reloaded or mutated since this loop
// started; the loop then drops its result instead of clobbering newer state.
func (tc *TrackCache) prefetchRest(ctx context.Context, playlistID string, generation uint64, offset int) {
	for offset >= 0 {
		page, err := tc.catalog.PlaylistPage(ctx, playlistID, offset)
		if err != nil {
			tc.logger.Debug("Prefetch stopped",
				zap.String("playlistID", playlistID),
				zap.Int("offset", offset),
				zap.Error(err))
			tc.mu.Lock()
			if state, ok := tc.states[playlistID]; ok && state.generation == generation {
				state.fetchingRest = false
			}
			tc.mu.Unlock()
			return
		}

		tc.mu.Lock()
		state, ok := tc.states[playlistID]
		if !ok || state.generation != generation {
			tc.mu.Unlock()
			return
		}

		state.entries = append(state.entries, renumberFrom(page.Items, len(state.entries))...)
		if page.SnapshotID != "" {
			state.snapshotID = page.SnapshotID
		}

		offset = page.Next
		if offset < 0 {
			state.fetchingRest = false
			state.loadedAll = true
		}
		tc.mu.Unlock()

		tc.bus.Publish(core.Event{PlaylistID: playlistID})
	}
}

// Entries returns a copy of the raw ordered track list, duplicates included.
func (tc *TrackCache) Entries(playlistID string) ([]core.PlaylistEntry, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	state, ok := tc.states[playlistID]
	if !ok {
		return nil, false
	}
	return copyEntries(state.entries), true
}

// Flattened returns the track list de-duplicated by URI, first occurrence
// wins. This is the view search and sort operate on.
func (tc *TrackCache) Flattened(playlistID string) ([]core.PlaylistEntry, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	state, ok := tc.states[playlistID]
	if !ok {
		return nil, false
	}

	seen := make(map[string]struct{}, len(state.entries))
	flattened := make([]core.PlaylistEntry, 0, len(state.entries))
	for _, entry := range state.entries {
		if _, dup := seen[entry.URI]; dup {
			continue
		}
		seen[entry.URI] = struct{}{}
		flattened = append(flattened, entry)
	}

	return copyEntries(flattened), true
}

// Meta reports loading flags and version info for a playlist.
func (tc *TrackCache) Meta(playlistID string) (Meta, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	state, ok := tc.states[playlistID]
	if !ok {
		return Meta{}, false
	}

	return Meta{
		SnapshotID:   state.snapshotID,
		Total:        state.total,
		Loading:      state.loading,
		FetchingRest: state.fetchingRest,
		LoadedAll:    state.loadedAll,
	}, true
}

// CancelRefetch invalidates any in-flight fetch loops for the playlist so a
// stale read cannot overwrite a following optimistic write.
func (tc *TrackCache) CancelRefetch(playlistID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	state, ok := tc.states[playlistID]
	if !ok {
		return
	}
	tc.generation++
	state.generation = tc.generation
	state.fetchingRest = false
	state.loading = false
}

// Capture deep-copies the playlist's cached contents for rollback.
func (tc *TrackCache) Capture(playlistID string) (*Snapshot, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	state, ok := tc.states[playlistID]
	if !ok {
		return nil, false
	}

	return &Snapshot{
		Entries:    copyEntries(state.entries),
		SnapshotID: state.snapshotID,
		Total:      state.total,
		LoadedAll:  state.loadedAll,
	}, true
}

// Restore writes a previously captured snapshot back, exactly as captured.
func (tc *TrackCache) Restore(playlistID string, snapshot *Snapshot) {
	tc.mu.Lock()
	state := tc.ensureState(playlistID)
	state.entries = copyEntries(snapshot.Entries)
	state.snapshotID = snapshot.SnapshotID
	state.total = snapshot.Total
	state.loadedAll = snapshot.LoadedAll
	state.loading = false
	state.fetchingRest = false
	tc.mu.Unlock()

	tc.bus.Publish(core.Event{PlaylistID: playlistID})
}

// ApplyOptimistic replaces the cached track list with a locally patched one
// before remote confirmation.
func (tc *TrackCache) ApplyOptimistic(playlistID string, entries []core.PlaylistEntry) {
	tc.mu.Lock()
	state := tc.ensureState(playlistID)
	state.entries = copyEntries(entries)
	state.total = len(entries)
	tc.mu.Unlock()

	tc.bus.Publish(core.Event{PlaylistID: playlistID})
}

// SetSnapshotID reconciles the version token after a confirmed mutation
// without touching the entries.
func (tc *TrackCache) SetSnapshotID(playlistID, snapshotID string) {
	tc.mu.Lock()
	if state, ok := tc.states[playlistID]; ok {
		state.snapshotID = snapshotID
	}
	tc.mu.Unlock()

	tc.bus.Publish(core.Event{PlaylistID: playlistID})
}

// Forget drops a playlist's cached state, e.g. when its view closes. Any
// in-flight loop dies on its next state lookup, and a later reload takes a
// fresh generation from the cache-global counter.
func (tc *TrackCache) Forget(playlistID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	delete(tc.states, playlistID)
}

func (tc *TrackCache) ensureState(playlistID string) *playlistState {
	state, ok := tc.states[playlistID]
	if !ok {
		state = &playlistState{}
		tc.states[playlistID] = state
	}
	return state
}

// renumberFrom reassigns contiguous positions starting at base. Catalog pages
// number rows by their remote offset, which has gaps where non-track rows
// were skipped; locally a position is always the index into the cached track
// list, so the position the API reports is the position a mutation accepts.
func renumberFrom(entries []core.PlaylistEntry, base int) []core.PlaylistEntry {
	for i := range entries {
		entries[i].Position = base + i
	}
	return entries
}

func copyEntries(entries []core.PlaylistEntry) []core.PlaylistEntry {
	copied := make([]core.PlaylistEntry, len(entries))
	copy(copied, entries)
	for i := range copied {
		if copied[i].Artists != nil {
			artists := make([]string, len(copied[i].Artists))
			copy(artists, copied[i].Artists)
			copied[i].Artists = artists
		}
	}
	return copied
}

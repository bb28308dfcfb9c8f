package reconcile

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"trackboard/internal/core"
	"trackboard/internal/store"
)

// maxWriteBatch is the largest URI batch the remote accepts per write call.
const maxWriteBatch = 100

// Reconciler mirrors local playlist edits to the catalog service with an
// optimistic-update-then-confirm-or-rollback protocol. The UI reflects the
// edit immediately; a rejected remote write restores the captured prior
// state.
type Reconciler struct {
	catalog core.CatalogClient
	cache   *store.TrackCache
	logger  *zap.Logger
}

func New(catalog core.CatalogClient, cache *store.TrackCache, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		catalog: catalog,
		cache:   cache,
		logger:  logger,
	}
}

// RemoveRequest selects what to remove: whole URIs (every occurrence) or
// specific positions. Positions index the cached track list, the same
// numbering the API reports. The two modes are mutually exclusive; the
// executed strategy (direct removal vs playlist rebuild) is chosen
// automatically.
type RemoveRequest struct {
	URIs      []string
	Positions []int
}

// Add inserts the tracks at every marker position, or appends them when no
// markers are given. Markers are processed in ascending order and later
// markers shift by the tracks inserted before them.
func (r *Reconciler) Add(ctx context.Context, playlistID string, tracks []core.Track, markers []int) error {
	if len(tracks) == 0 {
		return &core.ValidationError{Field: "tracks", Reason: "empty batch"}
	}
	for _, track := range tracks {
		if track.URI == "" {
			return &core.ValidationError{Field: "tracks", Reason: "track without URI"}
		}
	}

	mutation, entries, err := r.begin(KindAdd, playlistID)
	if err != nil {
		return err
	}

	patched, err := insertAtMarkers(entries, tracks, markers)
	if err != nil {
		return err
	}

	uris := make([]string, len(tracks))
	for i, track := range tracks {
		uris[i] = track.URI
	}

	r.apply(mutation, patched)

	calls := r.planAddCalls(uris, markers, len(entries))
	snapshotID, completed, err := r.runAddCalls(ctx, playlistID, calls)
	if err != nil {
		return r.resolveBatchFailure(ctx, mutation, completed, len(calls), err)
	}

	r.confirm(mutation, snapshotID)
	return nil
}

// Remove deletes tracks, choosing the execution strategy automatically:
// URI-based requests and positional requests covering every occurrence of
// each affected URI use the direct removal primitive; positional requests
// leaving other occurrences in place go through the rebuild fallback, since
// the remote primitive ignores positions.
func (r *Reconciler) Remove(ctx context.Context, playlistID string, req RemoveRequest) error {
	if len(req.URIs) == 0 && len(req.Positions) == 0 {
		return &core.ValidationError{Field: "remove", Reason: "empty selection"}
	}
	if len(req.URIs) > 0 && len(req.Positions) > 0 {
		return &core.ValidationError{Field: "remove", Reason: "specify uris or positions, not both"}
	}

	mutation, entries, err := r.begin(KindRemove, playlistID)
	if err != nil {
		return err
	}

	if len(req.URIs) > 0 {
		patched := removeByURIs(entries, req.URIs)
		r.apply(mutation, patched)
		return r.removeDirect(ctx, mutation, req.URIs)
	}

	patched, err := removeAtPositions(entries, req.Positions)
	if err != nil {
		return err
	}

	uris, covered := coveredURIs(entries, req.Positions)
	r.apply(mutation, patched)

	if covered {
		return r.removeDirect(ctx, mutation, uris)
	}

	snapshotID, err := r.rebuild(ctx, playlistID, req.Positions)
	if err != nil {
		r.rollback(mutation)
		return err
	}

	r.confirm(mutation, snapshotID)
	return nil
}

// Reorder moves the range [from, from+length) before insertBefore. The local
// splice mirrors the remote semantics (forward moves land at
// insertBefore-length); after confirmation the playlist is refetched so
// positions come from the remote's own reordering.
func (r *Reconciler) Reorder(ctx context.Context, playlistID string, from, insertBefore, length int) error {
	mutation, entries, err := r.begin(KindReorder, playlistID)
	if err != nil {
		return err
	}

	patched, err := moveRange(entries, from, insertBefore, length)
	if err != nil {
		return err
	}

	r.apply(mutation, patched)

	snapshotID, err := r.catalog.ReorderTracks(ctx, playlistID, from, insertBefore, length)
	if err != nil {
		r.rollback(mutation)
		return fmt.Errorf("reorder failed: %w", err)
	}

	r.confirm(mutation, snapshotID)

	if err := r.cache.Load(ctx, playlistID); err != nil {
		r.logger.Warn("Refetch after reorder failed, cache keeps local positions",
			zap.String("playlistID", playlistID),
			zap.Error(err))
	}
	return nil
}

// begin cancels outstanding refetches and captures the prior state. Runs
// before the optimistic write so no stale in-flight read can clobber it.
func (r *Reconciler) begin(kind Kind, playlistID string) (*Mutation, []core.PlaylistEntry, error) {
	r.cache.CancelRefetch(playlistID)

	prior, ok := r.cache.Capture(playlistID)
	if !ok {
		return nil, nil, &core.ValidationError{Field: "playlist", Reason: fmt.Sprintf("playlist %s not loaded", playlistID)}
	}

	entries, _ := r.cache.Entries(playlistID)
	mutation := &Mutation{
		Kind:       kind,
		PlaylistID: playlistID,
		State:      StatePendingOptimistic,
		prior:      prior,
	}
	return mutation, entries, nil
}

func (r *Reconciler) apply(mutation *Mutation, patched []core.PlaylistEntry) {
	r.cache.ApplyOptimistic(mutation.PlaylistID, patched)
	mutation.State = StateInFlight
}

func (r *Reconciler) confirm(mutation *Mutation, snapshotID string) {
	if snapshotID != "" {
		r.cache.SetSnapshotID(mutation.PlaylistID, snapshotID)
	}
	mutation.State = StateConfirmed

	r.logger.Info("Mutation confirmed",
		zap.String("playlistID", mutation.PlaylistID),
		zap.String("kind", string(mutation.Kind)),
		zap.String("snapshotID", snapshotID))
}

// rollback restores the snapshot captured at begin, exactly as captured.
func (r *Reconciler) rollback(mutation *Mutation) {
	r.cache.Restore(mutation.PlaylistID, mutation.prior)
	mutation.State = StateRolledBack

	r.logger.Warn("Mutation rolled back",
		zap.String("playlistID", mutation.PlaylistID),
		zap.String("kind", string(mutation.Kind)))
}

// resolveBatchFailure decides between full rollback and keeping a partial
// edit: a failure before any batch succeeded rolls back; a mid-sequence
// failure keeps the batches the remote already accepted and refetches the
// remote's state instead.
func (r *Reconciler) resolveBatchFailure(ctx context.Context, mutation *Mutation, completed, total int, err error) error {
	if completed == 0 {
		r.rollback(mutation)
		return fmt.Errorf("%s failed: %w", mutation.Kind, err)
	}

	if loadErr := r.cache.Load(ctx, mutation.PlaylistID); loadErr != nil {
		r.logger.Warn("Refetch after partial batch failure failed",
			zap.String("playlistID", mutation.PlaylistID),
			zap.Error(loadErr))
	}

	return &core.PartialBatchError{Completed: completed, Total: total, Err: err}
}

// addCall is one remote append: a URI batch and its insertion position.
type addCall struct {
	uris     []string
	position int
}

// planAddCalls lays out the remote appends for a marker insertion. Positions
// bake in the shift from tracks inserted at earlier markers, matching the
// optimistic local patch.
func (r *Reconciler) planAddCalls(uris []string, markers []int, listLen int) []addCall {
	if len(markers) == 0 {
		calls := make([]addCall, 0, 1)
		for _, batch := range chunk(uris, maxWriteBatch) {
			calls = append(calls, addCall{uris: batch, position: -1})
		}
		return calls
	}

	sorted := make([]int, len(markers))
	copy(sorted, markers)
	sort.Ints(sorted)

	var calls []addCall
	inserted := 0
	for _, marker := range sorted {
		base := marker + inserted
		offset := 0
		for _, batch := range chunk(uris, maxWriteBatch) {
			position := base + offset
			if base >= listLen+inserted {
				// Appending past the end: let the remote place it there
				// without a reorder round trip.
				position = -1
			}
			calls = append(calls, addCall{uris: batch, position: position})
			offset += len(batch)
		}
		inserted += len(uris)
	}
	return calls
}

func (r *Reconciler) runAddCalls(ctx context.Context, playlistID string, calls []addCall) (string, int, error) {
	snapshotID := ""
	for i, call := range calls {
		snapshot, err := r.catalog.AppendTracks(ctx, playlistID, call.uris, call.position)
		if err != nil {
			return snapshotID, i, err
		}
		snapshotID = snapshot
	}
	return snapshotID, len(calls), nil
}

// removeDirect issues the URI-based removal primitive in batches.
func (r *Reconciler) removeDirect(ctx context.Context, mutation *Mutation, uris []string) error {
	batches := chunk(uris, maxWriteBatch)

	snapshotID := ""
	for i, batch := range batches {
		snapshot, err := r.catalog.RemoveTracks(ctx, mutation.PlaylistID, batch)
		if err != nil {
			return r.resolveBatchFailure(ctx, mutation, i, len(batches), err)
		}
		snapshotID = snapshot
	}

	r.confirm(mutation, snapshotID)
	return nil
}

// coveredURIs reports whether the positional selection covers every
// occurrence of each affected URI. Only then can the URI-based primitive
// stand in for positional removal.
func coveredURIs(entries []core.PlaylistEntry, positions []int) ([]string, bool) {
	selected := make(map[int]struct{}, len(positions))
	for _, position := range positions {
		selected[position] = struct{}{}
	}

	affected := make(map[string]struct{})
	for i, entry := range entries {
		if _, ok := selected[i]; ok {
			affected[entry.URI] = struct{}{}
		}
	}

	for i, entry := range entries {
		if _, isAffected := affected[entry.URI]; !isAffected {
			continue
		}
		if _, isSelected := selected[i]; !isSelected {
			return nil, false
		}
	}

	uris := make([]string, 0, len(affected))
	for _, entry := range entries {
		if _, ok := affected[entry.URI]; ok {
			uris = append(uris, entry.URI)
			delete(affected, entry.URI)
		}
	}
	return uris, true
}

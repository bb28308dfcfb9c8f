package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// rebuild reconstructs a playlist without the entries at the given positions
// by fetching the full current contents, filtering, and writing the result
// back. Positions count the editable rows across all pages, the same
// numbering the cache reports. Small results go through a single replace
// call; larger ones clear the playlist first and append in batches.
//
// Any failure before the first write aborts with no remote change. Once the
// clear succeeded, a failed append batch is logged and skipped so the rebuild
// still converges on as much of the desired list as the remote accepted.
func (r *Reconciler) rebuild(ctx context.Context, playlistID string, removePositions []int) (string, error) {
	drop := make(map[int]struct{}, len(removePositions))
	for _, position := range removePositions {
		drop[position] = struct{}{}
	}

	var uris []string
	index := 0
	offset := 0
	for offset >= 0 {
		page, err := r.catalog.PlaylistPage(ctx, playlistID, offset)
		if err != nil {
			return "", fmt.Errorf("rebuild fetch at offset %d failed, playlist untouched: %w", offset, err)
		}
		// Page positions carry remote row offsets, which skip non-track rows;
		// the caller's positions index the track list, so count rows here.
		for _, entry := range page.Items {
			if _, dropped := drop[index]; !dropped {
				uris = append(uris, entry.URI)
			}
			index++
		}
		offset = page.Next
	}

	r.logger.Info("Rebuilding playlist",
		zap.String("playlistID", playlistID),
		zap.Int("removed", len(removePositions)),
		zap.Int("remaining", len(uris)))

	if len(uris) <= maxWriteBatch {
		snapshotID, err := r.catalog.ReplaceTracks(ctx, playlistID, uris)
		if err != nil {
			return "", fmt.Errorf("rebuild replace failed, playlist untouched: %w", err)
		}
		return snapshotID, nil
	}

	snapshotID, err := r.catalog.ReplaceTracks(ctx, playlistID, nil)
	if err != nil {
		return "", fmt.Errorf("rebuild clear failed, playlist untouched: %w", err)
	}

	for i, batch := range chunk(uris, maxWriteBatch) {
		snapshot, err := r.catalog.AppendTracks(ctx, playlistID, batch, -1)
		if err != nil {
			r.logger.Error("Rebuild append batch failed, continuing with remaining batches",
				zap.String("playlistID", playlistID),
				zap.Int("batch", i),
				zap.Error(err))
			continue
		}
		snapshotID = snapshot
	}

	return snapshotID, nil
}

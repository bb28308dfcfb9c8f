package match

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"trackboard/internal/core"
	"trackboard/pkg/fuzzy"
)

// Searcher is the slice of the catalog client the matcher needs.
type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]core.Track, error)
}

// Matcher resolves imported tracks in batches, caching results by a
// normalized "artist::track" key so repeated imports skip the round trip.
type Matcher struct {
	searcher   Searcher
	scorer     *Scorer
	normalizer *fuzzy.Normalizer
	logger     *zap.Logger

	batchSize     int
	maxCandidates int

	mu      sync.Mutex
	cache   *lru.Cache[string, *core.MatchResult]
	pending map[string]struct{}
}

const (
	defaultBatchSize     = 20
	defaultCacheSize     = 2048
	defaultMaxCandidates = 10
)

func NewMatcher(searcher Searcher, config *core.MatchConfig, logger *zap.Logger) *Matcher {
	batchSize := config.BatchSize
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	cacheSize := config.CacheSize
	if cacheSize < 1 {
		cacheSize = defaultCacheSize
	}
	maxCandidates := config.MaxCandidates
	if maxCandidates < 1 {
		maxCandidates = defaultMaxCandidates
	}

	cache, _ := lru.New[string, *core.MatchResult](cacheSize)

	return &Matcher{
		searcher:      searcher,
		scorer:        NewScorer(),
		normalizer:    fuzzy.NewNormalizer(),
		logger:        logger,
		batchSize:     batchSize,
		maxCandidates: maxCandidates,
		cache:         cache,
		pending:       make(map[string]struct{}),
	}
}

// Key returns the cache key for an imported track.
func (m *Matcher) Key(imported core.ImportedTrack) string {
	return m.normalizer.Sanitize(imported.Artist) + "::" + m.normalizer.Sanitize(imported.Name)
}

// Status reports the lifecycle state of the cache entry for an imported
// track.
func (m *Matcher) Status(imported core.ImportedTrack) core.MatchStatus {
	key := m.Key(imported)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[key]; ok {
		return core.MatchPending
	}
	if result, ok := m.cache.Get(key); ok {
		return result.Status
	}
	return core.MatchIdle
}

// MatchAll resolves every imported track, reusing cached results and fetching
// the rest from the catalog in independent batches. A failed batch records
// its entries as failed and does not abort the remaining batches; no entry is
// ever left pending.
func (m *Matcher) MatchAll(ctx context.Context, imports []core.ImportedTrack) []*core.MatchResult {
	results := make([]*core.MatchResult, len(imports))

	var uncached []int
	m.mu.Lock()
	for i, imported := range imports {
		if cached, ok := m.cache.Get(m.Key(imported)); ok {
			results[i] = cached
			continue
		}
		uncached = append(uncached, i)
	}
	m.mu.Unlock()

	for start := 0; start < len(uncached); start += m.batchSize {
		end := start + m.batchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		m.matchBatch(ctx, imports, results, uncached[start:end])
	}

	return results
}

// matchBatch resolves one batch of uncached imports. Entries are marked
// pending for the duration of the round trip and cleared on every exit path.
func (m *Matcher) matchBatch(ctx context.Context, imports []core.ImportedTrack, results []*core.MatchResult, indices []int) {
	m.mu.Lock()
	for _, i := range indices {
		m.pending[m.Key(imports[i])] = struct{}{}
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		for _, i := range indices {
			delete(m.pending, m.Key(imports[i]))
		}
		m.mu.Unlock()
	}()

	for _, i := range indices {
		imported := imports[i]

		result, err := m.matchOne(ctx, imported)
		if err != nil {
			m.logger.Warn("Track match failed",
				zap.String("artist", imported.Artist),
				zap.String("track", imported.Name),
				zap.Error(err))
			result = &core.MatchResult{
				Imported:   imported,
				Confidence: core.ConfidenceNone,
				Status:     core.MatchFailed,
			}
		}

		m.mu.Lock()
		m.cache.Add(m.Key(imported), result)
		m.mu.Unlock()
		results[i] = result
	}
}

func (m *Matcher) matchOne(ctx context.Context, imported core.ImportedTrack) (*core.MatchResult, error) {
	if imported.Name == "" || imported.Artist == "" {
		return nil, fmt.Errorf("imported track missing name or artist")
	}

	candidates, err := m.searcher.SearchTracks(ctx, m.scorer.BuildSearchQuery(imported, false), m.maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}

	return m.scorer.NewMatchResult(imported, candidates), nil
}

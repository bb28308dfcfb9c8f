// Package match resolves imported track references to canonical catalog
// tracks using sanitized-text similarity scoring.
package match

import (
	"fmt"
	"math"
	"sort"

	"trackboard/internal/core"
	"trackboard/pkg/fuzzy"
)

const (
	// MaxScore is the upper bound of a match score.
	MaxScore = 100
	// MaxAlternates is the number of ranked alternate candidates kept on a
	// match result.
	MaxAlternates = 5

	titleExactPoints  = 40.0
	titleFuzzyScale   = 35.0
	artistExactPoints = 40.0
	artistFuzzyScale  = 35.0
	albumBonusScale   = 10.0
	popularityScale   = 10.0

	// Confidence tier thresholds. These exact values are a contract the UI
	// relies on for match treatment.
	highThreshold   = 80
	mediumThreshold = 60
	lowThreshold    = 40
)

// Scorer scores catalog candidates against imported track references.
type Scorer struct {
	normalizer *fuzzy.Normalizer
}

func NewScorer() *Scorer {
	return &Scorer{normalizer: fuzzy.NewNormalizer()}
}

// BuildSearchQuery builds a field-qualified catalog search query from the
// sanitized track and artist names, optionally including the album.
func (s *Scorer) BuildSearchQuery(imported core.ImportedTrack, includeAlbum bool) string {
	query := fmt.Sprintf("track:%q artist:%q",
		s.normalizer.Sanitize(imported.Name),
		s.normalizer.Sanitize(imported.Artist))

	if includeAlbum && imported.Album != "" {
		query += fmt.Sprintf(" album:%q", s.normalizer.Sanitize(imported.Album))
	}

	return query
}

// Score rates how well a catalog candidate matches an imported track,
// returning a value in [0, 100]. Weighted sum: track name up to 40, artist up
// to 40, album bonus up to 10, popularity bonus up to 10.
func (s *Scorer) Score(imported core.ImportedTrack, candidate core.Track) int {
	score := s.titleScore(imported.Name, candidate.Name)
	score += s.artistScore(imported.Artist, candidate.Artists)
	score += s.albumScore(imported.Album, candidate.AlbumName)
	score += popularityScale * float64(candidate.Popularity) / 100.0

	rounded := int(math.Round(score))
	if rounded > MaxScore {
		return MaxScore
	}
	if rounded < 0 {
		return 0
	}
	return rounded
}

func (s *Scorer) titleScore(imported, candidate string) float64 {
	a := s.normalizer.Sanitize(imported)
	b := s.normalizer.Sanitize(candidate)

	if a == b {
		return titleExactPoints
	}
	return titleFuzzyScale * s.normalizer.Similarity(a, b)
}

// artistScore takes the best similarity across all candidate artists, with
// full credit on an exact sanitized match.
func (s *Scorer) artistScore(imported string, candidateArtists []string) float64 {
	a := s.normalizer.Sanitize(imported)

	best := 0.0
	for _, artist := range candidateArtists {
		b := s.normalizer.Sanitize(artist)
		if a == b {
			return artistExactPoints
		}
		if sim := s.normalizer.Similarity(a, b); sim > best {
			best = sim
		}
	}

	return artistFuzzyScale * best
}

// albumScore awards a bonus only when both sides carry an album name.
func (s *Scorer) albumScore(imported, candidate string) float64 {
	if imported == "" || candidate == "" {
		return 0
	}

	a := s.normalizer.Sanitize(imported)
	b := s.normalizer.Sanitize(candidate)
	return albumBonusScale * s.normalizer.Similarity(a, b)
}

// ConfidenceForScore maps a score to its confidence tier.
func ConfidenceForScore(score int) core.Confidence {
	switch {
	case score >= highThreshold:
		return core.ConfidenceHigh
	case score >= mediumThreshold:
		return core.ConfidenceMedium
	case score >= lowThreshold:
		return core.ConfidenceLow
	default:
		return core.ConfidenceNone
	}
}

// NewMatchResult scores every candidate, ranks them descending, and returns
// the top candidate as the primary match with up to MaxAlternates ranked
// alternates. An empty candidate list yields a no-match result.
func (s *Scorer) NewMatchResult(imported core.ImportedTrack, candidates []core.Track) *core.MatchResult {
	if len(candidates) == 0 {
		return &core.MatchResult{
			Imported:   imported,
			Confidence: core.ConfidenceNone,
			Status:     core.MatchMatched,
		}
	}

	scored := make([]core.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, core.Candidate{
			Track: candidate,
			Score: s.Score(imported, candidate),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	alternates := scored
	if len(alternates) > MaxAlternates {
		alternates = alternates[:MaxAlternates]
	}

	best := scored[0].Track
	return &core.MatchResult{
		Imported:   imported,
		Best:       &best,
		Score:      scored[0].Score,
		Confidence: ConfidenceForScore(scored[0].Score),
		Status:     core.MatchMatched,
		Alternates: alternates,
	}
}

// Deduplicate removes later results whose matched track URI was already seen,
// preserving order. Unmatched results are always kept.
func Deduplicate(results []*core.MatchResult) []*core.MatchResult {
	seen := make(map[string]struct{}, len(results))
	deduped := make([]*core.MatchResult, 0, len(results))

	for _, result := range results {
		if result.Best == nil {
			deduped = append(deduped, result)
			continue
		}

		if _, ok := seen[result.Best.URI]; ok {
			continue
		}
		seen[result.Best.URI] = struct{}{}
		deduped = append(deduped, result)
	}

	return deduped
}

// Package fuzzy provides text normalization and similarity scoring for
// matching imported track metadata against catalog search results.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Ordered noise patterns removed during sanitization. Order matters: feat
// clauses go first so a title like "Song (feat. X) [2011 Remaster]" loses
// both tags.
var (
	featRegex     = regexp.MustCompile(`(?i)\s*[\(\[]?\s*(?:feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]?\s*`)
	parenTagRegex = regexp.MustCompile(`(?i)\s*[\(\[][^\)\]]*\b(?:remaster(?:ed)?|live|remix|mix|deluxe|edition|version|mono|stereo|demo|acoustic|re-?issue|bonus track)\b[^\)\]]*[\)\]]`)
	yearTagRegex  = regexp.MustCompile(`\s*[\(\[](?:19|20)\d{2}[\)\]]`)
	dashTagRegex  = regexp.MustCompile(`(?i)\s+-\s+(?:(?:19|20)\d{2}\s+)?(?:remaster(?:ed)?|live|remix|mono|stereo|demo|acoustic|radio edit|single version|album version|extended(?: mix| version)?|bonus track)\b.*$`)

	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	quoteReplacer = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
	)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Sanitize lowercases, strips diacritics, normalizes curly quotes and
// ampersands, removes the noise tags that commonly differ between imported
// metadata and catalog metadata, and collapses whitespace.
//
// Sanitize is idempotent: Sanitize(Sanitize(s)) == Sanitize(s).
func (n *Normalizer) Sanitize(text string) string {
	text = strings.ToLower(text)
	text = quoteReplacer.Replace(text)
	text = strings.ReplaceAll(text, "&", " and ")

	text = norm.NFKD.String(text)
	var stripped strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			stripped.WriteRune(r)
		}
	}
	text = stripped.String()

	text = featRegex.ReplaceAllString(text, " ")
	text = parenTagRegex.ReplaceAllString(text, " ")
	text = yearTagRegex.ReplaceAllString(text, " ")
	text = dashTagRegex.ReplaceAllString(text, " ")

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// Similarity combines word-set overlap with positional character overlap.
// Equal strings score 1.0; the weighting favors word-level agreement over
// character alignment.
func (n *Normalizer) Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	return 0.6*n.jaccard(s1, s2) + 0.4*n.positional(s1, s2)
}

// jaccard computes word-set Jaccard similarity.
func (n *Normalizer) jaccard(s1, s2 string) float64 {
	set1 := tokenSet(s1)
	set2 := tokenSet(s2)

	intersection := 0
	for tok := range set1 {
		if _, ok := set2[tok]; ok {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// positional computes the fraction of byte positions holding the same
// character, measured over the longer string.
func (n *Normalizer) positional(s1, s2 string) float64 {
	shorter := len(s1)
	if len(s2) < shorter {
		shorter = len(s2)
	}

	matches := 0
	for i := 0; i < shorter; i++ {
		if s1[i] == s2[i] {
			matches++
		}
	}

	return float64(matches) / float64(max(len(s1), len(s2)))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package fuzzy

import (
	"testing"
)

func TestNormalizer_Sanitize(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple title",
			input:    "Hey Jude",
			expected: "hey jude",
		},
		{
			name:     "Remaster suffix",
			input:    "Bohemian Rhapsody - 2011 Remaster",
			expected: "bohemian rhapsody",
		},
		{
			name:     "Featuring clause",
			input:    "Song Title (feat. Artist)",
			expected: "song title",
		},
		{
			name:     "Remix tag",
			input:    "Song Title (Club Remix)",
			expected: "song title",
		},
		{
			name:     "Live tag in brackets",
			input:    "Song Title [Live at Wembley]",
			expected: "song title",
		},
		{
			name:     "Deluxe edition tag",
			input:    "Album Name (Deluxe Edition)",
			expected: "album name",
		},
		{
			name:     "Year in parens",
			input:    "Song Title (1997)",
			expected: "song title",
		},
		{
			name:     "Bonus track marker",
			input:    "Song Title - Bonus Track",
			expected: "song title",
		},
		{
			name:     "Diacritics",
			input:    "Björk",
			expected: "bjork",
		},
		{
			name:     "Curly quotes",
			input:    "Don’t Stop Me Now",
			expected: "don t stop me now",
		},
		{
			name:     "Ampersand",
			input:    "Simon & Garfunkel",
			expected: "simon and garfunkel",
		},
		{
			name:     "Whitespace collapse",
			input:    "Song    Title",
			expected: "song title",
		},
		{
			name:     "Radio edit suffix",
			input:    "Song Title - Radio Edit",
			expected: "song title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizer.Sanitize(tt.input)
			if result != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizer_SanitizeIdempotent(t *testing.T) {
	normalizer := NewNormalizer()

	inputs := []string{
		"Bohemian Rhapsody - 2011 Remaster",
		"Song Title (feat. Artist) [2004 Remaster]",
		"Simon & Garfunkel",
		"Björk — Jóga (Live)",
		"Don’t Stop Me Now!",
		"plain title",
		"",
		"   ",
		"AC/DC - Back In Black",
	}

	for _, input := range inputs {
		once := normalizer.Sanitize(input)
		twice := normalizer.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestNormalizer_Similarity(t *testing.T) {
	normalizer := NewNormalizer()

	tests := []struct {
		name string
		s1   string
		s2   string
		min  float64
		max  float64
	}{
		{"Identical", "hello world", "hello world", 1.0, 1.0},
		{"Empty both sides", "", "", 1.0, 1.0},
		{"One empty", "hello", "", 0.0, 0.0},
		{"Word overlap", "hello world", "hello there", 0.2, 0.8},
		{"No overlap", "abc", "xyz", 0.0, 0.1},
		{"Reordered words", "world hello", "hello world", 0.5, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizer.Similarity(tt.s1, tt.s2)
			if result < tt.min || result > tt.max {
				t.Errorf("Similarity(%q, %q) = %f, want within [%f, %f]", tt.s1, tt.s2, result, tt.min, tt.max)
			}
		})
	}
}

func TestNormalizer_SimilarityBounds(t *testing.T) {
	normalizer := NewNormalizer()

	pairs := [][2]string{
		{"a", "b"},
		{"some long string here", "short"},
		{"identical", "identical"},
		{"", "nonempty"},
		{"über cool", "uber cool"},
	}

	for _, pair := range pairs {
		result := normalizer.Similarity(pair[0], pair[1])
		if result < 0.0 || result > 1.0 {
			t.Errorf("Similarity(%q, %q) = %f, out of [0,1]", pair[0], pair[1], result)
		}
	}
}

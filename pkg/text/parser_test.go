package text

import (
	"testing"
)

func TestParser_Parse_Classification(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"free text", "Radiohead - Karma Police", KindFreeText},
		{"spotify track link", "https://open.spotify.com/track/63OQupATfueTdZMWTxW03A", KindSpotifyLink},
		{"spotify link with si param", "check this https://open.spotify.com/track/63OQupATfueTdZMWTxW03A?si=abc123", KindSpotifyLink},
		{"spotify URI", "spotify:track:63OQupATfueTdZMWTxW03A", KindSpotifyLink},
		{"spotify playlist link is not a track", "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", KindFreeText},
		{"youtube link", "https://youtube.com/watch?v=dQw4w9WgXcQ", KindMusicLink},
		{"youtu.be link", "https://youtu.be/dQw4w9WgXcQ", KindMusicLink},
		{"apple music link", "https://music.apple.com/us/album/ok-computer/1097861387", KindMusicLink},
		{"plain text with non-music link", "look at https://example.com/page", KindFreeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parser.Parse(tt.text).Kind; got != tt.want {
				t.Errorf("Parse(%q).Kind = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParser_Parse_SpotifyTrackID(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		text string
		want string
	}{
		{"spotify:track:63OQupATfueTdZMWTxW03A", "63OQupATfueTdZMWTxW03A"},
		{"https://open.spotify.com/track/63OQupATfueTdZMWTxW03A", "63OQupATfueTdZMWTxW03A"},
		{"listen: https://open.spotify.com/track/63OQupATfueTdZMWTxW03A?si=xyz", "63OQupATfueTdZMWTxW03A"},
	}

	for _, tt := range tests {
		input := parser.Parse(tt.text)
		if input.TrackID != tt.want {
			t.Errorf("Parse(%q).TrackID = %q, want %q", tt.text, input.TrackID, tt.want)
		}
	}
}

func TestParser_Parse_NormalizesWhitespace(t *testing.T) {
	parser := NewParser()

	input := parser.Parse("  Radiohead   -   Karma    Police  ")
	if input.Text != "Radiohead - Karma Police" {
		t.Errorf("Text = %q", input.Text)
	}
}

func TestParser_Parse_StripsTrackingParams(t *testing.T) {
	parser := NewParser()

	input := parser.Parse("https://open.spotify.com/track/abc?si=tracker&utm_source=share")
	if len(input.URLs) != 1 {
		t.Fatalf("URLs = %v", input.URLs)
	}
	if input.URLs[0] != "https://open.spotify.com/track/abc" {
		t.Errorf("cleaned URL = %q", input.URLs[0])
	}
}

func TestSplitArtistTitle(t *testing.T) {
	tests := []struct {
		text       string
		wantArtist string
		wantTitle  string
	}{
		{"Radiohead - Karma Police", "Radiohead", "Karma Police"},
		{"Karma Police by Radiohead", "Radiohead", "Karma Police"},
		{"Karma Police", "", "Karma Police"},
		{"Some - Band - Song", "Some", "Band - Song"},
	}

	for _, tt := range tests {
		artist, title := SplitArtistTitle(tt.text)
		if artist != tt.wantArtist || title != tt.wantTitle {
			t.Errorf("SplitArtistTitle(%q) = (%q, %q), want (%q, %q)",
				tt.text, artist, title, tt.wantArtist, tt.wantTitle)
		}
	}
}

func TestParser_ExtractSpotifyTrackID_Invalid(t *testing.T) {
	parser := NewParser()

	if _, err := parser.ExtractSpotifyTrackID("not a url"); err == nil {
		t.Error("invalid input accepted")
	}

	id, err := parser.ExtractSpotifyTrackID("https://open.spotify.com/album/xyz")
	if err != nil || id != "" {
		t.Errorf("album link: id=%q err=%v", id, err)
	}
}

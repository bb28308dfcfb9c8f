package core

import (
	"time"
)

type Config struct {
	Spotify   SpotifyConfig
	LastFM    LastFMConfig
	Server    ServerConfig
	Analytics AnalyticsConfig
	Match     MatchConfig
	Cache     CacheConfig
	Log       LogConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
}

type LastFMConfig struct {
	APIKey string
	User   string
}

type ServerConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RequestsPerMinute int
}

type AnalyticsConfig struct {
	Path string
}

type MatchConfig struct {
	BatchSize     int
	CacheSize     int
	MaxCandidates int
}

type CacheConfig struct {
	PageSize int
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL: "http://localhost:8080/callback",
			TokenPath:   "./spotify_token.json",
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			RequestsPerMinute: 120,
		},
		Analytics: AnalyticsConfig{
			Path: "./trackboard_analytics.db",
		},
		Match: MatchConfig{
			BatchSize:     20,
			CacheSize:     2048,
			MaxCandidates: 10,
		},
		Cache: CacheConfig{
			PageSize: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

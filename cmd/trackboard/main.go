// Package main provides the trackboard CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"trackboard/internal/analytics"
	"trackboard/internal/catalog"
	"trackboard/internal/core"
	"trackboard/internal/flood"
	"trackboard/internal/history"
	httpserver "trackboard/internal/http"
	"trackboard/internal/match"
	"trackboard/internal/reconcile"
	"trackboard/internal/session"
	"trackboard/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trackboard",
	Short: "trackboard - playlist editing service for Spotify",
	Long: `trackboard mirrors playlist edits to the Spotify Web API with optimistic
local state, fuzzy track matching and a rebuild fallback for positional
removals.`,
	RunE: runTrackboard,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "Spotify OAuth redirect URL")
	rootCmd.PersistentFlags().String("spotify-token-path", "", "path for the persisted OAuth token")
	rootCmd.PersistentFlags().String("lastfm-api-key", "", "Last.fm API key for history import")
	rootCmd.PersistentFlags().String("lastfm-user", "", "default Last.fm user for history import")
	rootCmd.PersistentFlags().String("analytics-path", "", "path for the analytics SQLite database")
	rootCmd.PersistentFlags().String("server-host", "", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().Int("requests-per-minute", 120, "per-client API request limit")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("TRACKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	if url := viper.GetString("spotify-redirect-url"); url != "" {
		cfg.Spotify.RedirectURL = url
	}
	if path := viper.GetString("spotify-token-path"); path != "" {
		cfg.Spotify.TokenPath = path
	}

	cfg.LastFM.APIKey = viper.GetString("lastfm-api-key")
	cfg.LastFM.User = viper.GetString("lastfm-user")

	if path := viper.GetString("analytics-path"); path != "" {
		cfg.Analytics.Path = path
	}

	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}
	cfg.Server.Port = viper.GetInt("server-port")
	if limit := viper.GetInt("requests-per-minute"); limit > 0 {
		cfg.Server.RequestsPerMinute = limit
	}

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runTrackboard(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting trackboard",
		zap.String("version", "1.0.0"))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	spotifySession := session.New(&config.Spotify, logger.Named("session"))
	api, err := spotifySession.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}

	catalogClient := catalog.NewClient(api, &config.Cache, logger.Named("catalog"))

	bus := core.NewBus()
	cache := store.NewTrackCache(catalogClient, bus, logger.Named("cache"))
	reconciler := reconcile.New(catalogClient, cache, logger.Named("reconcile"))
	matcher := match.NewMatcher(catalogClient, &config.Match, logger.Named("match"))
	dedup := store.NewImportDedup(10000, 0.001)

	var importer *history.Client
	if config.LastFM.APIKey != "" {
		importer = history.NewClient(config.LastFM.APIKey, logger.Named("history"))
	}

	analyticsStore, err := analytics.NewStore(config.Analytics.Path, logger.Named("analytics"))
	if err != nil {
		return fmt.Errorf("failed to open analytics store: %w", err)
	}
	defer analyticsStore.Close()

	floodgate := flood.New(config.Server.RequestsPerMinute)
	defer floodgate.Stop()

	httpServer := httpserver.NewServer(&config.Server, httpserver.Deps{
		Catalog:    catalogClient,
		Cache:      cache,
		Reconciler: reconciler,
		Matcher:    matcher,
		Importer:   importer,
		Dedup:      dedup,
		Analytics:  analyticsStore,
		Floodgate:  floodgate,
	}, logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				stats := floodgate.GetStats()
				logger.Debug("Rate limiter stats",
					zap.Int("active_clients", stats.ActiveClients),
					zap.Int("limit_per_minute", stats.LimitPerMinute))
			}
		}
	})

	logger.Info("trackboard started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("trackboard stopped with error", zap.Error(err))
		return err
	}

	logger.Info("trackboard stopped gracefully")
	return nil
}

func validateConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}

	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	return nil
}

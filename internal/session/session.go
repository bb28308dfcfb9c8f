// Package session handles Spotify OAuth authentication and token
// persistence.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"trackboard/internal/core"
)

// tokenFilePermission keeps persisted tokens owner-readable only.
const tokenFilePermission = 0600

type Session struct {
	config *core.SpotifyConfig
	logger *zap.Logger
	auth   *spotifyauth.Authenticator
}

type tokenData struct {
	Token *oauth2.Token `json:"token"`
}

func New(config *core.SpotifyConfig, logger *zap.Logger) *Session {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	return &Session{
		config: config,
		logger: logger,
		auth:   auth,
	}
}

// Authenticate returns an authenticated API client, reusing a saved token
// when one is present and still valid, otherwise walking through the OAuth
// authorization-code flow.
func (s *Session) Authenticate(ctx context.Context) (*spotify.Client, error) {
	token, err := s.loadToken()
	if err != nil {
		s.logger.Info("No saved token found, starting OAuth flow")
		return s.startOAuthFlow(ctx)
	}

	client := spotify.New(s.auth.Client(ctx, token))

	user, err := client.CurrentUser(ctx)
	if err != nil {
		s.logger.Warn("Saved token invalid, starting OAuth flow", zap.Error(err))
		return s.startOAuthFlow(ctx)
	}

	s.logger.Info("Authenticated successfully", zap.String("user", user.DisplayName))
	return client, nil
}

func (s *Session) startOAuthFlow(ctx context.Context) (*spotify.Client, error) {
	state := "trackboard-auth-state"
	authURL := s.auth.AuthURL(state)

	fmt.Printf("Please visit the following URL to authorize the application:\n%s\n", authURL)
	fmt.Print("Enter the authorization code: ")

	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := s.auth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if saveErr := s.saveToken(token); saveErr != nil {
		s.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	client := spotify.New(s.auth.Client(ctx, token))

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	s.logger.Info("OAuth flow completed successfully", zap.String("user", user.DisplayName))
	return client, nil
}

func (s *Session) loadToken() (*oauth2.Token, error) {
	file, err := os.Open(s.config.TokenPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	var stored tokenData
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	return stored.Token, nil
}

func (s *Session) saveToken(token *oauth2.Token) error {
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.config.TokenPath, data, tokenFilePermission)
}

// Package auth builds OAuth2-authenticated HTTP clients for the Google APIs
// from a client secret file and a stored token. It never starts an
// interactive flow; a missing token is reported with the URL to visit.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/Sternrassler/mailbox-sync/pkg/logging"
)

// ErrTokenMissing is returned when no stored token exists.
var ErrTokenMissing = errors.New("oauth token missing")

// Options configures NewHTTPClient.
type Options struct {
	// CredentialsFile is the client secret JSON from the Cloud console.
	CredentialsFile string

	// TokenFile holds the stored token. Refreshed tokens are written back.
	TokenFile string

	// Scopes requested by the client.
	Scopes []string
}

// LoadConfig reads an OAuth client secret file.
func LoadConfig(path string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a stored token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrTokenMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s holds no usable token", ErrTokenMissing, path)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// NewHTTPClient returns a client that authorizes every request and keeps
// the token file up to date across refreshes. A base client in ctx (under
// oauth2.HTTPClient) is used for token requests.
func NewHTTPClient(ctx context.Context, opts Options) (*http.Client, error) {
	cfg, err := LoadConfig(opts.CredentialsFile, opts.Scopes...)
	if err != nil {
		return nil, err
	}

	tok, err := LoadToken(opts.TokenFile)
	if errors.Is(err, ErrTokenMissing) {
		url := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		return nil, fmt.Errorf("%w: authorize at %s and store the token in %s", ErrTokenMissing, url, opts.TokenFile)
	}
	if err != nil {
		return nil, err
	}

	src := &persistingTokenSource{
		base:   cfg.TokenSource(ctx, tok),
		path:   opts.TokenFile,
		last:   tok.AccessToken,
		logger: logging.NewLogger("auth"),
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// persistingTokenSource saves every newly issued token.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger zerolog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to persist refreshed token")
		} else {
			s.logger.Debug().Time("expiry", tok.Expiry).Msg("Stored refreshed token")
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

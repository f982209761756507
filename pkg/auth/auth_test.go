package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func writeCredentials(t *testing.T, dir, tokenURL string) string {
	t.Helper()
	path := filepath.Join(dir, "credentials.json")
	body := fmt.Sprintf(`{"installed":{
		"client_id":"client-123.apps.googleusercontent.com",
		"client_secret":"shh",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth",
		"token_uri":%q,
		"redirect_uris":["http://localhost"]
	}}`, tokenURL)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	return path
}

func TestLoadToken(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadToken(filepath.Join(dir, "absent.json")); !errors.Is(err, ErrTokenMissing) {
		t.Errorf("missing file error = %v, want ErrTokenMissing", err)
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte(`{}`), 0o600)
	if _, err := LoadToken(empty); !errors.Is(err, ErrTokenMissing) {
		t.Errorf("empty token error = %v, want ErrTokenMissing", err)
	}

	garbage := filepath.Join(dir, "garbage.json")
	os.WriteFile(garbage, []byte(`not json`), 0o600)
	if _, err := LoadToken(garbage); err == nil || errors.Is(err, ErrTokenMissing) {
		t.Errorf("garbage token error = %v, want parse error", err)
	}

	good := filepath.Join(dir, "token.json")
	want := &oauth2.Token{AccessToken: "abc", RefreshToken: "r", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	if err := SaveToken(good, want); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	got, err := LoadToken(good)
	if err != nil {
		t.Fatalf("LoadToken() error = %v", err)
	}
	if got.AccessToken != "abc" || got.RefreshToken != "r" || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("LoadToken() = %+v", got)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeCredentials(t, dir, "https://oauth2.googleapis.com/token")

	cfg, err := LoadConfig(path, "scope-a")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ClientID != "client-123.apps.googleusercontent.com" {
		t.Errorf("ClientID = %q", cfg.ClientID)
	}
	if len(cfg.Scopes) != 1 || cfg.Scopes[0] != "scope-a" {
		t.Errorf("Scopes = %v", cfg.Scopes)
	}

	if _, err := LoadConfig(filepath.Join(dir, "nope.json")); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestNewHTTPClient_MissingTokenReportsURL(t *testing.T) {
	dir := t.TempDir()
	creds := writeCredentials(t, dir, "https://oauth2.googleapis.com/token")

	_, err := NewHTTPClient(context.Background(), Options{
		CredentialsFile: creds,
		TokenFile:       filepath.Join(dir, "token.json"),
		Scopes:          []string{"scope-a"},
	})
	if !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("error = %v, want ErrTokenMissing", err)
	}
	if !strings.Contains(err.Error(), "accounts.google.com") {
		t.Errorf("error should include the authorization URL: %v", err)
	}
}

func TestNewHTTPClient_AuthorizesRequests(t *testing.T) {
	dir := t.TempDir()
	creds := writeCredentials(t, dir, "https://oauth2.googleapis.com/token")
	tokenFile := filepath.Join(dir, "token.json")
	SaveToken(tokenFile, &oauth2.Token{AccessToken: "valid-token", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)})

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	client, err := NewHTTPClient(context.Background(), Options{CredentialsFile: creds, TokenFile: tokenFile})
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer valid-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestNewHTTPClient_RefreshPersistsToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenServer.Close()

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	dir := t.TempDir()
	creds := writeCredentials(t, dir, tokenServer.URL)
	tokenFile := filepath.Join(dir, "token.json")
	SaveToken(tokenFile, &oauth2.Token{
		AccessToken:  "stale-token",
		RefreshToken: "refresh-me",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	})

	client, err := NewHTTPClient(context.Background(), Options{CredentialsFile: creds, TokenFile: tokenFile})
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer fresh-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	stored, err := LoadToken(tokenFile)
	if err != nil {
		t.Fatalf("LoadToken() error = %v", err)
	}
	if stored.AccessToken != "fresh-token" {
		t.Errorf("stored token = %q, want fresh-token", stored.AccessToken)
	}
	if stored.RefreshToken != "refresh-me" {
		t.Errorf("refresh token lost: %q", stored.RefreshToken)
	}
}

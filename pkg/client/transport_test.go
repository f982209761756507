package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeLimiter struct {
	mu        sync.Mutex
	acquired  int
	penalties []time.Duration
	err       error
}

func (l *fakeLimiter) Acquire(_ context.Context, units int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.acquired += units
	return nil
}

func (l *fakeLimiter) Penalize(_ context.Context, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.penalties = append(l.penalties, d)
	return nil
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/gmail/v1/users/me/messages", "/gmail/v1/users/{user}/messages"},
		{"/gmail/v1/users/me/messages/18c2f0a", "/gmail/v1/users/{user}/messages/{id}"},
		{"/gmail/v1/users/alice@example.com/threads/abc", "/gmail/v1/users/{user}/threads/{id}"},
		{"/gmail/v1/users/me/messages/batchGet", "/gmail/v1/users/{user}/messages/batchGet"},
		{"/v1/contactGroups", "/v1/contactGroups"},
		{"/v1/people/me/connections", "/v1/people/{id}/connections"},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := NormalizeEndpoint(tt.path); got != tt.expected {
				t.Errorf("NormalizeEndpoint(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"empty", "", DefaultPenalty},
		{"seconds", "7", 7 * time.Second},
		{"zero", "0", DefaultPenalty},
		{"garbage", "soon", DefaultPenalty},
		{"http date", now.Add(3 * time.Second).Format(http.TimeFormat), 3 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), DefaultPenalty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value, now); got != tt.expected {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestTransport_SetsUserAgentAndAcquires(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	limiter := &fakeLimiter{}
	cfg := DefaultTransportConfig("mailsync-test/1.0")
	cfg.Limiter = limiter
	httpClient := NewHTTPClient(server.Client(), cfg)

	for i := 0; i < 2; i++ {
		resp, err := httpClient.Get(server.URL + "/gmail/v1/users/me/messages")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()
	}

	if gotUA != "mailsync-test/1.0" {
		t.Errorf("User-Agent = %q, want mailsync-test/1.0", gotUA)
	}
	if limiter.acquired != 10 {
		t.Errorf("acquired units = %d, want 10", limiter.acquired)
	}
}

func TestTransport_PenalizesOnRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	limiter := &fakeLimiter{}
	cfg := DefaultTransportConfig("")
	cfg.Limiter = limiter
	httpClient := NewHTTPClient(nil, cfg)

	resp, err := httpClient.Get(server.URL + "/gmail/v1/users/me/messages/x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if len(limiter.penalties) != 1 || limiter.penalties[0] != 4*time.Second {
		t.Errorf("penalties = %v, want [4s]", limiter.penalties)
	}
}

func TestTransport_NoPenaltyOnOtherErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	limiter := &fakeLimiter{}
	cfg := DefaultTransportConfig("")
	cfg.Limiter = limiter

	resp, err := NewHTTPClient(nil, cfg).Get(server.URL + "/gmail/v1/users/me/messages/gone")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if len(limiter.penalties) != 0 {
		t.Errorf("penalties = %v, want none", limiter.penalties)
	}
}

func TestTransport_AcquireFailureSkipsRequest(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	quotaErr := errors.New("quota store unavailable")
	cfg := DefaultTransportConfig("")
	cfg.Limiter = &fakeLimiter{err: quotaErr}

	_, err := NewHTTPClient(nil, cfg).Get(server.URL + "/gmail/v1/users/me/messages")
	if !errors.Is(err, quotaErr) {
		t.Errorf("error = %v, want wrapped quota error", err)
	}
	if hits != 0 {
		t.Errorf("server hits = %d, want 0", hits)
	}
}

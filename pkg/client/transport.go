package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/mailbox-sync/pkg/logging"
)

// DefaultPenalty is applied on a 429 response without a usable Retry-After.
const DefaultPenalty = 1 * time.Second

// Limiter gates outgoing requests against a shared quota.
type Limiter interface {
	// Acquire blocks until units of quota are available.
	Acquire(ctx context.Context, units int) error

	// Penalize stops every client sharing the quota for d.
	Penalize(ctx context.Context, d time.Duration) error
}

// TransportConfig holds the transport configuration.
type TransportConfig struct {
	// UserAgent is set on every request when non-empty.
	UserAgent string

	// Limiter, if set, is consulted before every request.
	Limiter Limiter

	// UnitsPerRequest is the quota cost of one request.
	// Gmail charges 5 units for both messages.list and messages.get.
	UnitsPerRequest int

	// Timeout for a whole request on the returned http.Client.
	Timeout time.Duration
}

// DefaultTransportConfig returns a safe default configuration.
func DefaultTransportConfig(userAgent string) TransportConfig {
	return TransportConfig{
		UserAgent:       userAgent,
		UnitsPerRequest: 5,
		Timeout:         60 * time.Second,
	}
}

// Transport is an http.RoundTripper that adds quota gating, metrics and
// logging in front of a base transport.
type Transport struct {
	base   http.RoundTripper
	config TransportConfig
	logger zerolog.Logger
}

// NewTransport wraps base. A nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, cfg TransportConfig) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.UnitsPerRequest <= 0 {
		cfg.UnitsPerRequest = 1
	}
	return &Transport{
		base:   base,
		config: cfg,
		logger: logging.NewLogger("transport"),
	}
}

// NewHTTPClient returns a client whose transport wraps inner's transport
// (for example an oauth2 transport). A nil inner uses http.DefaultClient.
func NewHTTPClient(inner *http.Client, cfg TransportConfig) *http.Client {
	if inner == nil {
		inner = http.DefaultClient
	}
	return &http.Client{
		Transport:     NewTransport(inner.Transport, cfg),
		CheckRedirect: inner.CheckRedirect,
		Jar:           inner.Jar,
		Timeout:       cfg.Timeout,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := NormalizeEndpoint(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if t.config.Limiter != nil {
		if err := t.config.Limiter.Acquire(ctx, t.config.UnitsPerRequest); err != nil {
			requestsTotal.WithLabelValues(endpoint, "quota_error").Inc()
			t.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Quota acquire failed")
			return nil, fmt.Errorf("quota acquire: %w", err)
		}
	}

	// RoundTrippers must not modify the caller's request.
	out := req.Clone(ctx)
	if t.config.UserAgent != "" {
		out.Header.Set("User-Agent", t.config.UserAgent)
	}

	t.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing provider request")

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		errClass := ErrorClassNetwork
		if errors.Is(err, context.Canceled) {
			errClass = ErrorClassCancelled
		}
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		t.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, err
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		errClass := ClassifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		event := t.logger.Warn()
		if errClass == ErrorClassNotFound {
			event = t.logger.Debug()
		}
		event.
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Provider request error")

		if errClass == ErrorClassRateLimit && t.config.Limiter != nil {
			penalty := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			if err := t.config.Limiter.Penalize(ctx, penalty); err != nil {
				t.logger.Warn().Err(err).Msg("Failed to record rate limit penalty")
			}
		}
	}

	return resp, nil
}

// idParents are path segments whose following segment is an identifier.
var idParents = map[string]string{
	"users":         "{user}",
	"messages":      "{id}",
	"threads":       "{id}",
	"attachments":   "{id}",
	"contactGroups": "{id}",
	"people":        "{id}",
}

// NormalizeEndpoint replaces identifiers in a request path with
// placeholders to keep metric label cardinality bounded.
//
// Example:
//
//	/gmail/v1/users/me/messages/18c2f -> /gmail/v1/users/{user}/messages/{id}
func NormalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		placeholder, ok := idParents[parts[i-1]]
		if !ok || parts[i] == "" {
			continue
		}
		// "messages/batchGet"-style verbs keep their name.
		if strings.Contains(parts[i], ":") || parts[i] == "batchGet" {
			continue
		}
		parts[i] = placeholder
	}
	return strings.Join(parts, "/")
}

// parseRetryAfter understands both delta-seconds and HTTP-date values.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return DefaultPenalty
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if secs <= 0 {
			return DefaultPenalty
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return DefaultPenalty
}

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/mailbox-sync/pkg/auth"
	"github.com/Sternrassler/mailbox-sync/pkg/cache"
	"github.com/Sternrassler/mailbox-sync/pkg/client"
	"github.com/Sternrassler/mailbox-sync/pkg/config"
	"github.com/Sternrassler/mailbox-sync/pkg/gmail"
	"github.com/Sternrassler/mailbox-sync/pkg/imapsource"
	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
	"github.com/Sternrassler/mailbox-sync/pkg/ratelimit"
)

// provider is a fully decorated pair of fetchers plus the resources they hold.
type provider struct {
	summaries mailbox.SummaryFetcher
	details   mailbox.DetailFetcher
	closers   []func() error
}

// Close releases resources in reverse order of acquisition.
func (p *provider) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i]()
	}
}

// newProvider builds the configured source and wraps it with retries and,
// when Redis is configured, the detail cache and shared quota.
func newProvider(ctx context.Context, cfg config.Config) (*provider, error) {
	p := &provider{}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		p.closers = append(p.closers, rdb.Close)
	}

	var (
		details     mailbox.DetailFetcher
		cacheUser   string
		cacheFormat string
	)

	switch cfg.Provider {
	case config.ProviderIMAP:
		src, err := imapsource.Dial(ctx, imapsource.Options{
			Host:     cfg.IMAP.Host,
			Port:     cfg.IMAP.Port,
			Username: cfg.IMAP.Username,
			Password: cfg.IMAP.Password,
			TLS:      cfg.IMAP.TLS,
			Insecure: cfg.IMAP.Insecure,
			Mailbox:  cfg.IMAP.Mailbox,
			PageSize: cfg.IMAP.PageSize,
		})
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, src.Close)
		p.summaries, details = src, src
		cacheUser, cacheFormat = cfg.IMAP.Username, "imap"

	default:
		authed, err := auth.NewHTTPClient(ctx, auth.Options{
			CredentialsFile: cfg.Gmail.CredentialsFile,
			TokenFile:       cfg.Gmail.TokenFile,
			Scopes:          gmail.Scopes,
		})
		if err != nil {
			p.Close()
			return nil, err
		}

		opts := gmail.Options{
			User:             cfg.Gmail.User,
			Query:            cfg.Gmail.Query,
			PageSize:         cfg.Gmail.PageSize,
			IncludeSpamTrash: cfg.Gmail.IncludeSpamTrash,
			LabelIDs:         cfg.Gmail.LabelIDs,
			Format:           cfg.Gmail.Format,
			Endpoint:         cfg.Gmail.Endpoint,
		}
		src, err := gmail.New(ctx, instrument(authed, cfg, nil), opts)
		if err != nil {
			p.Close()
			return nil, err
		}
		account := cfg.Gmail.User

		// Shared cache entries and quota buckets belong to a mailbox, so
		// the "me" alias is resolved to the owner's address first.
		if rdb != nil {
			account, err = resolveAccount(ctx, src, cfg.Gmail.User)
			if err != nil {
				p.Close()
				return nil, err
			}
			if units := cfg.Redis.QuotaUnitsPerSecond; units > 0 {
				limiter := ratelimit.NewTracker(rdb, logging.NewLogger("quota"), account, units)
				src, err = gmail.New(ctx, instrument(authed, cfg, limiter), opts)
				if err != nil {
					p.Close()
					return nil, err
				}
			}
		}
		p.summaries, details = src, src
		cacheUser, cacheFormat = account, src.Options().Format
	}

	if cfg.Sync.Retry {
		retrier := client.NewRetrier()
		if n := cfg.Sync.MaxAttempts; n > 0 {
			retrier.ConfigFor = func(class client.ErrorClass) client.RetryConfig {
				rc := client.RetryConfigForErrorClass(class)
				rc.MaxAttempts = n
				return rc
			}
		}
		p.summaries = client.NewRetryingSummaryFetcher(p.summaries, retrier)
		details = client.NewRetryingDetailFetcher(details, retrier)
	}

	// The cache sits outside the retries so hits never wait on backoff.
	if rdb != nil && cfg.Redis.CacheTTL > 0 {
		details = cache.NewCachingFetcher(details, cache.NewManager(rdb, cfg.Redis.CacheTTL), cacheUser, cacheFormat)
	}
	p.details = details

	return p, nil
}

// accountResolver reports the address of the mailbox being read.
type accountResolver interface {
	Account(ctx context.Context) (string, error)
}

// resolveAccount returns user unless it is the "me" alias, in which case
// the authenticated user's address is looked up.
func resolveAccount(ctx context.Context, src accountResolver, user string) (string, error) {
	if user != "" && user != "me" {
		return user, nil
	}
	addr, err := src.Account(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve gmail account: %w", err)
	}
	return addr, nil
}

// googleHTTPClient returns an authorized, instrumented client for the
// Google APIs. limiter may be nil.
func googleHTTPClient(ctx context.Context, cfg config.Config, scopes []string, limiter client.Limiter) (*http.Client, error) {
	authed, err := auth.NewHTTPClient(ctx, auth.Options{
		CredentialsFile: cfg.Gmail.CredentialsFile,
		TokenFile:       cfg.Gmail.TokenFile,
		Scopes:          scopes,
	})
	if err != nil {
		return nil, err
	}
	return instrument(authed, cfg, limiter), nil
}

// instrument wraps an authorized client with the shared transport stack.
func instrument(authed *http.Client, cfg config.Config, limiter client.Limiter) *http.Client {
	tcfg := client.DefaultTransportConfig(cfg.UserAgent)
	tcfg.Limiter = limiter
	return client.NewHTTPClient(authed, tcfg)
}

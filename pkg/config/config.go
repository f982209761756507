// Package config loads the mailsync configuration from environment
// variables. Every variable carries the MAILSYNC_ prefix, and nested
// sections add their own prefix (MAILSYNC_GMAIL_QUERY, MAILSYNC_SYNC_MAX_BATCH_SIZE).
package config

import (
	"time"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MAILSYNC_"

// Providers that can supply messages.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// Config is the top-level configuration.
type Config struct {
	// Provider selects the message source: gmail or imap.
	// Env: MAILSYNC_PROVIDER
	Provider string `env:"PROVIDER"`

	// UserAgent is sent with every provider request.
	// Env: MAILSYNC_USER_AGENT
	UserAgent string `env:"USER_AGENT"`

	Gmail   Gmail   `envPrefix:"GMAIL_"`
	IMAP    IMAP    `envPrefix:"IMAP_"`
	Sync    Sync    `envPrefix:"SYNC_"`
	Redis   Redis   `envPrefix:"REDIS_"`
	Log     Log     `envPrefix:"LOG_"`
	Metrics Metrics `envPrefix:"METRICS_"`
}

// Gmail configures the Gmail and People API clients.
type Gmail struct {
	// User whose mailbox is read; "me" is the authenticated user.
	User string `env:"USER"`

	// Query is a Gmail search expression.
	Query string `env:"QUERY"`

	// IncludeSpamTrash includes SPAM and TRASH in listings.
	IncludeSpamTrash bool `env:"INCLUDE_SPAM_TRASH"`

	// LabelIDs restricts listings to messages carrying all labels.
	LabelIDs []string `env:"LABEL_IDS" envSeparator:","`

	// Format is the detail format: full, metadata, minimal or raw.
	Format string `env:"FORMAT"`

	// PageSize is maxResults per list page (1-500).
	PageSize int64 `env:"PAGE_SIZE"`

	// CredentialsFile is the OAuth client secret JSON downloaded from
	// the Google Cloud console.
	CredentialsFile string `env:"CREDENTIALS_FILE"`

	// TokenFile holds the stored OAuth token.
	TokenFile string `env:"TOKEN_FILE"`

	// Endpoint overrides the API base URL of both the Gmail and People
	// clients.
	Endpoint string `env:"ENDPOINT"`
}

// IMAP configures the IMAP provider.
type IMAP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	TLS      bool   `env:"TLS"`
	Mailbox  string `env:"MAILBOX"`
	PageSize int    `env:"PAGE_SIZE"`

	// Insecure disables TLS and STARTTLS. Only for local servers.
	Insecure bool `env:"INSECURE"`
}

// Sync configures the batch executor and retries.
type Sync struct {
	// MaxBatchSize caps identities per batch (1-100).
	MaxBatchSize int `env:"MAX_BATCH_SIZE"`

	// MaxConcurrency caps in-flight detail fetches per batch.
	MaxConcurrency int `env:"MAX_CONCURRENCY"`

	// DetailTimeout bounds a single detail fetch, retries included.
	DetailTimeout time.Duration `env:"DETAIL_TIMEOUT"`

	// Retry enables the retrying fetcher decorators.
	Retry bool `env:"RETRY"`

	// MaxAttempts overrides the per-error-class attempt limits when
	// positive.
	MaxAttempts int `env:"MAX_ATTEMPTS"`
}

// Redis configures the optional detail cache and shared quota.
// Both are disabled when Addr is empty.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"`

	// CacheTTL is the lifetime of cached details. Zero disables the cache.
	CacheTTL time.Duration `env:"CACHE_TTL"`

	// QuotaUnitsPerSecond is the per-user quota budget. Zero disables
	// quota tracking.
	QuotaUnitsPerSecond int `env:"QUOTA_UNITS_PER_SECOND"`
}

// Log configures logging.
type Log struct {
	Level  string `env:"LEVEL"`
	Pretty bool   `env:"PRETTY"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Addr to serve /metrics on. Empty disables the listener.
	Addr string `env:"ADDR"`
}

// DefaultConfig returns the configuration used when no variables are set.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderGmail,
		UserAgent: "mailsync/0.1.0",
		Gmail: Gmail{
			User:            "me",
			Format:          "full",
			PageSize:        100,
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
		},
		IMAP: IMAP{
			Port:     993,
			TLS:      true,
			Mailbox:  "INBOX",
			PageSize: 100,
		},
		Sync: Sync{
			MaxBatchSize:   100,
			MaxConcurrency: 10,
			DetailTimeout:  2 * time.Minute,
			Retry:          true,
		},
		Redis: Redis{
			CacheTTL:            24 * time.Hour,
			QuotaUnitsPerSecond: 250,
		},
		Log: Log{
			Level: "info",
		},
	}
}

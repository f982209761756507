package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors.
var (
	ErrInvalidProvider = errors.New("invalid provider")
	ErrInvalidGmail    = errors.New("invalid gmail configuration")
	ErrInvalidIMAP     = errors.New("invalid imap configuration")
	ErrInvalidSync     = errors.New("invalid sync configuration")
	ErrInvalidRedis    = errors.New("invalid redis configuration")
	ErrInvalidLog      = errors.New("invalid log configuration")
)

var gmailFormats = map[string]bool{"full": true, "metadata": true, "minimal": true, "raw": true}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks the configuration before it is used at startup.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGmail:
		if err := c.Gmail.validate(); err != nil {
			return err
		}
	case ProviderIMAP:
		if err := c.IMAP.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidProvider, c.Provider, ProviderGmail, ProviderIMAP)
	}

	if c.Sync.MaxBatchSize < 1 || c.Sync.MaxBatchSize > 100 {
		return fmt.Errorf("%w: max batch size %d outside 1-100", ErrInvalidSync, c.Sync.MaxBatchSize)
	}
	if c.Sync.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max concurrency must be positive", ErrInvalidSync)
	}
	if c.Sync.DetailTimeout <= 0 {
		return fmt.Errorf("%w: detail timeout must be positive", ErrInvalidSync)
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidSync)
	}

	if c.Redis.CacheTTL < 0 || c.Redis.QuotaUnitsPerSecond < 0 {
		return fmt.Errorf("%w: negative ttl or quota", ErrInvalidRedis)
	}

	if !logLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidLog, c.Log.Level)
	}
	return nil
}

func (g *Gmail) validate() error {
	if g.User == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidGmail)
	}
	if g.PageSize < 1 || g.PageSize > 500 {
		return fmt.Errorf("%w: page size %d outside 1-500", ErrInvalidGmail, g.PageSize)
	}
	if !gmailFormats[g.Format] {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidGmail, g.Format)
	}
	if g.CredentialsFile == "" || g.TokenFile == "" {
		return fmt.Errorf("%w: credentials and token files are required", ErrInvalidGmail)
	}
	return nil
}

func (i *IMAP) validate() error {
	if i.Host == "" || i.Username == "" {
		return fmt.Errorf("%w: host and username are required", ErrInvalidIMAP)
	}
	if i.Port < 1 || i.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidIMAP, i.Port)
	}
	if i.PageSize < 1 {
		return fmt.Errorf("%w: page size must be positive", ErrInvalidIMAP)
	}
	return nil
}

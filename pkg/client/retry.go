package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass returns the appropriate retry configuration for an error class.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassRateLimit:
		// Gmail quota windows are per second but penalties last longer.
		return RetryConfig{
			MaxAttempts:       5,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// Retrier runs operations with exponential backoff per error class.
type Retrier struct {
	// ConfigFor selects the retry policy for the class of the last error.
	ConfigFor func(ErrorClass) RetryConfig

	logger zerolog.Logger
}

// NewRetrier creates a retrier using RetryConfigForErrorClass.
func NewRetrier() *Retrier {
	return &Retrier{
		ConfigFor: RetryConfigForErrorClass,
		logger:    logging.NewLogger("retrier"),
	}
}

// Do executes fn until it succeeds, fails with a non-retriable error, or the
// attempts for its error class are exhausted. It adds jitter to the backoff.
//
// Cancellation during a backoff returns ErrContextCancelled. A deadline that
// cannot accommodate the next backoff returns context.DeadlineExceeded
// wrapping the last attempt's error.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	var backoff time.Duration
	var lastClass ErrorClass

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Str("op", op).
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass := Classify(err)
		if !shouldRetry(errorClass) {
			return lastErr
		}

		config := r.ConfigFor(errorClass)
		if errorClass != lastClass {
			backoff = config.InitialBackoff
			lastClass = errorClass
		}

		if attempt >= config.MaxAttempts {
			retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
			r.logger.Warn().
				Str("op", op).
				Str("error_class", string(errorClass)).
				Int("max_attempts", config.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, lastErr)
		}

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		r.logger.Debug().
			Err(err).
			Str("op", op).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		// A deadline that expires before the next attempt ends the retries
		// with the last error instead of sleeping into it.
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < jitter {
			r.logger.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", jitter).
				Msg("Deadline too close for retry backoff")
			return fmt.Errorf("%w before attempt %d: %w", context.DeadlineExceeded, attempt+1, lastErr)
		}

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w before attempt %d: %w", ctx.Err(), attempt+1, lastErr)
			}
			r.logger.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
}

// RetryingSummaryFetcher retries failed page fetches.
type RetryingSummaryFetcher struct {
	inner   mailbox.SummaryFetcher
	retrier *Retrier
}

// NewRetryingSummaryFetcher wraps inner with retries.
func NewRetryingSummaryFetcher(inner mailbox.SummaryFetcher, retrier *Retrier) *RetryingSummaryFetcher {
	return &RetryingSummaryFetcher{inner: inner, retrier: retrier}
}

// List implements mailbox.SummaryFetcher.
func (f *RetryingSummaryFetcher) List(ctx context.Context, cursor mailbox.Cursor) (mailbox.Page, error) {
	var page mailbox.Page
	err := f.retrier.Do(ctx, "list", func(ctx context.Context) error {
		var err error
		page, err = f.inner.List(ctx, cursor)
		return err
	})
	return page, err
}

// RetryingDetailFetcher retries failed detail fetches.
type RetryingDetailFetcher struct {
	inner   mailbox.DetailFetcher
	retrier *Retrier
}

// retryingBatchFetcher additionally retries whole-batch failures.
type retryingBatchFetcher struct {
	RetryingDetailFetcher
	batcher mailbox.BatchDetailFetcher
}

// NewRetryingDetailFetcher wraps inner with retries. If inner implements
// mailbox.BatchDetailFetcher, so does the result.
func NewRetryingDetailFetcher(inner mailbox.DetailFetcher, retrier *Retrier) mailbox.DetailFetcher {
	base := RetryingDetailFetcher{inner: inner, retrier: retrier}
	if b, ok := inner.(mailbox.BatchDetailFetcher); ok {
		return &retryingBatchFetcher{RetryingDetailFetcher: base, batcher: b}
	}
	return &base
}

// Get implements mailbox.DetailFetcher.
func (f *RetryingDetailFetcher) Get(ctx context.Context, id mailbox.Identity) (mailbox.Detail, error) {
	var d mailbox.Detail
	err := f.retrier.Do(ctx, "get", func(ctx context.Context) error {
		var err error
		d, err = f.inner.Get(ctx, id)
		return err
	})
	return d, err
}

// GetBatch implements mailbox.BatchDetailFetcher. Only batch-level errors
// are retried; per-item errors are returned as they are.
func (f *retryingBatchFetcher) GetBatch(ctx context.Context, ids []mailbox.Identity) (map[mailbox.Identity]mailbox.Detail, map[mailbox.Identity]error, error) {
	var details map[mailbox.Identity]mailbox.Detail
	var errs map[mailbox.Identity]error
	err := f.retrier.Do(ctx, "get_batch", func(ctx context.Context) error {
		var err error
		details, errs, err = f.batcher.GetBatch(ctx, ids)
		return err
	})
	return details, errs, err
}

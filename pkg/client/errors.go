package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of provider errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 404 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNotFound represents a message that no longer exists.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 and quota-exceeded responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassCancelled represents caller cancellation.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// Gmail reports per-user quota exhaustion as 403 with one of these reasons.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// Classify maps an error to its class. Unknown errors return "".
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var remote *mailbox.RemoteError
	var transport *mailbox.TransportError

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorClassCancelled
	case errors.Is(err, mailbox.ErrNotFound):
		return ErrorClassNotFound
	case errors.As(err, &remote):
		if rateLimitReasons[remote.Reason] {
			return ErrorClassRateLimit
		}
		return ClassifyStatus(remote.StatusCode)
	case errors.As(err, &transport):
		return ErrorClassNetwork
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassNetwork
	default:
		return ""
	}
}

// ClassifyStatus maps an HTTP status code to its class.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusNotFound:
		return ErrorClassNotFound
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// client, not_found and cancelled never succeed on a second try
		return false
	}
}

package mailbox

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the message no longer exists remotely.
var ErrNotFound = errors.New("message not found")

// TransportError wraps network, TLS and authentication failures.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is a well-formed error response from the remote service.
type RemoteError struct {
	StatusCode int
	Reason     string
	Message    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("remote error (status %d, %s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("remote error (status %d): %s", e.StatusCode, e.Message)
}

// Failure records a detail fetch that did not succeed. The identity stays
// in the store with its summary.
type Failure struct {
	ID  Identity
	Err error
}

// Error implements the error interface.
func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.ID, f.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (f Failure) Unwrap() error {
	return f.Err
}

// IsNotFound reports whether err means the message is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

package mailbox

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransportError(t *testing.T) {
	inner := errors.New("connection refused")
	err := &TransportError{Op: "list", Err: inner}

	if got, want := err.Error(), "transport error during list: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestRemoteError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RemoteError
		expected string
	}{
		{
			name:     "with reason",
			err:      &RemoteError{StatusCode: 403, Reason: "rateLimitExceeded", Message: "slow down"},
			expected: "remote error (status 403, rateLimitExceeded): slow down",
		},
		{
			name:     "without reason",
			err:      &RemoteError{StatusCode: 500, Message: "backend error"},
			expected: "remote error (status 500): backend error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFailure(t *testing.T) {
	f := Failure{ID: "m2", Err: fmt.Errorf("get m2: %w", ErrNotFound)}

	if !IsNotFound(f) {
		t.Error("IsNotFound should see through Failure")
	}
	if got, want := f.Error(), "m2: get m2: message not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRecord(t *testing.T) {
	s := FromSummary(Summary{ID: "a", ThreadID: "t1"})
	if s.Fidelity != FidelitySummary || s.ThreadID() != "t1" {
		t.Errorf("summary record = %+v", s)
	}

	d := FromDetail(Detail{ID: "a", ThreadID: "t2", Headers: []Header{{Name: "Subject", Value: "hi"}}})
	if d.Fidelity != FidelityDetail || d.ThreadID() != "t2" {
		t.Errorf("detail record = %+v", d)
	}
	if got := d.Detail.Header("Subject"); got != "hi" {
		t.Errorf("Header(Subject) = %q, want hi", got)
	}
	if got := d.Detail.Header("From"); got != "" {
		t.Errorf("Header(From) = %q, want empty", got)
	}
	if FidelityDetail.String() != "detail" || FidelitySummary.String() != "summary" {
		t.Error("unexpected Fidelity strings")
	}
}

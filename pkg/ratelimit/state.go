// Package ratelimit implements a per-user request quota shared by every
// sync worker through Redis. Gmail meters usage in quota units per user per
// second; the tracker counts units in fixed one-second windows and blocks
// callers once the window is spent.
package ratelimit

import (
	"fmt"
	"time"
)

// Redis key layout for quota state.
const (
	RedisKeyPrefix = "mailsync:quota"
)

// Defaults matching Gmail's per-user limits.
const (
	// DefaultUnitsPerSecond is the per-user budget for one window.
	DefaultUnitsPerSecond = 250

	// UsageThresholdWarning marks a window as busy when this share of the
	// budget is used.
	UsageThresholdWarning = 0.8
)

// Window is the length of one accounting window.
const Window = time.Second

// windowKey returns the counter key for the window containing t.
func windowKey(user string, t time.Time) string {
	return fmt.Sprintf("%s:%s:%d", RedisKeyPrefix, user, t.Unix())
}

// penaltyKey holds the unix-millisecond deadline of an active penalty.
func penaltyKey(user string) string {
	return fmt.Sprintf("%s:%s:penalty", RedisKeyPrefix, user)
}

// windowEnd returns the start of the window after the one containing t.
func windowEnd(t time.Time) time.Time {
	return t.Truncate(Window).Add(Window)
}

// QuotaState is a snapshot of one user's quota.
type QuotaState struct {
	// User the quota belongs to.
	User string `json:"user"`

	// Limit is the budget of one window in units.
	Limit int `json:"limit"`

	// Used is the number of units consumed in the current window.
	Used int `json:"used"`

	// WindowEnd is when the current window closes.
	WindowEnd time.Time `json:"window_end"`

	// PenaltyUntil is set while the provider has told us to back off.
	PenaltyUntil time.Time `json:"penalty_until,omitempty"`

	// LastUpdate is when the snapshot was taken.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when usage is below the warning threshold and no
	// penalty is active.
	IsHealthy bool `json:"is_healthy"`
}

// Remaining returns the units still available in the current window.
func (s *QuotaState) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// IsPenalized reports whether a penalty is active at now.
func (s *QuotaState) IsPenalized(now time.Time) bool {
	return s.PenaltyUntil.After(now)
}

// NeedsWait reports whether a request for units would have to wait.
func (s *QuotaState) NeedsWait(units int, now time.Time) bool {
	return s.IsPenalized(now) || s.Used+units > s.Limit
}

// TimeUntilAvailable returns how long a caller must wait before quota is
// available again. Returns 0 if it is available now.
func (s *QuotaState) TimeUntilAvailable(now time.Time) time.Duration {
	var wait time.Duration
	if s.IsPenalized(now) {
		wait = s.PenaltyUntil.Sub(now)
	}
	if s.Used >= s.Limit {
		if d := s.WindowEnd.Sub(now); d > wait {
			wait = d
		}
	}
	if wait < 0 {
		return 0
	}
	return wait
}

// UpdateHealth updates the IsHealthy field from Used and PenaltyUntil.
func (s *QuotaState) UpdateHealth() {
	busy := float64(s.Used) >= float64(s.Limit)*UsageThresholdWarning
	s.IsHealthy = !busy && !s.IsPenalized(s.LastUpdate)
}

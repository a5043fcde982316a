// Package ratelimit implements upstream rate limit tracking and request gating
// for TheCatAPI. It monitors the X-RateLimit-Remaining and X-RateLimit-Reset
// headers, plus 429 Retry-After responses, so that every gallery process
// sharing an API key honours the same budget.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "catapi:rate_limit:remaining"
	RedisKeyResetTimestamp = "catapi:rate_limit:reset_timestamp"
	RedisKeyBlockedUntil   = "catapi:rate_limit:blocked_until"
	RedisKeyLastUpdate     = "catapi:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests when the remaining budget falls below it.
	RemainingThresholdCritical = 2

	// RemainingThresholdWarning logs a warning when the remaining budget falls below it.
	RemainingThresholdWarning = 10

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 50
)

// DefaultBlockDuration applies to a 429 without a usable Retry-After header.
const DefaultBlockDuration = 60 * time.Second

// defaultResetWindow applies when X-RateLimit-Remaining arrives without a reset.
const defaultResetWindow = 60 * time.Second

// RateLimitState represents the current upstream rate limit state.
// This state is shared across all client instances via Redis.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window resets.
	ResetAt time.Time `json:"reset_at"`

	// BlockedUntil is set after a 429 response; zero when not blocked.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy and no block is active.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// WindowExpired reports whether the tracked window has already reset.
func (s *RateLimitState) WindowExpired() bool {
	return !s.ResetAt.IsZero() && !time.Now().Before(s.ResetAt)
}

// IsBlocked reports whether a 429 block window is active.
func (s *RateLimitState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	if s.IsBlocked() {
		return true
	}
	return s.Remaining < RemainingThresholdCritical && !s.WindowExpired()
}

// NeedsWarning returns true if the budget is low but requests are still allowed.
func (s *RateLimitState) NeedsWarning() bool {
	return s.Remaining < RemainingThresholdWarning && !s.NeedsCriticalBlock() && !s.WindowExpired()
}

// TimeUntilReset returns the duration until requests are allowed again.
// Returns 0 if nothing is blocking.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	until := s.ResetAt
	if s.BlockedUntil.After(until) {
		until = s.BlockedUntil
	}
	duration := time.Until(until)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy && !s.IsBlocked()
}

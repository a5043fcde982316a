package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	catapiRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catapi_rate_limit_remaining",
		Help: "Number of requests remaining in the current TheCatAPI rate limit window",
	})

	catapiRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catapi_rate_limit_blocks_total",
		Help: "Total number of requests blocked by the rate limit gate",
	})

	catapiRateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catapi_rate_limit_hits_total",
		Help: "Total number of 429 responses received from TheCatAPI",
	})
)

// Tracker monitors upstream rate limits and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current rate limit state from Redis.
// Returns a default healthy state if no data exists in Redis.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	state := &RateLimitState{
		Remaining:  RemainingThresholdHealthy * 2,
		LastUpdate: time.Now(),
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	switch {
	case err == nil:
		state.Remaining = remaining
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	switch {
	case err == nil:
		state.ResetAt = time.Unix(resetTimestamp, 0)
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	blockedUntil, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	switch {
	case err == nil:
		state.BlockedUntil = time.Unix(blockedUntil, 0)
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	switch {
	case err == nil:
		var lastUpdate time.Time
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
		state.LastUpdate = lastUpdate
	case errors.Is(err, redis.Nil):
		t.logger.Debug().Msg("No rate limit state in Redis, assuming healthy")
	default:
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state.UpdateHealth()
	return state, nil
}

// UpdateFromResponse records the rate limit information of a TheCatAPI response.
// A 429 starts a block window of Retry-After seconds (DefaultBlockDuration if absent).
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) error {
	now := time.Now()
	pipe := t.redis.Pipeline()
	dirty := false

	if statusCode == http.StatusTooManyRequests {
		block := parseRetryAfter(headers.Get("Retry-After"), now)
		blockedUntil := now.Add(block)
		pipe.Set(ctx, RedisKeyBlockedUntil, blockedUntil.Unix(), block)
		dirty = true

		catapiRateLimitHitsTotal.Inc()
		t.logger.Warn().
			Dur("block", block).
			Time("blocked_until", blockedUntil).
			Msg("TheCatAPI rate limit hit - requests will be blocked")
	}

	if remainStr := headers.Get("X-RateLimit-Remaining"); remainStr != "" {
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
		}

		window := defaultResetWindow
		if resetStr := headers.Get("X-RateLimit-Reset"); resetStr != "" {
			resetSeconds, err := strconv.Atoi(resetStr)
			if err != nil {
				return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
			}
			window = time.Duration(resetSeconds) * time.Second
		}
		resetAt := now.Add(window)

		// Keys expire with the window so stale budgets never block.
		pipe.Set(ctx, RedisKeyRemaining, remain, window)
		pipe.Set(ctx, RedisKeyResetTimestamp, resetAt.Unix(), window)
		dirty = true

		catapiRateLimitRemaining.Set(float64(remain))

		logEvent := t.logger.Debug()
		switch {
		case remain < RemainingThresholdCritical:
			logEvent = t.logger.Error()
		case remain < RemainingThresholdWarning:
			logEvent = t.logger.Warn()
		}
		logEvent.
			Int("remaining", remain).
			Time("reset_at", resetAt).
			Msg("TheCatAPI rate limit state updated")
	}

	if !dirty {
		return nil
	}

	lastUpdateJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current state.
// Returns false while a block is active. Low budgets only log.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("TheCatAPI rate limit critical - blocking request")

		catapiRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsWarning() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("TheCatAPI rate limit low")
	}

	return true, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return DefaultBlockDuration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return DefaultBlockDuration
}

// Package ratelimit provides in-process rate limiting for booking
// attempts. It backs the booking rules engine's attempt-limit rule and
// the booking API's abuse guard.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	AttemptCooldown time.Duration // Minimum time between booking attempts (default: 2s)
	MaxPerMinute    int           // Max attempts per user+facility per minute (default: 10)
	MaxPerHour      int           // Max attempts per user+facility per hour (default: 60)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		AttemptCooldown: 2 * time.Second,
		MaxPerMinute:    10,
		MaxPerHour:      60,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry tracks request counts and timestamps per window.
type entry struct {
	minuteCount   int
	minuteFirstAt time.Time
	hourCount     int
	hourFirstAt   time.Time
	lastAt        time.Time
}

type key struct {
	userID     int64
	facilityID int64
}

// Limiter implements per-user booking attempt limiting. It satisfies the
// rules engine's AttemptLimiter interface via Check.
type Limiter struct {
	config  *Config
	clock   Clock
	mu      sync.RWMutex
	entries map[key]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		entries:       make(map[key]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Check reports whether a booking attempt is currently allowed for the
// user at the facility. It does NOT record the attempt; call Record once
// the attempt is actually made so rejected evaluations can re-check
// without consuming quota.
func (l *Limiter) Check(userID, facilityID int64) (bool, time.Duration) {
	result := l.CheckAttempt(userID, facilityID)
	return result.Allowed, result.RetryAfter
}

// CheckAttempt is Check with the full result, for callers that log the
// reason.
func (l *Limiter) CheckAttempt(userID, facilityID int64) LimitResult {
	l.startCleanup()
	now := l.clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	e := l.entries[key{userID, facilityID}]
	if e == nil {
		return LimitResult{Allowed: true}
	}

	if elapsed := now.Sub(e.lastAt); elapsed < l.config.AttemptCooldown {
		return LimitResult{
			Allowed:    false,
			RetryAfter: l.config.AttemptCooldown - elapsed,
			Reason:     "cooldown",
		}
	}
	if now.Sub(e.minuteFirstAt) < time.Minute && e.minuteCount >= l.config.MaxPerMinute {
		return LimitResult{
			Allowed:    false,
			RetryAfter: time.Minute - now.Sub(e.minuteFirstAt),
			Reason:     "minute_limit",
		}
	}
	if now.Sub(e.hourFirstAt) < time.Hour && e.hourCount >= l.config.MaxPerHour {
		return LimitResult{
			Allowed:    false,
			RetryAfter: time.Hour - now.Sub(e.hourFirstAt),
			Reason:     "hourly_limit",
		}
	}
	return LimitResult{Allowed: true}
}

// Record records a booking attempt. Call this after the evaluation runs
// regardless of outcome.
func (l *Limiter) Record(userID, facilityID int64) {
	now := l.clock.Now()
	k := key{userID, facilityID}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[k]
	if e == nil {
		l.entries[k] = &entry{
			minuteCount: 1, minuteFirstAt: now,
			hourCount: 1, hourFirstAt: now,
			lastAt: now,
		}
		return
	}
	if now.Sub(e.minuteFirstAt) >= time.Minute {
		e.minuteCount = 0
		e.minuteFirstAt = now
	}
	if now.Sub(e.hourFirstAt) >= time.Hour {
		e.hourCount = 0
		e.hourFirstAt = now
	}
	e.minuteCount++
	e.hourCount++
	e.lastAt = now
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.entries {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.entries, k)
		}
	}
}

// LogRateLimitExceeded logs a rate limit event.
func LogRateLimitExceeded(userID, facilityID int64, reason string, retryAfter time.Duration) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Int64("user_id", userID).
		Int64("facility_id", facilityID).
		Str("reason", reason).
		Dur("retry_after", retryAfter).
		Msg("Booking attempt rate limit exceeded")
}

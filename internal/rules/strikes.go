// internal/rules/strikes.go
package rules

import (
	"time"

	"github.com/openclub/courtbook/internal/models"
)

// LockoutPolicy is the threshold/duration policy behind ACC-009, shared
// with the admin strike tooling.
type LockoutPolicy struct {
	StrikeThreshold  int
	StrikeWindowDays int
	LockoutDays      int
}

// DefaultLockoutPolicy is the system default; facilities override it per
// rule config.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{StrikeThreshold: 3, StrikeWindowDays: 30, LockoutDays: 7}
}

// LockoutStatus is the derived strike standing for one user.
type LockoutStatus struct {
	Locked      bool
	Until       time.Time
	ActiveCount int
}

// ActiveStrikes filters to strikes that count toward a lockout: not
// revoked, not expired, and issued within the window ending at now.
func ActiveStrikes(strikes []models.AccountStrike, now time.Time, windowDays int) []models.AccountStrike {
	windowStart := now.AddDate(0, 0, -windowDays)
	var active []models.AccountStrike
	for _, s := range strikes {
		if s.Revoked {
			continue
		}
		if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
			continue
		}
		if s.IssuedAt.Before(windowStart) || s.IssuedAt.After(now) {
			continue
		}
		active = append(active, s)
	}
	return active
}

// EvaluateLockout derives the lockout decision. When the active count
// reaches the threshold the lockout runs from the most recent strike for
// LockoutDays; the user is locked only while now precedes that end.
func EvaluateLockout(strikes []models.AccountStrike, now time.Time, policy LockoutPolicy) LockoutStatus {
	active := ActiveStrikes(strikes, now, policy.StrikeWindowDays)
	status := LockoutStatus{ActiveCount: len(active)}
	if len(active) < policy.StrikeThreshold {
		return status
	}

	var mostRecent time.Time
	for _, s := range active {
		if s.IssuedAt.After(mostRecent) {
			mostRecent = s.IssuedAt
		}
	}
	status.Until = mostRecent.AddDate(0, 0, policy.LockoutDays)
	status.Locked = now.Before(status.Until)
	return status
}

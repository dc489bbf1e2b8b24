// internal/rules/household.go
package rules

import (
	"context"
	"fmt"

	"github.com/openclub/courtbook/internal/schedule"
)

// Household rules count across every member's bookings, not just the
// requester's. All three are no-ops for users without a household.

// HH-001: household member limit. Informational only, not enforced at
// booking time.
type householdMembersRule struct{ ruleInfo }

type householdMembersConfig struct {
	MaxMembers *int `json:"max_members"`
}

func (r householdMembersRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	if rc.Household == nil {
		return r.pass(), nil
	}
	var cfg householdMembersConfig
	decodeConfig(rc, r.code, &cfg)

	limit := rc.Household.MaxMembers
	if limit <= 0 {
		limit = 6
	}
	limit = intOr(cfg.MaxMembers, limit)

	if n := len(rc.Household.Members); n > limit {
		return r.warn(
			fmt.Sprintf("Household has %d members (limit %d)", n, limit),
			map[string]any{"members": n, "max_members": limit},
		), nil
	}
	return r.pass(), nil
}

// HH-002: household-wide active reservation cap, with an advisory warning
// as the household approaches it.
type householdActiveRule struct{ ruleInfo }

type householdActiveConfig struct {
	MaxActive       *int `json:"max_active"`
	WarnAtRemaining int  `json:"warn_at_remaining"`
}

func (r householdActiveRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	if rc.Household == nil {
		return r.pass(), nil
	}
	cfg := householdActiveConfig{WarnAtRemaining: 1}
	decodeConfig(rc, r.code, &cfg)

	limit := rc.Household.MaxActive
	if limit <= 0 {
		limit = 4
	}
	limit = intOr(cfg.MaxActive, limit)

	today := schedule.DateOnly(rc.Now)
	count := 0
	for _, b := range rc.HouseholdBookings {
		if !statusIn(b.Status, defaultCountStatuses) {
			continue
		}
		if schedule.DateOnly(b.Date).Before(today) {
			continue
		}
		count++
	}

	if count >= limit {
		return r.block(
			fmt.Sprintf("Your household already has %d active reservations (limit %d)", count, limit),
			map[string]any{"current": count, "max": limit},
		), nil
	}
	if remaining := limit - count - 1; remaining < cfg.WarnAtRemaining {
		return r.passWarn(
			fmt.Sprintf("Household is near its reservation cap (%d of %d after this booking)", count+1, limit),
			map[string]any{"current": count, "max": limit},
		), nil
	}
	return r.pass(), nil
}

// HH-003: household-wide weekly prime-time cap. No-op outside prime time.
type householdPrimeRule struct{ ruleInfo }

type householdPrimeConfig struct {
	PrimePerWeek *int `json:"prime_per_week"`
}

func (r householdPrimeRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	if !rc.IsPrimeTime || rc.Household == nil {
		return r.pass(), nil
	}
	var cfg householdPrimeConfig
	decodeConfig(rc, r.code, &cfg)

	limit := rc.Household.PrimePerWeek
	if limit <= 0 {
		limit = 4
	}
	limit = intOr(cfg.PrimePerWeek, limit)

	start, end := schedule.CalendarWeek(rc.Request.Date)
	count := 0
	for _, b := range rc.HouseholdBookings {
		if b.IsCancelled() || !b.IsPrime {
			continue
		}
		if !schedule.InWindow(b.Date, start, end) {
			continue
		}
		count++
	}

	if count >= limit {
		return r.block(
			fmt.Sprintf("Household prime time limit reached (%d of %d this week)", count, limit),
			map[string]any{"current": count, "max": limit},
		), nil
	}
	return r.pass(), nil
}

// internal/rules/account.go
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/schedule"
)

// Statuses that hold inventory and count toward account caps unless a
// facility configures otherwise.
var defaultCountStatuses = []string{
	models.BookingStatusPending,
	models.BookingStatusConfirmed,
	models.BookingStatusCheckedIn,
}

func statusIn(status string, set []string) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// weekWindow resolves the configured weekly window around the booking
// date: calendar Sun-Sat or rolling 7 days.
func weekWindow(window string, date time.Time) (time.Time, time.Time) {
	if window == "rolling" {
		return schedule.RollingWeek(date)
	}
	return schedule.CalendarWeek(date)
}

// ACC-001: too many active (today-or-later) reservations.
type maxActiveRule struct{ ruleInfo }

type maxActiveConfig struct {
	MaxActive     *int     `json:"max_active"`
	CountStatuses []string `json:"count_statuses"`
}

func (r maxActiveRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := maxActiveConfig{CountStatuses: defaultCountStatuses}
	decodeConfig(rc, r.code, &cfg)

	var tierMax *int
	if rc.Tier != nil {
		tierMax = rc.Tier.MaxActive
	}
	limit := resolveLimit(cfg.MaxActive, tierMax, 4)

	today := schedule.DateOnly(rc.Now)
	count := 0
	for _, b := range rc.UserBookings {
		if !statusIn(b.Status, cfg.CountStatuses) {
			continue
		}
		if schedule.DateOnly(b.Date).Before(today) {
			continue
		}
		count++
	}

	if count >= limit {
		return r.block(
			fmt.Sprintf("You already have %d active reservations (limit %d)", count, limit),
			map[string]any{"current": count, "max": limit},
		), nil
	}
	return r.pass(), nil
}

// ACC-002: weekly reservation count cap.
type maxPerWeekRule struct{ ruleInfo }

type maxPerWeekConfig struct {
	MaxPerWeek       *int   `json:"max_per_week"`
	Window           string `json:"window"`
	IncludeCancelled bool   `json:"include_cancelled"`
}

func (r maxPerWeekRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := maxPerWeekConfig{Window: "calendar"}
	decodeConfig(rc, r.code, &cfg)

	var tierMax *int
	if rc.Tier != nil {
		tierMax = rc.Tier.MaxPerWeek
	}
	limit := resolveLimit(cfg.MaxPerWeek, tierMax, 5)

	start, end := weekWindow(cfg.Window, rc.Request.Date)
	count := 0
	for _, b := range rc.UserBookings {
		if b.IsCancelled() && !cfg.IncludeCancelled {
			continue
		}
		if !schedule.InWindow(b.Date, start, end) {
			continue
		}
		count++
	}

	if count >= limit {
		return r.block(
			fmt.Sprintf("Weekly reservation limit reached (%d of %d)", count, limit),
			map[string]any{"current": count, "max": limit, "window": cfg.Window},
		), nil
	}
	return r.pass(), nil
}

// ACC-003: weekly minutes cap. Blocks when adding the candidate's
// duration would exceed the cap, not just when current usage already has.
type maxMinutesPerWeekRule struct{ ruleInfo }

type maxMinutesConfig struct {
	MaxMinutesPerWeek *int   `json:"max_minutes_per_week"`
	Window            string `json:"window"`
	IncludeCancelled  bool   `json:"include_cancelled"`
}

func (r maxMinutesPerWeekRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := maxMinutesConfig{Window: "calendar"}
	decodeConfig(rc, r.code, &cfg)

	var tierMax *int
	if rc.Tier != nil {
		tierMax = rc.Tier.MaxMinutesPerWeek
	}
	limit := resolveLimit(cfg.MaxMinutesPerWeek, tierMax, 480)

	start, end := weekWindow(cfg.Window, rc.Request.Date)
	used := 0
	for _, b := range rc.UserBookings {
		if b.IsCancelled() && !cfg.IncludeCancelled {
			continue
		}
		if !schedule.InWindow(b.Date, start, end) {
			continue
		}
		used += b.DurationMinutes()
	}

	requested := rc.Request.DurationMinutes()
	if used+requested > limit {
		return r.block(
			fmt.Sprintf("Booking would exceed your weekly court time (%d + %d of %d minutes)", used, requested, limit),
			map[string]any{"used_minutes": used, "requested_minutes": requested, "max_minutes": limit},
		), nil
	}
	return r.pass(), nil
}

// ACC-004: overlapping same-day booking. The grace shrink applies
// symmetrically to the existing booking's interval so a checkout overlap
// of a few minutes does not block.
type overlapRule struct{ ruleInfo }

type overlapConfig struct {
	GraceMinutes int `json:"grace_minutes"`
}

func (r overlapRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	var cfg overlapConfig
	decodeConfig(rc, r.code, &cfg)

	req := rc.Request
	for _, b := range rc.UserBookings {
		if b.IsCancelled() || !b.SameDay(req.Date) {
			continue
		}
		start := b.StartMinute + cfg.GraceMinutes
		end := b.EndMinute - cfg.GraceMinutes
		if start >= end {
			continue
		}
		if schedule.Overlaps(req.StartMinute, req.EndMinute, start, end) {
			return r.block(
				fmt.Sprintf("You already have a booking from %s to %s",
					schedule.FormatClock(b.StartMinute), schedule.FormatClock(b.EndMinute)),
				map[string]any{"conflicting_booking_id": b.ID},
			), nil
		}
	}
	return r.pass(), nil
}

// ACC-005: advance booking window. Integer day arithmetic against now, no
// rounding leniency.
type advanceWindowRule struct{ ruleInfo }

type advanceWindowConfig struct {
	MaxAdvanceDays *int `json:"max_advance_days"`
}

func (r advanceWindowRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	var cfg advanceWindowConfig
	decodeConfig(rc, r.code, &cfg)

	var tierMax *int
	if rc.Tier != nil {
		tierMax = rc.Tier.AdvanceBookingDays
	}
	limit := resolveLimit(cfg.MaxAdvanceDays, tierMax, 14)

	days := schedule.DaysBetween(rc.Now, rc.Request.Date)
	if days > limit {
		return r.block(
			fmt.Sprintf("Bookings open %d days in advance; this date is %d days out", limit, days),
			map[string]any{"days_ahead": days, "max_advance_days": limit},
		), nil
	}
	return r.pass(), nil
}

// ACC-006: minimum lead time before start.
type leadTimeRule struct{ ruleInfo }

type leadTimeConfig struct {
	MinLeadMinutes int `json:"min_lead_minutes"`
}

func (r leadTimeRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := leadTimeConfig{MinLeadMinutes: 30}
	decodeConfig(rc, r.code, &cfg)

	start := schedule.At(rc.Request.Date, rc.Request.StartMinute)
	lead := int(start.Sub(rc.Now).Minutes())
	if lead < cfg.MinLeadMinutes {
		return r.block(
			fmt.Sprintf("Bookings require at least %d minutes notice", cfg.MinLeadMinutes),
			map[string]any{"lead_minutes": lead, "min_lead_minutes": cfg.MinLeadMinutes},
		), nil
	}
	return r.pass(), nil
}

// ACC-007: cancellation cooldown. A cancellation only triggers the
// cooldown when it happened within cooldown_minutes of now, and, when
// only_if_within_minutes_of_start is set, when the cancelled booking's
// start was within that many minutes of the cancellation itself.
type cancelCooldownRule struct{ ruleInfo }

type cancelCooldownConfig struct {
	CooldownMinutes            int `json:"cooldown_minutes"`
	OnlyIfWithinMinutesOfStart int `json:"only_if_within_minutes_of_start"`
}

func (r cancelCooldownRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := cancelCooldownConfig{CooldownMinutes: 30}
	decodeConfig(rc, r.code, &cfg)

	for _, c := range rc.RecentCancellations {
		since := rc.Now.Sub(c.CancelledAt)
		if since < 0 || since > time.Duration(cfg.CooldownMinutes)*time.Minute {
			continue
		}
		if cfg.OnlyIfWithinMinutesOfStart > 0 && c.MinutesBeforeStart > cfg.OnlyIfWithinMinutesOfStart {
			continue
		}
		remaining := time.Duration(cfg.CooldownMinutes)*time.Minute - since
		return r.block(
			fmt.Sprintf("Please wait %d more minutes after cancelling before booking again", int(remaining.Minutes())+1),
			map[string]any{"cancelled_booking_id": c.BookingID, "cooldown_minutes": cfg.CooldownMinutes},
		), nil
	}
	return r.pass(), nil
}

// ACC-008: same-day reservation cap.
type maxPerDayRule struct{ ruleInfo }

type maxPerDayConfig struct {
	MaxPerDay int `json:"max_per_day"`
}

func (r maxPerDayRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := maxPerDayConfig{MaxPerDay: 2}
	decodeConfig(rc, r.code, &cfg)

	count := 0
	for _, b := range rc.UserBookings {
		if b.IsCancelled() || !b.SameDay(rc.Request.Date) {
			continue
		}
		count++
	}
	if count >= cfg.MaxPerDay {
		return r.block(
			fmt.Sprintf("Daily reservation limit reached (%d of %d)", count, cfg.MaxPerDay),
			map[string]any{"current": count, "max": cfg.MaxPerDay},
		), nil
	}
	return r.pass(), nil
}

// ACC-009: strike lockout.
type strikeLockoutRule struct{ ruleInfo }

type strikeLockoutConfig struct {
	StrikeThreshold  int `json:"strike_threshold"`
	StrikeWindowDays int `json:"strike_window_days"`
	LockoutDays      int `json:"lockout_days"`
}

func (r strikeLockoutRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	def := DefaultLockoutPolicy()
	cfg := strikeLockoutConfig{
		StrikeThreshold:  def.StrikeThreshold,
		StrikeWindowDays: def.StrikeWindowDays,
		LockoutDays:      def.LockoutDays,
	}
	decodeConfig(rc, r.code, &cfg)

	status := EvaluateLockout(rc.Strikes, rc.Now, LockoutPolicy{
		StrikeThreshold:  cfg.StrikeThreshold,
		StrikeWindowDays: cfg.StrikeWindowDays,
		LockoutDays:      cfg.LockoutDays,
	})
	if status.Locked {
		return r.block(
			fmt.Sprintf("Booking privileges suspended until %s", status.Until.Format("Jan 2 15:04")),
			map[string]any{"active_strikes": status.ActiveCount, "lockout_until": status.Until},
		), nil
	}
	return r.pass(), nil
}

// ACC-010: prime-time eligibility. No-op outside prime time.
type primeEligibilityRule struct{ ruleInfo }

type primeEligibilityConfig struct {
	RequireEligibleTier bool `json:"require_eligible_tier"`
}

func (r primeEligibilityRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	if !rc.IsPrimeTime {
		return r.pass(), nil
	}
	cfg := primeEligibilityConfig{RequireEligibleTier: true}
	decodeConfig(rc, r.code, &cfg)

	// A missing tier means "no tier restrictions": eligible.
	if cfg.RequireEligibleTier && rc.Tier != nil && !rc.Tier.PrimeTimeEligible {
		return r.block(
			fmt.Sprintf("Your %s membership does not include prime time booking", rc.Tier.Name),
			map[string]any{"tier": rc.Tier.Name},
		), nil
	}
	return r.pass(), nil
}

// ACC-011: booking-attempt rate limit. This is one of the two rules that
// performs a live lookup instead of reading the snapshot.
type rateLimitRule struct {
	ruleInfo
	engine *Engine
}

type rateLimitConfig struct {
	Enforce bool `json:"enforce"`
}

func (r rateLimitRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := rateLimitConfig{Enforce: true}
	decodeConfig(rc, r.code, &cfg)

	if !cfg.Enforce || r.engine.limiter == nil {
		return r.pass(), nil
	}
	allowed, retryAfter := r.engine.limiter.Check(rc.Request.UserID, rc.Request.FacilityID)
	if !allowed {
		return r.block(
			"Too many booking attempts, slow down",
			map[string]any{"retry_after_seconds": int(retryAfter.Seconds())},
		), nil
	}
	return r.pass(), nil
}

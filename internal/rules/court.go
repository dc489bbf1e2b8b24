// internal/rules/court.go
package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/schedule"
)

// operatingWindow resolves the court's hours for the requested day,
// falling back to facility-level hours when no court-day config exists.
func (rc *RuleContext) operatingWindow() (openMin, closeMin int) {
	if rc.DayConfig != nil {
		return rc.DayConfig.OpenMinute, rc.DayConfig.CloseMinute
	}
	return rc.Facility.OpenMinute, rc.Facility.CloseMinute
}

// CRT-001: court must be in a bookable status.
type courtStatusRule struct{ ruleInfo }

type courtStatusConfig struct {
	BookableStatuses []string `json:"bookable_statuses"`
}

func (r courtStatusRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := courtStatusConfig{BookableStatuses: []string{models.CourtStatusActive}}
	decodeConfig(rc, r.code, &cfg)

	if !statusIn(rc.Court.Status, cfg.BookableStatuses) {
		return r.block(
			fmt.Sprintf("Court %d is not available for booking", rc.Court.Number),
			map[string]any{"court_status": rc.Court.Status},
		), nil
	}
	return r.pass(), nil
}

// CRT-002: prime-time bookings have a shorter maximum duration.
type primeMaxDurationRule struct{ ruleInfo }

type primeMaxDurationConfig struct {
	MaxMinutes *int `json:"max_minutes"`
}

func (r primeMaxDurationRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	if !rc.IsPrimeTime {
		return r.pass(), nil
	}
	var cfg primeMaxDurationConfig
	decodeConfig(rc, r.code, &cfg)

	limit := 90
	if rc.DayConfig != nil && rc.DayConfig.PrimeMaxDurationMin != nil {
		limit = *rc.DayConfig.PrimeMaxDurationMin
	}
	limit = intOr(cfg.MaxMinutes, limit)

	if d := rc.Request.DurationMinutes(); d > limit {
		return r.block(
			fmt.Sprintf("Prime time bookings are limited to %d minutes", limit),
			map[string]any{"duration_minutes": d, "max_minutes": limit},
		), nil
	}
	return r.pass(), nil
}

// CRT-003: weekly per-user prime-time booking cap, tier-overridable.
type primeWeeklyCapRule struct{ ruleInfo }

type primeWeeklyCapConfig struct {
	PrimePerWeek *int `json:"prime_per_week"`
}

func (r primeWeeklyCapRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	if !rc.IsPrimeTime {
		return r.pass(), nil
	}
	var cfg primeWeeklyCapConfig
	decodeConfig(rc, r.code, &cfg)

	var tierCap *int
	if rc.Tier != nil {
		tierCap = rc.Tier.PrimePerWeek
	}
	limit := resolveLimit(cfg.PrimePerWeek, tierCap, 2)

	start, end := schedule.CalendarWeek(rc.Request.Date)
	count := 0
	for _, b := range rc.UserBookings {
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
			fmt.Sprintf("Weekly prime time limit reached (%d of %d)", count, limit),
			map[string]any{"current": count, "max": limit},
		), nil
	}
	return r.pass(), nil
}

// CRT-004: booking must fall inside operating hours.
type operatingHoursRule struct{ ruleInfo }

func (r operatingHoursRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	openMin, closeMin := rc.operatingWindow()
	req := rc.Request
	if !schedule.Within(req.StartMinute, req.EndMinute, openMin, closeMin) {
		return r.block(
			fmt.Sprintf("Court is open %s to %s on this day",
				schedule.FormatClock(openMin), schedule.FormatClock(closeMin)),
			map[string]any{
				"open":  schedule.FormatClock(openMin),
				"close": schedule.FormatClock(closeMin),
			},
		), nil
	}
	return r.pass(), nil
}

// CRT-005: slot-grid alignment and duration bounds.
type slotAlignmentRule struct{ ruleInfo }

type slotAlignmentConfig struct {
	SlotMinutes        *int `json:"slot_minutes"`
	MinDurationMinutes *int `json:"min_duration_minutes"`
	MaxDurationMinutes *int `json:"max_duration_minutes"`
}

func (r slotAlignmentRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	var cfg slotAlignmentConfig
	decodeConfig(rc, r.code, &cfg)

	slot, minDur, maxDur := 30, 30, 120
	if rc.DayConfig != nil {
		if rc.DayConfig.SlotMinutes > 0 {
			slot = rc.DayConfig.SlotMinutes
		}
		if rc.DayConfig.MinDurationMinutes > 0 {
			minDur = rc.DayConfig.MinDurationMinutes
		}
		if rc.DayConfig.MaxDurationMinutes > 0 {
			maxDur = rc.DayConfig.MaxDurationMinutes
		}
	}
	slot = intOr(cfg.SlotMinutes, slot)
	minDur = intOr(cfg.MinDurationMinutes, minDur)
	maxDur = intOr(cfg.MaxDurationMinutes, maxDur)

	openMin, _ := rc.operatingWindow()
	req := rc.Request
	if !schedule.AlignedToGrid(req.StartMinute, openMin, slot) {
		return r.block(
			fmt.Sprintf("Start time must fall on a %d-minute slot", slot),
			map[string]any{"start": schedule.FormatClock(req.StartMinute), "slot_minutes": slot},
		), nil
	}
	if d := req.DurationMinutes(); d < minDur || d > maxDur {
		return r.block(
			fmt.Sprintf("Bookings must be between %d and %d minutes", minDur, maxDur),
			map[string]any{"duration_minutes": d, "min_minutes": minDur, "max_minutes": maxDur},
		), nil
	}
	return r.pass(), nil
}

// CRT-006: blackout overlap, either a direct date range or a weekly
// recurrence matched against time-of-day.
type blackoutRule struct{ ruleInfo }

func (r blackoutRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	req := rc.Request
	for _, b := range rc.Blackouts {
		if b.CourtID != nil && *b.CourtID != req.CourtID {
			continue
		}
		if !blackoutApplies(b, req.Date) {
			continue
		}
		if !schedule.Overlaps(req.StartMinute, req.EndMinute, b.StartMinute, b.EndMinute) {
			continue
		}
		message := "Court unavailable during this time"
		if b.ReasonVisible && b.Reason != "" {
			message = fmt.Sprintf("Court unavailable: %s", b.Reason)
		}
		return r.block(message, map[string]any{"blackout_id": b.ID}), nil
	}
	return r.pass(), nil
}

func blackoutApplies(b models.CourtBlackout, date time.Time) bool {
	day := schedule.DateOnly(date)
	if day.Before(schedule.DateOnly(b.StartDate)) || day.After(schedule.DateOnly(b.EndDate)) {
		return false
	}
	if b.Recurrence == "" {
		return true
	}
	rule, err := schedule.ParseWeeklyRule(b.Recurrence)
	if err != nil {
		// Bad recurrence data never matches; surfaced at write time by
		// admin validation, logged here so operators notice legacy rows.
		log.Warn().
			Str("component", "rules_engine").
			Int64("blackout_id", b.ID).
			Err(err).
			Msg("Unparseable blackout recurrence")
		return false
	}
	return rule.Matches(b.StartDate, day)
}

// CRT-007: buffer-before/after collision against each existing court
// booking. Buffers expand the existing booking's interval.
type bufferRule struct{ ruleInfo }

type bufferConfig struct {
	BufferBeforeMinutes *int `json:"buffer_before_minutes"`
	BufferAfterMinutes  *int `json:"buffer_after_minutes"`
}

func (r bufferRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	var cfg bufferConfig
	decodeConfig(rc, r.code, &cfg)

	before, after := 0, 0
	if rc.DayConfig != nil {
		before = rc.DayConfig.BufferBeforeMinutes
		after = rc.DayConfig.BufferAfterMinutes
	}
	before = intOr(cfg.BufferBeforeMinutes, before)
	after = intOr(cfg.BufferAfterMinutes, after)
	if before == 0 && after == 0 {
		return r.pass(), nil
	}

	req := rc.Request
	for _, b := range rc.CourtBookings {
		if b.IsCancelled() {
			continue
		}
		if schedule.Overlaps(req.StartMinute, req.EndMinute, b.StartMinute-before, b.EndMinute+after) {
			return r.block(
				fmt.Sprintf("Bookings on this court need a %d-minute gap", maxInt(before, after)),
				map[string]any{"conflicting_booking_id": b.ID, "buffer_before": before, "buffer_after": after},
			), nil
		}
	}
	return r.pass(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CRT-008: allowed activities. Informational only: flagged as a warning,
// never blocks.
type allowedActivitiesRule struct{ ruleInfo }

type allowedActivitiesConfig struct {
	Activities []string `json:"activities"`
}

func (r allowedActivitiesRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	var cfg allowedActivitiesConfig
	decodeConfig(rc, r.code, &cfg)

	allowed := cfg.Activities
	if len(allowed) == 0 {
		allowed = rc.AllowedActivities
	}
	activity := rc.Request.ActivityType
	if activity == "" || len(allowed) == 0 || statusIn(activity, allowed) {
		return r.pass(), nil
	}
	return r.warn(
		fmt.Sprintf("%s is not listed for this court", activity),
		map[string]any{"activity": activity, "allowed": allowed},
	), nil
}

// CRT-009: sub-amenity concurrency. The second of the two live-query
// rules: counts active bookings on courts sharing the amenity.
type amenityConcurrencyRule struct {
	ruleInfo
	engine *Engine
}

type amenityConcurrencyConfig struct {
	MaxConcurrent int `json:"max_concurrent"`
}

func (r amenityConcurrencyRule) Evaluate(ctx context.Context, rc *RuleContext) (RuleResult, error) {
	if rc.Court.AmenityID == nil {
		return r.pass(), nil
	}
	cfg := amenityConcurrencyConfig{MaxConcurrent: 2}
	decodeConfig(rc, r.code, &cfg)

	req := rc.Request
	count, err := r.engine.reads.CountAmenityBookings(ctx, *rc.Court.AmenityID, req.Date, req.StartMinute, req.EndMinute)
	if err != nil {
		return RuleResult{}, transient("count amenity bookings", err)
	}
	if count >= cfg.MaxConcurrent {
		return r.block(
			"Shared equipment is fully booked for this time",
			map[string]any{"concurrent": count, "max_concurrent": cfg.MaxConcurrent},
		), nil
	}
	return r.pass(), nil
}

// CRT-010: cap on consecutive minutes a user can chain on one court in a
// day via back-to-back bookings.
type consecutiveLimitRule struct{ ruleInfo }

type consecutiveLimitConfig struct {
	MaxConsecutiveMinutes int `json:"max_consecutive_minutes"`
}

func (r consecutiveLimitRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	cfg := consecutiveLimitConfig{MaxConsecutiveMinutes: 180}
	decodeConfig(rc, r.code, &cfg)

	req := rc.Request
	type span struct{ start, end int }
	spans := []span{{req.StartMinute, req.EndMinute}}
	for _, b := range rc.UserBookings {
		if b.IsCancelled() || b.CourtID != req.CourtID || !b.SameDay(req.Date) {
			continue
		}
		spans = append(spans, span{b.StartMinute, b.EndMinute})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	// Walk the merged chains and measure the one containing the request.
	chainStart, chainEnd := spans[0].start, spans[0].end
	longest := 0
	for _, s := range spans[1:] {
		if s.start <= chainEnd {
			if s.end > chainEnd {
				chainEnd = s.end
			}
			continue
		}
		if chainStart <= req.StartMinute && req.EndMinute <= chainEnd {
			longest = chainEnd - chainStart
		}
		chainStart, chainEnd = s.start, s.end
	}
	if chainStart <= req.StartMinute && req.EndMinute <= chainEnd {
		longest = chainEnd - chainStart
	}

	if longest > cfg.MaxConsecutiveMinutes {
		return r.block(
			fmt.Sprintf("Consecutive court time is limited to %d minutes", cfg.MaxConsecutiveMinutes),
			map[string]any{"consecutive_minutes": longest, "max_minutes": cfg.MaxConsecutiveMinutes},
		), nil
	}
	return r.pass(), nil
}

// CRT-011: release-time gating. Bookings for a date open only days_ahead
// days prior at the configured local release time.
type releaseTimeRule struct{ ruleInfo }

type releaseTimeConfig struct {
	DaysAhead   *int   `json:"days_ahead"`
	ReleaseTime string `json:"release_time"`
}

func (r releaseTimeRule) Evaluate(_ context.Context, rc *RuleContext) (RuleResult, error) {
	var cfg releaseTimeConfig
	decodeConfig(rc, r.code, &cfg)

	daysAhead := 7
	releaseMinute := 7 * 60
	if rc.DayConfig != nil {
		if rc.DayConfig.ReleaseDaysAhead != nil {
			daysAhead = *rc.DayConfig.ReleaseDaysAhead
		}
		if rc.DayConfig.ReleaseMinute != nil {
			releaseMinute = *rc.DayConfig.ReleaseMinute
		}
	}
	daysAhead = intOr(cfg.DaysAhead, daysAhead)
	if cfg.ReleaseTime != "" {
		if m, err := schedule.ParseClock(cfg.ReleaseTime); err == nil {
			releaseMinute = m
		}
	}

	releaseAt := schedule.At(rc.Request.Date.AddDate(0, 0, -daysAhead), releaseMinute)
	if rc.Now.Before(releaseAt) {
		return r.block(
			fmt.Sprintf("This date opens for booking on %s", releaseAt.Format("Jan 2 at 15:04")),
			map[string]any{"release_at": releaseAt, "days_ahead": daysAhead},
		), nil
	}
	return r.pass(), nil
}

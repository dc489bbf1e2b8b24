// internal/rules/context.go
package rules

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/schedule"
)

// Strikes are fetched this far back; ACC-009 narrows to its
// strike_window_days, whose schema caps it at this same horizon so a
// configured window can never exceed the fetch.
const strikeLookbackDays = 180

// Cancellations older than this never matter to the ACC-007 cooldown.
const cancellationLookback = 24 * time.Hour

// RuleContext is the aggregate read-snapshot every evaluator consumes.
// It is built once per evaluation and never mutated by evaluators.
type RuleContext struct {
	Request BookingRequest
	Now     time.Time

	User     models.User
	Tier     *models.MembershipTier
	Facility models.Facility
	Court    models.Court

	// DayConfig is the court's config for the request's day of week, nil
	// when the court has none (CRT-004 then falls back to facility hours).
	DayConfig         *models.CourtOperatingConfig
	AllowedActivities []string
	RuleConfigs       []models.FacilityRuleConfig

	Household *models.HouseholdGroup

	UserBookings      []models.Booking
	CourtBookings     []models.Booking
	HouseholdBookings []models.Booking

	Strikes             []models.AccountStrike
	RecentCancellations []models.BookingCancellation
	Blackouts           []models.CourtBlackout

	// IsPrimeTime is computed once during context build and is ground
	// truth for every evaluator; none recompute it.
	IsPrimeTime bool
}

func (rc *RuleContext) tierID() *int64 {
	if rc.Tier == nil {
		return nil
	}
	return &rc.Tier.ID
}

// BuildRuleContext gathers every fact an evaluator might need. The
// independent reads fan out concurrently; household bookings follow in a
// data-dependent second phase. Unresolvable user, court, or facility
// surfaces as a NotFoundError.
func (e *Engine) BuildRuleContext(ctx context.Context, req BookingRequest) (*RuleContext, error) {
	rc := &RuleContext{Request: req}

	// Booking lists must cover the calendar week and the rolling week
	// around the requested date, plus everything from today forward.
	calStart, _ := schedule.CalendarWeek(req.Date)
	rollStart, _ := schedule.RollingWeek(req.Date)
	now := e.clock.Now()
	bookingsFrom := schedule.DateOnly(now)
	for _, candidate := range []time.Time{calStart, rollStart} {
		if candidate.Before(bookingsFrom) {
			bookingsFrom = candidate
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		user, err := e.reads.GetUser(gctx, req.UserID)
		if err != nil {
			return transient("load user", err)
		}
		rc.User = user
		return nil
	})
	g.Go(func() error {
		facility, err := e.reads.GetFacility(gctx, req.FacilityID)
		if err != nil {
			return transient("load facility", err)
		}
		rc.Facility = facility
		return nil
	})
	g.Go(func() error {
		court, err := e.reads.GetCourt(gctx, req.CourtID)
		if err != nil {
			return transient("load court", err)
		}
		rc.Court = court
		return nil
	})
	g.Go(func() error {
		tier, err := e.reads.GetUserTier(gctx, req.UserID, req.FacilityID)
		if err != nil {
			return transient("load user tier", err)
		}
		if tier == nil {
			tier, err = e.reads.GetDefaultTier(gctx, req.FacilityID)
			if err != nil {
				return transient("load default tier", err)
			}
		}
		rc.Tier = tier
		return nil
	})
	g.Go(func() error {
		configs, err := e.reads.ListCourtDayConfigs(gctx, req.CourtID)
		if err != nil {
			return transient("load court day configs", err)
		}
		dow := int(req.Date.Weekday())
		for i := range configs {
			if configs[i].DayOfWeek == dow {
				rc.DayConfig = &configs[i]
				break
			}
		}
		return nil
	})
	g.Go(func() error {
		activities, err := e.reads.ListCourtActivities(gctx, req.CourtID)
		if err != nil {
			return transient("load court activities", err)
		}
		rc.AllowedActivities = activities
		return nil
	})
	g.Go(func() error {
		configs, err := e.reads.ListRuleConfigs(gctx, req.FacilityID)
		if err != nil {
			return transient("load rule configs", err)
		}
		rc.RuleConfigs = configs
		return nil
	})
	g.Go(func() error {
		household, err := e.reads.GetHouseholdForUser(gctx, req.UserID, req.FacilityID)
		if err != nil {
			return transient("load household", err)
		}
		rc.Household = household
		return nil
	})
	g.Go(func() error {
		bookings, err := e.reads.ListUserBookings(gctx, req.UserID, req.FacilityID, bookingsFrom)
		if err != nil {
			return transient("load user bookings", err)
		}
		rc.UserBookings = bookings
		return nil
	})
	g.Go(func() error {
		bookings, err := e.reads.ListCourtBookings(gctx, req.CourtID, req.Date)
		if err != nil {
			return transient("load court bookings", err)
		}
		rc.CourtBookings = bookings
		return nil
	})
	g.Go(func() error {
		strikes, err := e.reads.ListStrikes(gctx, req.UserID, req.FacilityID, now.AddDate(0, 0, -strikeLookbackDays))
		if err != nil {
			return transient("load strikes", err)
		}
		rc.Strikes = strikes
		return nil
	})
	g.Go(func() error {
		cancellations, err := e.reads.ListRecentCancellations(gctx, req.UserID, req.FacilityID, now.Add(-cancellationLookback))
		if err != nil {
			return transient("load cancellations", err)
		}
		rc.RecentCancellations = cancellations
		return nil
	})
	g.Go(func() error {
		blackouts, err := e.reads.ListBlackouts(gctx, req.FacilityID, req.Date)
		if err != nil {
			return transient("load blackouts", err)
		}
		rc.Blackouts = blackouts
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Second phase: household bookings exist only when a household does.
	if rc.Household != nil {
		bookings, err := e.reads.ListHouseholdBookings(ctx, rc.Household.ID, bookingsFrom)
		if err != nil {
			return nil, transient("load household bookings", err)
		}
		rc.HouseholdBookings = bookings
	}

	// Request and booking dates arrive as UTC midnights; rebase them
	// alongside now into the facility's timezone so every evaluator does
	// its day and lead-time arithmetic on one wall clock.
	rc.Now = now
	if loc := facilityLocation(rc.Facility); loc != nil {
		rc.Now = now.In(loc)
		rc.Request.Date = schedule.DateIn(rc.Request.Date, loc)
		rebaseDates(rc.UserBookings, loc)
		rebaseDates(rc.CourtBookings, loc)
		rebaseDates(rc.HouseholdBookings, loc)
	}
	rc.IsPrimeTime = computePrimeTime(rc.DayConfig, req.StartMinute, req.EndMinute)
	return rc, nil
}

// facilityLocation resolves the facility's timezone, nil when unset or
// unknown. Callers then fall back to the clock's own location.
func facilityLocation(facility models.Facility) *time.Location {
	if facility.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(facility.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

func rebaseDates(bookings []models.Booking, loc *time.Location) {
	for i := range bookings {
		bookings[i].Date = schedule.DateIn(bookings[i].Date, loc)
	}
}

// computePrimeTime overlaps the candidate slot against the day's prime
// window. No day config or no prime window means not prime.
func computePrimeTime(cfg *models.CourtOperatingConfig, startMinute, endMinute int) bool {
	if cfg == nil || cfg.PrimeStartMinute == nil || cfg.PrimeEndMinute == nil {
		return false
	}
	return schedule.Overlaps(startMinute, endMinute, *cfg.PrimeStartMinute, *cfg.PrimeEndMinute)
}

// internal/rules/reads.go
package rules

import (
	"context"
	"time"

	"github.com/openclub/courtbook/internal/models"
)

// Reads is the engine's only view of persistent state. The production
// implementation lives in internal/store; tests use an in-memory fake.
// "Not found" for user/court/facility is an error; empty result sets for
// list methods are empty slices, not errors.
type Reads interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	GetFacility(ctx context.Context, facilityID int64) (models.Facility, error)
	GetCourt(ctx context.Context, courtID int64) (models.Court, error)
	GetBooking(ctx context.Context, bookingID int64) (models.Booking, error)

	// GetUserTier returns the user's explicit non-expired tier at the
	// facility, or nil when none exists.
	GetUserTier(ctx context.Context, userID, facilityID int64) (*models.MembershipTier, error)
	// GetDefaultTier returns the facility's default tier, or nil.
	GetDefaultTier(ctx context.Context, facilityID int64) (*models.MembershipTier, error)

	ListCourtDayConfigs(ctx context.Context, courtID int64) ([]models.CourtOperatingConfig, error)
	ListCourtActivities(ctx context.Context, courtID int64) ([]string, error)
	ListRuleConfigs(ctx context.Context, facilityID int64) ([]models.FacilityRuleConfig, error)

	// GetHouseholdForUser returns the user's household at the facility
	// with members populated, or nil when the user has none.
	GetHouseholdForUser(ctx context.Context, userID, facilityID int64) (*models.HouseholdGroup, error)

	ListUserBookings(ctx context.Context, userID, facilityID int64, from time.Time) ([]models.Booking, error)
	ListCourtBookings(ctx context.Context, courtID int64, date time.Time) ([]models.Booking, error)
	ListHouseholdBookings(ctx context.Context, householdID int64, from time.Time) ([]models.Booking, error)

	ListStrikes(ctx context.Context, userID, facilityID int64, since time.Time) ([]models.AccountStrike, error)
	ListRecentCancellations(ctx context.Context, userID, facilityID int64, since time.Time) ([]models.BookingCancellation, error)
	ListBlackouts(ctx context.Context, facilityID int64, date time.Time) ([]models.CourtBlackout, error)

	// CountAmenityBookings is the live inventory query behind CRT-009:
	// active bookings on courts sharing amenityID that overlap the given
	// window on date.
	CountAmenityBookings(ctx context.Context, amenityID int64, date time.Time, startMinute, endMinute int) (int, error)
}

// AttemptLimiter is the booking-attempt rate limit consulted by ACC-011.
// Check is read-only; recording attempts is the booking service's job.
type AttemptLimiter interface {
	Check(userID, facilityID int64) (allowed bool, retryAfter time.Duration)
}

// internal/models/models.go
package models

import (
	"encoding/json"
	"time"
)

// Booking statuses as stored. "Active" statuses are the ones that hold
// court inventory; which statuses count toward account caps is rule config.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCheckedIn = "checked_in"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
	BookingStatusNoShow    = "no_show"
)

const (
	CourtStatusActive      = "active"
	CourtStatusMaintenance = "maintenance"
	CourtStatusInactive    = "inactive"
)

// Strike types. Manual strikes are issued by staff from the admin console.
const (
	StrikeTypeNoShow     = "no_show"
	StrikeTypeLateCancel = "late_cancel"
	StrikeTypeViolation  = "violation"
	StrikeTypeManual     = "manual"
)

type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Status    string
}

type Facility struct {
	ID       int64
	Name     string
	Timezone string
	// Facility-level operating hours, used when a court has no
	// day-of-week config for the requested date.
	OpenMinute  int
	CloseMinute int
	// Cancellation policy defaults; courts may carry their own cutoff.
	LateCancelCutoffMinutes int
	LateCancelPenalty       string // "none", "strike", "fee"
	ContactPhone            string
	ReplyToEmail            string
}

type Court struct {
	ID         int64
	FacilityID int64
	Number     int64
	Name       string
	Status     string
	// Courts sharing a limited sub-amenity (ball machine, lighting bank)
	// reference the same amenity id.
	AmenityID *int64
	// Court-specific late-cancel cutoff override, nil to use the
	// facility policy.
	LateCancelCutoffMinutes *int
}

// MembershipTier is a per-facility privilege profile. Nil limit fields
// mean the tier does not constrain that dimension.
type MembershipTier struct {
	ID                 int64
	FacilityID         int64
	Name               string
	IsDefault          bool
	AdvanceBookingDays *int
	PrimeTimeEligible  bool
	PrimePerWeek       *int
	MaxActive          *int
	MaxPerWeek         *int
	MaxMinutesPerWeek  *int
}

// UserTier links a user to an explicit tier at a facility. An expired row
// is ignored during tier resolution.
type UserTier struct {
	UserID    int64
	TierID    int64
	ExpiresAt *time.Time
}

type HouseholdGroup struct {
	ID            int64
	FacilityID    int64
	StreetAddress string // normalized, see NormalizeStreetAddress
	MaxMembers    int
	MaxActive     int
	PrimePerWeek  int
	Members       []HouseholdMember
}

type HouseholdMember struct {
	UserID             int64
	IsPrimary          bool
	VerificationStatus string // "pending", "verified", "rejected"
}

// CourtOperatingConfig is one row per (court, day-of-week 0=Sunday..6).
type CourtOperatingConfig struct {
	CourtID             int64
	DayOfWeek           int
	OpenMinute          int
	CloseMinute         int
	PrimeStartMinute    *int
	PrimeEndMinute      *int
	PrimeMaxDurationMin *int
	SlotMinutes         int
	MinDurationMinutes  int
	MaxDurationMinutes  int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	ReleaseDaysAhead    *int
	ReleaseMinute       *int
}

// CourtBlackout closes one court (or every court at the facility when
// CourtID is nil) for maintenance or an event. A blackout either covers a
// direct datetime range or recurs weekly within its date range.
type CourtBlackout struct {
	ID          int64
	FacilityID  int64
	CourtID     *int64
	StartDate   time.Time
	EndDate     time.Time
	StartMinute int
	EndMinute   int
	// Recurrence holds a weekly RRULE subset ("FREQ=WEEKLY;BYDAY=MO,WE")
	// or is empty for a one-off range.
	Recurrence    string
	Reason        string
	ReasonVisible bool
}

// FacilityRuleConfig overrides one rule's system default for a facility.
// Absence of a row means the rule runs with its system default; disabling
// a rule requires an explicit row with Enabled=false.
type FacilityRuleConfig struct {
	ID         int64
	FacilityID int64
	RuleCode   string
	Enabled    bool
	Config     json.RawMessage
	// Optional scoping to a subset of courts or tiers. Empty = all.
	CourtIDs []int64
	TierIDs  []int64
}

// AppliesToCourt reports whether the config row is in scope for courtID.
func (c FacilityRuleConfig) AppliesToCourt(courtID int64) bool {
	if len(c.CourtIDs) == 0 {
		return true
	}
	for _, id := range c.CourtIDs {
		if id == courtID {
			return true
		}
	}
	return false
}

// AppliesToTier reports whether the config row is in scope for tierID.
// A nil tier matches only unscoped rows.
func (c FacilityRuleConfig) AppliesToTier(tierID *int64) bool {
	if len(c.TierIDs) == 0 {
		return true
	}
	if tierID == nil {
		return false
	}
	for _, id := range c.TierIDs {
		if id == *tierID {
			return true
		}
	}
	return false
}

type AccountStrike struct {
	ID         int64
	UserID     int64
	FacilityID int64
	Type       string
	Reason     string
	IssuedAt   time.Time
	ExpiresAt  *time.Time
	Revoked    bool
}

// BookingCancellation records how a booking was cancelled; ACC-007 reads
// the most recent rows for cooldown decisions.
type BookingCancellation struct {
	ID                 int64
	BookingID          int64
	UserID             int64
	FacilityID         int64
	CancelledAt        time.Time
	MinutesBeforeStart int
	IsLate             bool
	StrikeIssued       bool
	Reason             string
}

type Booking struct {
	ID           int64
	UserID       int64
	CourtID      int64
	FacilityID   int64
	Date         time.Time // midnight in the facility timezone
	StartMinute  int
	EndMinute    int
	Status       string
	BookingType  string
	ActivityType string
	// IsPrime is stamped at creation from the court's prime window so
	// weekly prime-time caps never re-derive historical windows.
	IsPrime   bool
	CreatedAt time.Time
}

// DurationMinutes returns the booked length in minutes.
func (b Booking) DurationMinutes() int {
	return b.EndMinute - b.StartMinute
}

// IsCancelled reports whether the booking no longer holds inventory.
func (b Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// SameDay reports whether the booking falls on the given calendar date.
func (b Booking) SameDay(date time.Time) bool {
	by, bm, bd := b.Date.Date()
	y, m, d := date.Date()
	return by == y && bm == m && bd == d
}

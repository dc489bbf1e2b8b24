// internal/store/store.go

// Package store is the SQL persistence layer. It implements the rules
// engine's Reads interface and the write paths used by the booking
// service and admin tooling.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openclub/courtbook/internal/db"
	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/rules"
)

const dateLayout = "2006-01-02"

// Store runs queries against a database handle or transaction.
type Store struct {
	q db.Querier
}

// New binds a store to the database.
func New(database *db.DB) *Store {
	return &Store{q: database}
}

// WithTx returns a store bound to the transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

func dateArg(t time.Time) string {
	return t.Format(dateLayout)
}

func (s *Store) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var u models.User
	err := s.q.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, phone, status
		 FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, &rules.NotFoundError{Kind: "user", ID: userID}
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) GetFacility(ctx context.Context, facilityID int64) (models.Facility, error) {
	var f models.Facility
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, timezone, open_minute, close_minute,
		        late_cancel_cutoff_minutes, late_cancel_penalty,
		        contact_phone, reply_to_email
		 FROM facilities WHERE id = ?`, facilityID,
	).Scan(&f.ID, &f.Name, &f.Timezone, &f.OpenMinute, &f.CloseMinute,
		&f.LateCancelCutoffMinutes, &f.LateCancelPenalty,
		&f.ContactPhone, &f.ReplyToEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Facility{}, &rules.NotFoundError{Kind: "facility", ID: facilityID}
	}
	if err != nil {
		return models.Facility{}, fmt.Errorf("get facility: %w", err)
	}
	return f, nil
}

// ListFacilities returns every facility, used by the scheduled jobs.
func (s *Store) ListFacilities(ctx context.Context) ([]models.Facility, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, timezone, open_minute, close_minute,
		        late_cancel_cutoff_minutes, late_cancel_penalty,
		        contact_phone, reply_to_email
		 FROM facilities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()

	var out []models.Facility
	for rows.Next() {
		var f models.Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.Timezone, &f.OpenMinute, &f.CloseMinute,
			&f.LateCancelCutoffMinutes, &f.LateCancelPenalty,
			&f.ContactPhone, &f.ReplyToEmail); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) GetCourt(ctx context.Context, courtID int64) (models.Court, error) {
	var c models.Court
	err := s.q.QueryRowContext(ctx,
		`SELECT id, facility_id, number, name, status, amenity_id, late_cancel_cutoff_minutes
		 FROM courts WHERE id = ?`, courtID,
	).Scan(&c.ID, &c.FacilityID, &c.Number, &c.Name, &c.Status, &c.AmenityID, &c.LateCancelCutoffMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Court{}, &rules.NotFoundError{Kind: "court", ID: courtID}
	}
	if err != nil {
		return models.Court{}, fmt.Errorf("get court: %w", err)
	}
	return c, nil
}

func (s *Store) GetBooking(ctx context.Context, bookingID int64) (models.Booking, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, facility_id, court_id, date, start_minute, end_minute,
		        status, booking_type, activity_type, is_prime, created_at
		 FROM bookings WHERE id = ?`, bookingID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, &rules.NotFoundError{Kind: "booking", ID: bookingID}
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *Store) GetUserTier(ctx context.Context, userID, facilityID int64) (*models.MembershipTier, error) {
	var t models.MembershipTier
	err := s.q.QueryRowContext(ctx,
		`SELECT t.id, t.facility_id, t.name, t.is_default, t.advance_booking_days,
		        t.prime_time_eligible, t.prime_per_week, t.max_active,
		        t.max_per_week, t.max_minutes_per_week
		 FROM user_tiers ut
		 JOIN membership_tiers t ON t.id = ut.tier_id
		 WHERE ut.user_id = ? AND ut.facility_id = ?
		   AND (ut.expires_at IS NULL OR ut.expires_at > CURRENT_TIMESTAMP)`,
		userID, facilityID,
	).Scan(&t.ID, &t.FacilityID, &t.Name, &t.IsDefault, &t.AdvanceBookingDays,
		&t.PrimeTimeEligible, &t.PrimePerWeek, &t.MaxActive,
		&t.MaxPerWeek, &t.MaxMinutesPerWeek)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user tier: %w", err)
	}
	return &t, nil
}

func (s *Store) GetDefaultTier(ctx context.Context, facilityID int64) (*models.MembershipTier, error) {
	var t models.MembershipTier
	err := s.q.QueryRowContext(ctx,
		`SELECT id, facility_id, name, is_default, advance_booking_days,
		        prime_time_eligible, prime_per_week, max_active,
		        max_per_week, max_minutes_per_week
		 FROM membership_tiers
		 WHERE facility_id = ? AND is_default = 1`, facilityID,
	).Scan(&t.ID, &t.FacilityID, &t.Name, &t.IsDefault, &t.AdvanceBookingDays,
		&t.PrimeTimeEligible, &t.PrimePerWeek, &t.MaxActive,
		&t.MaxPerWeek, &t.MaxMinutesPerWeek)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default tier: %w", err)
	}
	return &t, nil
}

func (s *Store) ListCourtDayConfigs(ctx context.Context, courtID int64) ([]models.CourtOperatingConfig, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT court_id, day_of_week, open_minute, close_minute,
		        prime_start_minute, prime_end_minute, prime_max_duration_min,
		        slot_minutes, min_duration_minutes, max_duration_minutes,
		        buffer_before_minutes, buffer_after_minutes,
		        release_days_ahead, release_minute
		 FROM court_operating_configs
		 WHERE court_id = ?
		 ORDER BY day_of_week`, courtID)
	if err != nil {
		return nil, fmt.Errorf("list day configs: %w", err)
	}
	defer rows.Close()

	var out []models.CourtOperatingConfig
	for rows.Next() {
		var c models.CourtOperatingConfig
		if err := rows.Scan(&c.CourtID, &c.DayOfWeek, &c.OpenMinute, &c.CloseMinute,
			&c.PrimeStartMinute, &c.PrimeEndMinute, &c.PrimeMaxDurationMin,
			&c.SlotMinutes, &c.MinDurationMinutes, &c.MaxDurationMinutes,
			&c.BufferBeforeMinutes, &c.BufferAfterMinutes,
			&c.ReleaseDaysAhead, &c.ReleaseMinute); err != nil {
			return nil, fmt.Errorf("scan day config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListCourtActivities(ctx context.Context, courtID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT activity FROM court_activities WHERE court_id = ? ORDER BY activity`, courtID)
	if err != nil {
		return nil, fmt.Errorf("list court activities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListRuleConfigs(ctx context.Context, facilityID int64) ([]models.FacilityRuleConfig, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, facility_id, rule_code, enabled, config
		 FROM facility_rule_configs
		 WHERE facility_id = ?
		 ORDER BY rule_code`, facilityID)
	if err != nil {
		return nil, fmt.Errorf("list rule configs: %w", err)
	}
	defer rows.Close()

	var out []models.FacilityRuleConfig
	for rows.Next() {
		var c models.FacilityRuleConfig
		var raw string
		if err := rows.Scan(&c.ID, &c.FacilityID, &c.RuleCode, &c.Enabled, &raw); err != nil {
			return nil, fmt.Errorf("scan rule config: %w", err)
		}
		c.Config = json.RawMessage(raw)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.loadRuleConfigScopes(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadRuleConfigScopes(ctx context.Context, c *models.FacilityRuleConfig) error {
	rows, err := s.q.QueryContext(ctx,
		`SELECT court_id FROM rule_config_courts WHERE rule_config_id = ?`, c.ID)
	if err != nil {
		return fmt.Errorf("list rule config courts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		c.CourtIDs = append(c.CourtIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tierRows, err := s.q.QueryContext(ctx,
		`SELECT tier_id FROM rule_config_tiers WHERE rule_config_id = ?`, c.ID)
	if err != nil {
		return fmt.Errorf("list rule config tiers: %w", err)
	}
	defer tierRows.Close()
	for tierRows.Next() {
		var id int64
		if err := tierRows.Scan(&id); err != nil {
			return err
		}
		c.TierIDs = append(c.TierIDs, id)
	}
	return tierRows.Err()
}

func (s *Store) GetHouseholdForUser(ctx context.Context, userID, facilityID int64) (*models.HouseholdGroup, error) {
	var h models.HouseholdGroup
	err := s.q.QueryRowContext(ctx,
		`SELECT g.id, g.facility_id, g.street_address, g.max_members, g.max_active, g.prime_per_week
		 FROM household_groups g
		 JOIN household_members m ON m.household_id = g.id
		 WHERE m.user_id = ? AND g.facility_id = ?`,
		userID, facilityID,
	).Scan(&h.ID, &h.FacilityID, &h.StreetAddress, &h.MaxMembers, &h.MaxActive, &h.PrimePerWeek)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT user_id, is_primary, verification_status
		 FROM household_members WHERE household_id = ?`, h.ID)
	if err != nil {
		return nil, fmt.Errorf("list household members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m models.HouseholdMember
		if err := rows.Scan(&m.UserID, &m.IsPrimary, &m.VerificationStatus); err != nil {
			return nil, fmt.Errorf("scan household member: %w", err)
		}
		h.Members = append(h.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &h, nil
}

const bookingColumns = `id, user_id, facility_id, court_id, date, start_minute, end_minute,
	status, booking_type, activity_type, is_prime, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.UserID, &b.FacilityID, &b.CourtID, &b.Date,
		&b.StartMinute, &b.EndMinute, &b.Status, &b.BookingType,
		&b.ActivityType, &b.IsPrime, &b.CreatedAt)
	return b, err
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ListUserBookings(ctx context.Context, userID, facilityID int64, from time.Time) ([]models.Booking, error) {
	return s.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_id = ? AND facility_id = ? AND date >= ?
		 ORDER BY date, start_minute`,
		userID, facilityID, dateArg(from))
}

func (s *Store) ListCourtBookings(ctx context.Context, courtID int64, date time.Time) ([]models.Booking, error) {
	return s.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE court_id = ? AND date = ?
		 ORDER BY start_minute`,
		courtID, dateArg(date))
}

// ListFacilityBookingsOnDates returns confirmed bookings for a facility
// on the given dates, for the reminder job's send window.
func (s *Store) ListFacilityBookingsOnDates(ctx context.Context, facilityID int64, dates []time.Time) ([]models.Booking, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings
		 WHERE facility_id = ? AND status = ? AND date IN (?`
	args := []any{facilityID, models.BookingStatusConfirmed, dateArg(dates[0])}
	for _, d := range dates[1:] {
		query += ", ?"
		args = append(args, dateArg(d))
	}
	query += `) ORDER BY date, start_minute`
	return s.queryBookings(ctx, query, args...)
}

func (s *Store) ListHouseholdBookings(ctx context.Context, householdID int64, from time.Time) ([]models.Booking, error) {
	return s.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE date >= ? AND user_id IN (
		     SELECT user_id FROM household_members WHERE household_id = ?)
		 ORDER BY date, start_minute`,
		dateArg(from), householdID)
}

func (s *Store) ListStrikes(ctx context.Context, userID, facilityID int64, since time.Time) ([]models.AccountStrike, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, facility_id, type, reason, issued_at, expires_at, revoked
		 FROM account_strikes
		 WHERE user_id = ? AND facility_id = ? AND issued_at >= ?
		 ORDER BY issued_at DESC`,
		userID, facilityID, since)
	if err != nil {
		return nil, fmt.Errorf("list strikes: %w", err)
	}
	defer rows.Close()

	var out []models.AccountStrike
	for rows.Next() {
		var st models.AccountStrike
		if err := rows.Scan(&st.ID, &st.UserID, &st.FacilityID, &st.Type, &st.Reason,
			&st.IssuedAt, &st.ExpiresAt, &st.Revoked); err != nil {
			return nil, fmt.Errorf("scan strike: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) ListRecentCancellations(ctx context.Context, userID, facilityID int64, since time.Time) ([]models.BookingCancellation, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, booking_id, user_id, facility_id, cancelled_at,
		        minutes_before_start, is_late, strike_issued, reason
		 FROM booking_cancellations
		 WHERE user_id = ? AND facility_id = ? AND cancelled_at >= ?
		 ORDER BY cancelled_at DESC`,
		userID, facilityID, since)
	if err != nil {
		return nil, fmt.Errorf("list cancellations: %w", err)
	}
	defer rows.Close()

	var out []models.BookingCancellation
	for rows.Next() {
		var c models.BookingCancellation
		if err := rows.Scan(&c.ID, &c.BookingID, &c.UserID, &c.FacilityID, &c.CancelledAt,
			&c.MinutesBeforeStart, &c.IsLate, &c.StrikeIssued, &c.Reason); err != nil {
			return nil, fmt.Errorf("scan cancellation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListBlackouts(ctx context.Context, facilityID int64, date time.Time) ([]models.CourtBlackout, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, facility_id, court_id, start_date, end_date,
		        start_minute, end_minute, recurrence, reason, reason_visible
		 FROM court_blackouts
		 WHERE facility_id = ? AND start_date <= ? AND end_date >= ?`,
		facilityID, dateArg(date), dateArg(date))
	if err != nil {
		return nil, fmt.Errorf("list blackouts: %w", err)
	}
	defer rows.Close()

	var out []models.CourtBlackout
	for rows.Next() {
		var b models.CourtBlackout
		if err := rows.Scan(&b.ID, &b.FacilityID, &b.CourtID, &b.StartDate, &b.EndDate,
			&b.StartMinute, &b.EndMinute, &b.Recurrence, &b.Reason, &b.ReasonVisible); err != nil {
			return nil, fmt.Errorf("scan blackout: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) CountAmenityBookings(ctx context.Context, amenityID int64, date time.Time, startMinute, endMinute int) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings b
		 JOIN courts c ON c.id = b.court_id
		 WHERE c.amenity_id = ? AND b.date = ?
		   AND b.status NOT IN ('cancelled', 'no_show')
		   AND b.start_minute < ? AND ? < b.end_minute`,
		amenityID, dateArg(date), endMinute, startMinute).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count amenity bookings: %w", err)
	}
	return count, nil
}

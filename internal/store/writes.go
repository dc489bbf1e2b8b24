// internal/store/writes.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/rules"
)

// CountCourtConflicts counts non-cancelled bookings on the court that
// overlap the half-open window. The booking service runs this inside the
// insert transaction as the final slot-conflict check.
func (s *Store) CountCourtConflicts(ctx context.Context, courtID int64, date time.Time, startMinute, endMinute int) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings
		 WHERE court_id = ? AND date = ?
		   AND status NOT IN ('cancelled', 'no_show')
		   AND start_minute < ? AND ? < end_minute`,
		courtID, dateArg(date), endMinute, startMinute).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count court conflicts: %w", err)
	}
	return count, nil
}

// CreateBooking inserts the booking and returns it with its id and
// created_at populated.
func (s *Store) CreateBooking(ctx context.Context, b models.Booking) (models.Booking, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO bookings
		 (user_id, facility_id, court_id, date, start_minute, end_minute,
		  status, booking_type, activity_type, is_prime)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.FacilityID, b.CourtID, dateArg(b.Date),
		b.StartMinute, b.EndMinute, b.Status, b.BookingType, b.ActivityType, b.IsPrime)
	if err != nil {
		return models.Booking{}, fmt.Errorf("create booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Booking{}, fmt.Errorf("create booking id: %w", err)
	}
	return s.GetBooking(ctx, id)
}

// UpdateBookingStatus transitions the booking's status.
func (s *Store) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id = ?`, status, bookingID)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if n == 0 {
		return &rules.NotFoundError{Kind: "booking", ID: bookingID}
	}
	return nil
}

// InsertCancellation records how a booking was cancelled.
func (s *Store) InsertCancellation(ctx context.Context, c models.BookingCancellation) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO booking_cancellations
		 (booking_id, user_id, facility_id, cancelled_at, minutes_before_start,
		  is_late, strike_issued, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.BookingID, c.UserID, c.FacilityID, c.CancelledAt, c.MinutesBeforeStart,
		c.IsLate, c.StrikeIssued, c.Reason)
	if err != nil {
		return 0, fmt.Errorf("insert cancellation: %w", err)
	}
	return res.LastInsertId()
}

// InsertStrike records an account strike.
func (s *Store) InsertStrike(ctx context.Context, st models.AccountStrike) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO account_strikes
		 (user_id, facility_id, type, reason, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		st.UserID, st.FacilityID, st.Type, st.Reason, st.IssuedAt, st.ExpiresAt)
	if err != nil {
		return 0, fmt.Errorf("insert strike: %w", err)
	}
	return res.LastInsertId()
}

// RevokeStrike marks a strike revoked so it stops counting toward
// lockouts.
func (s *Store) RevokeStrike(ctx context.Context, strikeID int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE account_strikes SET revoked = 1 WHERE id = ?`, strikeID)
	if err != nil {
		return fmt.Errorf("revoke strike: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke strike: %w", err)
	}
	if n == 0 {
		return &rules.NotFoundError{Kind: "strike", ID: strikeID}
	}
	return nil
}

// ExpireStrikes stamps an expiry on unexpired strikes older than the
// window. The scheduler runs this nightly so stale strikes stop counting
// even if the window math ever changes.
func (s *Store) ExpireStrikes(ctx context.Context, facilityID int64, before time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE account_strikes
		 SET expires_at = CURRENT_TIMESTAMP
		 WHERE facility_id = ? AND revoked = 0 AND expires_at IS NULL AND issued_at < ?`,
		facilityID, before)
	if err != nil {
		return 0, fmt.Errorf("expire strikes: %w", err)
	}
	return res.RowsAffected()
}

// FindOrCreateHousehold resolves the household for a street address,
// creating it on first sight. The address is normalized so spelling
// variants of one address land in the same group.
func (s *Store) FindOrCreateHousehold(ctx context.Context, facilityID int64, streetAddress string) (int64, error) {
	normalized := models.NormalizeStreetAddress(streetAddress)
	if normalized == "" {
		return 0, fmt.Errorf("street address is required")
	}

	var id int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id FROM household_groups WHERE facility_id = ? AND street_address = ?`,
		facilityID, normalized).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find household: %w", err)
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO household_groups (facility_id, street_address) VALUES (?, ?)`,
		facilityID, normalized)
	if err != nil {
		return 0, fmt.Errorf("create household: %w", err)
	}
	return res.LastInsertId()
}

// AddHouseholdMember enrolls a user in a household, replacing any prior
// membership row for the pair.
func (s *Store) AddHouseholdMember(ctx context.Context, householdID, userID int64, isPrimary bool) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, is_primary)
		 VALUES (?, ?, ?)
		 ON CONFLICT (household_id, user_id) DO UPDATE SET is_primary = excluded.is_primary`,
		householdID, userID, isPrimary)
	if err != nil {
		return fmt.Errorf("add household member: %w", err)
	}
	return nil
}

// InsertOverrideAudit persists an admin override for the audit trail.
func (s *Store) InsertOverrideAudit(ctx context.Context, bookingID int64, o rules.OverrideResult) (int64, error) {
	codes, err := json.Marshal(o.OverriddenCodes)
	if err != nil {
		return 0, fmt.Errorf("marshal overridden codes: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO rule_override_audits (booking_id, admin_id, reason, overridden_codes)
		 VALUES (?, ?, ?, ?)`,
		bookingID, o.AdminID, o.Reason, string(codes))
	if err != nil {
		return 0, fmt.Errorf("insert override audit: %w", err)
	}
	return res.LastInsertId()
}

// UpsertRuleConfig creates or replaces a facility's config row for a
// rule, including its court/tier scoping. Callers validate the config
// payload against the rule schema first.
func (s *Store) UpsertRuleConfig(ctx context.Context, c models.FacilityRuleConfig) (int64, error) {
	if len(c.Config) == 0 {
		c.Config = json.RawMessage(`{}`)
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO facility_rule_configs (facility_id, rule_code, enabled, config, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (facility_id, rule_code)
		 DO UPDATE SET enabled = excluded.enabled, config = excluded.config,
		               updated_at = CURRENT_TIMESTAMP`,
		c.FacilityID, c.RuleCode, c.Enabled, string(c.Config))
	if err != nil {
		return 0, fmt.Errorf("upsert rule config: %w", err)
	}

	id := c.ID
	if id == 0 {
		if id, err = res.LastInsertId(); err != nil || id == 0 {
			// Upsert of an existing row: look the id up.
			err = s.q.QueryRowContext(ctx,
				`SELECT id FROM facility_rule_configs WHERE facility_id = ? AND rule_code = ?`,
				c.FacilityID, c.RuleCode).Scan(&id)
			if err != nil {
				return 0, fmt.Errorf("upsert rule config id: %w", err)
			}
		}
	}

	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM rule_config_courts WHERE rule_config_id = ?`, id); err != nil {
		return 0, fmt.Errorf("reset rule config courts: %w", err)
	}
	for _, courtID := range c.CourtIDs {
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO rule_config_courts (rule_config_id, court_id) VALUES (?, ?)`,
			id, courtID); err != nil {
			return 0, fmt.Errorf("insert rule config court: %w", err)
		}
	}
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM rule_config_tiers WHERE rule_config_id = ?`, id); err != nil {
		return 0, fmt.Errorf("reset rule config tiers: %w", err)
	}
	for _, tierID := range c.TierIDs {
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO rule_config_tiers (rule_config_id, tier_id) VALUES (?, ?)`,
			id, tierID); err != nil {
			return 0, fmt.Errorf("insert rule config tier: %w", err)
		}
	}
	return id, nil
}

// DeleteRuleConfig removes a facility's config row, returning the rule
// to its system default.
func (s *Store) DeleteRuleConfig(ctx context.Context, facilityID int64, ruleCode string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM facility_rule_configs WHERE facility_id = ? AND rule_code = ?`,
		facilityID, ruleCode)
	if err != nil {
		return fmt.Errorf("delete rule config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule config: %w", err)
	}
	if n == 0 {
		return ErrNoRuleConfig
	}
	return nil
}

// ErrNoRuleConfig reports a delete for a rule the facility never
// configured.
var ErrNoRuleConfig = errors.New("rule config not found")

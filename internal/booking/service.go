// internal/booking/service.go

// Package booking orchestrates reservation writes around the rules
// engine: evaluate, then insert under a transaction with a final
// slot-conflict check, plus the cancellation and override paths.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclub/courtbook/internal/db"
	"github.com/openclub/courtbook/internal/email"
	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/ratelimit"
	"github.com/openclub/courtbook/internal/rules"
	"github.com/openclub/courtbook/internal/schedule"
	"github.com/openclub/courtbook/internal/store"
)

// ErrSlotTaken reports a conflict detected inside the insert
// transaction: another booking won the slot between evaluation and
// commit.
var ErrSlotTaken = errors.New("slot already booked")

// ErrBlocked reports a denied evaluation. Callers surface the
// evaluation result alongside it.
var ErrBlocked = errors.New("booking blocked by policy")

// Service owns the booking write paths.
type Service struct {
	database *db.DB
	store    *store.Store
	engine   *rules.Engine
	limiter  *ratelimit.Limiter
	sender   email.EmailSender
	logger   zerolog.Logger
}

// New assembles the service. sender may be nil when email is disabled.
func New(database *db.DB, st *store.Store, engine *rules.Engine, limiter *ratelimit.Limiter, sender email.EmailSender) *Service {
	return &Service{
		database: database,
		store:    st,
		engine:   engine,
		limiter:  limiter,
		sender:   sender,
		logger:   log.With().Str("component", "booking_service").Logger(),
	}
}

// CreateResult is the outcome of a create attempt. Booking is zero
// unless Evaluation.Allowed (or the override path ran).
type CreateResult struct {
	Booking    models.Booking
	Evaluation rules.EvaluationResult
}

// Create evaluates the request and, when allowed, persists the booking.
// The evaluation result is returned even on denial so the caller can
// show every failed rule.
func (s *Service) Create(ctx context.Context, req rules.BookingRequest) (CreateResult, error) {
	rc, err := s.engine.BuildRuleContext(ctx, req)
	if err != nil {
		return CreateResult{}, err
	}
	eval, err := s.engine.Evaluate(ctx, rc)
	if err != nil {
		return CreateResult{}, err
	}
	// Record only after the evaluation runs so the attempt-limit rule
	// never counts the attempt it is checking.
	if s.limiter != nil {
		s.limiter.Record(req.UserID, req.FacilityID)
	}
	if !eval.Allowed {
		return CreateResult{Evaluation: eval}, ErrBlocked
	}

	booking, err := s.insert(ctx, req, rc.IsPrimeTime)
	if err != nil {
		return CreateResult{Evaluation: eval}, err
	}

	s.sendConfirmation(ctx, rc, booking)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("user_id", req.UserID).
		Int64("court_id", req.CourtID).
		Bool("is_prime", booking.IsPrime).
		Msg("Booking created")
	return CreateResult{Booking: booking, Evaluation: eval}, nil
}

// OverrideCreateResult pairs the created booking with the override audit.
type OverrideCreateResult struct {
	Booking  models.Booking
	Override rules.OverrideResult
}

// CreateWithOverride runs the privileged path: the booking is created
// regardless of blockers, and the override (admin, reason, overridden
// codes) is persisted in the same transaction as the booking.
func (s *Service) CreateWithOverride(ctx context.Context, req rules.BookingRequest, o rules.Override) (OverrideCreateResult, error) {
	rc, err := s.engine.BuildRuleContext(ctx, req)
	if err != nil {
		return OverrideCreateResult{}, err
	}
	override, err := s.engine.EvaluateWithOverride(ctx, rc, o)
	if err != nil {
		return OverrideCreateResult{}, err
	}

	var booking models.Booking
	err = s.database.RunInTx(ctx, func(tx *sql.Tx) error {
		txStore := s.store.WithTx(tx)
		conflicts, err := txStore.CountCourtConflicts(ctx, req.CourtID, req.Date, req.StartMinute, req.EndMinute)
		if err != nil {
			return err
		}
		if conflicts > 0 {
			return ErrSlotTaken
		}
		booking, err = txStore.CreateBooking(ctx, newBooking(req, rc.IsPrimeTime))
		if err != nil {
			return err
		}
		_, err = txStore.InsertOverrideAudit(ctx, booking.ID, override)
		return err
	})
	if err != nil {
		return OverrideCreateResult{}, err
	}

	s.sendConfirmation(ctx, rc, booking)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("admin_id", o.AdminID).
		Strs("overridden_codes", override.OverriddenCodes).
		Msg("Booking created with override")
	return OverrideCreateResult{Booking: booking, Override: override}, nil
}

// CancelResult is the outcome of a cancellation.
type CancelResult struct {
	Result   rules.CancellationResult
	StrikeID int64
}

// Cancel evaluates and performs a cancellation. When the policy calls
// for a strike it is issued in the same transaction, exactly once.
func (s *Service) Cancel(ctx context.Context, req rules.CancellationRequest) (CancelResult, error) {
	result, err := s.engine.EvaluateCancellation(ctx, req)
	if err != nil {
		return CancelResult{}, err
	}
	if !result.Allowed {
		return CancelResult{Result: result}, nil
	}

	booking, err := s.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		return CancelResult{}, err
	}
	facility, err := s.store.GetFacility(ctx, req.FacilityID)
	if err != nil {
		return CancelResult{}, err
	}

	var strikeID int64
	now := time.Now().UTC()
	err = s.database.RunInTx(ctx, func(tx *sql.Tx) error {
		txStore := s.store.WithTx(tx)
		if err := txStore.UpdateBookingStatus(ctx, req.BookingID, models.BookingStatusCancelled); err != nil {
			return err
		}
		if result.StrikeWillBeIssued {
			strikeID, err = txStore.InsertStrike(ctx, models.AccountStrike{
				UserID:     req.UserID,
				FacilityID: req.FacilityID,
				Type:       models.StrikeTypeLateCancel,
				Reason:     fmt.Sprintf("Late cancellation of booking %d", req.BookingID),
				IssuedAt:   now,
			})
			if err != nil {
				return err
			}
		}
		_, err = txStore.InsertCancellation(ctx, models.BookingCancellation{
			BookingID:          req.BookingID,
			UserID:             req.UserID,
			FacilityID:         req.FacilityID,
			CancelledAt:        now,
			MinutesBeforeStart: result.MinutesBeforeStart,
			IsLate:             result.IsLateCancel,
			StrikeIssued:       result.StrikeWillBeIssued,
			Reason:             req.Reason,
		})
		return err
	})
	if err != nil {
		return CancelResult{}, err
	}

	s.sendCancellation(ctx, facility, booking, result)
	s.logger.Info().
		Int64("booking_id", req.BookingID).
		Int64("user_id", req.UserID).
		Bool("is_late", result.IsLateCancel).
		Bool("strike_issued", result.StrikeWillBeIssued).
		Msg("Booking cancelled")
	return CancelResult{Result: result, StrikeID: strikeID}, nil
}

func (s *Service) insert(ctx context.Context, req rules.BookingRequest, isPrime bool) (models.Booking, error) {
	var booking models.Booking
	err := s.database.RunInTx(ctx, func(tx *sql.Tx) error {
		txStore := s.store.WithTx(tx)
		conflicts, err := txStore.CountCourtConflicts(ctx, req.CourtID, req.Date, req.StartMinute, req.EndMinute)
		if err != nil {
			return err
		}
		if conflicts > 0 {
			return ErrSlotTaken
		}
		booking, err = txStore.CreateBooking(ctx, newBooking(req, isPrime))
		return err
	})
	return booking, err
}

func newBooking(req rules.BookingRequest, isPrime bool) models.Booking {
	bookingType := req.BookingType
	if bookingType == "" {
		bookingType = "reservation"
	}
	return models.Booking{
		UserID:       req.UserID,
		FacilityID:   req.FacilityID,
		CourtID:      req.CourtID,
		Date:         schedule.DateOnly(req.Date),
		StartMinute:  req.StartMinute,
		EndMinute:    req.EndMinute,
		Status:       models.BookingStatusConfirmed,
		BookingType:  bookingType,
		ActivityType: req.ActivityType,
		IsPrime:      isPrime,
	}
}

func (s *Service) sendConfirmation(ctx context.Context, rc *rules.RuleContext, booking models.Booking) {
	if s.sender == nil {
		return
	}
	details := email.NewBookingDetails(rc.Facility, rc.Court, booking)
	policy := fmt.Sprintf("Cancel at least %d minutes before start to avoid a penalty.",
		rc.Facility.LateCancelCutoffMinutes)
	email.SendConfirmationEmail(ctx, s.store, s.sender, booking.UserID,
		email.BuildBookingConfirmation(details, policy), &s.logger)
}

func (s *Service) sendCancellation(ctx context.Context, facility models.Facility, booking models.Booking, result rules.CancellationResult) {
	if s.sender == nil {
		return
	}
	court, err := s.store.GetCourt(ctx, booking.CourtID)
	if err != nil {
		s.logger.Error().Err(err).Int64("court_id", booking.CourtID).Msg("Failed to load court for cancellation email")
		return
	}
	details := email.NewBookingDetails(facility, court, booking)
	email.SendCancellationEmail(ctx, s.store, s.sender, booking.UserID,
		email.BuildCancellationEmail(details, email.CancellationNotice{
			IsLate:       result.IsLateCancel,
			StrikeIssued: result.StrikeWillBeIssued,
		}),
		email.ResolveFromAddress(facility), &s.logger)
}

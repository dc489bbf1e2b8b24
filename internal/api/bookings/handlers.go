// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclub/courtbook/internal/api/apiutil"
	"github.com/openclub/courtbook/internal/booking"
	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/ratelimit"
	"github.com/openclub/courtbook/internal/rules"
	"github.com/openclub/courtbook/internal/schedule"
)

var (
	service     *booking.Service
	engine      *rules.Engine
	limiter     *ratelimit.Limiter
	initOnce    sync.Once
	initialized bool
)

const bookingQueryTimeout = 10 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *booking.Service, eng *rules.Engine, lim *ratelimit.Limiter) {
	if svc == nil || eng == nil {
		return
	}
	initOnce.Do(func() {
		service = svc
		engine = eng
		limiter = lim
		initialized = true
	})
}

type bookingRequestBody struct {
	UserID       int64  `json:"user_id"`
	FacilityID   int64  `json:"facility_id"`
	CourtID      int64  `json:"court_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	BookingType  string `json:"booking_type,omitempty"`
	ActivityType string `json:"activity_type,omitempty"`
}

type overrideRequestBody struct {
	bookingRequestBody
	AdminID   int64    `json:"admin_id"`
	Reason    string   `json:"reason"`
	RuleCodes []string `json:"rule_codes,omitempty"`
}

type cancelRequestBody struct {
	BookingID  int64  `json:"booking_id"`
	UserID     int64  `json:"user_id"`
	FacilityID int64  `json:"facility_id"`
	Reason     string `json:"reason,omitempty"`
}

func decodeBookingRequest(body bookingRequestBody) (rules.BookingRequest, error) {
	if body.UserID <= 0 {
		return rules.BookingRequest{}, apiutil.FieldError{Field: "user_id", Reason: "must be a positive integer"}
	}
	if body.FacilityID <= 0 {
		return rules.BookingRequest{}, apiutil.FieldError{Field: "facility_id", Reason: "must be a positive integer"}
	}
	if body.CourtID <= 0 {
		return rules.BookingRequest{}, apiutil.FieldError{Field: "court_id", Reason: "must be a positive integer"}
	}
	date, err := apiutil.ParseDate(body.Date, "date")
	if err != nil {
		return rules.BookingRequest{}, err
	}
	start, err := schedule.ParseClock(strings.TrimSpace(body.StartTime))
	if err != nil {
		return rules.BookingRequest{}, apiutil.FieldError{Field: "start_time", Reason: "must be HH:MM"}
	}
	end, err := schedule.ParseClock(strings.TrimSpace(body.EndTime))
	if err != nil {
		return rules.BookingRequest{}, apiutil.FieldError{Field: "end_time", Reason: "must be HH:MM"}
	}
	if end <= start {
		return rules.BookingRequest{}, apiutil.FieldError{Field: "end_time", Reason: "must be after start_time"}
	}
	return rules.BookingRequest{
		UserID:       body.UserID,
		FacilityID:   body.FacilityID,
		CourtID:      body.CourtID,
		Date:         date,
		StartMinute:  start,
		EndMinute:    end,
		BookingType:  strings.TrimSpace(body.BookingType),
		ActivityType: strings.TrimSpace(body.ActivityType),
	}, nil
}

func checkAttemptLimit(w http.ResponseWriter, userID, facilityID int64) bool {
	if limiter == nil {
		return true
	}
	allowed, retryAfter := limiter.Check(userID, facilityID)
	if allowed {
		return true
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
	http.Error(w, "Too many booking attempts", http.StatusTooManyRequests)
	return false
}

// POST /api/v1/bookings
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if !initialized {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var body bookingRequestBody
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := decodeBookingRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !checkAttemptLimit(w, req.UserID, req.FacilityID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	result, err := service.Create(ctx, req)
	switch {
	case errors.Is(err, booking.ErrBlocked):
		apiutil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"allowed":  false,
			"blockers": result.Evaluation.Blockers,
			"warnings": result.Evaluation.Warnings,
			"results":  result.Evaluation.Results,
		})
		return
	case errors.Is(err, booking.ErrSlotTaken):
		http.Error(w, "Slot is no longer available", http.StatusConflict)
		return
	case rules.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		logger.Error().Err(err).Msg("Failed to create booking")
		http.Error(w, "Failed to create booking", http.StatusInternalServerError)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, map[string]any{
		"booking":  bookingPayload(result.Booking),
		"warnings": result.Evaluation.Warnings,
	})
}

// POST /api/v1/bookings/evaluate performs a dry run: the full rule
// pipeline runs and every result comes back, but nothing is persisted
// and no attempt is recorded.
func HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if !initialized {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var body bookingRequestBody
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := decodeBookingRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	_, eval, err := engine.EvaluateBooking(ctx, req)
	switch {
	case rules.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		logger.Error().Err(err).Msg("Failed to evaluate booking request")
		http.Error(w, "Failed to evaluate booking request", http.StatusInternalServerError)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, eval)
}

// POST /api/v1/admin/bookings/override
func HandleCreateWithOverride(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if !initialized {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var body overrideRequestBody
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := decodeBookingRequest(body.bookingRequestBody)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.AdminID <= 0 {
		http.Error(w, "admin_id must be a positive integer", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Reason) == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	result, err := service.CreateWithOverride(ctx, req, rules.Override{
		AdminID:   body.AdminID,
		Reason:    strings.TrimSpace(body.Reason),
		At:        time.Now().UTC(),
		RuleCodes: body.RuleCodes,
	})
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		http.Error(w, "Slot is no longer available", http.StatusConflict)
		return
	case rules.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		logger.Error().Err(err).Msg("Failed to create booking with override")
		http.Error(w, "Failed to create booking", http.StatusInternalServerError)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, map[string]any{
		"booking":          bookingPayload(result.Booking),
		"overridden_codes": result.Override.OverriddenCodes,
		"blockers":         result.Override.Blockers,
	})
}

// POST /api/v1/bookings/cancel
func HandleCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if !initialized {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var body cancelRequestBody
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.BookingID <= 0 || body.UserID <= 0 || body.FacilityID <= 0 {
		http.Error(w, "booking_id, user_id and facility_id are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	result, err := service.Cancel(ctx, rules.CancellationRequest{
		BookingID:  body.BookingID,
		UserID:     body.UserID,
		FacilityID: body.FacilityID,
		Reason:     strings.TrimSpace(body.Reason),
	})
	switch {
	case rules.IsNotFound(err):
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	case err != nil:
		logger.Error().Err(err).Msg("Failed to cancel booking")
		http.Error(w, "Failed to cancel booking", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if !result.Result.Allowed {
		status = http.StatusConflict
	}
	apiutil.WriteJSON(w, status, result.Result)
}

type bookingResponse struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	FacilityID   int64  `json:"facility_id"`
	CourtID      int64  `json:"court_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Status       string `json:"status"`
	BookingType  string `json:"booking_type"`
	ActivityType string `json:"activity_type,omitempty"`
	IsPrime      bool   `json:"is_prime"`
}

func bookingPayload(b models.Booking) bookingResponse {
	return bookingResponse{
		ID:           b.ID,
		UserID:       b.UserID,
		FacilityID:   b.FacilityID,
		CourtID:      b.CourtID,
		Date:         b.Date.Format("2006-01-02"),
		StartTime:    schedule.FormatClock(b.StartMinute),
		EndTime:      schedule.FormatClock(b.EndMinute),
		Status:       b.Status,
		BookingType:  b.BookingType,
		ActivityType: b.ActivityType,
		IsPrime:      b.IsPrime,
	}
}

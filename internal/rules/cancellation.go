// internal/rules/cancellation.go
package rules

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/schedule"
)

// EvaluateCancellation decides whether a booking may be cancelled now,
// whether the cancellation is late, and whether the caller should issue a
// strike. The engine signals the strike; issuing it (exactly once per
// cancellation) is the booking service's job.
func (e *Engine) EvaluateCancellation(ctx context.Context, req CancellationRequest) (CancellationResult, error) {
	booking, err := e.reads.GetBooking(ctx, req.BookingID)
	if err != nil {
		return CancellationResult{}, transient("load booking", err)
	}
	if booking.UserID != req.UserID || booking.FacilityID != req.FacilityID {
		return CancellationResult{}, &NotFoundError{Kind: "booking", ID: req.BookingID}
	}

	var facility models.Facility
	var court models.Court
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		facility, err = e.reads.GetFacility(gctx, req.FacilityID)
		return transient("load facility", err)
	})
	g.Go(func() error {
		var err error
		court, err = e.reads.GetCourt(gctx, booking.CourtID)
		return transient("load court", err)
	})
	if err := g.Wait(); err != nil {
		return CancellationResult{}, err
	}

	// The stored date is a UTC midnight; lateness is measured on the
	// facility's wall clock.
	now := e.clock.Now()
	bookingDate := booking.Date
	if loc := facilityLocation(facility); loc != nil {
		now = now.In(loc)
		bookingDate = schedule.DateIn(booking.Date, loc)
	}
	start := schedule.At(bookingDate, booking.StartMinute)
	minutesBefore := int(start.Sub(now).Minutes())

	result := CancellationResult{MinutesBeforeStart: minutesBefore}

	if booking.IsCancelled() {
		result.Message = "Booking is already cancelled"
		return result, nil
	}
	if minutesBefore <= 0 {
		result.Message = "Booking has already started and can no longer be cancelled"
		return result, nil
	}

	cutoff := facility.LateCancelCutoffMinutes
	if court.LateCancelCutoffMinutes != nil {
		cutoff = *court.LateCancelCutoffMinutes
	}

	result.Allowed = true
	if cutoff > 0 && minutesBefore < cutoff {
		result.IsLateCancel = true
		result.StrikeWillBeIssued = facility.LateCancelPenalty == "strike"
		result.Message = fmt.Sprintf(
			"Cancelling within %d minutes of start counts as a late cancellation", cutoff)
	}
	return result, nil
}

package email

import (
	"fmt"
	"strings"

	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/schedule"
)

type Message struct {
	Subject string
	Body    string
}

// BookingDetails is the rendered booking summary shared by the
// confirmation and cancellation builders.
type BookingDetails struct {
	FacilityName string
	Date         string
	TimeRange    string
	Court        string
	ContactLine  string
}

// NewBookingDetails renders the human-readable summary for a booking.
func NewBookingDetails(facility models.Facility, court models.Court, b models.Booking) BookingDetails {
	courtName := strings.TrimSpace(court.Name)
	if courtName == "" {
		courtName = fmt.Sprintf("Court %d", court.Number)
	}
	return BookingDetails{
		FacilityName: facility.Name,
		Date:         b.Date.Format("Monday, Jan 2, 2006"),
		TimeRange: fmt.Sprintf("%s - %s",
			schedule.FormatClock(b.StartMinute), schedule.FormatClock(b.EndMinute)),
		Court:       courtName,
		ContactLine: ContactLine(facility),
	}
}

func BuildBookingConfirmation(details BookingDetails, cancellationPolicy string) Message {
	facilityName := strings.TrimSpace(details.FacilityName)
	if facilityName == "" {
		facilityName = "your facility"
	}
	policy := strings.TrimSpace(cancellationPolicy)
	if policy == "" {
		policy = "Contact the facility for cancellation policy details."
	}

	lines := []string{
		"Your court reservation is confirmed.",
		"",
		fmt.Sprintf("Facility: %s", facilityName),
		fmt.Sprintf("Date: %s", details.Date),
		fmt.Sprintf("Time: %s", details.TimeRange),
		fmt.Sprintf("Court: %s", details.Court),
		fmt.Sprintf("Cancellation policy: %s", policy),
	}
	if details.ContactLine != "" {
		lines = append(lines, "", details.ContactLine)
	}

	return Message{
		Subject: fmt.Sprintf("Reservation Confirmed - %s", facilityName),
		Body:    strings.Join(lines, "\n"),
	}
}

// CancellationNotice carries the penalty outcome the cancellation email
// must disclose.
type CancellationNotice struct {
	IsLate       bool
	StrikeIssued bool
	Reason       string
}

func BuildCancellationEmail(details BookingDetails, notice CancellationNotice) Message {
	facilityName := strings.TrimSpace(details.FacilityName)
	if facilityName == "" {
		facilityName = "your facility"
	}

	lines := []string{
		"Your court reservation has been cancelled.",
		"",
		fmt.Sprintf("Facility: %s", facilityName),
		fmt.Sprintf("Date: %s", details.Date),
		fmt.Sprintf("Time: %s", details.TimeRange),
		fmt.Sprintf("Court: %s", details.Court),
	}
	if reason := strings.TrimSpace(notice.Reason); reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", reason))
	}
	if notice.IsLate {
		lines = append(lines, "", "This was a late cancellation under the facility's policy.")
		if notice.StrikeIssued {
			lines = append(lines, "A strike has been recorded on your account.")
		}
	}
	if details.ContactLine != "" {
		lines = append(lines, "", details.ContactLine)
	}

	return Message{
		Subject: fmt.Sprintf("Reservation Cancelled - %s", facilityName),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildReminderEmail(details BookingDetails) Message {
	facilityName := strings.TrimSpace(details.FacilityName)
	if facilityName == "" {
		facilityName = "your facility"
	}

	lines := []string{
		"Reminder: your court reservation is coming up.",
		"",
		fmt.Sprintf("Facility: %s", facilityName),
		fmt.Sprintf("Date: %s", details.Date),
		fmt.Sprintf("Time: %s", details.TimeRange),
		fmt.Sprintf("Court: %s", details.Court),
	}
	if details.ContactLine != "" {
		lines = append(lines, "", details.ContactLine)
	}

	return Message{
		Subject: fmt.Sprintf("Upcoming Reservation Reminder - %s", facilityName),
		Body:    strings.Join(lines, "\n"),
	}
}

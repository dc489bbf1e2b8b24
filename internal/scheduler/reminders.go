package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclub/courtbook/internal/email"
	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/schedule"
	"github.com/openclub/courtbook/internal/store"
)

const (
	reminderHoursBefore = 24
	reminderJobWindow   = 15 * time.Minute
)

// RegisterReminderJob schedules upcoming-booking reminder emails. Every
// 15 minutes it looks 24 hours ahead and mails the members whose
// bookings start inside that slice.
func RegisterReminderJob(st *store.Store, emailClient email.EmailSender) error {
	if st == nil {
		return fmt.Errorf("reminder job requires store")
	}

	jobName := "booking_reminders"
	cronExpr := "*/15 * * * *"
	jobLogger := log.With().
		Str("component", "booking_reminders_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(jobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if emailClient == nil {
			jobLogger.Debug().Msg("Reminder job skipped: email client not configured")
			return
		}
		if err := sendDueReminders(ctx, st, emailClient, time.Now().UTC(), &jobLogger); err != nil {
			jobLogger.Error().Err(err).Msg("Reminder job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add booking reminder job: %w", err)
	}

	jobLogger.Info().Msg("Booking reminder job registered")
	return nil
}

func sendDueReminders(ctx context.Context, st *store.Store, emailClient email.EmailSender, now time.Time, logger *zerolog.Logger) error {
	facilities, err := st.ListFacilities(ctx)
	if err != nil {
		return fmt.Errorf("load facilities: %w", err)
	}

	for _, facility := range facilities {
		facilityLogger := logger.With().Int64("facility_id", facility.ID).Logger()

		loc := time.UTC
		if facility.Timezone != "" {
			loaded, err := time.LoadLocation(facility.Timezone)
			if err != nil {
				facilityLogger.Error().Err(err).Str("timezone", facility.Timezone).Msg("Failed to load facility timezone for reminders")
			} else {
				loc = loaded
			}
		}

		windowStart := now.In(loc).Add(reminderHoursBefore * time.Hour)
		windowEnd := windowStart.Add(reminderJobWindow)

		dates := []time.Time{schedule.DateOnly(windowStart)}
		if !schedule.DateOnly(windowEnd).Equal(dates[0]) {
			dates = append(dates, schedule.DateOnly(windowEnd))
		}
		bookings, err := st.ListFacilityBookingsOnDates(ctx, facility.ID, dates)
		if err != nil {
			facilityLogger.Error().Err(err).Msg("Failed to load bookings for reminder job")
			continue
		}

		courts := map[int64]models.Court{}
		sender := email.ResolveFromAddress(facility)
		for _, booking := range bookings {
			y, m, d := booking.Date.Date()
			start := time.Date(y, m, d, 0, booking.StartMinute, 0, 0, loc)
			if start.Before(windowStart) || !start.Before(windowEnd) {
				continue
			}

			court, ok := courts[booking.CourtID]
			if !ok {
				court, err = st.GetCourt(ctx, booking.CourtID)
				if err != nil {
					facilityLogger.Error().Err(err).Int64("court_id", booking.CourtID).Msg("Failed to load court for reminder")
					continue
				}
				courts[booking.CourtID] = court
			}

			reminder := email.BuildReminderEmail(email.NewBookingDetails(facility, court, booking))
			email.SendReminderEmail(ctx, st, emailClient, booking.UserID, reminder, sender, &facilityLogger)
		}
	}
	return nil
}

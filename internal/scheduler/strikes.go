package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclub/courtbook/internal/rules"
	"github.com/openclub/courtbook/internal/store"
)

// RegisterStrikeExpiryJob schedules the nightly sweep that stamps
// expires_at on strikes older than the lockout window, so they stop
// counting without being deleted.
func RegisterStrikeExpiryJob(st *store.Store) error {
	if st == nil {
		return fmt.Errorf("strike expiry job requires store")
	}

	jobName := "strike_expiry"
	cronExpr := "30 3 * * *"
	jobLogger := log.With().
		Str("component", "strike_expiry_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(jobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := ExpireOldStrikes(ctx, st, time.Now().UTC()); err != nil {
			jobLogger.Error().Err(err).Msg("Strike expiry job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add strike expiry job: %w", err)
	}

	jobLogger.Info().Msg("Strike expiry job registered")
	return nil
}

// ExpireOldStrikes expires strikes issued before each facility's strike
// window. Exposed for the job and for admin tooling.
func ExpireOldStrikes(ctx context.Context, st *store.Store, now time.Time) error {
	facilities, err := st.ListFacilities(ctx)
	if err != nil {
		return fmt.Errorf("load facilities: %w", err)
	}

	logger := log.Ctx(ctx)
	policy := rules.DefaultLockoutPolicy()
	cutoff := now.AddDate(0, 0, -policy.StrikeWindowDays)

	var expiredTotal int64
	for _, facility := range facilities {
		expired, err := st.ExpireStrikes(ctx, facility.ID, cutoff)
		if err != nil {
			return fmt.Errorf("expire strikes for facility %d: %w", facility.ID, err)
		}
		expiredTotal += expired
	}

	logger.Debug().Int64("expired_strikes", expiredTotal).Msg("Expired old strikes")
	return nil
}

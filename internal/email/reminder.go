package email

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const reminderEmailTimeout = 5 * time.Second

// SendReminderEmail sends a reminder email asynchronously.
func SendReminderEmail(ctx context.Context, users UserGetter, client EmailSender, userID int64, message Message, sender string, logger *zerolog.Logger) {
	if client == nil || users == nil {
		return
	}
	if message.Subject == "" || message.Body == "" {
		return
	}

	user, err := users.GetUser(ctx, userID)
	if err != nil {
		if logger != nil {
			logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for reminder email")
		}
		return
	}
	recipient := strings.TrimSpace(user.Email)
	if recipient == "" {
		return
	}

	go func() {
		sendCtx, cancel := newEmailContext(ctx, reminderEmailTimeout)
		defer cancel()
		if sendCtx.Err() != nil {
			return
		}
		if err := client.SendFrom(sendCtx, recipient, message.Subject, message.Body, sender); err != nil {
			if logger != nil {
				logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to send reminder email")
			}
			return
		}
		if logger != nil {
			logger.Info().Int64("user_id", userID).Msg("Reminder email sent")
		}
	}()
}

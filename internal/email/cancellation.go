package email

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openclub/courtbook/internal/models"
)

const cancellationEmailTimeout = 5 * time.Second

// SendCancellationEmail sends a cancellation email asynchronously.
func SendCancellationEmail(ctx context.Context, users UserGetter, client EmailSender, userID int64, message Message, sender string, logger *zerolog.Logger) {
	if client == nil || users == nil {
		return
	}
	if userID <= 0 {
		if logger != nil {
			logger.Warn().Int64("user_id", userID).Msg("Skipping cancellation email with invalid user ID")
		}
		return
	}
	if message.Subject == "" || message.Body == "" {
		return
	}

	user, err := users.GetUser(ctx, userID)
	if err != nil {
		if logger != nil {
			logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for cancellation email")
		}
		return
	}
	recipient := strings.TrimSpace(user.Email)
	if recipient == "" {
		return
	}

	go func() {
		sendCtx, cancel := newEmailContext(ctx, cancellationEmailTimeout)
		defer cancel()
		if sendCtx.Err() != nil {
			return
		}
		if err := client.SendFrom(sendCtx, recipient, message.Subject, message.Body, sender); err != nil && logger != nil {
			logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to send cancellation email")
		}
	}()
}

// ResolveFromAddress prefers the facility reply-to address, falling back
// to the platform sender configured on the SES client.
func ResolveFromAddress(facility models.Facility) string {
	return strings.TrimSpace(facility.ReplyToEmail)
}

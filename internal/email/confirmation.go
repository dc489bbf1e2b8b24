package email

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openclub/courtbook/internal/models"
)

const confirmationEmailTimeout = 5 * time.Second

// UserGetter resolves recipients. *store.Store satisfies it.
type UserGetter interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
}

// SendConfirmationEmail sends a confirmation email asynchronously.
func SendConfirmationEmail(ctx context.Context, users UserGetter, client EmailSender, userID int64, message Message, logger *zerolog.Logger) {
	if client == nil || users == nil {
		return
	}
	if message.Subject == "" || message.Body == "" {
		return
	}

	user, err := users.GetUser(ctx, userID)
	if err != nil {
		if logger != nil {
			logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for confirmation email")
		}
		return
	}
	recipient := strings.TrimSpace(user.Email)
	if recipient == "" {
		return
	}

	go func() {
		sendCtx, cancel := newEmailContext(ctx, confirmationEmailTimeout)
		defer cancel()
		if sendCtx.Err() != nil {
			return
		}
		if err := client.Send(sendCtx, recipient, message.Subject, message.Body); err != nil && logger != nil {
			logger.Error().Err(err).Str("recipient", recipient).Msg("Failed to send confirmation email")
		}
	}()
}

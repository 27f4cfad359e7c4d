package delivery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/queue"
	"github.com/waveline/notify-server/internal/repositories"
	"github.com/waveline/notify-server/pkg/mailer"
)

// EmailWorker handles EmailJob tasks: it re-checks the recipient's current
// preferences and quiet hours, then sends one transactional email per
// notification. Returning an error requeues the job, so every drop condition
// returns nil.
type EmailWorker struct {
	notifications repositories.NotificationRepository
	preferences   repositories.PreferenceRepository
	users         repositories.UserRepository
	sender        mailer.EmailSender
	siteName      string
	siteURL       string
	logger        zerolog.Logger
}

// NewEmailWorker creates the email delivery worker.
func NewEmailWorker(
	notifications repositories.NotificationRepository,
	preferences repositories.PreferenceRepository,
	users repositories.UserRepository,
	sender mailer.EmailSender,
	siteName, siteURL string,
	logger zerolog.Logger,
) *EmailWorker {
	return &EmailWorker{
		notifications: notifications,
		preferences:   preferences,
		users:         users,
		sender:        sender,
		siteName:      siteName,
		siteURL:       siteURL,
		logger:        logger,
	}
}

// Handler returns the queue handler for EmailJob tasks.
func (w *EmailWorker) Handler() queue.Handler {
	return queue.NewTaskHandler(w.handle)
}

func (w *EmailWorker) handle(ctx context.Context, job EmailJob) error {
	n, err := w.notifications.GetForDelivery(ctx, job.NotificationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Deleted or retracted between enqueue and delivery.
			return nil
		}
		return fmt.Errorf("load notification %d: %w", job.NotificationID, err)
	}

	prefs, err := w.preferences.GetOrCreate(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("load preferences for user %d: %w", n.RecipientID, err)
	}
	if !prefs.IsEnabled(models.ChannelEmail, n.Type) {
		return nil
	}
	if prefs.InQuietHours(time.Now()) {
		w.logger.Debug().Uint("notification_id", n.ID).Uint("user_id", n.RecipientID).Msg("email suppressed by quiet hours")
		return nil
	}

	user, err := w.users.GetUserByID(ctx, n.RecipientID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load user %d: %w", n.RecipientID, err)
	}
	if user.Email == "" {
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", w.siteName, n.Title)
	body := w.renderBody(user, n)

	if err := w.sender.Send(ctx, user.Email, subject, body); err != nil {
		if errors.Is(err, mailer.ErrPermanent) {
			w.logger.Warn().Err(err).
				Uint("notification_id", n.ID).
				Uint("user_id", n.RecipientID).
				Msg("email permanently rejected, dropping")
			return nil
		}
		return fmt.Errorf("send email for notification %d: %w", n.ID, err)
	}

	w.logger.Debug().Uint("notification_id", n.ID).Uint("user_id", n.RecipientID).Msg("email sent")
	return nil
}

func (w *EmailWorker) renderBody(user *models.User, n *models.Notification) string {
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	return fmt.Sprintf(
		`<html><body>
<p>Hi %s,</p>
<h3>%s</h3>
<p>%s</p>
<p><a href="%s/notifications">View on %s</a></p>
</body></html>`,
		html.EscapeString(name),
		html.EscapeString(n.Title),
		html.EscapeString(n.Message),
		w.siteURL,
		html.EscapeString(w.siteName),
	)
}

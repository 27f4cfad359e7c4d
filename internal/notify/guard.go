package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/repositories"
)

// Guard decides whether a notification should be created at all. It rejects
// self-notifications and recent duplicates of the same (recipient, sender,
// type, subject) tuple.
type Guard struct {
	notifications repositories.NotificationRepository
	window        time.Duration
	logger        zerolog.Logger
}

// NewGuard creates a Guard with the given duplicate-suppression window.
func NewGuard(notifications repositories.NotificationRepository, window time.Duration, logger zerolog.Logger) *Guard {
	return &Guard{notifications: notifications, window: window, logger: logger}
}

// ShouldCreate reports whether a notification for the given tuple should be
// created. System notifications (nil sender) are exempt from the self check.
// A store failure during the duplicate lookup suppresses the notification and
// logs; it never propagates to the producer.
func (g *Guard) ShouldCreate(ctx context.Context, recipientID uint, senderID *uint, t models.NotificationType, subject models.SubjectRef) bool {
	if senderID != nil && *senderID == recipientID {
		return false
	}
	if senderID == nil || g.window <= 0 {
		return true
	}

	since := time.Now().Add(-g.window)
	dup, err := g.notifications.HasRecentDuplicate(ctx, recipientID, *senderID, t, subject, since)
	if err != nil {
		g.logger.Error().Err(err).
			Uint("recipient_id", recipientID).
			Uint("sender_id", *senderID).
			Str("type", string(t)).
			Msg("duplicate check failed, suppressing notification")
		return false
	}
	return !dup
}

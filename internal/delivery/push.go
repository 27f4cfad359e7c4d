package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/queue"
	"github.com/waveline/notify-server/internal/repositories"
	"github.com/waveline/notify-server/pkg/firebase"
)

// PushSender sends one push message to a device token. *firebase.App
// implements it; tests substitute a fake.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// PushWorker handles PushJob tasks: it fans one notification out to every
// active device the recipient has registered. One device failing never blocks
// the others; a transient failure on any device requeues the job, and the
// idempotent per-device sends make the replay safe.
type PushWorker struct {
	notifications repositories.NotificationRepository
	preferences   repositories.PreferenceRepository
	devices       repositories.DeviceRepository
	sender        PushSender
	logger        zerolog.Logger
}

// NewPushWorker creates the push delivery worker.
func NewPushWorker(
	notifications repositories.NotificationRepository,
	preferences repositories.PreferenceRepository,
	devices repositories.DeviceRepository,
	sender PushSender,
	logger zerolog.Logger,
) *PushWorker {
	return &PushWorker{
		notifications: notifications,
		preferences:   preferences,
		devices:       devices,
		sender:        sender,
		logger:        logger,
	}
}

// Handler returns the queue handler for PushJob tasks.
func (w *PushWorker) Handler() queue.Handler {
	return queue.NewTaskHandler(w.handle)
}

func (w *PushWorker) handle(ctx context.Context, job PushJob) error {
	n, err := w.notifications.GetForDelivery(ctx, job.NotificationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load notification %d: %w", job.NotificationID, err)
	}

	prefs, err := w.preferences.GetOrCreate(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("load preferences for user %d: %w", n.RecipientID, err)
	}
	if !prefs.IsEnabled(models.ChannelPush, n.Type) {
		return nil
	}
	if prefs.InQuietHours(time.Now()) {
		w.logger.Debug().Uint("notification_id", n.ID).Uint("user_id", n.RecipientID).Msg("push suppressed by quiet hours")
		return nil
	}

	devices, err := w.devices.ActiveByUser(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("load devices for user %d: %w", n.RecipientID, err)
	}
	if len(devices) == 0 {
		return nil
	}

	data := map[string]string{
		"notification_id": strconv.FormatUint(uint64(n.ID), 10),
		"type":            string(n.Type),
	}
	if n.SubjectType != "" {
		data["subject_type"] = n.SubjectType
		data["subject_id"] = n.SubjectID
	}

	var transient int
	for _, device := range devices {
		err := w.sender.Send(ctx, device.Token, n.Title, n.Message, data)
		switch {
		case err == nil:
			if err := w.devices.TouchLastUsed(ctx, device.ID); err != nil {
				w.logger.Warn().Err(err).Uint("device_id", device.ID).Msg("device last_used update failed")
			}
		case errors.Is(err, firebase.ErrUnregistered):
			w.logger.Info().
				Uint("user_id", n.RecipientID).
				Str("device", device.DeviceID).
				Msg("push token unregistered, deactivating device")
			if err := w.devices.Deactivate(ctx, device.UserID, device.DeviceID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
				w.logger.Warn().Err(err).Str("device", device.DeviceID).Msg("device deactivation failed")
			}
		case errors.Is(err, firebase.ErrPermanent):
			w.logger.Warn().Err(err).
				Uint("notification_id", n.ID).
				Str("device", device.DeviceID).
				Msg("push permanently rejected for device")
		default:
			transient++
			w.logger.Error().Err(err).
				Uint("notification_id", n.ID).
				Str("device", device.DeviceID).
				Msg("push send failed")
		}
	}

	if transient > 0 {
		return fmt.Errorf("push for notification %d: %d device send(s) failed", n.ID, transient)
	}
	return nil
}

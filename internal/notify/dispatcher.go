package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/waveline/notify-server/internal/cache"
	"github.com/waveline/notify-server/internal/delivery"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/queue"
	"github.com/waveline/notify-server/internal/repositories"
)

const defaultFanoutBatchSize = 500

// DispatcherConfig tunes the fan-out path.
type DispatcherConfig struct {
	// FanoutBatchSize bounds each follower page during fan-out.
	FanoutBatchSize int
	// RetractWindow bounds how far back Retract will remove a notification.
	RetractWindow time.Duration
	// SiteName feeds the welcome template.
	SiteName string
}

// Dispatcher turns domain events into per-recipient notification rows and
// per-channel delivery jobs. The in-app row is written whenever the guard
// accepts; preferences only gate the email and push jobs, and the delivery
// workers re-check them before sending.
type Dispatcher struct {
	notifications repositories.NotificationRepository
	preferences   repositories.PreferenceRepository
	users         repositories.UserRepository
	follows       repositories.FollowRepository
	posts         repositories.PostRepository
	enqueuer      *queue.Enqueuer
	guard         *Guard
	renderer      *Renderer
	unreadCache   *cache.UnreadCountCache
	cfg           DispatcherConfig
	logger        zerolog.Logger
}

// NewDispatcher wires the fan-out dispatcher. posts may be nil when no
// content store is configured; post previews are then skipped.
func NewDispatcher(
	notifications repositories.NotificationRepository,
	preferences repositories.PreferenceRepository,
	users repositories.UserRepository,
	follows repositories.FollowRepository,
	posts repositories.PostRepository,
	enqueuer *queue.Enqueuer,
	guard *Guard,
	renderer *Renderer,
	unreadCache *cache.UnreadCountCache,
	cfg DispatcherConfig,
	logger zerolog.Logger,
) *Dispatcher {
	if cfg.FanoutBatchSize <= 0 {
		cfg.FanoutBatchSize = defaultFanoutBatchSize
	}
	return &Dispatcher{
		notifications: notifications,
		preferences:   preferences,
		users:         users,
		follows:       follows,
		posts:         posts,
		enqueuer:      enqueuer,
		guard:         guard,
		renderer:      renderer,
		unreadCache:   unreadCache,
		cfg:           cfg,
		logger:        logger,
	}
}

// Handle fans an event out to its recipients. Recipient resolution is
// streamed in pages so a large follower set never loads into memory at once.
// Failures for one recipient are logged and never abort the rest; only an
// invalid event is reported to the producer.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	if err := ev.validate(); err != nil {
		return err
	}

	vars := d.enrichVars(ctx, ev)
	title, message := d.renderer.Render(ev.templateKind(), vars)

	var created, failed int
	seen := make(map[uint]struct{}, len(ev.Recipients))

	deliver := func(recipientID uint) {
		if _, ok := seen[recipientID]; ok {
			return
		}
		seen[recipientID] = struct{}{}

		ok, err := d.deliverTo(ctx, ev, recipientID, title, message)
		if err != nil {
			failed++
			d.logger.Error().Err(err).
				Uint("recipient_id", recipientID).
				Str("type", string(ev.Type)).
				Msg("notification delivery setup failed")
			return
		}
		if ok {
			created++
		}
	}

	for _, id := range ev.Recipients {
		deliver(id)
	}

	if ev.FollowersOf != 0 {
		var afterID uint
		for {
			page, err := d.follows.GetFollowerIDsPage(ctx, ev.FollowersOf, afterID, d.cfg.FanoutBatchSize)
			if err != nil {
				d.logger.Error().Err(err).
					Uint("user_id", ev.FollowersOf).
					Msg("follower page load failed, fan-out truncated")
				break
			}
			if len(page) == 0 {
				break
			}
			for _, id := range page {
				deliver(id)
			}
			afterID = page[len(page)-1]
		}
	}

	d.logger.Info().
		Str("type", string(ev.Type)).
		Int("created", created).
		Int("failed", failed).
		Int("resolved", len(seen)).
		Msg("event fan-out complete")
	return nil
}

// deliverTo runs the per-recipient pipeline: guard, row creation, channel job
// enqueueing. Returns whether a notification row was created.
func (d *Dispatcher) deliverTo(ctx context.Context, ev Event, recipientID uint, title, message string) (bool, error) {
	if !d.guard.ShouldCreate(ctx, recipientID, ev.ActorID, ev.Type, ev.Subject) {
		return false, nil
	}

	n := &models.Notification{
		RecipientID: recipientID,
		SenderID:    ev.ActorID,
		Type:        ev.Type,
		Title:       title,
		Message:     message,
		SubjectType: ev.Subject.Type,
		SubjectID:   ev.Subject.ID,
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	d.unreadCache.Invalidate(ctx, recipientID)

	prefs, err := d.preferences.GetOrCreate(ctx, recipientID)
	if err != nil {
		// Default-enabled semantics: the workers re-check preferences, so
		// enqueueing on a preference read failure only costs a retry later.
		d.logger.Warn().Err(err).Uint("recipient_id", recipientID).Msg("preference load failed, assuming defaults")
		prefs = nil
	}

	if prefs.IsEnabled(models.ChannelEmail, ev.Type) {
		if err := d.enqueuer.Enqueue(ctx, delivery.EmailJob{NotificationID: n.ID}, queue.WithQueue(delivery.EmailQueue)); err != nil {
			d.logger.Error().Err(err).Uint("notification_id", n.ID).Msg("email job enqueue failed")
		}
	}
	if prefs.IsEnabled(models.ChannelPush, ev.Type) {
		if err := d.enqueuer.Enqueue(ctx, delivery.PushJob{NotificationID: n.ID}, queue.WithQueue(delivery.PushQueue)); err != nil {
			d.logger.Error().Err(err).Uint("notification_id", n.ID).Msg("push job enqueue failed")
		}
	}
	return true, nil
}

// Retract removes the notification a retracted event created, if it is still
// inside the retraction window. Used by unlike and unfollow.
func (d *Dispatcher) Retract(ctx context.Context, ev Event) error {
	if ev.ActorID == nil {
		return ErrInvalidEvent
	}
	if err := ev.validate(); err != nil {
		return err
	}

	since := time.Now().Add(-d.cfg.RetractWindow)
	for _, recipientID := range ev.Recipients {
		deleted, err := d.notifications.DeleteRecentMatch(ctx, recipientID, *ev.ActorID, ev.Type, ev.Subject, since)
		if err != nil {
			d.logger.Error().Err(err).
				Uint("recipient_id", recipientID).
				Str("type", string(ev.Type)).
				Msg("notification retraction failed")
			continue
		}
		if deleted > 0 {
			d.unreadCache.Invalidate(ctx, recipientID)
		}
	}
	return nil
}

// HandleMentions extracts @username tokens from text and notifies each
// resolved user. Unknown usernames and self-mentions are dropped silently.
func (d *Dispatcher) HandleMentions(ctx context.Context, actorID uint, text string, subject models.SubjectRef, contentType string) error {
	names := ExtractMentions(text)
	if len(names) == 0 {
		return nil
	}

	users, err := d.users.GetUsersByUsernames(ctx, names)
	if err != nil {
		return fmt.Errorf("resolve mentions: %w", err)
	}

	recipients := make([]uint, 0, len(users))
	for _, u := range users {
		if u.ID == actorID {
			continue
		}
		recipients = append(recipients, u.ID)
	}
	if len(recipients) == 0 {
		return nil
	}

	return d.Handle(ctx, Event{
		Type:       models.NotificationMention,
		ActorID:    &actorID,
		Subject:    subject,
		Recipients: recipients,
		Vars:       map[string]string{"content_type": contentType},
	})
}

// NotifyWelcome sends the onboarding notification to a new user.
func (d *Dispatcher) NotifyWelcome(ctx context.Context, userID uint) error {
	return d.Handle(ctx, Event{
		Type:         models.NotificationSystem,
		Recipients:   []uint{userID},
		TemplateKind: TemplateWelcome,
		Vars:         map[string]string{"site_name": d.cfg.SiteName},
	})
}

// NotifySecurity alerts a user about an account event, e.g. "was signed in
// from a new device".
func (d *Dispatcher) NotifySecurity(ctx context.Context, userID uint, event string) error {
	return d.Handle(ctx, Event{
		Type:         models.NotificationSystem,
		Recipients:   []uint{userID},
		TemplateKind: TemplateSecurity,
		Vars:         map[string]string{"event": event},
	})
}

// NotifyModeration informs a user about a moderation decision on their
// content.
func (d *Dispatcher) NotifyModeration(ctx context.Context, userID uint, contentType, action, reason string) error {
	return d.Handle(ctx, Event{
		Type:         models.NotificationSystem,
		Recipients:   []uint{userID},
		TemplateKind: TemplateModeration,
		Vars: map[string]string{
			"content_type": contentType,
			"action":       action,
			"reason":       reason,
		},
	})
}

// enrichVars fills in the variables the producer did not supply: the actor's
// username as {sender} and, for post subjects, a short content preview.
func (d *Dispatcher) enrichVars(ctx context.Context, ev Event) map[string]string {
	vars := make(map[string]string, len(ev.Vars)+2)
	for k, v := range ev.Vars {
		vars[k] = v
	}

	if _, ok := vars["sender"]; !ok && ev.ActorID != nil {
		if actor, err := d.users.GetUserByID(ctx, *ev.ActorID); err == nil {
			vars["sender"] = actor.Username
		} else {
			d.logger.Warn().Err(err).Uint("actor_id", *ev.ActorID).Msg("actor lookup failed")
		}
	}

	if ev.Subject.Type == models.SubjectPost {
		if _, ok := vars["content_type"]; !ok {
			vars["content_type"] = "post"
		}
		if _, ok := vars["content_preview"]; !ok && d.posts != nil {
			if post, err := d.posts.GetPostByID(ctx, ev.Subject.ID); err == nil {
				vars["content_preview"] = post.Preview(50)
			}
		}
	}
	return vars
}

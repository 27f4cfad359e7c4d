package notify

import (
	"errors"

	"github.com/waveline/notify-server/internal/models"
)

var (
	// ErrInvalidEvent marks an event the dispatcher refuses to process.
	ErrInvalidEvent = errors.New("notify: invalid event")
)

// Event is a domain occurrence the dispatcher turns into notifications.
// Producers (the social write paths) publish events; they never touch
// notification rows directly.
type Event struct {
	// Type drives template selection and preference checks.
	Type models.NotificationType

	// ActorID is the user who caused the event. Nil means the system did.
	ActorID *uint

	// Subject is the entity the event is about (post, comment, user).
	Subject models.SubjectRef

	// Recipients lists explicit target users.
	Recipients []uint

	// FollowersOf, when non-zero, additionally fans the event out to every
	// follower of that user. Resolution is paginated and deduplicated
	// against Recipients.
	FollowersOf uint

	// TemplateKind overrides the template derived from Type. Used by the
	// system helpers (welcome, security, moderation).
	TemplateKind string

	// Vars feeds the template renderer. The dispatcher fills "sender" from
	// the actor's username when absent.
	Vars map[string]string
}

func (e *Event) templateKind() string {
	if e.TemplateKind != "" {
		return e.TemplateKind
	}
	return string(e.Type)
}

func (e *Event) validate() error {
	if !e.Type.Valid() {
		return ErrInvalidEvent
	}
	if len(e.Recipients) == 0 && e.FollowersOf == 0 {
		return ErrInvalidEvent
	}
	return nil
}

package models

import "time"

// Channel identifies a delivery channel for notifications.
type Channel string

const (
	ChannelWeb   Channel = "web"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// NotificationPreferences holds a user's per-channel, per-type opt-in matrix
// and the optional quiet-hours window. All flags default to enabled, so a
// freshly created row behaves exactly like a missing one.
type NotificationPreferences struct {
	ID     uint `json:"-" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"uniqueIndex"`

	EmailLikes    bool `json:"email_likes" gorm:"default:true"`
	EmailComments bool `json:"email_comments" gorm:"default:true"`
	EmailFollows  bool `json:"email_follows" gorm:"default:true"`
	EmailMentions bool `json:"email_mentions" gorm:"default:true"`
	EmailReposts  bool `json:"email_reposts" gorm:"default:true"`
	EmailMessages bool `json:"email_messages" gorm:"default:true"`
	EmailSystem   bool `json:"email_system" gorm:"default:true"`

	PushLikes    bool `json:"push_likes" gorm:"default:true"`
	PushComments bool `json:"push_comments" gorm:"default:true"`
	PushFollows  bool `json:"push_follows" gorm:"default:true"`
	PushMentions bool `json:"push_mentions" gorm:"default:true"`
	PushReposts  bool `json:"push_reposts" gorm:"default:true"`
	PushMessages bool `json:"push_messages" gorm:"default:true"`
	PushSystem   bool `json:"push_system" gorm:"default:true"`

	WebLikes    bool `json:"web_likes" gorm:"default:true"`
	WebComments bool `json:"web_comments" gorm:"default:true"`
	WebFollows  bool `json:"web_follows" gorm:"default:true"`
	WebMentions bool `json:"web_mentions" gorm:"default:true"`
	WebReposts  bool `json:"web_reposts" gorm:"default:true"`
	WebMessages bool `json:"web_messages" gorm:"default:true"`
	WebSystem   bool `json:"web_system" gorm:"default:true"`

	// Quiet hours as "HH:MM" time-of-day strings; both nil means disabled.
	// Start > End means the window wraps past midnight.
	QuietHoursStart *string `json:"quiet_hours_start,omitempty" gorm:"size:5"`
	QuietHoursEnd   *string `json:"quiet_hours_end,omitempty" gorm:"size:5"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreferences returns an all-enabled preference set for a user.
func DefaultPreferences(userID uint) *NotificationPreferences {
	return &NotificationPreferences{
		UserID: userID,

		EmailLikes: true, EmailComments: true, EmailFollows: true,
		EmailMentions: true, EmailReposts: true, EmailMessages: true, EmailSystem: true,

		PushLikes: true, PushComments: true, PushFollows: true,
		PushMentions: true, PushReposts: true, PushMessages: true, PushSystem: true,

		WebLikes: true, WebComments: true, WebFollows: true,
		WebMentions: true, WebReposts: true, WebMessages: true, WebSystem: true,
	}
}

// IsEnabled reports whether notifications of the given type are enabled on the
// given channel. Unknown channel/type combinations default to enabled, which
// keeps new notification types deliverable without a migration.
func (p *NotificationPreferences) IsEnabled(ch Channel, t NotificationType) bool {
	if p == nil {
		return true
	}
	switch ch {
	case ChannelEmail:
		switch t {
		case NotificationLike:
			return p.EmailLikes
		case NotificationComment:
			return p.EmailComments
		case NotificationFollow:
			return p.EmailFollows
		case NotificationMention:
			return p.EmailMentions
		case NotificationRepost:
			return p.EmailReposts
		case NotificationMessage:
			return p.EmailMessages
		case NotificationSystem:
			return p.EmailSystem
		}
	case ChannelPush:
		switch t {
		case NotificationLike:
			return p.PushLikes
		case NotificationComment:
			return p.PushComments
		case NotificationFollow:
			return p.PushFollows
		case NotificationMention:
			return p.PushMentions
		case NotificationRepost:
			return p.PushReposts
		case NotificationMessage:
			return p.PushMessages
		case NotificationSystem:
			return p.PushSystem
		}
	case ChannelWeb:
		switch t {
		case NotificationLike:
			return p.WebLikes
		case NotificationComment:
			return p.WebComments
		case NotificationFollow:
			return p.WebFollows
		case NotificationMention:
			return p.WebMentions
		case NotificationRepost:
			return p.WebReposts
		case NotificationMessage:
			return p.WebMessages
		case NotificationSystem:
			return p.WebSystem
		}
	}
	return true
}

// InQuietHours reports whether t falls inside the user's quiet-hours window.
// A window whose start is later than its end spans midnight, e.g. 22:00-08:00
// suppresses at 23:00 and 07:00 but not at 14:00. Malformed values disable
// the window rather than blocking delivery.
func (p *NotificationPreferences) InQuietHours(t time.Time) bool {
	if p == nil || p.QuietHoursStart == nil || p.QuietHoursEnd == nil {
		return false
	}
	start, err := time.Parse("15:04", *p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", *p.QuietHoursEnd)
	if err != nil {
		return false
	}

	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	nowMin := t.Hour()*60 + t.Minute()

	if startMin == endMin {
		return false
	}
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// Wrap-around window.
	return nowMin >= startMin || nowMin < endMin
}

// ValidTimeOfDay reports whether s parses as an "HH:MM" time of day.
func ValidTimeOfDay(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

// UpdatePreferencesRequest is a sparse patch for a user's preference set.
// Nil fields are left untouched.
type UpdatePreferencesRequest struct {
	EmailLikes    *bool `json:"email_likes,omitempty"`
	EmailComments *bool `json:"email_comments,omitempty"`
	EmailFollows  *bool `json:"email_follows,omitempty"`
	EmailMentions *bool `json:"email_mentions,omitempty"`
	EmailReposts  *bool `json:"email_reposts,omitempty"`
	EmailMessages *bool `json:"email_messages,omitempty"`
	EmailSystem   *bool `json:"email_system,omitempty"`

	PushLikes    *bool `json:"push_likes,omitempty"`
	PushComments *bool `json:"push_comments,omitempty"`
	PushFollows  *bool `json:"push_follows,omitempty"`
	PushMentions *bool `json:"push_mentions,omitempty"`
	PushReposts  *bool `json:"push_reposts,omitempty"`
	PushMessages *bool `json:"push_messages,omitempty"`
	PushSystem   *bool `json:"push_system,omitempty"`

	WebLikes    *bool `json:"web_likes,omitempty"`
	WebComments *bool `json:"web_comments,omitempty"`
	WebFollows  *bool `json:"web_follows,omitempty"`
	WebMentions *bool `json:"web_mentions,omitempty"`
	WebReposts  *bool `json:"web_reposts,omitempty"`
	WebMessages *bool `json:"web_messages,omitempty"`
	WebSystem   *bool `json:"web_system,omitempty"`

	QuietHoursStart *string `json:"quiet_hours_start,omitempty" validate:"omitempty,len=5"`
	QuietHoursEnd   *string `json:"quiet_hours_end,omitempty" validate:"omitempty,len=5"`
}

package models

import "time"

// NotificationType classifies the domain event a notification was born from.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationMention NotificationType = "mention"
	NotificationRepost  NotificationType = "repost"
	NotificationMessage NotificationType = "message"
	NotificationSystem  NotificationType = "system"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow,
		NotificationMention, NotificationRepost, NotificationMessage, NotificationSystem:
		return true
	}
	return false
}

// Subject kinds for the polymorphic subject reference.
const (
	SubjectPost    = "post"
	SubjectComment = "comment"
	SubjectUser    = "user"
)

// SubjectRef is a tagged reference to the entity a notification is about,
// e.g. {Type: "post", ID: "42"}.
type SubjectRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// IsZero reports whether the reference is unset.
func (s SubjectRef) IsZero() bool { return s.Type == "" && s.ID == "" }

// Notification represents a single per-recipient notification record (PostgreSQL).
// A nil SenderID marks a system-generated notification.
// Invariant: ReadAt is non-nil exactly when IsRead is true.
type Notification struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	RecipientID uint             `json:"recipient_id" gorm:"index:idx_notifications_recipient_created"`
	SenderID    *uint            `json:"sender_id,omitempty" gorm:"index"`
	Type        NotificationType `json:"type" gorm:"size:30;index"`
	Title       string           `json:"title" gorm:"size:200"`
	Message     string           `json:"message"`
	SubjectType string           `json:"subject_type,omitempty" gorm:"size:20"`
	SubjectID   string           `json:"subject_id,omitempty" gorm:"size:64"`
	IsRead      bool             `json:"is_read" gorm:"default:false;index"`
	IsDeleted   bool             `json:"is_deleted" gorm:"default:false;index"`
	ExtraData   map[string]any   `json:"extra_data,omitempty" gorm:"serializer:json"`
	CreatedAt   time.Time        `json:"created_at" gorm:"index:idx_notifications_recipient_created,sort:desc"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
}

// Subject returns the polymorphic subject reference, zero when unset.
func (n *Notification) Subject() SubjectRef {
	return SubjectRef{Type: n.SubjectType, ID: n.SubjectID}
}

// BulkNotificationActionRequest is the payload for bulk mark/delete operations.
type BulkNotificationActionRequest struct {
	NotificationIDs []uint `json:"notification_ids" validate:"required,min=1,max=100,dive,gt=0"`
	Action          string `json:"action" validate:"required,oneof=mark_read mark_unread delete"`
}

// NotificationStats summarizes a recipient's notification history.
type NotificationStats struct {
	TotalCount  int64                      `json:"total_count"`
	UnreadCount int64                      `json:"unread_count"`
	ReadCount   int64                      `json:"read_count"`
	ByType      map[NotificationType]int64 `json:"by_type"`
	RecentCount int64                      `json:"recent_count"`
}

package delivery

// Queue names for delivery tasks. Email and push run on separate queues so a
// slow transport never starves the other.
const (
	EmailQueue = "email"
	PushQueue  = "push"
)

// EmailJob delivers a single notification by email. Handlers re-load the
// notification and re-check preferences, so replaying the job is safe.
type EmailJob struct {
	NotificationID uint `json:"notification_id"`
}

// PushJob delivers a single notification to all of the recipient's active
// push devices.
type PushJob struct {
	NotificationID uint `json:"notification_id"`
}

// DigestJob delivers one aggregate email summarizing a user's unread
// notifications for a date window. IDs are ordered newest first.
type DigestJob struct {
	UserID          uint   `json:"user_id"`
	NotificationIDs []uint `json:"notification_ids"`
	WindowStart     string `json:"window_start"`
	WindowEnd       string `json:"window_end"`
}

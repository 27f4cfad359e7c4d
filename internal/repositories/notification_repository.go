package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/waveline/notify-server/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("record not found")

// NotificationFilter narrows listing queries; nil fields are ignored.
type NotificationFilter struct {
	Type   *models.NotificationType
	IsRead *bool
}

// NotificationRepository is the authoritative store of notification records.
// All recipient-scoped mutations filter by recipient id, so a caller can
// never mutate another user's notifications regardless of the ids passed in.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, recipientID, id uint) (*models.Notification, error)
	// GetForDelivery loads a non-deleted notification by id alone; delivery
	// workers only carry the id in their job payloads.
	GetForDelivery(ctx context.Context, id uint) (*models.Notification, error)
	GetByRecipient(ctx context.Context, recipientID uint, filter NotificationFilter, page, limit int) ([]models.Notification, int64, error)

	UnreadCount(ctx context.Context, recipientID uint) (int64, error)
	UnreadCountByType(ctx context.Context, recipientID uint) (map[models.NotificationType]int64, error)
	Stats(ctx context.Context, recipientID uint) (*models.NotificationStats, error)

	MarkRead(ctx context.Context, recipientID uint, ids []uint) (int64, error)
	MarkAllRead(ctx context.Context, recipientID uint) (int64, error)
	MarkUnread(ctx context.Context, recipientID uint, ids []uint) (int64, error)
	SoftDelete(ctx context.Context, recipientID uint, ids []uint) (int64, error)

	HasRecentDuplicate(ctx context.Context, recipientID, senderID uint, t models.NotificationType, subject models.SubjectRef, since time.Time) (bool, error)
	DeleteRecentMatch(ctx context.Context, recipientID, senderID uint, t models.NotificationType, subject models.SubjectRef, since time.Time) (int64, error)

	CountOlderThan(ctx context.Context, cutoff time.Time, readOnly bool) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time, readOnly bool, batchSize int) (int64, error)

	RecipientsWithUnreadBetween(ctx context.Context, start, end time.Time) ([]uint, error)
	UnreadBetween(ctx context.Context, recipientID uint, start, end time.Time) ([]models.Notification, error)
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

// NewPostgresNotificationRepository creates a gorm-backed NotificationRepository.
func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *postgresNotificationRepository) GetByID(ctx context.Context, recipientID, id uint) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ? AND is_deleted = false", id, recipientID).
		First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *postgresNotificationRepository) GetForDelivery(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = false", id).
		First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *postgresNotificationRepository) GetByRecipient(ctx context.Context, recipientID uint, filter NotificationFilter, page, limit int) ([]models.Notification, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_deleted = false", recipientID)

	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.IsRead != nil {
		q = q.Where("is_read = ?", *filter.IsRead)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []models.Notification
	offset := (page - 1) * limit
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&notifications).Error
	return notifications, total, err
}

func (r *postgresNotificationRepository) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = false AND is_deleted = false", recipientID).
		Count(&count).Error
	return count, err
}

func (r *postgresNotificationRepository) UnreadCountByType(ctx context.Context, recipientID uint) (map[models.NotificationType]int64, error) {
	type row struct {
		Type  models.NotificationType
		Count int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Select("type, count(id) as count").
		Where("recipient_id = ? AND is_read = false AND is_deleted = false", recipientID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.NotificationType]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}

func (r *postgresNotificationRepository) Stats(ctx context.Context, recipientID uint) (*models.NotificationStats, error) {
	base := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_deleted = false", recipientID)

	stats := &models.NotificationStats{ByType: make(map[models.NotificationType]int64)}

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("is_read = false").Count(&stats.UnreadCount).Error; err != nil {
		return nil, err
	}
	stats.ReadCount = stats.TotalCount - stats.UnreadCount

	weekAgo := time.Now().AddDate(0, 0, -7)
	if err := base.Session(&gorm.Session{}).Where("created_at >= ?", weekAgo).Count(&stats.RecentCount).Error; err != nil {
		return nil, err
	}

	type row struct {
		Type  models.NotificationType
		Count int64
	}
	var rows []row
	err := base.Session(&gorm.Session{}).
		Select("type, count(id) as count").
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByType[row.Type] = row.Count
	}
	return stats, nil
}

// MarkRead transitions unread notifications to read, stamping ReadAt.
// Already-read rows are untouched, so repeating the call reports zero updates.
func (r *postgresNotificationRepository) MarkRead(ctx context.Context, recipientID uint, ids []uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ? AND recipient_id = ? AND is_read = false", ids, recipientID).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *postgresNotificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = false AND is_deleted = false", recipientID).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()})
	return res.RowsAffected, res.Error
}

// MarkUnread clears both the read flag and the read timestamp together,
// preserving the read-flag/read-timestamp invariant.
func (r *postgresNotificationRepository) MarkUnread(ctx context.Context, recipientID uint, ids []uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ? AND recipient_id = ? AND is_read = true", ids, recipientID).
		Updates(map[string]any{"is_read": false, "read_at": nil})
	return res.RowsAffected, res.Error
}

func (r *postgresNotificationRepository) SoftDelete(ctx context.Context, recipientID uint, ids []uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ? AND recipient_id = ? AND is_deleted = false", ids, recipientID).
		Update("is_deleted", true)
	return res.RowsAffected, res.Error
}

func (r *postgresNotificationRepository) HasRecentDuplicate(ctx context.Context, recipientID, senderID uint, t models.NotificationType, subject models.SubjectRef, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND sender_id = ? AND type = ? AND subject_type = ? AND subject_id = ? AND is_deleted = false AND created_at >= ?",
			recipientID, senderID, t, subject.Type, subject.ID, since).
		Count(&count).Error
	return count > 0, err
}

// DeleteRecentMatch physically removes notifications matching a retracted
// event (unlike, unfollow) created after since.
func (r *postgresNotificationRepository) DeleteRecentMatch(ctx context.Context, recipientID, senderID uint, t models.NotificationType, subject models.SubjectRef, since time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("recipient_id = ? AND sender_id = ? AND type = ? AND subject_type = ? AND subject_id = ? AND created_at >= ?",
			recipientID, senderID, t, subject.Type, subject.ID, since).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

func (r *postgresNotificationRepository) CountOlderThan(ctx context.Context, cutoff time.Time, readOnly bool) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Notification{}).Where("created_at < ?", cutoff)
	if readOnly {
		q = q.Where("is_read = true")
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

// PurgeOlderThan physically deletes matching rows in bounded batches so a
// large backlog never turns into one long-running delete.
func (r *postgresNotificationRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time, readOnly bool, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int64
	for {
		q := r.db.WithContext(ctx).Model(&models.Notification{}).Where("created_at < ?", cutoff)
		if readOnly {
			q = q.Where("is_read = true")
		}

		var ids []uint
		if err := q.Limit(batchSize).Pluck("id", &ids).Error; err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Notification{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
}

func (r *postgresNotificationRepository) RecipientsWithUnreadBetween(ctx context.Context, start, end time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Distinct("recipient_id").
		Where("is_read = false AND is_deleted = false AND created_at >= ? AND created_at <= ?", start, end).
		Pluck("recipient_id", &ids).Error
	return ids, err
}

func (r *postgresNotificationRepository) UnreadBetween(ctx context.Context, recipientID uint, start, end time.Time) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND is_read = false AND is_deleted = false AND created_at >= ? AND created_at <= ?",
			recipientID, start, end).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/waveline/notify-server/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.Notification{},
		&models.NotificationPreferences{},
		&models.PushDevice{},
	))
	return db
}

func seedNotification(t *testing.T, db *gorm.DB, recipientID uint, senderID *uint, typ models.NotificationType, createdAt time.Time) uint {
	t.Helper()
	n := models.Notification{
		RecipientID: recipientID,
		SenderID:    senderID,
		Type:        typ,
		Title:       "title",
		Message:     "message",
		CreatedAt:   createdAt,
	}
	require.NoError(t, db.Create(&n).Error)
	return n.ID
}

func TestMarkReadIdempotentAndInvariant(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(2)
	id := seedNotification(t, db, 1, &sender, models.NotificationLike, time.Now())

	updated, err := repo.MarkRead(ctx, 1, []uint{id})
	require.NoError(t, err)
	require.EqualValues(t, 1, updated)

	n, err := repo.GetByID(ctx, 1, id)
	require.NoError(t, err)
	require.True(t, n.IsRead)
	require.NotNil(t, n.ReadAt)

	// Second call touches nothing.
	updated, err = repo.MarkRead(ctx, 1, []uint{id})
	require.NoError(t, err)
	require.Zero(t, updated)

	updated, err = repo.MarkUnread(ctx, 1, []uint{id})
	require.NoError(t, err)
	require.EqualValues(t, 1, updated)

	n, err = repo.GetByID(ctx, 1, id)
	require.NoError(t, err)
	require.False(t, n.IsRead)
	require.Nil(t, n.ReadAt)

	updated, err = repo.MarkUnread(ctx, 1, []uint{id})
	require.NoError(t, err)
	require.Zero(t, updated)
}

func TestOwnershipScoping(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(9)
	id := seedNotification(t, db, 1, &sender, models.NotificationLike, time.Now())

	// Another user can neither read nor mutate the row.
	_, err := repo.GetByID(ctx, 2, id)
	require.ErrorIs(t, err, ErrNotFound)

	updated, err := repo.MarkRead(ctx, 2, []uint{id})
	require.NoError(t, err)
	require.Zero(t, updated)

	deleted, err := repo.SoftDelete(ctx, 2, []uint{id})
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestSoftDeleteHidesRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(2)
	id := seedNotification(t, db, 1, &sender, models.NotificationComment, time.Now())

	deleted, err := repo.SoftDelete(ctx, 1, []uint{id})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	_, err = repo.GetByID(ctx, 1, id)
	require.ErrorIs(t, err, ErrNotFound)

	list, total, err := repo.GetByRecipient(ctx, 1, NotificationFilter{}, 1, 10)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)

	// Repeat reports nothing left to delete.
	deleted, err = repo.SoftDelete(ctx, 1, []uint{id})
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestGetByRecipientFiltersAndOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(2)
	now := time.Now()
	oldID := seedNotification(t, db, 1, &sender, models.NotificationLike, now.Add(-2*time.Hour))
	newID := seedNotification(t, db, 1, &sender, models.NotificationComment, now)
	seedNotification(t, db, 3, &sender, models.NotificationLike, now)

	list, total, err := repo.GetByRecipient(ctx, 1, NotificationFilter{}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, newID, list[0].ID)
	require.Equal(t, oldID, list[1].ID)

	likeType := models.NotificationLike
	list, total, err = repo.GetByRecipient(ctx, 1, NotificationFilter{Type: &likeType}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, oldID, list[0].ID)

	_, err = repo.MarkRead(ctx, 1, []uint{newID})
	require.NoError(t, err)

	unread := false
	list, total, err = repo.GetByRecipient(ctx, 1, NotificationFilter{IsRead: &unread}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, oldID, list[0].ID)
}

func TestUnreadCounts(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(2)
	now := time.Now()
	seedNotification(t, db, 1, &sender, models.NotificationLike, now)
	seedNotification(t, db, 1, &sender, models.NotificationLike, now)
	readID := seedNotification(t, db, 1, &sender, models.NotificationFollow, now)

	_, err := repo.MarkRead(ctx, 1, []uint{readID})
	require.NoError(t, err)

	count, err := repo.UnreadCount(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	byType, err := repo.UnreadCountByType(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, byType[models.NotificationLike])
	require.NotContains(t, byType, models.NotificationFollow)
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(2)
	now := time.Now()
	seedNotification(t, db, 1, &sender, models.NotificationLike, now)
	seedNotification(t, db, 1, &sender, models.NotificationLike, now.AddDate(0, 0, -10))
	readID := seedNotification(t, db, 1, &sender, models.NotificationComment, now)
	_, err := repo.MarkRead(ctx, 1, []uint{readID})
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalCount)
	require.EqualValues(t, 2, stats.UnreadCount)
	require.EqualValues(t, 1, stats.ReadCount)
	require.EqualValues(t, 2, stats.RecentCount)
	require.EqualValues(t, 2, stats.ByType[models.NotificationLike])
	require.EqualValues(t, 1, stats.ByType[models.NotificationComment])
}

func TestHasRecentDuplicateWindow(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(2)
	subject := models.SubjectRef{Type: models.SubjectPost, ID: "5"}
	n := models.Notification{
		RecipientID: 1, SenderID: &sender, Type: models.NotificationLike,
		SubjectType: subject.Type, SubjectID: subject.ID,
		CreatedAt: time.Now().Add(-30 * time.Minute),
	}
	require.NoError(t, db.Create(&n).Error)

	dup, err := repo.HasRecentDuplicate(ctx, 1, sender, models.NotificationLike, subject, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, dup)

	// Outside a tighter window the old row does not count.
	dup, err = repo.HasRecentDuplicate(ctx, 1, sender, models.NotificationLike, subject, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	require.False(t, dup)

	// Different subject is never a duplicate.
	dup, err = repo.HasRecentDuplicate(ctx, 1, sender, models.NotificationLike, models.SubjectRef{Type: models.SubjectPost, ID: "6"}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.False(t, dup)
}

func TestPurgeOlderThan(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(2)
	now := time.Now()

	oldRead := seedNotification(t, db, 1, &sender, models.NotificationLike, now.AddDate(0, 0, -40))
	_, err := repo.MarkRead(ctx, 1, []uint{oldRead})
	require.NoError(t, err)
	oldUnread := seedNotification(t, db, 1, &sender, models.NotificationLike, now.AddDate(0, 0, -40))
	ancient := seedNotification(t, db, 1, &sender, models.NotificationLike, now.AddDate(0, 0, -100))
	fresh := seedNotification(t, db, 1, &sender, models.NotificationLike, now)

	// Read rows past the 30 day cutoff go first; unread ones survive.
	purged, err := repo.PurgeOlderThan(ctx, now.AddDate(0, 0, -30), true, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	// Everything past the 90 day cutoff goes regardless of read state.
	purged, err = repo.PurgeOlderThan(ctx, now.AddDate(0, 0, -90), false, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	var remaining []uint
	require.NoError(t, db.Model(&models.Notification{}).Order("id").Pluck("id", &remaining).Error)
	require.Equal(t, []uint{oldUnread, fresh}, remaining)
	require.NotContains(t, remaining, oldRead)
	require.NotContains(t, remaining, ancient)
}

func TestDigestQueries(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := context.Background()

	sender := uint(9)
	dayStart := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

	inWindowOld := seedNotification(t, db, 1, &sender, models.NotificationLike, dayStart.Add(2*time.Hour))
	inWindowNew := seedNotification(t, db, 1, &sender, models.NotificationComment, dayStart.Add(20*time.Hour))
	seedNotification(t, db, 2, &sender, models.NotificationLike, dayStart.Add(5*time.Hour))
	seedNotification(t, db, 3, &sender, models.NotificationLike, dayEnd.Add(time.Hour))

	readID := seedNotification(t, db, 4, &sender, models.NotificationLike, dayStart.Add(time.Hour))
	_, err := repo.MarkRead(ctx, 4, []uint{readID})
	require.NoError(t, err)

	recipients, err := repo.RecipientsWithUnreadBetween(ctx, dayStart, dayEnd)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{1, 2}, recipients)

	unread, err := repo.UnreadBetween(ctx, 1, dayStart, dayEnd)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	require.Equal(t, inWindowNew, unread[0].ID)
	require.Equal(t, inWindowOld, unread[1].ID)
}

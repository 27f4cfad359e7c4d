package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/waveline/notify-server/internal/cache"
	"github.com/waveline/notify-server/internal/delivery"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/queue"
	"github.com/waveline/notify-server/internal/repositories"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db            *gorm.DB
	store         *queue.MemoryStore
	notifications repositories.NotificationRepository
	preferences   repositories.PreferenceRepository
	dispatcher    *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
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

	store := queue.NewMemoryStore()
	enqueuer, err := queue.NewEnqueuer(store)
	require.NoError(t, err)

	notifications := repositories.NewPostgresNotificationRepository(db)
	preferences := repositories.NewPostgresPreferenceRepository(db)
	users := repositories.NewPostgresUserRepository(db)
	follows := repositories.NewPostgresFollowRepository(db)

	log := zerolog.Nop()
	dispatcher := NewDispatcher(
		notifications, preferences, users, follows, nil,
		enqueuer,
		NewGuard(notifications, time.Hour, log),
		NewRenderer(log),
		cache.NewUnreadCountCache(nil, log),
		DispatcherConfig{FanoutBatchSize: 2, RetractWindow: 24 * time.Hour, SiteName: "Waveline"},
		log,
	)

	return &testEnv{
		db:            db,
		store:         store,
		notifications: notifications,
		preferences:   preferences,
		dispatcher:    dispatcher,
	}
}

func (e *testEnv) createUser(t *testing.T, username string) uint {
	t.Helper()
	u := models.User{Username: username, DisplayName: username, Email: username + "@example.com"}
	require.NoError(t, e.db.Create(&u).Error)
	return u.ID
}

func (e *testEnv) follow(t *testing.T, followerID, followingID uint) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.Follow{FollowerID: followerID, FollowingID: followingID}).Error)
}

func (e *testEnv) notificationCount(t *testing.T, recipientID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.Notification{}).Where("recipient_id = ?", recipientID).Count(&count).Error)
	return count
}

func (e *testEnv) taskCounts() (email, push int) {
	for _, task := range e.store.Tasks() {
		switch task.Queue {
		case delivery.EmailQueue:
			email++
		case delivery.PushQueue:
			push++
		}
	}
	return
}

func TestDispatcherSelfNotificationSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	err := env.dispatcher.Handle(ctx, Event{
		Type:       models.NotificationLike,
		ActorID:    &alice,
		Subject:    models.SubjectRef{Type: models.SubjectPost, ID: "1"},
		Recipients: []uint{alice},
	})
	require.NoError(t, err)
	require.Zero(t, env.notificationCount(t, alice))
}

func TestDispatcherDuplicateSuppressed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	ev := Event{
		Type:       models.NotificationLike,
		ActorID:    &bob,
		Subject:    models.SubjectRef{Type: models.SubjectPost, ID: "1"},
		Recipients: []uint{alice},
	}
	require.NoError(t, env.dispatcher.Handle(ctx, ev))
	require.NoError(t, env.dispatcher.Handle(ctx, ev))

	require.EqualValues(t, 1, env.notificationCount(t, alice))
}

func TestDispatcherSystemEventsBypassSelfAndDedup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	require.NoError(t, env.dispatcher.NotifyWelcome(ctx, alice))
	require.NoError(t, env.dispatcher.NotifySecurity(ctx, alice, "was signed in from a new device"))

	require.EqualValues(t, 2, env.notificationCount(t, alice))
}

func TestDispatcherRetractAndRecreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	ev := Event{
		Type:       models.NotificationFollow,
		ActorID:    &bob,
		Subject:    models.SubjectRef{Type: models.SubjectUser, ID: "2"},
		Recipients: []uint{alice},
	}

	require.NoError(t, env.dispatcher.Handle(ctx, ev))
	require.EqualValues(t, 1, env.notificationCount(t, alice))

	require.NoError(t, env.dispatcher.Retract(ctx, ev))
	require.Zero(t, env.notificationCount(t, alice))

	// Refollow creates a fresh notification; the deleted row no longer
	// counts as a duplicate.
	require.NoError(t, env.dispatcher.Handle(ctx, ev))
	require.EqualValues(t, 1, env.notificationCount(t, alice))
}

func TestDispatcherFollowerFanoutWithPreferenceGating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")

	followers := make([]uint, 0, 5)
	for _, name := range []string{"f1", "f2", "f3", "f4", "f5"} {
		id := env.createUser(t, name)
		env.follow(t, id, author)
		followers = append(followers, id)
	}

	// One follower turns off both outbound channels for reposts.
	off := false
	_, err := env.preferences.Update(ctx, followers[0], &models.UpdatePreferencesRequest{
		EmailReposts: &off,
		PushReposts:  &off,
	})
	require.NoError(t, err)

	require.NoError(t, env.dispatcher.Handle(ctx, Event{
		Type:        models.NotificationRepost,
		ActorID:     &author,
		Subject:     models.SubjectRef{Type: models.SubjectPost, ID: "9"},
		FollowersOf: author,
	}))

	// Rows are always written; preferences only gate the channel jobs.
	for _, id := range followers {
		require.EqualValues(t, 1, env.notificationCount(t, id), "follower %d", id)
	}
	email, push := env.taskCounts()
	require.Equal(t, 4, email)
	require.Equal(t, 4, push)
}

func TestDispatcherExplicitAndFollowerRecipientsDeduplicated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.createUser(t, "author")
	fan := env.createUser(t, "fan")
	env.follow(t, fan, author)

	require.NoError(t, env.dispatcher.Handle(ctx, Event{
		Type:        models.NotificationRepost,
		ActorID:     &author,
		Subject:     models.SubjectRef{Type: models.SubjectPost, ID: "3"},
		Recipients:  []uint{fan},
		FollowersOf: author,
	}))

	require.EqualValues(t, 1, env.notificationCount(t, fan))
}

func TestDispatcherMentions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	err := env.dispatcher.HandleMentions(ctx, carol,
		"hey @alice and @bob, also @alice again and @ghost",
		models.SubjectRef{Type: models.SubjectPost, ID: "7"}, "post")
	require.NoError(t, err)

	require.EqualValues(t, 1, env.notificationCount(t, alice))
	require.EqualValues(t, 1, env.notificationCount(t, bob))
	require.Zero(t, env.notificationCount(t, carol))
}

func TestDispatcherSelfMentionSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	err := env.dispatcher.HandleMentions(ctx, alice, "note to @alice",
		models.SubjectRef{Type: models.SubjectPost, ID: "7"}, "post")
	require.NoError(t, err)
	require.Zero(t, env.notificationCount(t, alice))
}

func TestDispatcherInvalidEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.dispatcher.Handle(ctx, Event{Type: models.NotificationType("poke"), Recipients: []uint{1}})
	require.ErrorIs(t, err, ErrInvalidEvent)

	err = env.dispatcher.Handle(ctx, Event{Type: models.NotificationLike})
	require.ErrorIs(t, err, ErrInvalidEvent)
}

package delivery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/queue"
	"github.com/waveline/notify-server/internal/repositories"
	"gorm.io/gorm"
)

func newDigestScheduler(t *testing.T, db *gorm.DB) (*DigestScheduler, *queue.MemoryStore) {
	t.Helper()
	store := queue.NewMemoryStore()
	enqueuer, err := queue.NewEnqueuer(store)
	require.NoError(t, err)

	scheduler := NewDigestScheduler(
		repositories.NewPostgresNotificationRepository(db),
		repositories.NewPostgresPreferenceRepository(db),
		enqueuer,
		zerolog.Nop(),
	)
	return scheduler, store
}

func digestJobs(t *testing.T, store *queue.MemoryStore) []DigestJob {
	t.Helper()
	var jobs []DigestJob
	for _, task := range store.Tasks() {
		var job DigestJob
		require.NoError(t, json.Unmarshal(task.Payload, &job))
		jobs = append(jobs, job)
	}
	return jobs
}

func TestDigestEnqueuesPerQualifyingUser(t *testing.T) {
	db := newTestDB(t)
	scheduler, store := newDigestScheduler(t, db)
	ctx := context.Background()

	yesterday := time.Now().AddDate(0, 0, -1)
	dayStart := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, yesterday.Location())

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	oldID := createNotification(t, db, alice, models.NotificationLike, dayStart.Add(2*time.Hour))
	newID := createNotification(t, db, alice, models.NotificationComment, dayStart.Add(20*time.Hour))
	createNotification(t, db, bob, models.NotificationLike, dayStart.Add(3*time.Hour))
	// Outside the window: today's notification does not qualify.
	carol := createUser(t, db, "carol")
	createNotification(t, db, carol, models.NotificationLike, time.Now())

	res, err := scheduler.Run(ctx, DigestOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, res.JobsEnqueued)

	jobs := digestJobs(t, store)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		if job.UserID == alice {
			// Newest first.
			require.Equal(t, []uint{newID, oldID}, job.NotificationIDs)
		}
	}
}

func TestDigestZeroQualifyingProducesNoJobs(t *testing.T) {
	db := newTestDB(t)
	scheduler, store := newDigestScheduler(t, db)

	alice := createUser(t, db, "alice")
	createNotification(t, db, alice, models.NotificationLike, time.Now())

	res, err := scheduler.Run(context.Background(), DigestOptions{})
	require.NoError(t, err)
	require.Zero(t, res.JobsEnqueued)
	require.Empty(t, store.Tasks())
}

func TestDigestRespectsOptOutAndForce(t *testing.T) {
	db := newTestDB(t)
	scheduler, store := newDigestScheduler(t, db)
	ctx := context.Background()

	yesterday := time.Now().AddDate(0, 0, -1)
	alice := createUser(t, db, "alice")
	createNotification(t, db, alice, models.NotificationLike, yesterday)

	off := false
	_, err := repositories.NewPostgresPreferenceRepository(db).Update(ctx, alice,
		&models.UpdatePreferencesRequest{EmailSystem: &off})
	require.NoError(t, err)

	res, err := scheduler.Run(ctx, DigestOptions{})
	require.NoError(t, err)
	require.Zero(t, res.JobsEnqueued)
	require.Equal(t, 1, res.UsersSkipped)
	require.Empty(t, store.Tasks())

	res, err = scheduler.Run(ctx, DigestOptions{Force: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.JobsEnqueued)
	require.Len(t, store.Tasks(), 1)
}

func TestDigestDryRun(t *testing.T) {
	db := newTestDB(t)
	scheduler, store := newDigestScheduler(t, db)

	alice := createUser(t, db, "alice")
	createNotification(t, db, alice, models.NotificationLike, time.Now().AddDate(0, 0, -1))

	res, err := scheduler.Run(context.Background(), DigestOptions{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.JobsEnqueued)
	require.Equal(t, 1, res.Notifications)
	require.Empty(t, store.Tasks())
}

func TestDigestSingleUserTargeting(t *testing.T) {
	db := newTestDB(t)
	scheduler, store := newDigestScheduler(t, db)

	yesterday := time.Now().AddDate(0, 0, -1)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	createNotification(t, db, alice, models.NotificationLike, yesterday)
	createNotification(t, db, bob, models.NotificationLike, yesterday)

	res, err := scheduler.Run(context.Background(), DigestOptions{UserID: bob})
	require.NoError(t, err)
	require.Equal(t, 1, res.JobsEnqueued)

	jobs := digestJobs(t, store)
	require.Len(t, jobs, 1)
	require.Equal(t, bob, jobs[0].UserID)
}

func TestDigestWorkerRendersAggregateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sender := &recordingSender{}

	alice := createUser(t, db, "alice")
	yesterday := time.Now().AddDate(0, 0, -1)
	id1 := createNotification(t, db, alice, models.NotificationLike, yesterday)
	id2 := createNotification(t, db, alice, models.NotificationComment, yesterday)

	// One of the two was read after the job was enqueued.
	notifications := repositories.NewPostgresNotificationRepository(db)
	_, err := notifications.MarkRead(ctx, alice, []uint{id2})
	require.NoError(t, err)

	worker := NewDigestWorker(
		notifications,
		repositories.NewPostgresUserRepository(db),
		sender,
		"Waveline", "https://waveline.app",
		zerolog.Nop(),
	)

	require.NoError(t, worker.handle(ctx, DigestJob{UserID: alice, NotificationIDs: []uint{id2, id1}}))

	sent := sender.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "alice@example.com", sent[0].To)
	require.Contains(t, sent[0].Subject, "1 unread")
}

func TestDigestWorkerNothingLeftSendsNothing(t *testing.T) {
	db := newTestDB(t)
	sender := &recordingSender{}
	alice := createUser(t, db, "alice")

	worker := NewDigestWorker(
		repositories.NewPostgresNotificationRepository(db),
		repositories.NewPostgresUserRepository(db),
		sender,
		"Waveline", "https://waveline.app",
		zerolog.Nop(),
	)

	require.NoError(t, worker.handle(context.Background(), DigestJob{UserID: alice, NotificationIDs: []uint{404}}))
	require.Empty(t, sender.Sent())
}

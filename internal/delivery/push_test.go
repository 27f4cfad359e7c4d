package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/repositories"
	"github.com/waveline/notify-server/pkg/firebase"
	"gorm.io/gorm"
)

func newPushWorker(db *gorm.DB, sender PushSender) (*PushWorker, repositories.DeviceRepository) {
	devices := repositories.NewPostgresDeviceRepository(db)
	return NewPushWorker(
		repositories.NewPostgresNotificationRepository(db),
		repositories.NewPostgresPreferenceRepository(db),
		devices,
		sender,
		zerolog.Nop(),
	), devices
}

func registerDevice(t *testing.T, devices repositories.DeviceRepository, userID uint, deviceID, token string) {
	t.Helper()
	require.NoError(t, devices.Upsert(context.Background(), &models.PushDevice{
		UserID: userID, DeviceType: models.DeviceAndroid, DeviceID: deviceID, Token: token,
	}))
}

func TestPushWorkerSendsToAllActiveDevices(t *testing.T) {
	db := newTestDB(t)
	sender := &fakePushSender{}
	worker, devices := newPushWorker(db, sender)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	registerDevice(t, devices, alice, "phone", "tok-phone")
	registerDevice(t, devices, alice, "tablet", "tok-tablet")
	require.NoError(t, devices.Deactivate(ctx, alice, "tablet"))
	registerDevice(t, devices, alice, "laptop", "tok-laptop")

	id := createNotification(t, db, alice, models.NotificationComment, time.Now())
	require.NoError(t, worker.handle(ctx, PushJob{NotificationID: id}))

	require.ElementsMatch(t, []string{"tok-phone", "tok-laptop"}, sender.Tokens())
}

func TestPushWorkerDeactivatesUnregisteredToken(t *testing.T) {
	db := newTestDB(t)
	sender := &fakePushSender{errs: map[string]error{
		"tok-dead": fmt.Errorf("%w: gone", firebase.ErrUnregistered),
	}}
	worker, devices := newPushWorker(db, sender)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	registerDevice(t, devices, alice, "old-phone", "tok-dead")
	registerDevice(t, devices, alice, "new-phone", "tok-live")

	id := createNotification(t, db, alice, models.NotificationComment, time.Now())

	// A dead token never fails the job; the healthy device still receives.
	require.NoError(t, worker.handle(ctx, PushJob{NotificationID: id}))
	require.Equal(t, []string{"tok-live"}, sender.Tokens())

	active, err := devices.ActiveByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "new-phone", active[0].DeviceID)
}

func TestPushWorkerTransientFailureRetries(t *testing.T) {
	db := newTestDB(t)
	sender := &fakePushSender{errs: map[string]error{
		"tok-flaky": errors.New("deadline exceeded"),
	}}
	worker, devices := newPushWorker(db, sender)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	registerDevice(t, devices, alice, "phone", "tok-flaky")
	registerDevice(t, devices, alice, "tablet", "tok-ok")

	id := createNotification(t, db, alice, models.NotificationComment, time.Now())

	// One transient device failure requeues the job, but the other device
	// was still attempted first.
	require.Error(t, worker.handle(ctx, PushJob{NotificationID: id}))
	require.Equal(t, []string{"tok-ok"}, sender.Tokens())
}

func TestPushWorkerRespectsPreferences(t *testing.T) {
	db := newTestDB(t)
	sender := &fakePushSender{}
	worker, devices := newPushWorker(db, sender)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	registerDevice(t, devices, alice, "phone", "tok")

	off := false
	_, err := repositories.NewPostgresPreferenceRepository(db).Update(ctx, alice,
		&models.UpdatePreferencesRequest{PushComments: &off})
	require.NoError(t, err)

	id := createNotification(t, db, alice, models.NotificationComment, time.Now())
	require.NoError(t, worker.handle(ctx, PushJob{NotificationID: id}))
	require.Empty(t, sender.Tokens())
}

func TestPushWorkerNoDevices(t *testing.T) {
	db := newTestDB(t)
	sender := &fakePushSender{}
	worker, _ := newPushWorker(db, sender)

	alice := createUser(t, db, "alice")
	id := createNotification(t, db, alice, models.NotificationComment, time.Now())

	require.NoError(t, worker.handle(context.Background(), PushJob{NotificationID: id}))
	require.Empty(t, sender.Tokens())
}

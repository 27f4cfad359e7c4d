package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/waveline/notify-server/internal/models"
)

func TestPreferenceGetOrCreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresPreferenceRepository(db)
	ctx := context.Background()

	prefs, err := repo.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, prefs.UserID)
	require.True(t, prefs.EmailLikes)
	require.True(t, prefs.PushSystem)
	require.Nil(t, prefs.QuietHoursStart)

	// Second call returns the same row instead of inserting another.
	again, err := repo.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, prefs.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.NotificationPreferences{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestPreferenceUpdatePatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostgresPreferenceRepository(db)
	ctx := context.Background()

	off := false
	start := "22:00"
	end := "08:00"
	prefs, err := repo.Update(ctx, 1, &models.UpdatePreferencesRequest{
		EmailLikes:      &off,
		QuietHoursStart: &start,
		QuietHoursEnd:   &end,
	})
	require.NoError(t, err)
	require.False(t, prefs.EmailLikes)
	require.True(t, prefs.EmailComments)
	require.Equal(t, "22:00", *prefs.QuietHoursStart)
	require.Equal(t, "08:00", *prefs.QuietHoursEnd)

	// Untouched fields survive a second sparse patch.
	on := true
	empty := ""
	prefs, err = repo.Update(ctx, 1, &models.UpdatePreferencesRequest{
		PushLikes:       &on,
		QuietHoursStart: &empty,
	})
	require.NoError(t, err)
	require.False(t, prefs.EmailLikes)
	require.Nil(t, prefs.QuietHoursStart)
	require.Equal(t, "08:00", *prefs.QuietHoursEnd)
}

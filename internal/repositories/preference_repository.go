package repositories

import (
	"context"
	"errors"

	"github.com/waveline/notify-server/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceRepository stores per-user notification preferences with
// get-or-create semantics: a user without a row behaves as all-enabled.
type PreferenceRepository interface {
	GetOrCreate(ctx context.Context, userID uint) (*models.NotificationPreferences, error)
	Update(ctx context.Context, userID uint, patch *models.UpdatePreferencesRequest) (*models.NotificationPreferences, error)
}

type postgresPreferenceRepository struct {
	db *gorm.DB
}

// NewPostgresPreferenceRepository creates a gorm-backed PreferenceRepository.
func NewPostgresPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &postgresPreferenceRepository{db: db}
}

func (r *postgresPreferenceRepository) GetOrCreate(ctx context.Context, userID uint) (*models.NotificationPreferences, error) {
	var prefs models.NotificationPreferences
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	if err == nil {
		return &prefs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	prefs = *models.DefaultPreferences(userID)
	// Concurrent first accesses may race on the insert; the unique index on
	// user_id makes the loser fall through to a plain read.
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&prefs).Error
	if err != nil {
		return nil, err
	}
	if prefs.ID == 0 {
		if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error; err != nil {
			return nil, err
		}
	}
	return &prefs, nil
}

func (r *postgresPreferenceRepository) Update(ctx context.Context, userID uint, patch *models.UpdatePreferencesRequest) (*models.NotificationPreferences, error) {
	prefs, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	applyPreferencePatch(prefs, patch)

	if err := r.db.WithContext(ctx).Save(prefs).Error; err != nil {
		return nil, err
	}
	return prefs, nil
}

func applyPreferencePatch(prefs *models.NotificationPreferences, patch *models.UpdatePreferencesRequest) {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	set(&prefs.EmailLikes, patch.EmailLikes)
	set(&prefs.EmailComments, patch.EmailComments)
	set(&prefs.EmailFollows, patch.EmailFollows)
	set(&prefs.EmailMentions, patch.EmailMentions)
	set(&prefs.EmailReposts, patch.EmailReposts)
	set(&prefs.EmailMessages, patch.EmailMessages)
	set(&prefs.EmailSystem, patch.EmailSystem)

	set(&prefs.PushLikes, patch.PushLikes)
	set(&prefs.PushComments, patch.PushComments)
	set(&prefs.PushFollows, patch.PushFollows)
	set(&prefs.PushMentions, patch.PushMentions)
	set(&prefs.PushReposts, patch.PushReposts)
	set(&prefs.PushMessages, patch.PushMessages)
	set(&prefs.PushSystem, patch.PushSystem)

	set(&prefs.WebLikes, patch.WebLikes)
	set(&prefs.WebComments, patch.WebComments)
	set(&prefs.WebFollows, patch.WebFollows)
	set(&prefs.WebMentions, patch.WebMentions)
	set(&prefs.WebReposts, patch.WebReposts)
	set(&prefs.WebMessages, patch.WebMessages)
	set(&prefs.WebSystem, patch.WebSystem)

	if patch.QuietHoursStart != nil {
		if *patch.QuietHoursStart == "" {
			prefs.QuietHoursStart = nil
		} else {
			prefs.QuietHoursStart = patch.QuietHoursStart
		}
	}
	if patch.QuietHoursEnd != nil {
		if *patch.QuietHoursEnd == "" {
			prefs.QuietHoursEnd = nil
		} else {
			prefs.QuietHoursEnd = patch.QuietHoursEnd
		}
	}
}

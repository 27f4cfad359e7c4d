package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/waveline/notify-server/internal/models"
	"gorm.io/gorm"
)

// DeviceRepository stores per-user push device registrations.
type DeviceRepository interface {
	// Upsert registers a device, refreshing the token and metadata when the
	// (user, device id) pair already exists.
	Upsert(ctx context.Context, device *models.PushDevice) error
	GetByUser(ctx context.Context, userID uint) ([]models.PushDevice, error)
	ActiveByUser(ctx context.Context, userID uint) ([]models.PushDevice, error)
	Deactivate(ctx context.Context, userID uint, deviceID string) error
	TouchLastUsed(ctx context.Context, id uint) error
}

type postgresDeviceRepository struct {
	db *gorm.DB
}

// NewPostgresDeviceRepository creates a gorm-backed DeviceRepository.
func NewPostgresDeviceRepository(db *gorm.DB) DeviceRepository {
	return &postgresDeviceRepository{db: db}
}

func (r *postgresDeviceRepository) Upsert(ctx context.Context, device *models.PushDevice) error {
	var existing models.PushDevice
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", device.UserID, device.DeviceID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			device.IsActive = true
			device.LastUsed = time.Now()
			return r.db.WithContext(ctx).Create(device).Error
		}
		return err
	}

	existing.DeviceType = device.DeviceType
	existing.Token = device.Token
	existing.UserAgent = device.UserAgent
	existing.AppVersion = device.AppVersion
	existing.IsActive = true
	existing.LastUsed = time.Now()
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return err
	}
	*device = existing
	return nil
}

func (r *postgresDeviceRepository) GetByUser(ctx context.Context, userID uint) ([]models.PushDevice, error) {
	var devices []models.PushDevice
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_used DESC").
		Find(&devices).Error
	return devices, err
}

func (r *postgresDeviceRepository) ActiveByUser(ctx context.Context, userID uint) ([]models.PushDevice, error) {
	var devices []models.PushDevice
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = true", userID).
		Find(&devices).Error
	return devices, err
}

func (r *postgresDeviceRepository) Deactivate(ctx context.Context, userID uint, deviceID string) error {
	res := r.db.WithContext(ctx).Model(&models.PushDevice{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresDeviceRepository) TouchLastUsed(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.PushDevice{}).
		Where("id = ?", id).
		Update("last_used", time.Now()).Error
}

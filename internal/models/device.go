package models

import "time"

// DeviceType identifies the platform a push device runs on.
type DeviceType string

const (
	DeviceWeb     DeviceType = "web"
	DeviceIOS     DeviceType = "ios"
	DeviceAndroid DeviceType = "android"
)

// PushDevice is a per-user push registration. The (UserID, DeviceID) pair is
// unique: re-registering the same device refreshes the token instead of
// creating a duplicate row.
type PushDevice struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	UserID     uint       `json:"user_id" gorm:"uniqueIndex:idx_push_devices_user_device"`
	DeviceType DeviceType `json:"device_type" gorm:"size:20"`
	Token      string     `json:"-"`
	DeviceID   string     `json:"device_id" gorm:"size:200;uniqueIndex:idx_push_devices_user_device"`
	UserAgent  string     `json:"user_agent,omitempty"`
	AppVersion string     `json:"app_version,omitempty" gorm:"size:50"`
	IsActive   bool       `json:"is_active" gorm:"default:true;index"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastUsed   time.Time  `json:"last_used"`
}

// RegisterDeviceRequest is the payload for registering or refreshing a push device.
type RegisterDeviceRequest struct {
	DeviceType string `json:"device_type" validate:"required,oneof=web ios android"`
	Token      string `json:"token" validate:"required"`
	DeviceID   string `json:"device_id" validate:"required,max=200"`
	UserAgent  string `json:"user_agent,omitempty"`
	AppVersion string `json:"app_version,omitempty" validate:"omitempty,max=50"`
}

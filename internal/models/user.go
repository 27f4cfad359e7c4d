package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is the minimal account projection the notification service needs:
// identity for ownership checks, username for mention resolution and the
// email address for the email channel.
type User struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Username    string    `json:"username" gorm:"size:50;uniqueIndex"`
	DisplayName string    `json:"display_name" gorm:"size:100"`
	Email       string    `json:"email" gorm:"uniqueIndex"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserCompact is the embedded actor shape returned alongside notifications.
type UserCompact struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// ToCompact converts a User to its compact representation.
func (u *User) ToCompact() UserCompact {
	return UserCompact{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

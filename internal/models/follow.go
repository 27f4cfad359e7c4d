package models

import "time"

// Follow is a follower -> followee edge, read by the fan-out path to resolve
// the recipient set for new-post events.
type Follow struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	FollowerID  uint      `json:"follower_id" gorm:"uniqueIndex:idx_follows_pair"`
	FollowingID uint      `json:"following_id" gorm:"uniqueIndex:idx_follows_pair;index"`
	CreatedAt   time.Time `json:"created_at"`
}

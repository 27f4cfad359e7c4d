package repositories

import (
	"context"

	"github.com/waveline/notify-server/internal/models"
	"gorm.io/gorm"
)

// FollowRepository exposes the follower graph to the fan-out path.
type FollowRepository interface {
	// GetFollowerIDsPage returns up to limit follower ids of userID with an
	// id greater than afterID, ascending. Paging by id keeps fan-out memory
	// bounded no matter how large the follower set is.
	GetFollowerIDsPage(ctx context.Context, userID, afterID uint, limit int) ([]uint, error)
	GetFollowersCount(ctx context.Context, userID uint) (int64, error)
}

// PostgresFollowRepository implements FollowRepository for PostgreSQL.
type PostgresFollowRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRepository creates a new PostgresFollowRepository.
func NewPostgresFollowRepository(db *gorm.DB) *PostgresFollowRepository {
	return &PostgresFollowRepository{db: db}
}

func (r *PostgresFollowRepository) GetFollowerIDsPage(ctx context.Context, userID, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("following_id = ? AND follower_id > ?", userID, afterID).
		Order("follower_id ASC").
		Limit(limit).
		Pluck("follower_id", &ids).Error
	return ids, err
}

func (r *PostgresFollowRepository) GetFollowersCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("following_id = ?", userID).
		Count(&count).Error
	return count, err
}

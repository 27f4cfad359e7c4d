package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	unreadKeyPrefix = "notif:unread:"
	unreadTTL       = 5 * time.Minute
)

// UnreadCountCache is a cache-aside layer in front of the unread counter
// query. A nil redis client disables caching entirely; every call falls
// through to the loader.
type UnreadCountCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewUnreadCountCache creates an UnreadCountCache. client may be nil.
func NewUnreadCountCache(client *redis.Client, logger zerolog.Logger) *UnreadCountCache {
	return &UnreadCountCache{client: client, logger: logger}
}

func unreadKey(userID uint) string {
	return unreadKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}

// Get returns the cached unread count for the user, loading and caching it
// on a miss. Cache failures degrade to the loader, never to an error.
func (c *UnreadCountCache) Get(ctx context.Context, userID uint, load func(context.Context) (int64, error)) (int64, error) {
	if c.client == nil {
		return load(ctx)
	}

	val, err := c.client.Get(ctx, unreadKey(userID)).Result()
	if err == nil {
		count, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr == nil {
			return count, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn().Err(err).Uint("user_id", userID).Msg("unread count cache read failed")
	}

	count, err := load(ctx)
	if err != nil {
		return 0, err
	}

	if err := c.client.Set(ctx, unreadKey(userID), fmt.Sprint(count), unreadTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("user_id", userID).Msg("unread count cache write failed")
	}
	return count, nil
}

// Invalidate drops the cached count for the given users. Called after any
// write that changes unread state: creation, read-state transitions, deletes.
func (c *UnreadCountCache) Invalidate(ctx context.Context, userIDs ...uint) {
	if c.client == nil || len(userIDs) == 0 {
		return
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("unread count cache invalidation failed")
	}
}

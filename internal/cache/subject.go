package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// subjectKeyPrefix is the Redis key prefix for confirmed token subjects.
const subjectKeyPrefix = "auth:user:"

func subjectKey(userID int64) string {
	return subjectKeyPrefix + strconv.FormatInt(userID, 10)
}

// IsKnownUser reports whether userID was recently confirmed to exist.
// A miss returns false with a nil error.
func (c *Cache) IsKnownUser(ctx context.Context, userID int64) (bool, error) {
	err := c.client.Get(ctx, subjectKey(userID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return true, nil
}

// MarkKnownUser records that userID exists for ttl.
// Only positive answers are cached so a new account is never shadowed.
func (c *Cache) MarkKnownUser(ctx context.Context, userID int64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, subjectKey(userID), "1", ttl).Err()
}

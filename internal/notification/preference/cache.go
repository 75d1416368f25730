// internal/notification/preference/cache.go
package preference

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "notifications:prefs:"

// RedisCache stores preference records as JSON with a TTL, so a missed
// invalidation heals itself once the entry expires.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, recipientID string) (*RecipientPreference, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+recipientID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pref RecipientPreference
	if err := json.Unmarshal(raw, &pref); err != nil {
		// A corrupt entry is treated as a miss after dropping it.
		c.client.Del(ctx, cacheKeyPrefix+recipientID)
		return nil, nil
	}
	return &pref, nil
}

func (c *RedisCache) Set(ctx context.Context, pref *RecipientPreference) error {
	raw, err := json.Marshal(pref)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+pref.RecipientID, raw, c.ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, recipientID string) error {
	return c.client.Del(ctx, cacheKeyPrefix+recipientID).Err()
}

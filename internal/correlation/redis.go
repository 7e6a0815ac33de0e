package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nimasrn/submit-logger/internal/model"
	"github.com/nimasrn/submit-logger/pkg/redis"
)

const pendingKeyPrefix = "pending:"

// RedisCache keeps pending submissions in redis so they survive a restart of
// the consumer and can be shared by several consumers of the same stream.
type RedisCache struct {
	adapter redis.RedisAdapter
	ttl     time.Duration
}

func NewRedisCache(adapter redis.RedisAdapter, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{adapter: adapter, ttl: ttl}
}

func (c *RedisCache) Put(_ context.Context, messageID string, p model.PendingSubmission) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.adapter.Set(pendingKeyPrefix+messageID, raw, c.ttl)
}

func (c *RedisCache) Take(_ context.Context, messageID string) (model.PendingSubmission, bool, error) {
	var p model.PendingSubmission
	raw, err := c.adapter.Get(pendingKeyPrefix + messageID)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return p, false, nil
		}
		return p, false, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, false, err
	}
	return p, true, nil
}

func (c *RedisCache) Backend() string {
	return BackendRedis
}

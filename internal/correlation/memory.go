package correlation

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nimasrn/submit-logger/internal/model"
	"github.com/nimasrn/submit-logger/pkg/logger"
)

// MemoryCache is an in-process LRU with per-entry expiry. It is lost on restart.
type MemoryCache struct {
	lru *expirable.LRU[string, model.PendingSubmission]
}

// NewMemoryCache creates a cache holding at most size entries (0 means no
// bound) for at most ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	onEvict := func(id string, p model.PendingSubmission) {
		logger.Debug("pending submission evicted", "message_id", id, "routed_cid", p.RoutedChannelID)
	}
	return &MemoryCache{lru: expirable.NewLRU[string, model.PendingSubmission](size, onEvict, ttl)}
}

func (c *MemoryCache) Put(_ context.Context, messageID string, p model.PendingSubmission) error {
	c.lru.Add(messageID, p)
	return nil
}

// Take peeks so that lookups do not refresh the entry's recency.
func (c *MemoryCache) Take(_ context.Context, messageID string) (model.PendingSubmission, bool, error) {
	p, ok := c.lru.Peek(messageID)
	return p, ok, nil
}

func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func (c *MemoryCache) Backend() string {
	return BackendMemory
}

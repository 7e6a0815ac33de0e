package correlation

import (
	"context"
	"time"

	"github.com/nimasrn/submit-logger/internal/model"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	DefaultTTL = 48 * time.Hour
)

// Cache bridges a submission to its later ack and delivery receipt.
//
// Take does not evict: a duplicate ack or a delivery receipt for the same id
// must still find the entry. Entries leave the cache when their TTL lapses.
type Cache interface {
	Put(ctx context.Context, messageID string, p model.PendingSubmission) error
	Take(ctx context.Context, messageID string) (model.PendingSubmission, bool, error)
	Backend() string
}

// Sizer is implemented by caches that can report how many entries they hold.
type Sizer interface {
	Len() int
}

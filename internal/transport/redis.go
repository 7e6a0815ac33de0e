package transport

import (
	"context"

	"github.com/nimasrn/submit-logger/internal/queue"
)

// RedisSource reads events from a redis stream consumer group.
type RedisSource struct {
	*queue.Queue
}

func NewRedisSource(q *queue.Queue) *RedisSource {
	return &RedisSource{q}
}

func (s *RedisSource) Consume(handler Handler) error {
	return s.Queue.Consume(func(ctx context.Context, msg *queue.Message) error {
		return handler(ctx, eventFromStream(msg))
	})
}

func (s *RedisSource) Name() string {
	return KindRedis + ":" + s.Queue.Name()
}

func eventFromStream(msg *queue.Message) *Event {
	headers := make(map[string]string, len(msg.Metadata))
	for k, v := range msg.Metadata {
		headers[k] = v
	}
	return &Event{
		ID:        msg.ID,
		Topic:     headers[HeaderRoutingKey],
		MessageID: headers[HeaderMessageID],
		Headers:   headers,
		Payload:   msg.Data,
		Attempts:  msg.Attempts,
	}
}

// EventMetadata flattens an event into stream metadata, the inverse of what
// the consumer reads back.
func EventMetadata(topic, messageID string, headers map[string]string) map[string]string {
	meta := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		meta[k] = v
	}
	meta[HeaderRoutingKey] = topic
	meta[HeaderMessageID] = messageID
	return meta
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/nimasrn/submit-logger/pkg/redis"
	"github.com/sethvargo/go-retry"
)

const metaPrefix = "meta_"

// ErrDeadLetter marks a handler failure that no retry can fix. Entries
// failing with it are dead-lettered and acknowledged at once.
var ErrDeadLetter = errors.New("dead letter")

type Message struct {
	ID        string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
	// Attempts counts earlier handler runs that did not succeed, across
	// redeliveries and in-place retries.
	Attempts int
}

// MessageHandler processes one stream entry.
// Return values:
//   - nil: the entry is acknowledged
//   - error wrapping ErrDeadLetter: the entry is dead-lettered and acknowledged
//   - any other error: the entry is retried in place with backoff and
//     nothing after it is handled until it succeeds
type MessageHandler func(ctx context.Context, msg *Message) error

type QueueConfig struct {
	Name          string
	ConsumerGroup string
	ConsumerName  string
	// MaxRetries bounds redeliveries of an entry reclaimed from a consumer
	// that died while holding it.
	MaxRetries        int
	VisibilityTimeout time.Duration
	RetryDelay        time.Duration
	MaxRetryDelay     time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

// Queue is a redis stream consumed through a consumer group. Entries are
// handed to the handler one at a time, in stream order, from a single
// goroutine.
type Queue struct {
	adapter redis.RedisAdapter
	config  QueueConfig
	handler MessageHandler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

type QueueStats struct {
	TotalMessages   int64
	PendingMessages int64
	ConsumerCount   int64
}

// NewQueue creates a new queue instance
func NewQueue(adapter redis.RedisAdapter, config QueueConfig) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "default-group"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = "consumer-" + uuid.New().String()[:8]
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	if config.MaxRetryDelay == 0 {
		config.MaxRetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := q.initConsumerGroup(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		cancel()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return q, nil
}

func (q *Queue) initConsumerGroup() error {
	return q.adapter.XGroupCreateMkStream(
		q.config.Name,
		q.config.ConsumerGroup,
		"0",
	)
}

func (q *Queue) Name() string {
	return q.config.Name
}

// Publish adds a message to the queue
func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	values := map[string]interface{}{
		"data":      string(data),
		"timestamp": time.Now().Unix(),
	}

	for k, v := range metadata {
		values[metaPrefix+k] = v
	}

	id, err := q.adapter.XAdd(q.config.Name, values)
	if err != nil {
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	if q.config.MaxLen > 0 {
		_ = q.adapter.XTrimApprox(q.config.Name, q.config.MaxLen)
	}

	return id, nil
}

// Consume starts the consume loop in the background.
func (q *Queue) Consume(handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	q.handler = handler
	q.wg.Add(1)

	go q.consumeLoop()

	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	q.drainOwnBacklog()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.claimStuckMessages()
			q.processMessages()
		}
	}
}

// processMessages drains new entries until the stream has nothing left for
// this consumer.
func (q *Queue) processMessages() {
	for q.ctx.Err() == nil {
		messages, err := q.adapter.XReadGroup(
			q.config.ConsumerGroup,
			q.config.ConsumerName,
			q.config.Name,
			">",
			q.config.BatchSize,
			-1,
		)
		if err != nil {
			if !errors.Is(err, redis.NilError) {
				logger.Error("failed to read from stream", "queue", q.config.Name, "error", err)
			}
			return
		}
		if len(messages) == 0 {
			return
		}

		for _, streamMsg := range messages {
			if q.ctx.Err() != nil {
				return
			}
			q.handleMessage(q.streamMessageToMessage(streamMsg))
		}
	}
}

// drainOwnBacklog replays entries this consumer read but never acknowledged
// before a restart, so they are handled ahead of anything new.
func (q *Queue) drainOwnBacklog() {
	cursor := "0"
	for q.ctx.Err() == nil {
		messages, err := q.adapter.XReadGroup(
			q.config.ConsumerGroup,
			q.config.ConsumerName,
			q.config.Name,
			cursor,
			q.config.BatchSize,
			-1,
		)
		if err != nil || len(messages) == 0 {
			if err != nil && !errors.Is(err, redis.NilError) {
				logger.Error("failed to read pending backlog", "queue", q.config.Name, "error", err)
			}
			return
		}
		for _, streamMsg := range messages {
			if q.ctx.Err() != nil {
				return
			}
			cursor = streamMsg.ID
			if len(streamMsg.Values) == 0 {
				// trimmed from the stream while pending
				q.ackMessage(streamMsg.ID)
				continue
			}
			q.handleMessage(q.streamMessageToMessage(streamMsg))
		}
	}
}

func (q *Queue) claimStuckMessages() {
	pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup)
	if err != nil || pending == nil || pending.Count == 0 {
		return
	}

	pendingExt, err := q.adapter.XPendingExt(
		q.config.Name,
		q.config.ConsumerGroup,
		"-",
		"+",
		100,
	)
	if err != nil || len(pendingExt) == 0 {
		return
	}

	deliveries := make(map[string]int64, len(pendingExt))
	var idsToReclaim []string
	for _, msg := range pendingExt {
		if msg.Idle >= q.config.VisibilityTimeout {
			idsToReclaim = append(idsToReclaim, msg.ID)
			deliveries[msg.ID] = msg.RetryCount
		}
	}

	if len(idsToReclaim) == 0 {
		return
	}

	messages, err := q.adapter.XClaim(
		q.config.Name,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.VisibilityTimeout,
		idsToReclaim...,
	)
	if err != nil {
		logger.Warn("failed to claim pending entries", "queue", q.config.Name, "error", err)
		return
	}

	for _, streamMsg := range messages {
		if q.ctx.Err() != nil {
			return
		}
		msg := q.streamMessageToMessage(streamMsg)
		msg.Attempts = int(deliveries[msg.ID])
		q.handleMessage(msg)
	}
}

func (q *Queue) handleMessage(msg *Message) {
	if msg.Attempts >= q.config.MaxRetries {
		logger.Error("message exceeded max retries",
			"queue", q.config.Name,
			"stream_id", msg.ID,
			"attempts", msg.Attempts,
		)
		q.moveToDeadLetterQueue(msg)
		q.ackMessage(msg.ID)
		return
	}

	backoff := retry.WithCappedDuration(q.config.MaxRetryDelay,
		retry.WithJitterPercent(10, retry.NewExponential(q.config.RetryDelay)))

	var deadLetter error
	err := retry.Do(q.ctx, backoff, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, q.config.VisibilityTimeout)
		defer cancel()

		err := q.handler(hctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDeadLetter) {
			deadLetter = err
			return err
		}
		msg.Attempts++
		logger.Warn("message handler failed, retrying before reading further",
			"queue", q.config.Name,
			"stream_id", msg.ID,
			"attempts", msg.Attempts,
			"error", err,
		)
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		q.ackMessage(msg.ID)
	case deadLetter != nil:
		logger.Error("message cannot be processed",
			"queue", q.config.Name,
			"stream_id", msg.ID,
			"error", deadLetter,
		)
		q.moveToDeadLetterQueue(msg)
		q.ackMessage(msg.ID)
	default:
		// stopping: the entry stays pending for the next start
		logger.Warn("leaving message pending", "queue", q.config.Name, "stream_id", msg.ID, "error", err)
	}
}

func (q *Queue) ackMessage(messageID string) {
	if err := q.adapter.XAck(q.config.Name, q.config.ConsumerGroup, messageID); err != nil {
		logger.Error("failed to ack message", "queue", q.config.Name, "stream_id", messageID, "error", err)
	}
}

func (q *Queue) moveToDeadLetterQueue(msg *Message) {
	if !q.config.EnableDLQ {
		return
	}

	values := map[string]interface{}{
		"data":           string(msg.Data),
		"original_id":    msg.ID,
		"attempts":       msg.Attempts,
		"failed_at":      time.Now().Unix(),
		"original_queue": q.config.Name,
	}

	for k, v := range msg.Metadata {
		values[metaPrefix+k] = v
	}

	if _, err := q.adapter.XAdd(q.DeadLetterName(), values); err != nil {
		logger.Error("failed to dead-letter message", "queue", q.config.Name, "stream_id", msg.ID, "error", err)
	}
}

func (q *Queue) DeadLetterName() string {
	return q.config.Name + ":dlq"
}

func (q *Queue) streamMessageToMessage(streamMsg redis.StreamMessage) *Message {
	msg := &Message{
		ID:       streamMsg.ID,
		Metadata: make(map[string]string),
	}

	for k, v := range streamMsg.Values {
		val, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case k == "data":
			msg.Data = []byte(val)
		case k == "timestamp":
			if unix, err := strconv.ParseInt(val, 10, 64); err == nil {
				msg.Timestamp = time.Unix(unix, 0)
			}
		case strings.HasPrefix(k, metaPrefix):
			msg.Metadata[k[len(metaPrefix):]] = val
		}
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	return msg
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.adapter.Ping(ctx)
}

// Stop ends the consume loop, waiting at most timeout for the entry in
// flight to finish.
func (q *Queue) Stop(timeout time.Duration) error {
	q.once.Do(q.cancel)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue to stop")
	}
}

func (q *Queue) GetStats() (*QueueStats, error) {
	totalMessages, err := q.adapter.XLen(q.config.Name)
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		TotalMessages: totalMessages,
	}

	pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup)
	if err == nil && pending != nil {
		stats.PendingMessages = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}

	return stats, nil
}

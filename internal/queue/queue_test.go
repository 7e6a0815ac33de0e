package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/submit-logger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func testConfig(name string) QueueConfig {
	return QueueConfig{
		Name:              name,
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}
}

func TestQueue_PublishAndConsume(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, testConfig("test:queue"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	_, err = queue.Publish(context.Background(), []byte("payload"), map[string]string{
		"routing_key": "submit.sm.operator-a",
		"message-id":  "A",
	})
	require.NoError(t, err)

	received := make(chan *Message, 1)
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		assert.Equal(t, []byte("payload"), msg.Data)
		assert.Equal(t, "submit.sm.operator-a", msg.Metadata["routing_key"])
		assert.Equal(t, "A", msg.Metadata["message-id"])
		assert.Equal(t, 0, msg.Attempts)
		assert.WithinDuration(t, time.Now(), msg.Timestamp, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	assert.Eventually(t, func() bool {
		stats, err := queue.GetStats()
		return err == nil && stats.PendingMessages == 0
	}, 2*time.Second, 50*time.Millisecond)
}

func TestQueue_SequentialInOrder(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, testConfig("test:order:queue"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	const total = 25
	for i := 0; i < total; i++ {
		_, err := queue.Publish(context.Background(), []byte(fmt.Sprint(i)), nil)
		require.NoError(t, err)
	}

	var (
		mu       sync.Mutex
		seen     []string
		inFlight int32
		overlap  atomic.Bool
	)
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			overlap.Store(true)
		}
		defer atomic.AddInt32(&inFlight, -1)

		mu.Lock()
		seen = append(seen, string(msg.Data))
		mu.Unlock()
		return nil
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == total
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		assert.Equal(t, fmt.Sprint(i), v)
	}
	assert.False(t, overlap.Load(), "handler ran concurrently")
}

func TestQueue_DeadLetterIsImmediate(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, testConfig("test:dlq:queue"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.Publish(ctx, []byte("broken"), map[string]string{"message-id": "X"})
	require.NoError(t, err)
	_, err = queue.Publish(ctx, []byte("fine"), map[string]string{"message-id": "Y"})
	require.NoError(t, err)

	var brokenCalls int32
	handled := make(chan string, 10)
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		if string(msg.Data) == "broken" {
			atomic.AddInt32(&brokenCalls, 1)
			return fmt.Errorf("%w: cannot decode", ErrDeadLetter)
		}
		handled <- string(msg.Data)
		return nil
	}))

	select {
	case v := <-handled:
		assert.Equal(t, "fine", v)
	case <-time.After(3 * time.Second):
		t.Fatal("entry after the dead letter was not handled")
	}

	n, err := adapter.XLen(queue.DeadLetterName())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int32(1), atomic.LoadInt32(&brokenCalls))

	assert.Eventually(t, func() bool {
		stats, err := queue.GetStats()
		return err == nil && stats.PendingMessages == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestQueue_FailedEntryBlocksLaterOnes(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	config := testConfig("test:blocking:queue")
	config.MaxRetries = 1
	config.RetryDelay = 5 * time.Millisecond

	queue, err := NewQueue(adapter, config)
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	for _, v := range []string{"1", "2"} {
		_, err := queue.Publish(ctx, []byte(v), nil)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	var calls []string
	var attempts []int
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, string(msg.Data))
		if string(msg.Data) == "1" {
			attempts = append(attempts, msg.Attempts)
			if msg.Attempts < 3 {
				return assert.AnError
			}
		}
		return nil
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 5
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"1", "1", "1", "1", "2"}, calls)
	assert.Equal(t, []int{0, 1, 2, 3}, attempts)
	mu.Unlock()

	n, err := adapter.XLen(queue.DeadLetterName())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "transient failures must not be dead-lettered")
}

func TestQueue_BacklogReplayedAfterRestart(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	config := testConfig("test:restart:queue")
	config.RetryDelay = 5 * time.Millisecond

	first, err := NewQueue(adapter, config)
	require.NoError(t, err)

	ctx := context.Background()
	for _, v := range []string{"1", "2"} {
		_, err := first.Publish(ctx, []byte(v), nil)
		require.NoError(t, err)
	}

	var failing int32
	require.NoError(t, first.Consume(func(ctx context.Context, msg *Message) error {
		atomic.AddInt32(&failing, 1)
		return assert.AnError
	}))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&failing) > 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, first.Stop(time.Second))

	second, err := NewQueue(adapter, config)
	require.NoError(t, err)
	defer second.Stop(time.Second)

	_, err = second.Publish(ctx, []byte("3"), nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	require.NoError(t, second.Consume(func(ctx context.Context, msg *Message) error {
		mu.Lock()
		seen = append(seen, string(msg.Data))
		mu.Unlock()
		return nil
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, seen)
	mu.Unlock()
}

func TestQueue_GetStats(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, testConfig("test:stats:queue"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := queue.Publish(ctx, []byte(fmt.Sprint(i)), nil)
		require.NoError(t, err)
	}

	stats, err := queue.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalMessages)
	assert.NoError(t, queue.Ping(ctx))
}

func TestQueueConfig_Validation(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	t.Run("name is required", func(t *testing.T) {
		_, err := NewQueue(adapter, QueueConfig{})
		assert.Error(t, err)
	})

	t.Run("defaults are applied", func(t *testing.T) {
		queue, err := NewQueue(adapter, QueueConfig{Name: "valid:queue"})
		require.NoError(t, err)
		defer queue.Stop(time.Second)

		assert.Equal(t, "default-group", queue.config.ConsumerGroup)
		assert.Equal(t, 3, queue.config.MaxRetries)
		assert.Equal(t, 200*time.Millisecond, queue.config.RetryDelay)
		assert.Equal(t, 10*time.Second, queue.config.MaxRetryDelay)
		assert.Equal(t, 30*time.Second, queue.config.VisibilityTimeout)
		assert.Equal(t, "valid:queue:dlq", queue.DeadLetterName())
		assert.Regexp(t, `^consumer-[0-9a-f]{8}$`, queue.config.ConsumerName)
	})

	t.Run("existing group is reused", func(t *testing.T) {
		first, err := NewQueue(adapter, testConfig("shared:queue"))
		require.NoError(t, err)
		defer first.Stop(time.Second)

		second, err := NewQueue(adapter, testConfig("shared:queue"))
		require.NoError(t, err)
		defer second.Stop(time.Second)
	})

	t.Run("consume needs a handler", func(t *testing.T) {
		queue, err := NewQueue(adapter, testConfig("nohandler:queue"))
		require.NoError(t, err)
		assert.Error(t, queue.Consume(nil))
	})
}

func TestQueue_Stop(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	queue, err := NewQueue(adapter, testConfig("test:stop:queue"))
	require.NoError(t, err)

	handler := func(ctx context.Context, msg *Message) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	}

	require.NoError(t, queue.Consume(handler))
	assert.NoError(t, queue.Stop(2*time.Second))
	// stopping twice is harmless
	assert.NoError(t, queue.Stop(time.Second))
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/submit-logger/internal/queue"
	"github.com/nimasrn/submit-logger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSource_DeliversEvents(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	q, err := queue.NewQueue(adapter, queue.QueueConfig{
		Name:          "gateway:events",
		ConsumerGroup: "submit-logger",
		ConsumerName:  "test",
		PollInterval:  20 * time.Millisecond,
	})
	require.NoError(t, err)

	src := NewRedisSource(q)
	defer src.Stop(time.Second)
	assert.Equal(t, "redis:gateway:events", src.Name())
	require.NoError(t, src.Ping(context.Background()))

	meta := EventMetadata("dlr_thrower.operator-a", "A", map[string]string{
		HeaderMessageStatus: "DELIVRD",
		HeaderCreatedAt:     "2024-03-01T10:00:00Z",
	})
	_, err = q.Publish(context.Background(), []byte("{}"), meta)
	require.NoError(t, err)

	got := make(chan *Event, 1)
	require.NoError(t, src.Consume(func(ctx context.Context, e *Event) error {
		got <- e
		return nil
	}))

	select {
	case e := <-got:
		assert.Equal(t, "dlr_thrower.operator-a", e.Topic)
		assert.Equal(t, "A", e.MessageID)
		assert.Equal(t, "DELIVRD", e.Header(HeaderMessageStatus))
		assert.Equal(t, []byte("{}"), e.Payload)
		assert.NotEmpty(t, e.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEvent_HeaderOnNilMap(t *testing.T) {
	var e Event
	assert.Equal(t, "", e.Header(HeaderCreatedAt))
}

func TestErrUnprocessable_DeadLettersOnRedis(t *testing.T) {
	err := fmt.Errorf("decode: %w", ErrUnprocessable)

	assert.True(t, IsUnprocessable(err))
	assert.ErrorIs(t, err, queue.ErrDeadLetter)
	assert.False(t, IsUnprocessable(errors.New("store down")))
}

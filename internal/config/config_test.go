package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	require.NoError(t, Load(""))
	c := Get()

	assert.Equal(t, "postgres", c.StoreDriver)
	assert.Equal(t, "redis", c.Transport)
	assert.Equal(t, "memory", c.CacheBackend)
	assert.Equal(t, 48*time.Hour, c.CacheTTL)
	assert.Equal(t, 3, c.QueueMaxRetries)
	assert.True(t, c.QueueEnableDLQ)
	assert.Equal(t, "submit-logger-1", c.QueueConsumerName)
	assert.Equal(t, 200*time.Millisecond, c.QueueRetryDelay)
	assert.Equal(t, 30*time.Second, c.KafkaMaxRetryDelay)
	assert.Equal(t, 100*time.Millisecond, c.GuardianBaseDelay)
	assert.Empty(t, c.KafkaBrokerList())
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"STORE_DRIVER=sqlite\n"+
			"TRANSPORT=kafka\n"+
			"KAFKA_BROKERS=k1:9092, k2:9092,\n"+
			"KAFKA_TOPICS=submit.sm,dlr_thrower\n"+
			"CACHE_TTL=2h\n",
	), 0o600))
	for _, k := range []string{"STORE_DRIVER", "TRANSPORT", "KAFKA_BROKERS", "KAFKA_TOPICS", "CACHE_TTL"} {
		t.Cleanup(func() { _ = os.Unsetenv(k) })
	}

	require.NoError(t, Load(path))
	c := Get()

	assert.Equal(t, "sqlite", c.StoreDriver)
	assert.Equal(t, "kafka", c.Transport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokerList())
	assert.Equal(t, []string{"submit.sm", "dlr_thrower"}, c.KafkaTopicList())
	assert.Equal(t, 2*time.Hour, c.CacheTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.env")))
}

package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every setting of the submit logger. Only this struct must be
// used to read configuration, no direct access to env or files elsewhere.
type Config struct {
	AppEnv  string `env:"APP_ENV,default=dev"`
	AppName string `env:"APP_NAME,default=submit_logger"`

	StoreDriver           string `env:"STORE_DRIVER,default=postgres"`
	SqlitePath            string `env:"SQLITE_PATH,default=submit_log.db"`
	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	PostgresSSLMode       string `env:"POSTGRES_SSLMODE,default=disable"`

	Transport string `env:"TRANSPORT,default=redis"`

	RedisAddr               string `env:"REDIS_ADDR,default=127.0.0.1:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	QueueName          string `env:"QUEUE_NAME,default=gateway:events"`
	QueueConsumerGroup string `env:"QUEUE_CONSUMER_GROUP,default=submit_logger"`
	// QueueConsumerName must stay stable across restarts so entries left
	// pending are replayed before new ones.
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=submit-logger-1"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=200ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=50"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`
	QueueRetryDelay        time.Duration `env:"QUEUE_RETRY_DELAY,default=200ms"`
	QueueMaxRetryDelay     time.Duration `env:"QUEUE_MAX_RETRY_DELAY,default=10s"`

	KafkaBrokers         string        `env:"KAFKA_BROKERS"`
	KafkaTopics          string        `env:"KAFKA_TOPICS"`
	KafkaGroupID         string        `env:"KAFKA_GROUP_ID,default=submit_logger"`
	KafkaDeadLetterTopic string        `env:"KAFKA_DLQ_TOPIC"`
	KafkaRetryDelay      time.Duration `env:"KAFKA_RETRY_DELAY,default=1s"`
	KafkaMaxRetryDelay   time.Duration `env:"KAFKA_MAX_RETRY_DELAY,default=30s"`

	CacheBackend string        `env:"CACHE_BACKEND,default=memory"`
	CacheTTL     time.Duration `env:"CACHE_TTL,default=48h"`
	CacheSize    int           `env:"CACHE_SIZE,default=1000000"`

	GuardianBaseDelay time.Duration `env:"GUARDIAN_BASE_DELAY,default=100ms"`
	GuardianMaxDelay  time.Duration `env:"GUARDIAN_MAX_DELAY,default=10s"`

	ProcessingTimeout time.Duration `env:"PROCESSING_TIMEOUT,default=30s"`

	MetricsAddr   string `env:"METRICS_ADDR,default=:9100"`
	PromNamespace string `env:"PROM_NAMESPACE,default=submit_logger"`
}

// KafkaBrokerList splits the comma separated KAFKA_BROKERS value.
func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// KafkaTopicList splits the comma separated KAFKA_TOPICS value.
func (c *Config) KafkaTopicList() []string {
	return splitList(c.KafkaTopics)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrap(err, "failed to load configuration file "+path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

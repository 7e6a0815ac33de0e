package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/submit-logger/internal/config"
	"github.com/nimasrn/submit-logger/internal/correlation"
	"github.com/nimasrn/submit-logger/internal/guardian"
	"github.com/nimasrn/submit-logger/internal/handlers"
	"github.com/nimasrn/submit-logger/internal/processor"
	"github.com/nimasrn/submit-logger/internal/queue"
	"github.com/nimasrn/submit-logger/internal/repository"
	"github.com/nimasrn/submit-logger/internal/transport"
	xhttp "github.com/nimasrn/submit-logger/pkg/http"
	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/nimasrn/submit-logger/pkg/pg"
	"github.com/nimasrn/submit-logger/pkg/prom"
	"github.com/nimasrn/submit-logger/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer logger.Sync()

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting submit logger", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	pgDebug := false
	if cfg.AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.Open(pg.Config{
		Driver:   pg.Driver(cfg.StoreDriver),
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
		SSLMode:  cfg.PostgresSSLMode,
		Path:     cfg.SqlitePath,
	}, pgDebug)
	if err != nil {
		logger.Error("failed connecting to store", "driver", cfg.StoreDriver, "error", err)
		return
	}
	defer db.Close()

	repo := repository.NewSubmitLogRepository(db)
	if pg.Driver(cfg.StoreDriver) == pg.DriverSQLite {
		if err := repo.AutoMigrate(context.Background()); err != nil {
			logger.Error("failed to migrate sqlite store", "error", err)
			return
		}
	}

	var redisAdap redis.RedisAdapter
	if cfg.Transport == transport.KindRedis || cfg.CacheBackend == correlation.BackendRedis {
		redisAdap, err = redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
			Addrs:      []string{cfg.RedisAddr},
			ClientName: cfg.AppName,
			DB:         cfg.RedisDatabase,
			Username:   cfg.RedisUsername,
			Password:   cfg.RedisPassword,
		})
		if err != nil {
			logger.Error("failed connecting to redis", "error", err)
			return
		}
	}

	cache, err := newCache(cfg, redisAdap)
	if err != nil {
		logger.Error("failed to create correlation cache", "error", err)
		return
	}

	source, err := newSource(cfg, redisAdap)
	if err != nil {
		logger.Error("failed to create event source", "transport", cfg.Transport, "error", err)
		return
	}

	guard := guardian.New(repo, guardian.Config{
		BaseDelay: cfg.GuardianBaseDelay,
		MaxDelay:  cfg.GuardianMaxDelay,
	})

	service := processor.NewProcessorService(source,
		processor.NewSubmitLogProcessor(cache, repo, guard),
		processor.ServiceOptions{ProcessingTimeout: cfg.ProcessingTimeout},
	)
	service.RegisterHealthCheck("store", repo.Probe)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	s := xhttp.CreateServer()
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.ProbeLogMiddleware(500*time.Millisecond, "/metrics", "/health"))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Router.GET("/metrics", prom.Handler())
	handlers.RegisterHealthRoutes(s.Router, handlers.NewHealthHandler(service))

	go func() {
		if err := s.ListenAndServe(cfg.MetricsAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	service.Stop()
	s.Shutdown()
}

func newCache(cfg *config.Config, adapter redis.RedisAdapter) (correlation.Cache, error) {
	switch cfg.CacheBackend {
	case correlation.BackendMemory, "":
		return correlation.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL), nil
	case correlation.BackendRedis:
		return correlation.NewRedisCache(adapter, cfg.CacheTTL), nil
	}
	return nil, fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
}

func newSource(cfg *config.Config, adapter redis.RedisAdapter) (transport.Source, error) {
	switch cfg.Transport {
	case transport.KindRedis, "":
		q, err := queue.NewQueue(adapter, queue.QueueConfig{
			Name:              cfg.QueueName,
			ConsumerGroup:     cfg.QueueConsumerGroup,
			ConsumerName:      cfg.QueueConsumerName,
			MaxRetries:        cfg.QueueMaxRetries,
			VisibilityTimeout: cfg.QueueVisibilityTimeout,
			PollInterval:      cfg.QueuePollInterval,
			BatchSize:         cfg.QueueBatchSize,
			MaxLen:            cfg.QueueMaxLen,
			EnableDLQ:         cfg.QueueEnableDLQ,
			RetryDelay:        cfg.QueueRetryDelay,
			MaxRetryDelay:     cfg.QueueMaxRetryDelay,
		})
		if err != nil {
			return nil, err
		}
		return transport.NewRedisSource(q), nil
	case transport.KindKafka:
		src, err := transport.NewKafkaSource(transport.KafkaConfig{
			Brokers:         cfg.KafkaBrokerList(),
			Topics:          cfg.KafkaTopicList(),
			GroupID:         cfg.KafkaGroupID,
			RetryDelay:      cfg.KafkaRetryDelay,
			MaxRetryDelay:   cfg.KafkaMaxRetryDelay,
			DeadLetterTopic: cfg.KafkaDeadLetterTopic,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}

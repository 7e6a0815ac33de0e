package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
)

type KafkaConfig struct {
	Brokers []string
	Topics  []string
	GroupID string
	// RetryDelay is the first backoff step after a failed event, growing
	// up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// DeadLetterTopic receives unprocessable events. Empty means they are
	// only logged.
	DeadLetterTopic string
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes the gateway topics through a consumer group. Kafka
// has no per-message redelivery, so failed events are retried in place
// and nothing further is fetched until they succeed.
type KafkaSource struct {
	config KafkaConfig
	reader kafkaReader
	dlq    kafkaWriter
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewKafkaSource(config KafkaConfig) (*KafkaSource, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if len(config.Topics) == 0 {
		return nil, fmt.Errorf("kafka topics are required")
	}
	if config.GroupID == "" {
		config.GroupID = "submit-logger"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		GroupID:     config.GroupID,
		GroupTopics: config.Topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
	})

	var dlq kafkaWriter
	if config.DeadLetterTopic != "" {
		dlq = &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        config.DeadLetterTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
		}
	}

	return newKafkaSource(config, reader, dlq), nil
}

func newKafkaSource(config KafkaConfig, reader kafkaReader, dlq kafkaWriter) *KafkaSource {
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaSource{
		config: config,
		reader: reader,
		dlq:    dlq,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *KafkaSource) Name() string {
	return KindKafka + ":" + s.config.GroupID
}

func (s *KafkaSource) Consume(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("event handler is required")
	}
	s.wg.Add(1)
	go s.consumeLoop(handler)
	return nil
}

func (s *KafkaSource) consumeLoop(handler Handler) {
	defer s.wg.Done()

	for {
		msg, err := s.reader.FetchMessage(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			logger.Error("failed to fetch kafka message", "error", err)
			if !s.sleep(s.config.RetryDelay) {
				return
			}
			continue
		}

		if !s.deliver(handler, msg) {
			return
		}

		if err := s.reader.CommitMessages(s.ctx, msg); err != nil {
			logger.Error("failed to commit kafka message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// deliver runs the handler until it succeeds, dead-lettering the event
// only when it is unprocessable. It reports false when the source is
// stopping and the message must be left uncommitted.
func (s *KafkaSource) deliver(handler Handler, msg kafka.Message) bool {
	event := eventFromKafka(msg)
	backoff := retry.WithCappedDuration(s.config.MaxRetryDelay,
		retry.WithJitterPercent(10, retry.NewExponential(s.config.RetryDelay)))

	var unprocessable error
	err := retry.Do(s.ctx, backoff, func(ctx context.Context) error {
		err := handler(ctx, event)
		if err == nil {
			return nil
		}
		if IsUnprocessable(err) {
			unprocessable = err
			return err
		}
		event.Attempts++
		logger.Warn("event handler failed, retrying before fetching further",
			"event_id", event.ID,
			"message_id", event.MessageID,
			"attempts", event.Attempts,
			"error", err,
		)
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		return true
	case unprocessable != nil:
		logger.Error("event cannot be processed", "event_id", event.ID, "message_id", event.MessageID, "error", unprocessable)
		s.deadLetter(msg)
		return true
	default:
		return false
	}
}

func (s *KafkaSource) deadLetter(msg kafka.Message) {
	if s.dlq == nil {
		return
	}
	out := kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...), kafka.Header{Key: "original_topic", Value: []byte(msg.Topic)}),
	}
	if err := s.dlq.WriteMessages(s.ctx, out); err != nil {
		logger.Error("failed to dead-letter kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
}

func (s *KafkaSource) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Ping dials the first reachable broker.
func (s *KafkaSource) Ping(ctx context.Context) error {
	var errs []error
	for _, broker := range s.config.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *KafkaSource) Stop(timeout time.Duration) error {
	s.once.Do(s.cancel)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for kafka consumer to stop")
	}

	if cerr := s.reader.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if s.dlq != nil {
		if cerr := s.dlq.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func eventFromKafka(msg kafka.Message) *Event {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	topic := headers[HeaderRoutingKey]
	if topic == "" {
		topic = msg.Topic
	}
	messageID := headers[HeaderMessageID]
	if messageID == "" {
		messageID = string(msg.Key)
	}

	return &Event{
		ID:        msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10),
		Topic:     topic,
		MessageID: messageID,
		Headers:   headers,
		Payload:   msg.Value,
	}
}

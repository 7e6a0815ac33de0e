package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/submit-logger/internal/queue"
	"github.com/nimasrn/submit-logger/internal/transport"
	"github.com/nimasrn/submit-logger/pkg/logger"
)

const ProcessingTimeout = time.Second * 30
const MetricsInterval = time.Second * 30
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// Processor applies one transport event.
type Processor interface {
	Process(ctx context.Context, e *transport.Event) error
	GetType() string
}

type queueStatser interface {
	GetStats() (*queue.QueueStats, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type ServiceOptions struct {
	ProcessingTimeout time.Duration
	MetricsInterval   time.Duration
	HealthInterval    time.Duration
	ShutdownTimeout   time.Duration
}

// ProcessorService feeds a single transport source into a processor.
type ProcessorService struct {
	source    transport.Source
	processor Processor
	metrics   *ServiceMetrics
	options   ServiceOptions
	checksMu  sync.RWMutex
	checks    map[string]HealthCheck
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
}

func NewProcessorService(source transport.Source, processor Processor, options ServiceOptions) *ProcessorService {
	if options.ProcessingTimeout <= 0 {
		options.ProcessingTimeout = ProcessingTimeout
	}
	if options.MetricsInterval <= 0 {
		options.MetricsInterval = MetricsInterval
	}
	if options.HealthInterval <= 0 {
		options.HealthInterval = HealthInterval
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = ShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ProcessorService{
		source:    source,
		processor: processor,
		metrics:   NewServiceMetrics(),
		options:   options,
		checks:    make(map[string]HealthCheck),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.RegisterHealthCheck("transport", source.Ping)
	return s
}

// RegisterHealthCheck adds a named dependency check, replacing any check
// with the same name.
func (s *ProcessorService) RegisterHealthCheck(name string, check HealthCheck) {
	s.checksMu.Lock()
	s.checks[name] = check
	s.checksMu.Unlock()
}

func (s *ProcessorService) Metrics() *ServiceMetrics {
	return s.metrics
}

// Start starts the processor service
func (s *ProcessorService) Start() error {
	logger.Info("Starting Processor Service...", "source", s.source.Name(), "processor", s.processor.GetType())

	if err := s.source.Consume(s.handle); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("Processor Service started", "source", s.source.Name())
	return nil
}

// handle runs on the source's single consumer goroutine.
func (s *ProcessorService) handle(ctx context.Context, e *transport.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.options.ProcessingTimeout)
	defer cancel()

	start := time.Now()
	if err := s.processor.Process(ctx, e); err != nil {
		s.metrics.RecordFailure()
		logger.Error("Failed to process event",
			"event_id", e.ID,
			"topic", e.Topic,
			"message_id", e.MessageID,
			"error", err,
		)
		return err
	}
	s.metrics.RecordSuccess(time.Since(start))
	return nil
}

// metricsReporter periodically reports metrics
func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.options.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	logger.Info("Metrics", s.metrics.Snapshot().LogFields()...)

	if r, ok := s.source.(queueStatser); ok {
		if qStats, err := r.GetStats(); err == nil {
			logger.Info("Queue stats", "source", s.source.Name(), "total", qStats.TotalMessages, "pending", qStats.PendingMessages)
		}
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.options.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Health(s.ctx); err != nil {
				logger.Error("HEALTH CHECK FAILED", "error", err)
				continue
			}
			logger.Debug("HEALTH CHECK: OK - Service healthy")
		case <-s.ctx.Done():
			return
		}
	}
}

// Health runs every registered check and joins their failures.
func (s *ProcessorService) Health(ctx context.Context) error {
	s.checksMu.RLock()
	defer s.checksMu.RUnlock()

	var errs []error
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Stop gracefully stops the service. The event in flight is allowed to
// finish; anything not yet acknowledged is redelivered by the transport.
func (s *ProcessorService) Stop() {
	s.stopOnce.Do(func() {
		logger.Info("Shutting down Processor Service...")

		s.cancel()

		if err := s.source.Stop(s.options.ShutdownTimeout); err != nil {
			logger.Error("Error stopping source", "source", s.source.Name(), "error", err)
		}

		s.wg.Wait()
		s.reportMetrics()

		logger.Info("Processor Service stopped")
	})
}

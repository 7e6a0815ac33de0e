package processor

import (
	"sync/atomic"
	"time"
)

// ServiceMetrics keeps process-local counters for the periodic log report.
// Prometheus holds the per-kind breakdown.
type ServiceMetrics struct {
	processed atomic.Int64
	failed    atomic.Int64
	totalNs   atomic.Int64
	maxNs     atomic.Int64
	since     atomic.Int64
}

// MetricsSnapshot is a point in time copy of ServiceMetrics.
type MetricsSnapshot struct {
	Processed     int64
	Failed        int64
	RatePerSecond float64
	AvgDuration   time.Duration
	MaxDuration   time.Duration
	Uptime        time.Duration
}

func NewServiceMetrics() *ServiceMetrics {
	m := &ServiceMetrics{}
	m.since.Store(time.Now().UnixNano())
	return m
}

func (m *ServiceMetrics) RecordSuccess(d time.Duration) {
	m.processed.Add(1)
	m.totalNs.Add(int64(d))
	for {
		cur := m.maxNs.Load()
		if int64(d) <= cur || m.maxNs.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

func (m *ServiceMetrics) RecordFailure() {
	m.failed.Add(1)
}

func (m *ServiceMetrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Processed:   m.processed.Load(),
		Failed:      m.failed.Load(),
		MaxDuration: time.Duration(m.maxNs.Load()),
		Uptime:      time.Since(time.Unix(0, m.since.Load())),
	}
	if secs := s.Uptime.Seconds(); secs > 0 {
		s.RatePerSecond = float64(s.Processed) / secs
	}
	if s.Processed > 0 {
		s.AvgDuration = time.Duration(m.totalNs.Load() / s.Processed)
	}
	return s
}

// LogFields flattens the snapshot into zap key/value pairs.
func (s MetricsSnapshot) LogFields() []any {
	return []any{
		"total_processed", s.Processed,
		"total_failed", s.Failed,
		"rate_per_second", s.RatePerSecond,
		"avg_duration_ms", s.AvgDuration.Milliseconds(),
		"max_duration_ms", s.MaxDuration.Milliseconds(),
		"uptime_seconds", s.Uptime.Seconds(),
	}
}

func (m *ServiceMetrics) Reset() {
	m.processed.Store(0)
	m.failed.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
	m.since.Store(time.Now().UnixNano())
}

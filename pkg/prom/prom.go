package prom

import (
	"sync"

	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemEvents = "events"
	SystemStore  = "store"
	SystemCache  = "cache"
)

const (
	MetricEventsTotal       = "processed_total"
	MetricStoreOpDuration   = "operation_duration_seconds"
	MetricStoreReconnects   = "reconnects_total"
	MetricCachePendingGauge = "pending_entries"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry

	counters      = make(map[string]prometheus.Counter)
	counterVecs   = make(map[string]*prometheus.CounterVec)
	gaugeVecs     = make(map[string]*prometheus.GaugeVec)
	histogramVecs = make(map[string]*prometheus.HistogramVec)
)

// Create builds a fresh registry holding the submit log metrics. Until it is
// called every recording helper is a no-op, which is what tests rely on.
func Create(host, env, namespace string) error {
	mu.Lock()
	defer mu.Unlock()

	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"env": env, "instance": host}
	opts := func(subsystem, name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: labels}
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts(opts(SystemEvents, MetricEventsTotal,
		"Gateway events handled, by kind and outcome.")), []string{"kind", "outcome"})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts(opts(SystemStore, MetricStoreReconnects,
		"Reconnect attempts made by the connection guardian.")))
	pending := prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(SystemCache, MetricCachePendingGauge,
		"Submissions waiting for their response.")), []string{"backend"})
	storeOps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   SystemStore,
		Name:        MetricStoreOpDuration,
		Help:        "Latency of submit log writes.",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"operation"})

	for _, c := range []prometheus.Collector{
		events, reconnects, pending, storeOps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	counterVecs[SystemEvents+MetricEventsTotal] = events
	counters[SystemStore+MetricStoreReconnects] = reconnects
	gaugeVecs[SystemCache+MetricCachePendingGauge] = pending
	histogramVecs[SystemStore+MetricStoreOpDuration] = storeOps
	registry = reg
	enabled = true
	return nil
}

// Handler exposes the registry for a fasthttp router.
func Handler() fasthttp.RequestHandler {
	mu.RLock()
	reg := registry
	mu.RUnlock()
	if reg == nil {
		return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	}
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func lookup[T any](m map[string]T, subsystem, name, kind string) (T, bool) {
	mu.RLock()
	defer mu.RUnlock()
	var zero T
	if !enabled {
		return zero, false
	}
	v, ok := m[subsystem+name]
	if !ok {
		logger.Warn("[metrics-server] metric not found", "kind", kind, "subsystem", subsystem, "name", name)
	}
	return v, ok
}

func IncCounter(subsystem, name string) {
	if c, ok := lookup(counters, subsystem, name, "counter"); ok {
		c.Inc()
	}
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	if c, ok := lookup(counterVecs, subsystem, name, "counter vec"); ok {
		c.WithLabelValues(labelValues...).Inc()
	}
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if g, ok := lookup(gaugeVecs, subsystem, name, "gauge vec"); ok {
		g.WithLabelValues(labelValues...).Set(num)
	}
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if h, ok := lookup(histogramVecs, subsystem, name, "histogram vec"); ok {
		h.WithLabelValues(labelValues...).Observe(number)
	}
}

func IncEvent(kind, outcome string) {
	IncCounterVec(SystemEvents, MetricEventsTotal, kind, outcome)
}

func ObserveStoreOperation(operation string, seconds float64) {
	AddHistogramVec(SystemStore, MetricStoreOpDuration, seconds, operation)
}

func IncStoreReconnect() {
	IncCounter(SystemStore, MetricStoreReconnects)
}

func SetPendingEntries(backend string, n int) {
	SetGaugeVec(SystemCache, MetricCachePendingGauge, float64(n), backend)
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pick floor's Prometheus series.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPending   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec

	// Picking metrics
	Claims            *prometheus.CounterVec
	ItemsPicked       *prometheus.CounterVec
	ShortPicks        *prometheus.CounterVec
	UnitsCompleted    prometheus.Counter
	ExceptionsRaised  prometheus.Counter
	ExceptionsClosed  *prometheus.CounterVec
	BinCounts         *prometheus.CounterVec
	Replenishments    *prometheus.CounterVec
	PushConnections   prometheus.Gauge
	PushBroadcasts    *prometheus.CounterVec
	CircuitBreakerOps *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

// New creates a Metrics instance on its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}
	ns := config.Namespace
	constLabels := prometheus.Labels{"service": config.ServiceName}

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help, ConstLabels: constLabels}, labels)
		registry.MustRegister(c)
		return c
	}
	histogramVec := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: name, Help: help, Buckets: buckets, ConstLabels: constLabels}, labels)
		registry.MustRegister(h)
		return h
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: name, Help: help, ConstLabels: constLabels})
		registry.MustRegister(g)
		return g
	}
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help, ConstLabels: constLabels})
		registry.MustRegister(c)
		return c
	}

	m.HTTPRequestsTotal = counterVec("http_requests_total", "Total number of HTTP requests", "method", "path", "status")
	m.HTTPRequestDuration = histogramVec("http_request_duration_seconds", "HTTP request duration in seconds",
		[]float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}, "method", "path")
	m.HTTPRequestsInFlight = gauge("http_requests_in_flight", "Number of HTTP requests currently being processed")

	m.KafkaEventsPublished = counterVec("kafka_events_published_total", "Total number of Kafka events published", "topic", "event_type", "status")
	m.KafkaEventsConsumed = counterVec("kafka_events_consumed_total", "Total number of Kafka events consumed", "topic", "event_type", "status")
	m.KafkaPublishDuration = histogramVec("kafka_publish_duration_seconds", "Kafka publish duration in seconds",
		[]float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}, "topic")

	m.MongoDBOperations = counterVec("mongodb_operations_total", "Total number of MongoDB operations", "collection", "operation", "status")
	m.MongoDBOperationDuration = histogramVec("mongodb_operation_duration_seconds", "MongoDB operation duration in seconds",
		[]float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}, "collection", "operation")

	m.OutboxPending = gauge("outbox_pending_events", "Unpublished events seen by the last outbox poll")
	m.OutboxPublished = counterVec("outbox_events_published_total", "Outbox events relayed to Kafka", "event_type", "status")

	m.Claims = counterVec("picking_claims_total", "Claim attempts by result", "result")
	m.ItemsPicked = counterVec("picking_units_picked_total", "Units confirmed by pick method", "method")
	m.ShortPicks = counterVec("picking_short_picks_total", "Short picks by reason", "reason")
	m.UnitsCompleted = counter("picking_work_units_completed_total", "Work units whose items all reached a terminal state")
	m.ExceptionsRaised = counter("picking_exceptions_raised_total", "Work units flagged for lead review")
	m.ExceptionsClosed = counterVec("picking_exceptions_resolved_total", "Exception resolutions", "resolution")
	m.BinCounts = counterVec("picking_bin_counts_total", "Bin count confirmations", "result")
	m.Replenishments = counterVec("picking_replenishments_total", "Replenishment outcomes", "status")
	m.PushConnections = gauge("push_connections", "Open push channel connections")
	m.PushBroadcasts = counterVec("push_broadcasts_total", "Push messages broadcast", "type")
	m.CircuitBreakerOps = counterVec("circuit_breaker_requests_total", "Requests through circuit breakers", "name", "result")

	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a consumed Kafka message
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	m.KafkaEventsConsumed.WithLabelValues(topic, eventType, status(success)).Inc()
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	m.MongoDBOperations.WithLabelValues(collection, operation, status(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// SetOutboxPending records the backlog seen by the outbox publisher
func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records an outbox relay attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	m.OutboxPublished.WithLabelValues(eventType, status(success)).Inc()
}

// RecordClaim records a claim attempt; result is "granted", "conflict" or "error".
func (m *Metrics) RecordClaim(result string) {
	m.Claims.WithLabelValues(result).Inc()
}

// RecordPick records confirmed units for a pick method
func (m *Metrics) RecordPick(method string, units int) {
	if units > 0 {
		m.ItemsPicked.WithLabelValues(method).Add(float64(units))
	}
}

// RecordShortPick records a short pick
func (m *Metrics) RecordShortPick(reason string) {
	m.ShortPicks.WithLabelValues(reason).Inc()
}

// RecordUnitCompleted records a completed work unit
func (m *Metrics) RecordUnitCompleted() {
	m.UnitsCompleted.Inc()
}

// RecordExceptionRaised records a newly raised exception
func (m *Metrics) RecordExceptionRaised() {
	m.ExceptionsRaised.Inc()
}

// RecordExceptionResolved records a resolution
func (m *Metrics) RecordExceptionResolved(resolution string) {
	m.ExceptionsClosed.WithLabelValues(resolution).Inc()
}

// RecordBinCount records a bin count; result is "match", "adjusted" or "skipped".
func (m *Metrics) RecordBinCount(result string) {
	m.BinCounts.WithLabelValues(result).Inc()
}

// RecordReplenishment records a replenishment outcome
func (m *Metrics) RecordReplenishment(status string) {
	m.Replenishments.WithLabelValues(status).Inc()
}

// RecordPushBroadcast records a broadcast push message
func (m *Metrics) RecordPushBroadcast(messageType string) {
	m.PushBroadcasts.WithLabelValues(messageType).Inc()
}

// RecordCircuitBreaker records a call through a named breaker
func (m *Metrics) RecordCircuitBreaker(name, result string) {
	m.CircuitBreakerOps.WithLabelValues(name, result).Inc()
}

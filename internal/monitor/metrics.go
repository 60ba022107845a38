package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector exported by the service.
type Metrics struct {
	connectionState     prometheus.Gauge
	websocketConnected  prometheus.Gauge
	reconnectAttempts   prometheus.Counter
	reconnectExhausted  prometheus.Counter
	subscriptionsActive prometheus.Gauge
	messagesReceived    *prometheus.CounterVec
	eventsDelivered     *prometheus.CounterVec
	eventsDropped       *prometheus.CounterVec
	decodeErrors        *prometheus.CounterVec
	serverErrors        prometheus.Counter

	natsConnected   prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	dedupHits       *prometheus.CounterVec

	batchWriteSize         prometheus.Histogram
	batchWriteDurationSecs prometheus.Histogram
	archiveRowsDeleted     prometheus.Counter
}

// NewMetrics creates and registers all collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connection_state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
		}),
		websocketConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connected",
			Help:      "WebSocket connection status (1=connected, 0=not connected)",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_reconnect_attempts_total",
			Help:      "Reconnection attempts made after unexpected socket closure",
		}),
		reconnectExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_reconnect_exhausted_total",
			Help:      "Times the reconnect policy gave up",
		}),
		subscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_subscriptions_active",
			Help:      "Subscriptions currently held in the registry",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_received_total",
			Help:      "Inbound frames by type tag",
		}, []string{"type"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_buffered_total",
			Help:      "Decoded events accepted into a subscription buffer",
		}, []string{"channel"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_dropped_total",
			Help:      "Decoded events dropped because the subscription buffer was full",
		}, []string{"channel"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_decode_errors_total",
			Help:      "Payloads rejected by a channel decoder",
		}, []string{"channel"}),
		serverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_server_errors_total",
			Help:      "Error frames sent by the node",
		}),
		natsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nats_connected",
			Help:      "NATS connection status (1=connected, 0=disconnected)",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events relayed to NATS",
		}, []string{"channel"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed NATS publishes",
		}, []string{"channel"}),
		dedupHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_hits_total",
			Help:      "Bids skipped because their tx hash was already seen",
		}, []string{"channel"}),
		batchWriteSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_batch_size",
			Help:      "Rows per archive batch insert",
			Buckets:   []float64{1, 10, 25, 50, 100, 200, 500},
		}),
		batchWriteDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_batch_duration_seconds",
			Help:      "Archive batch insert latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		archiveRowsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_rows_deleted_total",
			Help:      "Archived rows removed by retention",
		}),
	}

	reg.MustRegister(
		m.connectionState,
		m.websocketConnected,
		m.reconnectAttempts,
		m.reconnectExhausted,
		m.subscriptionsActive,
		m.messagesReceived,
		m.eventsDelivered,
		m.eventsDropped,
		m.decodeErrors,
		m.serverErrors,
		m.natsConnected,
		m.eventsPublished,
		m.publishErrors,
		m.dedupHits,
		m.batchWriteSize,
		m.batchWriteDurationSecs,
		m.archiveRowsDeleted,
	)
	return m
}

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

func (m *Metrics) SetConnectionState(state int, connected bool) {
	m.connectionState.Set(float64(state))
	boolGauge(m.websocketConnected, connected)
}

func (m *Metrics) IncReconnectAttempts()        { m.reconnectAttempts.Inc() }
func (m *Metrics) IncReconnectExhausted()       { m.reconnectExhausted.Inc() }
func (m *Metrics) SetSubscriptionsActive(n int) { m.subscriptionsActive.Set(float64(n)) }
func (m *Metrics) IncServerErrors()             { m.serverErrors.Inc() }

func (m *Metrics) IncMessagesReceived(msgType string) {
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncEventsBuffered(channel string) {
	m.eventsDelivered.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncEventsDropped(channel string) {
	m.eventsDropped.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncDecodeErrors(channel string) {
	m.decodeErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) SetNATSConnected(connected bool) {
	boolGauge(m.natsConnected, connected)
}

func (m *Metrics) IncEventsPublished(channel string) {
	m.eventsPublished.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncPublishErrors(channel string) {
	m.publishErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncDedupHits(channel string) {
	m.dedupHits.WithLabelValues(channel).Inc()
}

func (m *Metrics) ObserveBatchWrite(size int, seconds float64) {
	m.batchWriteSize.Observe(float64(size))
	m.batchWriteDurationSecs.Observe(seconds)
}

func (m *Metrics) AddArchiveRowsDeleted(n int64) {
	m.archiveRowsDeleted.Add(float64(n))
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the process-wide collectors, registering them on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics("pod_stream")
	})
	return globalMetrics
}

func InitMetrics() {
	GetMetrics()
}

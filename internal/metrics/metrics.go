package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2abus_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "a2abus_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Protocol metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2abus_messages_sent_total",
			Help: "Total A2A messages sent",
		},
		[]string{"type", "priority"},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "a2abus_requests_in_flight",
			Help: "Outstanding send_request correlations",
		},
	)

	RequestTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "a2abus_request_timeouts_total",
			Help: "Total requests that expired without a response",
		},
	)

	BroadcastsFanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "a2abus_broadcasts_total",
			Help: "Total broadcast fan-outs",
		},
	)

	// Dispatcher metrics
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2abus_events_dispatched_total",
			Help: "Total events delivered to the connection manager",
		},
		[]string{"room"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2abus_events_dropped_total",
			Help: "Total events dropped by the dispatcher",
		},
		[]string{"reason"}, // "malformed" or "rate_limited"
	)

	EventLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "a2abus_event_latency_seconds",
			Help:    "Broker publish-to-dispatch latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Connection metrics
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "a2abus_connected_clients",
			Help: "Currently connected websocket clients",
		},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "a2abus_delivery_failures_total",
			Help: "Total per-client delivery failures during fan-out",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "a2abus_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	StoreLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "a2abus_store_latency_seconds",
			Help:    "Message store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)

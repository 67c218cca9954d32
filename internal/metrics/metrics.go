package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialgraph_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialgraph_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Identity Metrics
	IdentityHydrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialgraph_identity_hydrations_total",
			Help: "Identity hydrations by outcome",
		},
		[]string{"outcome"}, // "cached", "hydrated", "degraded", "failed"
	)

	// Graph Metrics
	FollowOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialgraph_follow_operations_total",
			Help: "Follow and unfollow operations by outcome",
		},
		[]string{"outcome"},
	)

	ConnectionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialgraph_connection_requests_total",
			Help: "Connection request operations by outcome",
		},
		[]string{"outcome"}, // "created", "pending", "rate_limited", "already_connected", "accepted"
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialgraph_events_published_total",
			Help: "Events published by topic and result",
		},
		[]string{"topic", "result"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialgraph_events_consumed_total",
			Help: "Events consumed by topic and result",
		},
		[]string{"topic", "result"},
	)

	// Upstream Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "socialgraph_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func RecordHydration(outcome string) {
	IdentityHydrations.WithLabelValues(outcome).Inc()
}

func RecordFollow(outcome string) {
	FollowOperations.WithLabelValues(outcome).Inc()
}

func RecordConnectionRequest(outcome string) {
	ConnectionRequests.WithLabelValues(outcome).Inc()
}

// RecordEventPublish records a publish attempt on topic
func RecordEventPublish(topic string, err error) {
	EventsPublished.WithLabelValues(topic, result(err)).Inc()
}

// RecordEventConsume records a handler run on topic
func RecordEventConsume(topic string, err error) {
	EventsConsumed.WithLabelValues(topic, result(err)).Inc()
}

func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

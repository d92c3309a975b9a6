// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMRequestDuration tracks model gateway call duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Model gateway call duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"provider", "role"},
	)

	// LLMRequestsTotal tracks model gateway calls by result.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total model gateway calls",
		},
		[]string{"provider", "role", "status"},
	)

	// LLMRetriesTotal tracks backoff retries after rate limiting.
	LLMRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_retries_total",
			Help: "Total retries after rate-limited gateway calls",
		},
		[]string{"provider"},
	)

	// SessionsTotal tracks finished interview sessions by outcome.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_sessions_total",
			Help: "Total interview sessions by outcome",
		},
		[]string{"outcome"},
	)

	// MessagesTotal tracks messages appended to conversations.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_messages_total",
			Help: "Total messages appended",
		},
		[]string{"role"},
	)

	// SignalsTotal tracks detected termination and policy codes.
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_signals_total",
			Help: "Total protocol codes detected in interviewer replies",
		},
		[]string{"signal"},
	)

	// TranscriptWritesTotal tracks transcript persistence attempts.
	TranscriptWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_writes_total",
			Help: "Total transcript persistence attempts",
		},
		[]string{"status"},
	)

	// SSEConnectionsActive tracks open session event streams.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SessionInProgress is 1 while a session is running.
	SessionInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "interview_session_in_progress",
			Help: "Whether an interview session is currently running",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for one gateway call.
func RecordLLMCall(provider, role, status string, duration float64) {
	LLMRequestDuration.WithLabelValues(provider, role).Observe(duration)
	LLMRequestsTotal.WithLabelValues(provider, role, status).Inc()
}

// RecordSession records a finished session.
func RecordSession(outcome string) {
	SessionsTotal.WithLabelValues(outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

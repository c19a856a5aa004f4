package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Session lifecycle metrics
var (
	SessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_session_transitions_total",
			Help: "Session state transitions confirmed by the store",
		},
		[]string{"transition"},
	)

	RejectedOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_session_rejected_operations_total",
			Help: "Lifecycle operations rejected as invalid transitions or while another was in flight",
		},
		[]string{"operation", "reason"},
	)

	StaleSessionsReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "study_session_stale_reclaimed_total",
			Help: "Abandoned sessions force-completed during reconciliation",
		},
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_session_store_errors_total",
			Help: "Lifecycle operations that failed because the session store was unavailable",
		},
		[]string{"operation"},
	)

	StatisticsRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subject_statistics_write_retries_total",
			Help: "Statistics read-modify-write cycles retried after a conflicting write",
		},
	)
)

// HTTP metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"endpoint", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionTransitionsTotal,
		RejectedOperationsTotal,
		StaleSessionsReclaimedTotal,
		StoreErrorsTotal,
		StatisticsRetriesTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

func ObserveHTTPRequest(endpoint, method string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(endpoint, method).Observe(elapsed.Seconds())
}

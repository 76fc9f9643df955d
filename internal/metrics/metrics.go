// Package metrics exposes the module's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the module-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgersync",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests issued, by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgersync",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"endpoint"},
	)

	sessionOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgersync",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Total number of session operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	optimisticRollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledgersync",
			Subsystem: "session",
			Name:      "optimistic_rollbacks_total",
			Help:      "Optimistic balance updates rolled back after a failed submission.",
		},
	)

	reconciliationMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledgersync",
			Subsystem: "session",
			Name:      "reconciliation_mismatch_total",
			Help:      "Server balances that differed from the locally predicted balance.",
		},
	)

	statsRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgersync",
			Subsystem: "stats",
			Name:      "refreshes_total",
			Help:      "Aggregate stats refreshes, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		apiRequests,
		apiDuration,
		sessionOperations,
		optimisticRollbacks,
		reconciliationMismatches,
		statsRefreshes,
	)
}

// ObserveAPIRequest records one completed API call. status 0 means the
// request never produced an HTTP response (network failure).
func ObserveAPIRequest(endpoint string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequests.WithLabelValues(endpoint, label).Inc()
	apiDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveOperation records one session operation outcome.
func ObserveOperation(operation, outcome string) {
	sessionOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveRollback counts one optimistic rollback.
func ObserveRollback() { optimisticRollbacks.Inc() }

// ObserveMismatch counts one reconciliation mismatch.
func ObserveMismatch() { reconciliationMismatches.Inc() }

// ObserveStatsRefresh records one stats refresh outcome.
func ObserveStatsRefresh(outcome string) { statsRefreshes.WithLabelValues(outcome).Inc() }

// Handler returns an HTTP handler serving the module registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

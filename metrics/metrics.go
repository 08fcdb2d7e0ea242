// Package metrics exposes Prometheus instrumentation for the rebalance
// core, trimmed from the teacher's much larger weed/stats/metrics.go
// (Namespace + CounterVec/GaugeVec/HistogramVec registered against a
// private Registry rather than the default one) down to the counters and
// histograms this subsystem's components actually increment.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const Namespace = "sfs"

var Registry = prometheus.NewRegistry()

var (
	// BalanceUpAttempts counts balance-up sub-operation outcomes per
	// segment (§4.5).
	BalanceUpAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rebalance",
			Name:      "balance_up_attempts_total",
			Help:      "Balance-up sub-operation attempts by outcome.",
		}, []string{"outcome"})

	// BalanceDownAttempts counts balance-down sub-operation outcomes,
	// labelled by the role being trimmed (primary/replica).
	BalanceDownAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rebalance",
			Name:      "balance_down_attempts_total",
			Help:      "Balance-down sub-operation attempts by role and outcome.",
		}, []string{"role", "outcome"})

	// DigestMismatches counts planner integrity-gate failures (§4.4 step
	// 7).
	DigestMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "replica",
			Name:      "digest_mismatches_total",
			Help:      "Replica group planner digest mismatches.",
		}, []string{})

	// InsufficientCapacityEvents counts planner capacity shortfalls (§4.4
	// step 3).
	InsufficientCapacityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "replica",
			Name:      "insufficient_capacity_total",
			Help:      "Replica group planner insufficient-capacity failures.",
		}, []string{})

	// RebalanceDuration observes end-to-end rebalance(segment) latency.
	RebalanceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rebalance",
			Name:      "segment_duration_seconds",
			Help:      "Latency of one rebalance(segment) call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"changed"})

	// RemoteRequestDuration observes C1 request latency per operation.
	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "blob",
			Name:      "remote_request_duration_seconds",
			Help:      "Latency of C1 remote blob protocol requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"})
)

func init() {
	Registry.MustRegister(
		BalanceUpAttempts,
		BalanceDownAttempts,
		DigestMismatches,
		InsufficientCapacityEvents,
		RebalanceDuration,
		RemoteRequestDuration,
	)
}

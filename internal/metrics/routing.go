// Package metrics provides Prometheus metrics for the routing core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modelmux"

var (
	// RouterSelections counts deployments chosen per model group.
	RouterSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_selections_total",
			Help:      "Deployments selected by the router",
		},
		[]string{"deployment_id", "model_group"},
	)

	// RouterExclusions counts deployments filtered out of a routing
	// decision, labelled by the first metric that excluded them.
	RouterExclusions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_exclusions_total",
			Help:      "Deployments excluded from routing decisions by rate limit",
		},
		[]string{"deployment_id", "metric"},
	)

	// RouterNoEligibleDeployment counts routing decisions where every
	// candidate was over at least one limit.
	RouterNoEligibleDeployment = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_no_eligible_deployment_total",
			Help:      "Routing decisions that found no deployment within rate limits",
		},
		[]string{"model_group"},
	)

	// RouterCooldowns counts cooldown activations per deployment.
	RouterCooldowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_cooldowns_total",
			Help:      "Number of times a deployment entered cooldown",
		},
		[]string{"deployment_id"},
	)

	// LedgerOperationDuration tracks usage-store round-trip latency.
	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Usage counter store operation latency",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation"},
	)

	// LedgerErrors counts failed usage-store operations. The router fails
	// open on these, so the counter is the only place they stay visible.
	LedgerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_errors_total",
			Help:      "Usage counter store operation failures",
		},
		[]string{"operation"},
	)
)

// ObserveLedgerOp records latency and outcome for one store round trip.
func ObserveLedgerOp(operation string, start time.Time, err error) {
	LedgerOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		LedgerErrors.WithLabelValues(operation).Inc()
	}
}

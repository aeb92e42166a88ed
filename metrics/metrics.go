// Package metrics registers the prometheus collectors for the transaction
// engine. Exposed on /metrics by the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionTransitions counts committed status transitions by target status.
	TransactionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transaction_transitions_total",
		Help: "Total committed transaction status transitions by target status.",
	}, []string{"status"})

	// SweepCompleted counts transactions force-completed by the reconciliation sweep.
	SweepCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_sweep_completed_total",
		Help: "Transactions force-completed by the reconciliation sweep.",
	})

	// SweepFailures counts per-row sweep failures (logged and skipped).
	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_sweep_failures_total",
		Help: "Per-transaction failures during the reconciliation sweep.",
	})

	// GatewayRequests counts outbound payment provider calls by operation and outcome.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_requests_total",
		Help: "Outbound payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
)

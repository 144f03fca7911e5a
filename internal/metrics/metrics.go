// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Dispatch outcomes (delivered / queued / dropped_stale / failed)
//   - Active websocket connections
//   - Pending-queue drain volume
//   - Rejected inbound messages
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Delivery metrics
	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_dispatch_outcomes_total",
			Help: "Dispatch attempts by outcome",
		},
		[]string{"outcome"},
	)

	PendingDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_pending_drained_total",
			Help: "Pending messages redelivered during drains",
		},
	)

	// Connection metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_active_connections",
			Help: "Currently registered websocket connections",
		},
	)

	ConnectionsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_connections_accepted_total",
			Help: "Total websocket connections accepted",
		},
	)

	// Inbound validation metrics
	RejectedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_rejected_messages_total",
			Help: "Inbound messages rejected before dispatch",
		},
		[]string{"reason"},
	)
)

// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksReceivedCounter counts inbound gateway notifications by result
	WebhooksReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_webhooks_received_total",
			Help: "Total payment webhooks received, by disposition",
		},
		[]string{"disposition"},
	)

	// CreditsAppliedCounter counts balance credits applied by the reconciler
	CreditsAppliedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_credits_applied_total",
			Help: "Total successful balance credits",
		},
	)

	// CreditsAmountCounter accumulates the credited amount in rupiah
	CreditsAmountCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_credits_amount_rupiah_total",
			Help: "Total rupiah credited to user balances",
		},
	)

	// NotificationsCounter counts DM dispatch outcomes
	NotificationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_notifications_total",
			Help: "Total user notifications dispatched, by outcome",
		},
		[]string{"outcome"},
	)

	// RetentionDeletedCounter counts rows removed by the retention sweep
	RetentionDeletedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_retention_deleted_total",
			Help: "Total rows deleted by the retention sweep, by table",
		},
		[]string{"table"},
	)

	// DatabaseConnectionsGauge tracks database pool state
	DatabaseConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topup_database_connections",
			Help: "Database connection pool state",
		},
		[]string{"state"},
	)
)

// Package metrics declares the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts webhook deliveries by provider, type and result
	// (processed, duplicate, invalid_signature, handler_error, unroutable).
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook deliveries by provider, event type and outcome",
	}, []string{"provider", "type", "result"})

	// LedgerPostingsTotal counts committed ledger transactions by operation
	LedgerPostingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Committed ledger transactions by operation",
	}, []string{"operation"})

	// CardAuthDecisionsTotal counts authorization decisions
	CardAuthDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "card_auth_decisions_total",
		Help: "Card authorization decisions",
	}, []string{"decision"})

	// WithdrawalsTotal counts withdrawal requests by terminal status
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_total",
		Help: "Withdrawal requests by status transition",
	}, []string{"status"})

	// FundingRouteMissesTotal counts deposits that matched no funding route
	FundingRouteMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funding_route_misses_total",
		Help: "Deposits that matched no funding route",
	})

	// ReconciliationMismatchTotal counts cards whose ledger failed the
	// invariant check. Any increment is an incident.
	ReconciliationMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_mismatch_total",
		Help: "Cards whose ledger failed the reconciliation invariant",
	})

	// CardHoldsExpiredTotal counts holds expired by the TTL sweep
	CardHoldsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "card_holds_expired_total",
		Help: "Authorization holds expired by the TTL sweep",
	})

	// HTTPRequestsTotal counts API requests by method, path and status
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency by route
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// DatabaseConnectionsGauge tracks open DB connections
	DatabaseConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "database_connections_open",
		Help: "Open database connections",
	})
)

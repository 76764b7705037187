// Package metrics exposes the ledger's Prometheus instrumentation.
// Grounded on the teacher's src/metrics/prometheus.go promauto usage,
// trimmed to this domain's counters/histograms (postings, holds,
// velocity, idempotency, batching, outbox lag) rather than the teacher's
// generic HTTP/runtime panel. The HTTP, posting, hold and outbox series
// are updated by the middleware, handlers and dispatcher;
// VelocityRejectionsTotal, IdempotencyReplaysTotal,
// ResourceBusyRetriesTotal, BatchFlushSize, BatchFlushDuration and
// SweeperExpiredTotal are registered but no code path updates them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)
)

var (
	// PostingsTotal counts completed credit/debit/transfer/multi_transfer
	// postings by type and outcome (posted, rejected).
	PostingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Total number of postings by transfer type and outcome",
		},
		[]string{"type", "outcome"},
	)

	PostingAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_posting_amount_minor_units",
			Help:    "Distribution of posting amounts in currency minor units",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"type"},
	)

	HoldsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_holds_active",
			Help: "Current number of inflight holds",
		},
	)

	HoldOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_hold_outcomes_total",
			Help: "Total number of hold terminations by outcome",
		},
		[]string{"outcome"}, // committed, voided, expired
	)

	VelocityRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_velocity_rejections_total",
			Help: "Total number of postings rejected by a velocity limit",
		},
		[]string{"limit_type"},
	)

	IdempotencyReplaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_idempotency_replays_total",
			Help: "Total number of requests served from the idempotency cache instead of re-posting",
		},
	)

	ResourceBusyRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_resource_busy_total",
			Help: "Total number of operations that failed with resource_busy (version drift or lock contention)",
		},
	)

	BatchFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_batch_flush_size",
			Help:    "Number of items folded into one batch-engine flush transaction",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	BatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_batch_flush_duration_seconds",
			Help:    "Duration of one batch-engine flush transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_outbox_backlog",
			Help: "Number of undelivered outbox rows as of the last dispatcher poll",
		},
	)

	OutboxDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_outbox_dispatched_total",
			Help: "Total number of outbox rows published by topic",
		},
		[]string{"topic"},
	)

	SweeperExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_sweeper_expired_holds_total",
			Help: "Total number of holds expired by the sweeper",
		},
	)
)

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InsightPassesTotal counts scoring passes by result (ok, alert, save_error).
	InsightPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentinel_insight_passes_total",
			Help: "Total number of scoring passes by result.",
		},
		[]string{"result"},
	)

	InsightPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logsentinel_insight_pass_duration_seconds",
			Help:    "Duration of one score, update, and save pass.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// SignalZScore is the latest z-score per global signal.
	SignalZScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logsentinel_insight_signal_zscore",
			Help: "Z-score of the latest window per global signal.",
		},
		[]string{"signal"},
	)

	AnomalousIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logsentinel_insight_anomalous_identities",
			Help: "Identities flagged anomalous in the latest window.",
		},
	)

	TrackedIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logsentinel_insight_tracked_identities",
			Help: "Identities with a learned baseline.",
		},
	)

	EvictedIdentitiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logsentinel_insight_evicted_identities_total",
			Help: "Identities dropped by the eviction policy.",
		},
	)

	// CollectorFetchErrorsTotal counts failed Loki queries by query name.
	CollectorFetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentinel_collector_fetch_errors_total",
			Help: "Failed log store queries.",
		},
		[]string{"query"},
	)

	// WebhookDeliveriesTotal counts webhook posts by result (ok, error, skipped, rate_limited).
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentinel_webhook_deliveries_total",
			Help: "Webhook deliveries by result.",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts API requests by method, mux pattern, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentinel_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logsentinel_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// EventsPublishedTotal counts bus events by topic.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentinel_events_published_total",
			Help: "Events published on the internal bus.",
		},
		[]string{"topic"},
	)

	EventHandlerPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentinel_event_handler_panics_total",
			Help: "Bus handlers that panicked, by topic.",
		},
		[]string{"topic"},
	)
)

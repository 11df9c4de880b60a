// Package metrics holds the process-wide Prometheus collectors (§6 Health/Metrics
// HTTP surface), grouped by the ingest/signal domains this repository actually runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================================
// HTTP surface metrics
// ============================================================================

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hlpulse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hlpulse_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// ============================================================================
// WebSocket ingest metrics (position + candle managers)
// ============================================================================

var (
	WSConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_ws_connects_total",
			Help: "Total number of WebSocket connection attempts",
		},
		[]string{"manager", "status"}, // manager: "position", "candle"; status: "success", "failed"
	)

	WSReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_ws_reconnects_total",
			Help: "Total number of WebSocket reconnection attempts",
		},
		[]string{"manager"},
	)

	WSSubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hlpulse_ws_subscriptions_active",
			Help: "Number of currently subscribed keys",
		},
		[]string{"manager"},
	)

	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_ws_messages_total",
			Help: "Total number of inbound WebSocket messages routed",
		},
		[]string{"manager"},
	)

	WSDegradedSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hlpulse_ws_degraded_subscriptions",
			Help: "Number of subscriptions currently marked degraded",
		},
		[]string{"manager"},
	)
)

// ============================================================================
// Leaderboard / tracked-trader metrics
// ============================================================================

var (
	LeaderboardFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_leaderboard_fetches_total",
			Help: "Total number of leaderboard fetch attempts",
		},
		[]string{"status"},
	)

	TrackedTradersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hlpulse_tracked_traders_active",
			Help: "Number of currently tracked (active) traders",
		},
	)

	TrackedTradersAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hlpulse_tracked_traders_added_total",
			Help: "Total number of traders added to the tracked set",
		},
	)

	TrackedTradersRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hlpulse_tracked_traders_removed_total",
			Help: "Total number of traders removed from the tracked set",
		},
	)
)

// ============================================================================
// Event bus metrics
// ============================================================================

var (
	BusPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_bus_published_total",
			Help: "Total number of events published",
		},
		[]string{"topic"},
	)

	BusDroppedTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hlpulse_bus_dropped_total",
			Help: "Total number of events dropped due to a full subscriber queue",
		},
		[]string{"topic"},
	)
)

// ============================================================================
// Signal / whale alert metrics
// ============================================================================

var (
	SignalsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_signals_emitted_total",
			Help: "Total number of aggregate signals emitted",
		},
		[]string{"symbol", "recommendation"},
	)

	WhaleAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_whale_alerts_total",
			Help: "Total number of whale alerts raised",
		},
		[]string{"priority", "change_type"},
	)

	BootstrapWarming = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hlpulse_bootstrap_warming",
			Help: "1 while the signal system has not yet completed its bootstrap snapshot, 0 otherwise",
		},
	)
)

// ============================================================================
// Storage metrics
// ============================================================================

var (
	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlpulse_store_writes_total",
			Help: "Total number of document store writes",
		},
		[]string{"collection", "status"},
	)

	StoreWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hlpulse_store_write_duration_seconds",
			Help:    "Document store write duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"collection"},
	)
)

// ============================================================================
// Process metrics (Go runtime metrics are auto-collected by promhttp)
// ============================================================================

var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hlpulse_app_info",
			Help: "Application information",
		},
		[]string{"version", "go_version", "service"},
	)

	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hlpulse_app_start_timestamp_seconds",
			Help: "Application start timestamp in seconds",
		},
	)
)

// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scanner.
type Metrics struct {
	// Gateway metrics
	RPCRequests    *prometheus.CounterVec // provider, method, status
	RPCCallLatency *prometheus.HistogramVec
	RPCFailovers   *prometheus.CounterVec // from, to
	RPCExhausted   prometheus.Counter

	// Monitor metrics
	ConnectionState *prometheus.GaugeVec // exchange; value is monitor.State ordinal
	PairsDiscovered *prometheus.CounterVec
	EventsDeduped   prometheus.Counter
	WSReconnects    *prometheus.CounterVec

	// Aggregator metrics
	SnapshotsBuilt    prometheus.Counter
	SnapshotsFailed   *prometheus.CounterVec // reason
	SnapshotsDropped  prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	ScoreDistribution prometheus.Histogram

	// Validation metrics
	ValidationChecks *prometheus.CounterVec // check, result

	// Dispatcher metrics
	AlertsDispatched *prometheus.CounterVec // channel, status
	AlertsSkipped    prometheus.Counter
	AlertLatency     *prometheus.HistogramVec

	// Pipeline metrics
	PairsProcessed     *prometheus.CounterVec // status
	ProcessingDuration prometheus.Histogram
	PairsInFlight      prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered against reg.
// A nil registerer uses the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "moonscan"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "rpc_requests_total",
			Help:      "Total RPC requests by provider, method, and status",
		}, []string{"provider", "method", "status"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "rpc_call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "method"}),
		RPCFailovers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "failovers_total",
			Help:      "Total provider failovers",
		}, []string{"from", "to"}),
		RPCExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "exhausted_total",
			Help:      "Total calls that exhausted all providers",
		}),

		ConnectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "connection_state",
			Help:      "Subscription state per exchange (0=disconnected .. 4=shutting_down)",
		}, []string{"exchange"}),
		PairsDiscovered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "pairs_discovered_total",
			Help:      "Total new pairs discovered by exchange",
		}, []string{"exchange"}),
		EventsDeduped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_deduped_total",
			Help:      "Total events dropped by the recent-event window",
		}),
		WSReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ws_reconnects_total",
			Help:      "Total websocket reconnect attempts by exchange",
		}, []string{"exchange"}),

		SnapshotsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "snapshots_built_total",
			Help:      "Total metrics snapshots built",
		}),
		SnapshotsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "snapshots_failed_total",
			Help:      "Total snapshot failures by reason",
		}, []string{"reason"}),
		SnapshotsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "snapshots_dropped_total",
			Help:      "Total pairs dropped after exhausting snapshot attempts",
		}),
		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "snapshot_duration_seconds",
			Help:      "Snapshot build duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ScoreDistribution: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "score_distribution",
			Help:      "Distribution of computed scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		ValidationChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "checks_total",
			Help:      "Total validation check outcomes by check and result",
		}, []string{"check", "result"}),

		AlertsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dispatched_total",
			Help:      "Total alert deliveries by channel and status",
		}, []string{"channel", "status"}),
		AlertsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "skipped_duplicates_total",
			Help:      "Total alerts skipped by the dedup window",
		}),
		AlertLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "delivery_latency_seconds",
			Help:      "Alert delivery latency in seconds by channel",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),

		PairsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "pairs_processed_total",
			Help:      "Total pairs processed by status",
		}, []string{"status"}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "processing_duration_seconds",
			Help:      "Per-pair processing duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		PairsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "pairs_in_flight",
			Help:      "Pairs currently being processed",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

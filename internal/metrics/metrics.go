package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors for the trading core. Exposed via Serve on the
// configured listen address; Grafana dashboards and alerting hang off these.

// SignalsEmitted counts trading signals by symbol and side.
var SignalsEmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quanttrader",
		Subsystem: "engine",
		Name:      "signals_emitted_total",
		Help:      "Total number of emitted trading signals",
	},
	[]string{"symbol", "side"},
)

// EntriesSkipped counts entries that were evaluated but not taken.
var EntriesSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quanttrader",
		Subsystem: "engine",
		Name:      "entries_skipped_total",
		Help:      "Total number of skipped entries",
	},
	[]string{"reason"}, // votes, sizing, balance, close_failed
)

// AnalysisDuration observes per-event decision latency.
var AnalysisDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "quanttrader",
		Subsystem: "engine",
		Name:      "analysis_duration_ms",
		Help:      "Time to process one analysis event in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
)

// StreamReconnects counts reconnect attempts per topic.
var StreamReconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quanttrader",
		Subsystem: "stream",
		Name:      "reconnects_total",
		Help:      "Total number of stream reconnect attempts",
	},
	[]string{"topic"},
)

// StreamFailures counts connections that exhausted their retry budget.
var StreamFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quanttrader",
		Subsystem: "stream",
		Name:      "failures_total",
		Help:      "Total number of terminally failed stream connections",
	},
	[]string{"topic"},
)

// TicksThrottled counts trade ticks dropped by the per-symbol throttle.
var TicksThrottled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "quanttrader",
		Subsystem: "stream",
		Name:      "ticks_throttled_total",
		Help:      "Total number of trade ticks dropped by throttling",
	},
	[]string{"symbol"},
)

// CacheEvictions counts entries removed by the metric cache sweep.
var CacheEvictions = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "quanttrader",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total number of expired cache entries removed by the sweep",
	},
)

// Serve exposes /metrics on addr. Blocks; run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

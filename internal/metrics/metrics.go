// Package metrics provides Prometheus metrics for dns20i.
//
// dns20i runs as a short-lived process (one hook invocation or one issuance),
// so metrics live on a dedicated registry and are written to a node_exporter
// textfile on exit instead of being scraped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names use the dns20i_ prefix.
const (
	Namespace = "dns20i"
)

// Registry holds every dns20i metric.
var Registry = prometheus.NewRegistry()

var (
	// BuildInfo exposes version information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "build_info",
			Help:      "Build information.",
		},
		[]string{"version", "go_version"},
	)

	// APIRequestsTotal counts provider API requests by method and HTTP status.
	// Transport failures are recorded with status "error".
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "api_requests_total",
			Help:      "Provider API requests by method and status.",
		},
		[]string{"method", "status"},
	)

	// APIRequestDuration observes provider API latency.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Provider API request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ZoneLookupsTotal counts zone resolutions by result
	// (found, not_found, cached, error).
	ZoneLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "zone_lookups_total",
			Help:      "Zone resolutions by result.",
		},
		[]string{"result"},
	)

	// RecordOperationsTotal counts TXT record operations (add, delete) by result.
	RecordOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "record_operations_total",
			Help:      "TXT record operations by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// PropagationWaitSeconds observes how long TXT records took to become visible.
	PropagationWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "propagation_wait_seconds",
			Help:      "Time until a TXT record was visible on all checked nameservers.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
)

// Zone lookup results.
const (
	ZoneFound    = "found"
	ZoneNotFound = "not_found"
	ZoneCached   = "cached"
	ZoneError    = "error"
)

// Record operation results.
const (
	ResultSuccess  = "success"
	ResultConflict = "conflict"
	ResultMismatch = "mismatch"
	ResultError    = "error"
)

func init() {
	Registry.MustRegister(
		BuildInfo,
		APIRequestsTotal,
		APIRequestDuration,
		ZoneLookupsTotal,
		RecordOperationsTotal,
		PropagationWaitSeconds,
	)
}

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// WriteTextfile writes all metrics in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

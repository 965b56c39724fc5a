package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lifecycle operation results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// LifecycleOperationsTotal counts registry and login operations by outcome.
	LifecycleOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_lifecycle_operations_total",
			Help: "Organization lifecycle operations, by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// DocumentsCopiedTotal counts documents migrated between tenant collections on rename.
	DocumentsCopiedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "org_collection_documents_copied_total",
			Help: "Documents copied into renamed tenant collections.",
		},
	)

	// ProvisioningFailuresSwallowedTotal counts best-effort provisioning failures
	// that were logged but not surfaced to the caller.
	ProvisioningFailuresSwallowedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_provisioning_failures_swallowed_total",
			Help: "Collection provisioning failures swallowed under the best-effort policy, by step.",
		},
		[]string{"step"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route pattern.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// RecordOperation increments the lifecycle counter for op
func RecordOperation(op string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	LifecycleOperationsTotal.WithLabelValues(op, result).Inc()
}

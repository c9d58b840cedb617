// Package metrics is the optional Prometheus sink the durable composite
// reports operation counts and latencies to, grounded on
// bun-kms/internal/metrics's promauto vector style (preferred here over
// docdb/internal/metrics's hand-rolled text exporter, since client_golang
// is already the dependency SPEC_FULL.md wires for this component).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chrondb_operations_total",
			Help: "Total number of core operations by kind and outcome",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chrondb_operation_duration_seconds",
			Help:    "Core operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	OCCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chrondb_occ_retries_total",
			Help: "Total number of OCC retry attempts by branch",
		},
		[]string{"branch"},
	)

	WALPendingEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chrondb_wal_pending_entries",
			Help: "Number of WAL entries awaiting recovery",
		},
	)
)

// Observe records one completed operation's outcome and latency, called
// from internal/durable.Store around each public method.
func Observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts served requests by route template
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency by route template
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_operations_total",
			Help: "Total number of order state machine operations",
		},
		[]string{"operation", "status"},
	)

	stockReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_stock_reservations_total",
			Help: "Stock reservation attempts by outcome",
		},
		[]string{"result"},
	)

	sweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sweep_items_total",
			Help: "Entities transitioned by the expiry sweeps",
		},
		[]string{"sweep"},
	)

	sweepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sweep_failures_total",
			Help: "Per-item or whole-pass sweep failures",
		},
		[]string{"sweep"},
	)

	grpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_grpc_requests_total",
			Help: "gRPC calls served, by method and status code",
		},
		[]string{"method", "code"},
	)
)

// RecordOrderOperation counts one order operation
func RecordOrderOperation(operation string, success bool) {
	orderOperations.WithLabelValues(operation, statusLabel(success)).Inc()
}

// RecordReservation counts one stock reservation attempt
func RecordReservation(success bool) {
	result := "reserved"
	if !success {
		result = "rejected"
	}
	stockReservations.WithLabelValues(result).Inc()
}

// RecordSweepItems adds n transitioned entities for a sweep
func RecordSweepItems(sweep string, n int) {
	if n > 0 {
		sweepItems.WithLabelValues(sweep).Add(float64(n))
	}
}

// RecordSweepFailure counts a failed sweep item or pass
func RecordSweepFailure(sweep string) {
	sweepFailures.WithLabelValues(sweep).Inc()
}

// RecordGRPCRequest counts one served gRPC call
func RecordGRPCRequest(method, code string) {
	grpcRequests.WithLabelValues(method, code).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

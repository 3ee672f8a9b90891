package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PointsCredited counts points credited through visit confirmations.
	PointsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_credited_total",
		Help: "Total points credited to accounts via confirmed visits",
	})

	// VouchersIssued counts successful redemptions.
	VouchersIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_vouchers_issued_total",
		Help: "Total vouchers issued",
	})

	// VouchersProcessed counts terminal voucher decisions by outcome.
	VouchersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_vouchers_processed_total",
		Help: "Total vouchers processed to a terminal state",
	}, []string{"status"})

	// CASConflicts counts lost compare-and-swap races by operation.
	CASConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_cas_conflicts_total",
		Help: "Total compare-and-swap conflicts by operation",
	}, []string{"operation"})

	// HTTPRequestDuration tracks request latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loyalty_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "status"})
)

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transfers_total",
		Help: "Transfers by outcome",
	}, []string{"outcome"})

	transferLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallet_transfer_duration_seconds",
		Help:    "End-to-end transfer latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})

	storeRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_store_lookup_retries_total",
		Help: "Lookup retries after a storage failure",
	}, []string{"op"})
)

// outcome labels a transfer error for transfersTotal.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case isInsufficient(err):
		return "insufficient_balance"
	case isNotFound(err):
		return "wallet_not_found"
	case isInactive(err):
		return "wallet_inactive"
	case isUnavailable(err):
		return "storage_unavailable"
	}
	return "rejected"
}

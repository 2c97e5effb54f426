/*
metrics.go - Prometheus counters for wallet traffic

Exposed on GET /metrics. Counters only; balances are per-account state and
belong in the ledger, not in a gauge.
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accrualsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonus_accruals_total",
		Help: "Number of successful accrual operations.",
	})

	spendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonus_spends_total",
		Help: "Number of successful spend operations.",
	})

	insufficientTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonus_insufficient_balance_total",
		Help: "Number of spends rejected for insufficient balance.",
	})

	expiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonus_points_expired_total",
		Help: "Total points expired by sweeps.",
	})
)

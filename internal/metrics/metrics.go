// Package metrics holds the Prometheus collectors for the ledger and the
// settlement engine. Collectors register on the default registry, which the
// API exposes at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger ─────────────────────────────────────────────────────────────────

var BuyInsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chipledger",
	Subsystem: "ledger",
	Name:      "buyins_total",
	Help:      "Buy-in and cashout rows recorded, by kind and stored status.",
}, []string{"kind", "status"})

var BuyInsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chipledger",
	Subsystem: "ledger",
	Name:      "rejections_total",
	Help:      "Buy-in submissions refused, by error kind.",
}, []string{"reason"})

var BuyInDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chipledger",
	Subsystem: "ledger",
	Name:      "decisions_total",
	Help:      "Pending buy-ins moved to approved or rejected.",
}, []string{"status"})

// ─── Settlement ─────────────────────────────────────────────────────────────

var SettlementsRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chipledger",
	Subsystem: "settlement",
	Name:      "recorded_total",
	Help:      "Group settlements appended.",
})

var BalanceComputations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chipledger",
	Subsystem: "settlement",
	Name:      "balance_computations_total",
	Help:      "Group balance reports computed.",
})

var DebtEdges = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "chipledger",
	Subsystem: "settlement",
	Name:      "debt_edges",
	Help:      "Number of simplified debt edges per balance report.",
	Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
})

// ─── Store ──────────────────────────────────────────────────────────────────

var StoreTxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "chipledger",
	Subsystem: "store",
	Name:      "tx_duration_seconds",
	Help:      "Duration of store units of work.",
	Buckets:   prometheus.DefBuckets,
}, []string{"backend", "op"})

var StoreTxConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chipledger",
	Subsystem: "store",
	Name:      "tx_conflicts_total",
	Help:      "Units of work aborted by a concurrent writer.",
}, []string{"backend"})

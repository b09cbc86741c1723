// Package metrics exposes the engine's Prometheus instrumentation. This is
// ambient observability, distinct from the (out-of-scope) HTTP dashboard
// feature: it is scraped, not browsed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Cycle metrics ============

// CycleLatency is the wall-clock duration of one full engine cycle.
var CycleLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "marketmaker",
		Subsystem: "engine",
		Name:      "cycle_latency_ms",
		Help:      "Duration of one scan-fetch-manage-evaluate-place cycle in milliseconds",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	},
)

// CyclesTotal counts completed engine cycles.
var CyclesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "marketmaker",
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Total engine cycles completed",
	},
)

// Halted is 1 when the Position Manager has halted trading, 0 otherwise.
var Halted = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "marketmaker",
		Subsystem: "engine",
		Name:      "halted",
		Help:      "1 if trading is halted pending a restart, 0 otherwise",
	},
)

// ============ Pair/PnL metrics ============

// PairsByStatus tracks the current count of pairs in each lifecycle state.
var PairsByStatus = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "marketmaker",
		Subsystem: "pairs",
		Name:      "by_status",
		Help:      "Current number of pairs in each status",
	},
	[]string{"status"},
)

// PairsCompletedTotal counts pairs reaching a terminal state, by outcome.
var PairsCompletedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmaker",
		Subsystem: "pairs",
		Name:      "completed_total",
		Help:      "Pairs reaching a terminal state, labeled by outcome",
	},
	[]string{"outcome"}, // filled, partial_timeout, partial_deadline, cancelled, partial_recovery
)

// RealizedPnLDollars sums the non-negative realized PnL of pairs completed
// with both legs FILLED. Losses are not subtracted.
var RealizedPnLDollars = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "marketmaker",
		Subsystem: "pnl",
		Name:      "realized_dollars_total",
		Help:      "Cumulative non-negative realized PnL in dollars of filled pairs; losses are not subtracted",
	},
)

// FeesPaidDollars sums maker fees paid across completed pairs.
var FeesPaidDollars = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "marketmaker",
		Subsystem: "pnl",
		Name:      "fees_dollars_total",
		Help:      "Cumulative maker fees paid in dollars",
	},
)

// OneSidedFillsTotal counts one-sided-fill handler invocations.
var OneSidedFillsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "marketmaker",
		Subsystem: "pairs",
		Name:      "one_sided_fills_total",
		Help:      "Total one-sided fills handled (timeout, deadline, or recovery path)",
	},
)

// ============ Capital metrics ============

// CapitalAvailable reports the Capital Book's available balance.
var CapitalAvailable = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "marketmaker",
		Subsystem: "capital",
		Name:      "available_dollars",
		Help:      "Capital Book available balance in dollars",
	},
)

// CapitalDeployed reports the Capital Book's total deployed balance.
var CapitalDeployed = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "marketmaker",
		Subsystem: "capital",
		Name:      "deployed_dollars",
		Help:      "Capital Book total deployed balance in dollars",
	},
)

// ============ Exchange metrics ============

// ExchangeCallLatency times individual exchange REST calls.
var ExchangeCallLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "marketmaker",
		Subsystem: "exchange",
		Name:      "call_latency_ms",
		Help:      "Exchange REST call latency in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"operation"},
)

// ExchangeErrorsTotal counts exchange errors by kind.
var ExchangeErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmaker",
		Subsystem: "exchange",
		Name:      "errors_total",
		Help:      "Exchange errors by taxonomy kind",
	},
	[]string{"kind"},
)

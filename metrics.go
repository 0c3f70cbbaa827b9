// FILE: metrics.go
// Package main – Prometheus metrics for observability.
//
// Primary metrics the engine updates during operation:
//   • engine_orders_total{mode,side}        – orders placed (mode: paper|live)
//   • engine_exit_reasons_total{reason}     – closes split by reason
//   • engine_trades_total{result}           – trades by result (open|win|abort_kept)
//   • engine_equity_usd                     – equity snapshot (gauge)
//   • engine_open_positions                 – currently held positions (gauge)
//   • engine_scan_failures_total{exchange}  – per-exchange scan degradations
//   • engine_accumulations_total            – DCA fills merged into positions
//   • engine_ticks_total                    – monitor loop iterations
//
// Registered in init() and served by the HTTP handler started in main.go at
// /metrics (Prometheus text exposition format).
package main

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders placed",
		},
		[]string{"mode", "side"},
	)

	mtxExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exit_reasons_total",
			Help: "Position closes split by reason",
		},
		[]string{"reason"},
	)

	mtxTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Trades counted by result (open|win|abort_kept)",
		},
		[]string{"result"},
	)

	mtxEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_equity_usd",
			Help: "Equity in USD",
		},
	)

	mtxOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Open positions currently tracked by the ledger",
		},
	)

	mtxScanFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_scan_failures_total",
			Help: "Scanner fetch failures per exchange (scan degraded, not aborted)",
		},
		[]string{"exchange"},
	)

	mtxAccumulations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_accumulations_total",
			Help: "Accumulation fills merged into an existing position",
		},
	)

	mtxTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_ticks_total",
			Help: "Monitor loop iterations",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxOrders, mtxExitReasons, mtxTrades)
	prometheus.MustRegister(mtxEquity, mtxOpenPositions)
	prometheus.MustRegister(mtxScanFailures, mtxAccumulations, mtxTicks)
}

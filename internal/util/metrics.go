package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_committed_total",
		Help: "Total number of committed settlements",
	}, []string{"status", "method"})

	SettlementsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_failed_total",
		Help: "Total number of failed settlement attempts",
	}, []string{"reason"})

	SettlementRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_retries_total",
		Help: "Total number of settlement compare-and-swap retries",
	})

	OrderLinesAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_lines_added_total",
		Help: "Total number of order lines added to live orders",
	})

	StockDeductionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_deductions_total",
		Help: "Total number of per-ingredient stock deductions applied",
	})

	StockReceiptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_receipts_total",
		Help: "Total number of stock receipts applied",
	})

	ConsumptionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumption_failures_total",
		Help: "Total number of per-ingredient consumption failures",
	}, []string{"reason"})

	StockAdjustLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_adjust_latency_seconds",
		Help:    "Latency of per-ingredient stock read-modify-write transactions",
		Buckets: prometheus.DefBuckets,
	})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_latency_seconds",
		Help:    "Latency of settlement commit transactions",
		Buckets: prometheus.DefBuckets,
	})

	NegativeStockGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_negative_items",
		Help: "Number of inventory items currently below zero on-hand",
	})

	ReconciliationBacklogGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reconciliation_backlog_entries",
		Help: "Number of unresolved consumption failures awaiting reconciliation",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

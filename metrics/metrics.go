// Package metrics defines the Prometheus instrumentation for the ledger
// core. Counters are registered via promauto and exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesAppended counts successfully appended ledger entries by kind.
	EntriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snablo_ledger_entries_appended_total",
		Help: "Ledger entries appended, by kind.",
	}, []string{"kind"})

	// UndosRecorded counts compensating undo entries.
	UndosRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snablo_purchase_undos_total",
		Help: "Purchases undone within the undo window.",
	})

	// UndoWindowsExpired counts windows that elapsed without an undo.
	UndoWindowsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snablo_purchase_undo_windows_expired_total",
		Help: "Undo windows that expired, confirming the purchase.",
	})

	// CashCountsRecorded counts reconciliations by drift classification.
	CashCountsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snablo_cash_counts_total",
		Help: "Cash counts recorded, by drift classification.",
	}, []string{"classification"})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snablo_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// Package metrics holds the Prometheus collectors for analysis, sessions and
// the move ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeTimeout   = "timeout"
	OutcomeProcess   = "process_error"
	OutcomeMalformed = "malformed_output"
	OutcomeCancelled = "cancelled"
)

// Delivery decisions
const (
	DeliveryDelivered = "delivered"
	DeliveryStale     = "stale"
	DeliveryClosed    = "session_closed"
)

// Ledger append statuses
const (
	LedgerStored   = "stored"
	LedgerRejected = "rejected"
	LedgerFailed   = "failed"
	LedgerDropped  = "dropped"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chessanalysis",
		Name:      "analyses_total",
		Help:      "Engine analyses by outcome",
	}, []string{"outcome"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chessanalysis",
		Name:      "analysis_duration_seconds",
		Help:      "Wall time of one engine process",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	AnalysesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chessanalysis",
		Name:      "analyses_in_flight",
		Help:      "Engine processes currently running",
	})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chessanalysis",
		Name:      "deliveries_total",
		Help:      "Completed analyses by delivery decision",
	}, []string{"decision"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chessanalysis",
		Name:      "sessions_active",
		Help:      "Live client sessions",
	})

	EventsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chessanalysis",
		Name:      "session_events_rejected_total",
		Help:      "Inbound session events refused by the per-session rate limit",
	})

	LedgerAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chessanalysis",
		Name:      "ledger_appends_total",
		Help:      "Move ledger appends by status",
	}, []string{"status"})
)

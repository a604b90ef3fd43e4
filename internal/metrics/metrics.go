package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation pipeline and suggestion engine counters.

var (
	PaymentsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splittab",
		Subsystem: "payments",
		Name:      "submitted_total",
		Help:      "Total payment submissions by outcome",
	}, []string{"outcome"})

	PaymentsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splittab",
		Subsystem: "payments",
		Name:      "classified_total",
		Help:      "Total reconciled payments by classification",
	}, []string{"classification"})

	OracleLookupLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "splittab",
		Subsystem: "oracle",
		Name:      "lookup_duration_seconds",
		Help:      "Horizon transaction lookup duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"result"})

	SuggestionsRefreshed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "splittab",
		Subsystem: "suggestions",
		Name:      "refreshed_total",
		Help:      "Total settlement suggestion refreshes",
	})

	SuggestionStepsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "splittab",
		Subsystem: "suggestions",
		Name:      "steps_completed_total",
		Help:      "Total settlement steps completed",
	})

	SuggestionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "splittab",
		Subsystem: "suggestions",
		Name:      "expired_removed_total",
		Help:      "Total expired suggestions removed by the cleanup worker",
	})

	ActiveWebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "splittab",
		Subsystem: "notifications",
		Name:      "websocket_connections",
		Help:      "Currently open websocket connections",
	})
)

// Outcome label values for PaymentsSubmitted.
const (
	OutcomeConfirmed   = "confirmed"
	OutcomeDuplicate   = "duplicate"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "oracle_unavailable"
	OutcomeError       = "error"
)

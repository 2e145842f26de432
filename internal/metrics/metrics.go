package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Concierge metrics
var (
	// Turn outcomes
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tadaa",
			Subsystem: "concierge",
			Name:      "turns_total",
			Help:      "Total conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	// Model call duration
	ModelDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tadaa",
			Subsystem: "concierge",
			Name:      "model_duration_seconds",
			Help:      "Model call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Reply envelopes by variant
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tadaa",
			Subsystem: "concierge",
			Name:      "envelopes_total",
			Help:      "Parsed model reply envelopes by variant",
		},
		[]string{"variant"},
	)

	// Malformed replies recovered as plain text
	MalformedRepliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tadaa",
			Subsystem: "concierge",
			Name:      "malformed_replies_total",
			Help:      "Model replies that were degraded during parsing",
		},
	)

	// Commits
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tadaa",
			Subsystem: "concierge",
			Name:      "commits_total",
			Help:      "Item commits by collection and status",
		},
		[]string{"collection", "status"},
	)

	// Deletions
	DeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tadaa",
			Subsystem: "concierge",
			Name:      "deletions_total",
			Help:      "Confirmed deletions by item type and status",
		},
		[]string{"item_type", "status"},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTurn records the outcome of one turn
func RecordTurn(outcome string) {
	TurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordModelCall records model call time
func RecordModelCall(durationSec float64) {
	ModelDuration.Observe(durationSec)
}

// RecordEnvelope records a parsed reply and whether it was degraded
func RecordEnvelope(variant string, malformed bool) {
	EnvelopesTotal.WithLabelValues(variant).Inc()
	if malformed {
		MalformedRepliesTotal.Inc()
	}
}

// RecordCommit records an item commit
func RecordCommit(collection, status string) {
	CommitsTotal.WithLabelValues(collection, status).Inc()
}

// RecordDeletion records a confirmed deletion attempt
func RecordDeletion(itemType, status string) {
	DeletionsTotal.WithLabelValues(itemType, status).Inc()
}

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InjectionsTotal counts injection requests.
	// Labels: tier (dna_summary, field_guide, full_dossier), cache (hit, miss, live)
	InjectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "orchestrator",
			Name:      "injections_total",
			Help:      "Total number of context injection requests",
		},
		[]string{"tier", "cache"},
	)

	// InjectionDuration tracks end-to-end injection latency.
	InjectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "recalld",
			Subsystem: "orchestrator",
			Name:      "injection_duration_seconds",
			Help:      "Duration of context injection in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// InjectedTokens tracks how many tokens each injection spent.
	InjectedTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "recalld",
			Subsystem: "orchestrator",
			Name:      "injected_tokens",
			Help:      "Estimated tokens injected per request",
			Buckets:   []float64{0, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	// FeedbackTotal counts feedback signals by outcome.
	// Labels: outcome (positive, neutral, negative)
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "orchestrator",
			Name:      "feedback_total",
			Help:      "Total number of injection feedback signals",
		},
		[]string{"outcome"},
	)
)

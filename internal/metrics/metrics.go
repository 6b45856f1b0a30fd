// Package metrics holds the prometheus collectors for provider calls and extraction outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
)

var (
	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wishlist",
		Name:      "provider_requests_total",
		Help:      "Outbound requests to third-party providers by provider and outcome.",
	}, []string{"provider", "outcome"})

	extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wishlist",
		Name:      "extractions_total",
		Help:      "Extraction attempts by component and outcome.",
	}, []string{"component", "outcome"})
)

// ObserveProvider records one provider call.
func ObserveProvider(provider, outcome string) {
	providerRequests.WithLabelValues(provider, outcome).Inc()
}

// ObserveExtraction records one extraction attempt.
func ObserveExtraction(component, outcome string) {
	extractions.WithLabelValues(component, outcome).Inc()
}
